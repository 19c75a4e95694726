// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"pkt.systems/pslog"

	hllrcon "github.com/schultz-is/hllrcon-go"
	"github.com/schultz-is/hllrcon-go/internal/rcontest"
)

func executeRootCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(pslog.NewStructured(context.Background(), io.Discard))
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

// serverArgs returns the flags that point a command at s.
func serverArgs(s *rcontest.Server) []string {
	return []string{"--host", s.Host(), "--port", strconv.Itoa(s.Port()), "--password", rcontest.DefaultPassword}
}

func TestConnectCommand(t *testing.T) {
	t.Run(
		"flags",
		func(t *testing.T) {
			s := rcontest.NewServer(t)
			stdout, err := executeRootCommand(t, append([]string{"connect"}, serverArgs(s)...)...)
			if err != nil {
				t.Fatalf("connect failed unexpectedly: %s", err)
			}
			if want := "connected to " + s.Addr() + "\n"; stdout != want {
				t.Fatalf("connect output mismatch, got: %q, want: %q", stdout, want)
			}
			if s.Logins() != 1 {
				t.Fatalf("Server saw %d logins, want 1", s.Logins())
			}
		},
	)

	t.Run(
		"environment",
		func(t *testing.T) {
			s := rcontest.NewServer(t)
			t.Setenv("HLLRCON_HOST", s.Host())
			t.Setenv("HLLRCON_PORT", strconv.Itoa(s.Port()))
			t.Setenv("HLLRCON_PASSWORD", rcontest.DefaultPassword)

			if _, err := executeRootCommand(t, "connect"); err != nil {
				t.Fatalf("connect failed unexpectedly: %s", err)
			}
		},
	)

	t.Run(
		"config file",
		func(t *testing.T) {
			s := rcontest.NewServer(t)
			path := filepath.Join(t.TempDir(), "hllrcon.yaml")
			cfg := "host: " + s.Host() + "\nport: " + strconv.Itoa(s.Port()) + "\npassword: " + rcontest.DefaultPassword + "\nconnect-attempts: 1\n"
			if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
				t.Fatalf("writing config failed unexpectedly: %s", err)
			}

			if _, err := executeRootCommand(t, "connect", "--config", path); err != nil {
				t.Fatalf("connect failed unexpectedly: %s", err)
			}
		},
	)

	t.Run(
		"wrong password",
		func(t *testing.T) {
			s := rcontest.NewServer(t)
			_, err := executeRootCommand(t, "connect", "--host", s.Host(), "--port", strconv.Itoa(s.Port()), "--password", "nope")
			var authErr *hllrcon.AuthenticationError
			if !errors.As(err, &authErr) {
				t.Fatalf("connect got %v, want an AuthenticationError", err)
			}
		},
	)

	t.Run(
		"missing host",
		func(t *testing.T) {
			_, err := executeRootCommand(t, "connect", "--password", "x", "--port", "7779")
			if !errors.Is(err, hllrcon.ErrInvalidConfig) {
				t.Fatalf("connect got %v, want ErrInvalidConfig", err)
			}
		},
	)
}

func TestExecCommand(t *testing.T) {
	s := rcontest.NewServer(t)
	s.Handle("GetServerInformation", func(req *hllrcon.Envelope) rcontest.Reply {
		return rcontest.OK(`{"serverName":"Test","playerCount":3}`)
	})

	tests := []struct {
		name   string
		format string
		want   string
	}{
		{"raw", "raw", `{"serverName":"Test","playerCount":3}` + "\n"},
		{"json", "json", "{\n  \"serverName\": \"Test\",\n  \"playerCount\": 3\n}\n"},
		{"yaml", "yaml", "playerCount: 3\nserverName: Test\n"},
	}

	for _, tt := range tests {
		t.Run(
			tt.name,
			func(t *testing.T) {
				args := append([]string{"exec", "GetServerInformation", `{"Name":"session","Value":""}`, "-o", tt.format}, serverArgs(s)...)
				stdout, err := executeRootCommand(t, args...)
				if err != nil {
					t.Fatalf("exec failed unexpectedly: %s", err)
				}
				if stdout != tt.want {
					t.Fatalf("exec output mismatch, got: %q, want: %q", stdout, tt.want)
				}
			},
		)
	}

	t.Run(
		"body sent verbatim",
		func(t *testing.T) {
			reqs := s.Requests()
			if len(reqs) == 0 || reqs[0].ContentBody != `{"Name":"session","Value":""}` {
				t.Fatalf("exec sent unexpected requests: %+v", reqs)
			}
		},
	)

	t.Run(
		"failed command",
		func(t *testing.T) {
			_, err := executeRootCommand(t, append([]string{"exec", "Bogus"}, serverArgs(s)...)...)
			if !hllrcon.IsStatus(err, hllrcon.StatusBadRequest) {
				t.Fatalf("exec got %v, want a 400 CommandError", err)
			}
		},
	)

	t.Run(
		"unknown output format",
		func(t *testing.T) {
			_, err := executeRootCommand(t, append([]string{"exec", "Bogus", "-o", "xml"}, serverArgs(s)...)...)
			if err == nil || !strings.Contains(err.Error(), "unknown output format") {
				t.Fatalf("exec got %v, want an output format error", err)
			}
		},
	)
}

func TestBroadcastCommand(t *testing.T) {
	s := rcontest.NewServer(t)
	s.Handle("ServerBroadcast", func(*hllrcon.Envelope) rcontest.Reply { return rcontest.OK("") })

	args := append([]string{"broadcast", "Server", "restart", "soon"}, serverArgs(s)...)
	if _, err := executeRootCommand(t, args...); err != nil {
		t.Fatalf("broadcast failed unexpectedly: %s", err)
	}

	reqs := s.Requests()
	if len(reqs) != 1 || reqs[0].ContentBody != `{"Message":"Server restart soon"}` {
		t.Fatalf("broadcast sent unexpected requests: %+v", reqs)
	}
}

func TestPlayersCommand(t *testing.T) {
	s := rcontest.NewServer(t)
	s.Handle("GetServerInformation", func(*hllrcon.Envelope) rcontest.Reply {
		return rcontest.OK(`{"players":[{"name":"Able","iD":"1","level":42,"kills":7,"deaths":2}]}`)
	})

	stdout, err := executeRootCommand(t, append([]string{"players"}, serverArgs(s)...)...)
	if err != nil {
		t.Fatalf("players failed unexpectedly: %s", err)
	}
	if want := "1\tAble\t42\t7/2\n"; stdout != want {
		t.Fatalf("players output mismatch, got: %q, want: %q", stdout, want)
	}

	stdout, err = executeRootCommand(t, append([]string{"players", "-o", "yaml"}, serverArgs(s)...)...)
	if err != nil {
		t.Fatalf("players failed unexpectedly: %s", err)
	}
	if !strings.Contains(stdout, "name: Able") {
		t.Fatalf("players YAML output missing player name:\n%s", stdout)
	}
}

func TestKickCommand(t *testing.T) {
	s := rcontest.NewServer(t)
	s.Handle("KickPlayer", func(req *hllrcon.Envelope) rcontest.Reply {
		if strings.Contains(req.ContentBody, `"PlayerId":"1"`) {
			return rcontest.OK("")
		}
		return rcontest.Status(hllrcon.StatusBadRequest, "Player not found")
	})

	if _, err := executeRootCommand(t, append([]string{"kick", "1", "--reason", "afk"}, serverArgs(s)...)...); err != nil {
		t.Fatalf("kick failed unexpectedly: %s", err)
	}
	_, err := executeRootCommand(t, append([]string{"kick", "2"}, serverArgs(s)...)...)
	if err == nil || !strings.Contains(err.Error(), "not on the server") {
		t.Fatalf("kick of an absent player got %v", err)
	}
}
