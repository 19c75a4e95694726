// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package hllrcon_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	hllrcon "github.com/schultz-is/hllrcon-go"
	"github.com/schultz-is/hllrcon-go/internal/rcontest"
)

func TestNewRequest(t *testing.T) {
	tests := []struct {
		name        string
		cmd         hllrcon.Command
		wantName    string
		wantBody    string
		wantVersion int
	}{
		{
			name:        "broadcast",
			cmd:         hllrcon.ServerBroadcast{Message: "Hello"},
			wantName:    "ServerBroadcast",
			wantBody:    `{"Message":"Hello"}`,
			wantVersion: 2,
		},
		{
			name:        "kick",
			cmd:         hllrcon.KickPlayer{PlayerID: "7656", Reason: "afk"},
			wantName:    "KickPlayer",
			wantBody:    `{"PlayerId":"7656","Reason":"afk"}`,
			wantVersion: 2,
		},
		{
			name:        "temporary ban",
			cmd:         hllrcon.TemporaryBanPlayer{PlayerID: "7656", Duration: 2, Reason: "tk", AdminName: "ops"},
			wantName:    "TemporaryBanPlayer",
			wantBody:    `{"PlayerId":"7656","Duration":2,"Reason":"tk","AdminName":"ops"}`,
			wantVersion: 2,
		},
		{
			name:        "server information",
			cmd:         hllrcon.GetServerInformation{Name: hllrcon.InfoPlayer, Value: "7656"},
			wantName:    "GetServerInformation",
			wantBody:    `{"Name":"player","Value":"7656"}`,
			wantVersion: 2,
		},
		{
			name:        "displayable commands",
			cmd:         hllrcon.GetDisplayableCommands{},
			wantName:    "GetDisplayableCommands",
			wantBody:    ``,
			wantVersion: 2,
		},
		{
			name:        "client reference data",
			cmd:         hllrcon.GetClientReferenceData{Command: "KickPlayer"},
			wantName:    "GetClientReferenceData",
			wantBody:    `KickPlayer`,
			wantVersion: 2,
		},
		{
			name:        "admin log",
			cmd:         hllrcon.GetAdminLog{LogBackTrackTime: 60, Filters: "KILL"},
			wantName:    "GetAdminLog",
			wantBody:    `{"LogBackTrackTime":60,"Filters":"KILL"}`,
			wantVersion: 2,
		},
		{
			name:        "add map to rotation",
			cmd:         hllrcon.AddMapToRotation{MapName: "stmereeglise_warfare", Index: 3},
			wantName:    "AddMapToRotation",
			wantBody:    `{"MapName":"stmereeglise_warfare","Index":3}`,
			wantVersion: 2,
		},
		{
			name:        "move map in sequence",
			cmd:         hllrcon.MoveMapInSequence{CurrentIndex: 4, NewIndex: 1},
			wantName:    "MoveMapInSequence",
			wantBody:    `{"CurrentIndex":4,"NewIndex":1}`,
			wantVersion: 2,
		},
		{
			name:        "map shuffle",
			cmd:         hllrcon.SetMapShuffleEnabled{Enable: true},
			wantName:    "SetMapShuffleEnabled",
			wantBody:    `{"Enable":true}`,
			wantVersion: 2,
		},
		{
			name:        "disband squad",
			cmd:         hllrcon.DisbandPlatoon{TeamIndex: 1, SquadIndex: 5, Reason: "no leader"},
			wantName:    "DisbandPlatoon",
			wantBody:    `{"TeamIndex":1,"SquadIndex":5,"Reason":"no leader"}`,
			wantVersion: 2,
		},
		{
			name:        "force team switch",
			cmd:         hllrcon.ForceTeamSwitch{PlayerID: "7656", ForceMode: hllrcon.ForceAfterDeath},
			wantName:    "ForceTeamSwitch",
			wantBody:    `{"PlayerId":"7656","ForceMode":1}`,
			wantVersion: 2,
		},
		{
			name:        "idle kick duration",
			cmd:         hllrcon.SetIdleKickDuration{IdleTimeoutMinutes: 10},
			wantName:    "SetIdleKickDuration",
			wantBody:    `{"IdleTimeoutMinutes":10}`,
			wantVersion: 2,
		},
		{
			name:        "vote kick thresholds",
			cmd:         hllrcon.SetVoteKickThreshold{Thresholds: []hllrcon.VoteKickThreshold{{Players: 0, Votes: 5}, {Players: 50, Votes: 20}}},
			wantName:    "SetVoteKickThreshold",
			wantBody:    `{"ThresholdValue":"0,5,50,20"}`,
			wantVersion: 2,
		},
		{
			name:        "reset vote kick thresholds",
			cmd:         hllrcon.ResetVoteKickThreshold{},
			wantName:    "ResetVoteKickThreshold",
			wantBody:    ``,
			wantVersion: 2,
		},
		{
			name:        "banned words",
			cmd:         hllrcon.AddBannedWords{Words: []string{"foo", "bar"}},
			wantName:    "AddBannedWords",
			wantBody:    `{"Words":"foo,bar"}`,
			wantVersion: 2,
		},
		{
			name:        "match timer",
			cmd:         hllrcon.SetMatchTimer{GameMode: hllrcon.GameModeWarfare, MatchLength: 90},
			wantName:    "SetMatchTimer",
			wantBody:    `{"GameMode":"Warfare","MatchLength":90}`,
			wantVersion: 2,
		},
		{
			name:        "remove warmup timer",
			cmd:         hllrcon.RemoveWarmupTimer{GameMode: hllrcon.GameModeSkirmish},
			wantName:    "RemoveWarmupTimer",
			wantBody:    `{"GameMode":"Skirmish"}`,
			wantVersion: 2,
		},
		{
			name:        "dynamic weather",
			cmd:         hllrcon.SetDynamicWeatherEnabled{MapID: "kursk", Enable: false},
			wantName:    "SetDynamicWeatherEnabled",
			wantBody:    `{"MapId":"kursk","Enable":false}`,
			wantVersion: 2,
		},
	}

	for _, tt := range tests {
		t.Run(
			tt.name,
			func(t *testing.T) {
				s := rcontest.NewServer(t)
				s.Handle(tt.wantName, func(*hllrcon.Envelope) rcontest.Reply { return rcontest.OK("") })
				c := newClient(t, s.Config())

				req := hllrcon.NewRequest(tt.cmd)
				if req.Name != tt.wantName || req.Version != tt.wantVersion {
					t.Fatalf("NewRequest() got %s v%d, want %s v%d", req.Name, req.Version, tt.wantName, tt.wantVersion)
				}
				if _, err := c.Run(context.Background(), tt.cmd); err != nil {
					t.Fatalf("Run() failed unexpectedly: %s", err)
				}

				reqs := s.Requests()
				if len(reqs) != 1 {
					t.Fatalf("Server received %d requests, want 1", len(reqs))
				}
				if reqs[0].ContentBody != tt.wantBody {
					t.Fatalf("Request body mismatch, got: %q, want: %q", reqs[0].ContentBody, tt.wantBody)
				}
				if reqs[0].Version != tt.wantVersion {
					t.Fatalf("Request version got %d, want %d", reqs[0].Version, tt.wantVersion)
				}
			},
		)
	}
}

func TestClientStatusResults(t *testing.T) {
	tests := []struct {
		name    string
		command string
		status  hllrcon.StatusCode
		run     func(c *hllrcon.Client) (bool, error)
		want    bool
		wantErr bool
	}{
		{
			name:    "kick present player",
			command: "KickPlayer",
			status:  hllrcon.StatusOK,
			run: func(c *hllrcon.Client) (bool, error) {
				return c.KickPlayer(context.Background(), "7656", "afk")
			},
			want: true,
		},
		{
			name:    "kick absent player",
			command: "KickPlayer",
			status:  hllrcon.StatusBadRequest,
			run: func(c *hllrcon.Client) (bool, error) {
				return c.KickPlayer(context.Background(), "7656", "afk")
			},
			want: false,
		},
		{
			name:    "kick server failure",
			command: "KickPlayer",
			status:  hllrcon.StatusInternalError,
			run: func(c *hllrcon.Client) (bool, error) {
				return c.KickPlayer(context.Background(), "7656", "afk")
			},
			wantErr: true,
		},
		{
			name:    "kill dead player",
			command: "PunishPlayer",
			status:  hllrcon.StatusInternalError,
			run: func(c *hllrcon.Client) (bool, error) {
				return c.KillPlayer(context.Background(), "7656", "")
			},
			want: false,
		},
		{
			name:    "kill bad request",
			command: "PunishPlayer",
			status:  hllrcon.StatusBadRequest,
			run: func(c *hllrcon.Client) (bool, error) {
				return c.KillPlayer(context.Background(), "7656", "")
			},
			wantErr: true,
		},
		{
			name:    "remove missing temporary ban",
			command: "RemoveTemporaryBan",
			status:  hllrcon.StatusBadRequest,
			run: func(c *hllrcon.Client) (bool, error) {
				return c.RemoveTemporaryBan(context.Background(), "7656")
			},
			want: false,
		},
		{
			name:    "disband missing squad",
			command: "DisbandPlatoon",
			status:  hllrcon.StatusBadRequest,
			run: func(c *hllrcon.Client) (bool, error) {
				return c.DisbandSquad(context.Background(), 1, 9, "")
			},
			want: false,
		},
		{
			name:    "remove player from squad",
			command: "RemovePlayerFromPlatoon",
			status:  hllrcon.StatusOK,
			run: func(c *hllrcon.Client) (bool, error) {
				return c.RemovePlayerFromSquad(context.Background(), "7656", "afk")
			},
			want: true,
		},
		{
			name:    "team switch refused",
			command: "ForceTeamSwitch",
			status:  hllrcon.StatusInternalError,
			run: func(c *hllrcon.Client) (bool, error) {
				return c.ForceTeamSwitch(context.Background(), "7656", hllrcon.ForceImmediate)
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(
			tt.name,
			func(t *testing.T) {
				s := rcontest.NewServer(t)
				s.Handle(tt.command, func(*hllrcon.Envelope) rcontest.Reply {
					return rcontest.Status(tt.status, tt.status.String())
				})
				c := newClient(t, s.Config())

				got, err := tt.run(c)
				if tt.wantErr {
					var cmdErr *hllrcon.CommandError
					if !errors.As(err, &cmdErr) || cmdErr.StatusCode != tt.status {
						t.Fatalf("Got %v, want a %d CommandError", err, tt.status)
					}
					return
				}
				if err != nil {
					t.Fatalf("Command failed unexpectedly: %s", err)
				}
				if got != tt.want {
					t.Fatalf("Command result got %t, want %t", got, tt.want)
				}
			},
		)
	}
}

func TestClientBanPlayer(t *testing.T) {
	s := rcontest.NewServer(t)
	ok := func(*hllrcon.Envelope) rcontest.Reply { return rcontest.OK("") }
	s.Handle("TemporaryBanPlayer", ok)
	s.Handle("PermanentBanPlayer", ok)
	c := newClient(t, s.Config())

	if err := c.BanPlayer(context.Background(), "1", "tk", "ops", 3); err != nil {
		t.Fatalf("BanPlayer() failed unexpectedly: %s", err)
	}
	if err := c.BanPlayer(context.Background(), "2", "cheating", "ops", 0); err != nil {
		t.Fatalf("BanPlayer() failed unexpectedly: %s", err)
	}

	reqs := s.Requests()
	if len(reqs) != 2 || reqs[0].Name != "TemporaryBanPlayer" || reqs[1].Name != "PermanentBanPlayer" {
		t.Fatalf("BanPlayer() sent unexpected requests: %+v", reqs)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(reqs[0].ContentBody), &body); err != nil {
		t.Fatalf("Decoding ban body failed unexpectedly: %s", err)
	}
	if body["Duration"] != float64(3) {
		t.Fatalf("Temporary ban duration got %v, want 3", body["Duration"])
	}
}

func TestClientUnbanPlayer(t *testing.T) {
	tests := []struct {
		name      string
		temporary hllrcon.StatusCode
		permanent hllrcon.StatusCode
		want      bool
		wantErr   bool
	}{
		{"temporarily banned", hllrcon.StatusOK, hllrcon.StatusBadRequest, true, false},
		{"permanently banned", hllrcon.StatusBadRequest, hllrcon.StatusOK, true, false},
		{"not banned", hllrcon.StatusBadRequest, hllrcon.StatusBadRequest, false, false},
		{"server failure", hllrcon.StatusOK, hllrcon.StatusInternalError, false, true},
	}

	for _, tt := range tests {
		t.Run(
			tt.name,
			func(t *testing.T) {
				s := rcontest.NewServer(t)

				// Both removals must be in flight at once before either is answered.
				var arrived sync.WaitGroup
				arrived.Add(2)
				both := make(chan struct{})
				go func() {
					arrived.Wait()
					close(both)
				}()
				reply := func(status hllrcon.StatusCode) rcontest.HandlerFunc {
					return func(*hllrcon.Envelope) rcontest.Reply {
						arrived.Done()
						return rcontest.Reply{Status: status, Delay: 50 * time.Millisecond}
					}
				}
				s.Handle("RemoveTemporaryBan", reply(tt.temporary))
				s.Handle("RemovePermanentBan", reply(tt.permanent))
				c := newClient(t, s.Config())

				got, err := c.UnbanPlayer(context.Background(), "7656")
				select {
				case <-both:
				default:
					t.Fatal("UnbanPlayer() did not send both removals")
				}
				if tt.wantErr {
					if !hllrcon.IsStatus(err, hllrcon.StatusInternalError) {
						t.Fatalf("UnbanPlayer() got %v, want a 500 CommandError", err)
					}
					return
				}
				if err != nil {
					t.Fatalf("UnbanPlayer() failed unexpectedly: %s", err)
				}
				if got != tt.want {
					t.Fatalf("UnbanPlayer() got %t, want %t", got, tt.want)
				}
			},
		)
	}
}

func TestClientQueries(t *testing.T) {
	s := rcontest.NewServer(t)
	s.Handle("GetServerInformation", func(req *hllrcon.Envelope) rcontest.Reply {
		var q struct{ Name, Value string }
		if err := json.Unmarshal([]byte(req.ContentBody), &q); err != nil {
			return rcontest.Status(hllrcon.StatusBadRequest, err.Error())
		}
		switch q.Name {
		case hllrcon.InfoPlayers:
			return rcontest.OK(`{"players":[{"name":"Able","iD":"1","team":1,"level":42,"scoreData":{"cOMBAT":10,"offense":2,"defense":3,"support":4}},{"name":"Baker","iD":"2","team":0}]}`)
		case hllrcon.InfoPlayer:
			if q.Value != "1" {
				return rcontest.Status(hllrcon.StatusBadRequest, "Player not found")
			}
			return rcontest.OK(`{"name":"Able","iD":"1","team":1,"worldPosition":{"x":1.5,"y":-2,"z":0}}`)
		case hllrcon.InfoSession:
			return rcontest.OK(`{"serverName":"Test","mapName":"Foy","playerCount":2,"maxPlayerCount":100}`)
		case hllrcon.InfoMapRotation:
			return rcontest.OK(`{"mAPS":[{"name":"FOY","iD":"foy_warfare","position":0},{"name":"SMDM","iD":"stmariedumont_warfare","position":1}]}`)
		case hllrcon.InfoBannedWords:
			return rcontest.OK(`{"bannedWords":["foo","bar"]}`)
		}
		return rcontest.Status(hllrcon.StatusBadRequest, "Unknown section")
	})
	c := newClient(t, s.Config())
	ctx := context.Background()

	t.Run(
		"players",
		func(t *testing.T) {
			players, err := c.GetPlayers(ctx)
			if err != nil {
				t.Fatalf("GetPlayers() failed unexpectedly: %s", err)
			}
			if len(players) != 2 {
				t.Fatalf("GetPlayers() returned %d players, want 2", len(players))
			}
			able := players[0]
			if able.Name != "Able" || able.Level != 42 || able.ScoreData.Combat != 10 || !able.Team.IsAllied() {
				t.Fatalf("GetPlayers() decoded unexpected player: %+v", able)
			}
			if !players[1].Team.IsAxis() {
				t.Fatalf("GetPlayers() decoded team %d as allied", players[1].Team)
			}
		},
	)

	t.Run(
		"player",
		func(t *testing.T) {
			p, err := c.GetPlayer(ctx, "1")
			if err != nil {
				t.Fatalf("GetPlayer() failed unexpectedly: %s", err)
			}
			if p.WorldPosition.X != 1.5 || p.WorldPosition.Y != -2 {
				t.Fatalf("GetPlayer() decoded unexpected position: %+v", p.WorldPosition)
			}

			_, err = c.GetPlayer(ctx, "9")
			if !hllrcon.IsStatus(err, hllrcon.StatusBadRequest) {
				t.Fatalf("GetPlayer() of a missing player got %v, want a 400 CommandError", err)
			}
		},
	)

	t.Run(
		"session",
		func(t *testing.T) {
			sess, err := c.GetServerSession(ctx)
			if err != nil {
				t.Fatalf("GetServerSession() failed unexpectedly: %s", err)
			}
			if sess.MapName != "Foy" || sess.MaxPlayerCount != 100 {
				t.Fatalf("GetServerSession() decoded unexpected session: %+v", sess)
			}
		},
	)

	t.Run(
		"map rotation",
		func(t *testing.T) {
			maps, err := c.GetMapRotation(ctx)
			if err != nil {
				t.Fatalf("GetMapRotation() failed unexpectedly: %s", err)
			}
			if len(maps) != 2 || maps[1].ID != "stmariedumont_warfare" || maps[1].Position != 1 {
				t.Fatalf("GetMapRotation() decoded unexpected maps: %+v", maps)
			}
		},
	)

	t.Run(
		"banned words",
		func(t *testing.T) {
			words, err := c.GetBannedWords(ctx)
			if err != nil {
				t.Fatalf("GetBannedWords() failed unexpectedly: %s", err)
			}
			if len(words) != 2 || words[0] != "foo" {
				t.Fatalf("GetBannedWords() got %v", words)
			}
		},
	)

	t.Run(
		"unknown section",
		func(t *testing.T) {
			_, err := c.GetServerConfig(ctx)
			var cmdErr *hllrcon.CommandError
			if !errors.As(err, &cmdErr) || cmdErr.Message != "Unknown section" {
				t.Fatalf("GetServerConfig() got %v, want a CommandError", err)
			}
		},
	)
}

func TestClientServerSettings(t *testing.T) {
	s := rcontest.NewServer(t)
	ok := func(*hllrcon.Envelope) rcontest.Reply { return rcontest.OK("") }
	for _, name := range []string{"RemoveBannedWords", "SetVoteKickThreshold", "SetWarmupTimer", "RemoveMapFromSequence"} {
		s.Handle(name, ok)
	}
	c := newClient(t, s.Config())
	ctx := context.Background()

	if err := c.RemoveBannedWords(ctx, "foo", "bar", "baz"); err != nil {
		t.Fatalf("RemoveBannedWords() failed unexpectedly: %s", err)
	}
	if err := c.SetVoteKickThresholds(ctx, hllrcon.VoteKickThreshold{Players: 10, Votes: 3}); err != nil {
		t.Fatalf("SetVoteKickThresholds() failed unexpectedly: %s", err)
	}
	if err := c.SetWarmupTimer(ctx, hllrcon.GameModeOffensive, 3); err != nil {
		t.Fatalf("SetWarmupTimer() failed unexpectedly: %s", err)
	}
	if err := c.RemoveMapFromSequence(ctx, 2); err != nil {
		t.Fatalf("RemoveMapFromSequence() failed unexpectedly: %s", err)
	}

	want := []string{
		`{"Words":"foo,bar,baz"}`,
		`{"ThresholdValue":"10,3"}`,
		`{"GameMode":"Offensive","WarmupLength":3}`,
		`{"Index":2}`,
	}
	reqs := s.Requests()
	if len(reqs) != len(want) {
		t.Fatalf("Server received %d requests, want %d", len(reqs), len(want))
	}
	for i, req := range reqs {
		if req.ContentBody != want[i] {
			t.Fatalf("Request %s body mismatch, got: %q, want: %q", req.Name, req.ContentBody, want[i])
		}
	}

	// Commands the server does not know fail with its status.
	if err := c.AddMapToRotation(ctx, "foy_warfare", 0); !hllrcon.IsStatus(err, hllrcon.StatusBadRequest) {
		t.Fatalf("AddMapToRotation() got %v, want a 400 CommandError", err)
	}
}
