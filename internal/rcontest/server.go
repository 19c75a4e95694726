// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

// Package rcontest provides an in-process HLL RCON server for tests. It performs the ServerConnect
// and Login handshake, obfuscates frames with its key, and answers commands with scriptable
// handlers.
package rcontest

import (
	"encoding/base64"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	hllrcon "github.com/schultz-is/hllrcon-go"
)

// DefaultPassword is the password accepted by servers created without [WithPassword].
const DefaultPassword = "secret"

// DefaultKey is the XOR key handed out by servers created without [WithKey].
var DefaultKey = []byte("hll-test-key")

// Reply scripts the answer to a single request.
type Reply struct {
	Status  hllrcon.StatusCode
	Message string
	Body    string

	// Delay postpones the answer. Other requests on the same connection are answered meanwhile.
	Delay time.Duration

	// NoReply drops the request without answering it.
	NoReply bool

	// Kill closes the connection instead of answering.
	Kill bool

	// Raw is written to the connection verbatim instead of an encoded response.
	Raw []byte
}

// OK returns a 200 reply carrying body.
func OK(body string) Reply {
	return Reply{Status: hllrcon.StatusOK, Body: body}
}

// Status returns a reply with the given status and message and an empty body.
func Status(code hllrcon.StatusCode, message string) Reply {
	return Reply{Status: code, Message: message}
}

// HandlerFunc answers a request received by the server.
type HandlerFunc func(req *hllrcon.Envelope) Reply

// Option configures a [Server].
type Option func(*Server)

// WithPassword sets the password the server accepts.
func WithPassword(password string) Option {
	return func(s *Server) { s.password = password }
}

// WithKey sets the XOR key the server hands out.
func WithKey(key []byte) Option {
	return func(s *Server) { s.key = key }
}

// Server is an HLL RCON server listening on a loopback port.
type Server struct {
	t        testing.TB
	password string
	key      []byte
	ln       net.Listener

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	conns    map[net.Conn]struct{}
	requests []hllrcon.Envelope
	closed   bool

	accepted atomic.Int64
	logins   atomic.Int64
	wg       sync.WaitGroup
}

// NewServer starts a server on a random loopback port. It is closed automatically when the test
// finishes.
func NewServer(t testing.TB, opts ...Option) *Server {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening failed unexpectedly: %s", err)
	}

	s := &Server{
		t:        t,
		password: DefaultPassword,
		key:      DefaultKey,
		ln:       ln,
		handlers: make(map[string]HandlerFunc),
		conns:    make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Host returns the host the server listens on.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr())
	return host
}

// Port returns the port the server listens on.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.Addr())
	p, _ := strconv.Atoi(port)
	return p
}

// Config returns a client config pointed at the server with its password and short timeouts.
func (s *Server) Config() hllrcon.Config {
	return hllrcon.Config{
		Host:           s.Host(),
		Port:           s.Port(),
		Password:       s.password,
		ConnectTimeout: 2 * time.Second,
		CommandTimeout: 2 * time.Second,
		Backoff: hllrcon.BackoffConfig{
			BaseDelay:   time.Millisecond,
			MaxDelay:    10 * time.Millisecond,
			MaxAttempts: 3,
		},
	}
}

// Handle registers the handler answering the named command. Commands without a handler are
// answered with 400.
func (s *Server) Handle(name string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = h
}

// Requests returns every command request received after login, in arrival order.
func (s *Server) Requests() []hllrcon.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]hllrcon.Envelope(nil), s.requests...)
}

// Accepted returns the number of connections accepted so far.
func (s *Server) Accepted() int {
	return int(s.accepted.Load())
}

// Logins returns the number of successful logins so far.
func (s *Server) Logins() int {
	return int(s.logins.Load())
}

// KillConnections closes every open connection without closing the listener.
func (s *Server) KillConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.Close()
	}
}

// Close stops the listener, closes every connection, and waits for the server goroutines.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.ln.Close()
	s.KillConnections()
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()

	for {
		nc, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.accepted.Add(1)

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = nc.Close()
			return
		}
		s.conns[nc] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveConn(nc)
	}
}

// session is the server side of one connection.
type session struct {
	s       *Server
	nc      net.Conn
	codec   hllrcon.Codec
	writeMu sync.Mutex
	token   string
	replies sync.WaitGroup
}

func (s *Server) serveConn(nc net.Conn) {
	defer s.wg.Done()
	sess := &session{s: s, nc: nc}
	defer func() {
		_ = nc.Close()
		sess.replies.Wait()
		s.mu.Lock()
		delete(s.conns, nc)
		s.mu.Unlock()
	}()

	var buf []byte
	chunk := make([]byte, 4096)
	for {
		env, n, err := sess.codec.DecodeRequest(buf)
		if errors.Is(err, hllrcon.ErrShortFrame) {
			m, rerr := nc.Read(chunk)
			buf = append(buf, chunk[:m]...)
			if rerr != nil && m == 0 {
				return
			}
			continue
		}
		if err != nil {
			return
		}
		buf = buf[n:]

		if !sess.handle(env) {
			return
		}
	}
}

// handle answers a single request. It reports false when the connection should be closed.
func (sess *session) handle(env *hllrcon.Envelope) bool {
	switch env.Name {
	case "ServerConnect":
		key := base64.StdEncoding.EncodeToString(sess.s.key)
		if err := sess.write(env, OK(key)); err != nil {
			return false
		}
		sess.codec.SetKey(sess.s.key)
		return true

	case "Login":
		if env.ContentBody != sess.s.password {
			_ = sess.write(env, Status(hllrcon.StatusUnauthorized, "Invalid password"))
			return true
		}
		sess.token = "auth-" + strconv.FormatInt(sess.s.logins.Add(1), 10)
		return sess.write(env, OK(sess.token)) == nil
	}

	if sess.token == "" || env.AuthToken != sess.token {
		return sess.write(env, Status(hllrcon.StatusUnauthorized, "Unauthorized")) == nil
	}

	sess.s.mu.Lock()
	sess.s.requests = append(sess.s.requests, *env)
	h := sess.s.handlers[env.Name]
	sess.s.mu.Unlock()

	reply := Status(hllrcon.StatusBadRequest, "Unknown command")
	if h != nil {
		reply = h(env)
	}

	switch {
	case reply.Kill:
		return false
	case reply.NoReply:
		return true
	case reply.Delay > 0:
		sess.replies.Add(1)
		go func() {
			defer sess.replies.Done()
			time.Sleep(reply.Delay)
			_ = sess.write(env, reply)
		}()
		return true
	}
	return sess.write(env, reply) == nil
}

func (sess *session) write(env *hllrcon.Envelope, reply Reply) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()

	if reply.Raw != nil {
		_, err := sess.nc.Write(reply.Raw)
		return err
	}

	frame, err := sess.codec.EncodeResponse(&hllrcon.Response{
		Token:         env.Token,
		Name:          env.Name,
		Version:       env.Version,
		StatusCode:    reply.Status,
		StatusMessage: reply.Message,
		ContentBody:   reply.Body,
	})
	if err != nil {
		sess.s.t.Errorf("encoding response failed unexpectedly: %s", err)
		return err
	}
	_, err = sess.nc.Write(frame)
	return err
}
