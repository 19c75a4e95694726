// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package hllrcon

import (
	"context"
	"encoding/base64"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// ConnectionState describes where a connection is in its lifecycle.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateAuthenticating
	StateConnected
	StateClosing
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

// DialFunc opens the transport to an RCON server. It has the signature of
// [net.Dialer.DialContext], which is what clients use unless configured otherwise.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Handshake command names.
const (
	serverConnectCommand = "ServerConnect"
)

// readChunkSize is the size of a single read from the socket. Frames larger than this are
// reassembled across reads.
const readChunkSize = 4096

type connConfig struct {
	address         string
	password        string
	connectTimeout  time.Duration
	writeTimeout    time.Duration
	dial            DialFunc
	logger          Logger
	logOutboundAuth bool
	nextToken       func() uint32
}

// conn owns a single socket to an RCON server. It performs the handshake, then runs a read loop
// that decodes every inbound frame and hands the response to a sink. Writes are serialized so
// that frames never interleave.
type conn struct {
	cfg   connConfig
	nc    net.Conn
	codec Codec
	state atomic.Int32

	// writeMu serializes frame writes onto nc.
	writeMu sync.Mutex

	// rbuf holds bytes read from nc that have not yet been decoded into a response. It is only
	// touched by the handshake and then by the read loop.
	rbuf  []byte
	chunk []byte

	closeOnce sync.Once
	done      chan struct{}

	// err is the cause of the connection closing. It is written once before done is closed.
	err error

	loopDone chan struct{}
}

// openConn dials the server and performs the ServerConnect and Login handshake. The connect timeout
// bounds the dial and the handshake together. On success the returned conn is connected but its
// read loop has not yet been started; see [conn.start].
func openConn(ctx context.Context, cfg connConfig) (*conn, error) {
	c := &conn{
		cfg:   cfg,
		chunk: make([]byte, readChunkSize),
		done:  make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))

	hctx := ctx
	if cfg.connectTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, cfg.connectTimeout)
		defer cancel()
	}

	nc, err := cfg.dial(hctx, "tcp", cfg.address)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &HandshakeError{Stage: "dial", Err: err}
	}
	c.nc = nc

	if err := c.handshake(hctx); err != nil {
		c.closeWith(err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	c.state.Store(int32(StateConnected))
	return c, nil
}

func (c *conn) handshake(ctx context.Context) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.nc.SetDeadline(deadline)
	}
	// Unblock any in-progress read or write as soon as the context ends.
	stop := context.AfterFunc(ctx, func() {
		_ = c.nc.SetDeadline(time.Now())
	})

	resp, err := c.roundTrip(Request{Name: serverConnectCommand, Version: ProtocolVersion}, "connect")
	if err != nil {
		stop()
		return err
	}
	if resp.StatusCode != StatusOK {
		stop()
		return &HandshakeError{Stage: "connect", StatusCode: resp.StatusCode}
	}
	key, err := base64.StdEncoding.DecodeString(resp.ContentBody)
	if err != nil {
		stop()
		return &HandshakeError{Stage: "connect", Err: err}
	}
	c.codec.SetKey(key)

	c.state.Store(int32(StateAuthenticating))
	resp, err = c.roundTrip(Request{Name: loginCommand, Version: ProtocolVersion, Body: c.cfg.password}, "login")
	if err != nil {
		stop()
		return err
	}
	switch resp.StatusCode {
	case StatusOK:
	case StatusUnauthorized:
		stop()
		return &AuthenticationError{Message: resp.StatusMessage}
	default:
		stop()
		return &HandshakeError{Stage: "login", StatusCode: resp.StatusCode}
	}
	c.codec.SetAuthToken(resp.ContentBody)

	if !stop() {
		return &HandshakeError{Stage: "login", Err: ctx.Err()}
	}
	if err := c.nc.SetDeadline(time.Time{}); err != nil {
		return &HandshakeError{Stage: "login", Err: err}
	}
	return nil
}

// roundTrip writes a single handshake request and reads responses until the one carrying its token
// arrives.
func (c *conn) roundTrip(req Request, stage string) (*Response, error) {
	token := c.cfg.nextToken()
	logRequest(c.cfg.logger, c.cfg.logOutboundAuth, token, req)

	frame, err := c.codec.EncodeRequest(token, req)
	if err != nil {
		return nil, &HandshakeError{Stage: stage, Err: err}
	}
	if _, err := c.nc.Write(frame); err != nil {
		return nil, &HandshakeError{Stage: stage, Err: err}
	}

	for {
		resp, err := c.readResponse()
		if err != nil {
			return nil, &HandshakeError{Stage: stage, Err: err}
		}
		logResponse(c.cfg.logger, resp)
		if resp.Token == token {
			return resp, nil
		}
		c.cfg.logger.Debug("discarding unexpected handshake response", "token", resp.Token, "expected", token)
	}
}

// readResponse returns the next response on the stream, reading from the socket until a complete
// frame is buffered.
func (c *conn) readResponse() (*Response, error) {
	var readErr error
	for {
		resp, n, err := c.codec.DecodeResponse(c.rbuf)
		switch {
		case err == nil:
			c.rbuf = c.rbuf[n:]
			return resp, nil
		case !errors.Is(err, ErrShortFrame):
			return nil, err
		case readErr != nil:
			return nil, readErr
		}

		var m int
		m, readErr = c.nc.Read(c.chunk)
		c.rbuf = append(c.rbuf, c.chunk[:m]...)
	}
}

// start launches the read loop, handing every decoded response to sink. sink is called from the
// read loop goroutine and must not block.
func (c *conn) start(sink func(*Response)) {
	c.loopDone = make(chan struct{})
	go c.readLoop(sink)
}

func (c *conn) readLoop(sink func(*Response)) {
	defer close(c.loopDone)

	for {
		resp, err := c.readResponse()
		if err != nil {
			var malformed *MalformedFrameError
			if errors.As(err, &malformed) {
				c.cfg.logger.Error("closing connection after malformed frame", "error", err)
			}
			c.closeWith(err)
			return
		}
		logResponse(c.cfg.logger, resp)
		sink(resp)
	}
}

// writeFrame writes a single encoded frame. A failed write breaks the connection.
func (c *conn) writeFrame(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return &ConnectionLostError{Err: c.err}
	default:
	}

	if c.cfg.writeTimeout > 0 {
		_ = c.nc.SetWriteDeadline(time.Now().Add(c.cfg.writeTimeout))
	}
	if _, err := c.nc.Write(frame); err != nil {
		c.closeWith(err)
		return &ConnectionLostError{Err: err}
	}
	return nil
}

// closeWith closes the socket and signals done, recording cause as the reason. Only the first call
// has any effect.
func (c *conn) closeWith(cause error) {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosing))
		c.err = cause
		_ = c.nc.Close()
		c.state.Store(int32(StateDisconnected))
		close(c.done)
	})
}

// close closes the connection and waits for the read loop to exit. It is safe to call more than
// once.
func (c *conn) close() {
	c.closeWith(ErrClosed)
	if c.loopDone != nil {
		<-c.loopDone
	}
}

// Done returns a channel that is closed once the connection is broken or closed.
func (c *conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the connection closed, or nil while it is still open.
func (c *conn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// State returns the current state of the connection.
func (c *conn) State() ConnectionState {
	return ConnectionState(c.state.Load())
}
