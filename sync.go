// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package hllrcon

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// SyncClient is a blocking facade over a [Client] for callers that do not manage contexts. The
// client is owned by a background goroutine; every call is handed to it over a channel and its
// result is handed back, so the caller never touches the client directly. Calls run concurrently
// on a goroutine group owned by the facade.
//
// A SyncClient must be closed with [SyncClient.Close] to release its goroutines.
type SyncClient struct {
	client *Client

	// ctx is cancelled by Close, cancelling every call in flight.
	ctx    context.Context
	cancel context.CancelFunc

	ops      chan func(ctx context.Context, c *Client)
	group    errgroup.Group
	loopDone chan struct{}

	// mu guards closed. Submissions hold it for reading so that Close can wait them out.
	mu     sync.RWMutex
	closed bool

	closeOnce sync.Once
	closeErr  error
}

// Call is an asynchronous request submitted with [SyncClient.Go].
type Call struct {
	Request  Request
	Response *Response
	Error    error

	// Done receives the call itself once it has completed.
	Done chan *Call
}

func (call *Call) done() {
	select {
	case call.Done <- call:
	default:
	}
}

// NewSyncClient creates a [SyncClient] around a new [Client] configured by cfg and starts its
// background goroutine.
func NewSyncClient(cfg Config) (*SyncClient, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &SyncClient{
		client:   client,
		ctx:      ctx,
		cancel:   cancel,
		ops:      make(chan func(context.Context, *Client)),
		loopDone: make(chan struct{}),
	}
	if client.cfg.MaxConcurrentCalls > 0 {
		s.group.SetLimit(client.cfg.MaxConcurrentCalls)
	}
	go s.loop()
	return s, nil
}

// loop hands every submitted operation to the call group until the facade is closed.
func (s *SyncClient) loop() {
	defer close(s.loopDone)

	for {
		select {
		case <-s.ctx.Done():
			return
		case op := <-s.ops:
			s.group.Go(func() error {
				op(s.ctx, s.client)
				return nil
			})
		}
	}
}

// submit hands op to the background goroutine. It fails with [ErrClosed] once the facade is
// closed.
func (s *SyncClient) submit(op func(ctx context.Context, c *Client)) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	select {
	case s.ops <- op:
		return nil
	case <-s.ctx.Done():
		return ErrClosed
	}
}

// call runs fn on the background goroutine and blocks until it returns.
func (s *SyncClient) call(fn func(ctx context.Context, c *Client) error) error {
	errc := make(chan error, 1)
	err := s.submit(func(ctx context.Context, c *Client) {
		errc <- closedError(ctx, fn(ctx, c))
	})
	if err != nil {
		return err
	}
	return <-errc
}

// closedError marks err as caused by the facade closing when ctx was cancelled.
func closedError(ctx context.Context, err error) error {
	if err == nil || ctx.Err() == nil || errors.Is(err, ErrClosed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrClosed, err)
}

// Client returns the underlying client. It is intended for inspection, such as reading its ID or
// state; commands should go through the facade.
func (s *SyncClient) Client() *Client {
	return s.client
}

// Connect blocks until the client is connected. See [Client.Connect].
func (s *SyncClient) Connect() error {
	return s.call(func(ctx context.Context, c *Client) error {
		return c.Connect(ctx)
	})
}

// Disconnect closes the current connection. See [Client.Disconnect].
func (s *SyncClient) Disconnect() error {
	return s.call(func(_ context.Context, c *Client) error {
		return c.Disconnect()
	})
}

// IsConnected reports whether the client holds an open connection. It returns false once the
// facade is closed.
func (s *SyncClient) IsConnected() bool {
	var connected bool
	err := s.call(func(_ context.Context, c *Client) error {
		connected = c.IsConnected()
		return nil
	})
	return err == nil && connected
}

// Do sends req and blocks until its response arrives. See [Client.Do].
func (s *SyncClient) Do(req Request) (*Response, error) {
	call := <-s.Go(req).Done
	return call.Response, call.Error
}

// Execute runs the named command and blocks until its content body arrives. See
// [Client.Execute].
func (s *SyncClient) Execute(name string, version int, body any) (string, error) {
	var content string
	err := s.call(func(ctx context.Context, c *Client) (err error) {
		content, err = c.Execute(ctx, name, version, body)
		return err
	})
	return content, err
}

// Run executes cmd and blocks until its content body arrives. See [Client.Run].
func (s *SyncClient) Run(cmd Command) (string, error) {
	req := NewRequest(cmd)
	return s.Execute(req.Name, req.Version, req.Body)
}

// Go submits req without waiting for it. The returned call's Done channel receives the call once
// its Response or Error is set.
func (s *SyncClient) Go(req Request) *Call {
	call := &Call{Request: req, Done: make(chan *Call, 1)}
	err := s.submit(func(ctx context.Context, c *Client) {
		resp, err := c.Do(ctx, req)
		call.Response, call.Error = resp, closedError(ctx, err)
		call.done()
	})
	if err != nil {
		call.Error = err
		call.done()
	}
	return call
}

// WithConnection connects, calls fn, and disconnects again on every exit path, including a panic
// in fn.
func (s *SyncClient) WithConnection(fn func(*SyncClient) error) (err error) {
	if err := s.Connect(); err != nil {
		return err
	}
	defer func() {
		if derr := s.Disconnect(); err == nil && !errors.Is(derr, ErrClosed) {
			err = derr
		}
	}()
	return fn(s)
}

// Close cancels every call in flight, waits for the background goroutine and every call to
// return, and closes the client. Calls in flight and calls made afterwards fail with
// [ErrClosed]. Close is safe to call more than once.
func (s *SyncClient) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		<-s.loopDone
		_ = s.group.Wait()
		s.closeErr = s.client.Close()
	})
	return s.closeErr
}
