// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package hllrcon

import (
	"context"
	"errors"
	"sync"
	"time"
)

// frameWriter writes a single encoded frame to the wire.
type frameWriter interface {
	writeFrame(frame []byte) error
}

// result is the single outcome delivered to a pending request.
type result struct {
	resp *Response
	err  error
}

// dispatcher multiplexes concurrent requests over one connection. Every request is registered in
// the pending table under its token before it is written, and is removed from the table by exactly
// one of: its response arriving, its timeout elapsing, its context ending, or the connection
// breaking. Whoever removes the entry resolves it.
type dispatcher struct {
	w              frameWriter
	codec          *Codec
	nextToken      func() uint32
	defaultTimeout time.Duration
	logger         Logger
	logAuth        bool
	metrics        *metrics

	// mu guards pending and broken.
	mu      sync.Mutex
	pending map[uint32]chan result

	// broken is the reason the connection broke. Once set, no request is registered again.
	broken error
}

func newDispatcher(w frameWriter, codec *Codec, nextToken func() uint32, defaultTimeout time.Duration, logger Logger, logAuth bool, m *metrics) *dispatcher {
	return &dispatcher{
		w:              w,
		codec:          codec,
		nextToken:      nextToken,
		defaultTimeout: defaultTimeout,
		logger:         logger,
		logAuth:        logAuth,
		metrics:        m,
		pending:        make(map[uint32]chan result),
	}
}

// send writes req and waits for its response, its timeout, the end of ctx, or the connection
// breaking, whichever happens first. The pending entry for req is always gone when send returns.
func (d *dispatcher) send(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timeout := req.Timeout
	if timeout == 0 {
		timeout = d.defaultTimeout
	}

	token := d.nextToken()
	ch := make(chan result, 1)

	d.mu.Lock()
	if d.broken != nil {
		err := d.broken
		d.mu.Unlock()
		return nil, &ConnectionLostError{Err: err}
	}
	d.pending[token] = ch
	d.metrics.pending.Inc()
	d.mu.Unlock()

	frame, err := d.codec.EncodeRequest(token, req)
	if err != nil {
		if d.remove(token) {
			return nil, err
		}
		return d.resolved(ch)
	}

	// Nothing may reach the wire once the caller has given up.
	if err := ctx.Err(); err != nil {
		if d.remove(token) {
			return nil, err
		}
		return d.resolved(ch)
	}

	logRequest(d.logger, d.logAuth, token, req)
	if err := d.w.writeFrame(frame); err != nil {
		if d.remove(token) {
			var lost *ConnectionLostError
			if errors.As(err, &lost) {
				return nil, err
			}
			return nil, &ConnectionLostError{Err: err}
		}
		return d.resolved(ch)
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case res := <-ch:
		return res.resp, res.err

	case <-expired:
		if d.remove(token) {
			d.logger.Debug("request timed out", "token", token, "command", req.Name, "timeout", timeout)
			return nil, &CommandTimeoutError{Command: req.Name, Token: token, Timeout: timeout}
		}
		return d.resolved(ch)

	case <-ctx.Done():
		if d.remove(token) {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, &CommandTimeoutError{Command: req.Name, Token: token}
			}
			return nil, ctx.Err()
		}
		return d.resolved(ch)
	}
}

// resolved returns the outcome already delivered to ch by whoever removed its pending entry.
func (d *dispatcher) resolved(ch chan result) (*Response, error) {
	res := <-ch
	return res.resp, res.err
}

// remove deletes the pending entry for token, reporting whether it was still present. A caller that
// gets true owns the resolution of that request.
func (d *dispatcher) remove(token uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.pending[token]; !ok {
		return false
	}
	delete(d.pending, token)
	d.metrics.pending.Dec()
	return true
}

// route delivers resp to the request waiting on its token. Responses nobody is waiting for are
// discarded.
func (d *dispatcher) route(resp *Response) {
	d.mu.Lock()
	ch, ok := d.pending[resp.Token]
	if ok {
		delete(d.pending, resp.Token)
		d.metrics.pending.Dec()
	}
	d.mu.Unlock()

	if !ok {
		d.metrics.staleResponses.Inc()
		d.logger.Debug("discarding stale response", "token", resp.Token, "command", resp.Name)
		return
	}
	ch <- result{resp: resp}
}

// fail resolves every pending request with a [*ConnectionLostError] wrapping cause, and refuses
// requests registered afterwards. The table is swept in a single critical section. Only the first
// call has any effect.
func (d *dispatcher) fail(cause error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.broken != nil {
		return
	}
	if cause == nil {
		cause = ErrClosed
	}
	d.broken = cause

	for _, ch := range d.pending {
		ch <- result{err: &ConnectionLostError{Err: cause}}
	}
	d.metrics.pending.Sub(float64(len(d.pending)))
	d.pending = make(map[uint32]chan result)
}

// inFlight returns the number of pending requests.
func (d *dispatcher) inFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
