// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package hllrcon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

var (
	// ErrClosed is returned when an operation is attempted on a client or connection that has been
	// explicitly closed, and by calls that were cancelled because of a close.
	ErrClosed = errors.New("hllrcon: closed")

	// ErrInvalidConfig is wrapped by every configuration validation error returned from
	// [NewClient].
	ErrInvalidConfig = errors.New("hllrcon: invalid config")
)

// AuthenticationError indicates the server rejected the configured password. It is never retried by
// the reconnect loop; the caller must fix the credential and connect again.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	if e.Message == "" {
		return "hllrcon: authentication failed"
	}
	return "hllrcon: authentication failed: " + e.Message
}

// HandshakeError indicates a transient failure while dialing the server or performing the key
// exchange and login. The reconnect loop retries these with backoff.
type HandshakeError struct {
	// Stage names the step that failed: "dial", "connect" or "login".
	Stage string

	// StatusCode holds the server's status when the failure was a non-200 response, and zero
	// otherwise.
	StatusCode StatusCode

	// Err is the underlying cause, when there is one.
	Err error
}

func (e *HandshakeError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("hllrcon: handshake %s failed: %s", e.Stage, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("hllrcon: handshake %s failed: status %s", e.Stage, e.StatusCode)
	}
	return fmt.Sprintf("hllrcon: handshake %s failed", e.Stage)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the handshake failed because a deadline was exceeded.
func (e *HandshakeError) Timeout() bool {
	var ne net.Error
	if errors.As(e.Err, &ne) {
		return ne.Timeout()
	}
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// MalformedFrameError indicates bytes received from the server could not be decoded. It is fatal
// for the connection that read them.
type MalformedFrameError struct {
	Reason string
	Err    error
}

func (e *MalformedFrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("hllrcon: malformed frame: %s: %s", e.Reason, e.Err)
	}
	return "hllrcon: malformed frame: " + e.Reason
}

func (e *MalformedFrameError) Unwrap() error {
	return e.Err
}

// CommandTimeoutError indicates a single request did not receive its response in time. Other
// requests sharing the connection are unaffected.
type CommandTimeoutError struct {
	Command string
	Token   uint32
	Timeout time.Duration
}

func (e *CommandTimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("hllrcon: command %s (token %d) timed out after %s", e.Command, e.Token, e.Timeout)
	}
	return fmt.Sprintf("hllrcon: command %s (token %d) timed out", e.Command, e.Token)
}

// Is allows a CommandTimeoutError to match [context.DeadlineExceeded].
func (e *CommandTimeoutError) Is(target error) bool {
	return target == context.DeadlineExceeded
}

// Timeout always returns true. It satisfies the timeout half of [net.Error].
func (e *CommandTimeoutError) Timeout() bool {
	return true
}

// ConnectionLostError indicates the connection broke while a request was pending or being written.
type ConnectionLostError struct {
	Err error
}

func (e *ConnectionLostError) Error() string {
	if e.Err != nil {
		return "hllrcon: connection lost: " + e.Err.Error()
	}
	return "hllrcon: connection lost"
}

func (e *ConnectionLostError) Unwrap() error {
	return e.Err
}

// CommandError is returned when the server answers a command with a status other than
// [StatusOK].
type CommandError struct {
	Command    string
	StatusCode StatusCode
	Message    string
}

func (e *CommandError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("hllrcon: command %s failed with status %s: %s", e.Command, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("hllrcon: command %s failed with status %s", e.Command, e.StatusCode)
}

// IsStatus reports whether err is a [*CommandError] carrying the given status code.
func IsStatus(err error, code StatusCode) bool {
	var ce *CommandError
	return errors.As(err, &ce) && ce.StatusCode == code
}
