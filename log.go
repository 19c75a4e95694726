// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package hllrcon

// Logger receives log output from a client. It is satisfied by [*log/slog.Logger] as well as by
// structured loggers that accept alternating key and value arguments.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// loginCommand is the handshake command that carries the server password.
const loginCommand = "Login"

// logRequest sends a debug record describing an outbound request. If the request is an outbound
// login, its body is scrubbed to prevent leaking a plaintext password into logs unless
// logOutboundAuth is set.
func logRequest(logger Logger, logOutboundAuth bool, token uint32, req Request) {
	body, err := requestBody(req.Body)
	if err != nil {
		logger.Error("failed to render request body for logging", "token", token, "command", req.Name, "error", err)
		return
	}
	if req.Name == loginCommand && !logOutboundAuth {
		body = "xxxxx"
	}
	logger.Debug("sending request", "token", token, "command", req.Name, "version", req.Version, "body", body)
}

// logResponse sends a debug record describing an inbound response.
func logResponse(logger Logger, resp *Response) {
	logger.Debug("received response",
		"token", resp.Token,
		"command", resp.Name,
		"status", int(resp.StatusCode),
		"message", resp.StatusMessage,
		"body_len", len(resp.ContentBody),
	)
}

// prefixedLogger attaches a fixed set of key and value pairs to every record.
type prefixedLogger struct {
	l       Logger
	keyvals []any
}

// loggerWith returns a Logger that prepends keyvals to the pairs of every record logged through l.
func loggerWith(l Logger, keyvals ...any) Logger {
	if _, ok := l.(nopLogger); ok {
		return l
	}
	return prefixedLogger{l: l, keyvals: keyvals}
}

func (p prefixedLogger) with(keyvals []any) []any {
	out := make([]any, 0, len(p.keyvals)+len(keyvals))
	out = append(out, p.keyvals...)
	return append(out, keyvals...)
}

func (p prefixedLogger) Debug(msg string, keyvals ...any) { p.l.Debug(msg, p.with(keyvals)...) }
func (p prefixedLogger) Info(msg string, keyvals ...any)  { p.l.Info(msg, p.with(keyvals)...) }
func (p prefixedLogger) Warn(msg string, keyvals ...any)  { p.l.Warn(msg, p.with(keyvals)...) }
func (p prefixedLogger) Error(msg string, keyvals ...any) { p.l.Error(msg, p.with(keyvals)...) }
