// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package hllrcon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// DefaultConnectTimeout is the default amount of time allowed for dialing a server and completing
// the handshake.
const DefaultConnectTimeout = 10 * time.Second

// DefaultCommandTimeout is the default amount of time allowed for a command round trip.
const DefaultCommandTimeout = 15 * time.Second

// tracerName is the instrumentation scope of spans created by clients.
const tracerName = "github.com/schultz-is/hllrcon-go"

// connectKey is the single-flight key shared by every connection attempt of a client.
const connectKey = "connect"

// Config contains settings to control [Client] instances.
type Config struct {
	// Host and Port locate the RCON server.
	Host string
	Port int

	// Password is the RCON password sent during login.
	Password string

	// ConnectTimeout limits the time spent dialing and completing the handshake for a single
	// connection attempt. A value of zero means [DefaultConnectTimeout].
	ConnectTimeout time.Duration

	// CommandTimeout is the timeout applied to requests that do not set their own. A value of zero
	// means [DefaultCommandTimeout] and a negative value waits without limit.
	CommandTimeout time.Duration

	// Backoff controls the delays between failed connection attempts.
	Backoff BackoffConfig

	// RetryOnConnectionLost makes a command that fails with a [*ConnectionLostError] reconnect and
	// run once more before the error is surfaced. It is off by default because a command that was
	// already written may have been executed by the server.
	RetryOnConnectionLost bool

	// MaxConcurrentCalls limits the number of calls a [SyncClient] runs at once. Zero or less means
	// no limit.
	MaxConcurrentCalls int

	// Dial opens the transport. When nil, a [net.Dialer] is used.
	Dial DialFunc

	// Logger receives log entries from a client. When nil, nothing is logged.
	Logger Logger

	// LogOutboundAuthPackets is a flag that must be explicitly enabled when the client is created.
	// This field enables debug logging to include outbound login requests, exposing the server
	// password in plaintext. When this field is false (the default value,) outbound login requests
	// are logged with a scrubbed body.
	//
	// WARNING: Only enable this flag if you are aware of the implications and are willing to accept
	// the risks!
	LogOutboundAuthPackets bool

	// Registerer receives the client's Prometheus collectors. When nil, collectors are created but
	// not registered.
	Registerer prometheus.Registerer

	// TracerProvider creates the tracer used for command and connect spans. When nil, the global
	// provider is used.
	TracerProvider trace.TracerProvider
}

// DefaultConfig returns a Config for the given server with every default filled in, including
// backoff jitter.
func DefaultConfig(host string, port int, password string) Config {
	cfg := Config{
		Host:     host,
		Port:     port,
		Password: password,
		Backoff:  BackoffConfig{Jitter: DefaultBackoffJitter},
	}
	return cfg.withDefaults()
}

// Address returns the host:port address of the server.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) validate() error {
	switch {
	case c.Host == "":
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	case c.Port < 1 || c.Port > 65535:
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	case c.Password == "":
		return fmt.Errorf("%w: password is required", ErrInvalidConfig)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	c.Backoff = c.Backoff.withDefaults()
	if c.Dial == nil {
		c.Dial = (&net.Dialer{}).DialContext
	}
	if c.Logger == nil {
		c.Logger = nopLogger{}
	}
	if c.TracerProvider == nil {
		c.TracerProvider = otel.GetTracerProvider()
	}
	return c
}

// Client is an HLL RCON client session. It owns at most one connection at a time and multiplexes
// any number of concurrent commands over it. When the connection breaks, every pending command
// fails with a [*ConnectionLostError] and the next command transparently reconnects, backing off
// between failed attempts.
//
// Clients are safe for concurrent use.
type Client struct {
	id      string
	cfg     Config
	logger  Logger
	metrics *metrics
	tracer  trace.Tracer
	backoff *reconnectBackoff

	// sleep waits between failed connection attempts.
	sleep func(ctx context.Context, d time.Duration) error

	// seq is the source of correlation tokens. It is shared by every connection of the client so
	// that a late response from an earlier connection never matches a newer request.
	seq atomic.Uint32

	flight singleflight.Group

	// routines tracks connect cycles and connection watchers so that Close can wait for them.
	routines sync.WaitGroup

	// mu guards the fields below.
	mu    sync.Mutex
	state ConnectionState
	link  *link
	gen   *generation

	// established is set once the first connection succeeds.
	established bool
}

// link pairs a connection with the dispatcher multiplexing requests over it.
type link struct {
	conn *conn
	disp *dispatcher
}

// generation scopes connection attempts. Disconnect cancels the current generation, abandoning any
// attempt in flight, and starts a new one.
type generation struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func newGeneration() *generation {
	ctx, cancel := context.WithCancel(context.Background())
	return &generation{ctx: ctx, cancel: cancel}
}

// NewClient creates and returns a [Client] configured by cfg. No connection is made until
// [Client.Connect] is called or a command is executed.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	id := xid.New().String()
	c := &Client{
		id:      id,
		cfg:     cfg,
		metrics: newMetrics(cfg.Registerer, id),
		tracer:  cfg.TracerProvider.Tracer(tracerName),
		backoff: newReconnectBackoff(cfg.Backoff),
		sleep:   sleepContext,
		gen:     newGeneration(),
	}
	c.logger = loggerWith(cfg.Logger, "client", id)
	return c, nil
}

// ID returns the unique identifier of the client, as attached to its logs and metrics.
func (c *Client) ID() string {
	return c.id
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.link != nil {
		return c.link.conn.State()
	}
	return c.state
}

// IsConnected reports whether the client currently holds an open connection.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Connect establishes a connection if there is none. If an attempt is already in flight, Connect
// joins it rather than starting another. Failed attempts are retried with backoff until the
// configured number of attempts is exhausted, except for a rejected password, which is returned
// immediately as an [*AuthenticationError].
//
// Cancelling ctx abandons the wait but not the attempt itself, which other callers may be sharing.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.ensure(ctx)
	return err
}

// Disconnect closes the current connection, if any, and abandons any connection attempt in flight.
// Pending commands fail with a [*ConnectionLostError] wrapping [ErrClosed]. The client may be
// connected again afterwards.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.gen.cancel()
	c.gen = newGeneration()
	l := c.link
	c.link = nil
	if l != nil {
		c.setStateLocked(StateClosing)
	}
	c.mu.Unlock()
	c.flight.Forget(connectKey)

	if l != nil {
		l.conn.close()
		l.disp.fail(ErrClosed)
		c.logger.Info("disconnected", "address", c.cfg.Address())
	}

	c.mu.Lock()
	if c.link == nil {
		c.setStateLocked(StateDisconnected)
	}
	c.mu.Unlock()
	return nil
}

// Close disconnects the client and waits for every background goroutine it started to exit. It
// satisfies the [io.Closer] interface.
func (c *Client) Close() error {
	err := c.Disconnect()
	c.routines.Wait()
	return err
}

// track registers a background goroutine working within gen. It reports false, registering
// nothing, when gen is no longer current.
func (c *Client) track(gen *generation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen {
		return false
	}
	c.routines.Add(1)
	return true
}

// WithConnection connects, calls fn, and disconnects again on every exit path, including a panic
// in fn.
func (c *Client) WithConnection(ctx context.Context, fn func(*Client) error) (err error) {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if derr := c.Disconnect(); err == nil {
			err = derr
		}
	}()
	return fn(c)
}

// Do sends req to the server and returns its response, connecting first if necessary. A response
// with a non-200 status is not an error at this level; see [Response.Err] and [Client.Execute].
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "hllrcon.Do",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rcon.command", req.Name),
			attribute.String("rcon.client_id", c.id),
		),
	)
	defer span.End()
	started := time.Now()

	resp, err := c.do(ctx, req)
	if err != nil && c.retryable(ctx, err) {
		c.logger.Warn("retrying command after lost connection", "command", req.Name, "error", err)
		span.AddEvent("retry", trace.WithAttributes(attribute.String("error", err.Error())))
		resp, err = c.do(ctx, req)
	}

	c.metrics.observeCommand(req.Name, started, resp, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("rcon.status_code", int(resp.StatusCode)),
		attribute.Int64("rcon.token", int64(resp.Token)),
	)
	return resp, nil
}

// Execute runs the named command and returns its content body. A non-200 status is returned as a
// [*CommandError].
func (c *Client) Execute(ctx context.Context, name string, version int, body any) (string, error) {
	resp, err := c.Do(ctx, Request{Name: name, Version: version, Body: body})
	if err != nil {
		return "", err
	}
	if err := resp.Err(); err != nil {
		return "", err
	}
	return resp.ContentBody, nil
}

func (c *Client) do(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l, err := c.ensure(ctx)
	if err != nil {
		var authErr *AuthenticationError
		if errors.As(err, &authErr) || ctx.Err() != nil {
			return nil, err
		}
		// The server could not be reached within the connect policy.
		return nil, &ConnectionLostError{Err: err}
	}
	return l.disp.send(ctx, req)
}

// retryable reports whether a failed command may be run once more under the retry policy. A
// command that failed because no connection could be established is not retried.
func (c *Client) retryable(ctx context.Context, err error) bool {
	var (
		lost  *ConnectionLostError
		hsErr *HandshakeError
	)
	return c.cfg.RetryOnConnectionLost &&
		errors.As(err, &lost) &&
		!errors.As(err, &hsErr) &&
		!errors.Is(err, ErrClosed) &&
		ctx.Err() == nil
}

// ensure returns the live link, establishing one if there is none.
func (c *Client) ensure(ctx context.Context) (*link, error) {
	c.mu.Lock()
	l := c.liveLocked()
	gen := c.gen
	c.mu.Unlock()
	if l != nil {
		return l, nil
	}

	ch := c.flight.DoChan(connectKey, func() (any, error) {
		return c.establish(gen)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*link), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// liveLocked returns the current link unless its connection has broken, in which case the link is
// dropped.
func (c *Client) liveLocked() *link {
	if c.link == nil {
		return nil
	}
	select {
	case <-c.link.conn.Done():
		c.link = nil
		c.setStateLocked(StateDisconnected)
		return nil
	default:
		return c.link
	}
}

// establish runs one connect cycle within gen: up to the configured number of attempts, waiting
// out the backoff between them.
func (c *Client) establish(gen *generation) (*link, error) {
	if !c.track(gen) {
		return nil, ErrClosed
	}
	defer c.routines.Done()

	ctx, span := c.tracer.Start(gen.ctx, "hllrcon.connect",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rcon.address", c.cfg.Address()),
			attribute.String("rcon.client_id", c.id),
		),
	)
	defer span.End()

	for attempt := 1; ; attempt++ {
		c.setState(gen, StateConnecting)
		cn, err := openConn(ctx, c.connConfig())
		c.metrics.connectAttempts.WithLabelValues(connectResult(err)).Inc()
		if err == nil {
			l, ok := c.adopt(gen, cn)
			if !ok {
				return nil, ErrClosed
			}
			span.SetAttributes(attribute.Int("rcon.attempts", attempt))
			return l, nil
		}

		span.AddEvent("attempt failed", trace.WithAttributes(
			attribute.Int("rcon.attempt", attempt),
			attribute.String("error", err.Error()),
		))

		var authErr *AuthenticationError
		switch {
		case gen.ctx.Err() != nil:
			return nil, ErrClosed

		case errors.As(err, &authErr):
			c.setState(gen, StateDisconnected)
			c.logger.Error("authentication failed", "address", c.cfg.Address(), "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err

		case attempt >= c.cfg.Backoff.MaxAttempts:
			c.setState(gen, StateDisconnected)
			c.logger.Error("giving up connecting", "address", c.cfg.Address(), "attempts", attempt, "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		delay := c.backoff.next()
		c.logger.Warn("connection attempt failed", "address", c.cfg.Address(), "attempt", attempt, "retry_in", delay, "error", err)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, ErrClosed
		}
	}
}

// adopt starts the read loop of a freshly opened connection and makes it the client's current
// link. It reports false, closing cn, when gen was cancelled in the meantime.
func (c *Client) adopt(gen *generation, cn *conn) (*link, bool) {
	disp := newDispatcher(cn, &cn.codec, c.nextToken, c.cfg.CommandTimeout, c.logger, c.cfg.LogOutboundAuthPackets, c.metrics)
	l := &link{conn: cn, disp: disp}
	cn.start(disp.route)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		cn.close()
		disp.fail(ErrClosed)
		return nil, false
	}
	c.link = l
	c.setStateLocked(StateConnected)
	reconnect := c.established
	c.established = true
	c.routines.Add(1)
	c.mu.Unlock()

	c.backoff.reset()
	if reconnect {
		c.metrics.reconnects.Inc()
	}
	c.logger.Info("connected", "address", c.cfg.Address(), "reconnect", reconnect)

	go c.watch(l)
	return l, true
}

// watch fails every pending request of l once its connection breaks, and drops l from the client.
func (c *Client) watch(l *link) {
	defer c.routines.Done()

	<-l.conn.Done()
	err := l.conn.Err()
	l.disp.fail(err)

	c.mu.Lock()
	if c.link == l {
		c.link = nil
		c.setStateLocked(StateDisconnected)
	}
	c.mu.Unlock()

	if !errors.Is(err, ErrClosed) {
		c.logger.Warn("connection lost", "address", c.cfg.Address(), "error", err)
	}
}

func (c *Client) connConfig() connConfig {
	var writeTimeout time.Duration
	if c.cfg.CommandTimeout > 0 {
		writeTimeout = c.cfg.CommandTimeout
	}
	return connConfig{
		address:         c.cfg.Address(),
		password:        c.cfg.Password,
		connectTimeout:  c.cfg.ConnectTimeout,
		writeTimeout:    writeTimeout,
		dial:            c.cfg.Dial,
		logger:          c.logger,
		logOutboundAuth: c.cfg.LogOutboundAuthPackets,
		nextToken:       c.nextToken,
	}
}

// nextToken returns and then increments the client's token sequence, wrapping around to zero after
// [math.MaxUint32].
func (c *Client) nextToken() uint32 {
	return c.seq.Add(1) - 1
}

// setState records s as the client state if gen is still current.
func (c *Client) setState(gen *generation, s ConnectionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen {
		c.setStateLocked(s)
	}
}

func (c *Client) setStateLocked(s ConnectionState) {
	c.state = s
	c.metrics.state.Set(float64(s))
}
