// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package hllrcon

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsNamespace is the namespace of every Prometheus collector registered by a client.
const MetricsNamespace = "hllrcon"

// Command outcomes recorded by the commands_total counter.
const (
	outcomeOK             = "ok"
	outcomeStatus         = "status_error"
	outcomeTimeout        = "timeout"
	outcomeConnectionLost = "connection_lost"
	outcomeCanceled       = "canceled"
	outcomeError          = "error"
)

// metrics holds the Prometheus collectors of a single client. Every collector carries a constant
// "client" label with the client ID so that several clients can share a registerer.
type metrics struct {
	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	pending         prometheus.Gauge
	staleResponses  prometheus.Counter
	connectAttempts *prometheus.CounterVec
	reconnects      prometheus.Counter
	state           prometheus.Gauge
}

// newMetrics creates the client collectors and registers them on reg. A nil reg leaves the
// collectors unregistered.
func newMetrics(reg prometheus.Registerer, clientID string) *metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"client": clientID}

	return &metrics{
		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   MetricsNamespace,
			Name:        "commands_total",
			Help:        "Total number of commands executed, by command and outcome",
			ConstLabels: labels,
		}, []string{"command", "outcome"}),

		commandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   MetricsNamespace,
			Name:        "command_duration_seconds",
			Help:        "Command round trip duration in seconds",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"command"}),

		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   MetricsNamespace,
			Name:        "pending_requests",
			Help:        "Number of requests awaiting a response",
			ConstLabels: labels,
		}),

		staleResponses: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   MetricsNamespace,
			Name:        "stale_responses_total",
			Help:        "Total number of responses discarded because no request was waiting for them",
			ConstLabels: labels,
		}),

		connectAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   MetricsNamespace,
			Name:        "connect_attempts_total",
			Help:        "Total number of connection attempts, by result",
			ConstLabels: labels,
		}, []string{"result"}),

		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   MetricsNamespace,
			Name:        "reconnects_total",
			Help:        "Total number of successful connections after the first",
			ConstLabels: labels,
		}),

		state: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   MetricsNamespace,
			Name:        "connection_state",
			Help:        "Current connection state (0 disconnected, 1 connecting, 2 authenticating, 3 connected, 4 closing)",
			ConstLabels: labels,
		}),
	}
}

// observeCommand records the outcome and duration of a single command.
func (m *metrics) observeCommand(command string, started time.Time, resp *Response, err error) {
	m.commandDuration.WithLabelValues(command).Observe(time.Since(started).Seconds())
	m.commandsTotal.WithLabelValues(command, commandOutcome(resp, err)).Inc()
}

func commandOutcome(resp *Response, err error) string {
	var (
		timeoutErr *CommandTimeoutError
		lostErr    *ConnectionLostError
	)
	switch {
	case err == nil && resp != nil && resp.StatusCode != StatusOK:
		return outcomeStatus
	case err == nil:
		return outcomeOK
	case errors.As(err, &timeoutErr):
		return outcomeTimeout
	case errors.As(err, &lostErr):
		return outcomeConnectionLost
	case errors.Is(err, context.Canceled), errors.Is(err, ErrClosed):
		return outcomeCanceled
	}
	return outcomeError
}

// connectResult names the result label of a connection attempt.
func connectResult(err error) string {
	var authErr *AuthenticationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &authErr):
		return "auth_failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "transient"
}
