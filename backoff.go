// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package hllrcon

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Backoff defaults used for any zero field of [BackoffConfig].
const (
	DefaultBackoffBaseDelay   = 500 * time.Millisecond
	DefaultBackoffMultiplier  = 2.0
	DefaultBackoffMaxDelay    = 30 * time.Second
	DefaultBackoffJitter      = 0.2
	DefaultBackoffMaxAttempts = 5
)

// BackoffConfig controls the delay between consecutive failed connection attempts. The first
// attempt of a connect cycle is made immediately; each failed attempt after that waits BaseDelay
// multiplied by Multiplier once per earlier failure, capped at MaxDelay, and randomized by Jitter.
// Delays keep growing across connect cycles until a connection succeeds.
type BackoffConfig struct {
	// BaseDelay is the delay after the first failure. Zero means [DefaultBackoffBaseDelay].
	BaseDelay time.Duration

	// Multiplier scales the delay after every further failure. Values below one mean
	// [DefaultBackoffMultiplier].
	Multiplier float64

	// MaxDelay caps every delay, including the randomized one. Zero means
	// [DefaultBackoffMaxDelay].
	MaxDelay time.Duration

	// Jitter randomizes each delay by up to this fraction in either direction. Zero disables
	// randomization; [DefaultConfig] sets it to [DefaultBackoffJitter].
	Jitter float64

	// MaxAttempts is the number of attempts made by a single connect cycle before its last error is
	// surfaced. Zero means [DefaultBackoffMaxAttempts].
	MaxAttempts int
}

func (b BackoffConfig) withDefaults() BackoffConfig {
	if b.BaseDelay <= 0 {
		b.BaseDelay = DefaultBackoffBaseDelay
	}
	if b.Multiplier < 1 {
		b.Multiplier = DefaultBackoffMultiplier
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = DefaultBackoffMaxDelay
	}
	if b.MaxDelay < b.BaseDelay {
		b.MaxDelay = b.BaseDelay
	}
	if b.Jitter < 0 {
		b.Jitter = 0
	}
	if b.Jitter > 1 {
		b.Jitter = 1
	}
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = DefaultBackoffMaxAttempts
	}
	return b
}

// reconnectBackoff is the delay schedule shared by every connect cycle of a client.
type reconnectBackoff struct {
	cfg BackoffConfig

	// mu guards exp. An abandoned connect cycle may still be winding down while a new one starts.
	mu  sync.Mutex
	exp *backoff.ExponentialBackOff
}

func newReconnectBackoff(cfg BackoffConfig) *reconnectBackoff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.BaseDelay
	exp.Multiplier = cfg.Multiplier
	exp.MaxInterval = cfg.MaxDelay
	exp.RandomizationFactor = cfg.Jitter
	exp.Reset()
	return &reconnectBackoff{cfg: cfg, exp: exp}
}

// next returns the delay to wait after a failed attempt.
func (b *reconnectBackoff) next() time.Duration {
	b.mu.Lock()
	d := b.exp.NextBackOff()
	b.mu.Unlock()
	if d > b.cfg.MaxDelay {
		d = b.cfg.MaxDelay
	}
	return d
}

// reset restarts the schedule at the base delay. It is called once a connection succeeds.
func (b *reconnectBackoff) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exp.Reset()
}

// sleepContext waits for d or until ctx ends, whichever is first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
