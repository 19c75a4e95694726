// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package hllrcon

import (
	"context"
	"time"
)

// SetSleep replaces the wait between failed connection attempts of c.
func SetSleep(c *Client, sleep func(ctx context.Context, d time.Duration) error) {
	c.sleep = sleep
}

// InFlight returns the number of requests pending on the current connection of c.
func InFlight(c *Client) int {
	c.mu.Lock()
	l := c.link
	c.mu.Unlock()
	if l == nil {
		return 0
	}
	return l.disp.inFlight()
}

// NextToken returns the token the next request of c will carry.
func NextToken(c *Client) uint32 {
	return c.seq.Load()
}
