// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

// Command hllrcon runs Hell Let Loose RCON commands from the shell.
package main

import (
	"context"

	"pkt.systems/psi"
)

func main() {
	psi.Run(func(ctx context.Context) int {
		return submain(ctx)
	})
}
