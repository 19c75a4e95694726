// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

/*
Package hllrcon provides a client for the Hell Let Loose RCON v2 protocol.

A connection begins with a handshake: the client requests an XOR key with ServerConnect, then
logs in with the server password and receives an auth token. Every frame after that carries an
XOR-obfuscated JSON body, and every request carries the auth token. Requests are correlated with
their responses by a client-chosen token, so any number of commands may be in flight on a single
connection and their responses may arrive in any order.

[Client] owns at most one connection at a time. It connects on first use, fails every pending
command with a [*ConnectionLostError] when the connection breaks, and reconnects with exponential
backoff on the next command. [SyncClient] wraps a Client for callers that prefer blocking calls.

The [Frame] and [Codec] types expose the wire format directly for callers that want to run their
own transport.
*/
package hllrcon
