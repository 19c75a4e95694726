// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package hllrcon

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the size of the fixed header that precedes every frame body. Four bytes are
// accounted for by the token and four by the body length, both little-endian unsigned integers.
const HeaderSize = 4 + 4

// MaxBodySize is the largest body length a frame header may declare. Frames that declare a larger
// body are treated as malformed rather than buffered.
const MaxBodySize = 16 << 20

// ErrShortFrame is returned by [DecodeFrame] when the provided bytes do not yet hold a complete
// frame. Callers should read more bytes and try again.
var ErrShortFrame = errors.New("hllrcon: short frame")

// Frame is a singular HLL RCON v2 frame, either as a request from a client or a response from a
// server. The body of a frame is opaque at this layer; see [Codec] for the JSON and obfuscation
// layers applied on top of it.
type Frame struct {
	// Token is chosen by the client to correlate a request with its response. Servers echo the
	// token of the request being answered.
	Token uint32

	// Body holds the frame payload exactly as it is written to or read from the wire. Once a
	// connection has completed its handshake, this is XOR-obfuscated JSON.
	Body []byte
}

// MarshalBinary encodes the receiving [Frame] into binary form and returns the result. This
// satisfies the [encoding.BinaryMarshaler] interface.
func (f Frame) MarshalBinary() ([]byte, error) {
	if len(f.Body) > MaxBodySize {
		return nil, &MalformedFrameError{Reason: fmt.Sprintf("body of %d bytes exceeds maximum of %d", len(f.Body), MaxBodySize)}
	}

	b := make([]byte, HeaderSize, HeaderSize+len(f.Body))
	binary.LittleEndian.PutUint32(b[0:4], f.Token)
	binary.LittleEndian.PutUint32(b[4:8], uint32(len(f.Body)))
	return append(b, f.Body...), nil
}

// WriteTo writes a binary representation of the frame to [io.Writer] w. This method satisfies the
// [io.WriterTo] interface.
func (f Frame) WriteTo(w io.Writer) (int64, error) {
	bs, err := f.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(bs)

	return int64(n), err
}

// UnmarshalBinary decodes the binary encoded frame b into the receiving [Frame]. Trailing bytes
// beyond the declared body length are rejected. This satisfies the [encoding.BinaryUnmarshaler]
// interface.
func (f *Frame) UnmarshalBinary(b []byte) error {
	frame, n, err := DecodeFrame(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return &MalformedFrameError{Reason: fmt.Sprintf("%d trailing bytes after frame", len(b)-n)}
	}
	*f = frame
	return nil
}

// ReadFrom reads a binary representation of a frame into the receiving [Frame] instance, blocking
// until the whole frame has arrived. This method satisfies the [io.ReaderFrom] interface.
func (f *Frame) ReadFrom(r io.Reader) (int64, error) {
	n := int64(0)

	header := make([]byte, HeaderSize)
	m, err := io.ReadFull(r, header)
	n += int64(m)
	if err != nil {
		return n, err
	}

	size := binary.LittleEndian.Uint32(header[4:8])
	if size > MaxBodySize {
		return n, &MalformedFrameError{Reason: fmt.Sprintf("declared body of %d bytes exceeds maximum of %d", size, MaxBodySize)}
	}

	body := make([]byte, size)
	m, err = io.ReadFull(r, body)
	n += int64(m)
	if err != nil {
		return n, err
	}

	f.Token = binary.LittleEndian.Uint32(header[0:4])
	f.Body = body
	return n, nil
}

// EqualTo determines if the provided Frame content matches the receiving Frame content.
func (f Frame) EqualTo(f2 Frame) bool {
	return f.Token == f2.Token && bytes.Equal(f.Body, f2.Body)
}

// DecodeFrame decodes the first frame held in b, returning it along with the number of bytes it
// consumed. When b holds only part of a frame, [ErrShortFrame] is returned and nothing is
// consumed. A header declaring a body larger than [MaxBodySize] yields a [*MalformedFrameError]
// as soon as the header is available, without waiting for the body.
//
// The returned frame body aliases b.
func DecodeFrame(b []byte) (Frame, int, error) {
	if len(b) < HeaderSize {
		return Frame{}, 0, ErrShortFrame
	}

	size := binary.LittleEndian.Uint32(b[4:8])
	if size > MaxBodySize {
		return Frame{}, 0, &MalformedFrameError{Reason: fmt.Sprintf("declared body of %d bytes exceeds maximum of %d", size, MaxBodySize)}
	}

	end := HeaderSize + int(size)
	if len(b) < end {
		return Frame{}, 0, ErrShortFrame
	}

	return Frame{
		Token: binary.LittleEndian.Uint32(b[0:4]),
		Body:  b[HeaderSize:end],
	}, end, nil
}

// xor applies the repeating key to b, writing the result to a new slice. The key index restarts at
// zero for every call, so every frame body is obfuscated independently. An empty key is the
// identity.
func xor(key, b []byte) []byte {
	out := make([]byte, len(b))
	if len(key) == 0 {
		copy(out, b)
		return out
	}
	for i := range b {
		out[i] = b[i] ^ key[i%len(key)]
	}
	return out
}
