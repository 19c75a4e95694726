// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package hllrcon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ProtocolVersion is the command version used by the handshake and by most commands.
const ProtocolVersion = 2

// StatusCode is the status a server attaches to every response.
type StatusCode int

const (
	StatusOK            StatusCode = 200
	StatusBadRequest    StatusCode = 400
	StatusUnauthorized  StatusCode = 401
	StatusInternalError StatusCode = 500
)

func (s StatusCode) String() string {
	switch s {
	case StatusOK:
		return "200 OK"
	case StatusBadRequest:
		return "400 Bad Request"
	case StatusUnauthorized:
		return "401 Unauthorized"
	case StatusInternalError:
		return "500 Internal Error"
	}
	return strconv.Itoa(int(s))
}

// Request is a single command to be executed by the server.
type Request struct {
	// Name is the command name, such as "ServerBroadcast".
	Name string

	// Version is the command version. A value of zero is sent as [ProtocolVersion].
	Version int

	// Body is the command payload. Strings and byte slices are sent verbatim, nil is sent as an
	// empty body, and anything else is JSON encoded.
	Body any

	// Timeout limits how long the request waits for its response. Zero means the client's
	// configured command timeout, and a negative value waits without limit, bounded only by the
	// context passed alongside the request.
	Timeout time.Duration
}

// Response is a decoded server response.
type Response struct {
	Token         uint32
	Name          string
	Version       int
	StatusCode    StatusCode
	StatusMessage string

	// ContentBody is the response payload. Most commands return JSON text here.
	ContentBody string
}

// Err returns a [*CommandError] when the response status is anything other than [StatusOK], and
// nil otherwise.
func (r *Response) Err() error {
	if r.StatusCode == StatusOK {
		return nil
	}
	return &CommandError{Command: r.Name, StatusCode: r.StatusCode, Message: r.StatusMessage}
}

// Unmarshal decodes the JSON content body of the response into v.
func (r *Response) Unmarshal(v any) error {
	if err := json.Unmarshal([]byte(r.ContentBody), v); err != nil {
		return fmt.Errorf("hllrcon: decoding %s response: %w", r.Name, err)
	}
	return nil
}

// Envelope is a request frame as seen by a server: the decoded request along with the auth token
// the client attached to it.
type Envelope struct {
	Token       uint32
	AuthToken   string
	Name        string
	Version     int
	ContentBody string
}

type wireRequest struct {
	AuthToken   string `json:"authToken"`
	Version     int    `json:"version"`
	Name        string `json:"name"`
	ContentBody string `json:"contentBody"`
}

type wireResponse struct {
	Name          string          `json:"name"`
	Version       int             `json:"version"`
	StatusCode    *int            `json:"statusCode"`
	StatusMessage string          `json:"statusMessage"`
	ContentBody   json.RawMessage `json:"contentBody"`
}

// Codec converts between requests and responses and their wire frames. It owns the obfuscation
// key and auth token negotiated during the handshake. A Codec is not safe for concurrent
// mutation; both values are set during the handshake, before the codec is shared.
type Codec struct {
	key       []byte
	authToken string
}

// SetKey sets the XOR key applied to every frame body encoded or decoded afterwards. An empty key
// disables obfuscation.
func (c *Codec) SetKey(key []byte) {
	c.key = bytes.Clone(key)
}

// SetAuthToken sets the auth token attached to every request encoded afterwards.
func (c *Codec) SetAuthToken(token string) {
	c.authToken = token
}

// EncodeRequest encodes req into a complete wire frame carrying the given correlation token.
func (c *Codec) EncodeRequest(token uint32, req Request) ([]byte, error) {
	body, err := requestBody(req.Body)
	if err != nil {
		return nil, fmt.Errorf("hllrcon: encoding %s body: %w", req.Name, err)
	}
	version := req.Version
	if version == 0 {
		version = ProtocolVersion
	}

	js, err := json.Marshal(wireRequest{
		AuthToken:   c.authToken,
		Version:     version,
		Name:        req.Name,
		ContentBody: body,
	})
	if err != nil {
		return nil, err
	}
	return Frame{Token: token, Body: xor(c.key, js)}.MarshalBinary()
}

// DecodeResponse decodes the first response frame held in b, returning it along with the number of
// bytes consumed. It returns [ErrShortFrame] when b holds only part of a frame and a
// [*MalformedFrameError] when the frame cannot be decoded.
func (c *Codec) DecodeResponse(b []byte) (*Response, int, error) {
	frame, n, err := DecodeFrame(b)
	if err != nil {
		return nil, 0, err
	}

	var w wireResponse
	if err := json.Unmarshal(xor(c.key, frame.Body), &w); err != nil {
		return nil, n, &MalformedFrameError{Reason: fmt.Sprintf("token %d: invalid response body", frame.Token), Err: err}
	}
	if w.StatusCode == nil {
		return nil, n, &MalformedFrameError{Reason: fmt.Sprintf("token %d: response without status code", frame.Token)}
	}
	content, err := contentString(w.ContentBody)
	if err != nil {
		return nil, n, &MalformedFrameError{Reason: fmt.Sprintf("token %d: invalid content body", frame.Token), Err: err}
	}

	return &Response{
		Token:         frame.Token,
		Name:          w.Name,
		Version:       w.Version,
		StatusCode:    StatusCode(*w.StatusCode),
		StatusMessage: w.StatusMessage,
		ContentBody:   content,
	}, n, nil
}

// EncodeResponse encodes resp into a complete wire frame. It is the server side counterpart of
// [Codec.DecodeResponse].
func (c *Codec) EncodeResponse(resp *Response) ([]byte, error) {
	status := int(resp.StatusCode)
	content, err := json.Marshal(resp.ContentBody)
	if err != nil {
		return nil, err
	}
	js, err := json.Marshal(wireResponse{
		Name:          resp.Name,
		Version:       resp.Version,
		StatusCode:    &status,
		StatusMessage: resp.StatusMessage,
		ContentBody:   content,
	})
	if err != nil {
		return nil, err
	}
	return Frame{Token: resp.Token, Body: xor(c.key, js)}.MarshalBinary()
}

// DecodeRequest decodes the first request frame held in b. It is the server side counterpart of
// [Codec.EncodeRequest].
func (c *Codec) DecodeRequest(b []byte) (*Envelope, int, error) {
	frame, n, err := DecodeFrame(b)
	if err != nil {
		return nil, 0, err
	}

	var w wireRequest
	if err := json.Unmarshal(xor(c.key, frame.Body), &w); err != nil {
		return nil, n, &MalformedFrameError{Reason: fmt.Sprintf("token %d: invalid request body", frame.Token), Err: err}
	}
	if w.Name == "" {
		return nil, n, &MalformedFrameError{Reason: fmt.Sprintf("token %d: request without name", frame.Token)}
	}

	return &Envelope{
		Token:       frame.Token,
		AuthToken:   w.AuthToken,
		Name:        w.Name,
		Version:     w.Version,
		ContentBody: w.ContentBody,
	}, n, nil
}

// requestBody renders a request payload as the string carried in the contentBody field.
func requestBody(body any) (string, error) {
	switch b := body.(type) {
	case nil:
		return "", nil
	case string:
		return b, nil
	case []byte:
		return string(b), nil
	case json.RawMessage:
		return string(b), nil
	}
	js, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	return string(js), nil
}

// contentString flattens a response contentBody. Servers send a JSON string, but some builds send
// the payload object inline; those are kept as raw JSON text.
func contentString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] != '"' {
		return string(raw), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}
