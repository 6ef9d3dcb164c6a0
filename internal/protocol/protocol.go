// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

// Package protocol frames requests and responses on a client connection.
//
// Each message is one JSON value terminated by a newline. A request cycle
// is an action tag followed by that action's payload fields, each sent as
// its own value. The server answers with exactly one Response, except for
// Exit which closes the connection.
package protocol

import (
	"encoding/json"
	"errors"

	"github.com/samber/oops"
)

// ErrProtocol marks malformed input from the peer. The connection cannot
// be resynchronised and must be dropped.
var ErrProtocol = errors.New("protocol error")

// ErrClosed is returned when the peer has gone away.
var ErrClosed = errors.New("connection closed")

// Connection is a bidirectional, message-oriented client connection.
type Connection interface {
	// Send writes one response.
	Send(resp Response) error
	// Receive decodes the next value sent by the peer into v.
	Receive(v any) error
	Close() error
	RemoteAddr() string
}

// Response is the server's answer to one request cycle.
type Response struct {
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// OK builds a success response carrying v. A nil v yields no payload.
func OK(v any) (Response, error) {
	if v == nil {
		return Response{OK: true}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Response{}, oops.Code("PAYLOAD_ENCODE_FAILED").Wrap(err)
	}
	return Response{OK: true, Payload: data}, nil
}

// Err builds a failure response with a client-facing message.
func Err(msg string) Response {
	return Response{Error: msg}
}

// Decode unmarshals the payload into v.
func (r Response) Decode(v any) error {
	if len(r.Payload) == 0 {
		return oops.Code("PAYLOAD_EMPTY").Errorf("response has no payload")
	}
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return oops.Code("PAYLOAD_DECODE_FAILED").Wrap(err)
	}
	return nil
}
