// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"

	"github.com/samber/oops"
)

// Client is the peer side of a JSONConn, used by tests and tooling.
type Client struct {
	conn net.Conn
	dec  *json.Decoder
	enc  *json.Encoder
	mu   sync.Mutex
}

// Dial connects to a server at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, oops.Code("DIAL_FAILED").With("addr", addr).Wrap(err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn) *Client {
	return &Client{
		conn: conn,
		dec:  json.NewDecoder(bufio.NewReader(conn)),
		enc:  json.NewEncoder(conn),
	}
}

// Send writes values without waiting for a response.
func (c *Client) Send(values ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range values {
		if err := c.enc.Encode(v); err != nil {
			return oops.Code("CLIENT_WRITE_FAILED").Wrap(err)
		}
	}
	return nil
}

// Read decodes the next response.
func (c *Client) Read() (Response, error) {
	var resp Response
	if err := c.dec.Decode(&resp); err != nil {
		return Response{}, oops.Code("CLIENT_READ_FAILED").Wrap(err)
	}
	return resp, nil
}

// Do sends tag and fields as one request cycle and reads the response.
func (c *Client) Do(tag any, fields ...any) (Response, error) {
	if err := c.Send(append([]any{tag}, fields...)...); err != nil {
		return Response{}, err
	}
	return c.Read()
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close() //nolint:wrapcheck // passthrough
}
