// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/samber/oops"
)

// JSONConn implements Connection over a net.Conn using newline-delimited
// JSON.
type JSONConn struct {
	conn         net.Conn
	dec          *json.Decoder
	enc          *json.Encoder
	idleTimeout  time.Duration
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// ConnOption configures a JSONConn.
type ConnOption func(*JSONConn)

// WithIdleTimeout bounds how long Receive waits for the next value.
// Zero disables the limit.
func WithIdleTimeout(d time.Duration) ConnOption {
	return func(c *JSONConn) {
		c.idleTimeout = d
	}
}

// WithWriteTimeout bounds each Send. Zero disables the limit.
func WithWriteTimeout(d time.Duration) ConnOption {
	return func(c *JSONConn) {
		c.writeTimeout = d
	}
}

// NewJSONConn wraps conn.
func NewJSONConn(conn net.Conn, opts ...ConnOption) *JSONConn {
	c := &JSONConn{
		conn: conn,
		dec:  json.NewDecoder(bufio.NewReader(conn)),
		enc:  json.NewEncoder(conn),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send implements Connection.
func (c *JSONConn) Send(resp Response) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return oops.Code("CONNECTION_WRITE_FAILED").Wrap(err)
		}
	}
	if err := c.enc.Encode(resp); err != nil {
		return oops.Code("CONNECTION_WRITE_FAILED").With("remote", c.RemoteAddr()).Wrap(err)
	}
	return nil
}

// Receive implements Connection. Malformed input wraps ErrProtocol; a
// peer that disconnected or timed out wraps ErrClosed.
func (c *JSONConn) Receive(v any) error {
	if c.idleTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout)); err != nil {
			return oops.Code("CONNECTION_CLOSED").Wrap(ErrClosed)
		}
	}

	err := c.dec.Decode(v)
	if err == nil {
		return nil
	}

	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		netErr    net.Error
	)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return oops.Code("CONNECTION_CLOSED").With("remote", c.RemoteAddr()).Wrap(ErrClosed)
	case errors.As(err, &netErr) && netErr.Timeout():
		return oops.Code("CONNECTION_CLOSED").
			With("remote", c.RemoteAddr()).
			With("reason", "idle timeout").
			Wrap(ErrClosed)
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.Is(err, io.ErrUnexpectedEOF):
		return oops.Code("PROTOCOL_ERROR").
			With("remote", c.RemoteAddr()).
			With("cause", err.Error()).
			Wrap(ErrProtocol)
	default:
		var protoErr *DecodeError
		if errors.As(err, &protoErr) {
			return oops.Code("PROTOCOL_ERROR").
				With("remote", c.RemoteAddr()).
				With("cause", protoErr.Error()).
				Wrap(ErrProtocol)
		}
		return oops.Code("CONNECTION_CLOSED").With("remote", c.RemoteAddr()).With("cause", err.Error()).Wrap(ErrClosed)
	}
}

// Close implements Connection. It is safe to call more than once.
func (c *JSONConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr implements Connection.
func (c *JSONConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// DecodeError is returned by UnmarshalJSON implementations for values that
// are well-formed JSON but not acceptable, such as an unknown action tag.
type DecodeError struct {
	Msg string
}

func (e *DecodeError) Error() string {
	return e.Msg
}
