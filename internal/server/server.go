// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

// Package server accepts client connections and runs the request loop for
// each of them.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/usergate/usergate/internal/account"
	"github.com/usergate/usergate/internal/action"
	"github.com/usergate/usergate/internal/observability"
	"github.com/usergate/usergate/internal/protocol"
)

// Server is a TCP server speaking the usergate protocol.
type Server struct {
	addr         string
	dispatcher   *action.Dispatcher
	store        account.Store
	metrics      *observability.Metrics
	logger       *slog.Logger
	idleTimeout  time.Duration
	writeTimeout time.Duration

	mu       sync.RWMutex
	listener net.Listener
	ready    chan struct{}
	conns    sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithIdleTimeout drops connections that send nothing for d. Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.idleTimeout = d
	}
}

// WithWriteTimeout bounds each response write. Zero disables it.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.writeTimeout = d
	}
}

// WithMetrics records connection metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a server that will listen on addr.
func NewServer(addr string, dispatcher *action.Dispatcher, store account.Store, opts ...Option) *Server {
	s := &Server{
		addr:       addr,
		dispatcher: dispatcher,
		store:      store,
		logger:     slog.Default(),
		ready:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Addr returns the server's listen address, or "" before Run has bound it.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Ready is closed once the server is accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Run accepts connections until ctx is cancelled, then closes every open
// connection and waits for their handlers to return.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return oops.Code("LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	close(s.ready)

	s.logger.Info("server started", "addr", listener.Addr().String())
	return s.serve(ctx, listener)
}

// Accept retry delays after a failed Accept, doubling up to the maximum.
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// serve runs the accept loop on listener until ctx is cancelled. Failed
// accepts are retried with a capped exponential delay.
func (s *Server) serve(ctx context.Context, listener net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		if err := listener.Close(); err != nil {
			s.logger.Debug("error closing listener", "error", err)
		}
	})
	defer stop()

	var delay time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.conns.Wait()
				s.logger.Info("server stopped")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				s.conns.Wait()
				return oops.Code("LISTENER_CLOSED").Wrap(err)
			}

			delay = nextAcceptDelay(delay)
			s.logger.Error("accept failed, retrying", "error", err, "delay", delay)
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
			continue
		}
		delay = 0

		jc := protocol.NewJSONConn(conn,
			protocol.WithIdleTimeout(s.idleTimeout),
			protocol.WithWriteTimeout(s.writeTimeout),
		)
		handler := NewHandler(jc, s.dispatcher, s.store, s.metrics, s.logger)
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			handler.Handle(ctx)
		}()
	}
}

func nextAcceptDelay(prev time.Duration) time.Duration {
	if prev == 0 {
		return minAcceptDelay
	}
	return min(prev*2, maxAcceptDelay)
}
