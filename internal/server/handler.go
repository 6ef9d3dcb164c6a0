// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/usergate/usergate/internal/account"
	"github.com/usergate/usergate/internal/action"
	"github.com/usergate/usergate/internal/observability"
	"github.com/usergate/usergate/internal/protocol"
	"github.com/usergate/usergate/internal/session"
	"github.com/usergate/usergate/pkg/errutil"
)

// Handler runs the request loop for one connection.
type Handler struct {
	conn       protocol.Connection
	dispatcher *action.Dispatcher
	store      account.Store
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewHandler creates a handler. metrics may be nil.
func NewHandler(conn protocol.Connection, dispatcher *action.Dispatcher, store account.Store, metrics *observability.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		conn:       conn,
		dispatcher: dispatcher,
		store:      store,
		metrics:    metrics,
		logger:     logger,
	}
}

// Handle serves the connection until the client exits or disconnects, a
// fatal error occurs, or ctx is cancelled. The connection is closed on
// return.
func (h *Handler) Handle(ctx context.Context) {
	user := session.New(h.conn, h.store)
	logger := h.logger.With("conn_id", user.ID().String(), "remote", h.conn.RemoteAddr())

	h.metrics.ConnectionOpened()
	reason := observability.CloseDisconnect
	defer func() {
		if err := h.conn.Close(); err != nil {
			logger.Debug("error closing connection", "error", err)
		}
		h.metrics.ConnectionClosed(reason)
	}()

	stop := context.AfterFunc(ctx, func() {
		_ = h.conn.Close()
	})
	defer stop()

	logger.Info("client connected")

	for {
		var a action.Action
		if err := h.conn.Receive(&a); err != nil {
			if errors.Is(err, protocol.ErrProtocol) {
				reason = observability.CloseFatal
				errutil.LogWarn(logger, "malformed request, closing connection", err)
			} else {
				logger.Info("client disconnected")
			}
			return
		}

		err := h.dispatcher.Perform(ctx, user, a)
		switch {
		case err == nil:
		case errors.Is(err, action.ErrExit):
			reason = observability.CloseExit
			logger.Info("client exited")
			return
		case action.IsFatal(err):
			if ctx.Err() != nil {
				logger.Info("closing connection on shutdown")
				return
			}
			reason = observability.CloseFatal
			errutil.LogError(logger, "closing connection", err)
			return
		}
	}
}
