// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

// Package logging configures the process-wide slog logger. Records carry
// the service identity, the client connection id when the context holds
// one, and OpenTelemetry trace and span ids.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/trace"
)

// Log formats accepted by Setup.
const (
	FormatJSON = "json"
	FormatText = "text"
)

type connKey struct{}

// ContextWithConn returns a copy of ctx carrying a client connection id.
// Records logged with the returned context carry it as conn_id.
func ContextWithConn(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, connKey{}, connID)
}

// ConnFromContext returns the connection id stored by ContextWithConn.
func ConnFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(connKey{}).(string)
	return id, ok && id != ""
}

// traceHandler adds service identity, the client connection id and
// OpenTelemetry trace context to every record.
type traceHandler struct {
	handler slog.Handler
	service string
	version string
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(
		slog.String("service", h.service),
		slog.String("version", h.version),
	)

	if connID, ok := ConnFromContext(ctx); ok {
		r.AddAttrs(slog.String("conn_id", connID))
	}

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		r.AddAttrs(slog.String("trace_id", spanCtx.TraceID().String()))
	}
	if spanCtx.HasSpanID() {
		r.AddAttrs(slog.String("span_id", spanCtx.SpanID().String()))
	}

	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.handler.Handle(ctx, r)
}

func (h *traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{
		handler: h.handler.WithAttrs(attrs),
		service: h.service,
		version: h.version,
	}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{
		handler: h.handler.WithGroup(name),
		service: h.service,
		version: h.version,
	}
}

// ParseLevel parses debug, info, warn or error (case-insensitive).
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, oops.Code("LOG_INVALID_LEVEL").With("level", s).Wrap(err)
	}
	return level, nil
}

// Setup creates a logger writing to w (os.Stderr when nil) in format,
// FormatJSON or FormatText. Unknown formats fall back to JSON.
func Setup(service, version, format string, level slog.Level, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}
	var base slog.Handler = slog.NewJSONHandler(w, opts)
	if format == FormatText {
		base = slog.NewTextHandler(w, opts)
	}

	return slog.New(&traceHandler{
		handler: base,
		service: service,
		version: version,
	})
}

// SetDefault sets up the default logger and returns it.
func SetDefault(service, version, format string, level slog.Level) *slog.Logger {
	logger := Setup(service, version, format, level, nil)
	slog.SetDefault(logger)
	return logger
}
