// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/usergate/usergate/pkg/errutil"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "Failed to parse JSON: %s", buf.String())
	return entry
}

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("usergate", "1.0.0", FormatJSON, slog.LevelInfo, &buf)

	logger.Info("test message", "object", "login")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "usergate", entry["service"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.Equal(t, "login", entry["object"])
	assert.NotContains(t, entry, "conn_id")
	assert.Contains(t, entry, "time", "time field missing")
	assert.Contains(t, entry, "level", "level field missing")
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("usergate", "1.0.0", FormatText, slog.LevelInfo, &buf)

	logger.Info("test message")

	output := buf.String()
	assert.Contains(t, output, "test message", "Output missing message")
	assert.Contains(t, output, "service=usergate", "Output missing service")
}

func TestSetup_UnknownFormatIsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("usergate", "1.0.0", "", slog.LevelInfo, &buf)

	logger.Info("test message")
	decodeLine(t, &buf)
}

func TestSetup_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("usergate", "1.0.0", FormatJSON, slog.LevelWarn, &buf)

	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("kept")
	assert.Equal(t, "kept", decodeLine(t, &buf)["msg"])
}

func TestHandler_TraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("usergate", "1.0.0", FormatJSON, slog.LevelInfo, &buf)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	logger.With("action", "login").InfoContext(ctx, "traced message")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
	assert.Equal(t, "login", entry["action"])
	assert.Equal(t, "usergate", entry["service"], "service survives WithAttrs")
}

func TestHandler_ConnContext(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("usergate", "1.0.0", FormatJSON, slog.LevelInfo, &buf)

	ctx := ContextWithConn(context.Background(), "01JCONN")
	logger.WarnContext(ctx, "access denied", "object", "show_users")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "01JCONN", entry["conn_id"])
	assert.Equal(t, "show_users", entry["object"])
}

func TestConnFromContext(t *testing.T) {
	_, ok := ConnFromContext(context.Background())
	assert.False(t, ok)

	_, ok = ConnFromContext(ContextWithConn(context.Background(), ""))
	assert.False(t, ok, "empty id is absent")

	id, ok := ConnFromContext(ContextWithConn(context.Background(), "01J"))
	assert.True(t, ok)
	assert.Equal(t, "01J", id)
}

func TestHandler_NoTraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("usergate", "1.0.0", FormatJSON, slog.LevelInfo, &buf)

	logger.Info("no trace message")

	entry := decodeLine(t, &buf)
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
}

func TestHandler_WithGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("usergate", "1.0.0", FormatJSON, slog.LevelInfo, &buf)

	logger.WithGroup("req").Info("grouped", "object", "show_users")

	entry := decodeLine(t, &buf)
	group, ok := entry["req"].(map[string]any)
	require.True(t, ok, "group missing: %v", entry)
	assert.Equal(t, "show_users", group["object"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseLevel("loud")
	errutil.AssertErrorCode(t, err, "LOG_INVALID_LEVEL")
}

func TestSetDefault(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	logger := SetDefault("usergate", "2.0.0", FormatJSON, slog.LevelInfo)

	assert.Same(t, logger, slog.Default())
}
