// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package errutil_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usergate/usergate/pkg/errutil"
)

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("STORE_FAILED").
		With("username", "alice").
		Errorf("something failed")

	errutil.LogError(logger, "operation failed", err)

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Equal(t, "operation failed", logEntry["msg"])
	assert.Equal(t, "STORE_FAILED", logEntry["code"])
	assert.Equal(t, map[string]any{"username": "alice"}, logEntry["context"])
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(logger, "operation failed", errors.New("standard error"))

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Contains(t, logEntry["error"], "standard error")
	assert.NotContains(t, logEntry, "code")
}

func TestLogWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogWarn(logger, "recovered", oops.Code("AUDIT_WRITE_FAILED").Errorf("disk full"))

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "WARN", logEntry["level"])
	assert.Equal(t, "AUDIT_WRITE_FAILED", logEntry["code"])
}

func TestCode(t *testing.T) {
	assert.Equal(t, "", errutil.Code(nil))
	assert.Equal(t, "", errutil.Code(errors.New("plain")))
	assert.Equal(t, "", errutil.Code(oops.Errorf("no code")))
	assert.Equal(t, "TARGET_NOT_FOUND", errutil.Code(oops.Code("TARGET_NOT_FOUND").Errorf("missing")))
}
