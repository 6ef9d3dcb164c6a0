// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

// Package errutil holds helpers for logging and asserting oops errors.
package errutil

import (
	"fmt"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at error level. For oops errors the code and context
// are attached as separate attributes.
func LogError(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, Attrs(err)...)
}

// LogWarn is LogError at warn level, for failures the caller recovers from.
func LogWarn(logger *slog.Logger, msg string, err error) {
	logger.Warn(msg, Attrs(err)...)
}

// Attrs returns the slog attributes describing err.
func Attrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err}
	}
	attrs := []any{"error", oopsErr.Error()}
	if code := Code(err); code != "" {
		attrs = append(attrs, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", ctx)
	}
	return attrs
}

// Code returns the oops error code carried by err, or "" if there is none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code := oopsErr.Code()
	if code == nil {
		return ""
	}
	if s, ok := code.(string); ok {
		return s
	}
	return fmt.Sprint(code)
}
