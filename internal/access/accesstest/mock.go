// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

// Package accesstest provides evaluators and wiring helpers for tests.
package accesstest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/usergate/usergate/internal/access"
	"github.com/usergate/usergate/internal/access/audit"
	"github.com/usergate/usergate/internal/access/audit/audittest"
)

// AllowAll is an Evaluator that allows everything.
type AllowAll struct{}

// Enforce always returns true.
func (AllowAll) Enforce(context.Context, string, string) (bool, error) {
	return true, nil
}

// DenyAll is an Evaluator that denies everything.
type DenyAll struct{}

// Enforce always returns false.
func (DenyAll) Enforce(context.Context, string, string) (bool, error) {
	return false, nil
}

// Failing is an Evaluator that always returns Err.
type Failing struct {
	Err error
}

// Enforce returns f.Err.
func (f Failing) Enforce(context.Context, string, string) (bool, error) {
	return false, f.Err
}

// Counting wraps an Evaluator and counts calls.
type Counting struct {
	access.Evaluator
	mu    sync.Mutex
	calls int
}

// Enforce delegates and counts.
func (c *Counting) Enforce(ctx context.Context, subject, object string) (bool, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.Evaluator.Enforce(ctx, subject, object)
}

// Calls returns the number of Enforce calls.
func (c *Counting) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// NewAccessControl wires evaluator to an AccessControl whose audit entries
// land in the returned Recorder. The audit logger is closed on cleanup.
func NewAccessControl(t *testing.T, evaluator access.Evaluator) (*access.AccessControl, *audittest.Recorder) {
	t.Helper()
	rec := &audittest.Recorder{}
	logger := audit.NewLogger(audit.ModeDenialsOnly, rec)
	t.Cleanup(logger.Close)

	ac, err := access.NewAccessControl(evaluator, logger)
	require.NoError(t, err)
	return ac, rec
}
