// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

// Package audittest provides an in-memory audit writer for tests.
package audittest

import (
	"context"
	"sync"

	"github.com/usergate/usergate/internal/access/audit"
)

// Recorder is an audit.Writer that keeps every entry in memory.
type Recorder struct {
	mu      sync.Mutex
	entries []audit.Entry
	Err     error
}

// Write implements audit.Writer. If Err is set the entry is dropped and
// Err returned.
func (r *Recorder) Write(_ context.Context, entry audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.entries = append(r.entries, entry)
	return nil
}

// Entries returns a copy of the recorded entries.
func (r *Recorder) Entries() []audit.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Entry(nil), r.entries...)
}

// Denials returns the recorded deny entries.
func (r *Recorder) Denials() []audit.Entry {
	var out []audit.Entry
	for _, e := range r.Entries() {
		if e.Effect == audit.EffectDeny {
			out = append(out, e)
		}
	}
	return out
}

// Reset discards recorded entries.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}
