// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/samber/oops"
)

// SlogWriter writes entries as structured log lines.
type SlogWriter struct {
	logger *slog.Logger
}

// NewSlogWriter returns a Writer logging through logger.
func NewSlogWriter(logger *slog.Logger) *SlogWriter {
	return &SlogWriter{logger: logger}
}

// Write implements Writer. Denials are logged at warn level.
func (w *SlogWriter) Write(ctx context.Context, entry Entry) error {
	level := slog.LevelInfo
	if entry.Effect == EffectDeny {
		level = slog.LevelWarn
	}
	w.logger.Log(ctx, level, "access decision",
		"audit", true,
		"subject", entry.Subject,
		"identity", entry.Identity,
		"object", entry.Object,
		"effect", entry.Effect,
		"reason", entry.Reason,
		"timestamp", entry.Timestamp,
	)
	return nil
}

// FileWriter appends entries to a file as JSON lines and syncs after
// each write.
type FileWriter struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// NewFileWriter opens path for appending, creating it and its parent
// directory if needed.
func NewFileWriter(path string) (*FileWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, oops.Code("AUDIT_OPEN_FAILED").With("path", path).Wrap(err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) //nolint:gosec // path from operator config
	if err != nil {
		return nil, oops.Code("AUDIT_OPEN_FAILED").With("path", path).Wrap(err)
	}
	return &FileWriter{path: path, file: f}, nil
}

// Write implements Writer.
func (w *FileWriter) Write(_ context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return oops.Code("AUDIT_MARSHAL_FAILED").Wrap(err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return oops.Code("AUDIT_WRITER_CLOSED").With("path", w.path).Errorf("audit file is closed")
	}
	if _, err := w.file.Write(data); err != nil {
		return oops.Code("AUDIT_WRITE_FAILED").With("path", w.path).Wrap(err)
	}
	if err := w.file.Sync(); err != nil {
		return oops.Code("AUDIT_SYNC_FAILED").With("path", w.path).Wrap(err)
	}
	return nil
}

// Close closes the underlying file. Later writes fail.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	if err != nil {
		return oops.Code("AUDIT_CLOSE_FAILED").With("path", w.path).Wrap(err)
	}
	return nil
}
