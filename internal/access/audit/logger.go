// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/oops"
)

// Mode controls which decisions are logged.
type Mode string

// Audit logging modes.
const (
	ModeDenialsOnly Mode = "denials_only"
	ModeAll         Mode = "all"
)

// ParseMode validates a configured mode. Empty selects ModeDenialsOnly.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeDenialsOnly:
		return ModeDenialsOnly, nil
	case ModeAll:
		return ModeAll, nil
	default:
		return "", oops.Code("AUDIT_INVALID_MODE").With("mode", s).Errorf("unknown audit mode %q", s)
	}
}

// Effect is the outcome of an access decision.
type Effect string

// Decision effects.
const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Entry represents a single access control decision.
type Entry struct {
	Subject   string    `json:"subject"`
	Identity  string    `json:"identity"`
	Object    string    `json:"object"`
	Effect    Effect    `json:"effect"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Writer persists audit entries.
type Writer interface {
	Write(ctx context.Context, entry Entry) error
}

var (
	channelFullCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usergate_audit_channel_full_total",
		Help: "Total number of allow entries dropped because the async queue was full",
	})

	failuresCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "usergate_audit_failures_total",
		Help: "Total number of audit write failures",
	}, []string{"reason"})
)

const asyncQueueSize = 1000

// Logger routes audit entries based on mode and effect.
type Logger struct {
	mode      Mode
	writer    Writer
	fallback  Writer
	asyncChan chan Entry
	stopOnce  sync.Once
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewLogger creates a Logger writing to writer. A nil writer logs through
// slog.Default().
func NewLogger(mode Mode, writer Writer) *Logger {
	fallback := NewSlogWriter(slog.Default())
	if writer == nil {
		writer = fallback
	}

	l := &Logger{
		mode:      mode,
		writer:    writer,
		fallback:  fallback,
		asyncChan: make(chan Entry, asyncQueueSize),
		stopChan:  make(chan struct{}),
	}

	l.wg.Add(1)
	go l.asyncConsumer()

	return l
}

// Log records entry according to the configured mode. Denials are written
// before Log returns.
func (l *Logger) Log(ctx context.Context, entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	shouldLog, useSync := l.shouldLog(entry.Effect)
	if !shouldLog {
		return
	}

	if useSync {
		l.writeSync(ctx, entry)
		return
	}

	select {
	case l.asyncChan <- entry:
	default:
		channelFullCounter.Inc()
	}
}

func (l *Logger) writeSync(ctx context.Context, entry Entry) {
	err := l.writer.Write(ctx, entry)
	if err == nil {
		return
	}
	failuresCounter.WithLabelValues("writer_failed").Inc()
	if l.writer == l.fallback {
		slog.Error("audit write failed", "error", err, "subject", entry.Subject, "object", entry.Object)
		return
	}
	if fbErr := l.fallback.Write(ctx, entry); fbErr != nil {
		failuresCounter.WithLabelValues("fallback_failed").Inc()
		slog.Error("audit write failed: writer and fallback failed",
			"writer_error", err,
			"fallback_error", fbErr,
			"subject", entry.Subject,
			"identity", entry.Identity,
			"object", entry.Object,
			"effect", entry.Effect,
		)
	}
}

// shouldLog reports whether entry should be logged and whether the write
// must be synchronous.
func (l *Logger) shouldLog(effect Effect) (shouldLog, useSync bool) {
	switch effect {
	case EffectDeny:
		return true, true
	case EffectAllow:
		return l.mode == ModeAll, false
	default:
		return false, false
	}
}

func (l *Logger) asyncConsumer() {
	defer l.wg.Done()

	for {
		select {
		case entry := <-l.asyncChan:
			l.writeAsync(entry)
		case <-l.stopChan:
			for {
				select {
				case entry := <-l.asyncChan:
					l.writeAsync(entry)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) writeAsync(entry Entry) {
	if err := l.writer.Write(context.Background(), entry); err != nil {
		failuresCounter.WithLabelValues("async_write_failed").Inc()
		slog.Warn("async audit write failed", "error", err, "object", entry.Object)
	}
}

// Close drains pending allow entries and stops the consumer. Close does
// not close the writer.
func (l *Logger) Close() {
	l.stopOnce.Do(func() {
		close(l.stopChan)
	})
	l.wg.Wait()
}
