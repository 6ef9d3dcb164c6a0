// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package action

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for request metrics.
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
	OutcomeExit    = "exit"
)

// RequestsTotal counts request cycles by action and outcome.
var RequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "usergate_requests_total",
		Help: "Total number of request cycles",
	},
	[]string{"action", "outcome"},
)

// RequestDuration is the histogram for request cycle duration.
var RequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "usergate_request_duration_seconds",
		Help:    "Request cycle duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"action"},
)

// Collectors returns the action package metrics for registration with a
// Prometheus registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{RequestsTotal, RequestDuration}
}

func recordRequest(a Action, err error, start time.Time) {
	RequestsTotal.WithLabelValues(a.Object(), Outcome(err)).Inc()
	RequestDuration.WithLabelValues(a.Object()).Observe(time.Since(start).Seconds())
}

// Outcome classifies the result of a request cycle for metrics.
func Outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	if errors.Is(err, ErrExit) {
		return OutcomeExit
	}
	switch ClientMessage(err) {
	case MsgPermissionDenied:
		return OutcomeDenied
	case MsgInternal:
		return OutcomeError
	default:
		return OutcomeInvalid
	}
}
