// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package access

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	authorizeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "usergate_authorize_duration_seconds",
		Help:    "Histogram of authorization latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	authorizeDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "usergate_authorize_decisions_total",
		Help: "Total number of authorization decisions",
	}, []string{"object", "effect"})

	policyErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usergate_policy_evaluation_errors_total",
		Help: "Total number of policy evaluations that failed and were treated as denials",
	})
)

func recordDecision(start time.Time, object, effect string) {
	authorizeDuration.Observe(time.Since(start).Seconds())
	authorizeDecisions.WithLabelValues(object, effect).Inc()
}
