// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package observability

import "github.com/prometheus/client_golang/prometheus"

// Connection close reasons.
const (
	CloseExit       = "exit"
	CloseDisconnect = "disconnect"
	CloseFatal      = "fatal"
)

// Metrics holds the client connection metrics recorded by the TCP server
// and the readiness probe failures recorded by Server.
type Metrics struct {
	ConnectionsTotal  *prometheus.CounterVec
	ConnectionsActive prometheus.Gauge
	CheckFailures     *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usergate_connections_total",
			Help: "Total number of closed client connections by close reason",
		}, []string{"reason"}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "usergate_connections_active",
			Help: "Number of open client connections",
		}),
		CheckFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usergate_readiness_check_failures_total",
			Help: "Total number of failed readiness checks by check name",
		}, []string{"check"}),
	}
	reg.MustRegister(m.ConnectionsTotal, m.ConnectionsActive, m.CheckFailures)
	return m
}

// ConnectionOpened records a new client connection. Safe on a nil receiver.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Inc()
}

// ConnectionClosed records a closed client connection. Safe on a nil receiver.
func (m *Metrics) ConnectionClosed(reason string) {
	if m == nil {
		return
	}
	m.ConnectionsActive.Dec()
	m.ConnectionsTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) checkFailed(name string) {
	if m == nil {
		return
	}
	m.CheckFailures.WithLabelValues(name).Inc()
}
