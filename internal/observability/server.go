// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

// Package observability serves Prometheus metrics and health probes for a
// running usergate server.
package observability

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// DefaultCheckTimeout bounds a single readiness probe.
const DefaultCheckTimeout = 2 * time.Second

// Check reports whether one dependency of the server is usable. A nil
// error means healthy.
type Check func(ctx context.Context) error

// ProbeResponse is the JSON body of both health probes.
type ProbeResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Probe statuses.
const (
	StatusAlive    = "alive"
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
)

type namedCheck struct {
	name  string
	check Check
}

// Option configures a Server.
type Option func(*Server)

// WithCheck adds a named readiness check. Readiness fails while any
// check fails.
func WithCheck(name string, check Check) Option {
	return func(s *Server) {
		s.checks = append(s.checks, namedCheck{name: name, check: check})
	}
}

// WithCollectors registers extra collectors on the server's registry.
func WithCollectors(collectors ...prometheus.Collector) Option {
	return func(s *Server) {
		s.collectors = append(s.collectors, collectors...)
	}
}

// WithCheckTimeout overrides DefaultCheckTimeout.
func WithCheckTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.checkTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// Server exposes /metrics, /healthz/liveness and /healthz/readiness.
//
// /metrics merges the server's own registry with the default registry,
// which carries the Go and process collectors and the promauto metrics
// of the access and audit packages.
type Server struct {
	addr         string
	registry     *prometheus.Registry
	metrics      *Metrics
	collectors   []prometheus.Collector
	checks       []namedCheck
	checkTimeout time.Duration
	logger       *slog.Logger

	running    atomic.Bool
	listener   net.Listener
	httpServer *http.Server
}

// NewServer creates a Server for addr ("host:port"; port 0 picks a free
// port). It panics if a collector cannot be registered.
func NewServer(addr string, opts ...Option) *Server {
	s := &Server{
		addr:         addr,
		registry:     prometheus.NewRegistry(),
		checkTimeout: DefaultCheckTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = NewMetrics(s.registry)
	s.registry.MustRegister(s.collectors...)
	sort.SliceStable(s.checks, func(i, j int) bool { return s.checks[i].name < s.checks[j].name })
	return s
}

// Metrics returns the connection metrics to hand to the TCP server.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start binds the address and serves in the background. The returned
// channel yields a serve failure and is closed when serving stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("OBSERVABILITY_RUNNING").Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("OBSERVABILITY_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		prometheus.Gatherers{s.registry, prometheus.DefaultGatherer},
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	))
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("observability server started", "addr", listener.Addr().String(), "checks", len(s.checks))
	return errCh, nil
}

// Stop shuts the HTTP server down. Stopping a server that is not running
// is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.Code("OBSERVABILITY_SHUTDOWN_FAILED").Wrap(err)
	}
	s.logger.Info("observability server stopped")
	return nil
}

// Ready runs every check and reports the combined result along with
// per-check outcomes.
func (s *Server) Ready(ctx context.Context) (bool, map[string]string) {
	ctx, cancel := context.WithTimeout(ctx, s.checkTimeout)
	defer cancel()

	ready := true
	results := make(map[string]string, len(s.checks))
	for _, c := range s.checks {
		if err := c.check(ctx); err != nil {
			ready = false
			results[c.name] = err.Error()
			s.metrics.checkFailed(c.name)
			continue
		}
		results[c.name] = "ok"
	}
	return ready, results
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeProbe(w, http.StatusOK, ProbeResponse{Status: StatusAlive})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ready, results := s.Ready(r.Context())
	if !ready {
		writeProbe(w, http.StatusServiceUnavailable, ProbeResponse{Status: StatusNotReady, Checks: results})
		return
	}
	writeProbe(w, http.StatusOK, ProbeResponse{Status: StatusReady, Checks: results})
}

func writeProbe(w http.ResponseWriter, status int, body ProbeResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // the prober may already be gone
	json.NewEncoder(w).Encode(body)
}
