// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package server_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/usergate/usergate/internal/access"
	"github.com/usergate/usergate/internal/access/accesstest"
	"github.com/usergate/usergate/internal/access/audit/audittest"
	"github.com/usergate/usergate/internal/account"
	"github.com/usergate/usergate/internal/action"
	"github.com/usergate/usergate/internal/observability"
	"github.com/usergate/usergate/internal/protocol"
	"github.com/usergate/usergate/internal/server"
)

const strongPassword = "correct-Horse-battery-staple-42"

// plainHasher is a fast, deterministic auth.Hasher.
type plainHasher struct{}

func (plainHasher) GenerateSalt() ([]byte, error) { return []byte("salt"), nil }

func (plainHasher) Hash(password string, salt []byte) ([]byte, error) {
	return append(append([]byte{}, salt...), password...), nil
}

func (h plainHasher) Verify(password string, salt, hash []byte) bool {
	want, _ := h.Hash(password, salt)
	return bytes.Equal(want, hash)
}

type testServer struct {
	srv     *server.Server
	store   *account.MemoryStore
	audit   *audittest.Recorder
	metrics *observability.Metrics
	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error
}

// startServer runs a server on a random port with alice (standard) and
// hannah (hr) registered. The server is stopped during cleanup.
func startServer(t *testing.T, opts ...server.Option) *testServer {
	t.Helper()

	store := account.NewMemoryStore()
	ctx := context.Background()
	for _, seed := range []struct {
		username, phone string
		role            account.Role
	}{
		{"alice", "0712345678", account.RoleStandard},
		{"hannah", "0787654321", account.RoleHR},
	} {
		hash, err := plainHasher{}.Hash(strongPassword, []byte("salt"))
		require.NoError(t, err)
		require.NoError(t, store.Insert(ctx, account.New(seed.username, hash, []byte("salt"), seed.phone, seed.role)))
	}

	ac, rec := accesstest.NewAccessControl(t, access.NewDefaultAllowList())
	dispatcher, err := action.NewDispatcher(store, ac, plainHasher{})
	require.NoError(t, err)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	opts = append([]server.Option{server.WithMetrics(metrics)}, opts...)
	srv := server.NewServer("127.0.0.1:0", dispatcher, store, opts...)

	runCtx, cancel := context.WithCancel(context.Background())
	ts := &testServer{
		srv:     srv,
		store:   store,
		audit:   rec,
		metrics: metrics,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go func() {
		defer close(ts.done)
		ts.runErr = srv.Run(runCtx)
	}()

	select {
	case <-srv.Ready():
	case <-ts.done:
		t.Fatalf("server exited before ready: %v", ts.runErr)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}

	t.Cleanup(ts.stop)
	return ts
}

// stop cancels the server and waits for Run to return.
func (ts *testServer) stop() {
	ts.cancel()
	select {
	case <-ts.done:
	case <-time.After(5 * time.Second):
	}
}

func (ts *testServer) dial(t *testing.T) *protocol.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := protocol.Dial(ctx, ts.srv.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}
