// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package action_test

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/require"

	"github.com/usergate/usergate/internal/access"
	"github.com/usergate/usergate/internal/access/accesstest"
	"github.com/usergate/usergate/internal/access/audit/audittest"
	"github.com/usergate/usergate/internal/account"
	"github.com/usergate/usergate/internal/action"
	"github.com/usergate/usergate/internal/protocol"
	"github.com/usergate/usergate/internal/session"
)

const strongPassword = "correct-Horse-battery-staple-42"

// scriptedConn replays queued client values and records responses.
type scriptedConn struct {
	in   []any
	sent []protocol.Response
}

func (c *scriptedConn) Send(resp protocol.Response) error {
	c.sent = append(c.sent, resp)
	return nil
}

func (c *scriptedConn) Receive(v any) error {
	if len(c.in) == 0 {
		return oops.Code("CONNECTION_CLOSED").Wrap(protocol.ErrClosed)
	}
	next := c.in[0]
	c.in = c.in[1:]
	data, err := json.Marshal(next)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return oops.Code("PROTOCOL_ERROR").With("cause", err.Error()).Wrap(protocol.ErrProtocol)
	}
	return nil
}

func (c *scriptedConn) Close() error       { return nil }
func (c *scriptedConn) RemoteAddr() string { return "pipe" }

func (c *scriptedConn) remaining() int { return len(c.in) }

// lastResponse returns the single response sent so far.
func (c *scriptedConn) lastResponse(t *testing.T) protocol.Response {
	t.Helper()
	require.Len(t, c.sent, 1, "exactly one response per cycle")
	return c.sent[0]
}

// fakeHasher is a fast, deterministic auth.Hasher.
type fakeHasher struct {
	mu       sync.Mutex
	hashedAt [][]byte
	saltErr  error
}

func (h *fakeHasher) GenerateSalt() ([]byte, error) {
	if h.saltErr != nil {
		return nil, h.saltErr
	}
	return []byte("fresh-salt"), nil
}

func (h *fakeHasher) Hash(password string, salt []byte) ([]byte, error) {
	h.mu.Lock()
	h.hashedAt = append(h.hashedAt, salt)
	h.mu.Unlock()
	return append(append([]byte{}, salt...), password...), nil
}

func (h *fakeHasher) Verify(password string, salt, hash []byte) bool {
	want := append(append([]byte{}, salt...), password...)
	return bytes.Equal(want, hash)
}

func (h *fakeHasher) usedSalts() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]byte{}, h.hashedAt...)
}

type fixture struct {
	store      account.Store
	hasher     *fakeHasher
	audit      *audittest.Recorder
	dispatcher *action.Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, access.NewDefaultAllowList(), account.NewMemoryStore())
}

func newFixtureWith(t *testing.T, ev access.Evaluator, store account.Store) *fixture {
	t.Helper()
	hasher := &fakeHasher{}
	ctx := context.Background()

	for _, seed := range []struct {
		username, phone string
		role            account.Role
	}{
		{"alice", "0712345678", account.RoleStandard},
		{"hannah", "0787654321", account.RoleHR},
	} {
		salt := []byte("salt-" + seed.username)
		hash, err := hasher.Hash(strongPassword, salt)
		require.NoError(t, err)
		require.NoError(t, store.Insert(ctx, account.New(seed.username, hash, salt, seed.phone, seed.role)))
	}
	hasher.hashedAt = nil

	ac, rec := accesstest.NewAccessControl(t, ev)
	d, err := action.NewDispatcher(store, ac, hasher)
	require.NoError(t, err)

	return &fixture{store: store, hasher: hasher, audit: rec, dispatcher: d}
}

// session returns a session on a scripted connection, logged in as
// username unless it is empty.
func (f *fixture) session(username string, in ...any) (*session.ConnectedUser, *scriptedConn) {
	return newScriptedSession(f.store, username, in...)
}

func (f *fixture) phoneOf(t *testing.T, username string) string {
	t.Helper()
	acct, err := f.store.Get(context.Background(), username)
	require.NoError(t, err)
	return acct.Phone
}

func newSessionOn(conn protocol.Connection, store account.Store) *session.ConnectedUser {
	return session.New(conn, store)
}

func newScriptedSession(store account.Store, username string, in ...any) (*session.ConnectedUser, *scriptedConn) {
	conn := &scriptedConn{in: in}
	user := session.New(conn, store)
	if username != "" {
		user.Authenticate(username)
	}
	return user, conn
}
