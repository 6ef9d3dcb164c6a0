// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

// Package accounttest provides a behavioural test suite shared by every
// account.Store implementation.
package accounttest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usergate/usergate/internal/account"
)

// NewAccount builds an account with fixed credential bytes.
func NewAccount(username, phone string, role account.Role) *account.Account {
	return account.New(username, []byte("hash-"+username), []byte("salt-"+username), phone, role)
}

// RunStoreSuite exercises the account.Store contract against a fresh store
// returned by newStore for each subtest.
func RunStoreSuite(t *testing.T, newStore func(t *testing.T) account.Store) {
	t.Helper()

	t.Run("get missing account", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "nobody")
		require.Error(t, err)
		assert.ErrorIs(t, err, account.ErrNotFound)
	})

	t.Run("insert then get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Insert(ctx, NewAccount("alice", "0712345678", account.RoleHR)))

		got, err := s.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Username)
		assert.Equal(t, "0712345678", got.Phone)
		assert.Equal(t, account.RoleHR, got.Role)
		assert.Equal(t, []byte("hash-alice"), got.PasswordHash)
		assert.Equal(t, []byte("salt-alice"), got.Salt)
	})

	t.Run("insert is an upsert", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Insert(ctx, NewAccount("alice", "0712345678", account.RoleHR)))
		require.NoError(t, s.Insert(ctx, NewAccount("alice", "0799999999", account.RoleStandard)))

		got, err := s.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "0799999999", got.Phone)
		assert.Equal(t, account.RoleStandard, got.Role)
	})

	t.Run("usernames are case sensitive", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Create(ctx, NewAccount("alice", "0712345678", account.RoleHR)))
		require.NoError(t, s.Create(ctx, NewAccount("Alice", "0711111111", account.RoleStandard)))

		got, err := s.Get(ctx, "Alice")
		require.NoError(t, err)
		assert.Equal(t, "0711111111", got.Phone)
	})

	t.Run("values sorted by username", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, name := range []string{"carol", "alice", "bob"} {
			require.NoError(t, s.Insert(ctx, NewAccount(name, "0712345678", account.RoleStandard)))
		}

		all, err := s.Values(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "alice", all[0].Username)
		assert.Equal(t, "bob", all[1].Username)
		assert.Equal(t, "carol", all[2].Username)
	})

	t.Run("create rejects existing username without altering it", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Create(ctx, NewAccount("alice", "0712345678", account.RoleHR)))

		err := s.Create(ctx, NewAccount("alice", "0799999999", account.RoleStandard))
		require.Error(t, err)
		assert.ErrorIs(t, err, account.ErrAlreadyExists)

		got, err := s.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "0712345678", got.Phone)
		assert.Equal(t, account.RoleHR, got.Role)
	})

	t.Run("update applies function", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Create(ctx, NewAccount("alice", "0712345678", account.RoleHR)))

		require.NoError(t, s.Update(ctx, "alice", func(a *account.Account) error {
			a.SetPhone("0700000001")
			return nil
		}))

		got, err := s.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "0700000001", got.Phone)
	})

	t.Run("update missing account", func(t *testing.T) {
		s := newStore(t)
		err := s.Update(context.Background(), "nobody", func(*account.Account) error { return nil })
		require.Error(t, err)
		assert.ErrorIs(t, err, account.ErrNotFound)
	})

	t.Run("update aborted by function error", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Create(ctx, NewAccount("alice", "0712345678", account.RoleHR)))

		boom := errors.New("boom")
		err := s.Update(ctx, "alice", func(a *account.Account) error {
			a.SetPhone("0700000001")
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := s.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "0712345678", got.Phone)
	})

	t.Run("returned accounts do not alias stored state", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Create(ctx, NewAccount("alice", "0712345678", account.RoleHR)))

		got, err := s.Get(ctx, "alice")
		require.NoError(t, err)
		got.Phone = "0799999999"

		again, err := s.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "0712345678", again.Phone)
	})

	t.Run("concurrent create has exactly one winner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const workers = 8
		var wins, conflicts atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.Create(ctx, NewAccount("race", "0712345678", account.RoleStandard))
				switch {
				case err == nil:
					wins.Add(1)
				case errors.Is(err, account.ErrAlreadyExists):
					conflicts.Add(1)
				default:
					t.Errorf("unexpected create error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
		assert.Equal(t, int32(workers-1), conflicts.Load())
	})
}
