// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package account

import (
	"context"
	"sort"
	"sync"

	"github.com/samber/oops"
)

// MemoryStore is an in-process Store. A single store-wide lock serializes
// every write, so read-then-write sequences are atomic.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*Account)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, username string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[username]
	if !ok {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("username", username).Wrap(ErrNotFound)
	}
	return acct.Clone(), nil
}

// Insert implements Store.
func (s *MemoryStore) Insert(_ context.Context, acct *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[acct.Username] = acct.Clone()
	return nil
}

// Values implements Store.
func (s *MemoryStore) Values(_ context.Context) ([]*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		result = append(result, acct.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, acct *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[acct.Username]; exists {
		return oops.Code("ACCOUNT_EXISTS").With("username", acct.Username).Wrap(ErrAlreadyExists)
	}
	s.accounts[acct.Username] = acct.Clone()
	return nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, username string, fn func(*Account) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[username]
	if !ok {
		return oops.Code("ACCOUNT_NOT_FOUND").With("username", username).Wrap(ErrNotFound)
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return err
	}
	next.Username = username
	s.accounts[username] = next
	return nil
}
