// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package account

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested account does not exist.
var ErrNotFound = errors.New("account not found")

// ErrAlreadyExists is returned by Create when the username is taken.
var ErrAlreadyExists = errors.New("account already exists")

// Store persists accounts keyed by username.
//
// Implementations must make Create and Update atomic with respect to other
// writers of the same username: two concurrent Create calls for one name
// yield exactly one success and one ErrAlreadyExists.
type Store interface {
	// Get returns the account for username, or an error wrapping ErrNotFound.
	Get(ctx context.Context, username string) (*Account, error)

	// Insert stores the account, replacing any account with the same username.
	Insert(ctx context.Context, acct *Account) error

	// Values returns every account, ordered by username.
	Values(ctx context.Context) ([]*Account, error)

	// Create stores the account only if the username is free.
	// Returns an error wrapping ErrAlreadyExists otherwise.
	Create(ctx context.Context, acct *Account) error

	// Update loads the account, applies fn and stores the result as one
	// atomic step. Returns an error wrapping ErrNotFound if absent. If fn
	// returns an error nothing is written and that error is returned.
	Update(ctx context.Context, username string, fn func(*Account) error) error
}

// Pinger is implemented by stores backed by a database connection.
type Pinger interface {
	// Ping reports whether the backing database is reachable.
	Ping(ctx context.Context) error
}
