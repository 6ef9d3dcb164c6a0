// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

// Package session holds the per-connection authentication state.
package session

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/usergate/usergate/internal/access"
	"github.com/usergate/usergate/internal/account"
	"github.com/usergate/usergate/internal/protocol"
)

// ErrNotLoggedIn is returned when an identity is required but the session
// is anonymous.
var ErrNotLoggedIn = errors.New("not logged in")

// ErrInternalInconsistency is returned when the session's identity has no
// account in the store. The connection must be dropped.
var ErrInternalInconsistency = errors.New("session identity has no account")

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

func newID() ulid.ULID {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
}

// ConnectedUser is one client connection and who, if anyone, it is logged
// in as. A ConnectedUser is used by a single goroutine.
type ConnectedUser struct {
	id       ulid.ULID
	conn     protocol.Connection
	store    account.Store
	identity string
}

// New creates an anonymous session on conn.
func New(conn protocol.Connection, store account.Store) *ConnectedUser {
	return &ConnectedUser{
		id:    newID(),
		conn:  conn,
		store: store,
	}
}

// ID returns the connection id.
func (u *ConnectedUser) ID() ulid.ULID {
	return u.id
}

// Conn returns the transport.
func (u *ConnectedUser) Conn() protocol.Connection {
	return u.conn
}

// IsAnonymous reports whether no one is logged in.
func (u *ConnectedUser) IsAnonymous() bool {
	return u.identity == ""
}

// Identity returns the logged-in username.
func (u *ConnectedUser) Identity() (string, error) {
	if u.identity == "" {
		return "", oops.Code("SESSION_NOT_LOGGED_IN").With("conn_id", u.id.String()).Wrap(ErrNotLoggedIn)
	}
	return u.identity, nil
}

// Authenticate marks the session as logged in as username. The caller has
// already verified the credentials.
func (u *ConnectedUser) Authenticate(username string) {
	u.identity = username
}

// Deauthenticate makes the session anonymous.
func (u *ConnectedUser) Deauthenticate() {
	u.identity = ""
}

// Account loads the logged-in user's account.
func (u *ConnectedUser) Account(ctx context.Context) (*account.Account, error) {
	identity, err := u.Identity()
	if err != nil {
		return nil, err
	}

	acct, err := u.store.Get(ctx, identity)
	if errors.Is(err, account.ErrNotFound) {
		return nil, oops.Code("SESSION_INCONSISTENT").
			With("conn_id", u.id.String()).
			With("identity", identity).
			Wrap(ErrInternalInconsistency)
	}
	if err != nil {
		return nil, oops.Code("SESSION_STORE_FAILED").
			With("conn_id", u.id.String()).
			With("identity", identity).
			Errorf("load session account: %v", err)
	}
	return acct, nil
}

// Subject returns the policy subject for the session: anonymous, or the
// role of the logged-in account.
func (u *ConnectedUser) Subject(ctx context.Context) (access.Subject, error) {
	if u.IsAnonymous() {
		return access.SubjectAnonymous, nil
	}
	acct, err := u.Account(ctx)
	if err != nil {
		return "", err
	}
	return access.SubjectForRole(acct.Role), nil
}
