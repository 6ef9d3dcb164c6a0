// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

// Package postgres implements account.Store on PostgreSQL.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/usergate/usergate/internal/account"
)

// poolIface is the subset of *pgxpool.Pool used by Store, so tests can
// substitute pgxmock.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// Store implements account.Store using PostgreSQL.
//
// Create relies on the primary key to reject duplicates; Update locks the
// row with SELECT ... FOR UPDATE inside a transaction.
type Store struct {
	pool poolIface
}

// New creates a Store over an existing pool.
func New(pool poolIface) *Store {
	return &Store{pool: pool}
}

// Connect opens a pgx pool for dsn and pings it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code("POSTGRES_CONNECT_FAILED").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.Code("POSTGRES_CONNECT_FAILED").With("operation", "ping").Wrap(err)
	}
	return pool, nil
}

// Ping implements account.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return oops.Code("POSTGRES_PING_FAILED").Wrap(err)
	}
	return nil
}

const selectColumns = `username, password_hash, salt, phone, role, created_at, updated_at`

func scanAccount(row pgx.Row) (*account.Account, error) {
	var (
		a    account.Account
		role string
	)
	if err := row.Scan(&a.Username, &a.PasswordHash, &a.Salt, &a.Phone, &role, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err //nolint:wrapcheck // callers add context
	}
	parsed, err := account.ParseRole(role)
	if err != nil {
		return nil, oops.Code("POSTGRES_CORRUPT_ROW").With("username", a.Username).Wrap(err)
	}
	a.Role = parsed
	return &a, nil
}

// Get implements account.Store.
func (s *Store) Get(ctx context.Context, username string) (*account.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM accounts WHERE username = $1`, username)

	acct, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("username", username).Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("POSTGRES_QUERY_FAILED").
			With("operation", "get account").
			With("username", username).
			Wrap(err)
	}
	return acct, nil
}

// Insert implements account.Store.
func (s *Store) Insert(ctx context.Context, acct *account.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (username, password_hash, salt, phone, role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (username) DO UPDATE SET
		   password_hash = EXCLUDED.password_hash,
		   salt = EXCLUDED.salt,
		   phone = EXCLUDED.phone,
		   role = EXCLUDED.role,
		   updated_at = EXCLUDED.updated_at`,
		acct.Username, acct.PasswordHash, acct.Salt, acct.Phone, acct.Role.String(), acct.CreatedAt, acct.UpdatedAt)
	if err != nil {
		return oops.Code("POSTGRES_QUERY_FAILED").
			With("operation", "upsert account").
			With("username", acct.Username).
			Wrap(err)
	}
	return nil
}

// Values implements account.Store.
func (s *Store) Values(ctx context.Context) ([]*account.Account, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+selectColumns+` FROM accounts ORDER BY username`)
	if err != nil {
		return nil, oops.Code("POSTGRES_QUERY_FAILED").With("operation", "list accounts").Wrap(err)
	}
	defer rows.Close()

	var result []*account.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, oops.Code("POSTGRES_QUERY_FAILED").With("operation", "scan account row").Wrap(err)
		}
		result = append(result, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("POSTGRES_QUERY_FAILED").With("operation", "iterate accounts").Wrap(err)
	}
	return result, nil
}

// Create implements account.Store.
func (s *Store) Create(ctx context.Context, acct *account.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (username, password_hash, salt, phone, role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		acct.Username, acct.PasswordHash, acct.Salt, acct.Phone, acct.Role.String(), acct.CreatedAt, acct.UpdatedAt)
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return oops.Code("ACCOUNT_EXISTS").With("username", acct.Username).Wrap(account.ErrAlreadyExists)
	}
	return oops.Code("POSTGRES_QUERY_FAILED").
		With("operation", "create account").
		With("username", acct.Username).
		Wrap(err)
}

// Update implements account.Store.
func (s *Store) Update(ctx context.Context, username string, fn func(*account.Account) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return oops.Code("POSTGRES_QUERY_FAILED").With("operation", "begin update").Wrap(err)
	}
	defer func() {
		_ = tx.Rollback(ctx) //nolint:errcheck // no-op after commit
	}()

	row := tx.QueryRow(ctx, `SELECT `+selectColumns+` FROM accounts WHERE username = $1 FOR UPDATE`, username)
	acct, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.Code("ACCOUNT_NOT_FOUND").With("username", username).Wrap(account.ErrNotFound)
	}
	if err != nil {
		return oops.Code("POSTGRES_QUERY_FAILED").
			With("operation", "lock account").
			With("username", username).
			Wrap(err)
	}

	if err := fn(acct); err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE accounts SET password_hash = $2, salt = $3, phone = $4, role = $5, updated_at = $6
		 WHERE username = $1`,
		username, acct.PasswordHash, acct.Salt, acct.Phone, acct.Role.String(), acct.UpdatedAt)
	if err != nil {
		return oops.Code("POSTGRES_QUERY_FAILED").
			With("operation", "update account").
			With("username", username).
			Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("POSTGRES_QUERY_FAILED").With("operation", "commit update").Wrap(err)
	}
	return nil
}
