// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

// Package sqlite implements account.Store on a SQLite file through bun.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/samber/oops"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/usergate/usergate/internal/account"
)

// accountModel is the row layout of the accounts table.
type accountModel struct {
	bun.BaseModel `bun:"table:accounts"`

	Username     string    `bun:"username,pk"`
	PasswordHash []byte    `bun:"password_hash,notnull"`
	Salt         []byte    `bun:"salt,notnull"`
	Phone        string    `bun:"phone,notnull"`
	Role         string    `bun:"role,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
	UpdatedAt    time.Time `bun:"updated_at,notnull"`
}

func toModel(a *account.Account) *accountModel {
	return &accountModel{
		Username:     a.Username,
		PasswordHash: a.PasswordHash,
		Salt:         a.Salt,
		Phone:        a.Phone,
		Role:         a.Role.String(),
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func (m *accountModel) toAccount() (*account.Account, error) {
	role, err := account.ParseRole(m.Role)
	if err != nil {
		return nil, oops.Code("SQLITE_CORRUPT_ROW").With("username", m.Username).Wrap(err)
	}
	return &account.Account{
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		Salt:         m.Salt,
		Phone:        m.Phone,
		Role:         role,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}, nil
}

// Store implements account.Store using SQLite.
//
// The pool is limited to a single connection: SQLite allows one writer at
// a time, and a single connection makes every transaction run serially.
type Store struct {
	db *bun.DB
}

// Open opens (creating if needed) the SQLite database at path and ensures
// the accounts table exists. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, oops.Code("SQLITE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	sqlDB.SetMaxOpenConns(1)

	db := bun.NewDB(sqlDB, sqlitedialect.New())

	if _, err := db.NewCreateTable().Model((*accountModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		_ = db.Close() //nolint:errcheck // init error takes precedence
		return nil, oops.Code("SQLITE_SCHEMA_FAILED").With("path", path).Wrap(err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return oops.Code("SQLITE_CLOSE_FAILED").Wrap(err)
	}
	return nil
}

// Ping implements account.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return oops.Code("SQLITE_PING_FAILED").Wrap(err)
	}
	return nil
}

// Get implements account.Store.
func (s *Store) Get(ctx context.Context, username string) (*account.Account, error) {
	return get(ctx, s.db, username)
}

func get(ctx context.Context, db bun.IDB, username string) (*account.Account, error) {
	m := new(accountModel)
	err := db.NewSelect().Model(m).Where("username = ?", username).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("username", username).Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SQLITE_QUERY_FAILED").
			With("operation", "get account").
			With("username", username).
			Wrap(err)
	}
	return m.toAccount()
}

// Insert implements account.Store.
func (s *Store) Insert(ctx context.Context, acct *account.Account) error {
	_, err := s.db.NewInsert().
		Model(toModel(acct)).
		On("CONFLICT (username) DO UPDATE").
		Set("password_hash = EXCLUDED.password_hash").
		Set("salt = EXCLUDED.salt").
		Set("phone = EXCLUDED.phone").
		Set("role = EXCLUDED.role").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return oops.Code("SQLITE_QUERY_FAILED").
			With("operation", "upsert account").
			With("username", acct.Username).
			Wrap(err)
	}
	return nil
}

// Values implements account.Store.
func (s *Store) Values(ctx context.Context) ([]*account.Account, error) {
	var models []accountModel
	if err := s.db.NewSelect().Model(&models).OrderExpr("username ASC").Scan(ctx); err != nil {
		return nil, oops.Code("SQLITE_QUERY_FAILED").With("operation", "list accounts").Wrap(err)
	}

	result := make([]*account.Account, 0, len(models))
	for i := range models {
		acct, err := models[i].toAccount()
		if err != nil {
			return nil, err
		}
		result = append(result, acct)
	}
	return result, nil
}

// Create implements account.Store.
func (s *Store) Create(ctx context.Context, acct *account.Account) error {
	res, err := s.db.NewInsert().
		Model(toModel(acct)).
		On("CONFLICT (username) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return oops.Code("SQLITE_QUERY_FAILED").
			With("operation", "create account").
			With("username", acct.Username).
			Wrap(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return oops.Code("SQLITE_QUERY_FAILED").
			With("operation", "create account rows affected").
			Wrap(err)
	}
	if n == 0 {
		return oops.Code("ACCOUNT_EXISTS").With("username", acct.Username).Wrap(account.ErrAlreadyExists)
	}
	return nil
}

// Update implements account.Store.
func (s *Store) Update(ctx context.Context, username string, fn func(*account.Account) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		acct, err := get(ctx, tx, username)
		if err != nil {
			return err
		}
		if err := fn(acct); err != nil {
			return err
		}
		acct.Username = username

		if _, err := tx.NewUpdate().Model(toModel(acct)).WherePK().Exec(ctx); err != nil {
			return oops.Code("SQLITE_QUERY_FAILED").
				With("operation", "update account").
				With("username", username).
				Wrap(err)
		}
		return nil
	})
}
