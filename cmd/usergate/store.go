// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/usergate/usergate/internal/account"
	"github.com/usergate/usergate/internal/account/postgres"
	"github.com/usergate/usergate/internal/account/sqlite"
	"github.com/usergate/usergate/internal/config"
	"github.com/usergate/usergate/internal/xdg"
)

// Connection retry schedule for PostgreSQL.
const (
	connectRetryBase = 250 * time.Millisecond
	connectRetries   = 6
)

// StoreOpener opens the configured account store. The returned function
// releases it.
type StoreOpener func(ctx context.Context, cfg config.StoreConfig) (account.Store, func(), error)

// openStore is the default StoreOpener.
func openStore(ctx context.Context, cfg config.StoreConfig) (account.Store, func(), error) {
	switch cfg.Driver {
	case config.DriverMemory:
		slog.Warn("using the in-memory account store; accounts are lost on exit")
		return account.NewMemoryStore(), func() {}, nil

	case config.DriverSQLite:
		if err := xdg.EnsureDir(filepath.Dir(cfg.Path)); err != nil {
			return nil, nil, err //nolint:wrapcheck // carries its own code
		}
		store, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, nil, err //nolint:wrapcheck // carries its own code
		}
		slog.Info("opened sqlite account store", "path", cfg.Path)
		return store, func() {
			if err := store.Close(); err != nil {
				slog.Warn("error closing sqlite store", "error", err)
			}
		}, nil

	case config.DriverPostgres:
		pool, err := connectWithRetry(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := migrateUp(cfg.DSN); err != nil {
			pool.Close()
			return nil, nil, err
		}
		slog.Info("connected to postgres account store")
		return postgres.New(pool), pool.Close, nil

	default:
		return nil, nil, oops.Code("CONFIG_INVALID").
			With("driver", cfg.Driver).
			Errorf("unknown store driver %q", cfg.Driver)
	}
}

// connectWithRetry dials PostgreSQL with exponential backoff so the server
// can start alongside its database.
func connectWithRetry(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	backoff := retry.WithMaxRetries(connectRetries, retry.NewExponential(connectRetryBase))

	var pool *pgxpool.Pool
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		p, err := postgres.Connect(ctx, dsn)
		if err != nil {
			slog.Warn("database not reachable, retrying", "error", err)
			return retry.RetryableError(err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	return pool, nil
}

// migrateUp applies pending schema migrations.
func migrateUp(dsn string) error {
	migrator, err := postgres.NewMigrator(dsn)
	if err != nil {
		return err //nolint:wrapcheck // carries its own code
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Debug("error closing migrator", "error", closeErr)
		}
	}()
	return migrator.Up() //nolint:wrapcheck // carries its own code
}
