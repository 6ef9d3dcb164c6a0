//go:build integration

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package postgres_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/usergate/usergate/internal/account"
	"github.com/usergate/usergate/internal/account/accounttest"
	"github.com/usergate/usergate/internal/account/postgres"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("usergate"),
		tcpostgres.WithUsername("usergate"),
		tcpostgres.WithPassword("usergate"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestStore_Integration(t *testing.T) {
	ctx := context.Background()
	dsn := startPostgres(t)

	migrator, err := postgres.NewMigrator(dsn)
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	version, dirty, err := migrator.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
	require.NoError(t, migrator.Close())

	pool, err := postgres.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	accounttest.RunStoreSuite(t, func(t *testing.T) account.Store {
		truncate(t, pool)
		return postgres.New(pool)
	})
}

func TestMigrator_DownDropsAccounts(t *testing.T) {
	ctx := context.Background()
	dsn := startPostgres(t)

	migrator, err := postgres.NewMigrator(dsn)
	require.NoError(t, err)
	defer migrator.Close()

	require.NoError(t, migrator.Up())
	require.NoError(t, migrator.Down())

	pool, err := postgres.Connect(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	var exists bool
	err = pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'accounts')`).Scan(&exists)
	require.NoError(t, err)
	assert.False(t, exists)
}

func truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `TRUNCATE accounts`)
	require.NoError(t, err)
}
