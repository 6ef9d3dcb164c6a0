// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package postgres

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	// Register pgx/v5 database driver for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// schemaMigrator is the part of *migrate.Migrate the Migrator drives.
type schemaMigrator interface {
	Up() error
	Down() error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Close() (source error, database error)
}

// Migrator manages the accounts schema from the migrations embedded in
// this package.
type Migrator struct {
	m      schemaMigrator
	logger *slog.Logger
}

// NewMigrator opens the database at dsn for migration. The accounts
// schema is read from the embedded migration files.
func NewMigrator(dsn string) (*Migrator, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, oops.Code("MIGRATION_SOURCE_FAILED").Wrap(err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrationURL(dsn))
	if err != nil {
		_ = source.Close() //nolint:errcheck // init error takes precedence
		return nil, oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
	}

	logger := slog.Default().With("component", "migrate")
	m.Log = migrateLog{logger: logger}
	return &Migrator{m: m, logger: logger}, nil
}

// migrationURL rewrites postgres:// and postgresql:// DSNs to the pgx5
// scheme registered with golang-migrate. Other values pass through.
func migrationURL(dsn string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if rest, ok := strings.CutPrefix(dsn, scheme); ok {
			return "pgx5://" + rest
		}
	}
	return dsn
}

// Up applies every pending migration. A dirty schema is refused until it
// has been repaired and forced to a clean version.
func (m *Migrator) Up() error {
	from, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if dirty {
		return oops.Code("MIGRATION_DIRTY").
			With("version", from).
			Hint("repair the schema, then run: usergate migrate force VERSION").
			Errorf("accounts schema is dirty at version %d", from)
	}

	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_UP_FAILED").With("from", from).Wrap(err)
	}

	to, _, err := m.Version()
	if err != nil {
		return err
	}
	if to != from {
		m.logger.Info("accounts schema migrated", "from", from, "to", to)
	}
	return nil
}

// Down rolls back every migration, dropping the accounts table.
func (m *Migrator) Down() error {
	if err := m.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_DOWN_FAILED").Wrap(err)
	}
	m.logger.Info("accounts schema rolled back")
	return nil
}

// Version returns the applied schema version and whether the last
// migration failed part-way. An empty database is version 0.
func (m *Migrator) Version() (version uint, dirty bool, err error) {
	version, dirty, err = m.m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, false, nil
	case err != nil:
		return 0, false, oops.Code("MIGRATION_VERSION_FAILED").Wrap(err)
	}
	return version, dirty, nil
}

// Force records version as applied and clean without running anything.
func (m *Migrator) Force(version int) error {
	if version < 0 {
		return oops.Code("INVALID_VERSION").Errorf("version must be non-negative, got %d", version)
	}
	if err := m.m.Force(version); err != nil {
		return oops.Code("MIGRATION_FORCE_FAILED").With("version", version).Wrap(err)
	}
	m.logger.Warn("accounts schema version forced", "version", version)
	return nil
}

// Close releases the migration source and database connection.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	if err := errors.Join(srcErr, dbErr); err != nil {
		return oops.Code("MIGRATION_CLOSE_FAILED").
			With("source_failed", srcErr != nil).
			With("database_failed", dbErr != nil).
			Wrap(err)
	}
	return nil
}

// migrateLog routes golang-migrate progress messages to slog at debug level.
type migrateLog struct {
	logger *slog.Logger
}

func (l migrateLog) Printf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLog) Verbose() bool {
	return false
}
