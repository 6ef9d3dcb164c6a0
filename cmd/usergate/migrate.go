// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/usergate/usergate/internal/account/postgres"
	"github.com/usergate/usergate/internal/config"
)

// Migrator is the subset of postgres.Migrator used by the migrate command.
type Migrator interface {
	Up() error
	Down() error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Close() error
}

// MigratorFactory creates a Migrator for a database URL.
type MigratorFactory func(databaseURL string) (Migrator, error)

func newPostgresMigrator(databaseURL string) (Migrator, error) {
	return postgres.NewMigrator(databaseURL) //nolint:wrapcheck // carries its own code
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmdWithFactory(newPostgresMigrator)
}

func newMigrateCmdWithFactory(factory MigratorFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage PostgreSQL schema migrations",
		Long: `Manage the PostgreSQL account schema. The database comes from --dsn,
the config file, or DATABASE_URL.`,
	}
	config.RegisterStoreFlags(cmd.PersistentFlags())

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, factory, func(m Migrator) error {
				cmd.Println("Running migrations...")
				if err := m.Up(); err != nil {
					return err //nolint:wrapcheck // carries its own code
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, factory, func(m Migrator) error {
				cmd.Println("Rolling back migrations...")
				if err := m.Down(); err != nil {
					return err //nolint:wrapcheck // carries its own code
				}
				cmd.Println("Rollback completed successfully")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, factory, func(m Migrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err //nolint:wrapcheck // carries its own code
				}
				state := "clean"
				if dirty {
					state = "dirty"
				}
				cmd.Printf("Schema version %d (%s)\n", version, state)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long:  `Marks the schema as being at VERSION and clears the dirty flag. Use after fixing a failed migration by hand.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, factory, func(m Migrator) error {
				if err := m.Force(version); err != nil {
					return err //nolint:wrapcheck // carries its own code
				}
				cmd.Printf("Schema version forced to %d\n", version)
				return nil
			})
		},
	})

	return cmd
}

// withMigrator resolves the database URL, opens a migrator, runs fn and
// closes the migrator.
func withMigrator(cmd *cobra.Command, factory MigratorFactory, fn func(Migrator) error) error {
	databaseURL, err := getDatabaseURL(cmd)
	if err != nil {
		return err
	}

	m, err := factory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrln("warning: closing migrator:", closeErr)
		}
	}()

	return fn(m)
}

// getDatabaseURL returns the configured PostgreSQL DSN.
func getDatabaseURL(cmd *cobra.Command) (string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	if cfg.Store.DSN == "" {
		return "", oops.Code("CONFIG_INVALID").Errorf("a database is required: set --dsn, store.dsn or DATABASE_URL")
	}
	return cfg.Store.DSN, nil
}

// parseForceVersion reads a leading integer from s.
func parseForceVersion(s string) (int, error) {
	if strings.TrimSpace(s) == "" {
		return 0, oops.Code("INVALID_VERSION").Errorf("version is required")
	}
	var version int
	if _, err := fmt.Sscanf(s, "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Wrap(err)
	}
	return version, nil
}
