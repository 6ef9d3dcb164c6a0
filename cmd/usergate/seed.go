// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package main

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/usergate/usergate/internal/account"
	"github.com/usergate/usergate/internal/config"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	timeout time.Duration
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	return newSeedCmdWithDeps(nil)
}

func newSeedCmdWithDeps(deps *ServeDeps) *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create accounts in the account store",
		Long: `Creates the bootstrap accounts and any accounts listed in --seed-file.
This command is idempotent - existing accounts are left untouched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd, cfg, deps)
		},
	}

	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for store operations (e.g., 30s, 1m)")
	config.RegisterStoreFlags(cmd.Flags())
	config.RegisterSeedFlags(cmd.Flags())

	return cmd
}

func runSeed(cmd *cobra.Command, cfg *seedConfig, deps *ServeDeps) error {
	deps = deps.withDefaults()

	appCfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if appCfg.Store.Driver == config.DriverMemory {
		return oops.Code("CONFIG_INVALID").Errorf("seeding the in-memory store has no effect; choose sqlite or postgres")
	}

	// Use cmd.Context() to respect SIGINT/SIGTERM signals
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, cfg.timeout)
	defer cancel()

	cmd.Println("Opening account store...")
	store, closeStore, err := deps.StoreOpener(ctx, appCfg.Store)
	if err != nil {
		return oops.Code("STORE_OPEN_FAILED").With("driver", appCfg.Store.Driver).Wrap(err)
	}
	defer closeStore()

	before, err := countAccounts(ctx, store)
	if err != nil {
		return err
	}
	if err := seedAccounts(ctx, store, deps.Hasher, appCfg.Seed); err != nil {
		return err
	}
	after, err := countAccounts(ctx, store)
	if err != nil {
		return err
	}

	cmd.Printf("Created %d account(s); store holds %d\n", after-before, after)
	return nil
}

func countAccounts(ctx context.Context, store account.Store) (int, error) {
	accts, err := store.Values(ctx)
	if err != nil {
		return 0, err //nolint:wrapcheck // carries its own code
	}
	return len(accts), nil
}

