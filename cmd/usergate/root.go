// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/usergate/usergate/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the usergate CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usergate",
		Short: "usergate - authorization-gated user directory server",
		Long: `usergate serves a small user directory over a line-oriented JSON
protocol. Every request is checked against a default-deny allow-list
and every denial is audited.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/usergate/config.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewSeedCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewPolicyCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}

// loadConfig reads configuration for cmd, letting flags registered with
// config.RegisterFlags override the file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(configFile, cmd.Flags()) //nolint:wrapcheck // config errors carry their own codes
}
