// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

// Package xdg provides XDG Base Directory paths for usergate.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "usergate"

// ConfigDir returns the XDG config directory for usergate.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	return dir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns the XDG data directory for usergate.
// Checks XDG_DATA_HOME first, falls back to ~/.local/share.
func DataDir() string {
	return dir("XDG_DATA_HOME", ".local", "share")
}

// StateDir returns the XDG state directory for usergate.
// Checks XDG_STATE_HOME first, falls back to ~/.local/state.
func StateDir() string {
	return dir("XDG_STATE_HOME", ".local", "state")
}

func dir(env string, fallback ...string) string {
	base := os.Getenv(env)
	if base == "" {
		base = filepath.Join(append([]string{os.Getenv("HOME")}, fallback...)...)
	}
	return filepath.Join(base, appName)
}

// ConfigFile is the config file read when --config is not given.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// SQLitePath is the default location of the SQLite account database.
func SQLitePath() string {
	return filepath.Join(DataDir(), "accounts.db")
}

// AuditFile is the default location of the audit log.
func AuditFile() string {
	return filepath.Join(StateDir(), "audit.log")
}

// EnsureDir creates a directory and all parent directories if they don't exist.
// Directories are created with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.Code("XDG_MKDIR_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
