// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package account

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/usergate/usergate/internal/auth"
)

// SeedAccount describes an account to create at startup.
type SeedAccount struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Phone    string `yaml:"phone"`
	Role     Role   `yaml:"role"`
}

// seedFile is the on-disk layout read by LoadSeedFile.
type seedFile struct {
	Accounts []SeedAccount `yaml:"accounts"`
}

// DefaultSeedPassword is the password of the bootstrap accounts. It has to
// pass the same strength check Login applies.
//
//nolint:gosec // G101: bootstrap credentials are documented and meant to be changed
const DefaultSeedPassword = "correct-Horse-battery-staple-42"

// DefaultSeed returns the two bootstrap accounts created on an empty store.
func DefaultSeed() []SeedAccount {
	return []SeedAccount{
		{Username: "default_user", Password: DefaultSeedPassword, Phone: "0784539872", Role: RoleStandard},
		{Username: "default_hr", Password: DefaultSeedPassword, Phone: "0793175289", Role: RoleHR},
	}
}

// LoadSeedFile reads seed accounts from a YAML file of the form
//
//	accounts:
//	  - username: alice
//	    password: ...
//	    phone: "0712345678"
//	    role: hr
func LoadSeedFile(path string) ([]SeedAccount, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, oops.Code("SEED_READ_FAILED").With("path", path).Wrap(err)
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, oops.Code("SEED_PARSE_FAILED").With("path", path).Wrap(err)
	}

	for i, s := range f.Accounts {
		if s.Username == "" || s.Password == "" {
			return nil, oops.Code("SEED_PARSE_FAILED").
				With("path", path).
				With("index", i).
				Errorf("seed account %d needs a username and a password", i)
		}
		if !s.Role.Valid() {
			return nil, oops.Code("SEED_PARSE_FAILED").
				With("path", path).
				With("username", s.Username).
				Errorf("seed account %q has no valid role", s.Username)
		}
	}
	return f.Accounts, nil
}

// Seed creates every seed account whose username is not taken yet and
// returns how many were created. Existing accounts are left untouched.
func Seed(ctx context.Context, store Store, hasher auth.Hasher, seeds []SeedAccount) (int, error) {
	created := 0
	for _, s := range seeds {
		salt, err := hasher.GenerateSalt()
		if err != nil {
			return created, oops.Code("SEED_FAILED").With("username", s.Username).Wrap(err)
		}
		hash, err := hasher.Hash(s.Password, salt)
		if err != nil {
			return created, oops.Code("SEED_FAILED").With("username", s.Username).Wrap(err)
		}

		err = store.Create(ctx, New(s.Username, hash, salt, s.Phone, s.Role))
		if errors.Is(err, ErrAlreadyExists) {
			slog.DebugContext(ctx, "seed account already present", "username", s.Username)
			continue
		}
		if err != nil {
			return created, oops.Code("SEED_FAILED").With("username", s.Username).Wrap(err)
		}

		slog.InfoContext(ctx, "seeded account", "username", s.Username, "role", s.Role)
		created++
	}
	return created, nil
}
