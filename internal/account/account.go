// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

// Package account defines user accounts and the store that persists them.
package account

import (
	"bytes"
	"time"

	"github.com/samber/oops"
)

// Role is the role attached to a persisted account.
type Role string

// Account roles.
const (
	RoleStandard Role = "standard"
	RoleHR       Role = "hr"
)

// roleAliases maps every accepted spelling to its role.
var roleAliases = map[string]Role{
	"standard":     RoleStandard,
	"StandardUser": RoleStandard,
	"hr":           RoleHR,
	"HR":           RoleHR,
}

// ParseRole converts a wire or config spelling into a Role.
func ParseRole(s string) (Role, error) {
	r, ok := roleAliases[s]
	if !ok {
		return "", oops.Code("ACCOUNT_INVALID_ROLE").With("role", s).Errorf("unknown role %q", s)
	}
	return r, nil
}

// String returns the canonical role name.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleStandard || r == RoleHR
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, oops.Code("ACCOUNT_INVALID_ROLE").With("role", string(r)).Errorf("unknown role %q", string(r))
	}
	return []byte(r), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Account is a persisted user account. Username is the unique,
// case-sensitive key.
type Account struct {
	Username     string
	PasswordHash []byte
	Salt         []byte
	Phone        string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is the part of an account that may be shown to clients.
type Profile struct {
	Username string `json:"username"`
	Phone    string `json:"phone"`
	Role     Role   `json:"role"`
}

// Public returns the client-visible projection of the account.
func (a *Account) Public() Profile {
	return Profile{Username: a.Username, Phone: a.Phone, Role: a.Role}
}

// SetPhone replaces the phone number and bumps UpdatedAt.
func (a *Account) SetPhone(phone string) {
	a.Phone = phone
	a.UpdatedAt = time.Now()
}

// Clone returns a deep copy so callers cannot alias stored state.
func (a *Account) Clone() *Account {
	c := *a
	c.PasswordHash = bytes.Clone(a.PasswordHash)
	c.Salt = bytes.Clone(a.Salt)
	return &c
}

// New builds an account with timestamps set to now.
func New(username string, passwordHash, salt []byte, phone string, role Role) *Account {
	now := time.Now()
	return &Account{
		Username:     username,
		PasswordHash: passwordHash,
		Salt:         salt,
		Phone:        phone,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
