// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2KeyLen  = 32        // output length in bytes

	// SaltLen is the length in bytes of generated salts.
	SaltLen = 32
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// DummySalt is hashed against when a login names an unknown account, so the
// response takes as long as a real verification.
var DummySalt = make([]byte, SaltLen)

// ErrEmptySalt is returned when attempting to hash with an empty salt.
var ErrEmptySalt = oops.Code("AUTH_EMPTY_SALT").Errorf("salt cannot be empty")

// Hasher generates salts and salted password hashes. The salt is stored
// next to the hash in the account record, never embedded in it.
type Hasher interface {
	// GenerateSalt returns a fresh random salt.
	GenerateSalt() ([]byte, error)

	// Hash derives the password hash for password under salt.
	Hash(password string, salt []byte) ([]byte, error)

	// Verify reports whether password hashed under salt equals hash.
	// The comparison is constant-time.
	Verify(password string, salt, hash []byte) bool
}

// Argon2idHasher implements Hasher using argon2id.
type Argon2idHasher struct{}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

// GenerateSalt returns SaltLen random bytes.
func (h *Argon2idHasher) GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}
	return salt, nil
}

// Hash derives an argon2id key from password and salt.
func (h *Argon2idHasher) Hash(password string, salt []byte) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	if len(salt) == 0 {
		return nil, ErrEmptySalt
	}
	return argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen), nil
}

// Verify recomputes the hash and compares it with the stored one.
func (h *Argon2idHasher) Verify(password string, salt, hash []byte) bool {
	computed, err := h.Hash(password, salt)
	if err != nil {
		return false
	}
	// Constant-time comparison
	return subtle.ConstantTimeCompare(computed, hash) == 1
}
