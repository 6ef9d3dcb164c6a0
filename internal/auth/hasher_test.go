// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usergate/usergate/internal/auth"
	"github.com/usergate/usergate/pkg/errutil"
)

func TestGenerateSalt(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	salt1, err := hasher.GenerateSalt()
	require.NoError(t, err)
	salt2, err := hasher.GenerateSalt()
	require.NoError(t, err)

	assert.Len(t, salt1, auth.SaltLen)
	assert.NotEqual(t, salt1, salt2)
}

func TestHashPassword(t *testing.T) {
	hasher := auth.NewArgon2idHasher()
	salt, err := hasher.GenerateSalt()
	require.NoError(t, err)

	t.Run("same password and salt produce the same hash", func(t *testing.T) {
		hash1, err := hasher.Hash("password123", salt)
		require.NoError(t, err)
		hash2, err := hasher.Hash("password123", salt)
		require.NoError(t, err)
		assert.Equal(t, hash1, hash2)
	})

	t.Run("different salts produce different hashes", func(t *testing.T) {
		other, err := hasher.GenerateSalt()
		require.NoError(t, err)
		hash1, err := hasher.Hash("samepassword", salt)
		require.NoError(t, err)
		hash2, err := hasher.Hash("samepassword", other)
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := hasher.Hash("", salt)
		errutil.AssertErrorCode(t, err, "AUTH_EMPTY_PASSWORD")
	})

	t.Run("rejects empty salt", func(t *testing.T) {
		_, err := hasher.Hash("password123", nil)
		errutil.AssertErrorCode(t, err, "AUTH_EMPTY_SALT")
	})
}

func TestVerifyPassword(t *testing.T) {
	hasher := auth.NewArgon2idHasher()
	salt, err := hasher.GenerateSalt()
	require.NoError(t, err)
	hash, err := hasher.Hash("correctpassword", salt)
	require.NoError(t, err)

	t.Run("correct password verifies", func(t *testing.T) {
		assert.True(t, hasher.Verify("correctpassword", salt, hash))
	})

	t.Run("incorrect password fails", func(t *testing.T) {
		assert.False(t, hasher.Verify("wrongpassword", salt, hash))
	})

	t.Run("wrong salt fails", func(t *testing.T) {
		other, err := hasher.GenerateSalt()
		require.NoError(t, err)
		assert.False(t, hasher.Verify("correctpassword", other, hash))
	})

	t.Run("empty password fails", func(t *testing.T) {
		assert.False(t, hasher.Verify("", salt, hash))
	})

	t.Run("truncated hash fails", func(t *testing.T) {
		assert.False(t, hasher.Verify("correctpassword", salt, hash[:len(hash)-1]))
	})
}
