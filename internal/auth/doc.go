// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

// Package auth provides the credential primitives used by usergate.
//
// Passwords are hashed with argon2id under a per-account random salt. The
// salt and the raw hash are stored as separate fields of the account record;
// verification re-hashes the submitted password with the stored salt and
// compares the result in constant time.
package auth
