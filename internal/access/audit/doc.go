// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

// Package audit records access control decisions.
//
// Every denial is written synchronously before the caller sees the
// decision. Allows are only recorded in ModeAll, and then asynchronously.
// When the configured writer fails, the entry is written to the fallback
// writer (structured log) so a denial is never dropped silently.
package audit
