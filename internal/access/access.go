// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

// Package access decides whether a session may perform an action.
//
// Authorization is a declarative allow-list of (subject, object) pairs:
//   - subject: "anonymous" for an unauthenticated session, otherwise the
//     caller's role ("standard", "hr")
//   - object: the action's policy id ("show_users", "change_phone", ...)
//
// Anything not listed is denied. Every denial is audited.
package access

import (
	"context"

	"github.com/usergate/usergate/internal/account"
)

// Subject is the identity class a policy is written against.
type Subject string

// Known subjects.
const (
	SubjectAnonymous Subject = "anonymous"
	SubjectStandard  Subject = "standard"
	SubjectHR        Subject = "hr"
)

// SubjectForRole returns the subject for an authenticated account role.
func SubjectForRole(r account.Role) Subject {
	return Subject(r.String())
}

// String returns the subject name.
func (s Subject) String() string {
	return string(s)
}

// Evaluator answers whether subject is allow-listed for object.
// Implementations return an error only when the policy cannot be
// evaluated; a missing rule is (false, nil).
type Evaluator interface {
	Enforce(ctx context.Context, subject, object string) (bool, error)
}

// Request is one authorization question.
type Request struct {
	Subject Subject
	// Identity is the username of the caller, empty when anonymous.
	Identity string
	Object   string
}
