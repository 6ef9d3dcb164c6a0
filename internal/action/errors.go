// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package action

import (
	"errors"

	"github.com/samber/oops"

	"github.com/usergate/usergate/internal/protocol"
	"github.com/usergate/usergate/internal/session"
	"github.com/usergate/usergate/pkg/errutil"
)

// Error codes for request cycle failures.
const (
	CodeUnknownAction          = "UNKNOWN_ACTION"
	CodePermissionDenied       = "PERMISSION_DENIED"
	CodePolicyEvaluationFailed = "POLICY_EVALUATION_FAILED"
	CodeInvalidUsername        = "INVALID_USERNAME"
	CodeInvalidPassword        = "INVALID_PASSWORD"
	CodeInvalidPhone           = "INVALID_PHONE"
	CodeInvalidRole            = "INVALID_ROLE"
	CodeTargetNotFound         = "TARGET_NOT_FOUND"
	CodeUserExists             = "USER_EXISTS"
	CodeInvalidCredentials     = "INVALID_CREDENTIALS"
	CodeNotLoggedIn            = "NOT_LOGGED_IN"
	CodeInternalInconsistency  = "INTERNAL_INCONSISTENCY"
	CodeStoreFailed            = "STORE_FAILED"
	CodeSendFailed             = "SEND_FAILED"
)

// Client-facing messages.
const (
	MsgPermissionDenied   = "You can't do this action"
	MsgInvalidUsername    = "Invalid username format"
	MsgInvalidPassword    = "Invalid password format"
	MsgInvalidPhone       = "Invalid phone format"
	MsgInvalidRole        = "Invalid role"
	MsgTargetNotFound     = "Target user not found"
	MsgUserExists         = "User already exists"
	MsgInvalidCredentials = "Invalid inputs"
	MsgNotLoggedIn        = "You must be logged in"
	MsgInternal           = "Internal error"
)

// ErrExit is returned by Perform when the client asked to end the
// connection. No response is sent.
var ErrExit = errors.New("client exit")

// ErrPermissionDenied creates an error for an action the subject is not
// allow-listed for.
func ErrPermissionDenied(a Action, subject string) error {
	return oops.Code(CodePermissionDenied).
		With("action", a.String()).
		With("subject", subject).
		Errorf("%s may not %s", subject, a.Object())
}

// ErrInvalidUsername creates a validation error for a malformed username.
func ErrInvalidUsername(username string) error {
	return oops.Code(CodeInvalidUsername).With("username", username).Errorf("invalid username format")
}

// ErrInvalidPassword creates a validation error for a weak or malformed
// password. The password itself is never attached.
func ErrInvalidPassword() error {
	return oops.Code(CodeInvalidPassword).Errorf("invalid password format")
}

// ErrInvalidPhone creates a validation error for a malformed phone number.
func ErrInvalidPhone(phone string) error {
	return oops.Code(CodeInvalidPhone).With("phone", phone).Errorf("invalid phone format")
}

// ErrInvalidRole creates a validation error for an unknown role.
func ErrInvalidRole(role string) error {
	return oops.Code(CodeInvalidRole).With("role", role).Errorf("invalid role %q", role)
}

// ErrTargetNotFound creates an error for an action naming a missing user.
func ErrTargetNotFound(username string) error {
	return oops.Code(CodeTargetNotFound).With("username", username).Errorf("target user not found")
}

// ErrUserExists creates a conflict error for AddUser.
func ErrUserExists(username string) error {
	return oops.Code(CodeUserExists).With("username", username).Errorf("user already exists")
}

// ErrInvalidCredentials creates the login failure error. Unknown users and
// wrong passwords are indistinguishable to the client.
func ErrInvalidCredentials(username string) error {
	return oops.Code(CodeInvalidCredentials).With("username", username).Errorf("invalid credentials")
}

// ErrNotLoggedIn creates an error for an action needing an identity.
func ErrNotLoggedIn(a Action) error {
	return oops.Code(CodeNotLoggedIn).With("action", a.String()).Errorf("not logged in")
}

// ErrInternalInconsistency creates the fatal error for a session whose
// identity has no account.
func ErrInternalInconsistency(identity string) error {
	return oops.Code(CodeInternalInconsistency).
		With("identity", identity).
		Wrap(session.ErrInternalInconsistency)
}

// StoreError wraps an unexpected store failure. The connection is kept.
func StoreError(operation string, cause error) error {
	return oops.Code(CodeStoreFailed).
		With("operation", operation).
		With("cause", cause.Error()).
		Errorf("%s failed", operation)
}

// ClientMessage returns the message sent to the client for err.
// Unrecognised errors map to MsgInternal so no internal detail leaks.
func ClientMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, session.ErrInternalInconsistency) {
		return MsgInternal
	}

	switch errutil.Code(err) {
	case CodePermissionDenied, CodePolicyEvaluationFailed:
		return MsgPermissionDenied
	case CodeInvalidUsername:
		return MsgInvalidUsername
	case CodeInvalidPassword:
		return MsgInvalidPassword
	case CodeInvalidPhone:
		return MsgInvalidPhone
	case CodeInvalidRole:
		return MsgInvalidRole
	case CodeTargetNotFound:
		return MsgTargetNotFound
	case CodeUserExists:
		return MsgUserExists
	case CodeInvalidCredentials:
		return MsgInvalidCredentials
	case CodeNotLoggedIn, "SESSION_NOT_LOGGED_IN":
		return MsgNotLoggedIn
	default:
		return MsgInternal
	}
}

// IsFatal reports whether err ends the connection: malformed framing, a
// gone peer, or a session whose account vanished.
func IsFatal(err error) bool {
	return errors.Is(err, protocol.ErrProtocol) ||
		errors.Is(err, protocol.ErrClosed) ||
		errors.Is(err, session.ErrInternalInconsistency)
}
