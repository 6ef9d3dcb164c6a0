// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package access

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/usergate/usergate/internal/access/audit"
	"github.com/usergate/usergate/pkg/errutil"
)

// ErrPolicyEvaluation marks a decision that could not be computed. The
// request is denied.
var ErrPolicyEvaluation = errors.New("policy evaluation failed")

// Denial reasons recorded in audit entries.
const (
	ReasonNotAllowListed  = "not_allow_listed"
	ReasonUnknownObject   = "unknown_object"
	ReasonEvaluationError = "evaluation_error"
)

// AccessControl combines an Evaluator with mandatory denial auditing.
// It is safe for concurrent use if the Evaluator is.
//
//nolint:revive // name used throughout the dispatcher
type AccessControl struct {
	evaluator Evaluator
	audit     *audit.Logger
	logger    *slog.Logger
	objects   map[string]struct{}
}

// Option configures an AccessControl.
type Option func(*AccessControl)

// WithLogger sets the logger for operational messages.
func WithLogger(l *slog.Logger) Option {
	return func(c *AccessControl) {
		c.logger = l
	}
}

// NewAccessControl creates an AccessControl. Both arguments are required.
func NewAccessControl(evaluator Evaluator, auditLogger *audit.Logger, opts ...Option) (*AccessControl, error) {
	if evaluator == nil {
		return nil, oops.In("access").Code("NIL_EVALUATOR").Errorf("evaluator is required")
	}
	if auditLogger == nil {
		return nil, oops.In("access").Code("NIL_AUDIT_LOGGER").Errorf("audit logger is required")
	}

	objects := make(map[string]struct{})
	for _, o := range KnownObjects() {
		objects[o] = struct{}{}
	}

	c := &AccessControl{
		evaluator: evaluator,
		audit:     auditLogger,
		logger:    slog.Default(),
		objects:   objects,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Authorize reports whether req is allow-listed. A false result has
// already been audited when Authorize returns. A non-nil error wraps
// ErrPolicyEvaluation and always comes with false.
func (c *AccessControl) Authorize(ctx context.Context, req Request) (bool, error) {
	start := time.Now()

	if _, ok := c.objects[req.Object]; !ok {
		c.deny(ctx, req, ReasonUnknownObject)
		recordDecision(start, "unknown", string(audit.EffectDeny))
		return false, nil
	}

	allowed, err := c.evaluator.Enforce(ctx, req.Subject.String(), req.Object)
	if err != nil {
		policyErrors.Inc()
		errutil.LogError(c.logger, "policy evaluation failed, denying", err)
		c.deny(ctx, req, ReasonEvaluationError)
		recordDecision(start, req.Object, string(audit.EffectDeny))
		return false, oops.In("access").
			Code("POLICY_EVALUATION_FAILED").
			With("subject", req.Subject.String()).
			With("object", req.Object).
			With("cause", err.Error()).
			Wrap(ErrPolicyEvaluation)
	}

	if !allowed {
		c.deny(ctx, req, ReasonNotAllowListed)
		recordDecision(start, req.Object, string(audit.EffectDeny))
		return false, nil
	}

	c.audit.Log(ctx, audit.Entry{
		Subject:  req.Subject.String(),
		Identity: identityOrAnonymous(req.Identity),
		Object:   req.Object,
		Effect:   audit.EffectAllow,
	})
	recordDecision(start, req.Object, string(audit.EffectAllow))
	return true, nil
}

func (c *AccessControl) deny(ctx context.Context, req Request, reason string) {
	identity := identityOrAnonymous(req.Identity)
	c.audit.Log(ctx, audit.Entry{
		Subject:  req.Subject.String(),
		Identity: identity,
		Object:   req.Object,
		Effect:   audit.EffectDeny,
		Reason:   reason,
	})
	c.logger.WarnContext(ctx, "access denied",
		"subject", req.Subject.String(),
		"identity", identity,
		"object", req.Object,
		"reason", reason)
}

func identityOrAnonymous(identity string) string {
	if identity == "" {
		return string(SubjectAnonymous)
	}
	return identity
}
