// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package access

import (
	"cmp"
	"context"
	_ "embed"
	"slices"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"
	"github.com/samber/oops"
)

//go:embed model.conf
var casbinModel string

//go:embed policy.csv
var defaultPolicyCSV string

// DefaultPolicyCSV returns the embedded reference policy in casbin CSV form.
func DefaultPolicyCSV() string {
	return defaultPolicyCSV
}

// CasbinEvaluator is an Evaluator backed by a casbin synced enforcer.
// The policy can be reloaded while requests are being evaluated.
type CasbinEvaluator struct {
	enforcer *casbin.SyncedEnforcer
	source   string
}

// NewCasbinEvaluator loads the policy from policyFile, a casbin CSV file.
// An empty policyFile selects the embedded reference policy.
func NewCasbinEvaluator(policyFile string) (*CasbinEvaluator, error) {
	m, err := model.NewModelFromString(casbinModel)
	if err != nil {
		return nil, oops.In("access").Code("POLICY_MODEL_INVALID").Wrap(err)
	}

	var (
		adapter persist.Adapter
		source  = policyFile
	)
	if policyFile == "" {
		adapter = stringadapter.NewAdapter(defaultPolicyCSV)
		source = "embedded"
	} else {
		adapter = fileadapter.NewAdapter(policyFile)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, oops.In("access").
			Code("POLICY_LOAD_FAILED").
			With("source", source).
			Wrap(err)
	}
	return &CasbinEvaluator{enforcer: enforcer, source: source}, nil
}

// Enforce implements Evaluator.
func (c *CasbinEvaluator) Enforce(_ context.Context, subject, object string) (bool, error) {
	ok, err := c.enforcer.Enforce(subject, object)
	if err != nil {
		return false, oops.In("access").
			Code("POLICY_ENFORCE_FAILED").
			With("subject", subject).
			With("object", object).
			Wrap(err)
	}
	return ok, nil
}

// Reload re-reads the policy from its source. On failure the previous
// policy stays in effect.
func (c *CasbinEvaluator) Reload() error {
	if err := c.enforcer.LoadPolicy(); err != nil {
		return oops.In("access").Code("POLICY_LOAD_FAILED").With("source", c.source).Wrap(err)
	}
	return nil
}

// Source names where the policy was loaded from.
func (c *CasbinEvaluator) Source() string {
	return c.source
}

// Rules returns the loaded (subject, object) pairs, sorted.
func (c *CasbinEvaluator) Rules() [][2]string {
	var out [][2]string
	if ast, ok := c.enforcer.GetModel()["p"]["p"]; ok {
		for _, rule := range ast.Policy {
			if len(rule) >= 2 {
				out = append(out, [2]string{rule[0], rule[1]})
			}
		}
	}
	slices.SortFunc(out, func(a, b [2]string) int {
		if c := cmp.Compare(a[0], b[0]); c != 0 {
			return c
		}
		return cmp.Compare(a[1], b[1])
	})
	return out
}
