// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package access

import (
	"context"
	"maps"
	"slices"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// AllowList is an in-memory Evaluator. Object patterns are globs, so a
// subject may be granted "*".
//
// AllowList is immutable after construction.
type AllowList struct {
	rules map[string][]compiledPattern
}

type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

// NewAllowList compiles rules, a map of subject to object patterns.
// Returns an error if any pattern is not a valid glob.
func NewAllowList(rules map[string][]string) (*AllowList, error) {
	compiled := make(map[string][]compiledPattern, len(rules))
	for subject, patterns := range rules {
		list := make([]compiledPattern, 0, len(patterns))
		for _, p := range patterns {
			g, err := glob.Compile(p)
			if err != nil {
				return nil, oops.In("access").
					Code("INVALID_POLICY_PATTERN").
					With("subject", subject).
					With("pattern", p).
					Wrap(err)
			}
			list = append(list, compiledPattern{pattern: p, glob: g})
		}
		compiled[subject] = list
	}
	return &AllowList{rules: compiled}, nil
}

// NewDefaultAllowList returns an AllowList over DefaultPolicy.
//
// Panics if the default policy contains an invalid pattern (programming error).
func NewDefaultAllowList() *AllowList {
	al, err := NewAllowList(DefaultPolicy())
	if err != nil {
		panic("invalid pattern in DefaultPolicy: " + err.Error())
	}
	return al
}

// Enforce implements Evaluator. It never returns an error.
func (a *AllowList) Enforce(_ context.Context, subject, object string) (bool, error) {
	for _, p := range a.rules[subject] {
		if p.glob.Match(object) {
			return true, nil
		}
	}
	return false, nil
}

// Rules returns the (subject, pattern) pairs, sorted by subject.
func (a *AllowList) Rules() [][2]string {
	var out [][2]string
	for _, subject := range slices.Sorted(maps.Keys(a.rules)) {
		for _, p := range a.rules[subject] {
			out = append(out, [2]string{subject, p.pattern})
		}
	}
	return out
}
