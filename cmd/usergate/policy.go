// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package main

import (
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/usergate/usergate/internal/access"
	"github.com/usergate/usergate/internal/config"
)

// NewPolicyCmd creates the policy subcommand.
func NewPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect the authorization policy",
		Long: `Inspect the authorization policy that serve would load: the built-in
policy, or the file named by --policy-file or policy.file.`,
	}
	config.RegisterPolicyFlags(cmd.PersistentFlags())

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "List every allow rule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			evaluator, err := loadEvaluator(cmd)
			if err != nil {
				return err
			}
			cmd.Print(formatRules(evaluator.Source(), evaluator.Rules()))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check SUBJECT OBJECT",
		Short: "Report whether SUBJECT may perform OBJECT",
		Long: `Evaluates one request against the policy and prints allow or deny.
Subjects: anonymous, standard, hr. Objects: ` + strings.Join(access.KnownObjects(), ", ") + `.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			evaluator, err := loadEvaluator(cmd)
			if err != nil {
				return err
			}
			subject, object := args[0], args[1]
			if !slices.Contains(access.KnownObjects(), object) {
				return oops.Code("UNKNOWN_OBJECT").
					With("object", object).
					Errorf("unknown object %q", object)
			}
			allowed, err := evaluator.Enforce(cmd.Context(), subject, object)
			if err != nil {
				return err //nolint:wrapcheck // carries its own code
			}
			effect := "deny"
			if allowed {
				effect = "allow"
			}
			cmd.Printf("%s %s %s\n", effect, subject, object)
			return nil
		},
	})

	return cmd
}

func loadEvaluator(cmd *cobra.Command) (*access.CasbinEvaluator, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return access.NewCasbinEvaluator(cfg.Policy.File) //nolint:wrapcheck // carries its own code
}

// formatRules renders rules as a subject/object table.
func formatRules(source string, rules [][2]string) string {
	var buf strings.Builder
	_, _ = fmt.Fprintf(&buf, "policy: %s\n", source)
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SUBJECT\tOBJECT")
	_, _ = fmt.Fprintln(w, "-------\t------")
	for _, r := range rules {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", r[0], r[1])
	}
	_ = w.Flush()
	return buf.String()
}
