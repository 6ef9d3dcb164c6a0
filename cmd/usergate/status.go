// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/usergate/usergate/internal/config"
	"github.com/usergate/usergate/internal/observability"
)

const statusTimeout = 2 * time.Second

// ServerStatus holds the health of a running server as reported by its
// observability endpoint.
type ServerStatus struct {
	Addr  string `json:"addr"`
	Live  bool   `json:"live"`
	Ready bool   `json:"ready"`
	// Checks holds the outcome of each readiness check.
	Checks map[string]string `json:"checks,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the health of a running usergate server",
		Long:  `Queries the liveness and readiness probes on the server's metrics address.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	config.RegisterMetricsFlags(cmd.Flags())

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	appCfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if appCfg.Metrics.Addr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("metrics address is disabled; status needs --metrics-addr")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	status := queryServerStatus(ctx, &http.Client{Timeout: statusTimeout}, appCfg.Metrics.Addr)

	var output string
	if cfg.jsonOutput {
		output, err = formatStatusJSON(status)
		if err != nil {
			return err
		}
	} else {
		output = formatStatusTable(status)
	}

	cmd.Println(output)
	return nil
}

// queryServerStatus probes the health endpoints at addr.
func queryServerStatus(ctx context.Context, client *http.Client, addr string) ServerStatus {
	status := ServerStatus{Addr: addr}

	live, _, err := probe(ctx, client, "http://"+addr+"/healthz/liveness")
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	status.Live = live

	ready, body, err := probe(ctx, client, "http://"+addr+"/healthz/readiness")
	if err != nil {
		status.Error = fmt.Sprintf("readiness probe failed: %v", err)
		return status
	}
	status.Ready = ready
	status.Checks = body.Checks
	return status
}

// probe reports whether url answers 200 OK, along with the decoded probe
// body. A body that is not a probe response is ignored.
func probe(ctx context.Context, client *http.Client, url string) (bool, observability.ProbeResponse, error) {
	var body observability.ProbeResponse

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return false, body, oops.Code("STATUS_REQUEST_FAILED").With("url", url).Wrap(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, body, oops.Code("STATUS_REQUEST_FAILED").With("url", url).Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	_ = json.NewDecoder(resp.Body).Decode(&body) //nolint:errcheck // status code decides
	return resp.StatusCode == http.StatusOK, body, nil
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(status ServerStatus) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "ADDR\tSTATUS\tREADY")
	_, _ = fmt.Fprintln(w, "----\t------\t-----")

	switch {
	case status.Error != "" && !status.Live:
		_, _ = fmt.Fprintf(w, "%s\tstopped\t-\t%s\n", status.Addr, status.Error)
	case status.Ready:
		_, _ = fmt.Fprintf(w, "%s\trunning\tyes\n", status.Addr)
	default:
		_, _ = fmt.Fprintf(w, "%s\trunning\tno\t%s\n", status.Addr, failingChecks(status.Checks))
	}

	_ = w.Flush()
	return buf.String()
}

// failingChecks lists the checks that did not pass as "name: reason".
func failingChecks(checks map[string]string) string {
	names := make([]string, 0, len(checks))
	for name, result := range checks {
		if result != "ok" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+checks[name])
	}
	return strings.Join(parts, ", ")
}

// formatStatusJSON formats the status as JSON.
func formatStatusJSON(status ServerStatus) (string, error) {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return "", oops.Code("STATUS_FORMAT_FAILED").Wrap(err)
	}
	return string(data), nil
}
