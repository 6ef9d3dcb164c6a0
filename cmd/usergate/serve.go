// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/usergate/usergate/internal/access"
	"github.com/usergate/usergate/internal/access/audit"
	"github.com/usergate/usergate/internal/account"
	"github.com/usergate/usergate/internal/action"
	"github.com/usergate/usergate/internal/auth"
	"github.com/usergate/usergate/internal/config"
	"github.com/usergate/usergate/internal/logging"
	"github.com/usergate/usergate/internal/observability"
	"github.com/usergate/usergate/internal/server"
	"github.com/usergate/usergate/pkg/errutil"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// StoreOpener opens the account store.
	// Default: openStore
	StoreOpener StoreOpener

	// Hasher derives password hashes.
	// Default: auth.NewArgon2idHasher
	Hasher auth.Hasher

	// OnReady is called with the client listen address once the server
	// accepts connections.
	OnReady func(addr string)
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.StoreOpener == nil {
		out.StoreOpener = openStore
	}
	if out.Hasher == nil {
		out.Hasher = auth.NewArgon2idHasher()
	}
	if out.OnReady == nil {
		out.OnReady = func(string) {}
	}
	return &out
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return newServeCmdWithDeps(nil)
}

func newServeCmdWithDeps(deps *ServeDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the usergate server",
		Long: `Start the usergate server. Bootstrap accounts are created on an empty
store, the authorization policy is loaded, and clients are accepted until
SIGINT or SIGTERM. SIGHUP reloads the policy file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, deps)
		},
	}

	config.RegisterFlags(cmd.Flags())

	return cmd
}

// runServeWithDeps starts the server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err //nolint:wrapcheck // carries its own code
	}
	logger := logging.SetDefault("usergate", version, cfg.Log.Format, level)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Info("starting usergate",
		"addr", cfg.Server.Addr,
		"store", cfg.Store.Driver,
		"audit_mode", cfg.Audit.Mode,
	)

	store, closeStore, err := deps.StoreOpener(ctx, cfg.Store)
	if err != nil {
		return err //nolint:wrapcheck // carries its own code
	}
	defer closeStore()

	if err := seedAccounts(ctx, store, deps.Hasher, cfg.Seed); err != nil {
		return err
	}

	evaluator, err := access.NewCasbinEvaluator(cfg.Policy.File)
	if err != nil {
		return err //nolint:wrapcheck // carries its own code
	}
	logger.Info("authorization policy loaded", "source", evaluator.Source(), "rules", len(evaluator.Rules()))
	go reloadOnHangup(ctx, evaluator, logger)

	auditLogger, closeAudit, err := newAuditLogger(cfg.Audit, logger)
	if err != nil {
		return err
	}
	defer closeAudit()

	ac, err := access.NewAccessControl(evaluator, auditLogger, access.WithLogger(logger))
	if err != nil {
		return err //nolint:wrapcheck // carries its own code
	}
	dispatcher, err := action.NewDispatcher(store, ac, deps.Hasher, action.WithLogger(logger))
	if err != nil {
		return err //nolint:wrapcheck // carries its own code
	}

	var srv *server.Server
	var obsServer *observability.Server
	var connMetrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = observability.NewServer(cfg.Metrics.Addr, readinessOptions(func() *server.Server { return srv }, store, logger)...)
		connMetrics = obsServer.Metrics()
	}

	srv = server.NewServer(cfg.Server.Addr, dispatcher, store,
		server.WithIdleTimeout(cfg.Server.IdleTimeout),
		server.WithWriteTimeout(cfg.Server.WriteTimeout),
		server.WithMetrics(connMetrics),
		server.WithLogger(logger),
	)

	if obsServer != nil {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.Metrics.Addr).Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := obsServer.Stop(shutdownCtx); err != nil {
				logger.Warn("error stopping observability server", "error", err)
			}
		}()
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- srv.Run(ctx)
	}()

	select {
	case <-srv.Ready():
	case err := <-runErr:
		return err //nolint:wrapcheck // carries its own code
	}

	cmd.Println("usergate listening on " + srv.Addr())
	deps.OnReady(srv.Addr())

	err = <-runErr
	logger.Info("shutdown complete")
	return err //nolint:wrapcheck // carries its own code
}

// seedAccounts creates the configured seed accounts that are missing.
func seedAccounts(ctx context.Context, store account.Store, hasher auth.Hasher, cfg config.SeedConfig) error {
	var seeds []account.SeedAccount
	if cfg.Defaults {
		seeds = append(seeds, account.DefaultSeed()...)
	}
	if cfg.File != "" {
		fromFile, err := account.LoadSeedFile(cfg.File)
		if err != nil {
			return err //nolint:wrapcheck // carries its own code
		}
		seeds = append(seeds, fromFile...)
	}
	if len(seeds) == 0 {
		return nil
	}

	created, err := account.Seed(ctx, store, hasher, seeds)
	if err != nil {
		return err //nolint:wrapcheck // carries its own code
	}
	slog.InfoContext(ctx, "seeding complete", "created", created, "requested", len(seeds))
	return nil
}

// newAuditLogger builds the audit logger. The returned function flushes
// and closes it.
func newAuditLogger(cfg config.AuditConfig, logger *slog.Logger) (*audit.Logger, func(), error) {
	mode, err := audit.ParseMode(cfg.Mode)
	if err != nil {
		return nil, nil, err //nolint:wrapcheck // carries its own code
	}

	if cfg.File == "" {
		auditLogger := audit.NewLogger(mode, audit.NewSlogWriter(logger))
		return auditLogger, auditLogger.Close, nil
	}

	fileWriter, err := audit.NewFileWriter(cfg.File)
	if err != nil {
		return nil, nil, err //nolint:wrapcheck // carries its own code
	}
	auditLogger := audit.NewLogger(mode, fileWriter)
	logger.Info("audit log opened", "path", cfg.File, "mode", mode)

	return auditLogger, func() {
		auditLogger.Close()
		if err := fileWriter.Close(); err != nil {
			errutil.LogError(logger, "error closing audit log", err)
		}
	}, nil
}

// reloadOnHangup reloads the policy on every SIGHUP until ctx is done.
// A failed reload keeps the previous policy.
func reloadOnHangup(ctx context.Context, evaluator *access.CasbinEvaluator, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := evaluator.Reload(); err != nil {
				errutil.LogError(logger, "policy reload failed, keeping previous policy", err)
				continue
			}
			logger.Info("authorization policy reloaded", "source", evaluator.Source(), "rules", len(evaluator.Rules()))
		}
	}
}

// errNotListening is reported by the listener readiness check until the
// client listener is bound.
var errNotListening = errors.New("not accepting connections")

// readinessOptions builds the observability options: action metrics, a
// listener check, and a store check when the store can be pinged. srv is
// resolved lazily because the observability server is built first.
func readinessOptions(srv func() *server.Server, store account.Store, logger *slog.Logger) []observability.Option {
	opts := []observability.Option{
		observability.WithLogger(logger),
		observability.WithCollectors(action.Collectors()...),
		observability.WithCheck("listener", func(context.Context) error {
			if s := srv(); s == nil || !isClosed(s.Ready()) {
				return errNotListening
			}
			return nil
		}),
	}
	if pinger, ok := store.(account.Pinger); ok {
		opts = append(opts, observability.WithCheck("store", pinger.Ping))
	}
	return opts
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
