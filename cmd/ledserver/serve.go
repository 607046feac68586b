// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"ledserver/internal/config"
	"ledserver/internal/issue"
	"ledserver/internal/logging"
	"ledserver/internal/server"
	"ledserver/pkg/types"

	"github.com/spf13/cobra"
)

type serveFlags struct {
	ports       []int
	host        string
	metricsAddr string
	noPersist   bool
	framing     string
	logLevel    string
}

func newServeCommand(app *App) *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the server until interrupted",
		Long: `Run the server until interrupted.

Snapshotted continuous animations are resumed before any port is opened.
A port that cannot be bound is skipped; the command fails only when none
can be opened.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, cfg); err != nil {
				return &ExitError{Code: exitConfig, Err: err}
			}
			return runServe(cmd.Context(), app, cfg)
		},
	}

	f := cmd.Flags()
	f.IntSliceVarP(&flags.ports, "port", "p", nil, "port to listen on (repeatable, overrides server.ports)")
	f.StringVar(&flags.host, "host", "", "interface to bind (overrides server.host)")
	f.StringVar(&flags.metricsAddr, "metrics-address", "", "serve prometheus metrics on host:port")
	f.BoolVar(&flags.noPersist, "no-persist", false, "do not read or write animation snapshots")
	f.StringVar(&flags.framing, "framing", "", "wire framing: length or delimited")
	f.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error")
	return cmd
}

// apply overlays explicitly set flags on cfg and revalidates it.
func (f serveFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed
	if changed("port") {
		cfg.Server.Ports = cfg.Server.Ports[:0]
		for _, p := range f.ports {
			cfg.Server.Ports = append(cfg.Server.Ports, types.ListenPort(p))
		}
	}
	if changed("host") {
		cfg.Server.Host = f.host
	}
	if changed("metrics-address") {
		cfg.Metrics.Address = f.metricsAddr
	}
	if f.noPersist {
		cfg.Persistence.Enabled = false
	}
	if changed("framing") {
		cfg.Protocol.Framing = f.framing
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	return cfg.Validate()
}

// runServe starts the server and blocks until ctx is canceled or a
// background task fails.
func runServe(ctx context.Context, app *App, cfg *config.Config) error {
	opts := cfg.LoggingOptions()
	opts.Writer = app.stderr
	logger, err := logging.New(opts)
	if err != nil {
		return &ExitError{Code: exitConfig, Err: err}
	}

	srv, err := server.New(cfg.ServerConfig(), server.WithLogger(logger), server.WithFs(app.Fs))
	if err != nil {
		return &ExitError{Code: exitConfig, Err: err}
	}
	if err := srv.Start(ctx); err != nil {
		return &ExitError{Code: exitFailure, Err: startError(cfg, err)}
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-srv.Err():
		logger.Error("background task failed", "err", runErr)
	}

	// ctx is already canceled on the signal path; Stop bounds itself with
	// server.shutdown_timeout.
	if err := srv.Stop(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("unclean shutdown", "err", err)
	}
	if runErr != nil {
		return &ExitError{Code: exitFailure, Err: runErr}
	}
	return nil
}

func startError(cfg *config.Config, err error) error {
	ec := issue.NewErrorContext().WithOperation("start server").Wrap(err)
	switch {
	case errors.Is(err, server.ErrAllPortsFailed):
		ec.WithResource(fmt.Sprint(cfg.Server.Ports)).
			WithSuggestion("Check that no other ledserver is running").
			WithIssue(issue.AllPortsFailedId)
		if errors.Is(err, syscall.EACCES) {
			ec.WithSuggestion("Ports below 1024 need elevated privileges")
		}
	case errors.Is(err, syscall.EACCES):
		ec.WithSuggestion("Check the permissions of " + cfg.Persistence.Dir).
			WithIssue(issue.PermissionDeniedId)
	}
	return ec.BuildError()
}
