package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/tradeledger/internal/app"
	"github.com/MrWong99/tradeledger/internal/observe"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *globalOptions) *cobra.Command {
	var noWatch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ledger service",
		Long: `Serve the websocket bridge, health probes and Prometheus metrics.

When the config file exists it is watched; log level, display mode, label
display and backup retention are applied without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, !noWatch)
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not watch the config file for changes")
	return cmd
}

func runServe(ctx context.Context, opts *globalOptions, watch bool) error {
	cfg := opts.cfg
	slog.Info("tradeledger starting",
		"version", version,
		"config", opts.configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Server.OTLPEndpoint,
	})
	if err != nil {
		return err
	}

	appOpts := []app.Option{app.WithLevelVar(opts.levelVar)}
	if watch {
		if _, statErr := os.Stat(opts.configPath); statErr == nil {
			appOpts = append(appOpts, app.WithConfigWatch(opts.configPath, opts.environ))
		} else {
			slog.Info("config file not found; hot reload disabled", "path", opts.configPath)
		}
	}

	application, err := app.New(ctx, cfg, appOpts...)
	if err != nil {
		return err
	}

	slog.Info("server ready; press Ctrl+C to shut down")
	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	} else {
		runErr = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = errors.Join(runErr, application.Shutdown(shutdownCtx), shutdownTelemetry(shutdownCtx))
	if err == nil {
		slog.Info("goodbye")
	}
	return err
}
