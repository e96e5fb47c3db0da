package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/smart-mcp-proxy/connresult/internal/logs"
	"github.com/smart-mcp-proxy/connresult/internal/server"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the connresult daemon",
		Long: `Run the daemon: serve the HTTP API, keep issued resolutions in the data
directory and launch interactive flows when a resolution is started.

Examples:
  # Start with defaults (127.0.0.1:8095, ~/.connresult)
  connresult serve

  # Use a config file and verbose logs
  connresult serve -c ./connresult.yaml --log-level debug`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logs.SetupLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if cfg.Logging.EnableFile {
		logDirPath := cfg.Logging.LogDir
		if logDirPath == "" {
			logDirPath, err = logs.GetLogDir()
		}
		if err != nil {
			logger.Warn("Failed to resolve log directory", zap.Error(err))
		} else {
			logger.Info("Log directory configured", zap.String("path", logDirPath))
		}
	}

	logger.Info("Starting connresult",
		zap.String("version", version),
		zap.String("listen", cfg.Listen),
		zap.String("data_dir", cfg.DataDir),
		zap.Int("services_count", len(cfg.Services)),
		zap.Duration("resolution_ttl", cfg.Resolution.TTL),
		zap.Bool("open_browser", cfg.Resolution.OpenBrowser))

	srv, err := server.New(cfg, logger, server.WithVersion(version))
	if err != nil {
		logger.Error("Failed to create server",
			zap.Error(err),
			zap.String("exit_reason", exitCodeDescription(exitCodeFor(err))))
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Error("Error closing server", zap.Error(err))
		}
	}()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error("Server stopped with error",
			zap.Error(err),
			zap.String("exit_reason", exitCodeDescription(exitCodeFor(err))))
		return err
	}

	logger.Info("Server stopped")
	return nil
}
