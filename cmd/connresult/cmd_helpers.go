package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/smart-mcp-proxy/connresult/internal/cli/output"
	"github.com/smart-mcp-proxy/connresult/internal/cliclient"
	"github.com/smart-mcp-proxy/connresult/internal/config"
	"github.com/smart-mcp-proxy/connresult/internal/logs"
	"github.com/smart-mcp-proxy/connresult/internal/reqcontext"
)

// loadConfig loads configuration, letting persistent flags override file
// and environment values.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	return cfg, nil
}

// getOutputFormatter returns the formatter selected by --output, --json or
// CONNRESULT_OUTPUT.
func getOutputFormatter() (output.Formatter, error) {
	formatter, err := output.NewFormatter(output.ResolveFormat(outputFormat, jsonOutput))
	if err != nil {
		return nil, output.NewStructuredError(output.ErrCodeInvalidOutputFormat, err.Error()).
			WithGuidance("Use one of: table, json, yaml")
	}
	return formatter, nil
}

// printResult formats data and writes it to the command's stdout.
func printResult(cmd *cobra.Command, data interface{}) error {
	formatter, err := getOutputFormatter()
	if err != nil {
		return err
	}
	out, err := formatter.Format(data)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

// commandLogger creates a quiet logger for client commands.
func commandLogger() *zap.SugaredLogger {
	logger, err := logs.SetupCommandLogger(false, logLevel, logToFile, logDir)
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}

// resolveEndpoint picks the daemon address: --endpoint wins, otherwise the
// configured listen address.
func resolveEndpoint(cmd *cobra.Command) (string, error) {
	if endpoint != "" {
		return endpoint, nil
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	addr := cfg.Listen
	// Handle listen addresses like ":8095" (no host)
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr, nil
}

// getClient creates an HTTP client for the daemon
func getClient(cmd *cobra.Command) (*cliclient.Client, error) {
	ep, err := resolveEndpoint(cmd)
	if err != nil {
		return nil, err
	}
	return cliclient.NewClient(ep, commandLogger()), nil
}

// commandContext tags the command's context as a CLI request with a fresh
// correlation ID so daemon logs can be matched to this invocation.
func commandContext(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return reqcontext.WithMetadata(ctx, reqcontext.SourceCLI)
}

// toStructuredError converts a command error into the structured form the
// formatters render, adding guidance for the common daemon answers.
func toStructuredError(err error) output.StructuredError {
	var se output.StructuredError
	if errors.As(err, &se) {
		return se
	}

	var apiErr *cliclient.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusNotFound:
			return output.NewStructuredError(output.ErrCodeNotFound, apiErr.Message).
				WithGuidance("Check the token or request ID").
				WithRecoveryCommand("connresult resolutions list")
		case http.StatusConflict:
			return output.NewStructuredError(output.ErrCodeConflict, apiErr.Message).
				WithGuidance("Resolutions are single use; report the failure again to get a new one")
		case http.StatusGone:
			return output.NewStructuredError(output.ErrCodeExpired, apiErr.Message).
				WithGuidance("Report the failure again to get a new resolution")
		case http.StatusBadGateway:
			return output.NewStructuredError(output.ErrCodeHostFailed, apiErr.Message).
				WithGuidance("The daemon could not launch the flow; check its logs")
		case http.StatusBadRequest:
			return output.NewStructuredError(output.ErrCodeInvalidInput, apiErr.Message)
		default:
			return output.NewStructuredError(output.ErrCodeOperationFailed, apiErr.Message).
				WithContext("status", apiErr.StatusCode)
		}
	}

	if errors.Is(err, errConfig) {
		return output.NewStructuredError(output.ErrCodeConfigInvalid, err.Error()).
			WithGuidance("Fix the configuration file or pass --config")
	}
	if strings.Contains(err.Error(), "failed to call daemon API") {
		return output.NewStructuredError(output.ErrCodeDaemonNotRunning, err.Error()).
			WithGuidance("Start the daemon first").
			WithRecoveryCommand("connresult serve")
	}
	return output.FromError(err, output.ErrCodeOperationFailed)
}
