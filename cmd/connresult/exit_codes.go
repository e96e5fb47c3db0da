package main

import (
	"errors"
	"os"
	"syscall"

	bolterrors "go.etcd.io/bbolt/errors"

	"github.com/smart-mcp-proxy/connresult/internal/cli/output"
)

// Exit codes for connresult so scripts can tell failures apart

const (
	// ExitCodeSuccess indicates normal program termination
	ExitCodeSuccess = 0

	// ExitCodeGeneralError indicates a generic error (default)
	ExitCodeGeneralError = 1

	// ExitCodePortConflict indicates the listen port is already in use
	ExitCodePortConflict = 2

	// ExitCodeDBLocked indicates the database is locked by another process
	ExitCodeDBLocked = 3

	// ExitCodeConfigError indicates configuration validation failed
	ExitCodeConfigError = 4

	// ExitCodePermissionError indicates insufficient permissions (file access, port binding)
	ExitCodePermissionError = 5

	// ExitCodeDaemonUnavailable indicates the daemon API could not be reached
	ExitCodeDaemonUnavailable = 6

	// ExitCodeNotFound indicates the token, service or request is unknown
	ExitCodeNotFound = 7

	// ExitCodeUnavailable indicates the resolution was consumed, canceled or expired
	ExitCodeUnavailable = 8

	// ExitCodeHostFailed indicates the host refused to launch the flow
	ExitCodeHostFailed = 9
)

// errConfig marks failures to load or validate configuration.
var errConfig = errors.New("configuration error")

// exitCodeDescription returns a human-readable description of the exit code
func exitCodeDescription(code int) string {
	switch code {
	case ExitCodeSuccess:
		return "Success"
	case ExitCodeGeneralError:
		return "General error"
	case ExitCodePortConflict:
		return "Port conflict - address already in use"
	case ExitCodeDBLocked:
		return "Database locked by another process"
	case ExitCodeConfigError:
		return "Configuration error"
	case ExitCodePermissionError:
		return "Permission denied"
	case ExitCodeDaemonUnavailable:
		return "Daemon not reachable"
	case ExitCodeNotFound:
		return "Not found"
	case ExitCodeUnavailable:
		return "Resolution no longer available"
	case ExitCodeHostFailed:
		return "Interactive flow could not be launched"
	default:
		return "Unknown error"
	}
}

// exitCodeFor maps a command error to the process exit code.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitCodeSuccess
	case errors.Is(err, errConfig):
		return ExitCodeConfigError
	case errors.Is(err, syscall.EADDRINUSE):
		return ExitCodePortConflict
	case errors.Is(err, bolterrors.ErrTimeout):
		return ExitCodeDBLocked
	case errors.Is(err, os.ErrPermission), errors.Is(err, syscall.EACCES):
		return ExitCodePermissionError
	}

	switch toStructuredError(err).Code {
	case output.ErrCodeDaemonNotRunning:
		return ExitCodeDaemonUnavailable
	case output.ErrCodeConfigInvalid, output.ErrCodeInvalidOutputFormat:
		return ExitCodeConfigError
	case output.ErrCodeNotFound:
		return ExitCodeNotFound
	case output.ErrCodeConflict, output.ErrCodeExpired:
		return ExitCodeUnavailable
	case output.ErrCodeHostFailed:
		return ExitCodeHostFailed
	default:
		return ExitCodeGeneralError
	}
}
