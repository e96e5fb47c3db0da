package output

import (
	"errors"
)

// StructuredError is a CLI failure with a machine-readable code, rendered
// through the selected formatter.
type StructuredError struct {
	// Code is a machine-readable error identifier (e.g., "RESOLUTION_EXPIRED")
	Code string `json:"code" yaml:"code"`

	// Message is a human-readable error description
	Message string `json:"message" yaml:"message"`

	// Guidance explains what to do about it
	Guidance string `json:"guidance,omitempty" yaml:"guidance,omitempty"`

	// RecoveryCommand suggests a command to fix the issue
	RecoveryCommand string `json:"recovery_command,omitempty" yaml:"recovery_command,omitempty"`

	// Context carries additional structured data about the error
	Context map[string]interface{} `json:"context,omitempty" yaml:"context,omitempty"`
}

// Error implements the error interface.
func (e StructuredError) Error() string {
	return e.Message
}

// Error codes for CLI operations
const (
	ErrCodeDaemonNotRunning    = "DAEMON_NOT_RUNNING"
	ErrCodeConfigInvalid       = "CONFIG_INVALID"
	ErrCodeInvalidOutputFormat = "INVALID_OUTPUT_FORMAT"
	ErrCodeInvalidInput        = "INVALID_INPUT"
	ErrCodeNotFound            = "RESOLUTION_NOT_FOUND"
	ErrCodeConflict            = "RESOLUTION_UNAVAILABLE"
	ErrCodeExpired             = "RESOLUTION_EXPIRED"
	ErrCodeHostFailed          = "HOST_LAUNCH_FAILED"
	ErrCodeOperationFailed     = "OPERATION_FAILED"
)

// NewStructuredError creates a StructuredError with the given code and message.
func NewStructuredError(code, message string) StructuredError {
	return StructuredError{
		Code:    code,
		Message: message,
	}
}

// WithGuidance adds guidance to the error.
func (e StructuredError) WithGuidance(guidance string) StructuredError {
	e.Guidance = guidance
	return e
}

// WithRecoveryCommand adds a recovery command suggestion.
func (e StructuredError) WithRecoveryCommand(cmd string) StructuredError {
	e.RecoveryCommand = cmd
	return e
}

// WithContext adds context data to the error.
func (e StructuredError) WithContext(key string, value interface{}) StructuredError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// FromError converts err to a StructuredError, keeping one already in the chain.
func FromError(err error, code string) StructuredError {
	var se StructuredError
	if errors.As(err, &se) {
		return se
	}
	return StructuredError{
		Code:    code,
		Message: err.Error(),
	}
}
