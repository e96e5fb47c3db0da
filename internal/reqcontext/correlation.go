// Package reqcontext carries per-request metadata (correlation IDs and the
// request source) through contexts so log lines and stored records can be
// tied back to the call that produced them.
package reqcontext

import (
	"context"
	"regexp"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ContextKey is the type for context keys to avoid collisions
type ContextKey string

const (
	// CorrelationIDKey is the context key for correlation IDs
	CorrelationIDKey ContextKey = "correlation_id"

	// RequestSourceKey is the context key for request source
	RequestSourceKey ContextKey = "request_source"
)

const (
	// CorrelationIDHeader is the HTTP header carrying the correlation ID
	CorrelationIDHeader = "X-Correlation-ID"

	// MaxCorrelationIDLength is the maximum accepted length of a caller-supplied ID
	MaxCorrelationIDLength = 128
)

// correlationIDPattern validates caller-supplied IDs: alphanumeric, dashes, underscores
var correlationIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// RequestSource indicates where the request originated
type RequestSource string

const (
	// SourceRESTAPI indicates request came from the HTTP API
	SourceRESTAPI RequestSource = "REST_API"

	// SourceCLI indicates request came from a CLI command
	SourceCLI RequestSource = "CLI"

	// SourceInternal indicates a background operation such as the purge loop
	SourceInternal RequestSource = "INTERNAL"

	// SourceUnknown indicates source could not be determined
	SourceUnknown RequestSource = "UNKNOWN"
)

// NewCorrelationID generates a new correlation ID (UUID v4)
func NewCorrelationID() string {
	return uuid.New().String()
}

// IsValidCorrelationID reports whether a caller-supplied ID may be adopted
func IsValidCorrelationID(id string) bool {
	return id != "" && len(id) <= MaxCorrelationIDLength && correlationIDPattern.MatchString(id)
}

// GetOrNewCorrelationID returns provided if it is valid, otherwise a new ID
func GetOrNewCorrelationID(provided string) string {
	if IsValidCorrelationID(provided) {
		return provided
	}
	return NewCorrelationID()
}

// WithCorrelationID adds a correlation ID to the context
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

// GetCorrelationID retrieves the correlation ID from context
func GetCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRequestSource adds request source to the context
func WithRequestSource(ctx context.Context, source RequestSource) context.Context {
	return context.WithValue(ctx, RequestSourceKey, source)
}

// GetRequestSource retrieves the request source from context
func GetRequestSource(ctx context.Context) RequestSource {
	if ctx == nil {
		return SourceUnknown
	}
	if source, ok := ctx.Value(RequestSourceKey).(RequestSource); ok {
		return source
	}
	return SourceUnknown
}

// WithMetadata adds a fresh correlation ID and the request source to ctx
func WithMetadata(ctx context.Context, source RequestSource) context.Context {
	ctx = WithCorrelationID(ctx, NewCorrelationID())
	return WithRequestSource(ctx, source)
}

// CorrelationLogger returns logger with correlation_id and source fields
// when they are present in ctx.
func CorrelationLogger(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if ctx == nil {
		return logger
	}
	if id := GetCorrelationID(ctx); id != "" {
		logger = logger.With(zap.String("correlation_id", id))
	}
	if source := GetRequestSource(ctx); source != SourceUnknown {
		logger = logger.With(zap.String("source", string(source)))
	}
	return logger
}
