package reqcontext

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewCorrelationID_IsUUID(t *testing.T) {
	id := NewCorrelationID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, NewCorrelationID())
}

func TestGetOrNewCorrelationID(t *testing.T) {
	assert.Equal(t, "abc-123_X", GetOrNewCorrelationID("abc-123_X"))

	for _, bad := range []string{"", "has space", "semi;colon", strings.Repeat("a", MaxCorrelationIDLength+1)} {
		got := GetOrNewCorrelationID(bad)
		assert.NotEqual(t, bad, got)
		_, err := uuid.Parse(got)
		assert.NoError(t, err, "input %q", bad)
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetCorrelationID(ctx))
	assert.Equal(t, SourceUnknown, GetRequestSource(ctx))

	ctx = WithMetadata(ctx, SourceCLI)
	assert.NotEmpty(t, GetCorrelationID(ctx))
	assert.Equal(t, SourceCLI, GetRequestSource(ctx))

	//nolint:staticcheck // nil context handling is part of the contract
	assert.Empty(t, GetCorrelationID(nil))
}

func TestCorrelationLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	ctx := WithRequestSource(WithCorrelationID(context.Background(), "corr-1"), SourceRESTAPI)
	CorrelationLogger(ctx, logger).Info("dispatched")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "corr-1", fields["correlation_id"])
	assert.Equal(t, "REST_API", fields["source"])

	assert.Same(t, logger, CorrelationLogger(context.Background(), logger))
}
