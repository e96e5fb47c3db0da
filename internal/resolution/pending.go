package resolution

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smart-mcp-proxy/connresult/internal/connresult"
	"github.com/smart-mcp-proxy/connresult/internal/logs"
	"github.com/smart-mcp-proxy/connresult/internal/observability"
	"github.com/smart-mcp-proxy/connresult/internal/reqcontext"
)

// Pending is a persisted single-use resolution. The claim on the stored
// record is taken in one write transaction, so of any number of concurrent
// dispatches at most one reaches the host; the rest fail with
// ErrResolutionConsumed. If the host refuses the launch the claim is
// released and the resolution can be dispatched again.
type Pending struct {
	token    string
	code     connresult.ErrorCode
	registry *Registry
}

// Token identifies the stored resolution.
func (p *Pending) Token() string {
	return p.token
}

// Dispatch implements connresult.Resolution.
func (p *Pending) Dispatch(ctx context.Context, host connresult.Host, requestID int) error {
	if p == nil || p.registry == nil {
		return connresult.ErrResolutionNotFound
	}
	if host == nil {
		return connresult.ErrNoHost
	}

	r := p.registry
	ctx, span := r.tracer.Start(ctx, "resolution.dispatch",
		trace.WithAttributes(
			attribute.String("resolution.token", p.token),
			attribute.Int("resolution.request_id", requestID),
			codeAttr(p.code),
		),
	)
	defer span.End()

	logger := reqcontext.CorrelationLogger(ctx, r.logger).With(
		zap.String("token", p.token),
		zap.Int("request_id", requestID))

	start := r.now()
	err := p.dispatch(ctx, host, requestID, logger)
	r.metrics.RecordDispatch(dispatchOutcome(err), r.now().Sub(start))
	if err != nil {
		observability.SetSpanError(ctx, err)
		logger.Warn("Resolution dispatch failed", zap.Error(err))
		return err
	}
	return nil
}

func (p *Pending) dispatch(ctx context.Context, host connresult.Host, requestID int, logger *zap.Logger) error {
	r := p.registry

	record, err := r.store.ClaimResolution(p.token, requestID, r.now())
	if err != nil {
		return err
	}

	if err := host.Launch(ctx, record.Intent, requestID); err != nil {
		if releaseErr := r.store.ReleaseResolution(p.token, err); releaseErr != nil {
			logger.Error("Failed to release resolution claim", zap.Error(releaseErr))
		}
		return fmt.Errorf("host refused to launch %s: %w", record.Intent.Action, err)
	}

	if _, err := r.store.MarkDispatched(p.token, r.now()); err != nil {
		return fmt.Errorf("flow launched but could not be recorded: %w", err)
	}

	logger.Info("Resolution dispatched",
		zap.String("service", record.Service),
		zap.String("action", record.Intent.Action),
		zap.String("target", logs.MaskTarget(record.Intent.Target)))
	return nil
}
