// Package resolution persists single-use resolution capabilities so a
// failed connection attempt can be remediated later, from another process or
// after a restart.
package resolution

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smart-mcp-proxy/connresult/internal/connresult"
	"github.com/smart-mcp-proxy/connresult/internal/observability"
	"github.com/smart-mcp-proxy/connresult/internal/reqcontext"
	"github.com/smart-mcp-proxy/connresult/internal/storage"
)

const (
	// DefaultTTL is how long an issued resolution may be dispatched.
	DefaultTTL = 15 * time.Minute
	// DefaultRetain is how long finished records are kept for inspection.
	DefaultRetain = 24 * time.Hour
)

// Store persists resolution records. *storage.BoltDB implements it.
type Store interface {
	SaveResolution(record *storage.ResolutionRecord) error
	GetResolution(token string) (*storage.ResolutionRecord, error)
	ListResolutions() ([]*storage.ResolutionRecord, error)
	ClaimResolution(token string, requestID int, now time.Time) (*storage.ResolutionRecord, error)
	ReleaseResolution(token string, cause error) error
	MarkDispatched(token string, now time.Time) (*storage.ResolutionRecord, error)
	CompleteRequest(requestID, resultCode int, now time.Time) (*storage.ResolutionRecord, error)
	CancelResolution(token string, now time.Time) (*storage.ResolutionRecord, error)
	PurgeResolutions(now time.Time, retain time.Duration) (int, error)
}

// Metrics receives registry events. *observability.MetricsManager implements it.
type Metrics interface {
	RecordResolutionIssued(code string)
	RecordDispatch(outcome string, duration time.Duration)
	RecordCompletion(result string)
	RecordPurge(count int)
	SetResolutionsPending(count int)
}

type noopMetrics struct{}

func (noopMetrics) RecordResolutionIssued(string) {}
func (noopMetrics) RecordDispatch(string, time.Duration) {}
func (noopMetrics) RecordCompletion(string) {}
func (noopMetrics) RecordPurge(int) {}
func (noopMetrics) SetResolutionsPending(int) {}

// Registry issues, dispatches and tracks persisted resolutions.
type Registry struct {
	store   Store
	logger  *zap.Logger
	tracer  trace.Tracer
	metrics Metrics
	ttl     time.Duration
	retain  time.Duration
	now     func() time.Time

	entropyMu sync.Mutex
	entropy   io.Reader
}

// Option configures a Registry.
type Option func(*Registry)

// WithTTL sets how long issued resolutions stay dispatchable.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) { r.ttl = ttl }
}

// WithRetention sets how long finished records survive a purge.
func WithRetention(retain time.Duration) Option {
	return func(r *Registry) { r.retain = retain }
}

// WithTracer sets the tracer dispatch spans are started with.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Registry) { r.tracer = tracer }
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics Metrics) Option {
	return func(r *Registry) { r.metrics = metrics }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a registry over store.
func NewRegistry(store Store, logger *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:   store,
		logger:  logger,
		tracer:  otel.Tracer("connresult/resolution"),
		metrics: noopMetrics{},
		ttl:     DefaultTTL,
		retain:  DefaultRetain,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// newToken returns a ULID for now. Tokens sort in issue order.
func (r *Registry) newToken(now time.Time) (string, error) {
	r.entropyMu.Lock()
	defer r.entropyMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(now), r.entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate resolution token: %w", err)
	}
	return id.String(), nil
}

// Issue persists a new single-use resolution for a failed attempt.
func (r *Registry) Issue(ctx context.Context, service string, code connresult.ErrorCode, intent connresult.Intent) (*Pending, error) {
	if code == connresult.Success {
		return nil, fmt.Errorf("cannot issue a resolution for %s", code)
	}
	if intent.Target == "" {
		return nil, fmt.Errorf("cannot issue a resolution without a target")
	}

	now := r.now()
	token, err := r.newToken(now)
	if err != nil {
		return nil, err
	}
	if intent.Service == "" {
		intent.Service = service
	}
	if intent.Action == "" {
		intent.Action = code.Action()
	}

	record := &storage.ResolutionRecord{
		Token:       token,
		Service:     service,
		Code:        code,
		Intent:      intent,
		State:       storage.StatePending,
		Created:     now,
		ExpiresAt:   now.Add(r.ttl),
		Correlation: reqcontext.GetCorrelationID(ctx),
	}
	if err := r.store.SaveResolution(record); err != nil {
		return nil, fmt.Errorf("failed to save resolution: %w", err)
	}

	r.metrics.RecordResolutionIssued(code.String())
	reqcontext.CorrelationLogger(ctx, r.logger).Info("Issued resolution",
		zap.String("token", token),
		zap.String("service", service),
		zap.Stringer("code", code),
		zap.Time("expires_at", record.ExpiresAt))

	return &Pending{token: token, code: code, registry: r}, nil
}

// Get returns the stored record for token.
func (r *Registry) Get(token string) (*storage.ResolutionRecord, error) {
	return r.store.GetResolution(token)
}

// List returns all stored records in issue order.
func (r *Registry) List() ([]*storage.ResolutionRecord, error) {
	return r.store.ListResolutions()
}

// Result rebuilds the ConnectionResult a stored resolution belongs to, so it
// can be started through ConnectionResult.StartResolution.
func (r *Registry) Result(token string) (connresult.ConnectionResult, error) {
	record, err := r.store.GetResolution(token)
	if err != nil {
		return connresult.ConnectionResult{}, err
	}
	return connresult.New(record.Code, &Pending{token: token, code: record.Code, registry: r}), nil
}

// Cancel invalidates a pending resolution.
func (r *Registry) Cancel(ctx context.Context, token string) (*storage.ResolutionRecord, error) {
	record, err := r.store.CancelResolution(token, r.now())
	if err != nil {
		return nil, err
	}
	reqcontext.CorrelationLogger(ctx, r.logger).Info("Canceled resolution", zap.String("token", token))
	return record, nil
}

// Complete records the result code a host reported for requestID.
func (r *Registry) Complete(ctx context.Context, requestID, resultCode int) (*storage.ResolutionRecord, error) {
	record, err := r.store.CompleteRequest(requestID, resultCode, r.now())
	if err != nil {
		return nil, err
	}

	r.metrics.RecordCompletion(completionLabel(resultCode))
	reqcontext.CorrelationLogger(ctx, r.logger).Info("Resolution completed",
		zap.String("token", record.Token),
		zap.String("service", record.Service),
		zap.Int("request_id", requestID),
		zap.Int("result_code", resultCode),
		zap.Bool("retry", connresult.ShouldRetry(resultCode)))
	return record, nil
}

// Purge removes records past the retention window and refreshes the pending gauge.
func (r *Registry) Purge(ctx context.Context) (int, error) {
	now := r.now()
	removed, err := r.store.PurgeResolutions(now, r.retain)
	if err != nil {
		return 0, fmt.Errorf("failed to purge resolutions: %w", err)
	}
	r.metrics.RecordPurge(removed)

	records, err := r.store.ListResolutions()
	if err != nil {
		return removed, err
	}
	pending := 0
	for _, rec := range records {
		if rec.State == storage.StatePending && !rec.Expired(now) {
			pending++
		}
	}
	r.metrics.SetResolutionsPending(pending)

	if removed > 0 {
		reqcontext.CorrelationLogger(ctx, r.logger).Debug("Purged resolutions",
			zap.Int("removed", removed),
			zap.Int("pending", pending))
	}
	return removed, nil
}

func completionLabel(resultCode int) string {
	switch {
	case resultCode == connresult.ResultOK:
		return "ok"
	case resultCode == connresult.ResultCanceled:
		return "canceled"
	default:
		return "user"
	}
}

func dispatchOutcome(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeDispatched
	case errors.Is(err, connresult.ErrResolutionConsumed):
		return observability.OutcomeConsumed
	case errors.Is(err, connresult.ErrResolutionCanceled):
		return observability.OutcomeCanceled
	case errors.Is(err, connresult.ErrResolutionExpired):
		return observability.OutcomeExpired
	case errors.Is(err, connresult.ErrResolutionNotFound):
		return observability.OutcomeNotFound
	case errors.Is(err, storage.ErrRequestInUse):
		return observability.OutcomeRejected
	default:
		return observability.OutcomeHostError
	}
}

func codeAttr(code connresult.ErrorCode) attribute.KeyValue {
	return attribute.String("resolution.code", code.String())
}
