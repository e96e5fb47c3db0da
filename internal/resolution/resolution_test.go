package resolution

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/smart-mcp-proxy/connresult/internal/classify"
	"github.com/smart-mcp-proxy/connresult/internal/config"
	"github.com/smart-mcp-proxy/connresult/internal/connresult"
	"github.com/smart-mcp-proxy/connresult/internal/reqcontext"
	"github.com/smart-mcp-proxy/connresult/internal/storage"
)

var _ connresult.Resolution = (*Pending)(nil)

type launch struct {
	intent    connresult.Intent
	requestID int
}

type recordingHost struct {
	mu       sync.Mutex
	launches []launch
	err      error
}

func (h *recordingHost) Launch(_ context.Context, intent connresult.Intent, requestID int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.launches = append(h.launches, launch{intent, requestID})
	return nil
}

func (h *recordingHost) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.launches)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingMetrics struct {
	mu          sync.Mutex
	issued      map[string]int
	dispatches  map[string]int
	completions map[string]int
	purged      int
	pending     int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		issued:      map[string]int{},
		dispatches:  map[string]int{},
		completions: map[string]int{},
	}
}

func (m *countingMetrics) RecordResolutionIssued(code string) {
	m.mu.Lock()
	m.issued[code]++
	m.mu.Unlock()
}

func (m *countingMetrics) RecordDispatch(outcome string, _ time.Duration) {
	m.mu.Lock()
	m.dispatches[outcome]++
	m.mu.Unlock()
}

func (m *countingMetrics) RecordCompletion(result string) {
	m.mu.Lock()
	m.completions[result]++
	m.mu.Unlock()
}

func (m *countingMetrics) RecordPurge(count int) {
	m.mu.Lock()
	m.purged += count
	m.mu.Unlock()
}

func (m *countingMetrics) SetResolutionsPending(count int) {
	m.mu.Lock()
	m.pending = count
	m.mu.Unlock()
}

type fixture struct {
	registry *Registry
	clock    *clock
	metrics  *countingMetrics
	store    *storage.BoltDB
}

func newFixture(t testing.TB) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	db, err := storage.NewBoltDB(t.TempDir(), logger.Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := newCountingMetrics()
	reg := NewRegistry(db, logger,
		WithClock(c.Now),
		WithMetrics(m),
		WithTTL(10*time.Minute),
		WithRetention(time.Hour),
	)
	return &fixture{registry: reg, clock: c, metrics: m, store: db}
}

func signIn() connresult.Intent {
	return connresult.Intent{Target: "https://accounts.example.com/signin"}
}

func TestIssue_PersistsPendingRecord(t *testing.T) {
	f := newFixture(t)
	ctx := reqcontext.WithCorrelationID(context.Background(), "corr-7")

	p, err := f.registry.Issue(ctx, "drive", connresult.SignInRequired, signIn())
	require.NoError(t, err)
	require.NotEmpty(t, p.Token())

	rec, err := f.registry.Get(p.Token())
	require.NoError(t, err)
	assert.Equal(t, storage.StatePending, rec.State)
	assert.Equal(t, "drive", rec.Service)
	assert.Equal(t, connresult.SignInRequired, rec.Code)
	assert.Equal(t, connresult.ActionSignIn, rec.Intent.Action, "action defaults from code")
	assert.Equal(t, "drive", rec.Intent.Service, "service defaults from issuer")
	assert.Equal(t, f.clock.Now().Add(10*time.Minute), rec.ExpiresAt)
	assert.Equal(t, "corr-7", rec.Correlation)
	assert.Equal(t, 1, f.metrics.issued["SIGN_IN_REQUIRED"])
}

func TestIssue_Rejections(t *testing.T) {
	f := newFixture(t)

	_, err := f.registry.Issue(context.Background(), "drive", connresult.Success, signIn())
	assert.Error(t, err)

	_, err = f.registry.Issue(context.Background(), "drive", connresult.SignInRequired, connresult.Intent{})
	assert.Error(t, err)
}

func TestIssue_TokensSortInIssueOrder(t *testing.T) {
	f := newFixture(t)

	var tokens []string
	for i := 0; i < 5; i++ {
		p, err := f.registry.Issue(context.Background(), "drive", connresult.SignInRequired, signIn())
		require.NoError(t, err)
		tokens = append(tokens, p.Token())
	}

	records, err := f.registry.List()
	require.NoError(t, err)
	require.Len(t, records, 5)
	for i, rec := range records {
		assert.Equal(t, tokens[i], rec.Token)
	}
}

func TestPending_SignInScenario(t *testing.T) {
	f := newFixture(t)
	host := &recordingHost{}

	p, err := f.registry.Issue(context.Background(), "drive", connresult.SignInRequired, signIn())
	require.NoError(t, err)

	result := connresult.New(connresult.SignInRequired, p)
	require.True(t, result.HasResolution())
	require.NoError(t, result.StartResolution(context.Background(), host, 1001))

	require.Equal(t, 1, host.count())
	assert.Equal(t, 1001, host.launches[0].requestID)
	assert.Equal(t, "https://accounts.example.com/signin", host.launches[0].intent.Target)

	rec, err := f.registry.Get(p.Token())
	require.NoError(t, err)
	assert.Equal(t, storage.StateDispatched, rec.State)
	assert.Equal(t, 1001, rec.RequestID)

	completed, err := f.registry.Complete(context.Background(), 1001, connresult.ResultOK)
	require.NoError(t, err)
	assert.True(t, completed.Retry())
	assert.Equal(t, 1, f.metrics.completions["ok"])
	assert.Equal(t, 1, f.metrics.dispatches["dispatched"])
}

func TestPending_RejectsRetrigger(t *testing.T) {
	f := newFixture(t)
	host := &recordingHost{}

	p, err := f.registry.Issue(context.Background(), "drive", connresult.SignInRequired, signIn())
	require.NoError(t, err)
	result := connresult.New(connresult.SignInRequired, p)

	require.NoError(t, result.StartResolution(context.Background(), host, 1))
	err = result.StartResolution(context.Background(), host, 2)

	var de *connresult.DispatchError
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, connresult.ErrResolutionConsumed)
	assert.Equal(t, 2, de.RequestID)
	assert.Equal(t, connresult.SignInRequired, de.Code)
	assert.Equal(t, 1, host.count())
	assert.Equal(t, 1, f.metrics.dispatches["consumed"])
}

func TestPending_ExpiredCapability(t *testing.T) {
	f := newFixture(t)
	host := &recordingHost{}

	p, err := f.registry.Issue(context.Background(), "drive", connresult.SignInRequired, signIn())
	require.NoError(t, err)

	f.clock.Advance(11 * time.Minute)
	err = connresult.New(connresult.SignInRequired, p).StartResolution(context.Background(), host, 1)
	assert.ErrorIs(t, err, connresult.ErrResolutionExpired)
	assert.Zero(t, host.count())
}

func TestPending_CanceledCapability(t *testing.T) {
	f := newFixture(t)
	host := &recordingHost{}

	p, err := f.registry.Issue(context.Background(), "drive", connresult.SignInRequired, signIn())
	require.NoError(t, err)

	rec, err := f.registry.Cancel(context.Background(), p.Token())
	require.NoError(t, err)
	assert.Equal(t, storage.StateCanceled, rec.State)

	err = connresult.New(connresult.SignInRequired, p).StartResolution(context.Background(), host, 1)
	assert.ErrorIs(t, err, connresult.ErrResolutionCanceled)
	assert.Zero(t, host.count())
}

func TestPending_HostRefusalReleasesClaim(t *testing.T) {
	f := newFixture(t)
	host := &recordingHost{err: errors.New("no browser")}

	p, err := f.registry.Issue(context.Background(), "drive", connresult.SignInRequired, signIn())
	require.NoError(t, err)
	result := connresult.New(connresult.SignInRequired, p)

	err = result.StartResolution(context.Background(), host, 1)
	require.Error(t, err)
	assert.True(t, connresult.IsDispatchError(err))
	assert.Contains(t, err.Error(), "no browser")

	rec, err := f.registry.Get(p.Token())
	require.NoError(t, err)
	assert.Equal(t, storage.StatePending, rec.State)
	assert.Equal(t, "no browser", rec.LastError)
	assert.Equal(t, 1, f.metrics.dispatches["host_error"])

	host.err = nil
	require.NoError(t, result.StartResolution(context.Background(), host, 1))
	assert.Equal(t, 1, host.count())
}

func TestPending_ConcurrentDispatchReachesHostOnce(t *testing.T) {
	f := newFixture(t)
	host := &recordingHost{}

	p, err := f.registry.Issue(context.Background(), "drive", connresult.SignInRequired, signIn())
	require.NoError(t, err)
	result := connresult.New(connresult.SignInRequired, p)

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(requestID int) {
			defer wg.Done()
			if result.StartResolution(context.Background(), host, requestID) == nil {
				ok.Add(1)
			}
		}(100 + i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, 1, host.count())
}

func TestRegistry_ResultRebuildsConnectionResult(t *testing.T) {
	f := newFixture(t)

	p, err := f.registry.Issue(context.Background(), "drive", connresult.ServiceDisabled, connresult.Intent{Target: "https://example.com/enable"})
	require.NoError(t, err)

	result, err := f.registry.Result(p.Token())
	require.NoError(t, err)
	assert.Equal(t, connresult.ServiceDisabled, result.ErrorCode())
	assert.True(t, result.HasResolution())

	_, err = f.registry.Result("missing")
	assert.ErrorIs(t, err, connresult.ErrResolutionNotFound)
}

func TestRegistry_CompleteUnknownRequest(t *testing.T) {
	f := newFixture(t)

	_, err := f.registry.Complete(context.Background(), 999, connresult.ResultOK)
	assert.ErrorIs(t, err, connresult.ErrResolutionNotFound)
}

func TestRegistry_Purge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.registry.Issue(ctx, "drive", connresult.SignInRequired, signIn())
	require.NoError(t, err)
	p2, err := f.registry.Issue(ctx, "drive", connresult.SignInRequired, signIn())
	require.NoError(t, err)
	_, err = f.registry.Cancel(ctx, p2.Token())
	require.NoError(t, err)

	removed, err := f.registry.Purge(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Equal(t, 1, f.metrics.pending)

	// expiry (10m) + retention (1h)
	f.clock.Advance(2 * time.Hour)
	removed, err = f.registry.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, f.metrics.pending)
	assert.Equal(t, 2, f.metrics.purged)
}

func TestCompletionLabel(t *testing.T) {
	assert.Equal(t, "ok", completionLabel(connresult.ResultOK))
	assert.Equal(t, "canceled", completionLabel(connresult.ResultCanceled))
	assert.Equal(t, "user", completionLabel(connresult.ResultFirstUser+3))
}

func services(cfgs ...*config.ServiceConfig) ServiceLookup {
	return func(name string) *config.ServiceConfig {
		for _, c := range cfgs {
			if c.Name == name {
				return c
			}
		}
		return nil
	}
}

type reportCounter map[string]int

func (r reportCounter) RecordReport(code string) { r[code]++ }

func TestRemediator(t *testing.T) {
	f := newFixture(t)
	drive := &config.ServiceConfig{
		Name:       "drive",
		Enabled:    true,
		MinVersion: "2.0.0",
		LoginURL:   "https://accounts.example.com/signin",
	}
	counter := reportCounter{}
	m := NewRemediator(f.registry, services(drive), counter, zaptest.NewLogger(t))

	signedOut := false
	outcome, err := m.Remediate(context.Background(), classify.Report{
		Service:          "drive",
		InstalledVersion: "2.1.0",
		Account:          "alice@example.com",
		SignedIn:         &signedOut,
	})
	require.NoError(t, err)
	assert.Equal(t, connresult.SignInRequired, outcome.Result.ErrorCode())
	assert.True(t, outcome.Result.HasResolution())
	require.NotEmpty(t, outcome.Token)

	rec, err := f.registry.Get(outcome.Token)
	require.NoError(t, err)
	assert.Equal(t, "https://accounts.example.com/signin", rec.Intent.Target)
	assert.Equal(t, "alice@example.com", rec.Intent.Extras["account"])

	// No update URL configured: resolvable code but nothing to open.
	outcome, err = m.Remediate(context.Background(), classify.Report{Service: "drive", InstalledVersion: "1.0.0"})
	require.NoError(t, err)
	assert.Equal(t, connresult.ServiceVersionUpdateRequired, outcome.Result.ErrorCode())
	assert.False(t, outcome.Result.HasResolution())
	assert.Empty(t, outcome.Token)

	// Retryable codes never get a resolution.
	outcome, err = m.Remediate(context.Background(), classify.Report{Service: "drive", InstalledVersion: "2.1.0", LastError: "connection refused"})
	require.NoError(t, err)
	assert.Equal(t, connresult.NetworkError, outcome.Result.ErrorCode())
	assert.False(t, outcome.Result.HasResolution())

	outcome, err = m.Remediate(context.Background(), classify.Report{Service: "drive", InstalledVersion: "2.1.0"})
	require.NoError(t, err)
	assert.True(t, outcome.Result.IsSuccess())

	assert.Equal(t, 1, counter["SIGN_IN_REQUIRED"])
	assert.Equal(t, 1, counter["SUCCESS"])
}

func TestTargetFor_OnlyResolvableCodes(t *testing.T) {
	svc := &config.ServiceConfig{
		InstallURL: "https://x/install",
		UpdateURL:  "https://x/update",
		EnableURL:  "https://x/enable",
		LoginURL:   "https://x/login",
		ResolveURL: "https://x/resolve",
	}

	rapid.Check(t, func(t *rapid.T) {
		code := rapid.SampledFrom(connresult.Codes()).Draw(t, "code")
		target := TargetFor(code, svc)
		if code.Recoverability() != connresult.RecoverabilityResolvable || code.IsDeprecated() {
			if target != "" {
				t.Fatalf("code %s should have no target, got %q", code, target)
			}
			return
		}
		if target == "" {
			t.Fatalf("resolvable code %s has no target", code)
		}
	})

	assert.Empty(t, TargetFor(connresult.SignInRequired, nil))
}

func TestPending_ReusedRequestIDAfterCompletion(t *testing.T) {
	f := newFixture(t)
	host := &recordingHost{}
	ctx := context.Background()

	first, err := f.registry.Issue(ctx, "drive", connresult.SignInRequired, signIn())
	require.NoError(t, err)
	require.NoError(t, connresult.New(connresult.SignInRequired, first).StartResolution(ctx, host, 1001))

	_, err = f.registry.Complete(ctx, 1001, connresult.ResultOK)
	require.NoError(t, err)

	second, err := f.registry.Issue(ctx, "drive", connresult.SignInRequired, signIn())
	require.NoError(t, err)
	require.NoError(t, connresult.New(connresult.SignInRequired, second).StartResolution(ctx, host, 1001))
	assert.Equal(t, 2, host.count())

	completed, err := f.registry.Complete(ctx, 1001, connresult.ResultCanceled)
	require.NoError(t, err)
	assert.Equal(t, second.Token(), completed.Token)
	assert.False(t, completed.Retry())
}

func TestPending_RequestIDBusyWhileFlowOutstanding(t *testing.T) {
	f := newFixture(t)
	host := &recordingHost{}
	ctx := context.Background()

	first, err := f.registry.Issue(ctx, "drive", connresult.SignInRequired, signIn())
	require.NoError(t, err)
	require.NoError(t, connresult.New(connresult.SignInRequired, first).StartResolution(ctx, host, 1001))

	second, err := f.registry.Issue(ctx, "drive", connresult.SignInRequired, signIn())
	require.NoError(t, err)
	err = connresult.New(connresult.SignInRequired, second).StartResolution(ctx, host, 1001)
	assert.ErrorIs(t, err, storage.ErrRequestInUse)
	assert.Equal(t, 1, host.count())
}

func TestRegistry_PurgeStaleClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.registry.Issue(ctx, "drive", connresult.SignInRequired, signIn())
	require.NoError(t, err)

	// Claimed but never marked dispatched, as after a crash mid-dispatch
	_, err = f.store.ClaimResolution(p.Token(), 1001, f.clock.Now())
	require.NoError(t, err)

	f.clock.Advance(365 * 24 * time.Hour)
	removed, err := f.registry.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = f.registry.Get(p.Token())
	assert.ErrorIs(t, err, connresult.ErrResolutionNotFound)
}

func TestPending_NilCapability(t *testing.T) {
	var p *Pending
	host := &recordingHost{}

	result := connresult.New(connresult.SignInRequired, p)
	assert.False(t, result.HasResolution())
	assert.NoError(t, result.StartResolution(context.Background(), host, 1))

	assert.ErrorIs(t, p.Dispatch(context.Background(), host, 1), connresult.ErrResolutionNotFound)
	assert.Equal(t, 0, host.count())
}
