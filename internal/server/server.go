// Package server wires storage, the resolution registry, the interactive
// host and the HTTP API into the connresult daemon.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/smart-mcp-proxy/connresult/internal/classify"
	"github.com/smart-mcp-proxy/connresult/internal/config"
	"github.com/smart-mcp-proxy/connresult/internal/connresult"
	"github.com/smart-mcp-proxy/connresult/internal/host"
	"github.com/smart-mcp-proxy/connresult/internal/httpapi"
	"github.com/smart-mcp-proxy/connresult/internal/observability"
	"github.com/smart-mcp-proxy/connresult/internal/reqcontext"
	"github.com/smart-mcp-proxy/connresult/internal/resolution"
	"github.com/smart-mcp-proxy/connresult/internal/storage"
)

const shutdownTimeout = 30 * time.Second

// InteractiveHost is a connresult.Host that also receives completions.
type InteractiveHost interface {
	connresult.Host
	OnComplete(handler host.CompletionHandler)
	Complete(ctx context.Context, requestID, resultCode int) error
	InFlight() []int
}

// Server is the connresult daemon
type Server struct {
	config  *config.Config
	logger  *zap.Logger
	version string

	db         *storage.BoltDB
	obs        *observability.Manager
	registry   *resolution.Registry
	remediator *resolution.Remediator
	host       InteractiveHost
	api        *httpapi.Server

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	ready      chan struct{}
	readyOnce  sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithHost replaces the host chosen from configuration.
func WithHost(h InteractiveHost) Option {
	return func(s *Server) { s.host = h }
}

// WithVersion sets the version reported in traces.
func WithVersion(version string) Option {
	return func(s *Server) { s.version = version }
}

// New opens storage and builds every daemon component. Call Close when done.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Server, error) {
	s := &Server{
		config:  cfg,
		logger:  logger,
		version: "development",
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := storage.NewBoltDB(cfg.DataDir, logger.Sugar())
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	s.db = db
	logger.Info("Storage opened", zap.String("path", db.Path()))

	obs, err := observability.NewManager(logger.Sugar(), observability.TracingConfig{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: s.version,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}
	s.obs = obs
	obs.RegisterHealthChecker(observability.NewCheckFunc("storage", func(context.Context) error {
		_, err := db.GetSchemaVersion()
		return err
	}))

	s.registry = resolution.NewRegistry(db, logger,
		resolution.WithTTL(cfg.Resolution.TTL),
		resolution.WithRetention(cfg.Resolution.RetainFor),
		resolution.WithTracer(obs.Tracing().Tracer()),
		resolution.WithMetrics(obs.Metrics()),
	)
	s.remediator = resolution.NewRemediator(s.registry, cfg.Service, obs.Metrics(), logger)

	if s.host == nil {
		s.host = newHost(cfg.Resolution, logger)
	}
	s.host.OnComplete(func(ctx context.Context, requestID, resultCode int) error {
		_, err := s.registry.Complete(ctx, requestID, resultCode)
		return err
	})

	s.api = httpapi.NewServer(s, logger.Sugar(), obs)
	return s, nil
}

func newHost(cfg config.ResolutionConfig, logger *zap.Logger) InteractiveHost {
	if !cfg.OpenBrowser {
		return host.NewConsoleHost(os.Stderr)
	}
	var opts []host.Option
	if cfg.Notify {
		opts = append(opts, host.WithNotifier(host.DesktopNotify))
	}
	return host.NewBrowserHost(logger, opts...)
}

// Handler returns the HTTP API handler
func (s *Server) Handler() http.Handler {
	return s.api
}

// Ready is closed once the first Run accepts connections
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listen address, or "" before Run has bound it
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run serves the API and the purge loop until ctx is canceled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}

	httpServer := &http.Server{
		Handler:           s.api,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	s.mu.Lock()
	s.listener = listener
	s.httpServer = httpServer
	s.mu.Unlock()

	s.logger.Info("Starting connresult daemon",
		zap.String("address", listener.Addr().String()),
		zap.String("data_dir", s.config.DataDir),
		zap.Duration("resolution_ttl", s.config.Resolution.TTL),
		zap.Bool("open_browser", s.config.Resolution.OpenBrowser),
		zap.Int("services", len(s.config.Services)))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(listener)
	}()
	s.readyOnce.Do(func() { close(s.ready) })

	var wg sync.WaitGroup
	loopCtx, cancelLoop := context.WithCancel(ctx)
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.purgeLoop(loopCtx)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Context cancelled, shutting down daemon")
	case err := <-serveErr:
		cancelLoop()
		wg.Wait()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	}

	cancelLoop()
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP server forced shutdown due to timeout", zap.Error(err))
		_ = httpServer.Close()
	} else {
		s.logger.Info("HTTP server shutdown completed gracefully")
	}
	return nil
}

// purgeLoop removes stale resolutions and refreshes gauges every interval
func (s *Server) purgeLoop(ctx context.Context) {
	interval := s.config.Resolution.PurgeInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.purge(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.purge(ctx)
		}
	}
}

func (s *Server) purge(ctx context.Context) {
	ctx = reqcontext.WithCorrelationID(ctx, reqcontext.NewCorrelationID())
	ctx = reqcontext.WithRequestSource(ctx, reqcontext.SourceInternal)

	s.obs.UpdateUptime()
	if _, err := s.registry.Purge(ctx); err != nil {
		s.obs.Metrics().RecordStorageOperation("purge", "error")
		reqcontext.CorrelationLogger(ctx, s.logger).Error("Failed to purge resolutions", zap.Error(err))
		return
	}
	s.obs.Metrics().RecordStorageOperation("purge", "success")
}

// Close releases storage and flushes traces
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if err := s.obs.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to close tracing: %w", err))
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close storage: %w", err))
	}
	return errors.Join(errs...)
}

// Remediate implements httpapi.Controller
func (s *Server) Remediate(ctx context.Context, report classify.Report) (*resolution.Outcome, error) {
	return s.remediator.Remediate(ctx, report)
}

// ListResolutions implements httpapi.Controller
func (s *Server) ListResolutions() ([]*storage.ResolutionRecord, error) {
	return s.registry.List()
}

// GetResolution implements httpapi.Controller
func (s *Server) GetResolution(token string) (*storage.ResolutionRecord, error) {
	return s.registry.Get(token)
}

// StartResolution rebuilds the ConnectionResult for token and starts its
// resolution on the daemon's host.
func (s *Server) StartResolution(ctx context.Context, token string, requestID int) error {
	result, err := s.registry.Result(token)
	if err != nil {
		return err
	}
	return result.StartResolution(ctx, s.host, requestID)
}

// CancelResolution implements httpapi.Controller
func (s *Server) CancelResolution(ctx context.Context, token string) (*storage.ResolutionRecord, error) {
	return s.registry.Cancel(ctx, token)
}

// CompleteRequest delivers a completion through the host, which forwards it
// to the registry.
func (s *Server) CompleteRequest(ctx context.Context, requestID, resultCode int) (*storage.ResolutionRecord, error) {
	if err := s.host.Complete(ctx, requestID, resultCode); err != nil {
		return nil, err
	}
	return s.db.GetResolutionByRequest(requestID)
}
