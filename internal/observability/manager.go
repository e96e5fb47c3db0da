package observability

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Manager coordinates health checks, metrics and tracing for the daemon
type Manager struct {
	logger  *zap.SugaredLogger
	health  *HealthManager
	metrics *MetricsManager
	tracing *TracingManager

	startTime time.Time
}

// NewManager creates a new observability manager. Health checks and metrics
// are always on; tracing follows tracingCfg.
func NewManager(logger *zap.SugaredLogger, tracingCfg TracingConfig) (*Manager, error) {
	tracing, err := NewTracingManager(logger, tracingCfg)
	if err != nil {
		return nil, err
	}

	return &Manager{
		logger:    logger,
		health:    NewHealthManager(logger),
		metrics:   NewMetricsManager(logger),
		tracing:   tracing,
		startTime: time.Now(),
	}, nil
}

// Health returns the health manager
func (m *Manager) Health() *HealthManager {
	return m.health
}

// Metrics returns the metrics manager
func (m *Manager) Metrics() *MetricsManager {
	return m.metrics
}

// Tracing returns the tracing manager
func (m *Manager) Tracing() *TracingManager {
	return m.tracing
}

// RegisterHealthChecker registers a health checker
func (m *Manager) RegisterHealthChecker(checker HealthChecker) {
	m.health.AddHealthChecker(checker)
}

// UpdateUptime refreshes the uptime gauge
func (m *Manager) UpdateUptime() {
	m.metrics.SetUptime(m.startTime)
}

// Close shuts down tracing
func (m *Manager) Close(ctx context.Context) error {
	return m.tracing.Close(ctx)
}
