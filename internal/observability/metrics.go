package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Dispatch outcomes
const (
	OutcomeDispatched = "dispatched"
	OutcomeConsumed   = "consumed"
	OutcomeCanceled   = "canceled"
	OutcomeExpired    = "expired"
	OutcomeNotFound   = "not_found"
	OutcomeHostError  = "host_error"
	OutcomeRejected   = "rejected"
)

// MetricsManager manages Prometheus metrics
type MetricsManager struct {
	logger   *zap.SugaredLogger
	registry *prometheus.Registry

	uptime       prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	reports            *prometheus.CounterVec
	resolutionsIssued  *prometheus.CounterVec
	resolutionsPending prometheus.Gauge
	dispatches         *prometheus.CounterVec
	dispatchDuration   prometheus.Histogram
	completions        *prometheus.CounterVec
	resolutionsPurged  prometheus.Counter
	storageOps         *prometheus.CounterVec
}

// NewMetricsManager creates a new metrics manager with its own registry
func NewMetricsManager(logger *zap.SugaredLogger) *MetricsManager {
	mm := &MetricsManager{
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}

	mm.initMetrics()
	mm.registerMetrics()

	return mm
}

// initMetrics initializes all Prometheus metrics
func (mm *MetricsManager) initMetrics() {
	mm.uptime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "connresult_uptime_seconds",
		Help: "Time since the daemon started",
	})

	mm.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connresult_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	mm.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "connresult_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	mm.reports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connresult_reports_total",
			Help: "Connection attempt reports classified, by error code",
		},
		[]string{"code"},
	)

	mm.resolutionsIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connresult_resolutions_issued_total",
			Help: "Resolutions issued, by error code",
		},
		[]string{"code"},
	)

	mm.resolutionsPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "connresult_resolutions_pending",
		Help: "Resolutions that may still be dispatched",
	})

	mm.dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connresult_dispatch_total",
			Help: "Resolution dispatch attempts, by outcome",
		},
		[]string{"outcome"},
	)

	mm.dispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "connresult_dispatch_duration_seconds",
			Help:    "Time taken to hand a resolution to the host",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	mm.completions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connresult_completions_total",
			Help: "Completions reported by hosts, by result",
		},
		[]string{"result"}, // result: ok, canceled, user
	)

	mm.resolutionsPurged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "connresult_resolutions_purged_total",
		Help: "Resolution records removed by the purge loop",
	})

	mm.storageOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connresult_storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "status"},
	)
}

// registerMetrics registers all metrics with the registry
func (mm *MetricsManager) registerMetrics() {
	mm.registry.MustRegister(
		mm.uptime,
		mm.httpRequests,
		mm.httpDuration,
		mm.reports,
		mm.resolutionsIssued,
		mm.resolutionsPending,
		mm.dispatches,
		mm.dispatchDuration,
		mm.completions,
		mm.resolutionsPurged,
		mm.storageOps,
	)

	mm.registry.MustRegister(collectors.NewGoCollector())
	mm.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Handler returns an HTTP handler for the /metrics endpoint
func (mm *MetricsManager) Handler() http.Handler {
	return promhttp.HandlerFor(mm.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry for custom metrics
func (mm *MetricsManager) Registry() *prometheus.Registry {
	return mm.registry
}

// SetUptime sets the uptime metric
func (mm *MetricsManager) SetUptime(startTime time.Time) {
	mm.uptime.Set(time.Since(startTime).Seconds())
}

// RecordHTTPRequest records an HTTP request. path should be a route
// pattern, not the raw URL, to keep label cardinality bounded.
func (mm *MetricsManager) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	mm.httpRequests.WithLabelValues(method, path, code).Inc()
	mm.httpDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
}

// RecordReport records a classified connection attempt
func (mm *MetricsManager) RecordReport(code string) {
	mm.reports.WithLabelValues(code).Inc()
}

// RecordResolutionIssued records a newly issued resolution
func (mm *MetricsManager) RecordResolutionIssued(code string) {
	mm.resolutionsIssued.WithLabelValues(code).Inc()
}

// SetResolutionsPending sets the number of dispatchable resolutions
func (mm *MetricsManager) SetResolutionsPending(count int) {
	mm.resolutionsPending.Set(float64(count))
}

// RecordDispatch records a dispatch attempt
func (mm *MetricsManager) RecordDispatch(outcome string, duration time.Duration) {
	mm.dispatches.WithLabelValues(outcome).Inc()
	if outcome == OutcomeDispatched {
		mm.dispatchDuration.Observe(duration.Seconds())
	}
}

// RecordCompletion records a completion result
func (mm *MetricsManager) RecordCompletion(result string) {
	mm.completions.WithLabelValues(result).Inc()
}

// RecordPurge records purged resolution records
func (mm *MetricsManager) RecordPurge(count int) {
	mm.resolutionsPurged.Add(float64(count))
}

// RecordStorageOperation records a storage operation
func (mm *MetricsManager) RecordStorageOperation(operation, status string) {
	mm.storageOps.WithLabelValues(operation, status).Inc()
}
