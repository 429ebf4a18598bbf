// Package metrics provides Prometheus metrics for the feature-usage refresh pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the pipeline.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Refresh run metrics
	refreshRuns              *prometheus.CounterVec
	refreshDuration          prometheus.Histogram
	refreshLastSuccessUnix   prometheus.Gauge
	refreshEventsRead        prometheus.Gauge
	refreshAggregatesWritten prometheus.Gauge
	refreshFeatures          prometheus.Gauge

	// Store metrics
	storeErrors    *prometheus.CounterVec
	storeLatency   *prometheus.HistogramVec
	scheduledSkips prometheus.Counter

	// Snapshot metrics
	snapshotReloads        *prometheus.CounterVec
	snapshotReloadDuration prometheus.Histogram
	snapshotGeneratedUnix  prometheus.Gauge

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "tct",
		subsystem:        "usage",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.refreshRuns = auto.NewCounterVec(
		m.counterOpts("refresh_runs_total", "Aggregate refresh runs by outcome"),
		[]string{"status"},
	)
	m.refreshDuration = auto.NewHistogram(
		m.histogramOpts("refresh_duration_milliseconds", "Duration of aggregate refresh runs in milliseconds"),
	)
	m.refreshLastSuccessUnix = auto.NewGauge(
		m.gaugeOpts("refresh_last_success_unix", "Unix timestamp of the last successful refresh"),
	)
	m.refreshEventsRead = auto.NewGauge(
		m.gaugeOpts("refresh_events_read", "Usage events read by the last refresh"),
	)
	m.refreshAggregatesWritten = auto.NewGauge(
		m.gaugeOpts("refresh_aggregates_written", "Aggregate rows written by the last refresh"),
	)
	m.refreshFeatures = auto.NewGauge(
		m.gaugeOpts("refresh_features", "Distinct features seen by the last refresh"),
	)

	m.storeErrors = auto.NewCounterVec(
		m.counterOpts("store_errors_total", "Usage store errors by component and type"),
		[]string{"component", "error_type"},
	)
	m.storeLatency = auto.NewHistogramVec(
		m.histogramOpts("store_operation_latency_milliseconds", "Usage store operation latency in milliseconds"),
		[]string{"store", "operation"},
	)
	m.scheduledSkips = auto.NewCounter(
		m.counterOpts("scheduled_runs_skipped_total", "Scheduled refreshes skipped because a run was in progress"),
	)

	m.snapshotReloads = auto.NewCounterVec(
		m.counterOpts("snapshot_reloads_total", "Reader snapshot reloads by outcome"),
		[]string{"status"},
	)
	m.snapshotReloadDuration = auto.NewHistogram(
		m.histogramOpts("snapshot_reload_duration_milliseconds", "Reader snapshot reload duration in milliseconds"),
	)
	m.snapshotGeneratedUnix = auto.NewGauge(
		m.gaugeOpts("snapshot_generated_unix", "Generation time of the aggregate set currently served to readers"),
	)

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.errorRateByEndpoint = auto.NewCounterVec(
		m.counterOpts("errors_by_endpoint_total", "Total number of errors by endpoint"),
		[]string{"endpoint", "method", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(
		m.gaugeOpts("system_memory_usage_bytes", "System memory usage in bytes"),
	)
	m.systemGoroutineCount = auto.NewGauge(
		m.gaugeOpts("system_goroutine_count", "Number of goroutines"),
	)
}

// Refresh Metrics Functions.

// RecordRefreshRun counts a finished refresh run by outcome.
func RecordRefreshRun(status string) {
	globalManager.refreshRuns.WithLabelValues(status).Inc()
}

// RecordRefreshDuration records refresh duration in milliseconds.
func RecordRefreshDuration(ms float64) {
	globalManager.refreshDuration.Observe(ms)
}

// UpdateRefreshLastSuccess sets the last successful refresh time.
func UpdateRefreshLastSuccess(unix float64) {
	globalManager.refreshLastSuccessUnix.Set(unix)
}

// UpdateRefreshResult sets the gauges describing the last successful refresh.
func UpdateRefreshResult(events, aggregates, features int) {
	globalManager.refreshEventsRead.Set(float64(events))
	globalManager.refreshAggregatesWritten.Set(float64(aggregates))
	globalManager.refreshFeatures.Set(float64(features))
}

// Store Metrics Functions.

// RecordStoreError increments the store error counter.
func RecordStoreError(component, errorType string) {
	globalManager.storeErrors.WithLabelValues(component, errorType).Inc()
}

// RecordStoreLatency records a store operation latency in milliseconds.
func RecordStoreLatency(store, operation string, ms float64) {
	globalManager.storeLatency.WithLabelValues(store, operation).Observe(ms)
}

// RecordScheduledSkip counts a scheduled run skipped due to overlap.
func RecordScheduledSkip() {
	globalManager.scheduledSkips.Inc()
}

// Snapshot Metrics Functions.

// RecordSnapshotReload counts a snapshot reload by outcome.
func RecordSnapshotReload(status string) {
	globalManager.snapshotReloads.WithLabelValues(status).Inc()
}

// RecordSnapshotReloadDuration records reload duration in milliseconds.
func RecordSnapshotReloadDuration(ms float64) {
	globalManager.snapshotReloadDuration.Observe(ms)
}

// UpdateSnapshotGeneratedUnix sets the generation time of the served set.
func UpdateSnapshotGeneratedUnix(unix float64) {
	globalManager.snapshotGeneratedUnix.Set(unix)
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
