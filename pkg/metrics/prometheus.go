// Package metrics provides Prometheus metrics for the churnboard service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every collector the service exports.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// HTTP API
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Outbound JSON requests
	fetchRequests *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	fetchInflight prometheus.Gauge

	// Views
	viewLoads   *prometheus.CounterVec
	viewRenders *prometheus.CounterVec

	// Predictions
	predictions       *prometheus.CounterVec
	predictionErrors  prometheus.Counter
	predictionLatency prometheus.Histogram

	// Interventions
	interventionsAccepted  prometheus.Counter
	interventionsDuplicate prometheus.Counter
	interventionsSent      *prometheus.CounterVec
	interventionsFailed    prometheus.Counter

	// Store
	customersTotal    prometheus.Gauge
	highRiskCustomers prometheus.Gauge
	storeQueryLatency *prometheus.HistogramVec
	storeErrors       *prometheus.CounterVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByType      *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// Runtime
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // package-level record helpers

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps Go runtime collectors out of /healthz

func init() { //nolint:gochecknoinits // global manager setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "churnboard",
		subsystem:        "",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		refreshInterval:  defaultRefreshInterval,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

// RefreshInterval is how often gauge updaters should run.
func (m *Manager) RefreshInterval() time.Duration {
	return m.refreshInterval
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.fetchRequests = m.counterVec("fetch_requests_total",
		"Outbound JSON requests by method and outcome", "method", "outcome")
	m.fetchDuration = m.histogramVec("fetch_duration_milliseconds",
		"Outbound JSON request duration in milliseconds", "method", "outcome")
	m.fetchInflight = m.gauge("fetch_inflight",
		"Outbound JSON requests currently holding a loading flag")

	m.viewLoads = m.counterVec("view_loads_total",
		"Deferred view resolutions by view and outcome", "view", "outcome")
	m.viewRenders = m.counterVec("view_renders_total",
		"Rendered views by view and status", "view", "status_code")

	m.predictions = m.counterVec("predictions_total",
		"Churn predictions served by predictor source", "source")
	m.predictionErrors = m.counter("prediction_errors_total",
		"Churn predictions that failed")
	m.predictionLatency = m.histogram("prediction_latency_milliseconds",
		"Churn prediction latency in milliseconds", m.histogramBuckets)

	m.interventionsAccepted = m.counter("interventions_accepted_total",
		"Intervention requests accepted for delivery")
	m.interventionsDuplicate = m.counter("interventions_duplicate_total",
		"Intervention requests rejected as duplicates")
	m.interventionsSent = m.counterVec("interventions_sent_total",
		"Interventions delivered and recorded by kind", "kind")
	m.interventionsFailed = m.counter("interventions_failed_total",
		"Interventions that failed during delivery or recording")

	m.customersTotal = m.gauge("customers_total",
		"Number of customers in the store")
	m.highRiskCustomers = m.gauge("high_risk_customers",
		"Number of customers above the churn probability threshold")
	m.storeQueryLatency = m.histogramVec("store_query_latency_milliseconds",
		"Store operation latency in milliseconds", "operation")
	m.storeErrors = m.counterVec("store_errors_total",
		"Store operation errors", "operation")

	m.queueSize = m.gauge("queue_size", "Current intervention queue backlog")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum intervention queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Intervention queue utilization (0.0 to 1.0)")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Jobs enqueued")
	m.queueDequeued = m.counter("queue_dequeue_total", "Jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Jobs rejected by the queue")

	m.workerCount = m.gauge("worker_count", "Number of intervention workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Intervention job processing latency in milliseconds", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Intervention jobs that failed")

	m.errorsByComponent = m.counterVec("errors_by_component_total",
		"Errors by component and type", "component", "error_type")
	m.errorsByType = m.counterVec("errors_by_type_total",
		"Errors by type and severity", "error_type", "severity")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total",
		"Errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordHTTPRequest records one served HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordFetch records one settled outbound JSON request.
func RecordFetch(method, outcome string, durationMs float64) {
	globalManager.fetchRequests.WithLabelValues(method, outcome).Inc()
	globalManager.fetchDuration.WithLabelValues(method, outcome).Observe(durationMs)
}

// AddFetchInflight moves the in-flight gauge by delta.
func AddFetchInflight(delta float64) {
	globalManager.fetchInflight.Add(delta)
}

// RecordViewLoad records a deferred view resolution.
func RecordViewLoad(view, outcome string) {
	globalManager.viewLoads.WithLabelValues(view, outcome).Inc()
}

// RecordViewRender records a rendered view.
func RecordViewRender(view, statusCode string) {
	globalManager.viewRenders.WithLabelValues(view, statusCode).Inc()
}

// RecordPrediction records a served prediction and its latency.
func RecordPrediction(source string, latencyMs float64) {
	globalManager.predictions.WithLabelValues(source).Inc()
	globalManager.predictionLatency.Observe(latencyMs)
}

// RecordPredictionError increments the prediction error counter.
func RecordPredictionError() {
	globalManager.predictionErrors.Inc()
}

// RecordInterventionAccepted increments accepted interventions.
func RecordInterventionAccepted() {
	globalManager.interventionsAccepted.Inc()
}

// RecordInterventionDuplicate increments duplicate interventions.
func RecordInterventionDuplicate() {
	globalManager.interventionsDuplicate.Inc()
}

// RecordInterventionSent increments delivered interventions of kind.
func RecordInterventionSent(kind string) {
	globalManager.interventionsSent.WithLabelValues(kind).Inc()
}

// RecordInterventionFailed increments failed interventions.
func RecordInterventionFailed() {
	globalManager.interventionsFailed.Inc()
}

// UpdateCustomersTotal sets the customer count.
func UpdateCustomersTotal(count int) {
	globalManager.customersTotal.Set(float64(count))
}

// UpdateHighRiskCustomers sets the high-risk customer count.
func UpdateHighRiskCustomers(count int) {
	globalManager.highRiskCustomers.Set(float64(count))
}

// RecordStoreQuery records the latency of a store operation.
func RecordStoreQuery(operation string, latencyMs float64) {
	globalManager.storeQueryLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordStoreError increments store errors for operation.
func RecordStoreError(operation string) {
	globalManager.storeErrors.WithLabelValues(operation).Inc()
}

// UpdateQueueSize sets the current queue backlog.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the number of workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records job processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorsByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method and type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets heap bytes allocated.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the registry backing the package-level helpers.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
