// Package metrics provides Prometheus metrics for the biomatch service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Verification outcomes.
const (
	OutcomeMatched          = "matched"
	OutcomeRejected         = "rejected"
	OutcomeExtractionFailed = "extraction_failed"
)

// Manager manages all Prometheus metrics for the biomatch service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Verification
	verifications        *prometheus.CounterVec
	verificationLatency  prometheus.Histogram
	matchRules           *prometheus.CounterVec
	identitiesCompared   prometheus.Counter
	templateDecodeErrors prometheus.Counter

	// Extraction
	extractionLatency  *prometheus.HistogramVec
	extractionFailures *prometheus.CounterVec
	extractionInFlight prometheus.Gauge

	// Enrollment
	enrollments        *prometheus.CounterVec
	enrolledIdentities prometheus.Gauge

	// Attendance
	attendanceRecords    *prometheus.CounterVec
	attendanceDuplicates prometheus.Counter

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorRateByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "biomatch",
		subsystem:        "core",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.verifications = m.counterVec("verifications_total", "Verification calls by outcome", "outcome")
	m.verificationLatency = m.histogram("verification_latency_milliseconds", "End to end verification latency in milliseconds")
	m.matchRules = m.counterVec("match_rules_total", "Accepted matches by decision rule", "rule")
	m.identitiesCompared = m.counter("identities_compared_total", "Enrolled identities scored during verification")
	m.templateDecodeErrors = m.counter("template_decode_errors_total", "Templates skipped because they could not be decoded")

	m.extractionLatency = m.histogramVec("extraction_latency_milliseconds", "Signature extraction latency in milliseconds", "modality")
	m.extractionFailures = m.counterVec("extraction_failures_total", "Signature extraction failures", "modality", "reason")
	m.extractionInFlight = m.gauge("extraction_in_flight", "Extractions currently holding a slot")

	m.enrollments = m.counterVec("enrollments_total", "Enrollment calls by kind and outcome", "kind", "outcome")
	m.enrolledIdentities = m.gauge("enrolled_identities", "Number of enrolled identities")

	m.attendanceRecords = m.counterVec("attendance_records_total", "Attendance records persisted by status", "status")
	m.attendanceDuplicates = m.counter("attendance_duplicates_total", "Attendance events dropped as replays")

	m.queueSize = m.gauge("queue_size", "Current size of the attendance queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum attendance queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of events enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of events dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")

	m.workerCount = m.gauge("worker_count", "Number of attendance workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Number of busy attendance workers")
	m.workerIdleCount = m.gauge("worker_idle_count", "Number of idle attendance workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Attendance event processing latency in milliseconds")
	m.workerErrorRate = m.counter("worker_errors_total", "Total number of worker errors")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Current heap allocation in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Current number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average garbage collection pause time in milliseconds")
}

// RecordVerification counts a verification call and its latency.
func RecordVerification(outcome string, latencyMs float64) {
	globalManager.verifications.WithLabelValues(outcome).Inc()
	globalManager.verificationLatency.Observe(latencyMs)
}

// RecordMatchRule counts the rule that accepted a match.
func RecordMatchRule(rule string) {
	globalManager.matchRules.WithLabelValues(rule).Inc()
}

// RecordIdentitiesCompared adds n scored identities.
func RecordIdentitiesCompared(n int) {
	globalManager.identitiesCompared.Add(float64(n))
}

// RecordTemplateDecodeError counts a skipped template.
func RecordTemplateDecodeError() {
	globalManager.templateDecodeErrors.Inc()
}

// RecordExtractionLatency records extraction latency for a modality.
func RecordExtractionLatency(modality string, latencyMs float64) {
	globalManager.extractionLatency.WithLabelValues(modality).Observe(latencyMs)
}

// RecordExtractionFailure counts an extraction failure.
func RecordExtractionFailure(modality, reason string) {
	globalManager.extractionFailures.WithLabelValues(modality, reason).Inc()
}

// AddExtractionInFlight adjusts the in-flight extraction gauge.
func AddExtractionInFlight(delta int) {
	globalManager.extractionInFlight.Add(float64(delta))
}

// RecordEnrollment counts an enrollment call.
func RecordEnrollment(kind, outcome string) {
	globalManager.enrollments.WithLabelValues(kind, outcome).Inc()
}

// UpdateEnrolledIdentities sets the enrolled identities gauge.
func UpdateEnrolledIdentities(count int) {
	globalManager.enrolledIdentities.Set(float64(count))
}

// RecordAttendance counts a persisted attendance record.
func RecordAttendance(status string) {
	globalManager.attendanceRecords.WithLabelValues(status).Inc()
}

// RecordAttendanceDuplicate counts a dropped replay.
func RecordAttendanceDuplicate() {
	globalManager.attendanceDuplicates.Inc()
}

// UpdateQueueSize sets the current queue size.
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
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdleCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap allocation gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime observes an average GC pause.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
