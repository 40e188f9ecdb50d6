// Package metrics provides Prometheus metrics for the verdict evaluation service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns the Prometheus collectors for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Evaluation flow
	evaluationsSubmitted *prometheus.CounterVec
	evaluationsRejected  *prometheus.CounterVec
	submitLatency        prometheus.Histogram
	compositeScores      prometheus.Histogram
	storedEvaluations    prometheus.Gauge

	// Completion
	teamsTotal     prometheus.Gauge
	teamsComplete  prometheus.Gauge
	pairsExpected  prometheus.Gauge
	pairsSubmitted prometheus.Gauge

	// Release
	releasesTotal   *prometheus.CounterVec
	releaseLatency  prometheus.Histogram
	resultsReleased prometheus.Gauge
	rankingSize     prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	rateLimited         *prometheus.CounterVec

	// Repository
	repositoryUpdateLatency *prometheus.HistogramVec
	repositoryQueryLatency  *prometheus.HistogramVec

	// Feed
	feedSubscribers prometheus.Gauge
	feedMessages    *prometheus.CounterVec

	// Announcement queue
	queueCapacity     prometheus.Gauge
	queueSize         prometheus.Gauge
	queueEnqueued     prometheus.Counter
	queueDropped      *prometheus.CounterVec
	queueDeliveryTime prometheus.Histogram
	workersActive     prometheus.Gauge

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
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

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "verdict",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      map[string]string{},
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
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.evaluationsSubmitted = auto.NewCounterVec(
		m.counterOpts("evaluations_submitted_total", "Accepted evaluation submissions by outcome (created or updated)"),
		[]string{"outcome"},
	)
	m.evaluationsRejected = auto.NewCounterVec(
		m.counterOpts("evaluations_rejected_total", "Rejected evaluation submissions by error kind"),
		[]string{"kind"},
	)
	m.submitLatency = auto.NewHistogram(
		m.histogramOpts("submit_latency_milliseconds", "Evaluation submission latency in milliseconds", m.histogramBuckets),
	)
	m.compositeScores = auto.NewHistogram(
		m.histogramOpts("composite_score", "Distribution of accepted composite scores", prometheus.LinearBuckets(0, 10, 11)),
	)
	m.storedEvaluations = auto.NewGauge(m.gaugeOpts("stored_evaluations", "Number of evaluations held by the store"))

	m.teamsTotal = auto.NewGauge(m.gaugeOpts("teams_total", "Number of registered teams"))
	m.teamsComplete = auto.NewGauge(m.gaugeOpts("teams_complete", "Number of teams with every assigned evaluation received"))
	m.pairsExpected = auto.NewGauge(m.gaugeOpts("assignments_total", "Number of evaluator-team assignments"))
	m.pairsSubmitted = auto.NewGauge(m.gaugeOpts("assignments_submitted", "Number of assignments with a stored evaluation"))

	m.releasesTotal = auto.NewCounterVec(
		m.counterOpts("release_attempts_total", "Release attempts by outcome"),
		[]string{"outcome"},
	)
	m.releaseLatency = auto.NewHistogram(
		m.histogramOpts("release_latency_milliseconds", "Release latency in milliseconds", m.histogramBuckets),
	)
	m.resultsReleased = auto.NewGauge(m.gaugeOpts("results_released", "1 once results have been released"))
	m.rankingSize = auto.NewGauge(m.gaugeOpts("ranking_size", "Number of entries in the published ranking"))

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"},
	)
	m.rateLimited = auto.NewCounterVec(
		m.counterOpts("rate_limited_total", "Requests rejected by the submission rate limiter"),
		[]string{"backend"},
	)

	m.repositoryUpdateLatency = auto.NewHistogramVec(
		m.histogramOpts("repository_update_latency_milliseconds", "Repository write latency in milliseconds", m.histogramBuckets),
		[]string{"backend", "op"},
	)
	m.repositoryQueryLatency = auto.NewHistogramVec(
		m.histogramOpts("repository_query_latency_milliseconds", "Repository read latency in milliseconds", m.histogramBuckets),
		[]string{"backend", "op"},
	)

	m.feedSubscribers = auto.NewGauge(m.gaugeOpts("feed_subscribers", "Connected live feed subscribers"))
	m.feedMessages = auto.NewCounterVec(
		m.counterOpts("feed_messages_total", "Live feed messages broadcast by type"),
		[]string{"type"},
	)

	m.queueCapacity = auto.NewGauge(m.gaugeOpts("announce_queue_capacity", "Capacity of the announcement queue"))
	m.queueSize = auto.NewGauge(m.gaugeOpts("announce_queue_size", "Announcements waiting for delivery"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("announce_enqueued_total", "Announcements accepted by the queue"))
	m.queueDropped = auto.NewCounterVec(
		m.counterOpts("announce_dropped_total", "Announcements dropped before delivery by reason"),
		[]string{"reason"},
	)
	m.queueDeliveryTime = auto.NewHistogram(
		m.histogramOpts("announce_delivery_latency_milliseconds", "Time from enqueue to feed broadcast in milliseconds", m.histogramBuckets),
	)
	m.workersActive = auto.NewGauge(m.gaugeOpts("announce_workers", "Running announcement workers"))

	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Total number of errors by component"),
		[]string{"component", "error_type"},
	)
	m.errorRateByEndpoint = auto.NewCounterVec(
		m.counterOpts("errors_by_endpoint_total", "Total number of errors by endpoint"),
		[]string{"endpoint", "method", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap memory in use in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
}

// RecordEvaluationSubmitted counts an accepted submission; outcome is "created" or "updated".
func RecordEvaluationSubmitted(outcome string) {
	globalManager.evaluationsSubmitted.WithLabelValues(outcome).Inc()
}

// RecordEvaluationRejected counts a rejected submission by error kind.
func RecordEvaluationRejected(kind string) {
	globalManager.evaluationsRejected.WithLabelValues(kind).Inc()
}

// RecordSubmitLatency records submission latency in milliseconds.
func RecordSubmitLatency(latencyMs float64) {
	globalManager.submitLatency.Observe(latencyMs)
}

// RecordCompositeScore observes an accepted composite score.
func RecordCompositeScore(score float64) {
	globalManager.compositeScores.Observe(score)
}

// UpdateStoredEvaluations sets the stored evaluation count.
func UpdateStoredEvaluations(count int) {
	globalManager.storedEvaluations.Set(float64(count))
}

// UpdateCompletion sets the completion gauges.
func UpdateCompletion(teams, completeTeams, expected, submitted int) {
	globalManager.teamsTotal.Set(float64(teams))
	globalManager.teamsComplete.Set(float64(completeTeams))
	globalManager.pairsExpected.Set(float64(expected))
	globalManager.pairsSubmitted.Set(float64(submitted))
}

// RecordReleaseAttempt counts a release attempt by outcome.
func RecordReleaseAttempt(outcome string) {
	globalManager.releasesTotal.WithLabelValues(outcome).Inc()
}

// RecordReleaseLatency records release latency in milliseconds.
func RecordReleaseLatency(latencyMs float64) {
	globalManager.releaseLatency.Observe(latencyMs)
}

// MarkReleased flips the released gauge and records the ranking size.
func MarkReleased(entries int) {
	globalManager.resultsReleased.Set(1)
	globalManager.rankingSize.Set(float64(entries))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordRateLimited counts a request rejected by the limiter.
func RecordRateLimited(backend string) {
	globalManager.rateLimited.WithLabelValues(backend).Inc()
}

// RecordRepositoryUpdateLatency records repository write latency.
func RecordRepositoryUpdateLatency(backend, op string, latencyMs float64) {
	globalManager.repositoryUpdateLatency.WithLabelValues(backend, op).Observe(latencyMs)
}

// RecordRepositoryQueryLatency records repository read latency.
func RecordRepositoryQueryLatency(backend, op string, latencyMs float64) {
	globalManager.repositoryQueryLatency.WithLabelValues(backend, op).Observe(latencyMs)
}

// UpdateFeedSubscribers sets the live feed subscriber count.
func UpdateFeedSubscribers(count int) {
	globalManager.feedSubscribers.Set(float64(count))
}

// RecordFeedMessage counts a broadcast feed message.
func RecordFeedMessage(msgType string) {
	globalManager.feedMessages.WithLabelValues(msgType).Inc()
}

// UpdateQueueCapacity sets the announcement queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueSize sets the number of queued announcements.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// RecordQueueEnqueue counts an accepted announcement.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDrop counts an announcement that was not delivered.
func RecordQueueDrop(reason string) {
	globalManager.queueDropped.WithLabelValues(reason).Inc()
}

// RecordQueueDeliveryLatency records enqueue-to-broadcast latency.
func RecordQueueDeliveryLatency(latencyMs float64) {
	globalManager.queueDeliveryTime.Observe(latencyMs)
}

// UpdateWorkerCount sets the number of running announcement workers.
func UpdateWorkerCount(count int) {
	globalManager.workersActive.Set(float64(count))
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap memory in use.
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
