// Package metrics provides Prometheus metrics for the OTX sync pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager holds all Prometheus metrics for the sync process.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Pipeline outcome metrics
	pulsesProcessed   *prometheus.CounterVec // labeled by outcome
	indicatorsCreated prometheus.Counter
	indicatorsSkipped *prometheus.CounterVec // labeled by reason
	indicatorsFailed  prometheus.Counter

	// Best-effort write failures
	ticketFailures       prometheus.Counter
	relationshipFailures prometheus.Counter

	// Remote call metrics
	feedPages       prometheus.Counter
	feedErrors      prometheus.Counter
	repoCallLatency *prometheus.HistogramVec // labeled by operation

	// Run metrics
	runDuration prometheus.Histogram
	runsTotal   prometheus.Counter
}

var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "otxsync",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.pulsesProcessed = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "pulses_processed_total",
			Help:      "Total number of pulses processed, by terminal outcome",
		},
		[]string{"outcome"},
	)

	m.indicatorsCreated = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "indicators_created_total",
		Help:      "Total number of indicators created in the repository",
	})

	m.indicatorsSkipped = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "indicators_skipped_total",
			Help:      "Total number of indicator records skipped before any repository call",
		},
		[]string{"reason"},
	)

	m.indicatorsFailed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "indicators_failed_total",
		Help:      "Total number of indicator creations rejected by the repository",
	})

	m.ticketFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ticket_failures_total",
		Help:      "Total number of failed ticket attachments (dedup marker missing)",
	})

	m.relationshipFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "relationship_failures_total",
		Help:      "Total number of failed event-indicator relationship creations",
	})

	m.feedPages = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "feed_pages_total",
		Help:      "Total number of feed pages fetched",
	})

	m.feedErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "feed_errors_total",
		Help:      "Total number of feed requests that did not return 200",
	})

	m.repoCallLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "repository_call_latency_milliseconds",
			Help:      "Latency of repository calls by operation",
			Buckets:   m.histogramBuckets,
		},
		[]string{"operation"},
	)

	m.runDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "run_duration_seconds",
		Help:      "Duration of one full sync run",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	m.runsTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "runs_total",
		Help:      "Total number of completed sync runs",
	})
}

// RecordPulseOutcome increments the pulse counter for a terminal outcome.
func RecordPulseOutcome(outcome string) {
	globalManager.pulsesProcessed.WithLabelValues(outcome).Inc()
}

// RecordIndicatorCreated increments the created indicators counter.
func RecordIndicatorCreated() {
	globalManager.indicatorsCreated.Inc()
}

// RecordIndicatorSkipped counts a record skipped for "unsupported" or
// "unmapped" reasons.
func RecordIndicatorSkipped(reason string) {
	globalManager.indicatorsSkipped.WithLabelValues(reason).Inc()
}

// RecordIndicatorFailed increments the rejected indicator counter.
func RecordIndicatorFailed() {
	globalManager.indicatorsFailed.Inc()
}

// RecordTicketFailure increments the ticket attachment failure counter.
func RecordTicketFailure() {
	globalManager.ticketFailures.Inc()
}

// RecordRelationshipFailure increments the relationship failure counter.
func RecordRelationshipFailure() {
	globalManager.relationshipFailures.Inc()
}

// RecordFeedPage increments the fetched feed page counter.
func RecordFeedPage() {
	globalManager.feedPages.Inc()
}

// RecordFeedError increments the feed error counter.
func RecordFeedError() {
	globalManager.feedErrors.Inc()
}

// RecordRepositoryCallLatency records one repository call's latency.
func RecordRepositoryCallLatency(operation string, latencyMs float64) {
	globalManager.repoCallLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordRunDuration records the duration of one completed run.
func RecordRunDuration(seconds float64) {
	globalManager.runDuration.Observe(seconds)
	globalManager.runsTotal.Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
