package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// RunsTotal tracks the number of harvest runs per table
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendsync_runs_total",
			Help: "Total number of harvest runs",
		},
		[]string{"table", "status"}, // status: success, failed
	)

	// RunDuration measures harvest run duration in seconds
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trendsync_run_duration_seconds",
			Help:    "Harvest run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17m
		},
		[]string{"table", "status"},
	)

	// RunsActive tracks the number of harvest runs in progress
	RunsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trendsync_runs_active",
			Help: "Number of harvest runs in progress",
		},
		[]string{"table"},
	)

	// ProviderRequests counts provider calls by outcome
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendsync_provider_requests_total",
			Help: "Total number of provider requests",
		},
		[]string{"table", "status"}, // status: success, transient, permanent
	)

	// ProviderRetries counts retry sleeps taken against the provider
	ProviderRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendsync_provider_retries_total",
			Help: "Total number of provider retries",
		},
		[]string{"table"},
	)

	// RowsStaged counts rows appended to staging tables
	RowsStaged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendsync_rows_staged_total",
			Help: "Total number of rows appended to staging",
		},
		[]string{"table"},
	)

	// ReconcileTotal counts reconcile attempts
	ReconcileTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendsync_reconcile_total",
			Help: "Total number of canonical table rebuilds",
		},
		[]string{"table", "status"},
	)

	// ReconcileDuration measures canonical table rebuild time
	ReconcileDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trendsync_reconcile_duration_seconds",
			Help:    "Canonical table rebuild time",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"table"},
	)

	// StoreQueries counts queries issued to the warehouse
	StoreQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendsync_store_queries_total",
			Help: "Total number of warehouse queries",
		},
		[]string{"backend", "query_type", "status"},
	)

	// StoreQueryDuration measures warehouse query time
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trendsync_store_query_duration_seconds",
			Help:    "Warehouse query execution time",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		},
		[]string{"backend", "query_type"},
	)

	// MessagesPublished counts fan-out messages
	MessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendsync_messages_published_total",
			Help: "Total number of fan-out messages published",
		},
		[]string{"table", "status"},
	)

	// WatermarkTimestamp tracks the last observed watermark per table
	WatermarkTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trendsync_watermark_timestamp",
			Help: "Watermark of the canonical table (unix timestamp)",
		},
		[]string{"table"},
	)

	// SchedulerLeader indicates whether this instance holds scheduler leadership
	SchedulerLeader = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trendsync_scheduler_leader",
			Help: "Whether this instance is the scheduler leader (1=leader, 0=follower)",
		},
	)

	// ErrorsTotal counts total number of errors
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendsync_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordRunStart records the start of a harvest run
func RecordRunStart(table string) {
	RunsActive.WithLabelValues(table).Inc()
}

// RecordRunComplete records harvest run completion
func RecordRunComplete(table, status string, duration float64) {
	RunsActive.WithLabelValues(table).Dec()
	RunsTotal.WithLabelValues(table, status).Inc()
	RunDuration.WithLabelValues(table, status).Observe(duration)
}

// RecordProviderRequest records a provider call outcome
func RecordProviderRequest(table, status string) {
	ProviderRequests.WithLabelValues(table, status).Inc()
}

// RecordProviderRetry records a retry against the provider
func RecordProviderRetry(table string) {
	ProviderRetries.WithLabelValues(table).Inc()
}

// RecordRowsStaged records rows appended to staging
func RecordRowsStaged(table string, count int64) {
	RowsStaged.WithLabelValues(table).Add(float64(count))
}

// RecordReconcile records a canonical table rebuild
func RecordReconcile(table, status string, duration float64) {
	ReconcileTotal.WithLabelValues(table, status).Inc()
	ReconcileDuration.WithLabelValues(table).Observe(duration)
}

// RecordStoreQuery records warehouse query metrics
func RecordStoreQuery(backend, queryType, status string, duration float64) {
	StoreQueries.WithLabelValues(backend, queryType, status).Inc()
	StoreQueryDuration.WithLabelValues(backend, queryType).Observe(duration)
}

// RecordMessagePublished records a fan-out publish
func RecordMessagePublished(table, status string) {
	MessagesPublished.WithLabelValues(table, status).Inc()
}

// RecordWatermark records the watermark observed for a table
func RecordWatermark(table string, unix float64) {
	WatermarkTimestamp.WithLabelValues(table).Set(unix)
}

// RecordLeadership records scheduler leadership changes
func RecordLeadership(leader bool) {
	if leader {
		SchedulerLeader.Set(1)
		return
	}

	SchedulerLeader.Set(0)
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
