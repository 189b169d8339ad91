// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Refresh metrics
	RefreshRunsTotal *prometheus.CounterVec
	RefreshDuration  *prometheus.HistogramVec

	// Source metrics
	SourceFetchLatency *prometheus.HistogramVec
	SourceFetchErrors  *prometheus.CounterVec
	BreakerState       *prometheus.GaugeVec

	// Normalization metrics
	MalformedFields *prometheus.CounterVec
	DroppedRecords  *prometheus.CounterVec
	DuplicateDays   *prometheus.CounterVec

	// Cache metrics
	CacheRequests *prometheus.CounterVec

	// Projection metrics
	ProjectedPoints    *prometheus.GaugeVec
	LatestBackingRatio *prometheus.GaugeVec
	LatestDiscount     *prometheus.GaugeVec

	// API metrics
	HTTPRequestDuration *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRefresh *prometheus.GaugeVec
}

// NewMetrics creates a Metrics instance registered on the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith creates a Metrics instance registered on reg.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "backing_lab"
	}
	factory := promauto.With(reg)

	return &Metrics{
		RefreshRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "runs_total",
			Help:      "Total number of refresh runs by instrument and status",
		}, []string{"instrument", "status"}),
		RefreshDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "duration_seconds",
			Help:      "Refresh run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"instrument"}),

		SourceFetchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "fetch_latency_seconds",
			Help:      "Upstream fetch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source", "kind"}),
		SourceFetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "fetch_errors_total",
			Help:      "Total number of failed upstream fetches",
		}, []string{"source", "kind"}),
		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"source"}),

		MalformedFields: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalization",
			Name:      "malformed_fields_total",
			Help:      "Numeric fields that could not be parsed and were treated as missing",
		}, []string{"kind"}),
		DroppedRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalization",
			Name:      "dropped_records_total",
			Help:      "Records dropped because their date could not be parsed",
		}, []string{"kind"}),
		DuplicateDays: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalization",
			Name:      "duplicate_days_total",
			Help:      "Records overwritten by a later record for the same day",
		}, []string{"kind"}),

		CacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Cache lookups by series kind and result",
		}, []string{"kind", "result"}),

		ProjectedPoints: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "projection",
			Name:      "points",
			Help:      "Number of points in the latest projection",
		}, []string{"instrument"}),
		LatestBackingRatio: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "projection",
			Name:      "latest_backing_ratio",
			Help:      "Backing ratio on the last historical day",
		}, []string{"instrument"}),
		LatestDiscount: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "projection",
			Name:      "latest_discount",
			Help:      "Tracked/reference price ratio on the last day that had one",
		}, []string{"instrument"}),

		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),

		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"store", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"store", "operation"}),

		LastSuccessfulRefresh: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_refresh_timestamp",
			Help:      "Unix timestamp of the last successful refresh",
		}, []string{"instrument"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordRefresh records a finished refresh run.
func RecordRefresh(instrument, status string, durationSeconds float64) {
	DefaultMetrics.RefreshRunsTotal.WithLabelValues(instrument, status).Inc()
	DefaultMetrics.RefreshDuration.WithLabelValues(instrument).Observe(durationSeconds)
}

// RecordRefreshSuccess stamps the last successful refresh time.
func RecordRefreshSuccess(instrument string, unixSeconds float64) {
	DefaultMetrics.LastSuccessfulRefresh.WithLabelValues(instrument).Set(unixSeconds)
}

// RecordFetch records an upstream fetch.
func RecordFetch(source, kind string, seconds float64, err error) {
	DefaultMetrics.SourceFetchLatency.WithLabelValues(source, kind).Observe(seconds)
	if err != nil {
		DefaultMetrics.SourceFetchErrors.WithLabelValues(source, kind).Inc()
	}
}

// UpdateBreakerState sets the breaker state gauge.
func UpdateBreakerState(source string, state int) {
	DefaultMetrics.BreakerState.WithLabelValues(source).Set(float64(state))
}

// RecordNormalization adds coercion counts for a series kind.
func RecordNormalization(kind string, malformed, dropped, duplicates int) {
	DefaultMetrics.MalformedFields.WithLabelValues(kind).Add(float64(malformed))
	DefaultMetrics.DroppedRecords.WithLabelValues(kind).Add(float64(dropped))
	DefaultMetrics.DuplicateDays.WithLabelValues(kind).Add(float64(duplicates))
}

// RecordCache records a cache lookup result: "hit", "miss" or "error".
func RecordCache(kind, result string) {
	DefaultMetrics.CacheRequests.WithLabelValues(kind, result).Inc()
}

// UpdateProjection sets the projection gauges. discount is skipped when nil.
func UpdateProjection(instrument string, points int, backingRatio float64, discount *float64) {
	DefaultMetrics.ProjectedPoints.WithLabelValues(instrument).Set(float64(points))
	DefaultMetrics.LatestBackingRatio.WithLabelValues(instrument).Set(backingRatio)
	if discount != nil {
		DefaultMetrics.LatestDiscount.WithLabelValues(instrument).Set(*discount)
	}
}

// RecordHTTPRequest records an API request.
func RecordHTTPRequest(route, method, status string, seconds float64) {
	DefaultMetrics.HTTPRequestDuration.WithLabelValues(route, method, status).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(store, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(store, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(store, operation).Inc()
	}
}
