package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Database metrics
var (
	// DBQueriesTotal tracks the total number of database queries
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvsite_db_queries_total",
			Help: "Total number of database queries executed",
		},
		[]string{"query", "status"},
	)

	// DBQueryDuration tracks the duration of database queries
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pvsite_db_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	DBRowsReturned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvsite_db_rows_returned_total",
			Help: "Rows returned by database queries",
		},
		[]string{"query"},
	)
)

// Access and cache metrics
var (
	AccessChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvsite_access_checks_total",
			Help: "Site access checks by result",
		},
		[]string{"mode", "result"},
	)

	SiteCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pvsite_site_cache_total",
			Help: "Site metadata cache lookups by result",
		},
		[]string{"result"},
	)

	AuditEventsConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pvsite_audit_events_consumed_total",
			Help: "Access-denied audit events read from Kafka",
		},
	)
)

// RecordDBQuery records a database query execution
func RecordDBQuery(query string, duration time.Duration, rows int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DBQueriesTotal.WithLabelValues(query, status).Inc()
	DBQueryDuration.WithLabelValues(query).Observe(duration.Seconds())
	if err == nil {
		DBRowsReturned.WithLabelValues(query).Add(float64(rows))
	}
}

// RecordAccessCheck records the outcome of an access check. mode is "single" or "multi".
func RecordAccessCheck(mode string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	AccessChecksTotal.WithLabelValues(mode, result).Inc()
}

// RecordSiteCache records a cache lookup; result is "hit", "miss" or "error".
func RecordSiteCache(result string, n int) {
	SiteCacheTotal.WithLabelValues(result).Add(float64(n))
}
