package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ResolveRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resolve_requests_total",
			Help: "Total number of resolve requests by final action and reason",
		},
		[]string{"action", "reason"},
	)

	ResolveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resolve_duration_seconds",
			Help:    "End-to-end resolve latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.5, 1, 2.5},
		},
		[]string{"action"},
	)

	ESQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "es_query_duration_seconds",
			Help:    "Elasticsearch query duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.15, 0.2, 0.5, 1},
		},
		[]string{"operation", "status"},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_cache_hits_total",
			Help: "Total number of Redis cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_cache_misses_total",
			Help: "Total number of Redis cache misses",
		},
	)

	CHWriteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ch_write_duration_seconds",
			Help:    "ClickHouse analytics write duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"table", "status"},
	)

	IndexingEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexing_events_total",
			Help: "Total number of entity change events processed",
		},
		[]string{"operation", "status"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	SlowResolveCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slow_resolve_total",
			Help: "Total number of slow resolve calls",
		},
		[]string{"severity", "action"},
	)

	RateLimitedRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Total number of requests rejected by the concurrency limiter",
		},
	)

	IndexingLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexing_lag_seconds",
			Help: "Age of the most recently consumed entity change event",
		},
	)

	EventLogWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_log_writes_total",
			Help: "Total number of search/click events appended to the log",
		},
		[]string{"kind", "status"},
	)
)
