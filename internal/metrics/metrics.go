package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache region metrics, refreshed by the collector from store counters
	CacheRegionKeys = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_region_keys",
			Help: "Number of live keys per cache region",
		},
		[]string{"region"}, // region: general, session, user
	)

	CacheRegionHits = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_region_hits",
			Help: "Running total of cache hits per region",
		},
		[]string{"region"},
	)

	CacheRegionMisses = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_region_misses",
			Help: "Running total of cache misses per region",
		},
		[]string{"region"},
	)

	CacheRegionHitRatio = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_region_hit_ratio",
			Help: "Hits divided by lookups per region (0 before any lookup)",
		},
		[]string{"region"},
	)

	CacheRegionExpirations = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_region_expirations",
			Help: "Running total of expired entries purged per region",
		},
		[]string{"region"},
	)

	CacheRegionEvictions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_region_evictions",
			Help: "Running total of capacity evictions per region",
		},
		[]string{"region"},
	)

	// API cache metrics
	APICacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_cache_hits_total",
			Help: "Total number of API cache hits",
		},
		[]string{"endpoint"},
	)

	APICacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_cache_misses_total",
			Help: "Total number of API cache misses",
		},
		[]string{"endpoint"},
	)

	APICacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "api_cache_size_bytes",
			Help: "Current size of API cache in bytes",
		},
		[]string{"endpoint"},
	)

	APICacheItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "api_cache_items",
			Help: "Current number of items in API cache",
		},
		[]string{"endpoint"},
	)

	// Session lifecycle metrics
	SessionRegenerations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_regenerations_total",
			Help: "Total number of session id regenerations",
		},
	)

	SessionTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_idle_timeouts_total",
			Help: "Total number of sessions destroyed by the idle timeout",
		},
	)

	SessionAnomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_anomalies_total",
			Help: "Total number of session fingerprint changes",
		},
		[]string{"kind"}, // kind: user_agent, ip
	)

	SessionConcurrentEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_concurrent_evictions_total",
			Help: "Sessions dropped from the per-user tracker",
		},
		[]string{"action"}, // action: tracked, revoked
	)

	SessionTrackedUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "session_tracked_users",
			Help: "Number of users in the concurrent-session tracker",
		},
	)

	SessionStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_store_errors_total",
			Help: "Total number of session store failures",
		},
		[]string{"operation"},
	)

	// Auth metrics
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Registration and login attempts",
		},
		[]string{"action", "result"},
	)

	// Domain metrics
	SoilSamplesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "soil_samples_created_total",
			Help: "Total number of soil samples created",
		},
	)

	SoilSamplesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "soil_samples_stored",
			Help: "Number of soil samples in the store",
		},
	)

	UsersTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "users_stored",
			Help: "Number of registered users",
		},
	)

	// Database operation metrics
	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Duration of database operations",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"operation"},
	)

	DBOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_operation_errors_total",
			Help: "Total number of database operation errors",
		},
		[]string{"operation"},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"component"},
	)

	CircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_trips_total",
			Help: "Total number of circuit breaker trips",
		},
		[]string{"component"},
	)

	// API request metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"endpoint", "method", "status"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"endpoint", "method", "status"},
	)

	APIRequestsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_requests_active",
			Help: "Number of requests currently being served",
		},
	)

	APISlowRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_slow_requests_total",
			Help: "Requests slower than the configured threshold",
		},
		[]string{"endpoint"},
	)

	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Requests rejected by a rate limiter",
		},
		[]string{"limiter", "scope"}, // scope: global, ip
	)

	// Scheduler metrics
	SchedulerJobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_runs_total",
			Help: "Background job executions",
		},
		[]string{"job", "status"}, // status: success, panic
	)

	SchedulerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_job_duration_seconds",
			Help:    "Duration of background jobs",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5},
		},
		[]string{"job"},
	)

	// Metrics collection error tracking
	MetricsCollectionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrics_collection_errors_total",
			Help: "Total number of errors during metrics collection",
		},
		[]string{"collector"},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	WebSocketMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent to clients",
		},
	)
)
