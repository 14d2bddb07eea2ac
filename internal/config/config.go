package config

import (
	"os"
	"strings"
	"time"

	"github.com/soillink/soillink/internal/utils"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	// Admin API token for gating admin endpoints (Bearer token)
	AdminAPIToken string
	// Accounts registered with these emails get the admin role
	AdminEmails []string

	// General cache region
	CacheDefaultTTL  time.Duration
	CacheCheckPeriod time.Duration
	CacheMaxKeys     int
	// Session cache region
	SessionCacheTTL         time.Duration
	SessionCacheCheckPeriod time.Duration
	SessionCacheMaxKeys     int
	// User cache region
	UserCacheTTL         time.Duration
	UserCacheCheckPeriod time.Duration
	UserCacheMaxKeys     int
	CacheStatsInterval   time.Duration
	RouteCacheTTL        time.Duration // read-through middleware TTL
	PageCacheMB          int64         // rendered page cache budget
	PageCacheEntries     int64

	// Session lifecycle
	SessionCookieName      string
	SessionTTL             time.Duration
	SessionRegenerateEvery time.Duration
	SessionIdleTimeout     time.Duration
	SessionMaxConcurrent   int
	SessionTrackerCapacity int
	SessionRevokeEvicted   bool

	// Security settings
	RateLimitGlobal      float64 // requests per second globally
	RateLimitGlobalBurst int     // burst size for global rate limit
	RateLimitPerIP       float64 // requests per second per IP
	RateLimitPerIPBurst  int     // burst size for per-IP rate limit
	AuthRateLimitPerIP   float64 // auth endpoints, per IP
	AuthRateLimitBurst   int
	APIRateLimitPerIP    float64 // JSON API, per IP
	APIRateLimitBurst    int
	EnableRateLimit      bool

	// Performance monitor
	PerfSummaryInterval time.Duration
	PerfHistorySize     int
	SlowRequest         time.Duration
	SlowQuery           time.Duration

	// Observability settings
	LogLevel          string  // log level: debug, info, warn, error
	OTELEnabled       bool    // enable OpenTelemetry tracing
	OTELEndpoint      string  // OpenTelemetry collector endpoint
	OTELSampleRate    float64 // trace sampling rate (0.0 to 1.0)
	SentryDSN         string  // Sentry DSN for error reporting
	SentryEnvironment string  // Sentry environment (dev, staging, production)
	SentryRelease     string  // Sentry release version
	SentrySampleRate  float64 // Sentry error sampling rate (0.0 to 1.0)
}

var cached *Config

// Load reads env vars once and caches them.
func Load() *Config {
	if cached != nil {
		return cached
	}
	cached = &Config{
		Port:          utils.GetEnvAsString("PORT", "3000"),
		Env:           strings.ToLower(utils.GetEnvAsString("ENV", "development")),
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		AdminAPIToken: strings.TrimSpace(os.Getenv("ADMIN_API_TOKEN")),
		AdminEmails:   utils.GetEnvAsSlice("ADMIN_EMAILS", nil, ","),
		// Cache regions: general 1h, session 30m, user 2h
		CacheDefaultTTL:         utils.GetEnvAsDuration("CACHE_DEFAULT_TTL_S", time.Second, time.Hour),
		CacheCheckPeriod:        utils.GetEnvAsDuration("CACHE_CHECK_PERIOD_S", time.Second, 10*time.Minute),
		CacheMaxKeys:            utils.GetEnvAsInt("CACHE_MAX_KEYS", 1000),
		SessionCacheTTL:         utils.GetEnvAsDuration("SESSION_CACHE_TTL_S", time.Second, 30*time.Minute),
		SessionCacheCheckPeriod: utils.GetEnvAsDuration("SESSION_CACHE_CHECK_PERIOD_S", time.Second, 5*time.Minute),
		SessionCacheMaxKeys:     utils.GetEnvAsInt("SESSION_CACHE_MAX_KEYS", 5000),
		UserCacheTTL:            utils.GetEnvAsDuration("USER_CACHE_TTL_S", time.Second, 2*time.Hour),
		UserCacheCheckPeriod:    utils.GetEnvAsDuration("USER_CACHE_CHECK_PERIOD_S", time.Second, 10*time.Minute),
		UserCacheMaxKeys:        utils.GetEnvAsInt("USER_CACHE_MAX_KEYS", 10000),
		CacheStatsInterval:      utils.GetEnvAsDuration("CACHE_STATS_INTERVAL", time.Second, 5*time.Minute),
		RouteCacheTTL:           utils.GetEnvAsDuration("ROUTE_CACHE_TTL_S", time.Second, 10*time.Minute),
		PageCacheMB:             int64(utils.GetEnvAsInt("PAGE_CACHE_MB", 8)),
		PageCacheEntries:        int64(utils.GetEnvAsInt("PAGE_CACHE_ENTRIES", 256)),
		// Session lifecycle
		SessionCookieName:      utils.GetEnvAsString("SESSION_COOKIE_NAME", "soillink.sid"),
		SessionTTL:             utils.GetEnvAsDuration("SESSION_TTL_MIN", time.Minute, 24*time.Hour),
		SessionRegenerateEvery: utils.GetEnvAsDuration("SESSION_REGENERATE_MIN", time.Minute, 30*time.Minute),
		SessionIdleTimeout:     utils.GetEnvAsDuration("SESSION_IDLE_TIMEOUT_MIN", time.Minute, 30*time.Minute),
		SessionMaxConcurrent:   utils.GetEnvAsInt("SESSION_MAX_CONCURRENT", 3),
		SessionTrackerCapacity: utils.GetEnvAsInt("SESSION_TRACKER_CAPACITY", 10000),
		SessionRevokeEvicted:   utils.GetEnvAsBool("SESSION_REVOKE_EVICTED", false),
		// Security settings with sensible defaults
		RateLimitGlobal:      utils.GetEnvAsFloat("RATE_LIMIT_GLOBAL", 100.0),
		RateLimitGlobalBurst: utils.GetEnvAsInt("RATE_LIMIT_GLOBAL_BURST", 200),
		RateLimitPerIP:       utils.GetEnvAsFloat("RATE_LIMIT_PER_IP", 10.0),
		RateLimitPerIPBurst:  utils.GetEnvAsInt("RATE_LIMIT_PER_IP_BURST", 20),
		// 500 per 15 minutes for auth, 50 per 15 minutes for the API
		AuthRateLimitPerIP: utils.GetEnvAsFloat("AUTH_RATE_LIMIT_PER_IP", 500.0/900.0),
		AuthRateLimitBurst: utils.GetEnvAsInt("AUTH_RATE_LIMIT_BURST", 50),
		APIRateLimitPerIP:  utils.GetEnvAsFloat("API_RATE_LIMIT_PER_IP", 50.0/900.0),
		APIRateLimitBurst:  utils.GetEnvAsInt("API_RATE_LIMIT_BURST", 50),
		EnableRateLimit:    utils.GetEnvAsBool("ENABLE_RATE_LIMIT", true),
		// Performance monitor
		PerfSummaryInterval: utils.GetEnvAsDuration("PERF_SUMMARY_INTERVAL", time.Second, 5*time.Minute),
		PerfHistorySize:     utils.GetEnvAsInt("PERF_HISTORY_SIZE", 1000),
		SlowRequest:         utils.GetEnvAsDuration("SLOW_REQUEST_MS", time.Millisecond, time.Second),
		SlowQuery:           utils.GetEnvAsDuration("SLOW_QUERY_MS", time.Millisecond, 500*time.Millisecond),
		// Observability settings
		LogLevel:          strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))),
		OTELEnabled:       utils.GetEnvAsBool("OTEL_ENABLED", false),
		OTELEndpoint:      strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTELSampleRate:    utils.GetEnvAsFloat("OTEL_TRACE_SAMPLE_RATE", 0.1),
		SentryDSN:         strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		SentryEnvironment: strings.TrimSpace(os.Getenv("SENTRY_ENVIRONMENT")),
		SentryRelease:     strings.TrimSpace(os.Getenv("SENTRY_RELEASE")),
		SentrySampleRate:  utils.GetEnvAsFloat("SENTRY_SAMPLE_RATE", 1.0),
	}
	if cached.LogLevel == "" {
		cached.LogLevel = "info"
	}
	if cached.SentryEnvironment == "" {
		cached.SentryEnvironment = cached.Env
	}
	if cached.SessionMaxConcurrent < 1 {
		cached.SessionMaxConcurrent = 1
	}

	return cached
}

// ResetForTest clears cached config; for use in tests only.
func ResetForTest() { cached = nil }

// IsProduction reports whether ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
