package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/soillink/soillink/internal/logger"
	"github.com/soillink/soillink/internal/metrics"
)

// Key prefixes chosen by the Manager accessors.
const (
	PrefixUser      = "user:"
	PrefixSession   = "session:"
	PrefixDashboard = "dashboard:"
	PrefixAPI       = "api:"
	PrefixRoute     = "route:"
)

const (
	DefaultDashboardTTL   = 30 * time.Minute
	DefaultAPIResponseTTL = 10 * time.Minute
	healthCheckTTL        = time.Second
)

// Region names as they appear in stats, logs and metrics.
const (
	RegionGeneral = "general"
	RegionSession = "session"
	RegionUser    = "user"
)

// Options configures the three regions of a Manager.
type Options struct {
	General StoreOptions
	Session StoreOptions
	User    StoreOptions
	// Clock, when set, overrides the clock of every region.
	Clock Clock
}

// DefaultOptions returns general 1h/10m/1000, session 30m/5m/5000 and
// user 2h/10m/10000 (TTL, sweep period, max keys).
func DefaultOptions() Options {
	return Options{
		General: StoreOptions{DefaultTTL: time.Hour, CheckPeriod: 10 * time.Minute, MaxKeys: 1000},
		Session: StoreOptions{DefaultTTL: 30 * time.Minute, CheckPeriod: 5 * time.Minute, MaxKeys: 5000},
		User:    StoreOptions{DefaultTTL: 2 * time.Hour, CheckPeriod: 10 * time.Minute, MaxKeys: 10000},
	}
}

// RegionStats is the per-region view returned by Manager.Stats.
type RegionStats struct {
	Keys        int     `json:"keys"`
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Sets        uint64  `json:"sets"`
	Deletes     uint64  `json:"deletes"`
	Expirations uint64  `json:"expirations"`
	Evictions   uint64  `json:"evictions"`
	HitRate     float64 `json:"hitRate"`
}

// ManagerStats groups the stats of all three regions.
type ManagerStats struct {
	Main    RegionStats `json:"main"`
	Session RegionStats `json:"session"`
	User    RegionStats `json:"user"`
}

// Health is the result of a cache round-trip check.
type Health struct {
	Healthy bool          `json:"healthy"`
	Error   string        `json:"error,omitempty"`
	Stats   *ManagerStats `json:"stats,omitempty"`
}

// Manager owns the general, session and user regions and exposes
// namespaced accessors over them. One Manager is built at startup and
// passed to everything that needs it.
type Manager struct {
	general *Store
	session *Store
	user    *Store
	now     Clock
	log     *slog.Logger
}

// NewManager builds the three regions.
func NewManager(opts Options) *Manager {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	region := func(o StoreOptions, name string) *Store {
		o.Name = name
		if opts.Clock != nil {
			o.Clock = opts.Clock
		}
		return NewStore(o)
	}
	return &Manager{
		general: region(opts.General, RegionGeneral),
		session: region(opts.Session, RegionSession),
		user:    region(opts.User, RegionUser),
		now:     now,
		log:     logger.WithComponent("cache"),
	}
}

// Get reads key from the general region.
func (m *Manager) Get(key string) (any, bool) { return m.general.Get(key) }

// Set writes key to the general region; ttl 0 selects the region default.
func (m *Manager) Set(key string, value any, ttl time.Duration) bool {
	return m.general.Set(key, value, ttl)
}

// Del removes key from the general region.
func (m *Manager) Del(key string) int { return m.general.Delete(key) }

// GetUserData reads a user's cached profile from the user region.
func (m *Manager) GetUserData(userID string) (any, bool) {
	return m.user.Get(PrefixUser + userID)
}

// SetUserData caches a user's profile; ttl 0 selects the region default.
func (m *Manager) SetUserData(userID string, data any, ttl time.Duration) bool {
	return m.user.Set(PrefixUser+userID, data, ttl)
}

// ClearUserData drops a user's cached profile.
func (m *Manager) ClearUserData(userID string) int {
	return m.user.Delete(PrefixUser + userID)
}

// GetSession reads session data from the session region.
func (m *Manager) GetSession(sessionID string) (any, bool) {
	return m.session.Get(PrefixSession + sessionID)
}

// SetSession stores session data; ttl 0 selects the region default.
func (m *Manager) SetSession(sessionID string, data any, ttl time.Duration) bool {
	return m.session.Set(PrefixSession+sessionID, data, ttl)
}

// ClearSession removes a session from the session region.
func (m *Manager) ClearSession(sessionID string) int {
	return m.session.Delete(PrefixSession + sessionID)
}

// GetDashboardData reads a user's cached dashboard summary.
func (m *Manager) GetDashboardData(userID string) (any, bool) {
	return m.general.Get(PrefixDashboard + userID)
}

// SetDashboardData caches a user's dashboard for ttl, 30 minutes when ttl is 0.
func (m *Manager) SetDashboardData(userID string, data any, ttl time.Duration) bool {
	if ttl == 0 {
		ttl = DefaultDashboardTTL
	}
	return m.general.Set(PrefixDashboard+userID, data, ttl)
}

// ClearDashboardData drops a user's cached dashboard summary.
func (m *Manager) ClearDashboardData(userID string) int {
	return m.general.Delete(PrefixDashboard + userID)
}

// GetAPIResponse looks up a cached response for endpoint and params.
func (m *Manager) GetAPIResponse(endpoint string, params any) (any, bool) {
	key, err := APIKey(endpoint, params)
	if err != nil {
		m.log.Warn("api cache key failed", "endpoint", endpoint, "error", err)
		return nil, false
	}
	return m.general.Get(key)
}

// SetAPIResponse caches data for endpoint and params; ttl 0 means 10 minutes.
func (m *Manager) SetAPIResponse(endpoint string, params any, data any, ttl time.Duration) bool {
	key, err := APIKey(endpoint, params)
	if err != nil {
		m.log.Warn("api cache key failed", "endpoint", endpoint, "error", err)
		return false
	}
	if ttl == 0 {
		ttl = DefaultAPIResponseTTL
	}
	return m.general.Set(key, data, ttl)
}

// APIKey builds "api:<endpoint>:<json(params)>". Map keys are emitted in
// sorted order so logically equal params give the same key; nil params
// serialize as {}.
func APIKey(endpoint string, params any) (string, error) {
	encoded, err := encodeParams(params)
	if err != nil {
		return "", err
	}
	return PrefixAPI + endpoint + ":" + encoded, nil
}

func encodeParams(params any) (string, error) {
	if params == nil {
		return "{}", nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encode cache params: %w", err)
	}
	if string(b) == "null" {
		return "{}", nil
	}
	return string(b), nil
}

// InvalidatePattern deletes every general-region key containing pattern and
// returns how many were removed. An empty pattern matches nothing.
func (m *Manager) InvalidatePattern(pattern string) int {
	if pattern == "" {
		return 0
	}
	removed := 0
	for _, k := range m.general.Keys() {
		if strings.Contains(k, pattern) {
			removed += m.general.Delete(k)
		}
	}
	if removed > 0 {
		m.log.Info("cache invalidated", "pattern", pattern, "removed", removed)
	}
	return removed
}

// Flush clears all three regions. Counters are kept.
func (m *Manager) Flush() bool {
	for _, s := range m.stores() {
		s.FlushAll()
	}
	m.log.Info("cache flushed")
	return true
}

// Stats returns per-region statistics.
func (m *Manager) Stats() ManagerStats {
	return ManagerStats{
		Main:    regionStats(m.general.Stats()),
		Session: regionStats(m.session.Stats()),
		User:    regionStats(m.user.Stats()),
	}
}

// ResetStats zeroes the counters of every region.
func (m *Manager) ResetStats() {
	for _, s := range m.stores() {
		s.ResetStats()
	}
}

func regionStats(s StoreStats) RegionStats {
	return RegionStats{
		Keys:        s.Keys,
		Hits:        s.Hits,
		Misses:      s.Misses,
		Sets:        s.Sets,
		Deletes:     s.Deletes,
		Expirations: s.Expirations,
		Evictions:   s.Evictions,
		HitRate:     s.HitRate(),
	}
}

// HealthCheck writes, reads back and deletes a check key in the general
// region. The check never evicts live entries: a full region reports
// unhealthy instead. It never panics; any failure is reported in the result.
func (m *Manager) HealthCheck() (h Health) {
	defer func() {
		if r := recover(); r != nil {
			h = Health{Healthy: false, Error: fmt.Sprintf("health check panic: %v", r)}
		}
	}()

	key := fmt.Sprintf("health_check_%d", m.now().UnixNano())
	if ok, full := m.general.setNoEvict(key, "ok", healthCheckTTL); !ok {
		if full {
			stats := m.Stats()
			return Health{Error: "store full", Stats: &stats}
		}
		return Health{Error: "set failed"}
	}
	v, ok := m.general.Get(key)
	if !ok {
		return Health{Error: "check key not readable"}
	}
	if s, _ := v.(string); s != "ok" {
		return Health{Error: fmt.Sprintf("unexpected check value %v", v)}
	}
	if m.general.Delete(key) != 1 {
		return Health{Error: "delete failed"}
	}
	stats := m.Stats()
	return Health{Healthy: true, Stats: &stats}
}

// LogStats writes one summary line for all regions.
func (m *Manager) LogStats() {
	st := m.Stats()
	m.log.Info("cache statistics",
		slog.Group(RegionGeneral, "keys", st.Main.Keys, "hits", st.Main.Hits, "misses", st.Main.Misses, "hit_rate", st.Main.HitRate),
		slog.Group(RegionSession, "keys", st.Session.Keys, "hits", st.Session.Hits, "misses", st.Session.Misses, "hit_rate", st.Session.HitRate),
		slog.Group(RegionUser, "keys", st.User.Keys, "hits", st.User.Hits, "misses", st.User.Misses, "hit_rate", st.User.HitRate),
	)
}

// MetricsName implements metrics.Source.
func (m *Manager) MetricsName() string { return "cache" }

// CollectMetrics publishes region counters as Prometheus gauges.
func (m *Manager) CollectMetrics(ctx context.Context) error {
	for _, s := range m.stores() {
		st := s.Stats()
		name := s.Name()
		metrics.CacheRegionKeys.WithLabelValues(name).Set(float64(st.Keys))
		metrics.CacheRegionHits.WithLabelValues(name).Set(float64(st.Hits))
		metrics.CacheRegionMisses.WithLabelValues(name).Set(float64(st.Misses))
		metrics.CacheRegionHitRatio.WithLabelValues(name).Set(st.HitRate())
		metrics.CacheRegionExpirations.WithLabelValues(name).Set(float64(st.Expirations))
		metrics.CacheRegionEvictions.WithLabelValues(name).Set(float64(st.Evictions))
	}
	return nil
}

// Close stops the sweep goroutines of all regions.
func (m *Manager) Close() {
	for _, s := range m.stores() {
		s.Close()
	}
}

func (m *Manager) stores() []*Store {
	return []*Store{m.general, m.session, m.user}
}
