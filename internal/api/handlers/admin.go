package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/soillink/soillink/internal/apierr"
	"github.com/soillink/soillink/internal/cache"
	"github.com/soillink/soillink/internal/logger"
	"github.com/soillink/soillink/internal/metrics"
)

// AdminOnly requires "Authorization: Bearer <token>". With no token
// configured the admin API is unavailable.
func AdminOnly(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				apierr.WriteErrorWithContext(w, r, apierr.SystemUnavailable("Admin API token not configured"))
				return
			}
			auth := r.Header.Get("Authorization")
			got, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				apierr.WriteErrorWithContext(w, r, apierr.AuthInvalid("Invalid admin token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AdminHandler exposes cache and performance administration.
type AdminHandler struct {
	cache   *cache.Manager
	pages   cache.PageCache
	monitor *metrics.Monitor
}

func NewAdminHandler(c *cache.Manager, pages cache.PageCache, m *metrics.Monitor) *AdminHandler {
	return &AdminHandler{cache: c, pages: pages, monitor: m}
}

// CacheStats returns per-region and page cache statistics.
// GET /api/admin/cache/stats
func (h *AdminHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"regions": h.cache.Stats(),
		"pages":   h.pages.Stats(),
	})
}

// FlushCache empties every region and the page cache.
// POST /api/admin/cache/flush
func (h *AdminHandler) FlushCache(w http.ResponseWriter, r *http.Request) {
	h.cache.Flush()
	h.pages.Clear()
	logger.InfoContext(r.Context(), "caches flushed by admin")
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Cache flushed successfully",
	})
}

// InvalidateCache removes general-region keys containing ?pattern=.
// POST /api/admin/cache/invalidate
func (h *AdminHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		apierr.WriteErrorWithContext(w, r, apierr.CacheInvalidPattern())
		return
	}
	removed := h.cache.InvalidatePattern(pattern)
	logger.InfoContext(r.Context(), "cache invalidated by admin", "pattern", pattern, "removed", removed)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"pattern": pattern,
		"removed": removed,
	})
}

// Performance returns the monitor snapshot with its health verdict.
// GET /api/admin/performance
func (h *AdminHandler) Performance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"snapshot":  h.monitor.Snapshot(),
		"health":    h.monitor.Health(),
		"topRoutes": h.monitor.TopRoutes(10),
	})
}

// ResetPerformance clears the monitor's counters.
// POST /api/admin/performance/reset
func (h *AdminHandler) ResetPerformance(w http.ResponseWriter, r *http.Request) {
	h.monitor.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Performance metrics reset"})
}
