package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/soillink/soillink/internal/cache"
	"github.com/soillink/soillink/internal/logger"
	"github.com/soillink/soillink/internal/metrics"
)

const pingTimeout = 2 * time.Second

// Pinger reports whether the database answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

type componentStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type healthResponse struct {
	Status      string                     `json:"status"`
	Timestamp   time.Time                  `json:"timestamp"`
	Components  map[string]componentStatus `json:"components"`
	Performance metrics.HealthReport       `json:"performance"`
	Cache       *cache.ManagerStats        `json:"cache,omitempty"`
}

// HealthHandler serves liveness, readiness and the performance snapshot.
type HealthHandler struct {
	db      Pinger
	cache   *cache.Manager
	monitor *metrics.Monitor
}

func NewHealthHandler(db Pinger, c *cache.Manager, m *metrics.Monitor) *HealthHandler {
	return &HealthHandler{db: db, cache: c, monitor: m}
}

func (h *HealthHandler) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return h.db.Ping(ctx)
}

// Health checks the database, the cache and the performance monitor.
// Any failing part turns the response into 503 "degraded".
// GET /api/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:     "healthy",
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]componentStatus, 2),
	}

	if err := h.ping(r.Context()); err != nil {
		logger.WarnContext(r.Context(), "health check: database unreachable", "error", err)
		resp.Components["database"] = componentStatus{Status: "down", Error: err.Error()}
		resp.Status = "degraded"
	} else {
		resp.Components["database"] = componentStatus{Status: "up"}
	}

	ch := h.cache.HealthCheck()
	if ch.Healthy {
		resp.Components["cache"] = componentStatus{Status: "up"}
	} else {
		resp.Components["cache"] = componentStatus{Status: "down", Error: ch.Error}
		resp.Status = "degraded"
	}
	resp.Cache = ch.Stats

	resp.Performance = h.monitor.Health()
	if !resp.Performance.Healthy {
		resp.Status = "degraded"
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	noStore(w)
	writeJSON(w, status, resp)
}

// Ready reports whether the service can take traffic.
// GET /api/ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Metrics returns the in-process performance snapshot.
// GET /api/metrics
func (h *HealthHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	noStore(w)
	writeJSON(w, http.StatusOK, map[string]any{
		"performance": h.monitor.Snapshot(),
		"topRoutes":   h.monitor.TopRoutes(10),
		"cache":       h.cache.Stats(),
	})
}
