package handlers

import (
	"errors"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/soillink/soillink/internal/apierr"
	"github.com/soillink/soillink/internal/cache"
	"github.com/soillink/soillink/internal/logger"
	"github.com/soillink/soillink/internal/metrics"
	"github.com/soillink/soillink/internal/middleware"
	"github.com/soillink/soillink/internal/session"
	"github.com/soillink/soillink/internal/soil"
	"github.com/soillink/soillink/internal/store"
	"github.com/soillink/soillink/internal/validation"
)

const maxListLimit = 100

// EventSampleCreated is pushed to the owner's dashboards after a new sample.
const EventSampleCreated = "sample.created"

type sampleRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Location string `json:"location" validate:"max=100"`
	Notes    string `json:"notes" validate:"max=500"`
}

type sampleList struct {
	Samples []soil.Sample `json:"samples"`
	Count   int           `json:"count"`
}

// Broadcaster delivers events to a user's live dashboards.
type Broadcaster interface {
	Broadcast(userID string, ev Event)
}

// DashboardHandler serves the per-user dashboard API.
type DashboardHandler struct {
	store store.Store
	cache *cache.Manager
	live  Broadcaster
	rand  *Rand
	now   func() time.Time
}

func NewDashboardHandler(st store.Store, c *cache.Manager, live Broadcaster, rnd *Rand) *DashboardHandler {
	return &DashboardHandler{store: st, cache: c, live: live, rand: rnd, now: time.Now}
}

// RequireOwner lets a request through only when the session belongs to the
// {uid} user or to an admin.
func RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := session.FromContext(r.Context())
		if !rec.Authenticated() {
			apierr.WriteErrorWithContext(w, r, apierr.AuthMissing("Please log in to access this resource"))
			return
		}
		uid := mux.Vars(r)["uid"]
		if rec.UserID != uid && !rec.IsAdmin() {
			logger.WarnContext(r.Context(), "dashboard access denied", "user_id", rec.UserID, "target", uid)
			apierr.WriteErrorWithContext(w, r, apierr.AuthForbidden("You can only access your own dashboard"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Summary returns latest metrics, recent samples and tips.
// GET /api/dashboard/{uid}
func (h *DashboardHandler) Summary(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]
	noStore(w)
	if cached, ok := h.cache.GetDashboardData(uid); ok {
		w.Header().Set("X-Cache", "HIT")
		writeJSON(w, http.StatusOK, cached)
		return
	}

	ctx := r.Context()
	if _, err := h.store.UserByID(ctx, uid); err != nil {
		h.storeError(w, r, err, "User")
		return
	}
	recent, err := h.store.ListSamples(ctx, uid, soil.RecentSampleCount)
	if err != nil {
		h.storeError(w, r, err, "Samples")
		return
	}
	total, err := h.store.CountSamples(ctx, uid)
	if err != nil {
		h.storeError(w, r, err, "Samples")
		return
	}
	var tips []string
	h.rand.With(func(rng *rand.Rand) { tips = soil.RandomTips(rng, soil.DefaultTipCount) })

	summary := soil.Summarize(uid, recent, total, tips)
	h.cache.SetDashboardData(uid, summary, 0)
	w.Header().Set("X-Cache", "MISS")
	writeJSON(w, http.StatusOK, summary)
}

// Profile returns the user's account details.
// GET /api/dashboard/{uid}/profile
func (h *DashboardHandler) Profile(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]
	noStore(w)
	if cached, ok := h.cache.GetUserData(uid); ok {
		w.Header().Set("X-Cache", "HIT")
		writeJSON(w, http.StatusOK, cached)
		return
	}
	u, err := h.store.UserByID(r.Context(), uid)
	if err != nil {
		h.storeError(w, r, err, "User")
		return
	}
	h.cache.SetUserData(uid, u, 0)
	w.Header().Set("X-Cache", "MISS")
	writeJSON(w, http.StatusOK, u)
}

// ListSamples returns the user's samples, newest first. ?limit=n caps the
// list at n (at most 100); 0 or absent returns all.
// GET /api/dashboard/{uid}/samples
func (h *DashboardHandler) ListSamples(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue("limit", "limit must be a non-negative integer"))
			return
		}
		limit = min(n, maxListLimit)
	}
	samples, err := h.store.ListSamples(r.Context(), uid, limit)
	if err != nil {
		h.storeError(w, r, err, "Samples")
		return
	}
	if samples == nil {
		samples = []soil.Sample{}
	}
	writeJSON(w, http.StatusOK, sampleList{Samples: samples, Count: len(samples)})
}

// GetSample returns one sample owned by the user.
// GET /api/dashboard/{uid}/samples/{id}
func (h *DashboardHandler) GetSample(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s, err := h.store.SampleByID(r.Context(), vars["uid"], vars["id"])
	if errors.Is(err, store.ErrNotFound) {
		apierr.WriteErrorWithContext(w, r, apierr.SampleNotFound())
		return
	}
	if err != nil {
		h.storeError(w, r, err, "Sample")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sample": s, "healthStatus": s.HealthStatus()})
}

// CreateSample records a new analysis with simulated readings, drops the
// user's cached dashboard data and notifies open dashboards.
// POST /api/dashboard/{uid}/samples
func (h *DashboardHandler) CreateSample(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]
	var req sampleRequest
	if apiErr := validation.Decode(r, &req); apiErr != nil {
		apierr.WriteErrorWithContext(w, r, apiErr)
		return
	}
	sub := soil.Submission{
		Name:     middleware.SanitizeString(req.Name, 100),
		Location: middleware.SanitizeString(req.Location, 100),
		Notes:    middleware.SanitizeString(req.Notes, 500),
	}

	var sample soil.Sample
	h.rand.With(func(rng *rand.Rand) { sample = soil.Generate(rng, uid, sub, h.now()) })

	created, err := h.store.CreateSample(r.Context(), sample)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to create soil sample", "user_id", uid, "error", err)
		apierr.WriteErrorWithContext(w, r, apierr.SampleCreateFailed("Could not save soil sample"))
		return
	}
	metrics.SoilSamplesCreated.Inc()

	h.cache.ClearDashboardData(uid)
	removed := h.cache.InvalidatePattern("/api/dashboard/" + uid + "/")
	logger.DebugContext(r.Context(), "dashboard cache invalidated", "user_id", uid, "routes", removed)

	if h.live != nil {
		h.live.Broadcast(uid, Event{Type: EventSampleCreated, Payload: created})
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "sample": created})
}

func (h *DashboardHandler) storeError(w http.ResponseWriter, r *http.Request, err error, resource string) {
	if errors.Is(err, store.ErrNotFound) {
		apierr.WriteErrorWithContext(w, r, apierr.ResourceNotFound(resource))
		return
	}
	logger.ErrorContext(r.Context(), "dashboard store call failed", "resource", resource, "error", err)
	apierr.WriteErrorWithContext(w, r, apierr.SystemDatabase("Failed to load "+resource))
}
