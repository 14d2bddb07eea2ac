package session

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/soillink/soillink/internal/apierr"
	"github.com/soillink/soillink/internal/errorreporting"
	"github.com/soillink/soillink/internal/logger"
	"github.com/soillink/soillink/internal/metrics"
	"github.com/soillink/soillink/internal/middleware"
	"github.com/soillink/soillink/internal/secrets"
)

const (
	DefaultIdleTimeout          = 30 * time.Minute
	DefaultRegenerationInterval = 30 * time.Minute
	DefaultLoginPath            = "/auth/login"

	ExpiredMessage = "Your session has expired. Please log in again."
)

// GuardConfig tunes the lifecycle stages.
type GuardConfig struct {
	IdleTimeout          time.Duration
	RegenerationInterval time.Duration
	// RevokeEvicted destroys sessions pushed out by the concurrency bound
	// instead of only forgetting them.
	RevokeEvicted bool
	LoginPath     string
}

// Guard applies the session lifecycle policy to every request that carries
// a session: idle timeout, periodic id regeneration, anomaly detection,
// activity tracking and the per-user concurrency bound.
type Guard struct {
	sessions *Manager
	tracker  *Tracker
	cfg      GuardConfig
	now      func() time.Time
}

// NewGuard builds a guard on top of m. tracker may be nil, which disables
// the concurrency stage.
func NewGuard(m *Manager, tracker *Tracker, cfg GuardConfig) *Guard {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.RegenerationInterval <= 0 {
		cfg.RegenerationInterval = DefaultRegenerationInterval
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = DefaultLoginPath
	}
	return &Guard{
		sessions: m,
		tracker:  tracker,
		cfg:      cfg,
		now:      m.now,
	}
}

// Middleware chains all stages in order. It expects Manager.Load to have
// run first.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return g.Timeout(g.Regenerate(g.DetectAnomalies(g.TrackActivity(g.LimitConcurrent(next)))))
}

// Timeout ends sessions idle for longer than IdleTimeout. The wrapped
// handler does not run for such requests.
func (g *Guard) Timeout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := FromContext(r.Context())
		if rec == nil || rec.LastActivity.IsZero() {
			next.ServeHTTP(w, r)
			return
		}
		idle := g.now().Sub(rec.LastActivity)
		if idle <= g.cfg.IdleTimeout {
			next.ServeHTTP(w, r)
			return
		}

		if g.tracker != nil && rec.UserID != "" {
			g.tracker.Remove(rec.UserID, rec.ID)
		}
		if err := g.sessions.store.Destroy(r.Context(), rec.ID); err != nil && !errors.Is(err, ErrNotFound) {
			logger.ErrorContext(r.Context(), "failed to destroy expired session", "error", err)
		}
		metrics.SessionTimeouts.Inc()
		logger.InfoContext(r.Context(), "session timed out",
			"session", secrets.MaskSessionID(rec.ID), "idle", idle.Round(time.Second))

		g.sessions.ClearCookie(w)
		g.sessions.SetFlash(w, ExpiredMessage)
		if WantsJSON(r) {
			apierr.WriteErrorWithContext(w, r, apierr.SessionExpired())
			return
		}
		http.Redirect(w, r, g.cfg.LoginPath, http.StatusSeeOther)
	})
}

// Regenerate issues a new session id once per RegenerationInterval,
// keeping the session contents.
func (g *Guard) Regenerate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := FromContext(r.Context())
		if rec == nil || !g.regenerationDue(rec) {
			next.ServeHTTP(w, r)
			return
		}

		oldID := rec.ID
		rec.LastRegeneration = g.now()
		rec.Regenerated = true
		newID, err := g.sessions.store.Regenerate(r.Context(), rec)
		if err != nil {
			logger.ErrorContext(r.Context(), "session regeneration failed",
				"session", secrets.MaskSessionID(oldID), "error", err)
			errorreporting.CaptureErrorWithContext(err,
				map[string]string{"component": "session", "operation": "regenerate"}, nil)
			apierr.WriteErrorWithContext(w, r, apierr.SessionStoreFailure("Failed to refresh session"))
			return
		}
		if g.tracker != nil && rec.UserID != "" {
			g.tracker.Replace(rec.UserID, oldID, newID)
		}
		g.sessions.SetCookie(w, newID)
		metrics.SessionRegenerations.Inc()
		logger.DebugContext(r.Context(), "session regenerated",
			"old", secrets.MaskSessionID(oldID), "new", secrets.MaskSessionID(newID))

		next.ServeHTTP(w, r)
	})
}

func (g *Guard) regenerationDue(rec *Record) bool {
	if rec.LastRegeneration.IsZero() {
		return true
	}
	return g.now().Sub(rec.LastRegeneration) >= g.cfg.RegenerationInterval
}

// DetectAnomalies warns when the user agent or client IP of a session
// changes between requests. Requests are never blocked.
func (g *Guard) DetectAnomalies(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := FromContext(r.Context())
		if rec.Authenticated() {
			ua := r.UserAgent()
			if rec.UserAgent != "" && rec.UserAgent != ua {
				g.anomaly(r, rec, "user_agent", rec.UserAgent, ua)
			}
			ip := middleware.ClientIP(r)
			if rec.IPAddress != "" && rec.IPAddress != ip {
				g.anomaly(r, rec, "ip", rec.IPAddress, ip)
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Guard) anomaly(r *http.Request, rec *Record, kind, was, now string) {
	metrics.SessionAnomalies.WithLabelValues(kind).Inc()
	logger.WarnContext(r.Context(), "session anomaly detected",
		"kind", kind,
		"user_id", rec.UserID,
		"session", secrets.MaskSessionID(rec.ID),
		"previous", was,
		"current", now,
	)
	errorreporting.AddBreadcrumb("session", kind+" changed during session", sentry.LevelWarning)
}

// TrackActivity stamps authenticated sessions with the request time and
// the client's user agent and IP, then saves them. Save failures are
// logged and the request proceeds.
func (g *Guard) TrackActivity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := FromContext(r.Context())
		if rec.Authenticated() {
			if now := g.now(); now.After(rec.LastActivity) {
				rec.LastActivity = now
			}
			rec.UserAgent = r.UserAgent()
			rec.IPAddress = middleware.ClientIP(r)
			if err := g.sessions.store.Save(r.Context(), rec); err != nil {
				logger.ErrorContext(r.Context(), "failed to save session activity", "error", err)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// LimitConcurrent keeps at most Tracker.MaxSessions sessions per user.
func (g *Guard) LimitConcurrent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := FromContext(r.Context())
		if g.tracker == nil || !rec.Authenticated() {
			next.ServeHTTP(w, r)
			return
		}
		for _, id := range g.tracker.Track(rec.UserID, rec.ID) {
			action := "untracked"
			if g.cfg.RevokeEvicted {
				action = "revoked"
				if err := g.sessions.store.Destroy(r.Context(), id); err != nil && !errors.Is(err, ErrNotFound) {
					logger.ErrorContext(r.Context(), "failed to revoke session", "error", err)
				}
			}
			metrics.SessionConcurrentEvictions.WithLabelValues(action).Inc()
			logger.InfoContext(r.Context(), "concurrent session limit reached",
				"user_id", rec.UserID,
				"dropped", secrets.MaskSessionID(id),
				"action", action,
				"max", g.tracker.MaxSessions(),
			)
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth lets only authenticated sessions through. Browsers are sent
// to the login page, API clients get 401.
func (g *Guard) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()).Authenticated() {
			next.ServeHTTP(w, r)
			return
		}
		if WantsJSON(r) {
			apierr.WriteErrorWithContext(w, r, apierr.AuthMissing("Please log in to access this resource"))
			return
		}
		http.Redirect(w, r, g.cfg.LoginPath, http.StatusSeeOther)
	})
}

// WantsJSON reports whether the client expects an API response rather
// than a page.
func WantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	if r.Header.Get("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}
