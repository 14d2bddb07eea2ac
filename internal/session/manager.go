package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/soillink/soillink/internal/logger"
	"github.com/soillink/soillink/internal/middleware"
	"github.com/soillink/soillink/internal/secrets"
)

const (
	DefaultCookieName = "soillink.sid"
	DefaultTTL        = 24 * time.Hour
	flashCookieName   = "soillink.flash"
	flashMaxAge       = 60
)

type contextKey struct{}

// CookieConfig describes the session cookie.
type CookieConfig struct {
	Name     string
	MaxAge   time.Duration
	Secure   bool
	SameSite http.SameSite
}

// CookieConfigFor returns the cookie used in the given environment:
// Secure and SameSite=Strict in production, SameSite=Lax elsewhere.
func CookieConfigFor(name string, maxAge time.Duration, production bool) CookieConfig {
	c := CookieConfig{Name: name, MaxAge: maxAge, Secure: production, SameSite: http.SameSiteLaxMode}
	if production {
		c.SameSite = http.SameSiteStrictMode
	}
	if c.Name == "" {
		c.Name = DefaultCookieName
	}
	if c.MaxAge <= 0 {
		c.MaxAge = DefaultTTL
	}
	return c
}

// UserInfo is what Start records about the user logging in.
type UserInfo struct {
	ID    string
	Role  string
	Name  string
	Email string
}

// Options configures a Manager.
type Options struct {
	Store   Store
	Tracker *Tracker
	Cookie  CookieConfig
	Now     func() time.Time
}

// Manager binds session records to requests through a cookie.
type Manager struct {
	store   Store
	tracker *Tracker
	cookie  CookieConfig
	now     func() time.Time
	log     *slog.Logger
}

func NewManager(opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Cookie.Name == "" {
		opts.Cookie = CookieConfigFor("", 0, false)
	}
	return &Manager{
		store:   opts.Store,
		tracker: opts.Tracker,
		cookie:  opts.Cookie,
		now:     opts.Now,
		log:     logger.WithComponent("session"),
	}
}

// Store returns the backing store.
func (m *Manager) Store() Store { return m.store }

// FromContext returns the session loaded for the request, or nil.
func FromContext(ctx context.Context) *Record {
	rec, _ := ctx.Value(contextKey{}).(*Record)
	return rec
}

// WithRecord returns a context carrying rec.
func WithRecord(ctx context.Context, rec *Record) context.Context {
	ctx = context.WithValue(ctx, contextKey{}, rec)
	if rec.Authenticated() {
		ctx = context.WithValue(ctx, logger.UserIDKey, rec.UserID)
	}
	return ctx
}

// Load resolves the session cookie and places the record into the request
// context. Requests whose cookie names an unknown session continue
// anonymously and get the cookie cleared.
func (m *Manager) Load(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(m.cookie.Name)
		if err != nil || c.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		rec, err := m.store.Get(r.Context(), c.Value)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				logger.ErrorContext(r.Context(), "session load failed",
					"session", secrets.MaskSessionID(c.Value), "error", err)
			}
			m.ClearCookie(w)
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithRecord(r.Context(), rec)))
	})
}

// Start opens a fresh session for user, replacing any session the request
// arrived with.
func (m *Manager) Start(w http.ResponseWriter, r *http.Request, user UserInfo) (*Record, error) {
	ctx := r.Context()
	if prev := FromContext(ctx); prev != nil {
		m.discard(ctx, prev)
	}

	id, err := NewID()
	if err != nil {
		return nil, err
	}
	now := m.now()
	rec := &Record{
		ID:               id,
		UserID:           user.ID,
		Role:             user.Role,
		CreatedAt:        now,
		LastActivity:     now,
		LastRegeneration: now,
		UserAgent:        r.UserAgent(),
		IPAddress:        middleware.ClientIP(r),
	}
	if user.Name != "" {
		rec.SetValue("name", user.Name)
	}
	if user.Email != "" {
		rec.SetValue("email", user.Email)
	}
	if err := m.store.Save(ctx, rec); err != nil {
		return nil, err
	}
	m.SetCookie(w, rec.ID)
	m.log.Info("session started", "user_id", rec.UserID, "session", secrets.MaskSessionID(rec.ID))
	return rec, nil
}

// End destroys the request's session and clears the cookie.
func (m *Manager) End(w http.ResponseWriter, r *http.Request) error {
	m.ClearCookie(w)
	rec := FromContext(r.Context())
	if rec == nil {
		return nil
	}
	if m.tracker != nil && rec.UserID != "" {
		m.tracker.Remove(rec.UserID, rec.ID)
	}
	if err := m.store.Destroy(r.Context(), rec.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	m.log.Info("session ended", "user_id", rec.UserID, "session", secrets.MaskSessionID(rec.ID))
	return nil
}

func (m *Manager) discard(ctx context.Context, rec *Record) {
	if m.tracker != nil && rec.UserID != "" {
		m.tracker.Remove(rec.UserID, rec.ID)
	}
	if err := m.store.Destroy(ctx, rec.ID); err != nil && !errors.Is(err, ErrNotFound) {
		logger.WarnContext(ctx, "failed to destroy previous session", "error", err)
	}
}

// SetCookie issues the session cookie for id.
func (m *Manager) SetCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookie.Name,
		Value:    id,
		Path:     "/",
		MaxAge:   int(m.cookie.MaxAge / time.Second),
		Expires:  m.now().Add(m.cookie.MaxAge),
		HttpOnly: true,
		Secure:   m.cookie.Secure,
		SameSite: m.cookie.SameSite,
	})
}

// ClearCookie expires the session cookie.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   m.cookie.Secure,
		SameSite: m.cookie.SameSite,
	})
}

// SetFlash stores a one-shot message shown by the next page render.
func (m *Manager) SetFlash(w http.ResponseWriter, msg string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    url.QueryEscape(msg),
		Path:     "/",
		MaxAge:   flashMaxAge,
		HttpOnly: true,
		Secure:   m.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// PopFlash returns the pending flash message and clears it.
func (m *Manager) PopFlash(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(flashCookieName)
	if err != nil || c.Value == "" {
		return ""
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookieName, Path: "/", MaxAge: -1})
	msg, err := url.QueryUnescape(c.Value)
	if err != nil {
		return ""
	}
	return msg
}
