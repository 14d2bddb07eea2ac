package handlers

import (
	"errors"
	"net/http"

	"github.com/soillink/soillink/internal/apierr"
	"github.com/soillink/soillink/internal/cache"
	"github.com/soillink/soillink/internal/logger"
	"github.com/soillink/soillink/internal/metrics"
	"github.com/soillink/soillink/internal/middleware"
	"github.com/soillink/soillink/internal/session"
	"github.com/soillink/soillink/internal/store"
	"github.com/soillink/soillink/internal/validation"
)

const (
	msgEmailTaken         = "Email is already registered"
	msgRegistered         = "You are now registered and can log in"
	msgLoginSuccessful    = "Login successful"
	msgLoggedOut          = "Logged out successfully"
	registerRedirect      = "/auth/login"
	logoutRedirect        = "/"
	dashboardRedirectBase = "/dashboard/"
)

type registerRequest struct {
	Name            string `json:"name" validate:"required,min=2,max=50,personname"`
	Email           string `json:"email" validate:"required,email,max=100"`
	Password        string `json:"password" validate:"required,min=8,max=128,letternumber"`
	ConfirmPassword string `json:"confirmPassword" validate:"eqfield=Password"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type authUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type authResponse struct {
	Success     bool      `json:"success"`
	Message     string    `json:"message"`
	User        *authUser `json:"user,omitempty"`
	RedirectURL string    `json:"redirectUrl"`
}

// AuthHandler serves registration, login and logout.
type AuthHandler struct {
	store       store.Store
	sessions    *session.Manager
	cache       *cache.Manager
	adminEmails map[string]bool
}

// NewAuthHandler returns the auth endpoints. Registrations using one of
// adminEmails are given the admin role.
func NewAuthHandler(st store.Store, sessions *session.Manager, c *cache.Manager, adminEmails []string) *AuthHandler {
	admins := make(map[string]bool, len(adminEmails))
	for _, e := range adminEmails {
		admins[store.NormalizeEmail(e)] = true
	}
	return &AuthHandler{store: st, sessions: sessions, cache: c, adminEmails: admins}
}

func (h *AuthHandler) roleFor(email string) string {
	if h.adminEmails[store.NormalizeEmail(email)] {
		return store.RoleAdmin
	}
	return store.RoleUser
}

// Register creates an account.
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if apiErr := validation.Decode(r, &req); apiErr != nil {
		metrics.AuthAttempts.WithLabelValues("register", "invalid").Inc()
		apierr.WriteErrorWithContext(w, r, apiErr)
		return
	}

	hash, err := store.HashPassword(req.Password)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("register", "error").Inc()
		logger.ErrorContext(r.Context(), "Failed to hash password", "error", err)
		apierr.WriteErrorWithContext(w, r, apierr.SystemInternal("An error occurred during registration"))
		return
	}

	u, err := h.store.CreateUser(r.Context(), store.User{
		Name:         middleware.SanitizeString(req.Name, 50),
		Email:        req.Email,
		PasswordHash: hash,
		Role:         h.roleFor(req.Email),
	})
	switch {
	case errors.Is(err, store.ErrDuplicateEmail):
		metrics.AuthAttempts.WithLabelValues("register", "duplicate").Inc()
		apierr.WriteErrorWithContext(w, r, apierr.ValidationFailed(map[string]string{"email": msgEmailTaken}))
		return
	case err != nil:
		metrics.AuthAttempts.WithLabelValues("register", "error").Inc()
		logger.ErrorContext(r.Context(), "Registration failed", "error", err)
		apierr.WriteErrorWithContext(w, r, apierr.SystemDatabase("An error occurred during registration"))
		return
	}

	metrics.AuthAttempts.WithLabelValues("register", "success").Inc()
	logger.InfoContext(r.Context(), "New user registered", "user_id", u.ID)
	writeJSON(w, http.StatusCreated, authResponse{Success: true, Message: msgRegistered, RedirectURL: registerRedirect})
}

// Login checks credentials and starts a session.
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if apiErr := validation.Decode(r, &req); apiErr != nil {
		metrics.AuthAttempts.WithLabelValues("login", "invalid").Inc()
		apierr.WriteErrorWithContext(w, r, apiErr)
		return
	}

	u, err := h.store.UserByEmail(r.Context(), req.Email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		metrics.AuthAttempts.WithLabelValues("login", "error").Inc()
		logger.ErrorContext(r.Context(), "Login lookup failed", "error", err)
		apierr.WriteErrorWithContext(w, r, apierr.SystemDatabase("An error occurred during login"))
		return
	}
	if err != nil || !store.CheckPassword(u.PasswordHash, req.Password) {
		metrics.AuthAttempts.WithLabelValues("login", "rejected").Inc()
		apierr.WriteErrorWithContext(w, r, apierr.AuthInvalidCredentials())
		return
	}

	if _, err := h.sessions.Start(w, r, session.UserInfo{ID: u.ID, Role: u.Role, Name: u.Name, Email: u.Email}); err != nil {
		metrics.AuthAttempts.WithLabelValues("login", "error").Inc()
		logger.ErrorContext(r.Context(), "Failed to start session", "user_id", u.ID, "error", err)
		apierr.WriteErrorWithContext(w, r, apierr.SessionStoreFailure("Could not start session"))
		return
	}
	h.cache.SetUserData(u.ID, u, 0)

	metrics.AuthAttempts.WithLabelValues("login", "success").Inc()
	logger.InfoContext(r.Context(), "Login successful", "user_id", u.ID)
	writeJSON(w, http.StatusOK, authResponse{
		Success:     true,
		Message:     msgLoginSuccessful,
		User:        &authUser{ID: u.ID, Name: u.Name, Role: u.Role},
		RedirectURL: dashboardRedirectBase + u.ID,
	})
}

// Logout ends the session. Browsers are redirected home.
// GET|POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.End(w, r); err != nil {
		logger.ErrorContext(r.Context(), "Failed to destroy session", "error", err)
	}
	if !session.WantsJSON(r) {
		http.Redirect(w, r, logoutRedirect, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Success: true, Message: msgLoggedOut, RedirectURL: logoutRedirect})
}
