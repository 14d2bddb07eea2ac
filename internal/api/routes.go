package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soillink/soillink/internal/api/handlers"
	"github.com/soillink/soillink/internal/middleware"
	"github.com/soillink/soillink/internal/server"
)

// chain applies mws to h so that the first middleware is the outermost.
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// NewRouter builds the HTTP surface of the service around s.
func NewRouter(s *server.Server) (*mux.Router, error) {
	cfg := s.Config

	pages, err := handlers.NewPageHandler(s.Pages, s.Sessions, cfg.RouteCacheTTL)
	if err != nil {
		return nil, err
	}
	auth := handlers.NewAuthHandler(s.Store, s.Sessions, s.Cache, cfg.AdminEmails)
	dashboard := handlers.NewDashboardHandler(s.Store, s.Cache, s.Hub, s.Rand)
	tips := handlers.NewTipsHandler(s.Cache, s.Rand)
	health := handlers.NewHealthHandler(s.Store, s.Cache, s.Monitor)
	admin := handlers.NewAdminHandler(s.Cache, s.Pages, s.Monitor)

	noop := func(next http.Handler) http.Handler { return next }
	globalLimit, authLimit, apiLimit := noop, noop, noop
	if cfg.EnableRateLimit {
		globalLimit = s.Limiters.Global.Limit
		authLimit = s.Limiters.Auth.Limit
		apiLimit = s.Limiters.API.Limit
	}
	readThrough := s.Cache.Middleware(cfg.RouteCacheTTL)

	r := mux.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RecoverWithSentry,
		middleware.SecurityHeaders(cfg.IsProduction()),
		middleware.RequestLogger,
		s.Monitor.Middleware,
		globalLimit,
		middleware.Compress,
		middleware.LimitBody(middleware.MaxRequestBodySize),
		s.Sessions.Load,
		s.Guard.Middleware,
	)

	// Pages
	r.Handle("/", middleware.ETag(pages.Page("index"))).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/about", middleware.ETag(pages.Page("about"))).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/contact", middleware.ETag(pages.Page("contact"))).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/auth/login", middleware.ETag(pages.Page("login"))).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/auth/register", middleware.ETag(pages.Page("register"))).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/dashboard/{uid}", s.Guard.RequireAuth(http.HandlerFunc(pages.Dashboard))).Methods(http.MethodGet)

	// Auth
	r.Handle("/auth/register", authLimit(http.HandlerFunc(auth.Register))).Methods(http.MethodPost)
	r.Handle("/auth/login", authLimit(http.HandlerFunc(auth.Login))).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", auth.Logout).Methods(http.MethodGet, http.MethodPost)

	// Health and metrics
	r.HandleFunc("/api/health", health.Health).Methods(http.MethodGet)
	r.HandleFunc("/api/ready", health.Ready).Methods(http.MethodGet)
	r.HandleFunc("/api/metrics", health.Metrics).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.Handle("/api/tips", apiLimit(http.HandlerFunc(tips.Get))).Methods(http.MethodGet)

	// Dashboard API: owner or admin only
	owned := func(h http.HandlerFunc, extra ...func(http.Handler) http.Handler) http.Handler {
		return chain(h, append([]func(http.Handler) http.Handler{apiLimit, handlers.RequireOwner}, extra...)...)
	}
	r.Handle("/api/dashboard/{uid}", owned(dashboard.Summary)).Methods(http.MethodGet)
	r.Handle("/api/dashboard/{uid}/profile", owned(dashboard.Profile)).Methods(http.MethodGet)
	r.Handle("/api/dashboard/{uid}/samples", owned(dashboard.ListSamples, readThrough)).Methods(http.MethodGet)
	r.Handle("/api/dashboard/{uid}/samples", owned(dashboard.CreateSample)).Methods(http.MethodPost)
	r.Handle("/api/dashboard/{uid}/samples/{id}", owned(dashboard.GetSample, readThrough)).Methods(http.MethodGet)
	r.Handle("/api/dashboard/{uid}/ws", chain(http.HandlerFunc(s.Hub.ServeWS), handlers.RequireOwner)).Methods(http.MethodGet)

	// Admin
	ad := r.PathPrefix("/api/admin").Subrouter()
	ad.Use(handlers.AdminOnly(cfg.AdminAPIToken))
	ad.HandleFunc("/cache/stats", admin.CacheStats).Methods(http.MethodGet)
	ad.HandleFunc("/cache/flush", admin.FlushCache).Methods(http.MethodPost)
	ad.HandleFunc("/cache/invalidate", admin.InvalidateCache).Methods(http.MethodPost)
	ad.HandleFunc("/performance", admin.Performance).Methods(http.MethodGet)
	ad.HandleFunc("/performance/reset", admin.ResetPerformance).Methods(http.MethodPost)

	return r, nil
}
