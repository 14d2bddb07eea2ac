// Package server assembles the long-lived application objects shared by
// the HTTP layer and the background jobs.
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soillink/soillink/internal/api/handlers"
	"github.com/soillink/soillink/internal/cache"
	"github.com/soillink/soillink/internal/config"
	"github.com/soillink/soillink/internal/logger"
	"github.com/soillink/soillink/internal/metrics"
	"github.com/soillink/soillink/internal/middleware"
	"github.com/soillink/soillink/internal/scheduler"
	"github.com/soillink/soillink/internal/session"
	"github.com/soillink/soillink/internal/store"
)

// Scheduled job names.
const (
	JobCacheStats         = "cache_stats"
	JobCollectMetrics     = "collect_metrics"
	JobPerformanceSummary = "performance_summary"
	JobPerformanceCleanup = "performance_cleanup"
	JobSessionPrune       = "session_prune"

	metricsInterval = 30 * time.Second
	cleanupInterval = time.Hour
)

// Limiters groups the rate limiters applied by the router.
type Limiters struct {
	Global *middleware.RateLimiter
	Auth   *middleware.RateLimiter
	API    *middleware.RateLimiter
}

// Server is the application context: one instance per process, built once
// in cmd/server and handed to the router.
type Server struct {
	Config    *config.Config
	Store     store.Store
	Cache     *cache.Manager
	Pages     *cache.LRUCache
	Sessions  *session.Manager
	Tracker   *session.Tracker
	Guard     *session.Guard
	Monitor   *metrics.Monitor
	Hub       *handlers.Hub
	Rand      *handlers.Rand
	Limiters  Limiters
	Scheduler *scheduler.Scheduler
	Collector *metrics.Collector

	stopHub context.CancelFunc
}

// New wires every component around st. monitor is created by the caller
// because the database layer reports query timings to it.
func New(cfg *config.Config, st store.Store, monitor *metrics.Monitor) (*Server, error) {
	cacheOpts := cache.DefaultOptions()
	cacheOpts.General = cache.StoreOptions{DefaultTTL: cfg.CacheDefaultTTL, CheckPeriod: cfg.CacheCheckPeriod, MaxKeys: cfg.CacheMaxKeys}
	cacheOpts.Session = cache.StoreOptions{DefaultTTL: cfg.SessionCacheTTL, CheckPeriod: cfg.SessionCacheCheckPeriod, MaxKeys: cfg.SessionCacheMaxKeys}
	cacheOpts.User = cache.StoreOptions{DefaultTTL: cfg.UserCacheTTL, CheckPeriod: cfg.UserCacheCheckPeriod, MaxKeys: cfg.UserCacheMaxKeys}
	cm := cache.NewManager(cacheOpts)

	pages, err := cache.NewLRU(cfg.PageCacheMB, cfg.PageCacheEntries, cfg.RouteCacheTTL)
	if err != nil {
		cm.Close()
		return nil, fmt.Errorf("page cache: %w", err)
	}

	tracker, err := session.NewTracker(cfg.SessionMaxConcurrent, cfg.SessionTrackerCapacity)
	if err != nil {
		cm.Close()
		pages.Close()
		return nil, fmt.Errorf("session tracker: %w", err)
	}

	sessions := session.NewManager(session.Options{
		Store:   session.NewCacheStore(cm, cfg.SessionTTL),
		Tracker: tracker,
		Cookie:  session.CookieConfigFor(cfg.SessionCookieName, cfg.SessionTTL, cfg.IsProduction()),
	})
	guard := session.NewGuard(sessions, tracker, session.GuardConfig{
		IdleTimeout:          cfg.SessionIdleTimeout,
		RegenerationInterval: cfg.SessionRegenerateEvery,
		RevokeEvicted:        cfg.SessionRevokeEvicted,
		LoginPath:            session.DefaultLoginPath,
	})

	s := &Server{
		Config:   cfg,
		Store:    st,
		Cache:    cm,
		Pages:    pages,
		Sessions: sessions,
		Tracker:  tracker,
		Guard:    guard,
		Monitor:  monitor,
		Hub:      handlers.NewHub(),
		Rand:     handlers.NewRand(uint64(time.Now().UnixNano())),
		Limiters: Limiters{
			Global: middleware.NewRateLimiter(middleware.RateLimitConfig{
				Name: "global", GlobalRate: cfg.RateLimitGlobal, GlobalBurst: cfg.RateLimitGlobalBurst,
				IPRate: cfg.RateLimitPerIP, IPBurst: cfg.RateLimitPerIPBurst,
			}),
			Auth: middleware.NewRateLimiter(middleware.RateLimitConfig{
				Name: "auth", IPRate: cfg.AuthRateLimitPerIP, IPBurst: cfg.AuthRateLimitBurst,
			}),
			API: middleware.NewRateLimiter(middleware.RateLimitConfig{
				Name: "api", IPRate: cfg.APIRateLimitPerIP, IPBurst: cfg.APIRateLimitBurst,
			}),
		},
		Scheduler: scheduler.New(),
		Collector: metrics.NewCollector(cm, pages, tracker, store.TotalsSource{Store: st}),
	}
	if err := s.registerJobs(); err != nil {
		s.closeResources()
		return nil, err
	}
	return s, nil
}

func (s *Server) registerJobs() error {
	jobs := []struct {
		name     string
		interval time.Duration
		fn       scheduler.Job
	}{
		{JobCacheStats, s.Config.CacheStatsInterval, func(context.Context) error {
			s.Cache.LogStats()
			return nil
		}},
		{JobCollectMetrics, metricsInterval, func(ctx context.Context) error {
			if failed := s.Collector.Collect(ctx); failed > 0 {
				return fmt.Errorf("%d metric sources failed", failed)
			}
			return nil
		}},
		{JobPerformanceSummary, s.Config.PerfSummaryInterval, func(context.Context) error {
			s.Monitor.LogSummary()
			return nil
		}},
		{JobPerformanceCleanup, cleanupInterval, func(context.Context) error {
			s.Monitor.Cleanup()
			return nil
		}},
		{JobSessionPrune, cleanupInterval, func(ctx context.Context) error {
			n, err := s.Tracker.Prune(ctx, s.Sessions.Store())
			if n > 0 {
				logger.Info("pruned stale tracked sessions", "removed", n)
			}
			return err
		}},
	}
	for _, j := range jobs {
		if err := s.Scheduler.Every(j.name, j.interval, j.fn); err != nil {
			return err
		}
	}
	return nil
}

// Start launches the websocket hub and the scheduler.
func (s *Server) Start(ctx context.Context) error {
	hubCtx, cancel := context.WithCancel(ctx)
	s.stopHub = cancel
	go s.Hub.Run(hubCtx)
	s.Scheduler.Start()
	return nil
}

// Shutdown stops background work and releases the caches and the store.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.Scheduler.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.stopHub != nil {
		s.stopHub()
	}
	if err := s.closeResources(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Server) closeResources() error {
	s.Limiters.Global.Stop()
	s.Limiters.Auth.Stop()
	s.Limiters.API.Stop()
	s.Cache.LogStats()
	s.Cache.Close()
	s.Pages.Close()
	if err := s.Store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
