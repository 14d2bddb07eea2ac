package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/soillink/soillink/internal/api"
	"github.com/soillink/soillink/internal/circuitbreaker"
	"github.com/soillink/soillink/internal/config"
	"github.com/soillink/soillink/internal/errorreporting"
	"github.com/soillink/soillink/internal/logger"
	"github.com/soillink/soillink/internal/metrics"
	"github.com/soillink/soillink/internal/secrets"
	"github.com/soillink/soillink/internal/server"
	"github.com/soillink/soillink/internal/store"
	"github.com/soillink/soillink/internal/tracing"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (falling back to system env)")
	}

	cfg := config.Load()

	// Initialize structured logging
	logger.Init(cfg.LogLevel)
	logger.Info("Initializing soillink", "env", cfg.Env, "version", cfg.SentryRelease, "log_level", cfg.LogLevel)

	if cfg.IsProduction() {
		if err := secrets.RequireEnv("DATABASE_URL", "ADMIN_API_TOKEN"); err != nil {
			logger.Error("Missing required configuration", "error", err)
			os.Exit(1)
		}
	}

	// Initialize error reporting
	if err := errorreporting.Init(errorreporting.Options{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     cfg.SentryRelease,
		SampleRate:  cfg.SentrySampleRate,
	}); err != nil {
		logger.Warn("Failed to initialize error reporting", "error", err)
	} else if errorreporting.IsSentryEnabled() {
		logger.Info("Error reporting initialized", "environment", cfg.SentryEnvironment)
		defer func() {
			logger.Info("Flushing error reports...")
			errorreporting.Flush(2 * time.Second)
		}()
	}

	// Initialize tracing
	shutdownTracing, err := tracing.Init(tracing.Options{
		ServiceName: "soillink",
		Enabled:     cfg.OTELEnabled,
		Endpoint:    cfg.OTELEndpoint,
		SampleRate:  cfg.OTELSampleRate,
	})
	if err != nil {
		logger.Warn("Failed to initialize tracing", "error", err)
	} else if cfg.OTELEnabled {
		logger.Info("Tracing initialized", "endpoint", cfg.OTELEndpoint, "sample_rate", cfg.OTELSampleRate)
		defer func() {
			logger.Info("Shutting down tracer...")
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Error("Failed to shutdown tracer", "error", err)
			}
		}()
	}

	monitor := metrics.NewMonitor(metrics.MonitorOptions{
		HistorySize: cfg.PerfHistorySize,
		SlowRequest: cfg.SlowRequest,
		SlowQuery:   cfg.SlowQuery,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := openStore(ctx, cfg, monitor)
	if err != nil {
		logger.Error("Failed to open store", "error", err)
		errorreporting.CaptureError(err)
		os.Exit(1)
	}

	srv, err := server.New(cfg, st, monitor)
	if err != nil {
		logger.Error("Failed to build server", "error", err)
		st.Close()
		os.Exit(1)
	}
	router, err := api.NewRouter(srv)
	if err != nil {
		logger.Error("Failed to build router", "error", err)
		srv.Shutdown(context.Background())
		os.Exit(1)
	}
	if err := srv.Start(ctx); err != nil {
		logger.Error("Failed to start background work", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-errCh:
		logger.Error("HTTP server failed", "error", err)
		errorreporting.CaptureError(err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
	}
	logger.Info("Server stopped")
}

// openStore connects to PostgreSQL when DATABASE_URL is set and falls back
// to the in-memory store otherwise.
func openStore(ctx context.Context, cfg *config.Config, monitor *metrics.Monitor) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store; data is lost on restart")
		return store.NewMemoryStore(), nil
	}
	logger.Info("Connecting to database", "url", secrets.MaskURL(cfg.DatabaseURL))
	pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL, store.PostgresOptions{
		Observer: monitor,
		Breaker:  circuitbreaker.New(circuitbreaker.Config{Name: "database"}),
	})
	if err != nil {
		return nil, err
	}
	return pg, nil
}
