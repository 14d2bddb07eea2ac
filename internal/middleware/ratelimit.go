package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/soillink/soillink/internal/apierr"
	"github.com/soillink/soillink/internal/metrics"
)

const (
	ipCleanupInterval = time.Minute
	ipIdleTimeout     = 3 * time.Minute
)

// RateLimitConfig describes one limiter. A zero GlobalRate disables the
// global bucket so only per-IP limits apply.
type RateLimitConfig struct {
	Name        string
	GlobalRate  float64
	GlobalBurst int
	IPRate      float64
	IPBurst     int
}

// RateLimiter enforces a global token bucket plus one bucket per client IP.
type RateLimiter struct {
	name    string
	global  *rate.Limiter
	ipRate  rate.Limit
	ipBurst int

	mu    sync.Mutex
	perIP map[string]*ipLimiter

	cleanup *time.Ticker
	done    chan struct{}
	stop    sync.Once
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter starts a limiter. Stop releases its cleanup goroutine.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	rl := &RateLimiter{
		name:    cfg.Name,
		ipRate:  rate.Limit(cfg.IPRate),
		ipBurst: cfg.IPBurst,
		perIP:   make(map[string]*ipLimiter),
		cleanup: time.NewTicker(ipCleanupInterval),
		done:    make(chan struct{}),
	}
	if cfg.GlobalRate > 0 {
		rl.global = rate.NewLimiter(rate.Limit(cfg.GlobalRate), cfg.GlobalBurst)
	}
	go rl.cleanupStaleEntries()
	return rl
}

func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, ok := rl.perIP[ip]; ok {
		l.lastSeen = time.Now()
		return l.limiter
	}
	l := &ipLimiter{limiter: rate.NewLimiter(rl.ipRate, rl.ipBurst), lastSeen: time.Now()}
	rl.perIP[ip] = l
	return l.limiter
}

func (rl *RateLimiter) cleanupStaleEntries() {
	for {
		select {
		case <-rl.done:
			return
		case <-rl.cleanup.C:
			rl.mu.Lock()
			for ip, l := range rl.perIP {
				if time.Since(l.lastSeen) > ipIdleTimeout {
					delete(rl.perIP, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stop.Do(func() {
		rl.cleanup.Stop()
		close(rl.done)
	})
}

// Limit rejects requests over either bucket with 429.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.global != nil && !rl.global.Allow() {
			metrics.RateLimitRejections.WithLabelValues(rl.name, "global").Inc()
			apierr.WriteErrorWithContext(w, r, apierr.RateLimitGlobal())
			return
		}
		if !rl.getLimiter(ClientIP(r)).Allow() {
			metrics.RateLimitRejections.WithLabelValues(rl.name, "ip").Inc()
			apierr.WriteErrorWithContext(w, r, apierr.RateLimitIP())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the caller's address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
