package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/soillink/soillink/internal/metrics"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/tips", nil)
	req.RemoteAddr = remote
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRateLimiter_GlobalLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Name: "test-global", GlobalRate: 1, GlobalBurst: 2, IPRate: 10, IPBurst: 10})
	defer rl.Stop()
	handler := rl.Limit(okHandler())

	if rr := hit(handler, "192.168.1.1:1234"); rr.Code != http.StatusOK {
		t.Fatalf("first request: %d", rr.Code)
	}
	if rr := hit(handler, "192.168.1.1:1234"); rr.Code != http.StatusOK {
		t.Fatalf("burst request: %d", rr.Code)
	}
	rr := hit(handler, "192.168.1.2:1234")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("third request should be limited globally: %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "RATE_LIMIT_GLOBAL") {
		t.Errorf("body = %s", rr.Body.String())
	}
	if got := testutil.ToFloat64(metrics.RateLimitRejections.WithLabelValues("test-global", "global")); got != 1 {
		t.Errorf("global rejections = %v", got)
	}
}

func TestRateLimiter_PerIPLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Name: "test-ip", IPRate: 1, IPBurst: 2})
	defer rl.Stop()
	handler := rl.Limit(okHandler())

	hit(handler, "192.168.1.1:1234")
	hit(handler, "192.168.1.1:5678")
	rr := hit(handler, "192.168.1.1:9999")
	if rr.Code != http.StatusTooManyRequests || !strings.Contains(rr.Body.String(), "RATE_LIMIT_IP") {
		t.Fatalf("third request from the same IP: %d %s", rr.Code, rr.Body.String())
	}
	if rr := hit(handler, "192.168.1.2:1234"); rr.Code != http.StatusOK {
		t.Errorf("other IP limited: %d", rr.Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded for", map[string]string{"X-Forwarded-For": "203.0.113.1, 198.51.100.1"}, "192.168.1.1:1234", "203.0.113.1"},
		{"real ip", map[string]string{"X-Real-IP": "203.0.113.9"}, "192.168.1.1:1234", "203.0.113.9"},
		{"remote addr", nil, "192.168.1.1:1234", "192.168.1.1"},
		{"ipv6 remote", nil, "[2001:db8::1]:443", "2001:db8::1"},
		{"no port", nil, "192.168.1.5", "192.168.1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{IPRate: 10, IPBurst: 10})
	rl.getLimiter("192.168.1.1")
	rl.getLimiter("192.168.1.2")

	rl.mu.Lock()
	count := len(rl.perIP)
	rl.mu.Unlock()
	if count != 2 {
		t.Errorf("Expected 2 IP limiters, got %d", count)
	}
	rl.Stop()
	rl.Stop()
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{GlobalRate: 100, GlobalBurst: 100, IPRate: 10, IPBurst: 10})
	defer rl.Stop()
	handler := rl.Limit(okHandler())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				hit(handler, "192.168.1."+string(rune('1'+n))+":1234")
			}
		}(i)
	}
	wg.Wait()
}
