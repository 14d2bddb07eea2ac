package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// Now advances by step on every call so each request appears to take step.
func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func newTestMonitor(step time.Duration) *Monitor {
	clock := &stepClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), step: step}
	m := NewMonitor(MonitorOptions{HistorySize: 3, SlowRequest: time.Second, SlowQuery: 100 * time.Millisecond, Now: clock.Now})
	m.readMemory = func(ms *runtime.MemStats) {
		ms.HeapAlloc = 10
		ms.HeapSys = 100
	}
	return m
}

func TestMonitorMiddlewareUsesRouteTemplate(t *testing.T) {
	m := newTestMonitor(10 * time.Millisecond)
	r := mux.NewRouter()
	r.Use(m.Middleware)
	r.HandleFunc("/api/dashboard/{userId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}).Methods(http.MethodGet)

	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("/api/dashboard/{userId}", "GET", "418"))
	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/dashboard/"+id, nil))
	}

	s := m.Snapshot()
	if s.Requests.Total != 2 || s.Requests.Active != 0 {
		t.Fatalf("expected 2 total and 0 active, got %+v", s.Requests)
	}
	if s.Requests.ByRoute["/api/dashboard/{userId}"] != 2 {
		t.Errorf("expected requests grouped by template, got %v", s.Requests.ByRoute)
	}
	if s.Requests.ByStatus["418"] != 2 || s.Requests.ByMethod["GET"] != 2 {
		t.Errorf("unexpected status/method counts: %v %v", s.Requests.ByStatus, s.Requests.ByMethod)
	}
	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("/api/dashboard/{userId}", "GET", "418"))
	if after-before != 2 {
		t.Errorf("expected prometheus counter +2, got %v", after-before)
	}
}

func TestMonitorSlowRequestsAndHistoryBound(t *testing.T) {
	m := newTestMonitor(0)
	req := httptest.NewRequest(http.MethodGet, "/tips", nil)
	before := testutil.ToFloat64(APISlowRequests.WithLabelValues("/monitor-test"))

	for _, d := range []time.Duration{100 * time.Millisecond, 2 * time.Second, 200 * time.Millisecond, 300 * time.Millisecond} {
		m.TrackRequest(req, "/monitor-test", http.StatusOK, d)
	}

	s := m.Snapshot()
	if s.Requests.Slow != 1 {
		t.Errorf("expected 1 slow request, got %d", s.Requests.Slow)
	}
	if got := testutil.ToFloat64(APISlowRequests.WithLabelValues("/monitor-test")) - before; got != 1 {
		t.Errorf("expected slow counter +1, got %v", got)
	}
	// History keeps the last three: 2000, 200, 300.
	if s.Requests.AverageResponseMs < 833 || s.Requests.AverageResponseMs > 834 {
		t.Errorf("expected average over bounded history ~833.3ms, got %v", s.Requests.AverageResponseMs)
	}
}

func TestMonitorHistoryWrapsAround(t *testing.T) {
	m := newTestMonitor(0)
	req := httptest.NewRequest(http.MethodGet, "/tips", nil)

	// Ten requests through a ring of three; only 8, 9 and 10ms remain.
	for i := 1; i <= 10; i++ {
		m.TrackRequest(req, "/monitor-wrap", http.StatusOK, time.Duration(i)*time.Millisecond)
	}
	if got := m.Snapshot().Requests.AverageResponseMs; got != 9 {
		t.Errorf("expected average of last three 9ms, got %v", got)
	}

	m.Cleanup()
	m.TrackRequest(req, "/monitor-wrap", http.StatusOK, 30*time.Millisecond)
	// Ring now holds 9, 10 and 30ms.
	if got := m.Snapshot().Requests.AverageResponseMs; got < 16.33 || got > 16.34 {
		t.Errorf("expected average ~16.33ms after cleanup, got %v", got)
	}
}

func TestMonitorServerErrorsAreTracked(t *testing.T) {
	m := newTestMonitor(0)
	m.TrackRequest(httptest.NewRequest(http.MethodPost, "/api/x", nil), "/api/x", http.StatusInternalServerError, time.Millisecond)
	s := m.Snapshot()
	if s.Errors.Total != 1 || s.Errors.ByType["http"] != 1 {
		t.Fatalf("expected one http error, got %+v", s.Errors)
	}
}

func TestMonitorTrackQuery(t *testing.T) {
	m := newTestMonitor(0)
	m.TrackQuery(50*time.Millisecond, nil)
	m.TrackQuery(150*time.Millisecond, nil)
	m.TrackQuery(5*time.Second, errors.New("timeout"))

	q := m.Snapshot().Database
	if q.Total != 3 || q.Slow != 2 || q.Failed != 1 {
		t.Fatalf("unexpected query stats %+v", q)
	}
	if q.AverageTimeMs != 100 {
		t.Errorf("expected average of successful queries 100ms, got %v", q.AverageTimeMs)
	}
}

func TestMonitorKeepsLastHundredErrors(t *testing.T) {
	m := newTestMonitor(0)
	for i := 0; i < 120; i++ {
		m.TrackError(errors.New("boom"), "", map[string]string{"i": "x"})
	}
	m.TrackError(nil, "ignored", nil)

	e := m.Snapshot().Errors
	if e.Total != 120 || len(e.Recent) != 100 {
		t.Fatalf("expected 120 total and 100 recent, got %d and %d", e.Total, len(e.Recent))
	}
	if e.ByType["general"] != 120 {
		t.Errorf("expected default kind general, got %v", e.ByType)
	}
}

func TestMonitorHealth(t *testing.T) {
	m := newTestMonitor(0)
	h := m.Health()
	if !h.Healthy || h.Status != "healthy" || len(h.Issues) != 0 {
		t.Fatalf("expected healthy empty monitor, got %+v", h)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	m.TrackRequest(req, "/", http.StatusOK, 3*time.Second)
	m.TrackError(errors.New("x"), "db", nil)
	m.TrackQuery(2*time.Second, nil)
	m.readMemory = func(ms *runtime.MemStats) {
		ms.HeapAlloc = 95
		ms.HeapSys = 100
	}

	h = m.Health()
	if h.Healthy || h.Status != "degraded" {
		t.Fatalf("expected degraded, got %+v", h)
	}
	if len(h.Issues) != 4 {
		t.Errorf("expected heap, response, error rate and query issues, got %v", h.Issues)
	}
	if h.Metrics.HeapUsage != "95.00%" {
		t.Errorf("unexpected heap usage %q", h.Metrics.HeapUsage)
	}
}

func TestMonitorTopRoutesAndReset(t *testing.T) {
	m := newTestMonitor(0)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for route, n := range map[string]int{"/a": 3, "/b": 1, "/c": 2} {
		for i := 0; i < n; i++ {
			m.TrackRequest(req, route, http.StatusOK, time.Millisecond)
		}
	}

	top := m.TopRoutes(2)
	if len(top) != 2 || top[0].Route != "/a" || top[1].Route != "/c" {
		t.Fatalf("unexpected top routes %v", top)
	}

	m.LogSummary()
	m.Cleanup()
	m.Reset()
	if s := m.Snapshot(); s.Requests.Total != 0 || len(s.Requests.ByRoute) != 0 {
		t.Fatalf("expected empty stats after reset, got %+v", s.Requests)
	}
}
