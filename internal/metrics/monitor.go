package metrics

import (
	"bufio"
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/soillink/soillink/internal/logger"
)

const (
	DefaultHistorySize    = 1000
	DefaultSlowRequest    = time.Second
	DefaultSlowQuery      = 500 * time.Millisecond
	maxRecentErrors       = 100
	highHeapRatio         = 0.9
	highAvgResponse       = 2 * time.Second
	highErrorRate         = 0.05
	slowAverageQueryLimit = time.Second
)

// MonitorOptions configures a Monitor.
type MonitorOptions struct {
	HistorySize int
	SlowRequest time.Duration
	SlowQuery   time.Duration
	Now         func() time.Time
}

// ErrorRecord is one entry of the recent error list.
type ErrorRecord struct {
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message"`
	Type      string            `json:"type"`
	Context   map[string]string `json:"context,omitempty"`
}

// RouteCount pairs a route with its request count.
type RouteCount struct {
	Route string `json:"route"`
	Count int64  `json:"count"`
}

// RequestStats summarizes HTTP traffic.
type RequestStats struct {
	Total             int64            `json:"total"`
	Active            int64            `json:"active"`
	ByMethod          map[string]int64 `json:"byMethod"`
	ByRoute           map[string]int64 `json:"byRoute"`
	ByStatus          map[string]int64 `json:"byStatus"`
	AverageResponseMs float64          `json:"averageResponseTimeMs"`
	Slow              int64            `json:"slow"`
}

// QueryStats summarizes database calls.
type QueryStats struct {
	Total         int64   `json:"total"`
	Slow          int64   `json:"slow"`
	Failed        int64   `json:"failed"`
	AverageTimeMs float64 `json:"averageTimeMs"`
}

// ErrorStats summarizes tracked errors.
type ErrorStats struct {
	Total  int64            `json:"total"`
	ByType map[string]int64 `json:"byType"`
	Recent []ErrorRecord    `json:"recent"`
}

// SystemStats is a view of the Go runtime.
type SystemStats struct {
	HeapAlloc    uint64 `json:"heapAlloc"`
	HeapSys      uint64 `json:"heapSys"`
	Sys          uint64 `json:"sys"`
	NumGC        uint32 `json:"numGC"`
	Goroutines   int    `json:"goroutines"`
	CPUs         int    `json:"cpus"`
	UptimeSecond int64  `json:"uptimeSeconds"`
}

// Snapshot is a copy of everything the Monitor knows.
type Snapshot struct {
	Timestamp time.Time    `json:"timestamp"`
	Requests  RequestStats `json:"requests"`
	Database  QueryStats   `json:"database"`
	Errors    ErrorStats   `json:"errors"`
	System    SystemStats  `json:"system"`
}

// HealthReport is the monitor's verdict on the process.
type HealthReport struct {
	Healthy bool     `json:"healthy"`
	Status  string   `json:"status"`
	Issues  []string `json:"issues"`
	Metrics struct {
		ResponseTimeMs float64 `json:"responseTimeMs"`
		ErrorRate      string  `json:"errorRate"`
		HeapUsage      string  `json:"heapUsage"`
		UptimeSeconds  int64   `json:"uptimeSeconds"`
		ActiveRequests int64   `json:"activeRequests"`
	} `json:"metrics"`
}

// Monitor keeps in-process request, query and error statistics alongside
// the Prometheus series.
type Monitor struct {
	mu   sync.Mutex
	opts MonitorOptions

	start    time.Time
	total    int64
	active   int64
	slow     int64
	byMethod map[string]int64
	byRoute  map[string]int64
	byStatus map[string]int64
	// history is a ring of the last HistorySize response times; histNext
	// is the slot written next.
	history  []time.Duration
	histNext int
	histLen  int
	histSum  time.Duration

	queries    QueryStats
	queryAvg   float64
	errTotal   int64
	errByType  map[string]int64
	errRecent  []ErrorRecord
	readMemory func(*runtime.MemStats)
}

// NewMonitor returns an empty monitor.
func NewMonitor(opts MonitorOptions) *Monitor {
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.SlowRequest <= 0 {
		opts.SlowRequest = DefaultSlowRequest
	}
	if opts.SlowQuery <= 0 {
		opts.SlowQuery = DefaultSlowQuery
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &Monitor{opts: opts, readMemory: runtime.ReadMemStats}
	m.resetLocked()
	return m
}

func (m *Monitor) resetLocked() {
	m.start = m.opts.Now()
	m.total, m.active, m.slow = 0, 0, 0
	m.byMethod = make(map[string]int64)
	m.byRoute = make(map[string]int64)
	m.byStatus = make(map[string]int64)
	m.history = make([]time.Duration, m.opts.HistorySize)
	m.histNext, m.histLen = 0, 0
	m.histSum = 0
	m.queries = QueryStats{}
	m.queryAvg = 0
	m.errTotal = 0
	m.errByType = make(map[string]int64)
	m.errRecent = nil
}

type monitorWriter struct {
	http.ResponseWriter
	status int
}

func (w *monitorWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *monitorWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *monitorWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *monitorWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// RouteTemplate returns the mux route template of the request, or its
// path when no route matched.
func RouteTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

// Middleware records every request. Install it with Router.Use so route
// templates are available.
func (m *Monitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := m.opts.Now()
		m.mu.Lock()
		m.active++
		m.mu.Unlock()
		APIRequestsActive.Inc()

		mw := &monitorWriter{ResponseWriter: w}
		defer func() {
			status := mw.status
			if status == 0 {
				status = http.StatusOK
			}
			APIRequestsActive.Dec()
			m.TrackRequest(r, RouteTemplate(r), status, m.opts.Now().Sub(start))
		}()
		next.ServeHTTP(mw, r)
	})
}

// TrackRequest records one finished request.
func (m *Monitor) TrackRequest(r *http.Request, route string, status int, d time.Duration) {
	code := strconv.Itoa(status)
	APIRequestDuration.WithLabelValues(route, r.Method, code).Observe(d.Seconds())
	APIRequestsTotal.WithLabelValues(route, r.Method, code).Inc()

	m.mu.Lock()
	if m.active > 0 {
		m.active--
	}
	m.total++
	m.byMethod[r.Method]++
	m.byRoute[route]++
	m.byStatus[code]++
	m.recordLocked(d)
	slow := d > m.opts.SlowRequest
	if slow {
		m.slow++
	}
	m.mu.Unlock()

	if slow {
		APISlowRequests.WithLabelValues(route).Inc()
		logger.WarnContext(r.Context(), "Slow request detected",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", d.Milliseconds(),
			"status", status,
			"user_agent", r.UserAgent(),
		)
	}
	if status >= http.StatusInternalServerError {
		m.TrackError(fmt.Errorf("%s %s returned %d", r.Method, route, status), "http", nil)
	}
}

// TrackQuery records one database call. Failed calls do not move the
// average.
func (m *Monitor) TrackQuery(d time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queries.Total++
	if d > m.opts.SlowQuery {
		m.queries.Slow++
	}
	if err != nil {
		m.queries.Failed++
		return
	}
	ok := m.queries.Total - m.queries.Failed
	m.queryAvg += (float64(d.Microseconds())/1000 - m.queryAvg) / float64(ok)
}

// TrackError records an error of the given kind, keeping the last 100.
func (m *Monitor) TrackError(err error, kind string, ctx map[string]string) {
	if err == nil {
		return
	}
	if kind == "" {
		kind = "general"
	}
	rec := ErrorRecord{Timestamp: m.opts.Now(), Message: err.Error(), Type: kind, Context: ctx}

	m.mu.Lock()
	m.errTotal++
	m.errByType[kind]++
	m.errRecent = append(m.errRecent, rec)
	if over := len(m.errRecent) - maxRecentErrors; over > 0 {
		m.errRecent = slices.Delete(m.errRecent, 0, over)
	}
	m.mu.Unlock()

	logger.Error("Error tracked", "type", kind, "error", err)
}

// Snapshot copies the current statistics.
func (m *Monitor) Snapshot() Snapshot {
	var mem runtime.MemStats
	m.readMemory(&mem)

	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		Timestamp: m.opts.Now(),
		Requests: RequestStats{
			Total:    m.total,
			Active:   m.active,
			ByMethod: clone(m.byMethod),
			ByRoute:  clone(m.byRoute),
			ByStatus: clone(m.byStatus),
			Slow:     m.slow,
		},
		Database: m.queries,
		Errors: ErrorStats{
			Total:  m.errTotal,
			ByType: clone(m.errByType),
			Recent: slices.Clone(m.errRecent),
		},
		System: SystemStats{
			HeapAlloc:    mem.HeapAlloc,
			HeapSys:      mem.HeapSys,
			Sys:          mem.Sys,
			NumGC:        mem.NumGC,
			Goroutines:   runtime.NumGoroutine(),
			CPUs:         runtime.NumCPU(),
			UptimeSecond: int64(m.opts.Now().Sub(m.start).Seconds()),
		},
	}
	if m.histLen > 0 {
		s.Requests.AverageResponseMs = float64(m.histSum.Microseconds()) / 1000 / float64(m.histLen)
	}
	s.Database.AverageTimeMs = m.queryAvg
	if s.Errors.Recent == nil {
		s.Errors.Recent = []ErrorRecord{}
	}
	return s
}

func clone(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Health checks heap pressure, response time, error rate and query time.
func (m *Monitor) Health() HealthReport {
	s := m.Snapshot()
	var h HealthReport
	h.Issues = []string{}

	heapRatio := 0.0
	if s.System.HeapSys > 0 {
		heapRatio = float64(s.System.HeapAlloc) / float64(s.System.HeapSys)
	}
	if heapRatio > highHeapRatio {
		h.Issues = append(h.Issues, "High heap memory usage")
	}
	if s.Requests.AverageResponseMs > float64(highAvgResponse.Milliseconds()) {
		h.Issues = append(h.Issues, "High average response time")
	}
	errorRate := float64(s.Errors.Total) / float64(max(s.Requests.Total, 1))
	if errorRate > highErrorRate {
		h.Issues = append(h.Issues, "High error rate")
	}
	if s.Database.AverageTimeMs > float64(slowAverageQueryLimit.Milliseconds()) {
		h.Issues = append(h.Issues, "Slow database queries")
	}

	h.Healthy = len(h.Issues) == 0
	h.Status = "healthy"
	if !h.Healthy {
		h.Status = "degraded"
	}
	h.Metrics.ResponseTimeMs = s.Requests.AverageResponseMs
	h.Metrics.ErrorRate = fmt.Sprintf("%.2f%%", errorRate*100)
	h.Metrics.HeapUsage = fmt.Sprintf("%.2f%%", heapRatio*100)
	h.Metrics.UptimeSeconds = s.System.UptimeSecond
	h.Metrics.ActiveRequests = s.Requests.Active
	return h
}

// TopRoutes returns the n busiest routes.
func (m *Monitor) TopRoutes(n int) []RouteCount {
	m.mu.Lock()
	routes := make([]RouteCount, 0, len(m.byRoute))
	for r, c := range m.byRoute {
		routes = append(routes, RouteCount{Route: r, Count: c})
	}
	m.mu.Unlock()

	slices.SortFunc(routes, func(a, b RouteCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Route, b.Route)
	})
	if n >= 0 && len(routes) > n {
		routes = routes[:n]
	}
	return routes
}

// LogSummary writes one info line with the headline numbers and a warning
// when the monitor considers the process degraded.
func (m *Monitor) LogSummary() {
	s := m.Snapshot()
	h := m.Health()
	log := logger.WithComponent("performance")
	log.Info("Performance summary",
		slog.Group("requests",
			"total", s.Requests.Total,
			"active", s.Requests.Active,
			"avg_ms", int64(s.Requests.AverageResponseMs),
			"top_routes", m.TopRoutes(5),
		),
		slog.Group("database",
			"total", s.Database.Total,
			"avg_ms", int64(s.Database.AverageTimeMs),
			"slow", s.Database.Slow,
			"failed", s.Database.Failed,
		),
		slog.Group("errors", "total", s.Errors.Total, "recent", len(s.Errors.Recent)),
		"heap_mb", s.System.HeapAlloc/1024/1024,
		"goroutines", s.System.Goroutines,
		"health", h.Status,
	)
	if !h.Healthy {
		log.Warn("Performance issues detected", "issues", h.Issues)
	}
}

// recordLocked stores d in the history ring, overwriting the oldest value
// once the ring is full; callers hold mu.
func (m *Monitor) recordLocked(d time.Duration) {
	if m.histLen == len(m.history) {
		m.histSum -= m.history[m.histNext]
	} else {
		m.histLen++
	}
	m.history[m.histNext] = d
	m.histSum += d
	m.histNext = (m.histNext + 1) % len(m.history)
}

// Cleanup trims the error list to its bound. The response history is a
// fixed ring and needs no trimming.
func (m *Monitor) Cleanup() {
	m.mu.Lock()
	if over := len(m.errRecent) - maxRecentErrors; over > 0 {
		m.errRecent = slices.Delete(m.errRecent, 0, over)
	}
	m.errRecent = slices.Clip(m.errRecent)
	m.mu.Unlock()
	logger.Debug("Metrics cleanup completed")
}

// Reset clears every statistic and restarts the uptime clock.
func (m *Monitor) Reset() {
	m.mu.Lock()
	active := m.active
	m.resetLocked()
	m.active = active
	m.mu.Unlock()
	logger.Info("Performance metrics reset")
}
