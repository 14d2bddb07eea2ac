package cache

import (
	"bytes"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/soillink/soillink/internal/metrics"
	"github.com/soillink/soillink/internal/tracing"
)

// CacheStatusHeader reports HIT or MISS on responses served by Middleware.
const CacheStatusHeader = "X-Cache"

// DefaultRouteTTL is used by Middleware when ttl is not positive.
const DefaultRouteTTL = 10 * time.Minute

// cachedResponse is the value stored under a route key.
type cachedResponse struct {
	Status      int
	ContentType string
	Body        []byte
}

// bufferedResponseWriter holds the handler's output until the middleware
// decides whether to cache it.
type bufferedResponseWriter struct {
	http.ResponseWriter
	buf         bytes.Buffer
	status      int
	wroteHeader bool
}

func (w *bufferedResponseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
}

func (w *bufferedResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.buf.Write(b)
}

// Middleware serves GET responses from the general region. On a miss the
// handler runs against a buffer; a 200 JSON response is stored for ttl
// before it is flushed to the client. Other methods and statuses pass
// through untouched.
func (m *Manager) Middleware(ttl time.Duration) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = DefaultRouteTTL
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := RouteKey(r.URL.Path, r.URL.Query())
			endpoint := routeLabel(r)

			if v, ok := m.Get(key); ok {
				if cached, ok := v.(*cachedResponse); ok {
					metrics.APICacheHits.WithLabelValues(endpoint).Inc()
					if cached.ContentType != "" {
						w.Header().Set("Content-Type", cached.ContentType)
					}
					w.Header().Set(CacheStatusHeader, "HIT")
					w.WriteHeader(cached.Status)
					_, _ = w.Write(cached.Body)
					return
				}
			}
			metrics.APICacheMisses.WithLabelValues(endpoint).Inc()

			ctx, span := tracing.StartSpan(r.Context(), "cache.read_through",
				trace.WithAttributes(attribute.String("http.route", endpoint)))
			defer span.End()

			bw := &bufferedResponseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(bw, r.WithContext(ctx))

			contentType := w.Header().Get("Content-Type")
			stored := false
			if bw.status == http.StatusOK && isJSON(contentType) {
				body := append([]byte(nil), bw.buf.Bytes()...)
				stored = m.Set(key, &cachedResponse{Status: bw.status, ContentType: contentType, Body: body}, ttl)
			}
			span.SetAttributes(attribute.Bool("cache.stored", stored))

			w.Header().Set(CacheStatusHeader, "MISS")
			w.WriteHeader(bw.status)
			_, _ = w.Write(bw.buf.Bytes())
		})
	}
}

// RouteKey builds "route:<path>:<json(query)>". Single-valued parameters
// serialize as strings and repeated ones as arrays; keys are sorted.
func RouteKey(path string, query url.Values) string {
	params := make(map[string]any, len(query))
	for k, vs := range query {
		if len(vs) == 1 {
			params[k] = vs[0]
		} else {
			params[k] = vs
		}
	}
	b, err := json.Marshal(params)
	if err != nil {
		b = []byte("{}")
	}
	return PrefixRoute + path + ":" + string(b)
}

func isJSON(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "json")
}

func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}
