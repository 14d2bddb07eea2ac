package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
)

var samplesPayload = strings.Repeat(`{"id":"s1","phLevel":6.8,"waterLevel":41.2,"soilHealth":77.5},`, 200)

func payloadHandler(status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusNotModified {
			io.WriteString(w, samplesPayload)
		}
	})
}

func TestNegotiateEncoding(t *testing.T) {
	tests := []struct{ accept, want string }{
		{"", ""},
		{"gzip", "gzip"},
		{"gzip, deflate, br", "br"},
		{"br;q=0, gzip", "gzip"},
		{"identity", ""},
		{"GZIP;q=0.5", "gzip"},
	}
	for _, tt := range tests {
		if got := negotiateEncoding(tt.accept); got != tt.want {
			t.Errorf("negotiateEncoding(%q) = %q, want %q", tt.accept, got, tt.want)
		}
	}
}

func TestCompressBrotli(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/u/samples", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	rr := httptest.NewRecorder()
	Compress(payloadHandler(http.StatusOK)).ServeHTTP(rr, req)

	if rr.Header().Get("Content-Encoding") != "br" {
		t.Fatalf("Content-Encoding = %q", rr.Header().Get("Content-Encoding"))
	}
	if rr.Body.Len() >= len(samplesPayload) {
		t.Errorf("brotli did not shrink the payload: %d >= %d", rr.Body.Len(), len(samplesPayload))
	}
	body, err := io.ReadAll(brotli.NewReader(rr.Body))
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != samplesPayload {
		t.Error("decoded body differs")
	}
}

func TestCompressGzip(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rr := httptest.NewRecorder()
	Compress(payloadHandler(http.StatusOK)).ServeHTTP(rr, req)

	if rr.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding = %q", rr.Header().Get("Content-Encoding"))
	}
	gr, err := gzip.NewReader(rr.Body)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(gr)
	if string(body) != samplesPayload {
		t.Error("decoded body differs")
	}
	if !strings.Contains(rr.Header().Get("Vary"), "Accept-Encoding") {
		t.Error("missing Vary header")
	}
}

func TestCompressSkips(t *testing.T) {
	t.Run("no accept-encoding", func(t *testing.T) {
		rr := httptest.NewRecorder()
		Compress(payloadHandler(http.StatusOK)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if rr.Header().Get("Content-Encoding") != "" || rr.Body.String() != samplesPayload {
			t.Error("response should be identity encoded")
		}
	})
	t.Run("not modified", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		rr := httptest.NewRecorder()
		Compress(payloadHandler(http.StatusNotModified)).ServeHTTP(rr, req)
		if rr.Header().Get("Content-Encoding") != "" || rr.Body.Len() != 0 {
			t.Errorf("304 must stay empty and unencoded, got %q / %d bytes", rr.Header().Get("Content-Encoding"), rr.Body.Len())
		}
	})
	t.Run("websocket upgrade", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/dashboard/u/ws", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		req.Header.Set("Upgrade", "websocket")
		rr := httptest.NewRecorder()
		Compress(payloadHandler(http.StatusOK)).ServeHTTP(rr, req)
		if rr.Header().Get("Content-Encoding") != "" {
			t.Error("upgrade requests must not be compressed")
		}
	})
}

func BenchmarkCompress(b *testing.B) {
	for _, enc := range []string{"br", "gzip"} {
		b.Run(enc, func(b *testing.B) {
			h := Compress(payloadHandler(http.StatusOK))
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				req := httptest.NewRequest(http.MethodGet, "/", nil)
				req.Header.Set("Accept-Encoding", enc)
				h.ServeHTTP(httptest.NewRecorder(), req)
			}
		})
	}
}
