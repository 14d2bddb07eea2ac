package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/soillink/soillink/internal/logger"
)

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, "info", false)
	t.Cleanup(func() { logger.Init("info") })

	ok := RequestID(RequestLogger(okHandler()))
	ok.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/about", nil))
	if out := buf.String(); !strings.Contains(out, "level=INFO") || !strings.Contains(out, "path=/about") || !strings.Contains(out, "request_id=") {
		t.Errorf("unexpected success log: %s", out)
	}

	buf.Reset()
	missing := RequestLogger(http.NotFoundHandler())
	missing.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))
	if out := buf.String(); !strings.Contains(out, "level=WARN") || !strings.Contains(out, "status=404") {
		t.Errorf("unexpected error log: %s", out)
	}
}
