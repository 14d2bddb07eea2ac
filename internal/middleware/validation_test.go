package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLimitBody(t *testing.T) {
	var readErr error
	handler := LimitBody(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"a":"b"}`)))
	if readErr != nil {
		t.Errorf("small body rejected: %v", readErr)
	}

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(strings.Repeat("x", 64))))
	if readErr == nil {
		t.Error("oversized body accepted")
	}

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", strings.NewReader(strings.Repeat("x", 64))))
	if readErr != nil {
		t.Errorf("GET body should not be limited: %v", readErr)
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input     string
		maxLength int
		expected  string
	}{
		{"  hello world  ", 20, "hello world"},
		{"verylongstringthatexceedslimit", 10, "verylongst"},
		{"", 10, ""},
		{"   ", 10, ""},
		{"Hello 世界", 100, "Hello 世界"},
		{"Hello 世界", 8, "Hello"},
		{"bad\xffbyte", 20, "badbyte"},
	}
	for _, tt := range tests {
		if got := SanitizeString(tt.input, tt.maxLength); got != tt.expected {
			t.Errorf("SanitizeString(%q, %d) = %q, want %q", tt.input, tt.maxLength, got, tt.expected)
		}
	}
}
