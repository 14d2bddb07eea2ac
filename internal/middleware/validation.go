package middleware

import (
	"net/http"
	"strings"
	"unicode/utf8"
)

// MaxRequestBodySize is the maximum size of request bodies (10MB)
const MaxRequestBodySize = 10 * 1024 * 1024

// LimitBody caps request bodies of POST, PUT and PATCH requests at max
// bytes. A non-positive max uses MaxRequestBodySize.
func LimitBody(max int64) func(http.Handler) http.Handler {
	if max <= 0 {
		max = MaxRequestBodySize
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch:
				r.Body = http.MaxBytesReader(w, r.Body, max)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SanitizeString trims input, drops invalid UTF-8 and truncates it to at
// most maxLength bytes without splitting a rune.
func SanitizeString(input string, maxLength int) string {
	input = strings.ToValidUTF8(strings.TrimSpace(input), "")
	if len(input) <= maxLength {
		return input
	}
	cut := maxLength
	for cut > 0 && !utf8.RuneStart(input[cut]) {
		cut--
	}
	return strings.TrimSpace(input[:cut])
}
