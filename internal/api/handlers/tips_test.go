package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/soillink/soillink/internal/cache"
	"github.com/soillink/soillink/internal/soil"
)

func TestTipsHandler(t *testing.T) {
	cm := cache.NewManager(cache.DefaultOptions())
	defer cm.Close()
	h := NewTipsHandler(cm, NewRand(7))

	tests := []struct {
		name  string
		query string
		code  int
		count int
	}{
		{"default", "", http.StatusOK, soil.DefaultTipCount},
		{"explicit", "?count=2", http.StatusOK, 2},
		{"capped", "?count=1000", http.StatusOK, len(soil.Tips())},
		{"zero", "?count=0", http.StatusBadRequest, 0},
		{"not a number", "?count=abc", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.Get(rr, httptest.NewRequest(http.MethodGet, "/api/tips"+tt.query, nil))
			if rr.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, rr.Code)
			}
			if tt.code != http.StatusOK {
				return
			}
			var resp tipsResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Count != tt.count || len(resp.Tips) != tt.count {
				t.Errorf("expected %d tips, got %d", tt.count, len(resp.Tips))
			}
			seen := make(map[string]bool)
			for _, tip := range resp.Tips {
				if seen[tip] {
					t.Errorf("duplicate tip %q", tip)
				}
				seen[tip] = true
			}
		})
	}
}
