package cache

import (
	"context"
	"testing"
	"time"
)

func TestLRUCache_SetAndGet(t *testing.T) {
	pages, err := NewLRU(10, 100, 60*time.Second)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer pages.Close()

	pages.Set("page:/about", []byte("<h1>About</h1>"), 0)

	got, found := pages.Get("page:/about")
	if !found {
		t.Fatal("Expected to find cached page")
	}
	if string(got) != "<h1>About</h1>" {
		t.Errorf("Expected page body, got %s", got)
	}
	if _, found := pages.Get("page:/missing"); found {
		t.Error("Expected not to find missing page")
	}
}

func TestLRUCache_Expiration(t *testing.T) {
	pages, err := NewLRU(10, 100, time.Minute)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer pages.Close()

	now := time.Unix(1_700_000_000, 0)
	pages.now = func() time.Time { return now }

	pages.Set("page:/", []byte("home"), time.Second)
	if _, found := pages.Get("page:/"); !found {
		t.Fatal("Expected to find page immediately after set")
	}

	now = now.Add(1100 * time.Millisecond)
	if _, found := pages.Get("page:/"); found {
		t.Error("Expected page to be expired")
	}
}

func TestLRUCache_DeleteAndClear(t *testing.T) {
	pages, err := NewLRU(10, 100, 60*time.Second)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer pages.Close()

	pages.Set("a", []byte("1"), 0)
	pages.Set("b", []byte("2"), 0)

	pages.Delete("a")
	if _, found := pages.Get("a"); found {
		t.Error("Expected a to be deleted")
	}

	pages.Clear()
	if _, found := pages.Get("b"); found {
		t.Error("Expected b to be cleared")
	}
}

func TestLRUCache_StatsAndMetrics(t *testing.T) {
	pages, err := NewLRU(10, 100, 60*time.Second)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer pages.Close()

	pages.Set("page:/contact", []byte("contact"), 0)
	pages.Get("page:/contact")

	// ristretto updates counters asynchronously; only check the call path
	_ = pages.Stats()
	if err := pages.CollectMetrics(context.Background()); err != nil {
		t.Errorf("CollectMetrics returned %v", err)
	}
	if pages.MetricsName() != "page_cache" {
		t.Errorf("unexpected metrics name %q", pages.MetricsName())
	}
}
