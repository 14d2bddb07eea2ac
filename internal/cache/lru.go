package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/soillink/soillink/internal/metrics"
)

// pageMetricsLabel is the endpoint label the page cache reports under.
const pageMetricsLabel = "pages"

// LRUCache is a cost-bounded page cache on top of ristretto. Entry cost is
// the byte length of the page.
type LRUCache struct {
	cache      *ristretto.Cache
	defaultTTL time.Duration
	now        Clock
}

type pageItem struct {
	data      []byte
	expiresAt time.Time
}

// NewLRU creates a page cache holding at most maxSizeMB megabytes and
// roughly maxEntries pages.
func NewLRU(maxSizeMB int64, maxEntries int64, defaultTTL time.Duration) (*LRUCache, error) {
	// NumCounters should be ~10x the number of entries
	numCounters := maxEntries * 10
	if numCounters < 1000 {
		numCounters = 1000
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 1
	}

	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxSizeMB * 1024 * 1024,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}

	return &LRUCache{cache: rc, defaultTTL: defaultTTL, now: time.Now}, nil
}

// Get returns a page that has not expired.
func (c *LRUCache) Get(key string) ([]byte, bool) {
	val, found := c.cache.Get(key)
	if !found {
		metrics.APICacheMisses.WithLabelValues(pageMetricsLabel).Inc()
		return nil, false
	}

	item, ok := val.(*pageItem)
	if !ok || !c.now().Before(item.expiresAt) {
		c.cache.Del(key)
		metrics.APICacheMisses.WithLabelValues(pageMetricsLabel).Inc()
		return nil, false
	}

	metrics.APICacheHits.WithLabelValues(pageMetricsLabel).Inc()
	return item.data, true
}

// Set stores a page. Ristretto may reject it under cost pressure; a
// rejected page is simply rendered again on the next request.
func (c *LRUCache) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	item := &pageItem{data: value, expiresAt: c.now().Add(ttl)}
	_ = c.cache.Set(key, item, int64(len(value)))
	// Wait for value to pass through buffers
	c.cache.Wait()
}

// Delete drops one page.
func (c *LRUCache) Delete(key string) {
	c.cache.Del(key)
}

// Clear drops every cached page.
func (c *LRUCache) Clear() {
	c.cache.Clear()
}

// Stats reports ristretto counters for the page cache.
func (c *LRUCache) Stats() PageStats {
	m := c.cache.Metrics
	return PageStats{
		Hits:      m.Hits(),
		Misses:    m.Misses(),
		KeysAdded: m.KeysAdded(),
		Evictions: m.KeysEvicted(),
		Size:      int64(m.CostAdded() - m.CostEvicted()),
		Items:     int64(m.KeysAdded() - m.KeysEvicted()),
	}
}

// MetricsName implements metrics.Source.
func (c *LRUCache) MetricsName() string { return "page_cache" }

// CollectMetrics publishes the page cache size gauges.
func (c *LRUCache) CollectMetrics(ctx context.Context) error {
	st := c.Stats()
	metrics.APICacheItems.WithLabelValues(pageMetricsLabel).Set(float64(st.Items))
	metrics.APICacheSize.WithLabelValues(pageMetricsLabel).Set(float64(st.Size))
	return nil
}

// Close closes the cache and releases resources.
func (c *LRUCache) Close() {
	c.cache.Close()
}

var _ PageCache = (*LRUCache)(nil)
