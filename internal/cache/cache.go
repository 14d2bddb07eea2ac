package cache

import "time"

// PageCache holds rendered output (HTML pages) as bytes. Unlike Store it
// is cost-bounded rather than key-bounded and may refuse an entry.
type PageCache interface {
	// Get returns the bytes stored under key if present and not expired.
	Get(key string) ([]byte, bool)

	// Set stores value under key for ttl. TTL of 0 means the cache default.
	Set(key string, value []byte, ttl time.Duration)

	Delete(key string)

	// Clear removes all values from the cache.
	Clear()

	Stats() PageStats
}

// PageStats represents page cache statistics.
type PageStats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	KeysAdded uint64 `json:"keysAdded"`
	Evictions uint64 `json:"evictions"`
	Size      int64  `json:"sizeBytes"` // approximate
	Items     int64  `json:"items"`
}
