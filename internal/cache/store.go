package cache

import (
	"container/list"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/soillink/soillink/internal/logger"
)

const (
	DefaultStoreTTL    = time.Hour
	DefaultCheckPeriod = 10 * time.Minute
	DefaultMaxKeys     = 1000
)

// Clock returns the current time. Tests inject a fake one.
type Clock func() time.Time

// StoreOptions configures a Store. Zero values select the defaults above;
// a negative CheckPeriod disables the background sweep.
type StoreOptions struct {
	Name        string
	DefaultTTL  time.Duration
	CheckPeriod time.Duration
	MaxKeys     int
	Clock       Clock
}

// StoreStats is a point-in-time copy of a store's counters.
type StoreStats struct {
	Keys        int    `json:"keys"`
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Sets        uint64 `json:"sets"`
	Deletes     uint64 `json:"deletes"`
	Expirations uint64 `json:"expirations"`
	Evictions   uint64 `json:"evictions"`
}

// HitRate returns hits/(hits+misses), or 0 before any lookup.
func (s StoreStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type entry struct {
	key       string
	value     any
	createdAt time.Time
	expiresAt time.Time
	elem      *list.Element
}

// Store is an in-process key/value container with per-entry TTL, a key
// capacity and hit/miss accounting.
//
// Expired entries are invisible to every read even before they are purged.
// They are removed lazily on access, by the background sweep every
// CheckPeriod, and before any capacity eviction.
//
// Eviction: when a new key arrives at MaxKeys, expired entries are purged
// first; if the store is still full the entry with the oldest insertion is
// dropped. Overwriting a key counts as a fresh insertion.
type Store struct {
	name       string
	defaultTTL time.Duration
	maxKeys    int
	now        Clock
	log        *slog.Logger

	mu    sync.Mutex
	items map[string]*entry
	order *list.List // front is the oldest insertion
	stats StoreStats

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewStore creates a store and, when CheckPeriod is positive, starts its sweep goroutine.
func NewStore(opts StoreOptions) *Store {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultStoreTTL
	}
	if opts.CheckPeriod == 0 {
		opts.CheckPeriod = DefaultCheckPeriod
	}
	if opts.MaxKeys <= 0 {
		opts.MaxKeys = DefaultMaxKeys
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Name == "" {
		opts.Name = "general"
	}

	s := &Store{
		name:       opts.Name,
		defaultTTL: opts.DefaultTTL,
		maxKeys:    opts.MaxKeys,
		now:        opts.Clock,
		log:        logger.WithComponent("cache").With("region", opts.Name),
		items:      make(map[string]*entry),
		order:      list.New(),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	if opts.CheckPeriod > 0 {
		go s.sweepLoop(opts.CheckPeriod)
	} else {
		close(s.done)
	}
	return s
}

// Name returns the region name given at construction.
func (s *Store) Name() string { return s.name }

// DefaultTTL returns the TTL applied when Set is called with ttl 0.
func (s *Store) DefaultTTL() time.Duration { return s.defaultTTL }

// Get returns the value stored under key. Missing, expired and empty keys
// report false and count as a miss.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key == "" {
		s.stats.Misses++
		return nil, false
	}
	e, ok := s.items[key]
	if !ok {
		s.stats.Misses++
		s.log.Debug("cache miss", "key", key)
		return nil, false
	}
	if !s.now().Before(e.expiresAt) {
		s.removeLocked(e)
		s.stats.Expirations++
		s.stats.Misses++
		s.log.Debug("cache miss", "key", key, "reason", "expired")
		return nil, false
	}
	s.stats.Hits++
	s.log.Debug("cache hit", "key", key)
	return e.value, true
}

// Set stores value under key for ttl (0 selects the store default).
// An empty key or a negative ttl is rejected. A new key in a full store
// evicts the oldest entry.
func (s *Store) Set(key string, value any, ttl time.Duration) bool {
	ok, _ := s.set(key, value, ttl, true)
	return ok
}

// setNoEvict is Set without eviction: a new key in a full store is
// refused and full reports true.
func (s *Store) setNoEvict(key string, value any, ttl time.Duration) (ok, full bool) {
	return s.set(key, value, ttl, false)
}

func (s *Store) set(key string, value any, ttl time.Duration, evict bool) (ok, full bool) {
	if key == "" || ttl < 0 {
		s.log.Warn("cache set rejected", "key", key, "ttl", ttl)
		return false, false
	}
	if ttl == 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if old, ok := s.items[key]; ok {
		s.removeLocked(old)
	} else if len(s.items) >= s.maxKeys {
		s.purgeExpiredLocked(now)
		if len(s.items) >= s.maxKeys {
			if !evict {
				return false, true
			}
			oldest := s.order.Front().Value.(*entry)
			s.removeLocked(oldest)
			s.stats.Evictions++
			s.log.Debug("cache evict", "key", oldest.key)
		}
	}

	e := &entry{key: key, value: value, createdAt: now, expiresAt: now.Add(ttl)}
	e.elem = s.order.PushBack(e)
	s.items[key] = e
	s.stats.Sets++
	s.log.Debug("cache set", "key", key, "ttl", ttl)
	return true, false
}

// Delete removes key and returns the number of live entries removed (0 or 1).
func (s *Store) Delete(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[key]
	if !ok {
		return 0
	}
	s.removeLocked(e)
	if !s.now().Before(e.expiresAt) {
		s.stats.Expirations++
		return 0
	}
	s.stats.Deletes++
	s.log.Debug("cache delete", "key", key)
	return 1
}

// Keys returns the non-expired keys in lexical order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	keys := make([]string, 0, len(s.items))
	for k, e := range s.items {
		if now.Before(e.expiresAt) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of non-expired entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked(s.now())
}

// FlushAll removes every entry. Counters keep their running totals.
func (s *Store) FlushAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*entry)
	s.order.Init()
}

// Sweep purges expired entries and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.purgeExpiredLocked(s.now())
	if n > 0 {
		s.log.Debug("cache sweep", "expired", n)
	}
	return n
}

// Stats returns the counters with the current live key count.
func (s *Store) Stats() StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Keys = s.liveLocked(s.now())
	return st
}

// ResetStats zeroes the counters.
func (s *Store) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = StoreStats{}
}

// Close stops the sweep goroutine. It is safe to call more than once.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Store) sweepLoop(period time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *Store) removeLocked(e *entry) {
	s.order.Remove(e.elem)
	delete(s.items, e.key)
}

// purgeExpiredLocked walks in insertion order; expiry times are not ordered
// because TTLs differ per entry, so the whole list is scanned.
func (s *Store) purgeExpiredLocked(now time.Time) int {
	n := 0
	for el := s.order.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*entry)
		if !now.Before(e.expiresAt) {
			s.removeLocked(e)
			s.stats.Expirations++
			n++
		}
		el = next
	}
	return n
}

func (s *Store) liveLocked(now time.Time) int {
	n := 0
	for _, e := range s.items {
		if now.Before(e.expiresAt) {
			n++
		}
	}
	return n
}
