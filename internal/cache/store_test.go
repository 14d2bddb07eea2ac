package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock shared by the tests in this package.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T, maxKeys int, clock *fakeClock) *Store {
	t.Helper()
	s := NewStore(StoreOptions{Name: "test", MaxKeys: maxKeys, CheckPeriod: -1, Clock: clock.Now})
	t.Cleanup(s.Close)
	return s
}

func TestStore_TTLExpiry(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, 10, clock)

	if !s.Set("k", "v", time.Second) {
		t.Fatal("Set returned false")
	}
	if v, ok := s.Get("k"); !ok || v != "v" {
		t.Fatalf("expected hit before expiry, got %v %v", v, ok)
	}
	if st := s.Stats(); st.Hits != 1 || st.Misses != 0 {
		t.Fatalf("expected 1 hit 0 misses, got %+v", st)
	}

	clock.Advance(1100 * time.Millisecond)
	if _, ok := s.Get("k"); ok {
		t.Fatal("expected miss after expiry")
	}
	st := s.Stats()
	if st.Hits != 1 || st.Misses != 1 {
		t.Fatalf("expected 1 hit 1 miss, got %+v", st)
	}
	if st.Expirations != 1 {
		t.Fatalf("expected 1 expiration, got %d", st.Expirations)
	}
}

func TestStore_ExpiredEntryHiddenBeforeSweep(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, 10, clock)

	s.Set("a", 1, time.Second)
	s.Set("b", 2, time.Hour)
	clock.Advance(2 * time.Second)

	keys := s.Keys()
	if len(keys) != 1 || keys[0] != "b" {
		t.Fatalf("expected only b, got %v", keys)
	}
	if s.Len() != 1 {
		t.Fatalf("expected Len 1, got %d", s.Len())
	}
	if n := s.Sweep(); n != 1 {
		t.Fatalf("expected sweep to purge 1, got %d", n)
	}
	if n := s.Sweep(); n != 0 {
		t.Fatalf("expected second sweep to purge 0, got %d", n)
	}
}

func TestStore_DefaultTTL(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(StoreOptions{DefaultTTL: time.Minute, CheckPeriod: -1, Clock: clock.Now})
	defer s.Close()

	s.Set("k", "v", 0)
	clock.Advance(59 * time.Second)
	if _, ok := s.Get("k"); !ok {
		t.Fatal("expected hit inside default TTL")
	}
	clock.Advance(time.Second)
	if _, ok := s.Get("k"); ok {
		t.Fatal("expected miss at default TTL")
	}
}

func TestStore_CapacityBound(t *testing.T) {
	clock := newFakeClock()
	const n = 5
	s := newTestStore(t, n, clock)

	for i := 0; i <= n; i++ {
		if !s.Set(fmt.Sprintf("k%d", i), i, 0) {
			t.Fatalf("Set k%d returned false", i)
		}
	}

	retrievable := 0
	for i := 0; i <= n; i++ {
		if _, ok := s.Get(fmt.Sprintf("k%d", i)); ok {
			retrievable++
		}
	}
	if retrievable != n {
		t.Fatalf("expected %d retrievable keys, got %d", n, retrievable)
	}
	if _, ok := s.Get("k0"); ok {
		t.Fatal("expected oldest key k0 to be evicted")
	}
	if _, ok := s.Get(fmt.Sprintf("k%d", n)); !ok {
		t.Fatal("expected newest key to be stored")
	}
	if st := s.Stats(); st.Evictions != 1 {
		t.Fatalf("expected 1 eviction, got %d", st.Evictions)
	}
}

func TestStore_CapacityPrefersExpired(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, 3, clock)

	s.Set("old", 1, time.Hour)
	s.Set("short", 2, time.Second)
	s.Set("mid", 3, time.Hour)
	clock.Advance(2 * time.Second)

	s.Set("new", 4, time.Hour)
	for _, k := range []string{"old", "mid", "new"} {
		if _, ok := s.Get(k); !ok {
			t.Errorf("expected %s to survive", k)
		}
	}
	st := s.Stats()
	if st.Evictions != 0 || st.Expirations != 1 {
		t.Fatalf("expected expired entry purged instead of eviction, got %+v", st)
	}
}

func TestStore_OverwriteRefreshesInsertionOrder(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, 2, clock)

	s.Set("a", 1, 0)
	s.Set("b", 2, 0)
	s.Set("a", 10, 0) // a is now the newest insertion
	s.Set("c", 3, 0)  // evicts b

	if v, ok := s.Get("a"); !ok || v != 10 {
		t.Fatalf("expected a=10, got %v %v", v, ok)
	}
	if _, ok := s.Get("b"); ok {
		t.Fatal("expected b to be evicted")
	}
}

func TestStore_LastWriteWins(t *testing.T) {
	s := newTestStore(t, 10, newFakeClock())
	s.Set("k", "v1", 0)
	s.Set("k", "v2", 0)
	if v, _ := s.Get("k"); v != "v2" {
		t.Fatalf("expected v2, got %v", v)
	}
}

func TestStore_RejectsBadInput(t *testing.T) {
	s := newTestStore(t, 10, newFakeClock())

	if s.Set("", "v", 0) {
		t.Error("expected empty key to be rejected")
	}
	if s.Set("k", "v", -time.Second) {
		t.Error("expected negative ttl to be rejected")
	}
	if _, ok := s.Get(""); ok {
		t.Error("expected empty key lookup to miss")
	}
	if s.Delete("") != 0 {
		t.Error("expected empty key delete to remove nothing")
	}
	if st := s.Stats(); st.Sets != 0 || st.Misses != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t, 10, newFakeClock())
	s.Set("k", 1, 0)

	if n := s.Delete("k"); n != 1 {
		t.Fatalf("expected 1 removed, got %d", n)
	}
	if n := s.Delete("k"); n != 0 {
		t.Fatalf("expected 0 removed, got %d", n)
	}
	if st := s.Stats(); st.Deletes != 1 {
		t.Fatalf("expected 1 delete, got %d", st.Deletes)
	}
}

func TestStore_FlushKeepsStats(t *testing.T) {
	s := newTestStore(t, 10, newFakeClock())
	s.Set("a", 1, 0)
	s.Get("a")
	s.Get("b")

	s.FlushAll()
	s.FlushAll()

	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d", s.Len())
	}
	st := s.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.Sets != 1 {
		t.Fatalf("expected counters to survive flush, got %+v", st)
	}

	s.ResetStats()
	if st := s.Stats(); st.Hits != 0 || st.Misses != 0 {
		t.Fatalf("expected zero counters after reset, got %+v", st)
	}
}

func TestStoreStats_HitRate(t *testing.T) {
	if r := (StoreStats{}).HitRate(); r != 0 {
		t.Fatalf("expected 0 with no traffic, got %v", r)
	}
	if r := (StoreStats{Hits: 3, Misses: 1}).HitRate(); r != 0.75 {
		t.Fatalf("expected 0.75, got %v", r)
	}
}

func TestStore_BackgroundSweep(t *testing.T) {
	s := NewStore(StoreOptions{CheckPeriod: 10 * time.Millisecond})
	defer s.Close()

	s.Set("k", "v", 20*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Stats().Expirations == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected background sweep to purge the entry")
}

func TestStore_CloseIsIdempotent(t *testing.T) {
	s := NewStore(StoreOptions{CheckPeriod: time.Minute})
	s.Close()
	s.Close()
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore(StoreOptions{MaxKeys: 50, CheckPeriod: time.Millisecond})
	defer s.Close()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g*200+i)%80)
				s.Set(key, i, time.Millisecond*time.Duration(i%5+1))
				s.Get(key)
				if i%7 == 0 {
					s.Delete(key)
				}
				_ = s.Keys()
			}
		}(g)
	}
	wg.Wait()

	if s.Len() > 50 {
		t.Fatalf("capacity exceeded: %d", s.Len())
	}
}
