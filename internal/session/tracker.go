package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/soillink/soillink/internal/metrics"
)

const (
	DefaultMaxSessions     = 3
	DefaultTrackerCapacity = 10000
)

// Tracker remembers, per user, the ids of their live sessions in the order
// they were first seen. Users themselves are held in an LRU so the tracker
// stays bounded; the least recently active user is forgotten first.
type Tracker struct {
	mu          sync.Mutex
	users       *lru.Cache
	maxSessions int
}

// NewTracker returns a tracker keeping up to maxSessions ids for each of
// up to capacity users.
func NewTracker(maxSessions, capacity int) (*Tracker, error) {
	if maxSessions < 1 {
		maxSessions = 1
	}
	if capacity < 1 {
		capacity = DefaultTrackerCapacity
	}
	users, err := lru.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("create session tracker: %w", err)
	}
	return &Tracker{users: users, maxSessions: maxSessions}, nil
}

// MaxSessions returns the per-user bound.
func (t *Tracker) MaxSessions() int { return t.maxSessions }

// Track records sessionID for userID and returns the ids dropped to stay
// within the bound, oldest first. Tracking a known id changes nothing.
func (t *Tracker) Track(userID, sessionID string) []string {
	if userID == "" || sessionID == "" {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := t.sessions(userID)
	if slices.Contains(ids, sessionID) {
		return nil
	}
	ids = append(ids, sessionID)
	var evicted []string
	if over := len(ids) - t.maxSessions; over > 0 {
		evicted = slices.Clone(ids[:over])
		ids = ids[over:]
	}
	t.users.Add(userID, ids)
	return evicted
}

// Replace swaps oldID for newID keeping its position.
func (t *Tracker) Replace(userID, oldID, newID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := t.sessions(userID)
	if i := slices.Index(ids, oldID); i >= 0 {
		ids[i] = newID
		t.users.Add(userID, ids)
	}
}

// Remove forgets sessionID.
func (t *Tracker) Remove(userID, sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(userID, sessionID)
}

func (t *Tracker) removeLocked(userID, sessionID string) {
	ids := t.sessions(userID)
	i := slices.Index(ids, sessionID)
	if i < 0 {
		return
	}
	ids = slices.Delete(ids, i, i+1)
	if len(ids) == 0 {
		t.users.Remove(userID)
		return
	}
	t.users.Add(userID, ids)
}

// Sessions returns a copy of the ids tracked for userID.
func (t *Tracker) Sessions(userID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.users.Peek(userID)
	if !ok {
		return nil
	}
	return slices.Clone(v.([]string))
}

// Users returns the number of tracked users.
func (t *Tracker) Users() int { return t.users.Len() }

// Prune drops ids whose session no longer exists in store and returns how
// many were removed.
func (t *Tracker) Prune(ctx context.Context, store Store) (int, error) {
	type entry struct{ user, id string }
	var candidates []entry

	t.mu.Lock()
	for _, k := range t.users.Keys() {
		user := k.(string)
		v, ok := t.users.Peek(user)
		if !ok {
			continue
		}
		for _, id := range v.([]string) {
			candidates = append(candidates, entry{user, id})
		}
	}
	t.mu.Unlock()

	removed := 0
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		_, err := store.Get(ctx, c.id)
		if errors.Is(err, ErrNotFound) {
			t.Remove(c.user, c.id)
			removed++
		}
	}
	return removed, nil
}

// sessions returns a private copy of the user's ids; callers hold mu.
// Get marks the user as recently active.
func (t *Tracker) sessions(userID string) []string {
	v, ok := t.users.Get(userID)
	if !ok {
		return nil
	}
	return slices.Clone(v.([]string))
}

// MetricsName implements metrics.Source.
func (t *Tracker) MetricsName() string { return "session_tracker" }

// CollectMetrics publishes the tracked user count.
func (t *Tracker) CollectMetrics(ctx context.Context) error {
	metrics.SessionTrackedUsers.Set(float64(t.Users()))
	return nil
}
