package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/soillink/soillink/internal/metrics"
)

var (
	// ErrNotFound is returned when no live session exists for an id.
	ErrNotFound = errors.New("session not found")
	// ErrStoreWrite is returned when the backing cache refuses a write.
	ErrStoreWrite = errors.New("session store write failed")
)

// Store persists session records by id.
type Store interface {
	Get(ctx context.Context, id string) (*Record, error)
	Save(ctx context.Context, rec *Record) error
	Destroy(ctx context.Context, id string) error
	// Regenerate moves rec under a fresh id, removes the old entry and
	// returns the new id. rec.ID is updated in place.
	Regenerate(ctx context.Context, rec *Record) (string, error)
}

// SessionCache is the part of cache.Manager the session store uses.
type SessionCache interface {
	GetSession(sessionID string) (any, bool)
	SetSession(sessionID string, data any, ttl time.Duration) bool
	ClearSession(sessionID string) int
}

// CacheStore keeps sessions in the session region of the cache manager.
// Every Save refreshes the entry's lifetime to ttl.
type CacheStore struct {
	cache SessionCache
	ttl   time.Duration
	newID func() (string, error)
}

// NewCacheStore returns a store writing entries with the given lifetime.
func NewCacheStore(c SessionCache, ttl time.Duration) *CacheStore {
	return &CacheStore{cache: c, ttl: ttl, newID: NewID}
}

// NewID returns 32 random bytes, hex encoded.
func NewID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (s *CacheStore) Get(ctx context.Context, id string) (*Record, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	v, ok := s.cache.GetSession(id)
	if !ok {
		return nil, ErrNotFound
	}
	rec, ok := v.(*Record)
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *CacheStore) Save(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("save session: %w", ErrStoreWrite)
	}
	if !s.cache.SetSession(rec.ID, rec.Clone(), s.ttl) {
		metrics.SessionStoreErrors.WithLabelValues("save").Inc()
		return fmt.Errorf("save session: %w", ErrStoreWrite)
	}
	return nil
}

func (s *CacheStore) Destroy(ctx context.Context, id string) error {
	if s.cache.ClearSession(id) == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *CacheStore) Regenerate(ctx context.Context, rec *Record) (string, error) {
	newID, err := s.newID()
	if err != nil {
		metrics.SessionStoreErrors.WithLabelValues("regenerate").Inc()
		return "", err
	}
	oldID := rec.ID
	next := rec.Clone()
	next.ID = newID
	if !s.cache.SetSession(newID, next, s.ttl) {
		metrics.SessionStoreErrors.WithLabelValues("regenerate").Inc()
		return "", fmt.Errorf("regenerate session: %w", ErrStoreWrite)
	}
	s.cache.ClearSession(oldID)
	rec.ID = newID
	return newID, nil
}
