package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soillink/soillink/internal/soil"
)

// MemoryStore keeps everything in process memory. It backs development
// runs without DATABASE_URL and the handler tests.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]User
	byEmail map[string]string
	samples map[string]soil.Sample
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]User),
		byEmail: make(map[string]string),
		samples: make(map[string]soil.Sample),
		now:     time.Now,
	}
}

func (m *MemoryStore) CreateUser(ctx context.Context, u User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u.Email = NormalizeEmail(u.Email)
	if _, ok := m.byEmail[u.Email]; ok {
		return User{}, ErrDuplicateEmail
	}
	u.ID = uuid.NewString()
	if u.Role == "" {
		u.Role = RoleUser
	}
	u.CreatedAt = m.now().UTC()
	m.users[u.ID] = u
	m.byEmail[u.Email] = u.ID
	return u, nil
}

func (m *MemoryStore) UserByEmail(ctx context.Context, email string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[NormalizeEmail(email)]
	if !ok {
		return User{}, ErrNotFound
	}
	return m.users[id], nil
}

func (m *MemoryStore) UserByID(ctx context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *MemoryStore) CreateSample(ctx context.Context, s soil.Sample) (soil.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[s.UserID]; !ok {
		return soil.Sample{}, ErrNotFound
	}
	s.ID = uuid.NewString()
	if s.Status == "" {
		s.Status = soil.StatusCompleted
	}
	if s.SubmittedAt.IsZero() {
		s.SubmittedAt = m.now()
	}
	s.SubmittedAt = s.SubmittedAt.UTC()
	m.samples[s.ID] = s
	return s, nil
}

func (m *MemoryStore) SampleByID(ctx context.Context, userID, id string) (soil.Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.samples[id]
	if !ok || s.UserID != userID {
		return soil.Sample{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) ListSamples(ctx context.Context, userID string, limit int) ([]soil.Sample, error) {
	m.mu.RLock()
	out := []soil.Sample{}
	for _, s := range m.samples {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b soil.Sample) int {
		if c := b.SubmittedAt.Compare(a.SubmittedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) CountSamples(ctx context.Context, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.samples {
		if s.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Totals(ctx context.Context) (int, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), len(m.samples), nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (m *MemoryStore) Close() error { return nil }
