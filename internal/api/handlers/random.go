package handlers

import (
	"math/rand/v2"
	"sync"
)

// Rand is a *rand.Rand safe for use by concurrent handlers.
type Rand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRand returns a generator seeded with seed. Equal seeds give equal
// sequences.
func NewRand(seed uint64) *Rand {
	return &Rand{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// With runs fn holding the generator.
func (r *Rand) With(fn func(*rand.Rand)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.rng)
}
