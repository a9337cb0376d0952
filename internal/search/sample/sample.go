// Package sample draws uniform random subsets without replacement.
package sample

import (
	"errors"
	"math/rand/v2"
	"sync"
	"time"
)

// ErrInsufficient is returned when the population is smaller than the
// requested sample.
var ErrInsufficient = errors.New("population smaller than sample size")

// Sampler is safe for concurrent use.
type Sampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Sampler seeded from the clock.
func New() *Sampler {
	now := uint64(time.Now().UnixNano())
	return NewWithSource(rand.NewPCG(now, now>>17|1))
}

// NewWithSource returns a Sampler over src; tests pass a fixed seed.
func NewWithSource(src rand.Source) *Sampler {
	return &Sampler{rng: rand.New(src)}
}

// Indices returns k distinct indices in [0, n) chosen uniformly, in draw
// order.
func (s *Sampler) Indices(n, k int) ([]int, error) {
	if k < 0 {
		return nil, errors.New("sample size must be >= 0")
	}
	if n < k {
		return nil, ErrInsufficient
	}
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < k; i++ {
		j := i + s.rng.IntN(n-i)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm[:k], nil
}

// Pick returns k distinct elements of items chosen uniformly without
// replacement.
func Pick[T any](s *Sampler, items []T, k int) ([]T, error) {
	idx, err := s.Indices(len(items), k)
	if err != nil {
		return nil, err
	}
	out := make([]T, k)
	for i, j := range idx {
		out[i] = items[j]
	}
	return out, nil
}
