package rng

import (
	"math/rand"
	"sync"
	"time"
)

// Source abstracts the randomness used by the engine and generator so
// tests can supply deterministic sequences.
type Source interface {
	// Float64 returns a uniform sample in [0, 1).
	Float64() float64
	// Intn returns a uniform sample in [0, n). Panics if n <= 0.
	Intn(n int) int
}

// locked wraps a rand.Rand with a mutex so a single Source can be
// shared across polling goroutines.
type locked struct {
	mu sync.Mutex
	r  *rand.Rand
}

// New creates a time-seeded Source safe for concurrent use.
func New() Source {
	return NewSeeded(time.Now().UnixNano())
}

// NewSeeded creates a Source with a fixed seed.
func NewSeeded(seed int64) Source {
	return &locked{r: rand.New(rand.NewSource(seed))}
}

func (l *locked) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *locked) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

// WeightedIndex picks an index proportionally to weights. It returns
// the last index when rounding leaves the sample unconsumed, and -1
// for an empty slice.
func WeightedIndex(src Source, weights []float64) int {
	if len(weights) == 0 {
		return -1
	}
	var total float64
	for _, w := range weights {
		total += w
	}
	sample := src.Float64() * total
	for i, w := range weights {
		sample -= w
		if sample <= 0 {
			return i
		}
	}
	return len(weights) - 1
}
