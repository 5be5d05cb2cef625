// Package simulation implements the stochastic market model: macro regime,
// daily scripts, intraday ticks, the market maker and trade-flow pressure.
package simulation

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Rand is a goroutine-safe random source. A fixed seed replays the same
// sequence of draws.
type Rand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRand creates a source seeded with seed, or from the clock when seed is 0.
func NewRand(seed int64) *Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Rand{r: rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))}
}

// Float64 returns a value in [0, 1).
func (r *Rand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.Float64()
}

// Uniform returns a value in [lo, hi).
func (r *Rand) Uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*r.Float64()
}

// Normal returns a normally distributed value with the given mean and stddev.
func (r *Rand) Normal(mean, stddev float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return mean + stddev*r.r.NormFloat64()
}

// IntRange returns an integer in [lo, hi].
func (r *Rand) IntRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo + r.r.IntN(hi-lo+1)
}

// Chance reports true with probability p.
func (r *Rand) Chance(p float64) bool {
	return r.Float64() < p
}

// Weighted returns an index drawn in proportion to weights. Non-positive
// weights are never chosen unless all weights are non-positive.
func (r *Rand) Weighted(weights []float64) int {
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return r.IntRange(0, len(weights)-1)
	}
	x := r.Float64() * total
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		if x < w {
			return i
		}
		x -= w
	}
	for i := len(weights) - 1; i >= 0; i-- {
		if weights[i] > 0 {
			return i
		}
	}
	return 0
}
