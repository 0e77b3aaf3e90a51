package utils

import (
	"math/rand"
	"time"
)

// RandSource is a seedable random number generator. One instance is created
// per simulation run and injected into every component that makes stochastic
// choices, so a fixed seed reproduces the whole run.
type RandSource struct {
	rng *rand.Rand
}

// NewRandSource creates a new random source with the given seed.
// A seed of 0 derives the seed from the wall clock.
func NewRandSource(seed int64) *RandSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandSource{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Float64 returns a random float64 in [0.0, 1.0)
func (r *RandSource) Float64() float64 {
	return r.rng.Float64()
}

// Intn returns a random int in [0, n)
func (r *RandSource) Intn(n int) int {
	return r.rng.Intn(n)
}

// IntRange returns a random int in [min, max] inclusive
func (r *RandSource) IntRange(min, max int) int {
	if max <= min {
		return min
	}
	return min + r.rng.Intn(max-min+1)
}

// UniformFloat64 returns a uniformly distributed random number in [min, max)
func (r *RandSource) UniformFloat64(min, max float64) float64 {
	return min + r.rng.Float64()*(max-min)
}

// NormFloat64 returns a normally distributed random number with mean and stddev
func (r *RandSource) NormFloat64(mean, stddev float64) float64 {
	return r.rng.NormFloat64()*stddev + mean
}

// BernoulliBool returns true with probability p, false otherwise
func (r *RandSource) BernoulliBool(p float64) bool {
	return r.rng.Float64() < p
}

// Shuffle randomizes the order of n elements via swap
func (r *RandSource) Shuffle(n int, swap func(i, j int)) {
	r.rng.Shuffle(n, swap)
}

// WeightedIndex returns an index into weights, chosen with probability
// proportional to the weight at that index. A non-positive total falls
// back to a uniform draw.
func (r *RandSource) WeightedIndex(weights []float64) int {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return r.rng.Intn(len(weights))
	}
	target := r.rng.Float64() * total
	acc := 0.0
	for i, w := range weights {
		acc += w
		if target < acc {
			return i
		}
	}
	return len(weights) - 1
}

// Choice returns a uniformly chosen element of items.
// Panics if items is empty, matching slice-index semantics.
func Choice[T any](r *RandSource, items []T) T {
	return items[r.Intn(len(items))]
}

// Sample returns up to k distinct elements of items in random order.
// The input slice is not modified.
func Sample[T any](r *RandSource, items []T, k int) []T {
	out := make([]T, len(items))
	copy(out, items)
	r.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	if k < len(out) {
		out = out[:k]
	}
	return out
}
