package telemetry

import (
	"math/rand"
	"sync"
)

// RandomSource returns uniform values in [0, 1).
type RandomSource func() float64

// NewRandomSource returns a seeded source safe for concurrent use.
func NewRandomSource(seed int64) RandomSource {
	var mu sync.Mutex
	r := rand.New(rand.NewSource(seed))
	return func() float64 {
		mu.Lock()
		defer mu.Unlock()
		return r.Float64()
	}
}

// Delta turns a uniform sample into a symmetric step of amplitude scale.
func Delta(sample, scale float64) float64 {
	return (sample - 0.5) * scale
}

// Step applies delta to value and pins the result to r.
func Step(value, delta float64, r Range) float64 {
	return r.Clamp(value + delta)
}
