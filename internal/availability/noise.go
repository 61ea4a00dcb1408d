package availability

import (
	"math/rand"
	"sync"
)

// NoiseFilter thins an otherwise-free slot list to model real-world holds
// (walk-ins, unsynced calendars). The engine guarantees the three-slot floor
// regardless of what the filter returns.
type NoiseFilter func(free []string) []string

// NoNoise returns the slots unchanged. Use in tests and wherever
// deterministic availability is required.
func NoNoise(free []string) []string {
	return free
}

// RandomNoise drops each free slot with probability p using the provided
// source. Pass a seeded rand.Rand for reproducible behavior. The returned
// filter serializes access to rng, so a single filter may be shared across
// goroutines.
func RandomNoise(rng *rand.Rand, p float64) NoiseFilter {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	var mu sync.Mutex
	return func(free []string) []string {
		mu.Lock()
		defer mu.Unlock()
		kept := make([]string, 0, len(free))
		for _, slot := range free {
			if rng.Float64() >= p {
				kept = append(kept, slot)
			}
		}
		return kept
	}
}
