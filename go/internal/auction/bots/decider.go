package bots

import (
	"math/rand"
	"sync"
	"time"
)

// Decider answers whether a bot bid should be attempted at a checkpoint.
// The scheduler only consults it when remaining matches a configured checkpoint.
type Decider func(remaining int) bool

// Checkpoint is a countdown value at which bots get a chance to bid.
type Checkpoint struct {
	Remaining   int     `yaml:"remaining"`
	Probability float64 `yaml:"probability"`
}

// DefaultCheckpoints bid late so bot-only auctions are not perfectly predictable.
func DefaultCheckpoints() []Checkpoint {
	return []Checkpoint{
		{Remaining: 4, Probability: 0.7},
		{Remaining: 2, Probability: 0.5},
	}
}

// NewCheckpointDecider fires with each checkpoint's probability and never elsewhere.
// A nil rng is seeded from the wall clock.
func NewCheckpointDecider(checkpoints []Checkpoint, rng *rand.Rand) Decider {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	byRemaining := make(map[int]float64, len(checkpoints))
	for _, cp := range checkpoints {
		byRemaining[cp.Remaining] = cp.Probability
	}

	var mu sync.Mutex // rand.Rand is not safe for concurrent use
	return func(remaining int) bool {
		p, ok := byRemaining[remaining]
		if !ok || p <= 0 {
			return false
		}
		mu.Lock()
		defer mu.Unlock()
		return rng.Float64() < p
	}
}

// Always approves every checkpoint.
func Always(int) bool { return true }

// Never rejects every checkpoint.
func Never(int) bool { return false }
