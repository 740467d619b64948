package training

import (
	"math/rand"
)

// SliceLoader serves fully-materialized batches from memory. It is the
// in-process DataLoader used by tests and small datasets; a concurrent
// prefetching loader can replace it behind the same interface.
type SliceLoader struct {
	batches []Batch
	rng     *rand.Rand
}

// NewSliceLoader creates a loader over the given batches. A non-nil rng
// reshuffles the batch order on every pass; a nil rng keeps the order
// fixed, making iteration deterministic.
func NewSliceLoader(batches []Batch, rng *rand.Rand) *SliceLoader {
	return &SliceLoader{batches: batches, rng: rng}
}

// Batches yields every batch once, in shuffled order when an rng was
// provided.
func (l *SliceLoader) Batches() <-chan Batch {
	order := make([]int, len(l.batches))
	for i := range order {
		order[i] = i
	}
	if l.rng != nil {
		l.rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	ch := make(chan Batch)
	go func() {
		defer close(ch)
		for _, idx := range order {
			ch <- l.batches[idx]
		}
	}()
	return ch
}

// NumBatches returns the number of batches per pass.
func (l *SliceLoader) NumBatches() int {
	return len(l.batches)
}

// NumSamples returns the total sample count across all batches.
func (l *SliceLoader) NumSamples() int {
	n := 0
	for _, b := range l.batches {
		n += len(b.Targets)
	}
	return n
}
