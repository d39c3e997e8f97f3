package ratelimit

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate bounds how many Instagram resolutions run at once. Callers beyond
// capacity wait for a slot; nobody is turned away.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int64
	inFlight int64
	waiting  int64
}

// NewGate creates a gate with the given capacity (minimum 1)
func NewGate(capacity int) *Gate {
	if capacity < 1 {
		capacity = 1
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
	}
}

// Do waits for a slot, runs fn and releases the slot whatever fn returns.
// It only fails early when ctx is done before a slot frees up.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	atomic.AddInt64(&g.waiting, 1)
	err := g.sem.Acquire(ctx, 1)
	atomic.AddInt64(&g.waiting, -1)
	if err != nil {
		return err
	}

	atomic.AddInt64(&g.inFlight, 1)
	defer func() {
		atomic.AddInt64(&g.inFlight, -1)
		g.sem.Release(1)
	}()

	return fn(ctx)
}

// InFlight returns the number of resolutions holding a slot
func (g *Gate) InFlight() int64 { return atomic.LoadInt64(&g.inFlight) }

// Waiting returns the number of callers blocked on a slot
func (g *Gate) Waiting() int64 { return atomic.LoadInt64(&g.waiting) }

// Capacity returns the configured slot count
func (g *Gate) Capacity() int64 { return g.capacity }
