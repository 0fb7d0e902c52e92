// Package resource bounds the memory the server spends on concurrent
// generations. Work is measured in heightfield samples, which dominate
// both the heightfield and the mesh allocations.
package resource

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/opd-ai/go-perlin/pkg/logging"
)

// ErrOverBudget is returned for a request larger than the whole budget.
var ErrOverBudget = errors.New("request exceeds sample budget")

// ErrBusy is returned by TryAcquire when the budget is currently spent.
var ErrBusy = errors.New("sample budget exhausted")

// Budget is a weighted semaphore over samples.
type Budget struct {
	capacity int64
	sem      *semaphore.Weighted
	inFlight atomic.Int64
	waiting  atomic.Int64
	logger   *logging.Logger
}

// NewBudget creates a budget admitting up to capacity samples at once.
func NewBudget(capacity int64, logger *logging.Logger) *Budget {
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &Budget{
		capacity: capacity,
		sem:      semaphore.NewWeighted(capacity),
		logger:   logger,
	}
}

// Samples returns the work of a square domain of side samples.
func Samples(side int) int64 {
	return int64(side) * int64(side)
}

// Acquire blocks until n samples are available or ctx is done. The
// returned function releases them and must be called exactly once.
func (b *Budget) Acquire(ctx context.Context, n int64) (func(), error) {
	if n > b.capacity {
		return nil, fmt.Errorf("%w: %d > %d", ErrOverBudget, n, b.capacity)
	}

	b.waiting.Add(1)
	err := b.sem.Acquire(ctx, n)
	b.waiting.Add(-1)
	if err != nil {
		return nil, err
	}

	b.inFlight.Add(n)
	b.logger.Debug(ctx, "Sample budget acquired", "samples", n, "in_flight", b.inFlight.Load())
	return b.releaser(n), nil
}

// TryAcquire is Acquire without waiting.
func (b *Budget) TryAcquire(n int64) (func(), error) {
	if n > b.capacity {
		return nil, fmt.Errorf("%w: %d > %d", ErrOverBudget, n, b.capacity)
	}
	if !b.sem.TryAcquire(n) {
		return nil, ErrBusy
	}
	b.inFlight.Add(n)
	return b.releaser(n), nil
}

func (b *Budget) releaser(n int64) func() {
	var once atomic.Bool
	return func() {
		if once.Swap(true) {
			return
		}
		b.inFlight.Add(-n)
		b.sem.Release(n)
	}
}

// Stats is a point-in-time view of the budget.
type Stats struct {
	Capacity int64 `json:"capacity"`
	InFlight int64 `json:"in_flight"`
	Waiting  int64 `json:"waiting"`
}

// Stats returns current usage.
func (b *Budget) Stats() Stats {
	return Stats{
		Capacity: b.capacity,
		InFlight: b.inFlight.Load(),
		Waiting:  b.waiting.Load(),
	}
}
