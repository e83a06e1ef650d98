package gate

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/use-agent/pricescout/models"
)

// Gate bounds the number of simultaneous scrape operations. It is a thin
// wrapper over a weighted semaphore; FIFO fairness is deliberately not
// promised, task latency dominates over ordering.
type Gate struct {
	sem        *semaphore.Weighted
	capacity   int
	waitBudget time.Duration
	inUse      atomic.Int32
}

// Ticket is a lease on one admission slot. Release is safe to call more
// than once; only the first call returns the slot.
type Ticket struct {
	gate     *Gate
	released atomic.Bool
}

// New creates a Gate admitting at most capacity concurrent holders.
// Callers waiting longer than waitBudget fail with AdmissionTimeout.
func New(capacity int, waitBudget time.Duration) *Gate {
	return &Gate{
		sem:        semaphore.NewWeighted(int64(capacity)),
		capacity:   capacity,
		waitBudget: waitBudget,
	}
}

// Acquire blocks until a slot is free, the wait budget elapses, or ctx is
// canceled. On success the returned Ticket must be released exactly once,
// typically via defer.
func (g *Gate) Acquire(ctx context.Context) (*Ticket, error) {
	waitCtx, cancel := context.WithTimeout(ctx, g.waitBudget)
	defer cancel()

	if err := g.sem.Acquire(waitCtx, 1); err != nil {
		// The caller's own context ending is reported the same way: the
		// request is no longer willing to wait for admission.
		return nil, models.NewScrapeError(
			models.ErrCodeAdmissionTimeout,
			"admission gate saturated beyond wait budget",
			err,
		)
	}

	g.inUse.Add(1)
	return &Ticket{gate: g}, nil
}

// Release returns the slot held by t. Calls after the first are no-ops.
func (t *Ticket) Release() {
	if t == nil || !t.released.CompareAndSwap(false, true) {
		return
	}
	t.gate.inUse.Add(-1)
	t.gate.sem.Release(1)
}

// With runs fn while holding an admission slot, releasing it on every exit
// path including panics.
func (g *Gate) With(ctx context.Context, fn func(ctx context.Context) error) error {
	ticket, err := g.Acquire(ctx)
	if err != nil {
		return err
	}
	defer ticket.Release()
	return fn(ctx)
}

// Stats returns a snapshot of the gate's current state.
func (g *Gate) Stats() models.GateStats {
	inUse := int(g.inUse.Load())
	if inUse > g.capacity {
		// Only reachable through a release accounting bug; log loudly
		// rather than publish an impossible figure.
		slog.Error("gate accounting exceeded capacity", "inUse", inUse, "capacity", g.capacity)
		inUse = g.capacity
	}
	return models.GateStats{
		Capacity: g.capacity,
		InUse:    inUse,
	}
}

// Capacity returns the configured slot count.
func (g *Gate) Capacity() int {
	return g.capacity
}
