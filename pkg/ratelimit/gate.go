package ratelimit

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/semaphore"
)

var requestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "paged_requests_in_flight",
	Help: "Number of outbound requests currently holding a gate slot",
})

// Gate bounds the number of requests in flight across all callers of
// one dispatcher. Acquire suspends when all slots are taken and honors
// context cancellation; Release must be called exactly once per
// successful Acquire.
type Gate struct {
	sem *semaphore.Weighted
}

// NewGate creates a gate with the given capacity. A capacity of zero
// or less means unbounded: Acquire never blocks.
func NewGate(capacity int) *Gate {
	g := &Gate{}
	if capacity > 0 {
		g.sem = semaphore.NewWeighted(int64(capacity))
	}
	return g
}

// Acquire claims one slot, blocking until one is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	if g.sem == nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		requestsInFlight.Inc()
		return nil
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	requestsInFlight.Inc()
	return nil
}

// Release returns one slot to the gate.
func (g *Gate) Release() {
	requestsInFlight.Dec()
	if g.sem != nil {
		g.sem.Release(1)
	}
}
