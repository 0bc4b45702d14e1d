// Package ratelimit implements the shared backoff window and the bounded
// concurrency gate used by the dispatcher. The window holds a single
// deadline before which no caller may issue new requests; the gate caps
// how many requests are in flight at once.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for backoff window activity.
var (
	backoffActivationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paged_backoff_activations_total",
		Help: "Total number of times the shared backoff deadline was set",
	})

	backoffWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "paged_backoff_wait_seconds",
		Help:    "Time callers spent waiting on the shared backoff window",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
	})
)

// Window is a shared backoff deadline. All callers of one dispatcher
// share a single Window: when the upstream signals rate limiting, the
// deadline moves into the future and every caller waits it out before
// issuing new requests.
//
// The zero value is ready to use and starts with no active backoff.
type Window struct {
	mu       sync.Mutex
	deadline time.Time
}

// NewWindow creates a backoff window with no active deadline.
func NewWindow() *Window {
	return &Window{}
}

// SetRetryAfter moves the deadline to now + d. A later call replaces
// the deadline unconditionally, even when that shortens the remaining
// wait for callers already sleeping.
func (w *Window) SetRetryAfter(d time.Duration) {
	w.mu.Lock()
	w.deadline = time.Now().Add(d)
	w.mu.Unlock()

	backoffActivationsTotal.Inc()
}

// Deadline returns the current backoff deadline. The zero time means
// no backoff has ever been set.
func (w *Window) Deadline() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.deadline
}

// Active reports whether the deadline lies in the future.
func (w *Window) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return time.Now().Before(w.deadline)
}

// Wait blocks until the backoff deadline has passed or ctx is done.
// It sleeps on a timer rather than polling, and re-reads the deadline
// after each sleep because it may have moved while waiting. Returns
// ctx.Err() on cancellation, nil otherwise.
func (w *Window) Wait(ctx context.Context) error {
	start := time.Now()
	waited := false

	for {
		w.mu.Lock()
		remaining := time.Until(w.deadline)
		w.mu.Unlock()

		if remaining <= 0 {
			if waited {
				backoffWaitSeconds.Observe(time.Since(start).Seconds())
			}
			return ctx.Err()
		}

		waited = true
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
