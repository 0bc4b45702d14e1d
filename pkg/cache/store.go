package cache

import (
	"context"
	"time"
)

// DefaultTTL is how long successful responses stay valid when the
// caller does not choose a different ttl.
const DefaultTTL = 60 * time.Minute

// Store is a time-bounded key/value cache with single-flight
// population. Implementations must be safe for concurrent use.
type Store[V any] interface {
	// GetOrAdd returns the live value for key, or invokes fn to
	// produce it. While one fn call for a key is in flight, other
	// callers for the same key suspend and receive its result
	// instead of starting a second call. Errors from fn propagate
	// to every waiter and leave nothing cached.
	//
	// Waiters observe ctx: a canceled caller unblocks with ctx.Err()
	// even though the in-flight fn call may still complete for others.
	GetOrAdd(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) (V, error)) (V, error)
}
