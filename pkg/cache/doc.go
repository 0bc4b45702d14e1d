// Package cache provides a generic, time-bounded response cache with
// single-flight population.
//
// The Store interface has a single operation, GetOrAdd: return the live
// cached value for a key, or invoke the supplied factory exactly once
// to produce it. Concurrent callers for the same key share one factory
// invocation and receive its result, success or failure. Failures are
// never cached; the next GetOrAdd for that key starts a fresh attempt.
//
// Two implementations exist:
//
//   - Memory: process-local map with lazy expiry on access. Default.
//   - Redis: shared backend with native TTL expiry, for deployments
//     that run several proxy instances against one upstream.
//
// Both are safe for arbitrary concurrent use of a single instance.
package cache
