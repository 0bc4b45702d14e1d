// Package metrics provides the centralized Prometheus registry for the
// paged API client. All metrics are defined in their respective
// packages (client, cache, ratelimit, pagination) to maintain
// modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available
// metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the client.
// All metrics are automatically registered via promauto in their
// respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Dispatcher Metrics (pkg/client):
//   - paged_requests_total{status} (Counter): Dispatcher requests by final HTTP status
//   - paged_request_duration_seconds (Histogram): Request duration, gate and backoff waits included
//   - paged_upstream_fetches_total (Counter): Outbound requests actually issued (cache misses)
//   - paged_rate_limited_total (Counter): 429 responses received from the upstream
//
// Rate Limit Metrics (pkg/ratelimit):
//   - paged_backoff_activations_total (Counter): Times the shared backoff deadline was set
//   - paged_backoff_wait_seconds (Histogram): Time callers spent waiting on the window
//   - paged_requests_in_flight (Gauge): Requests currently holding a gate slot
//
// Cache Metrics (pkg/cache):
//   - paged_cache_hits_total{layer} (Counter): Cache hits by backend layer (memory, redis)
//   - paged_cache_misses_total (Counter): Cache misses
//   - paged_cache_shared_results_total (Counter): Single-flight waiters that shared a result
//   - paged_cache_errors_total{operation} (Counter): Cache backend errors
//
// Pagination Metrics (pkg/pagination):
//   - paged_pages_fetched_total (Counter): Pages fetched across all traversals
//   - paged_items_yielded_total (Counter): Items yielded across all traversals
//   - paged_malformed_pages_total (Counter): Page bodies that failed to decode
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(paged_cache_hits_total[5m])) /
//   (sum(rate(paged_cache_hits_total[5m])) + sum(rate(paged_cache_misses_total[5m])))
//
//   # Share of requests answered without an outbound fetch
//   1 - rate(paged_upstream_fetches_total[5m]) / rate(paged_requests_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(paged_request_duration_seconds_bucket[5m]))
//
//   # Backoff pressure
//   rate(paged_backoff_wait_seconds_sum[5m])
