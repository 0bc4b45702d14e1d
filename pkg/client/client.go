// Package client provides the rate-limited HTTP dispatcher: read-only
// fetches through a bounded concurrency gate, a shared backoff window
// driven by upstream 429 responses, and response caching keyed by the
// exact request URL.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/paged-api-client/pkg/cache"
	"github.com/Sternrassler/paged-api-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for dispatcher operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paged_requests_total",
		Help: "Total dispatcher requests by final HTTP status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "paged_request_duration_seconds",
		Help:    "Dispatcher request duration in seconds, gate and backoff waits included",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
	})

	upstreamFetchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paged_upstream_fetches_total",
		Help: "Total outbound HTTP requests actually issued (cache misses)",
	})

	rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paged_rate_limited_total",
		Help: "Total 429 responses received from the upstream",
	})
)

// Response is a successful upstream response. It is what the cache
// stores, so it carries no live connection state and marshals cleanly
// to JSON for the Redis backend.
type Response struct {
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Config holds the dispatcher configuration.
type Config struct {
	// HTTPClient performs the actual requests (default: 30s timeout).
	HTTPClient *http.Client

	// Cache stores successful responses (default: in-memory store).
	Cache cache.Store[*Response]

	// MaxConcurrency caps simultaneous outbound requests across all
	// callers of this dispatcher. Zero means unbounded.
	MaxConcurrency int

	// CacheTTL is how long successful responses stay cached.
	CacheTTL time.Duration

	// DefaultRetryAfter is the backoff applied to a 429 response
	// that carries no Retry-After header.
	DefaultRetryAfter time.Duration

	// UserAgent is sent on every request.
	UserAgent string
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:    5,
		CacheTTL:          cache.DefaultTTL,
		DefaultRetryAfter: 60 * time.Second,
		UserAgent:         "paged-api-client/0.1.0",
	}
}

// Client is the rate-limited dispatcher. One instance is meant to be
// shared by all fetchers talking to the same upstream; the gate, the
// backoff window and the cache coordinate across every caller.
type Client struct {
	httpClient *http.Client
	cache      cache.Store[*Response]
	gate       *ratelimit.Gate
	window     *ratelimit.Window
	config     Config
	logger     zerolog.Logger
}

// New creates a dispatcher from cfg, filling in defaults for zero
// fields.
func New(cfg Config) (*Client, error) {
	if cfg.MaxConcurrency < 0 {
		return nil, fmt.Errorf("max_concurrency must be >= 0 (got %d)", cfg.MaxConcurrency)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewMemory[*Response]()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.DefaultTTL
	}
	if cfg.DefaultRetryAfter <= 0 {
		cfg.DefaultRetryAfter = 60 * time.Second
	}

	logger := log.With().Str("component", "dispatcher").Logger()

	return &Client{
		httpClient: cfg.HTTPClient,
		cache:      cfg.Cache,
		gate:       ratelimit.NewGate(cfg.MaxConcurrency),
		window:     ratelimit.NewWindow(),
		config:     cfg,
		logger:     logger,
	}, nil
}

// Get fetches url, suspending as needed on the concurrency gate, the
// shared backoff window and single-flight cache population. 429
// responses are handled internally: they move the backoff deadline for
// every caller and the request is retried once the window passes,
// without giving up the gate slot in between. Any other non-success
// status returns a *StatusError. Cancellation surfaces as ctx.Err().
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	start := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(start).Seconds())
	}()

	if err := c.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.gate.Release()

	for {
		// The backoff wait sits inside the cache factory: a cached URL
		// is served instantly even while the window is active, and an
		// actual fetch waits the window out first.
		resp, err := c.cache.GetOrAdd(ctx, url, c.config.CacheTTL, func(ctx context.Context) (*Response, error) {
			if err := c.window.Wait(ctx); err != nil {
				return nil, err
			}
			return c.fetch(ctx, url)
		})
		if err != nil {
			var rle *rateLimitedError
			if errors.As(err, &rle) {
				c.logger.Warn().
					Str("url", url).
					Dur("retry_after", rle.retryAfter).
					Msg("Upstream rate limited - pausing all callers")
				c.window.SetRetryAfter(rle.retryAfter)
				continue
			}

			var se *StatusError
			if errors.As(err, &se) {
				requestsTotal.WithLabelValues(strconv.Itoa(se.StatusCode)).Inc()
				c.logger.Warn().
					Str("url", url).
					Int("status", se.StatusCode).
					Msg("Upstream request failed")
			}
			return nil, err
		}

		requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
		return resp, nil
	}
}

// fetch performs one outbound GET. Only 2xx responses produce a value
// for the cache; everything else is an error and stays uncached.
func (c *Client) fetch(ctx context.Context, url string) (*Response, error) {
	upstreamFetchesTotal.Inc()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("url", url).Msg("Executing upstream request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		rateLimitedTotal.Inc()
		return nil, &rateLimitedError{
			retryAfter: parseRetryAfter(resp.Header, c.config.DefaultRetryAfter),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       body,
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}

// BackoffDeadline exposes the shared backoff deadline, mainly for
// operational introspection (the proxy reports it on /health).
func (c *Client) BackoffDeadline() time.Time {
	return c.window.Deadline()
}
