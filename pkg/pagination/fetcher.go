package pagination

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/Sternrassler/paged-api-client/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for page traversal.
var (
	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paged_pages_fetched_total",
		Help: "Total pages fetched across all traversals",
	})

	itemsYieldedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paged_items_yielded_total",
		Help: "Total items yielded across all traversals",
	})

	malformedPagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paged_malformed_pages_total",
		Help: "Total page bodies that failed to decode and were treated as final empty pages",
	})
)

// PageSize is the fixed number of items requested per page.
const PageSize = 100

// Getter issues one rate-limited GET for a fully-built page URL.
// *client.Client satisfies it.
type Getter interface {
	Get(ctx context.Context, url string) (*client.Response, error)
}

// Envelope is the upstream page shape: the items of one page plus the
// continuation cursor for the next. A blank cursor means last page.
type Envelope[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor"`
}

// Fetcher traverses a paginated endpoint and exposes the items of all
// pages as one stream. The item type T is the caller's deserialization
// target for a single element of the items array.
type Fetcher[T any] struct {
	getter Getter
	logger zerolog.Logger
}

// NewFetcher creates a fetcher on top of the given dispatcher.
func NewFetcher[T any](getter Getter) *Fetcher[T] {
	return &Fetcher[T]{
		getter: getter,
		logger: log.With().Str("component", "pagination").Logger(),
	}
}

// FetchItems starts a traversal of endpoint and returns its item
// stream. The fetch of page one begins immediately; the first call to
// Next awaits it. The stream is single-pass: once exhausted or failed
// it stays that way, and a second traversal needs a new FetchItems
// call.
func (f *Fetcher[T]) FetchItems(ctx context.Context, endpoint string) *Stream[T] {
	s := &Stream[T]{
		ctx: ctx,
		fetch: func(ctx context.Context, cursor string) (Envelope[T], error) {
			return f.fetchPage(ctx, endpoint, cursor)
		},
	}
	s.pending = s.start("")
	return s
}

// fetchPage fetches and decodes a single page. Any non-success status
// from the dispatcher propagates; a body that does not decode is
// deliberately lenient and yields a final empty page instead of an
// error.
func (f *Fetcher[T]) fetchPage(ctx context.Context, endpoint, cursor string) (Envelope[T], error) {
	pageURL, err := buildPageURL(endpoint, cursor)
	if err != nil {
		return Envelope[T]{}, err
	}

	resp, err := f.getter.Get(ctx, pageURL)
	if err != nil {
		return Envelope[T]{}, err
	}
	pagesFetchedTotal.Inc()

	var env Envelope[T]
	if err := resp.Decode(&env); err != nil {
		malformedPagesTotal.Inc()
		f.logger.Warn().
			Err(err).
			Str("url", pageURL).
			Msg("Malformed page body - treating as final empty page")
		return Envelope[T]{}, nil
	}

	f.logger.Debug().
		Str("url", pageURL).
		Int("items", len(env.Items)).
		Bool("has_next", env.NextCursor != "").
		Msg("Page fetched")

	return env, nil
}

// buildPageURL appends the limit and cursor query parameters to the
// endpoint. url.Values encoding sorts keys, so equal logical requests
// always produce the same URL and therefore the same cache key.
func buildPageURL(endpoint, cursor string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}

	q := u.Query()
	q.Set("limit", strconv.Itoa(PageSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
