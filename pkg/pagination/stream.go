package pagination

import (
	"context"
)

// pageResult carries one finished page fetch from its goroutine to the
// consumer.
type pageResult[T any] struct {
	page Envelope[T]
	err  error
}

// Stream is a single-pass pull iterator over the items of a paginated
// endpoint, in page and cursor order. It follows the sql.Rows shape:
//
//	for stream.Next() {
//	    use(stream.Item())
//	}
//	err := stream.Err()
//
// A Stream is not safe for concurrent use; it belongs to one consuming
// goroutine. The page fetches it triggers go through the shared
// dispatcher and coordinate with every other caller there.
type Stream[T any] struct {
	ctx   context.Context
	fetch func(ctx context.Context, cursor string) (Envelope[T], error)

	// pending is the in-flight lookahead fetch; nil when none is
	// running. There is never more than one: page N+1 is fetched
	// while page N is consumed, and no further.
	pending <-chan pageResult[T]

	items []T
	idx   int
	item  T
	err   error
	done  bool
}

// start launches the fetch for the page at cursor and returns the
// channel its result will arrive on. The buffer lets the goroutine
// finish even if the stream is abandoned.
func (s *Stream[T]) start(cursor string) <-chan pageResult[T] {
	ch := make(chan pageResult[T], 1)
	go func() {
		page, err := s.fetch(s.ctx, cursor)
		ch <- pageResult[T]{page: page, err: err}
	}()
	return ch
}

// Next advances to the next item, awaiting the next page when the
// current one is consumed. It returns false once the stream is
// exhausted, failed, or canceled; Err tells those apart.
func (s *Stream[T]) Next() bool {
	if s.done {
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.finish(err)
		return false
	}

	for s.idx >= len(s.items) {
		if s.pending == nil {
			// Last installed page had no cursor: end of sequence.
			s.finish(nil)
			return false
		}

		select {
		case <-s.ctx.Done():
			s.finish(s.ctx.Err())
			return false
		case res := <-s.pending:
			s.pending = nil
			if res.err != nil {
				s.finish(res.err)
				return false
			}
			s.items, s.idx = res.page.Items, 0
			if res.page.NextCursor != "" {
				// An empty items slice with a cursor still
				// continues the traversal; only a blank
				// cursor terminates it.
				s.pending = s.start(res.page.NextCursor)
			}
		}
	}

	s.item = s.items[s.idx]
	s.idx++
	itemsYieldedTotal.Inc()
	return true
}

// Item returns the current item. It is valid only after a Next call
// that returned true.
func (s *Stream[T]) Item() T {
	return s.item
}

// Err returns the terminal error of the stream: nil after a complete
// traversal, the context error after cancellation, or the dispatcher
// error that aborted it.
func (s *Stream[T]) Err() error {
	return s.err
}

// Collect drains the stream into a slice.
func (s *Stream[T]) Collect() ([]T, error) {
	var items []T
	for s.Next() {
		items = append(items, s.Item())
	}
	return items, s.Err()
}

func (s *Stream[T]) finish(err error) {
	s.done = true
	s.err = err
	s.items = nil
	s.idx = 0
}
