package client

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// StatusError is returned by Get for any non-success, non-429 upstream
// status. It is terminal: the dispatcher never retries it.
type StatusError struct {
	StatusCode int
	Status     string
	Body       []byte
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if len(e.Body) > 0 {
		return fmt.Sprintf("upstream returned %s: %s", e.Status, truncate(e.Body, 200))
	}
	return fmt.Sprintf("upstream returned %s", e.Status)
}

// IsStatus reports whether err is a *StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// rateLimitedError signals a 429 response inside Get. It never escapes
// the dispatcher: the backoff window absorbs it and the request is
// retried.
type rateLimitedError struct {
	retryAfter time.Duration
}

func (e *rateLimitedError) Error() string {
	return fmt.Sprintf("rate limited by upstream (retry after %s)", e.retryAfter)
}

// parseRetryAfter reads a delta-seconds Retry-After value from h,
// falling back when the header is absent or unparseable.
func parseRetryAfter(h http.Header, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return fallback
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
