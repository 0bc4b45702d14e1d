// Command paged-proxy exposes the rate-limited dispatcher as a small
// HTTP service: single fetches on /fetch, whole-collection item
// streams on /items, plus /health and Prometheus /metrics.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/Sternrassler/paged-api-client/internal/config"
	"github.com/Sternrassler/paged-api-client/pkg/cache"
	"github.com/Sternrassler/paged-api-client/pkg/client"
	"github.com/Sternrassler/paged-api-client/pkg/logging"
	"github.com/Sternrassler/paged-api-client/pkg/pagination"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})
	logger = logger.With().Str("component", "proxy").Logger()

	store, err := newStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create response cache")
	}

	dispatcher, err := client.New(client.Config{
		Cache:             store,
		MaxConcurrency:    cfg.MaxConcurrency,
		CacheTTL:          cfg.CacheTTL,
		DefaultRetryAfter: cfg.DefaultRetryAfter,
		UserAgent:         cfg.UserAgent,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create dispatcher")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler(dispatcher))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/fetch", fetchHandler(dispatcher))
	mux.HandleFunc("/items", itemsHandler(dispatcher))

	logger.Info().
		Str("addr", cfg.Addr).
		Str("cache_backend", cfg.CacheBackend).
		Int("max_concurrency", cfg.MaxConcurrency).
		Dur("cache_ttl", cfg.CacheTTL).
		Msg("Starting paged-proxy")

	if err := http.ListenAndServe(cfg.Addr, mux); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

// newStore builds the response cache selected by the configuration.
func newStore(cfg config.Config) (cache.Store[*client.Response], error) {
	switch cfg.CacheBackend {
	case "memory":
		return cache.NewMemory[*client.Response](), nil
	case "redis":
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisURL, err)
		}
		return cache.NewRedis[*client.Response](redisClient, cache.DefaultKeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// healthHandler reports liveness and the shared backoff deadline.
func healthHandler(dispatcher *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		status := map[string]any{
			"status": "ok",
		}
		if deadline := dispatcher.BackoffDeadline(); time.Now().Before(deadline) {
			status["backoff_until"] = deadline.Format(time.RFC3339)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status)
	}
}

// fetchHandler proxies a single rate-limited GET for the url query
// parameter.
func fetchHandler(dispatcher *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := r.URL.Query().Get("url")
		if target == "" {
			http.Error(w, "missing url parameter", http.StatusBadRequest)
			return
		}

		resp, err := dispatcher.Get(r.Context(), target)
		if err != nil {
			http.Error(w, fmt.Sprintf("upstream fetch failed: %v", err), http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(resp.Body)
	}
}

// itemsHandler traverses all pages of the endpoint query parameter and
// streams the items as NDJSON, flushing after each item.
func itemsHandler(dispatcher *client.Client) http.HandlerFunc {
	fetcher := pagination.NewFetcher[json.RawMessage](dispatcher)

	return func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Query().Get("endpoint")
		if endpoint == "" {
			http.Error(w, "missing endpoint parameter", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")

		flusher, _ := w.(http.Flusher)
		stream := fetcher.FetchItems(r.Context(), endpoint)
		for stream.Next() {
			if _, err := w.Write(append(stream.Item(), '\n')); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}

		if err := stream.Err(); err != nil {
			// Headers are already sent; signal the failure in-band.
			fmt.Fprintf(w, `{"error": %q}`+"\n", err.Error())
		}
	}
}
