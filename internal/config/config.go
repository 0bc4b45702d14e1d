// Package config handles proxy configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the paged-proxy configuration.
type Config struct {
	// Addr is the listen address of the proxy HTTP server.
	Addr string `env:"ADDR" envDefault:":8080"`

	// UserAgent is sent on every upstream request.
	UserAgent string `env:"USER_AGENT" envDefault:"paged-api-client/0.1.0"`

	// MaxConcurrency caps simultaneous outbound requests (0 = unbounded).
	MaxConcurrency int `env:"MAX_CONCURRENCY" envDefault:"5"`

	// CacheTTL is how long successful responses stay cached.
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"60m"`

	// DefaultRetryAfter is the backoff for 429 responses without a
	// Retry-After header.
	DefaultRetryAfter time.Duration `env:"DEFAULT_RETRY_AFTER" envDefault:"60s"`

	// CacheBackend selects the response cache: "memory" or "redis".
	CacheBackend string `env:"CACHE_BACKEND" envDefault:"memory"`

	// RedisURL is the redis address, required when CacheBackend is "redis".
	RedisURL string `env:"REDIS_URL" envDefault:"localhost:6379"`

	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// LogPretty enables human-readable console logs.
	LogPretty bool `env:"LOG_PRETTY" envDefault:"false"`
}

// Load reads configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for invalid combinations.
func (c Config) Validate() error {
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("MAX_CONCURRENCY must be >= 0 (got %d)", c.MaxConcurrency)
	}
	switch c.CacheBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("CACHE_BACKEND must be \"memory\" or \"redis\" (got %q)", c.CacheBackend)
	}
	if c.CacheBackend == "redis" && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when CACHE_BACKEND is \"redis\"")
	}
	return nil
}
