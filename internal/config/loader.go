package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "VERDICT_"

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if VERDICT_CONFIG is set
//  3. env (prefix VERDICT_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(envPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// VERDICT_STORAGE_DRIVER -> storage_driver (flat keys)
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, strings.ToLower(envPrefix))
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if k.Exists("rubric") {
		// Decoding a list onto the default slice would keep trailing defaults.
		cfg.Rubric = nil
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return invalid("addr must not be empty")
	case c.JWTSecret == "":
		return invalid("jwt_secret must be set")
	case len(c.Rubric) == 0:
		return invalid("rubric must list at least one criterion")
	case c.RubricScale < 0:
		return invalid("rubric_scale must not be negative")
	case c.SubmitRateLimit < 0:
		return invalid("submit_rate_limit must not be negative")
	case c.SubmitRateLimit > 0 && c.SubmitRateWindowSec <= 0:
		return invalid("submit_rate_window_sec must be positive when rate limiting")
	case c.FeedEnabled && (c.FeedWorkers <= 0 || c.FeedQueueSize <= 0):
		return invalid("feed_workers and feed_queue_size must be positive when the feed is enabled")
	case c.ShutdownTimeoutSec <= 0:
		return invalid("shutdown_timeout_sec must be positive")
	}
	switch strings.ToLower(c.StorageDriver) {
	case "memory", "sqlite", "sqlite3", "postgres", "postgresql", "pgx":
	default:
		return invalid(fmt.Sprintf("unknown storage_driver %q", c.StorageDriver))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return invalid(fmt.Sprintf("unknown log_format %q", c.LogFormat))
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}
