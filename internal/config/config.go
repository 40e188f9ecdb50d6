// Package config defines service configuration structures and loading hooks.
package config

import (
	"context"
	"strings"
)

// Criterion is one rubric criterion as configured.
type Criterion struct {
	Name     string  `koanf:"name"`
	Weight   float64 `koanf:"weight"`
	MaxScore float64 `koanf:"max_score"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// ShutdownTimeoutSec bounds graceful shutdown.
	ShutdownTimeoutSec int `koanf:"shutdown_timeout_sec"`

	// RequestTimeoutSec bounds each API request.
	RequestTimeoutSec int `koanf:"request_timeout_sec"`

	// StorageDriver is memory, sqlite or postgres.
	StorageDriver string `koanf:"storage_driver"`

	// StorageDSN is the driver connection string. Empty uses the sqlite default.
	StorageDSN string `koanf:"storage_dsn"`

	// DirectoryFile is the YAML file listing teams, evaluators and assignments.
	DirectoryFile string `koanf:"directory_file"`

	// RubricScale is the composite reporting scale; 0 keeps the native scale.
	RubricScale float64 `koanf:"rubric_scale"`

	// Rubric lists the scoring criteria.
	Rubric []Criterion `koanf:"rubric"`

	// JWTSecret verifies HS256 bearer tokens.
	JWTSecret string `koanf:"jwt_secret"`

	// JWTIssuer, when set, is required on every token.
	JWTIssuer string `koanf:"jwt_issuer"`

	// CORSOrigins is a comma-separated list of allowed origins.
	CORSOrigins string `koanf:"cors_origins"`

	// SubmitRateLimit caps submissions per caller per window; 0 disables.
	SubmitRateLimit int `koanf:"submit_rate_limit"`

	// SubmitRateWindowSec is the rate window length.
	SubmitRateWindowSec int `koanf:"submit_rate_window_sec"`

	// RedisAddr selects the shared rate limiter when set.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// FeedEnabled mounts the websocket announcement feed.
	FeedEnabled bool `koanf:"feed_enabled"`

	// FeedWorkers is the number of goroutines broadcasting announcements.
	FeedWorkers int `koanf:"feed_workers"`

	// FeedQueueSize bounds announcements waiting for broadcast.
	FeedQueueSize int `koanf:"feed_queue_size"`
}

// New creates a Config with defaults. The context is reserved for loaders
// that need it and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":8080",
		ShutdownTimeoutSec:  10,
		RequestTimeoutSec:   30,
		StorageDriver:       "memory",
		DirectoryFile:       "directory.yaml",
		RubricScale:         0,
		Rubric:              DefaultRubric(),
		CORSOrigins:         "*",
		SubmitRateLimit:     60,
		SubmitRateWindowSec: 60,
		FeedEnabled:         true,
		FeedWorkers:         2,
		FeedQueueSize:       1024,
	}
}

// DefaultRubric is the four-criterion rubric used when none is configured.
func DefaultRubric() []Criterion {
	return []Criterion{
		{Name: "innovation", Weight: 1, MaxScore: 10},
		{Name: "technical", Weight: 1, MaxScore: 10},
		{Name: "design", Weight: 1, MaxScore: 10},
		{Name: "presentation", Weight: 1, MaxScore: 10},
	}
}

// Origins splits CORSOrigins.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
