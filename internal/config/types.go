// SPDX-License-Identifier: MIT

// Package config loads and validates the daemon configuration with the
// precedence ENV > file > defaults. File parsing is strict: unknown keys
// are rejected rather than silently ignored.
package config

import "time"

// AppConfig is the fully merged runtime configuration.
type AppConfig struct {
	// Listen is the HTTP bind address of the API and metrics server.
	Listen string `yaml:"listen"`
	// DataDir holds persistent state: history snapshots, favorites,
	// metadata cache.
	DataDir string `yaml:"data_dir"`
	// LogLevel is a zerolog level name (trace..panic).
	LogLevel string `yaml:"log_level"`

	Catalog   CatalogConfig   `yaml:"catalog"`
	Feed      FeedConfig      `yaml:"feed"`
	Metacache MetacacheConfig `yaml:"metacache"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// CatalogConfig configures the remote catalog resolver.
type CatalogConfig struct {
	BaseURL             string        `yaml:"base_url"`
	Timeout             time.Duration `yaml:"timeout"`
	SupportedFormats    []string      `yaml:"supported_formats"`
	BreakerThreshold    int           `yaml:"breaker_threshold"`
	BreakerResetTimeout time.Duration `yaml:"breaker_reset_timeout"`
	MetadataTTL         time.Duration `yaml:"metadata_ttl"`
}

// FeedConfig tunes the cache engine. The numeric values are empirically
// tuned defaults, not contracts.
type FeedConfig struct {
	// Provider selects the feed type: catalog, favorites or results.
	Provider string `yaml:"provider"`
	// Collection tags cached entries; changing it resets the failure
	// table so previously failed identifiers get a fresh chance.
	Collection string `yaml:"collection"`
	// Pool is the candidate identifier pool for the catalog provider.
	Pool []string `yaml:"pool"`
	// ResultItems is the ordered list for the results provider.
	ResultItems []string `yaml:"result_items"`

	CacheCapacity    int           `yaml:"cache_capacity"`
	FillTick         time.Duration `yaml:"fill_tick"`
	FillTarget       int           `yaml:"fill_target"`
	MaxDraws         int           `yaml:"max_draws"`
	RatePerSecond    float64       `yaml:"rate_per_second"`
	MaxStartFraction float64       `yaml:"max_start_fraction"`
	ReadyTimeout     time.Duration `yaml:"ready_timeout"`
	SampleInterval   time.Duration `yaml:"sample_interval"`

	BufferCritical  time.Duration `yaml:"buffer_critical"`
	BufferLow       time.Duration `yaml:"buffer_low"`
	BufferGood      time.Duration `yaml:"buffer_good"`
	BufferExcellent time.Duration `yaml:"buffer_excellent"`

	ContentFailureThreshold   int           `yaml:"content_failure_threshold"`
	TransientFailureThreshold int           `yaml:"transient_failure_threshold"`
	TransientFailureTTL       time.Duration `yaml:"transient_failure_ttl"`
}

// MetacacheConfig selects the display-metadata cache backend.
type MetacacheConfig struct {
	// Backend is one of memory, badger, redis or none.
	Backend   string        `yaml:"backend"`
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
}

// TelemetryConfig configures the OTLP trace exporter.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`
	// Protocol is grpc or http.
	Protocol    string  `yaml:"protocol"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// RateLimitConfig throttles the HTTP API.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

const (
	ProviderCatalog   = "catalog"
	ProviderFavorites = "favorites"
	ProviderResults   = "results"

	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendNone   = "none"
)
