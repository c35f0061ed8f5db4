// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"fmt"
	"os"
	"time"
)

// Loader loads configuration with the precedence ENV > file > defaults,
// in the strict order: defaults, parse file (strict), apply env, validate.
type Loader struct {
	configPath string
}

// NewLoader creates a loader. configPath may be empty for ENV-only
// operation.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Defaults returns the shipped configuration.
func Defaults() AppConfig {
	return AppConfig{
		Listen:   ":8088",
		DataDir:  "./data",
		LogLevel: "info",
		Catalog: CatalogConfig{
			Timeout:             10 * time.Second,
			BreakerThreshold:    5,
			BreakerResetTimeout: 30 * time.Second,
			MetadataTTL:         15 * time.Minute,
		},
		Feed: FeedConfig{
			Provider:                  ProviderCatalog,
			Collection:                "default",
			CacheCapacity:             3,
			FillTick:                  500 * time.Millisecond,
			FillTarget:                3,
			MaxDraws:                  10,
			RatePerSecond:             4,
			MaxStartFraction:          0.5,
			ReadyTimeout:              10 * time.Second,
			SampleInterval:            250 * time.Millisecond,
			BufferCritical:            2 * time.Second,
			BufferLow:                 5 * time.Second,
			BufferGood:                15 * time.Second,
			BufferExcellent:           30 * time.Second,
			ContentFailureThreshold:   1,
			TransientFailureThreshold: 5,
			TransientFailureTTL:       2 * time.Minute,
		},
		Metacache: MetacacheConfig{
			Backend: BackendMemory,
			TTL:     15 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			SampleRatio: 1.0,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 300,
		},
	}
}

// Load produces the merged, validated configuration.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(&cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.applyEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (l *Loader) loadFile(cfg *AppConfig) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return err
	}
	return decodeStrict(bytes.NewReader(data), cfg)
}

// applyEnv overlays REELFEED_* environment variables on top of the current
// values, so an unset variable keeps the file's (or default's) value.
func (l *Loader) applyEnv(cfg *AppConfig) {
	cfg.Listen = ParseString("REELFEED_LISTEN", cfg.Listen)
	cfg.DataDir = ParseString("REELFEED_DATA_DIR", cfg.DataDir)
	cfg.LogLevel = ParseString("REELFEED_LOG_LEVEL", cfg.LogLevel)

	cfg.Catalog.BaseURL = ParseString("REELFEED_CATALOG_URL", cfg.Catalog.BaseURL)
	cfg.Catalog.Timeout = ParseDuration("REELFEED_CATALOG_TIMEOUT", cfg.Catalog.Timeout)
	cfg.Catalog.SupportedFormats = ParseStringSlice("REELFEED_CATALOG_FORMATS", cfg.Catalog.SupportedFormats)
	cfg.Catalog.BreakerThreshold = ParseInt("REELFEED_CATALOG_BREAKER_THRESHOLD", cfg.Catalog.BreakerThreshold)
	cfg.Catalog.BreakerResetTimeout = ParseDuration("REELFEED_CATALOG_BREAKER_RESET", cfg.Catalog.BreakerResetTimeout)
	cfg.Catalog.MetadataTTL = ParseDuration("REELFEED_CATALOG_METADATA_TTL", cfg.Catalog.MetadataTTL)

	cfg.Feed.Provider = ParseString("REELFEED_FEED_PROVIDER", cfg.Feed.Provider)
	cfg.Feed.Collection = ParseString("REELFEED_FEED_COLLECTION", cfg.Feed.Collection)
	cfg.Feed.Pool = ParseStringSlice("REELFEED_FEED_POOL", cfg.Feed.Pool)
	cfg.Feed.ResultItems = ParseStringSlice("REELFEED_FEED_RESULT_ITEMS", cfg.Feed.ResultItems)
	cfg.Feed.CacheCapacity = ParseInt("REELFEED_CACHE_CAPACITY", cfg.Feed.CacheCapacity)
	cfg.Feed.FillTick = ParseDuration("REELFEED_FILL_TICK", cfg.Feed.FillTick)
	cfg.Feed.FillTarget = ParseInt("REELFEED_FILL_TARGET", cfg.Feed.FillTarget)
	cfg.Feed.MaxDraws = ParseInt("REELFEED_MAX_DRAWS", cfg.Feed.MaxDraws)
	cfg.Feed.RatePerSecond = ParseFloat("REELFEED_FILL_RATE", cfg.Feed.RatePerSecond)
	cfg.Feed.MaxStartFraction = ParseFloat("REELFEED_MAX_START_FRACTION", cfg.Feed.MaxStartFraction)
	cfg.Feed.ReadyTimeout = ParseDuration("REELFEED_READY_TIMEOUT", cfg.Feed.ReadyTimeout)
	cfg.Feed.SampleInterval = ParseDuration("REELFEED_SAMPLE_INTERVAL", cfg.Feed.SampleInterval)

	cfg.Metacache.Backend = ParseString("REELFEED_METACACHE_BACKEND", cfg.Metacache.Backend)
	cfg.Metacache.RedisAddr = ParseString("REELFEED_METACACHE_REDIS_ADDR", cfg.Metacache.RedisAddr)
	cfg.Metacache.TTL = ParseDuration("REELFEED_METACACHE_TTL", cfg.Metacache.TTL)

	cfg.Telemetry.Enabled = ParseBool("REELFEED_OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Protocol = ParseString("REELFEED_OTEL_PROTOCOL", cfg.Telemetry.Protocol)
	cfg.Telemetry.Endpoint = ParseString("REELFEED_OTEL_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SampleRatio = ParseFloat("REELFEED_OTEL_SAMPLE_RATIO", cfg.Telemetry.SampleRatio)

	cfg.RateLimit.RequestsPerMinute = ParseInt("REELFEED_RATE_LIMIT_RPM", cfg.RateLimit.RequestsPerMinute)
}
