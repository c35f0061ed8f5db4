// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"io"
	"net/url"

	"gopkg.in/yaml.v3"
)

// decodeStrict parses YAML rejecting unknown fields.
func decodeStrict(r io.Reader, cfg *AppConfig) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

// Validate checks the merged configuration. It returns the first problem
// found; a failed validation must never be partially applied.
func Validate(cfg AppConfig) error {
	if cfg.Listen == "" {
		return fmt.Errorf("listen address is empty")
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir is empty")
	}

	switch cfg.Feed.Provider {
	case ProviderCatalog, ProviderFavorites, ProviderResults:
	default:
		return fmt.Errorf("feed.provider %q: must be one of catalog, favorites, results", cfg.Feed.Provider)
	}
	if cfg.Feed.Provider == ProviderResults && len(cfg.Feed.ResultItems) == 0 {
		return fmt.Errorf("feed.provider results requires feed.result_items")
	}

	if cfg.Catalog.BaseURL != "" {
		u, err := url.Parse(cfg.Catalog.BaseURL)
		if err != nil {
			return fmt.Errorf("catalog.base_url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("catalog.base_url: unsupported scheme %q", u.Scheme)
		}
	}

	if cfg.Feed.CacheCapacity <= 0 {
		return fmt.Errorf("feed.cache_capacity must be positive, got %d", cfg.Feed.CacheCapacity)
	}
	if cfg.Feed.FillTarget > cfg.Feed.CacheCapacity {
		return fmt.Errorf("feed.fill_target %d exceeds cache_capacity %d", cfg.Feed.FillTarget, cfg.Feed.CacheCapacity)
	}
	if cfg.Feed.MaxStartFraction < 0 || cfg.Feed.MaxStartFraction > 1 {
		return fmt.Errorf("feed.max_start_fraction must be in [0,1], got %g", cfg.Feed.MaxStartFraction)
	}

	b := cfg.Feed
	if !(b.BufferCritical < b.BufferLow && b.BufferLow < b.BufferGood && b.BufferGood < b.BufferExcellent) {
		return fmt.Errorf("buffer thresholds must be strictly increasing: %v < %v < %v < %v",
			b.BufferCritical, b.BufferLow, b.BufferGood, b.BufferExcellent)
	}

	switch cfg.Metacache.Backend {
	case BackendMemory, BackendBadger, BackendNone:
	case BackendRedis:
		if cfg.Metacache.RedisAddr == "" {
			return fmt.Errorf("metacache.backend redis requires metacache.redis_addr")
		}
	default:
		return fmt.Errorf("metacache.backend %q: must be one of memory, badger, redis, none", cfg.Metacache.Backend)
	}

	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.Protocol != "grpc" && cfg.Telemetry.Protocol != "http" {
			return fmt.Errorf("telemetry.protocol %q: must be grpc or http", cfg.Telemetry.Protocol)
		}
		if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
			return fmt.Errorf("telemetry.sample_ratio must be in [0,1], got %g", cfg.Telemetry.SampleRatio)
		}
	}

	if cfg.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("rate_limit.requests_per_minute must not be negative")
	}
	return nil
}
