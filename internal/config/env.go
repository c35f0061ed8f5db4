// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelfeed/reelfeed/internal/log"
)

// ParseString reads a string from an environment variable or returns the
// default. The source is logged for observability.
func ParseString(key, defaultValue string) string {
	return parseStringWithLogger(log.WithComponent("config"), key, defaultValue)
}

func parseStringWithLogger(logger zerolog.Logger, key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	if value == "" {
		logger.Debug().
			Str("key", key).
			Str("source", "default").
			Msg("environment variable is empty, using default")
		return defaultValue
	}
	logger.Debug().
		Str("key", key).
		Str("source", "environment").
		Msg("using environment variable")
	return value
}

// ParseBool reads a boolean; invalid values fall back to the default.
func ParseBool(key string, defaultValue bool) bool {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		warnInvalid(key, raw, "boolean")
		return defaultValue
	}
	return v
}

// ParseInt reads an integer; invalid values fall back to the default.
func ParseInt(key string, defaultValue int) int {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		warnInvalid(key, raw, "integer")
		return defaultValue
	}
	return v
}

// ParseFloat reads a float; invalid values fall back to the default.
func ParseFloat(key string, defaultValue float64) float64 {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		warnInvalid(key, raw, "float")
		return defaultValue
	}
	return v
}

// ParseDuration reads a Go duration string; invalid values fall back to the
// default.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		warnInvalid(key, raw, "duration")
		return defaultValue
	}
	return v
}

// ParseStringSlice reads a comma-separated list.
func ParseStringSlice(key string, defaultValue []string) []string {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return defaultValue
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// warnInvalid logs a malformed environment value once, at parse time.
func warnInvalid(key, raw, kind string) {
	logger := log.WithComponent("config")
	logger.Warn().
		Str("key", key).
		Str("value", raw).
		Msg("invalid " + kind + " in environment, using default")
}
