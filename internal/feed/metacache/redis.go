// SPDX-License-Identifier: MIT

package metacache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/reelfeed/reelfeed/internal/feed/model"
)

const redisKeyPrefix = "reelfeed:meta:"

// RedisCache is the shared metadata cache, used when several feed daemons
// sit in front of the same catalog.
type RedisCache struct {
	client *redis.Client
	logger zerolog.Logger
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // Redis server address (host:port)
	Password string // Redis password (optional)
	DB       int    // Redis database number
}

// NewRedisCache creates a Redis-backed metadata cache. The connection is
// verified once up-front so misconfiguration fails at startup, not on the
// first resolve.
func NewRedisCache(cfg RedisConfig, logger zerolog.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("connected to redis metadata cache")
	return &RedisCache{client: client, logger: logger}, nil
}

func (c *RedisCache) Get(ctx context.Context, id string) (*model.DisplayMetadata, bool) {
	val, err := c.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Str("identifier", id).Msg("redis read failed")
		}
		return nil, false
	}
	var out model.DisplayMetadata
	if err := json.Unmarshal(val, &out); err != nil {
		return nil, false
	}
	return &out, true
}

func (c *RedisCache) Set(ctx context.Context, id string, meta *model.DisplayMetadata, ttl time.Duration) {
	if meta == nil || ttl <= 0 {
		return
	}
	buf, err := json.Marshal(meta)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+id, buf, ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("identifier", id).Msg("redis write failed")
	}
}

func (c *RedisCache) Close() error { return c.client.Close() }

var _ Cache = (*RedisCache)(nil)
