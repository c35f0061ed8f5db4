// SPDX-License-Identifier: MIT

// Package metacache caches display metadata per identifier so re-resolves
// of a previously seen item skip the fetch-metadata network call. Asset
// handles are never cached here; only the serializable metadata is.
package metacache

import (
	"context"
	"sync"
	"time"

	"github.com/reelfeed/reelfeed/internal/feed/model"
)

// Cache is the backend-neutral metadata cache contract.
type Cache interface {
	Get(ctx context.Context, id string) (*model.DisplayMetadata, bool)
	Set(ctx context.Context, id string, meta *model.DisplayMetadata, ttl time.Duration)
	Close() error
}

// entry represents a cached value with expiration time.
type entry struct {
	meta       model.DisplayMetadata
	expiration time.Time
}

func (e *entry) isExpired() bool {
	return time.Now().After(e.expiration)
}

// memoryCache is the in-process implementation with periodic cleanup.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	stop    chan struct{}
	once    sync.Once
}

// NewMemoryCache creates an in-memory cache. cleanupInterval <= 0 disables
// the janitor; expired entries then linger until the next Get.
func NewMemoryCache(cleanupInterval time.Duration) Cache {
	c := &memoryCache{
		entries: make(map[string]*entry),
		stop:    make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.janitor(cleanupInterval)
	}
	return c
}

func (c *memoryCache) Get(_ context.Context, id string) (*model.DisplayMetadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, found := c.entries[id]
	if !found || e.isExpired() {
		return nil, false
	}
	cp := e.meta
	return &cp, true
}

func (c *memoryCache) Set(_ context.Context, id string, meta *model.DisplayMetadata, ttl time.Duration) {
	if meta == nil || ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = &entry{meta: *meta, expiration: time.Now().Add(ttl)}
}

func (c *memoryCache) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

func (c *memoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.deleteExpired()
		}
	}
}

func (c *memoryCache) deleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range c.entries {
		if e.isExpired() {
			delete(c.entries, id)
		}
	}
}

// NoOpCache disables metadata caching.
type noOpCache struct{}

// NewNoOpCache returns a cache that never stores anything.
func NewNoOpCache() Cache { return &noOpCache{} }

func (c *noOpCache) Get(context.Context, string) (*model.DisplayMetadata, bool) { return nil, false }
func (c *noOpCache) Set(context.Context, string, *model.DisplayMetadata, time.Duration) {
}
func (c *noOpCache) Close() error { return nil }
