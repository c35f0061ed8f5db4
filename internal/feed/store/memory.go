// SPDX-License-Identifier: MIT

package store

import (
	"sync"

	"github.com/reelfeed/reelfeed/internal/feed/model"
	"github.com/reelfeed/reelfeed/internal/log"
)

// MemoryStore is the in-memory Store implementation. Mutation is serialized
// behind a single mutex so concurrent insert/evict/remove never observe a
// partial entry or a double-counted size.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	entries  map[string]*model.CacheEntry
	order    []string // insertion order, oldest first
}

// NewMemoryStore creates a store bounded to capacity entries.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 3
	}
	return &MemoryStore{
		capacity: capacity,
		entries:  make(map[string]*model.CacheEntry, capacity),
	}
}

func (s *MemoryStore) Insert(entry *model.CacheEntry) {
	if entry == nil || entry.ID == "" {
		return
	}

	var evicted, displaced *model.CacheEntry

	s.mu.Lock()
	if old, ok := s.entries[entry.ID]; ok {
		// Replace refreshes insertion order so a re-entered item is not
		// the next eviction victim. The displaced entry loses ownership
		// of its asset unless the replacement shares the same handle
		// (re-entry of a copied entry with an adjusted offset).
		s.removeFromOrder(entry.ID)
		if old != entry && old.Asset != nil && old.Asset != entry.Asset {
			displaced = old
		}
	}
	s.entries[entry.ID] = entry
	s.order = append(s.order, entry.ID)

	if len(s.entries) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		evicted = s.entries[oldest]
		delete(s.entries, oldest)
	}
	size := len(s.entries)
	s.mu.Unlock()

	// Release outside the lock; asset teardown may be slow.
	if displaced != nil {
		displaced.Asset.Release()
	}
	if evicted != nil {
		if evicted.Asset != nil {
			evicted.Asset.Release()
		}
		logger := log.WithComponent("cache")
		logger.Debug().
			Str(log.FieldEvicted, evicted.ID).
			Int(log.FieldCacheSize, size).
			Msg("evicted oldest cache entry")
	}
}

func (s *MemoryStore) Lookup(id string) (*model.CacheEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

func (s *MemoryStore) Remove(id string) (*model.CacheEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	delete(s.entries, id)
	s.removeFromOrder(id)
	return e, true
}

func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	released := make([]*model.CacheEntry, 0, len(s.entries))
	for _, e := range s.entries {
		released = append(released, e)
	}
	s.entries = make(map[string]*model.CacheEntry, s.capacity)
	s.order = nil
	s.mu.Unlock()

	for _, e := range released {
		if e.Asset != nil {
			e.Asset.Release()
		}
	}
}

func (s *MemoryStore) Identifiers() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{}, len(s.entries))
	for id := range s.entries {
		out[id] = struct{}{}
	}
	return out
}

// removeFromOrder must be called with the write lock held.
func (s *MemoryStore) removeFromOrder(id string) {
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

var _ Store = (*MemoryStore)(nil)
