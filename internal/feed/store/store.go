// SPDX-License-Identifier: MIT

// Package store holds the two pieces of state the fill pipeline and the
// transition manager share: the bounded entry cache and the failure table.
package store

import "github.com/reelfeed/reelfeed/internal/feed/model"

// Store is a bounded, concurrency-safe mapping from content identifier to a
// fully prepared cache entry. Insertion order is preserved for FIFO
// eviction; inserting beyond capacity evicts the oldest entry and releases
// its asset.
type Store interface {
	// Insert adds or replaces an entry. Replacing refreshes the entry's
	// insertion order. Always succeeds.
	Insert(entry *model.CacheEntry)
	// Lookup is a non-mutating read.
	Lookup(id string) (*model.CacheEntry, bool)
	// Remove deletes and returns the entry, transferring asset ownership
	// to the caller. Used when promoting a cached entry into a live slot.
	Remove(id string) (*model.CacheEntry, bool)
	// Count returns the current number of entries.
	Count() int
	// Clear removes all entries and releases their assets.
	Clear()
	// Identifiers returns a snapshot of the cached identifier set. The
	// pipeline uses it to avoid re-resolving items already prepared.
	Identifiers() map[string]struct{}
}
