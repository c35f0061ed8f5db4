// SPDX-License-Identifier: MIT

// Package model defines the shared domain types of the feed cache engine.
package model

import "time"

// DisplayMetadata carries the user-visible description of a catalog item.
type DisplayMetadata struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// PlaybackHandle is the read-only view of a live player the buffering
// monitor samples. Playback internals (decode, render, audio) live behind it.
type PlaybackHandle interface {
	// BufferedDuration reports how much media is buffered ahead of the
	// current playback position.
	BufferedDuration() time.Duration
	// Stalled reports whether playback is currently starved for data.
	Stalled() bool
}

// AssetHandle is a fully prepared, playable asset. A CacheEntry owns its
// handle exclusively until the entry is removed from the store; Release must
// be called exactly once by whoever owns the handle last.
type AssetHandle interface {
	Playback() PlaybackHandle
	Release()
}

// CacheEntry is one fully prepared, ready-to-play item. Entries are not
// mutated after insertion into the cache store; the single exception is a
// StartOffset adjustment when an on-screen item is captured back into the
// cache with its current position.
type CacheEntry struct {
	ID            string
	CollectionTag string
	Meta          *DisplayMetadata // optional
	Asset         AssetHandle
	StartOffset   float64 // seconds, >= 0, chosen once at resolve time
	VariantCount  int     // informational: playable file variants discovered
}

// WithStartOffset returns a copy of the entry with an adjusted start offset.
// Used when re-entering an on-screen item into the cache at its current
// playback position. The asset handle is shared, not duplicated; the caller
// is transferring ownership to the copy.
func (e *CacheEntry) WithStartOffset(offset float64) *CacheEntry {
	if offset < 0 {
		offset = 0
	}
	cp := *e
	cp.StartOffset = offset
	return &cp
}
