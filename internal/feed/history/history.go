// SPDX-License-Identifier: MIT

// Package history keeps the append-mostly log of items that were actually
// committed to playback, with a movable cursor. The cursor is the single
// source of truth for what is on screen.
package history

import (
	"sync"

	"github.com/reelfeed/reelfeed/internal/feed/model"
)

// Log is an ordered sequence of previously shown entries plus a cursor.
// Entries are appended only when an item is committed to playback, never for
// peeked or speculative items.
type Log struct {
	mu      sync.RWMutex
	entries []*model.CacheEntry
	cursor  int // valid index once entries is non-empty
}

// New creates an empty log.
func New() *Log {
	return &Log{cursor: -1}
}

// Append adds a committed entry after the cursor and moves the cursor onto
// it. Any forward history beyond the cursor is truncated: committing a new
// item while replaying the past starts a fresh branch, just like a browser
// history.
func (l *Log) Append(e *model.CacheEntry) {
	if e == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries[:l.cursor+1], e)
	l.cursor = len(l.entries) - 1
}

// Current returns the entry at the cursor.
func (l *Log) Current() (*model.CacheEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.cursor < 0 || l.cursor >= len(l.entries) {
		return nil, false
	}
	return l.entries[l.cursor], true
}

// PeekNext returns the entry after the cursor without moving it.
func (l *Log) PeekNext() (*model.CacheEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.cursor+1 >= len(l.entries) {
		return nil, false
	}
	return l.entries[l.cursor+1], true
}

// PeekPrevious returns the entry before the cursor without moving it.
func (l *Log) PeekPrevious() (*model.CacheEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.cursor <= 0 || len(l.entries) == 0 {
		return nil, false
	}
	return l.entries[l.cursor-1], true
}

// Advance moves the cursor forward and returns the now-current entry. At the
// head it is a no-op returning false; the caller must obtain a fresh item
// from its provider instead of wrapping.
func (l *Log) Advance() (*model.CacheEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cursor+1 >= len(l.entries) {
		return nil, false
	}
	l.cursor++
	return l.entries[l.cursor], true
}

// Retreat moves the cursor backward and returns the now-current entry. At
// the tail it is a no-op returning false.
func (l *Log) Retreat() (*model.CacheEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cursor <= 0 || len(l.entries) == 0 {
		return nil, false
	}
	l.cursor--
	return l.entries[l.cursor], true
}

// IsAtHead reports whether the cursor sits on the newest entry, meaning the
// next forward step must produce a brand-new item rather than replay.
func (l *Log) IsAtHead() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries) == 0 || l.cursor == len(l.entries)-1
}

// Len returns the number of committed entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
