// SPDX-License-Identifier: MIT

package history

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/renameio/v2"

	"github.com/reelfeed/reelfeed/internal/feed/model"
)

// snapshotEntry is the durable form of a history entry. Asset handles are
// process-local and never persisted; a restored entry carries only what is
// needed to re-resolve and resume.
type snapshotEntry struct {
	ID            string  `json:"id"`
	CollectionTag string  `json:"collection,omitempty"`
	Title         string  `json:"title,omitempty"`
	StartOffset   float64 `json:"start_offset,omitempty"`
}

type snapshot struct {
	Entries []snapshotEntry `json:"entries"`
	Cursor  int             `json:"cursor"`
}

// Save writes the log atomically to path. fsync before rename prevents a
// torn snapshot on power failure.
func (l *Log) Save(path string) error {
	l.mu.RLock()
	snap := snapshot{Cursor: l.cursor, Entries: make([]snapshotEntry, 0, len(l.entries))}
	for _, e := range l.entries {
		se := snapshotEntry{
			ID:            e.ID,
			CollectionTag: e.CollectionTag,
			StartOffset:   e.StartOffset,
		}
		if e.Meta != nil {
			se.Title = e.Meta.Title
		}
		snap.Entries = append(snap.Entries, se)
	}
	l.mu.RUnlock()

	buf, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal history snapshot: %w", err)
	}

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending snapshot: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(buf); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace snapshot: %w", err)
	}
	return nil
}

// Load restores a log from a snapshot file. Entries come back without asset
// handles; callers must re-resolve before playback. A missing file yields an
// empty log, not an error.
func Load(path string) (*Log, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-provided data path
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("read history snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse history snapshot: %w", err)
	}

	l := New()
	for _, se := range snap.Entries {
		e := &model.CacheEntry{
			ID:            se.ID,
			CollectionTag: se.CollectionTag,
			StartOffset:   se.StartOffset,
		}
		if se.Title != "" {
			e.Meta = &model.DisplayMetadata{Title: se.Title}
		}
		l.entries = append(l.entries, e)
	}
	if len(l.entries) > 0 {
		l.cursor = snap.Cursor
		if l.cursor < 0 || l.cursor >= len(l.entries) {
			l.cursor = len(l.entries) - 1
		}
	}
	return l, nil
}
