// SPDX-License-Identifier: MIT

package provider

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/reelfeed/reelfeed/internal/log"
)

const favoritesSchema = `
CREATE TABLE IF NOT EXISTS favorites (
	id       TEXT PRIMARY KEY,
	added_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_favorites_added_at ON favorites(added_at DESC);
`

// Favorites is an ordered-feed provider over the user's saved items,
// persisted in SQLite. Navigation runs newest-first over an in-memory list;
// Add and Remove write through to the database and refresh the list.
type Favorites struct {
	db   *sql.DB
	list *Results
}

// OpenFavorites opens (and creates if needed) the favorites database at
// path and loads the saved items.
func OpenFavorites(ctx context.Context, path string) (*Favorites, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open favorites db: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite: single writer

	if _, err := db.ExecContext(ctx, favoritesSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init favorites schema: %w", err)
	}

	f := &Favorites{db: db, list: NewResults(nil)}
	if err := f.Reload(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return f, nil
}

// Add saves an identifier. Saving an already saved item refreshes its
// position to newest.
func (f *Favorites) Add(ctx context.Context, id string) error {
	_, err := f.db.ExecContext(ctx,
		`INSERT INTO favorites (id, added_at) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET added_at = excluded.added_at`,
		id, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("add favorite %s: %w", id, err)
	}
	return f.Reload(ctx)
}

// Remove deletes an identifier. Removing an unknown identifier is a no-op.
func (f *Favorites) Remove(ctx context.Context, id string) error {
	_, err := f.db.ExecContext(ctx, `DELETE FROM favorites WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove favorite %s: %w", id, err)
	}
	return f.Reload(ctx)
}

// Reload re-reads the saved items, newest first, and swaps the navigation
// list in place. The current position is clamped, not reset.
func (f *Favorites) Reload(ctx context.Context) error {
	rows, err := f.db.QueryContext(ctx,
		`SELECT id FROM favorites ORDER BY added_at DESC, id ASC`)
	if err != nil {
		return fmt.Errorf("load favorites: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan favorite: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load favorites: %w", err)
	}

	f.list.replace(ids)
	logger := log.WithComponent("provider")
	logger.Debug().Int("count", len(ids)).Msg("favorites reloaded")
	return nil
}

func (f *Favorites) Close() error { return f.db.Close() }

func (f *Favorites) PeekNext() (string, bool)     { return f.list.PeekNext() }
func (f *Favorites) PeekPrevious() (string, bool) { return f.list.PeekPrevious() }
func (f *Favorites) Advance() (string, bool)      { return f.list.Advance() }
func (f *Favorites) Retreat() (string, bool)      { return f.list.Retreat() }
func (f *Favorites) CandidatePool() []string      { return f.list.CandidatePool() }

var _ CandidateProvider = (*Favorites)(nil)
