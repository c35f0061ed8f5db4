// SPDX-License-Identifier: MIT

package provider

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_PeekIsStable(t *testing.T) {
	c := NewCatalog([]string{"a", "b", "c", "d", "e"}, rand.New(rand.NewSource(1)))

	next, ok := c.PeekNext()
	require.True(t, ok)
	for i := 0; i < 10; i++ {
		again, ok := c.PeekNext()
		require.True(t, ok)
		assert.Equal(t, next, again, "peek must not change across repeated peeks")
	}

	prev, ok := c.PeekPrevious()
	require.True(t, ok)
	again, _ := c.PeekPrevious()
	assert.Equal(t, prev, again)
}

func TestCatalog_AdvanceConsumesPeek(t *testing.T) {
	c := NewCatalog([]string{"a", "b", "c", "d", "e"}, rand.New(rand.NewSource(2)))

	peeked, ok := c.PeekNext()
	require.True(t, ok)

	got, ok := c.Advance()
	require.True(t, ok)
	assert.Equal(t, peeked, got, "commit must serve the peeked candidate")

	// Both memoized peeks reset after a position change.
	fresh, ok := c.PeekNext()
	require.True(t, ok)
	assert.NotEqual(t, got, fresh, "just-served item must not be re-peeked immediately")
}

func TestCatalog_RecencyWindowLoopsOnSmallPool(t *testing.T) {
	c := NewCatalog([]string{"a", "b"}, rand.New(rand.NewSource(3)))

	seen := map[string]int{}
	for i := 0; i < 20; i++ {
		id, ok := c.Advance()
		require.True(t, ok, "small pool must loop, never starve")
		seen[id]++
	}
	assert.Len(t, seen, 2)
}

func TestCatalog_EmptyPool(t *testing.T) {
	c := NewCatalog(nil, nil)

	_, ok := c.PeekNext()
	assert.False(t, ok)
	_, ok = c.Advance()
	assert.False(t, ok)
	assert.Empty(t, c.CandidatePool())
}

func TestResults_OrderedNavigation(t *testing.T) {
	r := NewResults([]string{"r1", "r2", "r3"})

	// Before the first advance, nothing is behind.
	_, ok := r.PeekPrevious()
	assert.False(t, ok)

	id, ok := r.Advance()
	require.True(t, ok)
	assert.Equal(t, "r1", id)

	next, ok := r.PeekNext()
	require.True(t, ok)
	assert.Equal(t, "r2", next)

	id, ok = r.Advance()
	require.True(t, ok)
	assert.Equal(t, "r2", id)

	id, ok = r.Retreat()
	require.True(t, ok)
	assert.Equal(t, "r1", id)

	// Pool only contains what is still ahead.
	assert.Equal(t, []string{"r2", "r3"}, r.CandidatePool())
}

func TestResults_ExhaustionAtBounds(t *testing.T) {
	r := NewResults([]string{"only"})

	id, ok := r.Advance()
	require.True(t, ok)
	assert.Equal(t, "only", id)

	_, ok = r.Advance()
	assert.False(t, ok)
	_, ok = r.PeekNext()
	assert.False(t, ok)
	_, ok = r.Retreat()
	assert.False(t, ok)
	assert.Empty(t, r.CandidatePool())
}

func TestFavorites_PersistAndNavigate(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "favorites.db")

	f, err := OpenFavorites(ctx, path)
	require.NoError(t, err)

	require.NoError(t, f.Add(ctx, "old"))
	require.NoError(t, f.Add(ctx, "mid"))
	require.NoError(t, f.Add(ctx, "new"))

	// Newest first.
	pool := f.CandidatePool()
	require.Len(t, pool, 3)

	require.NoError(t, f.Remove(ctx, "mid"))
	assert.Len(t, f.CandidatePool(), 2)

	require.NoError(t, f.Close())

	// Reopen: contents survive the process.
	f2, err := OpenFavorites(ctx, path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f2.Close()) }()

	assert.Len(t, f2.CandidatePool(), 2)
	id, ok := f2.Advance()
	require.True(t, ok)
	assert.NotEqual(t, "mid", id)
}

func TestFavorites_RemoveUnknownIsNoOp(t *testing.T) {
	ctx := context.Background()
	f, err := OpenFavorites(ctx, filepath.Join(t.TempDir(), "favorites.db"))
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	require.NoError(t, f.Remove(ctx, "ghost"))
	assert.Empty(t, f.CandidatePool())
}
