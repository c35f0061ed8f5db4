// SPDX-License-Identifier: MIT

package store

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelfeed/reelfeed/internal/feed/model"
)

type fakeAsset struct {
	released atomic.Bool
}

func (f *fakeAsset) Playback() model.PlaybackHandle { return nil }
func (f *fakeAsset) Release()                       { f.released.Store(true) }

func entry(id string) *model.CacheEntry {
	return &model.CacheEntry{ID: id, Asset: &fakeAsset{}}
}

func TestMemoryStore_FIFOEviction(t *testing.T) {
	s := NewMemoryStore(3)

	a := entry("A")
	s.Insert(a)
	s.Insert(entry("B"))
	s.Insert(entry("C"))
	s.Insert(entry("D"))

	assert.Equal(t, 3, s.Count())

	_, ok := s.Lookup("A")
	assert.False(t, ok, "A must be evicted")
	for _, id := range []string{"B", "C", "D"} {
		_, ok := s.Lookup(id)
		assert.True(t, ok, "%s must remain", id)
	}
	assert.True(t, a.Asset.(*fakeAsset).released.Load(), "evicted asset must be released")
}

func TestMemoryStore_ReplaceRefreshesOrder(t *testing.T) {
	s := NewMemoryStore(3)
	s.Insert(entry("A"))
	s.Insert(entry("B"))
	s.Insert(entry("C"))

	// Re-insert A; B becomes the oldest.
	s.Insert(entry("A"))
	s.Insert(entry("D"))

	_, ok := s.Lookup("B")
	assert.False(t, ok, "B must be evicted after A was refreshed")
	_, ok = s.Lookup("A")
	assert.True(t, ok)
}

func TestMemoryStore_ReplaceReleasesDisplacedAsset(t *testing.T) {
	s := NewMemoryStore(3)
	old := entry("A")
	s.Insert(old)

	// A different entry object under the same identifier takes over; the
	// displaced entry's asset has no owner left and must be released.
	s.Insert(entry("A"))

	assert.True(t, old.Asset.(*fakeAsset).released.Load(), "displaced entry's asset should be released on replace")
	assert.Equal(t, 1, s.Count())
}

func TestMemoryStore_ReplaceWithSharedAssetDoesNotRelease(t *testing.T) {
	s := NewMemoryStore(3)
	e := entry("A")
	s.Insert(e)

	// Re-entry of the same item at a new offset shares the asset handle.
	s.Insert(e.WithStartOffset(12))

	assert.False(t, e.Asset.(*fakeAsset).released.Load(), "shared asset must survive a re-entry replace")
	got, ok := s.Lookup("A")
	require.True(t, ok)
	assert.Equal(t, float64(12), got.StartOffset)
}

func TestMemoryStore_RemoveTransfersOwnership(t *testing.T) {
	s := NewMemoryStore(3)
	e := entry("A")
	s.Insert(e)

	got, ok := s.Remove("A")
	require.True(t, ok)
	assert.Same(t, e, got)
	assert.False(t, got.Asset.(*fakeAsset).released.Load(), "remove must not release the asset")
	assert.Equal(t, 0, s.Count())

	_, ok = s.Remove("A")
	assert.False(t, ok)
}

func TestMemoryStore_ClearReleasesAll(t *testing.T) {
	s := NewMemoryStore(5)
	entries := []*model.CacheEntry{entry("A"), entry("B"), entry("C")}
	for _, e := range entries {
		s.Insert(e)
	}
	s.Clear()
	assert.Equal(t, 0, s.Count())
	for _, e := range entries {
		assert.True(t, e.Asset.(*fakeAsset).released.Load())
	}
}

func TestMemoryStore_Identifiers(t *testing.T) {
	s := NewMemoryStore(5)
	s.Insert(entry("A"))
	s.Insert(entry("B"))

	ids := s.Identifiers()
	assert.Len(t, ids, 2)
	_, ok := ids["A"]
	assert.True(t, ok)

	// Snapshot must be detached from store state.
	delete(ids, "A")
	_, ok = s.Lookup("A")
	assert.True(t, ok)
}

func TestMemoryStore_ConcurrentMutation(t *testing.T) {
	s := NewMemoryStore(8)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("item-%d-%d", w, i%16)
				s.Insert(entry(id))
				s.Lookup(id)
				if i%3 == 0 {
					s.Remove(id)
				}
			}
		}(w)
	}
	wg.Wait()

	// Capacity bound must hold under concurrency.
	assert.LessOrEqual(t, s.Count(), 8)
}
