// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelfeed/reelfeed/internal/feed/buffering"
	"github.com/reelfeed/reelfeed/internal/feed/history"
	"github.com/reelfeed/reelfeed/internal/feed/model"
	"github.com/reelfeed/reelfeed/internal/feed/pipeline"
	"github.com/reelfeed/reelfeed/internal/feed/provider"
	"github.com/reelfeed/reelfeed/internal/feed/resolver"
	"github.com/reelfeed/reelfeed/internal/feed/store"
	"github.com/reelfeed/reelfeed/internal/feed/transition"
)

type stubPlayback struct{ buffered time.Duration }

func (p *stubPlayback) BufferedDuration() time.Duration { return p.buffered }
func (p *stubPlayback) Stalled() bool                   { return false }

type stubAsset struct {
	pb       *stubPlayback
	released atomic.Bool
}

func (a *stubAsset) Playback() model.PlaybackHandle { return a.pb }
func (a *stubAsset) Release()                       { a.released.Store(true) }

func wellBuffered(id string) *model.CacheEntry {
	return &model.CacheEntry{
		ID:    id,
		Asset: &stubAsset{pb: &stubPlayback{buffered: 30 * time.Second}},
	}
}

// gestureResolver resolves instantly unless the identifier is listed in
// failWith.
type gestureResolver struct {
	mu       sync.Mutex
	failWith map[string]error
}

func (r *gestureResolver) FetchMetadata(_ context.Context, id string) (*model.DisplayMetadata, error) {
	r.mu.Lock()
	err := r.failWith[id]
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &model.DisplayMetadata{Title: id}, nil
}

func (r *gestureResolver) DiscoverFiles(_ context.Context, id string) ([]resolver.FileVariant, error) {
	return []resolver.FileVariant{{Name: id + ".mp4", Format: "mp4"}}, nil
}

func (r *gestureResolver) SelectFile(_ context.Context, _ string, v []resolver.FileVariant) (resolver.FileVariant, error) {
	return v[0], nil
}

func (r *gestureResolver) ResolveURL(_ context.Context, _ string, v resolver.FileVariant) (string, error) {
	return "http://media.local/" + v.Name, nil
}

func (r *gestureResolver) CreateAsset(_ context.Context, id, _ string, _ *model.DisplayMetadata) (model.AssetHandle, error) {
	return wellBuffered(id).Asset, nil
}

func (r *gestureResolver) ProbeDuration(_ context.Context, _, _ string) (time.Duration, error) {
	return time.Minute, nil
}

type gestureFixture struct {
	ctrl *Controller
	m    *transition.Manager
	prov *provider.Results
	hist *history.Log
	res  *gestureResolver
}

// newGestureFixture positions an ordered feed at startAt, with everything
// before it already committed to history.
func newGestureFixture(t *testing.T, items []string, startAt string, failWith map[string]error) *gestureFixture {
	t.Helper()

	prov := provider.NewResults(items)
	res := &gestureResolver{failWith: failWith}
	st := store.NewMemoryStore(5)
	failures := store.NewFailureTable(store.FailureTableConfig{})
	hist := history.New()

	pipe := pipeline.New(pipeline.Config{Collection: "test"}, st, failures, res, prov)
	m := transition.New(transition.Config{
		Collection:   "test",
		ReadyTimeout: 2 * time.Second,
		Monitor:      buffering.Config{SampleInterval: 5 * time.Millisecond},
	}, st, failures, res, prov, pipe, hist, nil, nil)
	t.Cleanup(m.Close)

	for {
		id, ok := prov.Advance()
		require.True(t, ok, "start item %q not in feed", startAt)
		if id == startAt {
			m.Start(context.Background(), wellBuffered(id))
			break
		}
		hist.Append(wellBuffered(id))
	}

	return &gestureFixture{
		ctrl: NewController(m, pipe, st, prov, res, hist, resolver.OffsetPolicy{}, "test"),
		m:    m,
		prov: prov,
		hist: hist,
		res:  res,
	}
}

func TestController_AdvanceSkipsUnusableProviderItem(t *testing.T) {
	f := newGestureFixture(t, []string{"x", "bad", "y"}, "x", map[string]error{
		"bad": resolver.NewError(resolver.KindNoPlayableFile, "bad", nil),
	})

	item, err := f.ctrl.Advance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "y", item.ID, "the unusable item is skipped, not surfaced")

	cur, ok := f.hist.Current()
	require.True(t, ok)
	assert.Equal(t, "y", cur.ID)
}

func TestController_RetreatFailureDoesNotConsumeForwardCandidate(t *testing.T) {
	f := newGestureFixture(t, []string{"h1", "x", "y"}, "x", map[string]error{
		"h1": resolver.NewError(resolver.KindNotFound, "h1", nil),
	})

	_, err := f.ctrl.Retreat(context.Background())
	require.Error(t, err, "a permanently failing history item cannot be swiped back to")

	// The failed backward gesture must not have eaten the forward feed.
	next, ok := f.prov.PeekNext()
	require.True(t, ok)
	assert.Equal(t, "y", next)
	prev, ok := f.prov.PeekPrevious()
	require.True(t, ok)
	assert.Equal(t, "h1", prev, "provider position unchanged")
}

func TestController_RetreatConsumesBackwardCandidate(t *testing.T) {
	// History is empty, so the backward candidate comes from the provider
	// itself; a permanent failure there is consumed backward.
	prov := provider.NewResults([]string{"bad-prev", "x", "y"})
	res := &gestureResolver{failWith: map[string]error{
		"bad-prev": resolver.NewError(resolver.KindNotFound, "bad-prev", nil),
	}}
	st := store.NewMemoryStore(5)
	failures := store.NewFailureTable(store.FailureTableConfig{})
	hist := history.New()
	pipe := pipeline.New(pipeline.Config{Collection: "test"}, st, failures, res, prov)
	m := transition.New(transition.Config{
		Collection:   "test",
		ReadyTimeout: 2 * time.Second,
		Monitor:      buffering.Config{SampleInterval: 5 * time.Millisecond},
	}, st, failures, res, prov, pipe, hist, nil, nil)
	t.Cleanup(m.Close)

	prov.Advance() // bad-prev
	prov.Advance() // x, without recording bad-prev in history
	m.Start(context.Background(), wellBuffered("x"))
	ctrl := NewController(m, pipe, st, prov, res, hist, resolver.OffsetPolicy{}, "test")

	_, err := ctrl.Retreat(context.Background())
	require.Error(t, err)

	// The unusable backward candidate was consumed in the backward
	// direction, stepping the cursor back over it.
	_, ok := prov.PeekPrevious()
	assert.False(t, ok, "bad-prev should have been consumed backward")
	next, ok := prov.PeekNext()
	require.True(t, ok)
	assert.Equal(t, "x", next, "cursor stepped back over the consumed item")
}
