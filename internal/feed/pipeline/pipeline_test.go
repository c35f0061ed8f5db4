// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/reelfeed/reelfeed/internal/feed/model"
	"github.com/reelfeed/reelfeed/internal/feed/resolver"
	"github.com/reelfeed/reelfeed/internal/feed/store"
)

type fakePlayback struct{}

func (fakePlayback) BufferedDuration() time.Duration { return 30 * time.Second }
func (fakePlayback) Stalled() bool                   { return false }

type fakeAsset struct {
	released atomic.Bool
}

func (a *fakeAsset) Playback() model.PlaybackHandle { return fakePlayback{} }
func (a *fakeAsset) Release()                       { a.released.Store(true) }

// scriptedResolver drives each step from the test: per-identifier errors
// and an optional hook that runs when a named step is entered.
type scriptedResolver struct {
	failWith map[string]error // identifier -> error on fetch-metadata
	onStep   func(step, id string)
	assets   []*fakeAsset
}

func (r *scriptedResolver) step(name, id string) {
	if r.onStep != nil {
		r.onStep(name, id)
	}
}

func (r *scriptedResolver) FetchMetadata(_ context.Context, id string) (*model.DisplayMetadata, error) {
	r.step("fetch-metadata", id)
	if err := r.failWith[id]; err != nil {
		return nil, err
	}
	return &model.DisplayMetadata{Title: "Title " + id}, nil
}

func (r *scriptedResolver) DiscoverFiles(_ context.Context, id string) ([]resolver.FileVariant, error) {
	r.step("discover-files", id)
	return []resolver.FileVariant{{Name: id + ".mp4", Format: "mp4", Bytes: 1}}, nil
}

func (r *scriptedResolver) SelectFile(_ context.Context, id string, variants []resolver.FileVariant) (resolver.FileVariant, error) {
	r.step("select-file", id)
	return variants[0], nil
}

func (r *scriptedResolver) ResolveURL(_ context.Context, id string, v resolver.FileVariant) (string, error) {
	r.step("resolve-url", id)
	return "http://media.local/" + v.Name, nil
}

func (r *scriptedResolver) CreateAsset(_ context.Context, id, _ string, _ *model.DisplayMetadata) (model.AssetHandle, error) {
	r.step("create-asset", id)
	a := &fakeAsset{}
	r.assets = append(r.assets, a)
	return a, nil
}

func (r *scriptedResolver) ProbeDuration(_ context.Context, id, _ string) (time.Duration, error) {
	r.step("probe-duration", id)
	return time.Minute, nil
}

func fixedPool(ids ...string) *poolProvider { return &poolProvider{ids: ids} }

type poolProvider struct{ ids []string }

func (p *poolProvider) PeekNext() (string, bool)     { return "", false }
func (p *poolProvider) PeekPrevious() (string, bool) { return "", false }
func (p *poolProvider) Advance() (string, bool)      { return "", false }
func (p *poolProvider) Retreat() (string, bool)      { return "", false }
func (p *poolProvider) CandidatePool() []string      { return p.ids }

func newTestPipeline(res resolver.Resolver, prov *poolProvider) (*Pipeline, store.Store, *store.FailureTable) {
	st := store.NewMemoryStore(3)
	failures := store.NewFailureTable(store.FailureTableConfig{})
	p := New(Config{Collection: "test"}, st, failures, res, prov)
	p.NotifyFirstItemReady()
	return p, st, failures
}

func TestFillOnce_CommitsEntry(t *testing.T) {
	res := &scriptedResolver{}
	p, st, _ := newTestPipeline(res, fixedPool("a"))

	require.NoError(t, p.fillOnce(context.Background()))

	entry, ok := st.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "test", entry.CollectionTag)
	assert.Equal(t, "Title a", entry.Meta.Title)
	assert.Equal(t, 1, entry.VariantCount)
}

func TestFillOnce_BlockedUntilFirstItem(t *testing.T) {
	res := &scriptedResolver{}
	st := store.NewMemoryStore(3)
	p := New(Config{}, st, store.NewFailureTable(store.FailureTableConfig{}), res, fixedPool("a"))

	err := p.fillOnce(context.Background())
	require.ErrorIs(t, err, ErrInterrupted)
	assert.Zero(t, st.Count())

	p.NotifyFirstItemReady()
	require.NoError(t, p.fillOnce(context.Background()))
	assert.Equal(t, 1, st.Count())
}

func TestFillOnce_PreemptedMidAttemptLeavesStoreUnchanged(t *testing.T) {
	var p *Pipeline
	var paused atomic.Bool
	res := &scriptedResolver{}
	res.onStep = func(step, _ string) {
		// The hard block is raised while the attempt is suspended inside
		// a step; the next gate must observe it. Only the first attempt
		// is preempted, the retry after Resume runs through.
		if step == "fetch-metadata" && paused.CompareAndSwap(false, true) {
			p.Pause()
		}
	}
	p, st, failures := newTestPipeline(res, fixedPool("a"))

	err := p.fillOnce(context.Background())
	require.ErrorIs(t, err, ErrPreempted)
	assert.Zero(t, st.Count(), "preempted attempt must not commit")
	assert.Zero(t, failures.Failures("a"), "preemption is not a failure")

	p.Resume()
	require.NoError(t, p.fillOnce(context.Background()))
	assert.Equal(t, 1, st.Count())
}

func TestFillOnce_PreemptedAfterAssetReleasesIt(t *testing.T) {
	var p *Pipeline
	res := &scriptedResolver{}
	res.onStep = func(step, _ string) {
		if step == "create-asset" {
			p.Pause()
		}
	}
	p, st, _ := newTestPipeline(res, fixedPool("a"))

	err := p.fillOnce(context.Background())
	require.ErrorIs(t, err, ErrPreempted)
	assert.Zero(t, st.Count())
	require.Len(t, res.assets, 1)
	assert.True(t, res.assets[0].released.Load(), "unwind must release the partially acquired asset")
}

func TestFillOnce_CancelledContext(t *testing.T) {
	res := &scriptedResolver{}
	p, st, _ := newTestPipeline(res, fixedPool("a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.fillOnce(ctx)
	require.ErrorIs(t, err, ErrInterrupted)
	assert.Zero(t, st.Count())
}

func TestFillOnce_ContentFailureFlagsPermanent(t *testing.T) {
	res := &scriptedResolver{
		failWith: map[string]error{
			"bad": resolver.NewError(resolver.KindNotFound, "bad", errors.New("404")),
		},
	}
	p, _, failures := newTestPipeline(res, fixedPool("bad"))

	err := p.fillOnce(context.Background())
	require.Error(t, err)
	assert.True(t, failures.IsPermanent("bad"))

	// The flagged identifier is excluded from subsequent draws.
	_, err = p.selectCandidate()
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestFillOnce_TransientFailureStaysRetryable(t *testing.T) {
	res := &scriptedResolver{
		failWith: map[string]error{
			"flaky": resolver.NewError(resolver.KindTransient, "flaky", errors.New("timeout")),
		},
	}
	p, _, failures := newTestPipeline(res, fixedPool("flaky"))

	err := p.fillOnce(context.Background())
	require.Error(t, err)
	assert.False(t, failures.IsPermanent("flaky"))

	id, err := p.selectCandidate()
	require.NoError(t, err)
	assert.Equal(t, "flaky", id)
}

func TestSelectCandidate_FullyFailedPoolIsExhausted(t *testing.T) {
	pool := fixedPool("a", "b", "c", "d", "e")
	res := &scriptedResolver{}
	p, _, failures := newTestPipeline(res, pool)

	for _, id := range pool.ids {
		failures.Record(id, true)
	}

	done := make(chan error, 1)
	go func() {
		_, err := p.selectCandidate()
		done <- err
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrExhausted)
	case <-time.After(time.Second):
		t.Fatal("selectCandidate blocked on a fully failed pool")
	}
}

func TestSelectCandidate_SkipsCached(t *testing.T) {
	res := &scriptedResolver{}
	p, st, _ := newTestPipeline(res, fixedPool("a"))

	st.Insert(&model.CacheEntry{ID: "a", Asset: &fakeAsset{}})
	_, err := p.selectCandidate()
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestSelectCandidate_EmptyPool(t *testing.T) {
	res := &scriptedResolver{}
	p, _, _ := newTestPipeline(res, fixedPool())

	_, err := p.selectCandidate()
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestRun_FillsToTargetAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	res := &scriptedResolver{}
	st := store.NewMemoryStore(3)
	p := New(Config{
		Tick:          5 * time.Millisecond,
		Target:        2,
		RatePerSecond: 1000,
	}, st, store.NewFailureTable(store.FailureTableConfig{}), res, fixedPool("a", "b", "c", "d"))
	p.NotifyFirstItemReady()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		return st.Count() >= 2
	}, 2*time.Second, 10*time.Millisecond)

	p.CancelAll()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after CancelAll")
	}

	assert.False(t, p.LastActivity().IsZero())
}

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, outcomeSuccess},
		{fmt.Errorf("wrap: %w", ErrPreempted), outcomePreempted},
		{ErrInterrupted, outcomeInterrupted},
		{ErrExhausted, outcomeExhausted},
		{resolver.NewError(resolver.KindNoPlayableFile, "x", nil), outcomeContent},
		{resolver.NewError(resolver.KindTransient, "x", nil), outcomeTransient},
		{errors.New("unclassified"), outcomeTransient},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, outcomeOf(tt.err), "err %v", tt.err)
	}
}
