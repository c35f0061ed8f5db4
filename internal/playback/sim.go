// SPDX-License-Identifier: MIT

// Package playback provides a simulated playback engine. It stands in for a
// real decoder: buffered duration ramps linearly from creation time, which
// is enough to drive the buffering monitor and the readiness gates.
package playback

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/reelfeed/reelfeed/internal/feed/model"
	"github.com/reelfeed/reelfeed/internal/log"
)

// SimFactory creates simulated asset handles.
type SimFactory struct {
	// FillRate is seconds of media buffered per wall-clock second.
	FillRate float64
	// MaxBuffer caps the simulated buffer depth.
	MaxBuffer time.Duration

	created  atomic.Int64
	released atomic.Int64
}

// NewSimFactory returns a factory with a 10x fill rate and a one minute
// buffer cap, which reaches "sufficient" well under a second.
func NewSimFactory() *SimFactory {
	return &SimFactory{FillRate: 10, MaxBuffer: time.Minute}
}

func (f *SimFactory) New(_ context.Context, id, url string, _ *model.DisplayMetadata) (model.AssetHandle, error) {
	f.created.Add(1)
	return &simAsset{
		id:      id,
		url:     url,
		factory: f,
		start:   time.Now(),
	}, nil
}

// Live reports how many created assets have not been released. Leaks show
// up here during shutdown.
func (f *SimFactory) Live() int64 {
	return f.created.Load() - f.released.Load()
}

type simAsset struct {
	id       string
	url      string
	factory  *SimFactory
	start    time.Time
	released atomic.Bool
}

func (a *simAsset) Playback() model.PlaybackHandle { return (*simHandle)(a) }

func (a *simAsset) Release() {
	if !a.released.CompareAndSwap(false, true) {
		logger := log.WithComponent("playback")
		logger.Warn().
			Str(log.FieldIdentifier, a.id).
			Msg("double release of simulated asset")
		return
	}
	a.factory.released.Add(1)
}

type simHandle simAsset

func (h *simHandle) BufferedDuration() time.Duration {
	if h.released.Load() {
		return 0
	}
	buffered := time.Duration(float64(time.Since(h.start)) * h.factory.FillRate)
	if buffered > h.factory.MaxBuffer {
		buffered = h.factory.MaxBuffer
	}
	return buffered
}

func (h *simHandle) Stalled() bool { return h.released.Load() }
