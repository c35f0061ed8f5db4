// SPDX-License-Identifier: MIT

package playback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimFactory_BufferRamps(t *testing.T) {
	f := &SimFactory{FillRate: 100, MaxBuffer: 5 * time.Second}

	asset, err := f.New(context.Background(), "clip-1", "http://media.local/clip-1", nil)
	require.NoError(t, err)

	pb := asset.Playback()
	assert.False(t, pb.Stalled())

	require.Eventually(t, func() bool {
		return pb.BufferedDuration() > 0
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return pb.BufferedDuration() == 5*time.Second
	}, 2*time.Second, 10*time.Millisecond, "buffer should hit the cap")
}

func TestSimFactory_ReleaseAccounting(t *testing.T) {
	f := NewSimFactory()

	a, err := f.New(context.Background(), "a", "u", nil)
	require.NoError(t, err)
	b, err := f.New(context.Background(), "b", "u", nil)
	require.NoError(t, err)

	assert.EqualValues(t, 2, f.Live())

	a.Release()
	assert.EqualValues(t, 1, f.Live())

	// Double release does not corrupt the count.
	a.Release()
	assert.EqualValues(t, 1, f.Live())

	b.Release()
	assert.EqualValues(t, 0, f.Live())

	// A released asset reads as stalled and empty.
	assert.True(t, a.Playback().Stalled())
	assert.Zero(t, a.Playback().BufferedDuration())
}
