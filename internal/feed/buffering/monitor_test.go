// SPDX-License-Identifier: MIT

package buffering

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/reelfeed/reelfeed/internal/feed/bus"
	"github.com/reelfeed/reelfeed/internal/feed/model"
)

type fakeHandle struct {
	mu       sync.Mutex
	buffered time.Duration
	stalled  bool
}

func (f *fakeHandle) set(d time.Duration, stalled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buffered = d
	f.stalled = stalled
}

func (f *fakeHandle) BufferedDuration() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buffered
}

func (f *fakeHandle) Stalled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stalled
}

func waitForState(t *testing.T, m *Monitor, want model.BufferState) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for m.State() != want {
		select {
		case <-deadline:
			t.Fatalf("state never reached %s, stuck at %s", want, m.State())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestMonitor_StateTransitions(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := &fakeHandle{}
	h.set(time.Second, false)

	m := NewMonitor(model.SlotCurrent, nil, Config{SampleInterval: 5 * time.Millisecond})
	m.Start(context.Background(), "item-1", h)

	waitForState(t, m, model.BufferCritical)

	h.set(20*time.Second, false)
	waitForState(t, m, model.BufferGood)

	m.Stop()
	assert.Equal(t, model.BufferUnknown, m.State())
}

func TestMonitor_StalledCapsAtCritical(t *testing.T) {
	h := &fakeHandle{}
	h.set(40*time.Second, true)

	m := NewMonitor(model.SlotNext, nil, Config{SampleInterval: 5 * time.Millisecond})
	m.Start(context.Background(), "item-2", h)
	defer m.Stop()

	waitForState(t, m, model.BufferCritical)
}

func TestMonitor_EmitsChangesOnly(t *testing.T) {
	events := bus.New[model.BufferEvent](nil)
	sub := events.Subscribe()
	defer sub.Close()

	h := &fakeHandle{}
	h.set(10*time.Second, false)

	m := NewMonitor(model.SlotNext, events, Config{SampleInterval: 2 * time.Millisecond})
	m.Start(context.Background(), "item-3", h)

	// First event: the initial classification.
	ev := <-sub.C()
	assert.Equal(t, model.BufferSufficient, ev.State)
	assert.Equal(t, model.SlotNext, ev.Slot)
	assert.Equal(t, "item-3", ev.ID)

	// Hold the same sample for a while; no duplicate events may arrive.
	select {
	case ev := <-sub.C():
		t.Fatalf("unexpected duplicate event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	m.Stop()
	ev = <-sub.C()
	assert.Equal(t, model.BufferUnknown, ev.State)
}

func TestMonitor_WaitUntil(t *testing.T) {
	h := &fakeHandle{}
	h.set(500*time.Millisecond, false)

	m := NewMonitor(model.SlotNext, nil, Config{SampleInterval: 2 * time.Millisecond})
	m.Start(context.Background(), "item-4", h)
	defer m.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := m.WaitUntil(ctx, model.BufferSufficient)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	h.set(6*time.Second, false)
	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	require.NoError(t, m.WaitUntil(ctx2, model.BufferSufficient))
}

func TestMonitor_RestartReplacesHandle(t *testing.T) {
	h1 := &fakeHandle{}
	h1.set(time.Second, false)
	h2 := &fakeHandle{}
	h2.set(35*time.Second, false)

	m := NewMonitor(model.SlotPrevious, nil, Config{SampleInterval: 2 * time.Millisecond})
	m.Start(context.Background(), "a", h1)
	waitForState(t, m, model.BufferCritical)

	m.Start(context.Background(), "b", h2)
	defer m.Stop()
	waitForState(t, m, model.BufferExcellent)
}
