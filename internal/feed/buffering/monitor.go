// SPDX-License-Identifier: MIT

// Package buffering samples playback handles and classifies their buffer
// health. One Monitor runs per live handle (current, next, previous); they
// do not interfere with each other.
package buffering

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/reelfeed/reelfeed/internal/feed/bus"
	"github.com/reelfeed/reelfeed/internal/feed/model"
	"github.com/reelfeed/reelfeed/internal/log"
)

var bufferTransitions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "reelfeed_buffer_transitions_total",
		Help: "Buffer state transitions by slot and new state",
	},
	[]string{"slot", "state"},
)

const defaultSampleInterval = 250 * time.Millisecond

// Config holds the monitor tuning.
type Config struct {
	SampleInterval time.Duration
	Thresholds     model.BufferThresholds
}

// Monitor drives the buffer-health state machine for one playback handle.
// It emits state-change events only, never raw samples.
type Monitor struct {
	slot   model.Slot
	events *bus.Bus[model.BufferEvent]
	cfg    Config

	mu     sync.Mutex
	id     string
	state  model.BufferState
	notify chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a stopped monitor for the given slot. events may be nil
// when no external observer cares (tests).
func NewMonitor(slot model.Slot, events *bus.Bus[model.BufferEvent], cfg Config) *Monitor {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = defaultSampleInterval
	}
	zero := model.BufferThresholds{}
	if cfg.Thresholds == zero {
		cfg.Thresholds = model.DefaultBufferThresholds()
	}
	return &Monitor{
		slot:   slot,
		events: events,
		cfg:    cfg,
		state:  model.BufferUnknown,
		notify: make(chan struct{}),
	}
}

// Start begins sampling the handle. A running monitor is stopped first; the
// state machine restarts from unknown for the new handle.
func (m *Monitor) Start(ctx context.Context, id string, handle model.PlaybackHandle) {
	if handle == nil {
		return
	}
	m.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	m.mu.Lock()
	m.id = id
	m.state = model.BufferUnknown
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	sample := func() {
		st := m.cfg.Thresholds.Classify(handle.BufferedDuration(), handle.Stalled())
		m.setState(runCtx, st)
	}

	go func() {
		defer close(done)
		// Immediate sample so readiness checks do not wait a full tick.
		sample()

		ticker := time.NewTicker(m.cfg.SampleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				sample()
			}
		}
	}()
}

// Stop halts sampling and emits unknown. Safe to call on a stopped monitor.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.setState(context.Background(), model.BufferUnknown)
}

// State returns the last classified state.
func (m *Monitor) State() model.BufferState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// WaitUntil blocks until the state reaches at least min, or ctx expires.
func (m *Monitor) WaitUntil(ctx context.Context, min model.BufferState) error {
	for {
		m.mu.Lock()
		if m.state >= min {
			m.mu.Unlock()
			return nil
		}
		ch := m.notify
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

func (m *Monitor) setState(ctx context.Context, st model.BufferState) {
	m.mu.Lock()
	if st == m.state {
		m.mu.Unlock()
		return
	}
	old := m.state
	m.state = st
	id := m.id
	close(m.notify)
	m.notify = make(chan struct{})
	m.mu.Unlock()

	bufferTransitions.WithLabelValues(string(m.slot), st.String()).Inc()
	logger := log.WithComponent("buffering")
	logger.Debug().
		Str(log.FieldSlot, string(m.slot)).
		Str(log.FieldIdentifier, id).
		Str(log.FieldOldState, old.String()).
		Str(log.FieldNewState, st.String()).
		Msg("buffer state changed")

	if m.events != nil {
		pubCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		_ = m.events.Publish(pubCtx, model.BufferEvent{Slot: m.slot, ID: id, State: st})
	}
}
