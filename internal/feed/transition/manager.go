// SPDX-License-Identifier: MIT

// Package transition owns the two speculative preload slots around the item
// on screen. It guarantees that the next and previous items are fully
// prepared and buffered before a swipe commits, arbitrating priority
// against the background fill pipeline via its hard block.
package transition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reelfeed/reelfeed/internal/feed/buffering"
	"github.com/reelfeed/reelfeed/internal/feed/bus"
	"github.com/reelfeed/reelfeed/internal/feed/history"
	"github.com/reelfeed/reelfeed/internal/feed/model"
	"github.com/reelfeed/reelfeed/internal/feed/provider"
	"github.com/reelfeed/reelfeed/internal/feed/resolver"
	"github.com/reelfeed/reelfeed/internal/feed/store"
	"github.com/reelfeed/reelfeed/internal/log"
)

var (
	// ErrSlotNotReady means the requested direction has no prepared entry.
	// The caller falls back to a synchronous resolve, never a spinner.
	ErrSlotNotReady = errors.New("slot not ready")

	// ErrNoCandidate means the feed has nothing further in that direction.
	ErrNoCandidate = errors.New("no candidate in this direction")

	// ErrStale marks an ensure result discarded because a newer commit
	// moved the position while it was in flight.
	ErrStale = errors.New("stale ensure result")
)

// Pauser is the slice of the fill pipeline the manager needs: raising and
// releasing the hard block around urgent resolves.
type Pauser interface {
	Pause()
	Resume()
}

// Config tunes the manager.
type Config struct {
	// Collection tags urgently resolved entries.
	Collection string
	// Offsets picks start offsets for urgent resolves.
	Offsets resolver.OffsetPolicy
	// ReadyTimeout bounds how long a slot waits for the buffer to reach
	// sufficient before reporting not-ready.
	ReadyTimeout time.Duration
	// Monitor tunes the per-slot buffering monitors.
	Monitor buffering.Config
}

type slot struct {
	entry *model.CacheEntry
	ready bool
	// ownerGeneration records which commit epoch armed the slot; results
	// from older epochs are discarded.
	ownerGeneration uint64
}

// Manager owns the next and previous speculative slots.
type Manager struct {
	cfg      Config
	store    store.Store
	failures *store.FailureTable
	res      resolver.Resolver
	prov     provider.CandidateProvider
	pipeline Pauser
	history  *history.Log

	readyEvents  *bus.Bus[model.ReadyEvent]
	bufferEvents *bus.Bus[model.BufferEvent]

	monitors map[model.Slot]*buffering.Monitor

	generation atomic.Uint64

	mu      sync.Mutex
	current *model.CacheEntry
	next    slot
	prev    slot

	bg      sync.WaitGroup
	baseCtx context.Context
}

// New wires a manager over the shared store, failure table and pipeline.
func New(cfg Config, st store.Store, failures *store.FailureTable, res resolver.Resolver, prov provider.CandidateProvider, pipeline Pauser, hist *history.Log, readyEvents *bus.Bus[model.ReadyEvent], bufferEvents *bus.Bus[model.BufferEvent]) *Manager {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 10 * time.Second
	}
	m := &Manager{
		cfg:          cfg,
		store:        st,
		failures:     failures,
		res:          res,
		prov:         prov,
		pipeline:     pipeline,
		history:      hist,
		readyEvents:  readyEvents,
		bufferEvents: bufferEvents,
		baseCtx:      context.Background(),
		monitors: map[model.Slot]*buffering.Monitor{
			model.SlotCurrent:  buffering.NewMonitor(model.SlotCurrent, bufferEvents, cfg.Monitor),
			model.SlotNext:     buffering.NewMonitor(model.SlotNext, bufferEvents, cfg.Monitor),
			model.SlotPrevious: buffering.NewMonitor(model.SlotPrevious, bufferEvents, cfg.Monitor),
		},
	}
	return m
}

// Start installs the first on-screen entry, records it in history and
// begins monitoring its buffer. ctx outlives the call: re-arms launched by
// later commits run under it.
func (m *Manager) Start(ctx context.Context, entry *model.CacheEntry) {
	m.mu.Lock()
	m.baseCtx = ctx
	m.current = entry
	m.mu.Unlock()

	m.history.Append(entry)
	m.monitors[model.SlotCurrent].Start(ctx, entry.ID, entry.Asset.Playback())
	logger := log.WithComponent("transition")
	logger.Info().
		Str(log.FieldIdentifier, entry.ID).
		Msg("first item on screen")
}

// Current returns the on-screen entry.
func (m *Manager) Current() (*model.CacheEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.current != nil
}

// SlotState reports a slot's armed identifier and readiness, for status
// surfaces.
func (m *Manager) SlotState(s model.Slot) (id string, ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sl := m.slotFor(s)
	if sl == nil || sl.entry == nil {
		return "", false
	}
	return sl.entry.ID, sl.ready
}

// BufferState reports the sampled buffer health of a slot's monitor.
func (m *Manager) BufferState(s model.Slot) model.BufferState {
	mon, ok := m.monitors[s]
	if !ok {
		return model.BufferUnknown
	}
	return mon.State()
}

// EnsureNextReady prepares the swipe-forward slot.
func (m *Manager) EnsureNextReady(ctx context.Context) error {
	return m.ensure(ctx, model.SlotNext)
}

// EnsurePreviousReady prepares the swipe-backward slot.
func (m *Manager) EnsurePreviousReady(ctx context.Context) error {
	return m.ensure(ctx, model.SlotPrevious)
}

// EnsureAllReady arms both slots concurrently. The failure domains are
// independent: one side failing never tears down the other side's success,
// and both errors are reported.
func (m *Manager) EnsureAllReady(ctx context.Context) error {
	var nextErr, prevErr error
	g := new(errgroup.Group)
	g.Go(func() error { nextErr = m.EnsureNextReady(ctx); return nil })
	g.Go(func() error { prevErr = m.EnsurePreviousReady(ctx); return nil })
	_ = g.Wait()

	if errors.Is(nextErr, ErrNoCandidate) {
		nextErr = nil
	}
	if errors.Is(prevErr, ErrNoCandidate) {
		prevErr = nil
	}
	return errors.Join(nextErr, prevErr)
}

// ensure arms one slot: peek the candidate, adopt a cached entry if one
// exists, otherwise run an urgent resolve under the pipeline's hard block,
// then gate readiness on buffer health.
func (m *Manager) ensure(ctx context.Context, s model.Slot) error {
	gen := m.generation.Load()
	logger := log.WithComponentFromContext(ctx, "transition")

	id, offset, replay := m.candidate(s)
	if id == "" {
		return fmt.Errorf("%s: %w", s, ErrNoCandidate)
	}

	m.mu.Lock()
	base := m.baseCtx
	sl := m.slotFor(s)
	if sl.ready && sl.entry != nil && sl.entry.ID == id && sl.ownerGeneration == gen {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	entry, ok := m.store.Remove(id)
	if ok {
		logger.Debug().Str(log.FieldIdentifier, id).Str(log.FieldSlot, string(s)).Msg("slot armed from cache")
	} else {
		var err error
		entry, err = m.resolveUrgent(ctx, id)
		if err != nil {
			m.failures.Record(id, resolver.IsPermanent(err))
			logger.Warn().
				Str(log.FieldIdentifier, id).
				Str(log.FieldSlot, string(s)).
				Err(err).
				Msg("urgent resolve failed")
			return fmt.Errorf("%s: %w", s, err)
		}
	}
	if replay {
		// Replayed history items resume where they were, not at a fresh
		// random offset.
		entry = entry.WithStartOffset(offset)
	}

	if m.generation.Load() != gen {
		entry.Asset.Release()
		return ErrStale
	}

	// Buffer-aware readiness: the asset existing is not enough, the player
	// must report at least a sufficient buffer.
	mon := m.monitors[s]
	mon.Start(base, entry.ID, entry.Asset.Playback())
	waitCtx, cancel := context.WithTimeout(ctx, m.cfg.ReadyTimeout)
	err := mon.WaitUntil(waitCtx, model.BufferSufficient)
	cancel()

	m.mu.Lock()
	if m.generation.Load() != gen {
		m.mu.Unlock()
		mon.Stop()
		entry.Asset.Release()
		return ErrStale
	}
	sl = m.slotFor(s)
	m.releaseSlotLocked(sl)
	sl.entry = entry
	sl.ready = err == nil
	sl.ownerGeneration = gen
	ready := sl.ready
	m.mu.Unlock()

	m.publishReady(s, entry.ID, ready)
	if err != nil {
		logger.Warn().
			Str(log.FieldIdentifier, entry.ID).
			Str(log.FieldSlot, string(s)).
			Err(err).
			Msg("slot armed but buffer never reached sufficient")
		return fmt.Errorf("%s: %w", s, ErrSlotNotReady)
	}
	logger.Debug().
		Str(log.FieldIdentifier, entry.ID).
		Str(log.FieldSlot, string(s)).
		Msg("slot ready")
	return nil
}

// CommitAdvance promotes the armed next slot onto the screen. The returned
// entry is the new on-screen item; ErrSlotNotReady tells the caller to fall
// back to a synchronous resolve.
func (m *Manager) CommitAdvance(ctx context.Context) (*model.CacheEntry, error) {
	return m.commit(ctx, model.SlotNext)
}

// CommitRetreat promotes the armed previous slot onto the screen.
func (m *Manager) CommitRetreat(ctx context.Context) (*model.CacheEntry, error) {
	return m.commit(ctx, model.SlotPrevious)
}

func (m *Manager) commit(ctx context.Context, s model.Slot) (*model.CacheEntry, error) {
	m.mu.Lock()
	sl := m.slotFor(s)
	if !sl.ready || sl.entry == nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", s, ErrSlotNotReady)
	}
	promoted := sl.entry
	sl.entry = nil
	sl.ready = false

	base := m.baseCtx
	old := m.current
	m.current = promoted

	// Navigation position moves via advance/retreat, never peek.
	if s == model.SlotNext {
		if m.history.IsAtHead() {
			m.prov.Advance()
			m.history.Append(promoted)
		} else {
			m.history.Advance()
		}
	} else {
		if _, ok := m.history.PeekPrevious(); ok {
			m.history.Retreat()
		} else {
			m.prov.Retreat()
		}
	}

	// Both slots are stale for the new position. The other slot's entry
	// goes back into the store rather than being thrown away: it is a
	// fully prepared item the fill would otherwise redo.
	gen := m.generation.Add(1)
	other := m.otherSlotLocked(s)
	if other.entry != nil {
		m.store.Insert(other.entry)
		other.entry = nil
	}
	other.ready = false
	m.mu.Unlock()

	// The old on-screen entry also returns to the store so an immediate
	// swipe back is a cache hit.
	if old != nil {
		m.store.Insert(old)
	}

	m.monitors[model.SlotNext].Stop()
	m.monitors[model.SlotPrevious].Stop()
	m.monitors[model.SlotCurrent].Start(base, promoted.ID, promoted.Asset.Playback())

	m.publishReady(model.SlotNext, "", false)
	m.publishReady(model.SlotPrevious, "", false)

	logger := log.WithComponentFromContext(ctx, "transition")
	logger.Info().
		Str(log.FieldIdentifier, promoted.ID).
		Str(log.FieldSlot, string(s)).
		Uint64("generation", gen).
		Msg("transition committed")

	// Re-arm both directions for the new position.
	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		if err := m.EnsureAllReady(base); err != nil && !errors.Is(err, ErrStale) {
			logger := log.WithComponent("transition")
			logger.Debug().Err(err).Msg("re-arm after commit incomplete")
		}
	}()

	return promoted, nil
}

// Invalidate resets both slots and bumps the generation, discarding any
// in-flight ensure results. Used when the provider or collection changes.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.generation.Add(1)
	m.releaseSlotLocked(&m.next)
	m.releaseSlotLocked(&m.prev)
	m.mu.Unlock()

	m.monitors[model.SlotNext].Stop()
	m.monitors[model.SlotPrevious].Stop()
	m.publishReady(model.SlotNext, "", false)
	m.publishReady(model.SlotPrevious, "", false)
}

// Close stops all monitors and waits for background re-arms to finish.
// Slot and current assets are released; the store keeps its own.
func (m *Manager) Close() {
	m.bg.Wait()
	for _, mon := range m.monitors {
		mon.Stop()
	}
	m.mu.Lock()
	m.releaseSlotLocked(&m.next)
	m.releaseSlotLocked(&m.prev)
	if m.current != nil {
		m.current.Asset.Release()
		m.current = nil
	}
	m.mu.Unlock()
}

// resolveUrgent runs a foreground resolve under the pipeline's hard block.
// The block is held only for the resolve itself, not the buffer wait.
func (m *Manager) resolveUrgent(ctx context.Context, id string) (*model.CacheEntry, error) {
	m.pipeline.Pause()
	defer m.pipeline.Resume()
	return resolver.Resolve(ctx, m.res, id, m.cfg.Collection, m.cfg.Offsets)
}

// candidate picks the identifier a slot should hold: history replay when
// the cursor is away from the relevant end, otherwise a provider peek.
// Peeking never mutates the provider's position.
func (m *Manager) candidate(s model.Slot) (id string, offset float64, replay bool) {
	if s == model.SlotNext {
		if e, ok := m.history.PeekNext(); ok {
			return e.ID, e.StartOffset, true
		}
		id, _ = m.prov.PeekNext()
		return id, 0, false
	}
	if e, ok := m.history.PeekPrevious(); ok {
		return e.ID, e.StartOffset, true
	}
	id, _ = m.prov.PeekPrevious()
	return id, 0, false
}

func (m *Manager) slotFor(s model.Slot) *slot {
	switch s {
	case model.SlotNext:
		return &m.next
	case model.SlotPrevious:
		return &m.prev
	default:
		return nil
	}
}

func (m *Manager) otherSlotLocked(s model.Slot) *slot {
	if s == model.SlotNext {
		return &m.prev
	}
	return &m.next
}

func (m *Manager) releaseSlotLocked(sl *slot) {
	if sl.entry != nil {
		sl.entry.Asset.Release()
		sl.entry = nil
	}
	sl.ready = false
}

func (m *Manager) publishReady(s model.Slot, id string, ready bool) {
	if m.readyEvents == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = m.readyEvents.Publish(ctx, model.ReadyEvent{Slot: s, ID: id, Ready: ready})
}
