// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"errors"
	"fmt"

	"github.com/reelfeed/reelfeed/internal/api"
	"github.com/reelfeed/reelfeed/internal/feed/history"
	"github.com/reelfeed/reelfeed/internal/feed/model"
	"github.com/reelfeed/reelfeed/internal/feed/pipeline"
	"github.com/reelfeed/reelfeed/internal/feed/provider"
	"github.com/reelfeed/reelfeed/internal/feed/resolver"
	"github.com/reelfeed/reelfeed/internal/feed/store"
	"github.com/reelfeed/reelfeed/internal/feed/transition"
	"github.com/reelfeed/reelfeed/internal/log"
)

// maxSkips bounds how many unusable items a single gesture may skip past
// before giving up.
const maxSkips = 3

// Controller drives the feed for the HTTP surface. It owns the startup
// ordering (first item before background fill) and the degraded path when a
// slot is not ready at gesture time.
type Controller struct {
	manager *transition.Manager
	pipe    *pipeline.Pipeline
	store   store.Store
	prov    provider.CandidateProvider
	res     resolver.Resolver
	hist    *history.Log
	offsets resolver.OffsetPolicy
	coll    string
}

// NewController wires the controller over the engine's moving parts.
func NewController(manager *transition.Manager, pipe *pipeline.Pipeline, st store.Store, prov provider.CandidateProvider, res resolver.Resolver, hist *history.Log, offsets resolver.OffsetPolicy, collection string) *Controller {
	return &Controller{
		manager: manager,
		pipe:    pipe,
		store:   st,
		prov:    prov,
		res:     res,
		hist:    hist,
		offsets: offsets,
		coll:    collection,
	}
}

// Start resolves the very first item in the foreground, puts it on screen,
// and only then releases the background fill and arms both slots. ctx is
// the daemon lifetime.
func (c *Controller) Start(ctx context.Context) error {
	logger := log.WithComponent("daemon")

	var lastErr error
	for i := 0; i < maxSkips; i++ {
		id, ok := c.prov.Advance()
		if !ok {
			if lastErr != nil {
				return fmt.Errorf("no startable item: %w", lastErr)
			}
			return errors.New("feed is empty")
		}
		entry, err := resolver.Resolve(ctx, c.res, id, c.coll, c.offsets)
		if err != nil {
			lastErr = err
			logger.Warn().Str(log.FieldIdentifier, id).Err(err).Msg("first item failed, skipping")
			continue
		}

		c.manager.Start(ctx, entry)
		c.pipe.NotifyFirstItemReady()

		go func() {
			if err := c.manager.EnsureAllReady(ctx); err != nil {
				logger.Debug().Err(err).Msg("initial slot arming incomplete")
			}
		}()
		return nil
	}
	return fmt.Errorf("no startable item after %d attempts: %w", maxSkips, lastErr)
}

// gesture bundles the direction-specific operations of one swipe: the
// commit and prepare calls, the provider peek/consume pair for that
// direction, and the history peek that tells whether the candidate is a
// replay rather than a fresh provider item.
type gesture struct {
	commit  func(context.Context) (*model.CacheEntry, error)
	ensure  func(context.Context) error
	peek    func() (string, bool)
	consume func() (string, bool)
	replay  func() (*model.CacheEntry, bool)
}

// Advance commits a swipe forward. When the slot is not ready the gesture
// degrades to a blocking prepare rather than an indefinite spinner, and
// unusable items are skipped silently.
func (c *Controller) Advance(ctx context.Context) (api.ItemView, error) {
	return c.commit(ctx, gesture{
		commit:  c.manager.CommitAdvance,
		ensure:  c.manager.EnsureNextReady,
		peek:    c.prov.PeekNext,
		consume: c.prov.Advance,
		replay:  c.hist.PeekNext,
	})
}

// Retreat commits a swipe backward.
func (c *Controller) Retreat(ctx context.Context) (api.ItemView, error) {
	return c.commit(ctx, gesture{
		commit:  c.manager.CommitRetreat,
		ensure:  c.manager.EnsurePreviousReady,
		peek:    c.prov.PeekPrevious,
		consume: c.prov.Retreat,
		replay:  c.hist.PeekPrevious,
	})
}

func (c *Controller) commit(ctx context.Context, g gesture) (api.ItemView, error) {
	entry, err := g.commit(ctx)
	if err == nil {
		return itemView(entry), nil
	}
	if !errors.Is(err, transition.ErrSlotNotReady) {
		return api.ItemView{}, err
	}

	// Degraded path: prepare synchronously at gesture time.
	logger := log.WithComponentFromContext(ctx, "daemon")
	for i := 0; i < maxSkips; i++ {
		err = g.ensure(ctx)
		if err == nil {
			entry, err = g.commit(ctx)
			if err == nil {
				return itemView(entry), nil
			}
		}
		switch {
		case errors.Is(err, transition.ErrNoCandidate):
			return api.ItemView{}, err
		case resolver.IsPermanent(err):
			// Content failure on a fresh provider item: consume it in the
			// gesture's direction and move on without surfacing it. A
			// replayed history item cannot be consumed this way, and
			// retrying it would fail identically, so give up instead.
			if _, replaying := g.replay(); replaying {
				return api.ItemView{}, fmt.Errorf("unplayable item in history: %w", err)
			}
			id, ok := g.peek()
			if !ok || id != resolver.FailedID(err) {
				return api.ItemView{}, fmt.Errorf("gesture degraded path: %w", err)
			}
			skipped, _ := g.consume()
			logger.Info().Str(log.FieldIdentifier, skipped).Msg("skipping unusable item")
		case errors.Is(err, transition.ErrStale):
			// A concurrent commit moved the position; retry against it.
		default:
			return api.ItemView{}, fmt.Errorf("gesture degraded path: %w", err)
		}
	}
	return api.ItemView{}, fmt.Errorf("gesture failed after %d skips: %w", maxSkips, err)
}

// Status snapshots the engine for the status endpoint.
func (c *Controller) Status() api.FeedStatus {
	status := api.FeedStatus{
		CacheCount: c.store.Count(),
		HistoryLen: c.hist.Len(),
	}
	if current, ok := c.manager.Current(); ok {
		v := itemView(current)
		status.Current = &v
	}
	status.Next = c.slotView(model.SlotNext)
	status.Previous = c.slotView(model.SlotPrevious)
	return status
}

func (c *Controller) slotView(s model.Slot) api.SlotView {
	id, ready := c.manager.SlotState(s)
	return api.SlotView{
		ID:     id,
		Ready:  ready,
		Buffer: c.manager.BufferState(s),
	}
}

func itemView(e *model.CacheEntry) api.ItemView {
	v := api.ItemView{
		ID:          e.ID,
		Collection:  e.CollectionTag,
		StartOffset: e.StartOffset,
	}
	if e.Meta != nil {
		v.Title = e.Meta.Title
	}
	return v
}
