// SPDX-License-Identifier: MIT

// Package pipeline keeps the cache store populated from the candidate pool.
// One long-lived worker resolves identifiers step by step; between every two
// steps it re-evaluates the preemption gates, so an urgent foreground
// preload never waits longer than one step's latency.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/reelfeed/reelfeed/internal/feed/model"
	"github.com/reelfeed/reelfeed/internal/feed/provider"
	"github.com/reelfeed/reelfeed/internal/feed/resolver"
	"github.com/reelfeed/reelfeed/internal/feed/store"
	"github.com/reelfeed/reelfeed/internal/log"
)

// Config tunes the fill loop. Zero fields fall back to shipped defaults;
// the numbers are empirically tuned, not contractual.
type Config struct {
	// Tick is the loop interval between fill attempts.
	Tick time.Duration
	// Target is the store fill level at which the loop idles.
	Target int
	// MaxDraws bounds candidate selection retries per attempt.
	MaxDraws int
	// RatePerSecond bounds resolve attempts after idle periods.
	RatePerSecond float64
	// Collection tags committed entries.
	Collection string
	// Offsets picks the start offset for resolved items.
	Offsets resolver.OffsetPolicy
	// Rand allows deterministic candidate draws in tests; nil uses the
	// shared source.
	Rand *rand.Rand
}

// Pipeline is the background cache fill worker.
type Pipeline struct {
	cfg      Config
	store    store.Store
	failures *store.FailureTable
	res      resolver.Resolver
	prov     provider.CandidateProvider
	limiter  *rate.Limiter

	// hardBlock is set only by the transition manager while an urgent
	// preload runs; the worker polls it before every step.
	hardBlock atomic.Bool
	// started stays false until the first foreground item is playing, so
	// startup work is not competing with background fill.
	started atomic.Bool

	lastTick atomic.Int64

	randMu sync.Mutex

	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

// New creates a pipeline over the shared store and failure table.
func New(cfg Config, st store.Store, failures *store.FailureTable, res resolver.Resolver, prov provider.CandidateProvider) *Pipeline {
	if cfg.Tick <= 0 {
		cfg.Tick = 500 * time.Millisecond
	}
	if cfg.Target <= 0 {
		cfg.Target = 3
	}
	if cfg.MaxDraws <= 0 {
		cfg.MaxDraws = 10
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 4
	}
	return &Pipeline{
		cfg:      cfg,
		store:    st,
		failures: failures,
		res:      res,
		prov:     prov,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
	}
}

// Pause acquires the hard block. The in-flight attempt, if any, unwinds at
// its next step boundary; Pause does not wait for it.
func (p *Pipeline) Pause() { p.hardBlock.Store(true) }

// Resume releases the hard block.
func (p *Pipeline) Resume() { p.hardBlock.Store(false) }

// NotifyFirstItemReady allows filling to begin. Until called, every attempt
// aborts as interrupted.
func (p *Pipeline) NotifyFirstItemReady() { p.started.Store(true) }

// CancelAll stops the run loop. Safe to call before or after Run.
func (p *Pipeline) CancelAll() {
	p.cancelMu.Lock()
	defer p.cancelMu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

// LastActivity reports when the loop last ticked, for health checks.
func (p *Pipeline) LastActivity() time.Time {
	ns := p.lastTick.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Run drives the fill loop until ctx is cancelled or CancelAll is called.
func (p *Pipeline) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancelMu.Lock()
	p.cancel = cancel
	p.cancelMu.Unlock()
	defer cancel()

	logger := log.WithComponent("pipeline")
	logger.Info().
		Dur("tick", p.cfg.Tick).
		Int("target", p.cfg.Target).
		Msg("fill pipeline started")

	ticker := time.NewTicker(p.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("fill pipeline stopped")
			return ctx.Err()
		case <-ticker.C:
		}
		p.lastTick.Store(time.Now().UnixNano())

		if p.store.Count() >= p.cfg.Target {
			continue
		}
		if err := p.limiter.Wait(ctx); err != nil {
			continue
		}

		err := p.fillOnce(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrPreempted), errors.Is(err, ErrInterrupted):
			// Routine; retried next tick.
		case errors.Is(err, ErrExhausted):
			logger.Warn().Msg("no viable candidate, cache cannot currently be filled")
		}
	}
}

var tracer = otel.Tracer("github.com/reelfeed/reelfeed/internal/feed/pipeline")

// fillOnce runs one complete fill attempt: candidate selection through
// commit, gated before every step.
func (p *Pipeline) fillOnce(parent context.Context) (err error) {
	attemptID := uuid.NewString()
	ctx := log.ContextWithAttemptID(parent, attemptID)
	ctx, span := tracer.Start(ctx, "pipeline.fill")
	defer span.End()

	start := time.Now()
	defer func() {
		outcome := outcomeOf(err)
		fillAttempts.WithLabelValues(outcome).Inc()
		span.SetAttributes(attribute.String("outcome", outcome))
		if err == nil {
			fillDuration.Observe(time.Since(start).Seconds())
		}
	}()

	if err := p.checkpoint(ctx, "select-candidate"); err != nil {
		return err
	}
	id, err := p.selectCandidate()
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("identifier", id))
	logger := log.WithComponentFromContext(ctx, "pipeline")

	entry, err := p.resolveSteps(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPreempted) || errors.Is(err, ErrInterrupted) {
			logger.Debug().Str(log.FieldIdentifier, id).Err(err).Msg("fill attempt aborted")
			return err
		}
		permanent := resolver.IsPermanent(err)
		p.failures.Record(id, permanent)
		logger.Warn().
			Str(log.FieldIdentifier, id).
			Bool("permanent", permanent).
			Err(err).
			Msg("fill attempt failed")
		return err
	}

	// commit
	if err := p.checkpoint(ctx, "commit"); err != nil {
		entry.Asset.Release()
		return err
	}
	p.store.Insert(entry)
	logger.Debug().
		Str(log.FieldIdentifier, id).
		Int(log.FieldCacheSize, p.store.Count()).
		Dur("elapsed", time.Since(start)).
		Msg("cache entry committed")
	return nil
}

// resolveSteps runs the resolver checkpoints for one candidate. On any
// error after asset creation, the asset is released before returning.
func (p *Pipeline) resolveSteps(ctx context.Context, id string) (*model.CacheEntry, error) {
	if err := p.checkpoint(ctx, "fetch-metadata"); err != nil {
		return nil, err
	}
	meta, err := p.res.FetchMetadata(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := p.checkpoint(ctx, "discover-files"); err != nil {
		return nil, err
	}
	variants, err := p.res.DiscoverFiles(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := p.checkpoint(ctx, "select-file"); err != nil {
		return nil, err
	}
	variant, err := p.res.SelectFile(ctx, id, variants)
	if err != nil {
		return nil, err
	}

	if err := p.checkpoint(ctx, "resolve-url"); err != nil {
		return nil, err
	}
	url, err := p.res.ResolveURL(ctx, id, variant)
	if err != nil {
		return nil, err
	}

	if err := p.checkpoint(ctx, "create-asset"); err != nil {
		return nil, err
	}
	asset, err := p.res.CreateAsset(ctx, id, url, meta)
	if err != nil {
		return nil, err
	}

	if err := p.checkpoint(ctx, "probe-duration"); err != nil {
		asset.Release()
		return nil, err
	}
	duration, err := p.res.ProbeDuration(ctx, id, url)
	if err != nil {
		asset.Release()
		return nil, err
	}

	if err := p.checkpoint(ctx, "compute-offset"); err != nil {
		asset.Release()
		return nil, err
	}
	offset := p.cfg.Offsets.Choose(duration)

	if err := p.checkpoint(ctx, "count-variants"); err != nil {
		asset.Release()
		return nil, err
	}
	return &model.CacheEntry{
		ID:            id,
		CollectionTag: p.cfg.Collection,
		Meta:          meta,
		Asset:         asset,
		StartOffset:   offset,
		VariantCount:  len(variants),
	}, nil
}

// checkpoint evaluates the preemption gates. Called before every step; the
// hard block wins over everything else.
func (p *Pipeline) checkpoint(ctx context.Context, name string) error {
	if p.hardBlock.Load() {
		logger := log.WithComponentFromContext(ctx, "pipeline")
		logger.Debug().
			Str(log.FieldCheckpoint, name).
			Msg("hard block observed")
		return fmt.Errorf("%s: %w", name, ErrPreempted)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", name, ErrInterrupted)
	default:
	}
	if !p.started.Load() {
		return fmt.Errorf("%s: %w", name, ErrInterrupted)
	}
	return nil
}

// selectCandidate draws a random identifier from the pool, skipping cached
// and permanently failed ones, bounded to min(MaxDraws, poolSize) draws.
func (p *Pipeline) selectCandidate() (string, error) {
	pool := p.prov.CandidatePool()
	if len(pool) == 0 {
		return "", ErrExhausted
	}
	cached := p.store.Identifiers()

	draws := p.cfg.MaxDraws
	if len(pool) < draws {
		draws = len(pool)
	}
	for i := 0; i < draws; i++ {
		id := pool[p.intn(len(pool))]
		if _, ok := cached[id]; ok {
			continue
		}
		if p.failures.IsPermanent(id) {
			continue
		}
		return id, nil
	}
	return "", ErrExhausted
}

func (p *Pipeline) intn(n int) int {
	if p.cfg.Rand != nil {
		p.randMu.Lock()
		defer p.randMu.Unlock()
		return p.cfg.Rand.Intn(n)
	}
	return rand.Intn(n) // #nosec G404 -- candidate shuffle, not security
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, ErrPreempted):
		return outcomePreempted
	case errors.Is(err, ErrInterrupted):
		return outcomeInterrupted
	case errors.Is(err, ErrExhausted):
		return outcomeExhausted
	case resolver.IsPermanent(err):
		return outcomeContent
	default:
		return outcomeTransient
	}
}
