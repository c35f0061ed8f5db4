// SPDX-License-Identifier: MIT

// Package daemon assembles the feed engine and runs it as a long-lived
// process: HTTP surface, background fill, config reload and ordered
// shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"golang.org/x/sync/errgroup"

	"github.com/reelfeed/reelfeed/internal/api"
	"github.com/reelfeed/reelfeed/internal/config"
	"github.com/reelfeed/reelfeed/internal/feed/buffering"
	"github.com/reelfeed/reelfeed/internal/feed/bus"
	"github.com/reelfeed/reelfeed/internal/feed/history"
	"github.com/reelfeed/reelfeed/internal/feed/metacache"
	"github.com/reelfeed/reelfeed/internal/feed/model"
	"github.com/reelfeed/reelfeed/internal/feed/pipeline"
	"github.com/reelfeed/reelfeed/internal/feed/provider"
	"github.com/reelfeed/reelfeed/internal/feed/resolver"
	"github.com/reelfeed/reelfeed/internal/feed/store"
	"github.com/reelfeed/reelfeed/internal/feed/transition"
	"github.com/reelfeed/reelfeed/internal/health"
	"github.com/reelfeed/reelfeed/internal/log"
	"github.com/reelfeed/reelfeed/internal/playback"
)

const (
	historySnapshot = "history.json"
	favoritesDB     = "favorites.db"
	metacacheDir    = "metacache"

	shutdownTimeout = 10 * time.Second
)

// App owns the assembled engine and its runtime lifecycle. Everything is
// wired once at construction; Run only starts and stops it.
type App struct {
	logger zerolog.Logger
	holder *config.Holder

	store    store.Store
	failures *store.FailureTable
	meta     metacache.Cache
	prov     provider.CandidateProvider
	res      resolver.Resolver
	hist     *history.Log
	pipe     *pipeline.Pipeline
	manager  *transition.Manager
	ctrl     *Controller
	health   *health.Manager
	router   http.Handler

	histPath   string
	collection string

	closeOnce sync.Once
	reload    os.Signal
}

// NewApp assembles the engine from the held configuration. The context
// bounds construction-time work (database opens, connection checks), not
// the daemon lifetime.
func NewApp(ctx context.Context, holder *config.Holder, version string) (*App, error) {
	cfg := holder.Get()
	logger := log.WithComponent("daemon")

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	a := &App{
		logger:     logger,
		holder:     holder,
		histPath:   filepath.Join(cfg.DataDir, historySnapshot),
		collection: cfg.Feed.Collection,
		reload:     syscall.SIGHUP,
	}

	meta, err := newMetaCache(cfg)
	if err != nil {
		return nil, err
	}
	a.meta = meta

	prov, err := newProvider(ctx, cfg)
	if err != nil {
		_ = meta.Close()
		return nil, err
	}
	a.prov = prov

	assets := playback.NewSimFactory()
	res, err := newResolver(cfg, assets, meta)
	if err != nil {
		if f, ok := prov.(*provider.Favorites); ok {
			_ = f.Close()
		}
		_ = meta.Close()
		return nil, err
	}
	a.res = res

	hist, err := history.Load(a.histPath)
	if err != nil {
		logger.Warn().Err(err).Msg("history snapshot unreadable, starting fresh")
		hist = history.New()
	}
	a.hist = hist

	a.store = store.NewInstrumentedStore(store.NewMemoryStore(cfg.Feed.CacheCapacity))
	a.failures = store.NewFailureTable(store.FailureTableConfig{
		ContentThreshold:   cfg.Feed.ContentFailureThreshold,
		TransientThreshold: cfg.Feed.TransientFailureThreshold,
		TransientTTL:       cfg.Feed.TransientFailureTTL,
	})

	offsets := resolver.OffsetPolicy{MaxFraction: cfg.Feed.MaxStartFraction}

	readyEvents := bus.New[model.ReadyEvent](func(reason string) {
		logger.Debug().Str("reason", reason).Msg("ready event dropped")
	})
	bufferEvents := bus.New[model.BufferEvent](func(reason string) {
		logger.Debug().Str("reason", reason).Msg("buffer event dropped")
	})

	a.pipe = pipeline.New(pipeline.Config{
		Tick:          cfg.Feed.FillTick,
		Target:        cfg.Feed.FillTarget,
		MaxDraws:      cfg.Feed.MaxDraws,
		RatePerSecond: cfg.Feed.RatePerSecond,
		Collection:    cfg.Feed.Collection,
		Offsets:       offsets,
	}, a.store, a.failures, a.res, a.prov)

	a.manager = transition.New(transition.Config{
		Collection:   cfg.Feed.Collection,
		Offsets:      offsets,
		ReadyTimeout: cfg.Feed.ReadyTimeout,
		Monitor: buffering.Config{
			SampleInterval: cfg.Feed.SampleInterval,
			Thresholds: model.BufferThresholds{
				Critical:  cfg.Feed.BufferCritical,
				Low:       cfg.Feed.BufferLow,
				Good:      cfg.Feed.BufferGood,
				Excellent: cfg.Feed.BufferExcellent,
			},
		},
	}, a.store, a.failures, a.res, a.prov, a.pipe, a.hist, readyEvents, bufferEvents)

	a.ctrl = NewController(a.manager, a.pipe, a.store, a.prov, a.res, a.hist, offsets, cfg.Feed.Collection)

	a.health = health.NewManager(version)
	a.health.RegisterChecker(health.NewPipelineChecker(a.pipe.LastActivity, 0))
	a.health.RegisterChecker(health.NewCacheChecker(a.store.Count, cfg.Feed.FillTarget))
	if hr, ok := res.(*resolver.HTTPResolver); ok {
		a.health.RegisterChecker(health.NewBreakerChecker(hr.Breaker()))
	}

	a.router = api.NewRouter(api.Deps{
		Controller:   a.ctrl,
		Health:       a.health,
		ReadyEvents:  readyEvents,
		BufferEvents: bufferEvents,
		RateLimitRPM: cfg.RateLimit.RequestsPerMinute,
	})

	return a, nil
}

func newMetaCache(cfg config.AppConfig) (metacache.Cache, error) {
	switch cfg.Metacache.Backend {
	case config.BackendBadger:
		return metacache.OpenBadgerCache(filepath.Join(cfg.DataDir, metacacheDir))
	case config.BackendRedis:
		return metacache.NewRedisCache(metacache.RedisConfig{Addr: cfg.Metacache.RedisAddr}, log.WithComponent("metacache"))
	case config.BackendNone:
		return metacache.NewNoOpCache(), nil
	default:
		return metacache.NewMemoryCache(5 * time.Minute), nil
	}
}

func newProvider(ctx context.Context, cfg config.AppConfig) (provider.CandidateProvider, error) {
	switch cfg.Feed.Provider {
	case config.ProviderFavorites:
		return provider.OpenFavorites(ctx, filepath.Join(cfg.DataDir, favoritesDB))
	case config.ProviderResults:
		return provider.NewResults(cfg.Feed.ResultItems), nil
	default:
		return provider.NewCatalog(cfg.Feed.Pool, nil), nil
	}
}

func newResolver(cfg config.AppConfig, assets resolver.AssetFactory, meta metacache.Cache) (resolver.Resolver, error) {
	if cfg.Catalog.BaseURL == "" {
		return resolver.NewStaticResolver(assets)
	}
	return resolver.NewHTTPResolver(resolver.HTTPConfig{
		BaseURL:             cfg.Catalog.BaseURL,
		Timeout:             cfg.Catalog.Timeout,
		SupportedFormats:    cfg.Catalog.SupportedFormats,
		BreakerThreshold:    cfg.Catalog.BreakerThreshold,
		BreakerResetTimeout: cfg.Catalog.BreakerResetTimeout,
		MetadataTTL:         cfg.Catalog.MetadataTTL,
	}, assets, meta)
}

// Run resolves the first item, then serves until ctx is cancelled or a
// fatal error occurs. Shutdown is ordered: HTTP drains, the fill pipeline
// stops, the slots release their assets, and the history snapshot is
// written last.
func (a *App) Run(ctx context.Context) error {
	if err := a.ctrl.Start(ctx); err != nil {
		a.Close()
		return fmt.Errorf("start feed: %w", err)
	}

	cfg := a.holder.Get()
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		a.Close()
		return fmt.Errorf("listen on %s: %w", cfg.Listen, err)
	}
	srv := &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	a.logger.Info().Str("listen", ln.Addr().String()).Msg("serving")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shCtx)
	})

	g.Go(func() error {
		if err := a.pipe.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("fill pipeline: %w", err)
		}
		return nil
	})

	// Config watcher is best-effort: a missing file or unsupported
	// filesystem should not take the daemon down.
	if err := a.holder.StartWatcher(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("config watcher not started")
	}
	updates := make(chan config.AppConfig, 1)
	a.holder.Subscribe(updates)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case next := <-updates:
				a.applyUpdate(next)
			}
		}
	})

	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, a.reload)
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hup:
				a.logger.Info().Msg("reload signal received")
				if err := a.holder.Reload(ctx); err != nil {
					a.logger.Warn().Err(err).Msg("config reload failed")
				}
			}
		}
	})

	runErr := g.Wait()
	a.Close()
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// applyUpdate applies the hot-reloadable subset of the configuration. A
// collection change resets the failure table and invalidates the armed
// slots so the new collection gets a clean slate; structural settings
// (listen address, provider, capacity) need a restart.
func (a *App) applyUpdate(next config.AppConfig) {
	if next.Feed.Collection == a.collection {
		return
	}
	a.logger.Info().
		Str(log.FieldOldState, a.collection).
		Str(log.FieldNewState, next.Feed.Collection).
		Msg("collection changed, resetting failure state")
	a.collection = next.Feed.Collection
	a.failures.Reset()
	a.manager.Invalidate()
}

// Close tears the engine down. Safe to call more than once; Run calls it
// on the way out.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.pipe.CancelAll()
		a.manager.Close()
		a.store.Clear()

		if err := a.hist.Save(a.histPath); err != nil {
			a.logger.Warn().Err(err).Msg("history snapshot not written")
		}
		if err := a.meta.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("metadata cache close failed")
		}
		if f, ok := a.prov.(*provider.Favorites); ok {
			if err := f.Close(); err != nil {
				a.logger.Warn().Err(err).Msg("favorites close failed")
			}
		}
	})
}
