// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/reelfeed/reelfeed/internal/log"
)

// Holder provides thread-safe access to the current configuration and hot
// reloading from file. A reload is atomic: either the new config validates
// and is applied as a whole, or the old one stays.
type Holder struct {
	mu      sync.RWMutex
	current AppConfig
	loader  *Loader
	watcher *fsnotify.Watcher
	logger  zerolog.Logger

	listenerMu sync.RWMutex
	listeners  []chan<- AppConfig
}

// NewHolder creates a holder around the initial configuration.
func NewHolder(initial AppConfig, loader *Loader) *Holder {
	return &Holder{
		current: initial,
		loader:  loader,
		logger:  log.WithComponent("config"),
	}
}

// Get returns the current configuration.
func (h *Holder) Get() AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Subscribe registers a channel that receives each successfully applied
// configuration. Sends are non-blocking; a full channel misses the update.
func (h *Holder) Subscribe(ch chan<- AppConfig) {
	h.listenerMu.Lock()
	defer h.listenerMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

// Reload loads and validates a fresh configuration from disk.
func (h *Holder) Reload(_ context.Context) error {
	h.logger.Info().Str(log.FieldEvent, "config.reload_start").Msg("reloading configuration")

	newCfg, err := h.loader.Load()
	if err != nil {
		h.logger.Error().Err(err).
			Str(log.FieldEvent, "config.reload_failed").
			Msg("keeping previous configuration")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	old := h.current
	h.current = newCfg
	h.mu.Unlock()

	h.notify(newCfg)
	h.logChanges(old, newCfg)
	h.logger.Info().Str(log.FieldEvent, "config.reload_success").Msg("configuration reloaded")
	return nil
}

// StartWatcher watches the config file and reloads on change. A no-op when
// no config file is in use.
func (h *Holder) StartWatcher(ctx context.Context) error {
	if h.loader.configPath == "" {
		h.logger.Info().
			Str(log.FieldEvent, "config.watcher_disabled").
			Msg("no config file, watcher disabled")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(h.loader.configPath); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config file: %w", err)
	}
	h.watcher = watcher

	h.logger.Info().
		Str(log.FieldEvent, "config.watcher_started").
		Str("path", h.loader.configPath).
		Msg("watching config file")

	go h.watchLoop(ctx)
	return nil
}

func (h *Holder) watchLoop(ctx context.Context) {
	// Editors fire several events per save; debounce them into one reload.
	const debounce = 500 * time.Millisecond
	var timer *time.Timer

	defer func() { _ = h.watcher.Close() }()
	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str(log.FieldEvent, "config.watcher_stopped").Msg("config watcher stopped")
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				if err := h.Reload(ctx); err != nil {
					h.logger.Error().Err(err).
						Str(log.FieldEvent, "config.auto_reload_failed").
						Msg("automatic reload failed")
				}
			})
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Warn().Err(err).Msg("config watcher error")
		}
	}
}

func (h *Holder) notify(cfg AppConfig) {
	h.listenerMu.RLock()
	defer h.listenerMu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- cfg:
		default:
		}
	}
}

func (h *Holder) logChanges(old, next AppConfig) {
	if old.Feed.Collection != next.Feed.Collection {
		h.logger.Info().
			Str("old", old.Feed.Collection).
			Str("new", next.Feed.Collection).
			Msg("feed collection changed")
	}
	if old.LogLevel != next.LogLevel {
		h.logger.Info().
			Str("old", old.LogLevel).
			Str("new", next.LogLevel).
			Msg("log level changed")
	}
	if old.Feed.CacheCapacity != next.Feed.CacheCapacity {
		h.logger.Info().
			Int("old", old.Feed.CacheCapacity).
			Int("new", next.Feed.CacheCapacity).
			Msg("cache capacity changed")
	}
}
