// SPDX-License-Identifier: MIT

// Package api exposes the feed engine over HTTP: status, gesture commits,
// a server-sent event stream of readiness and buffer transitions, and the
// operational endpoints (health, readiness, metrics).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reelfeed/reelfeed/internal/api/middleware"
	"github.com/reelfeed/reelfeed/internal/feed/bus"
	"github.com/reelfeed/reelfeed/internal/feed/model"
	"github.com/reelfeed/reelfeed/internal/feed/transition"
	"github.com/reelfeed/reelfeed/internal/health"
	"github.com/reelfeed/reelfeed/internal/log"
)

// ItemView is the outward shape of an on-screen item.
type ItemView struct {
	ID          string  `json:"id"`
	Title       string  `json:"title,omitempty"`
	Collection  string  `json:"collection,omitempty"`
	StartOffset float64 `json:"start_offset"`
}

// SlotView describes one speculative slot.
type SlotView struct {
	ID     string            `json:"id,omitempty"`
	Ready  bool              `json:"ready"`
	Buffer model.BufferState `json:"buffer"`
}

// FeedStatus is the full engine snapshot served by GET /api/feed/status.
type FeedStatus struct {
	Current    *ItemView `json:"current,omitempty"`
	Next       SlotView  `json:"next"`
	Previous   SlotView  `json:"previous"`
	CacheCount int       `json:"cache_count"`
	HistoryLen int       `json:"history_len"`
}

// Controller is the feed surface the handlers drive.
type Controller interface {
	Status() FeedStatus
	Advance(ctx context.Context) (ItemView, error)
	Retreat(ctx context.Context) (ItemView, error)
}

// Deps wires the router.
type Deps struct {
	Controller   Controller
	Health       *health.Manager
	ReadyEvents  *bus.Bus[model.ReadyEvent]
	BufferEvents *bus.Bus[model.BufferEvent]
	RateLimitRPM int
}

// NewRouter builds the HTTP surface with the canonical middleware stack.
func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()
	middleware.Apply(r, deps.RateLimitRPM)

	r.Get("/healthz", deps.Health.ServeHealth)
	r.Get("/readyz", deps.Health.ServeReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/feed", func(r chi.Router) {
		r.Get("/status", handleStatus(deps.Controller))
		r.Post("/advance", handleGesture(deps.Controller.Advance))
		r.Post("/retreat", handleGesture(deps.Controller.Retreat))
		r.Get("/events", handleEvents(deps.ReadyEvents, deps.BufferEvents))
	})
	return r
}

func handleStatus(ctrl Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, ctrl.Status())
	}
}

func handleGesture(commit func(context.Context) (ItemView, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := commit(r.Context())
		switch {
		case err == nil:
			writeJSON(w, r, http.StatusOK, item)
		case errors.Is(err, transition.ErrNoCandidate):
			writeError(w, r, http.StatusConflict, "end_of_feed", "nothing further in this direction")
		default:
			logger := log.WithComponentFromContext(r.Context(), "api")
			logger.Error().Err(err).Msg("gesture failed")
			writeError(w, r, http.StatusBadGateway, "gesture_failed", "could not prepare the item")
		}
	}
}

// handleEvents streams readiness and buffer transitions as server-sent
// events until the client disconnects.
func handleEvents(ready *bus.Bus[model.ReadyEvent], buffer *bus.Bus[model.BufferEvent]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, r, http.StatusInternalServerError, "streaming_unsupported", "response writer cannot stream")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		readySub := ready.Subscribe()
		defer readySub.Close()
		bufferSub := buffer.Subscribe()
		defer bufferSub.Close()

		for {
			select {
			case <-r.Context().Done():
				return
			case ev := <-readySub.C():
				writeEvent(w, flusher, "ready", ev)
			case ev := <-bufferSub.C():
				writeEvent(w, flusher, "buffer", ev)
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("event: " + name + "\ndata: "))
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n\n"))
	flusher.Flush()
}

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	writeJSON(w, r, status, errorBody{Error: code, Detail: detail})
}
