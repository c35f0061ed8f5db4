// SPDX-License-Identifier: MIT

package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelfeed/reelfeed/internal/feed/bus"
	"github.com/reelfeed/reelfeed/internal/feed/model"
	"github.com/reelfeed/reelfeed/internal/feed/transition"
	"github.com/reelfeed/reelfeed/internal/health"
)

type fakeController struct {
	status     FeedStatus
	advanceErr error
	retreatErr error
}

func (c *fakeController) Status() FeedStatus { return c.status }

func (c *fakeController) Advance(context.Context) (ItemView, error) {
	if c.advanceErr != nil {
		return ItemView{}, c.advanceErr
	}
	return ItemView{ID: "next-item"}, nil
}

func (c *fakeController) Retreat(context.Context) (ItemView, error) {
	if c.retreatErr != nil {
		return ItemView{}, c.retreatErr
	}
	return ItemView{ID: "prev-item"}, nil
}

func newTestServer(t *testing.T, ctrl *fakeController) (*httptest.Server, *bus.Bus[model.ReadyEvent], *bus.Bus[model.BufferEvent]) {
	t.Helper()
	ready := bus.New[model.ReadyEvent](nil)
	buffer := bus.New[model.BufferEvent](nil)
	router := NewRouter(Deps{
		Controller:   ctrl,
		Health:       health.NewManager("test"),
		ReadyEvents:  ready,
		BufferEvents: buffer,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, ready, buffer
}

func TestStatusEndpoint(t *testing.T) {
	ctrl := &fakeController{status: FeedStatus{
		Current:    &ItemView{ID: "clip-1", Title: "Clip One"},
		Next:       SlotView{ID: "clip-2", Ready: true, Buffer: model.BufferGood},
		CacheCount: 3,
	}}
	srv, _, _ := newTestServer(t, ctrl)

	resp, err := http.Get(srv.URL + "/api/feed/status")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var status FeedStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "clip-1", status.Current.ID)
	assert.True(t, status.Next.Ready)
	assert.Equal(t, 3, status.CacheCount)
}

func TestGestureEndpoints(t *testing.T) {
	ctrl := &fakeController{}
	srv, _, _ := newTestServer(t, ctrl)

	resp, err := http.Post(srv.URL+"/api/feed/advance", "", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var item ItemView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&item))
	assert.Equal(t, "next-item", item.ID)
}

func TestGesture_EndOfFeedIsConflict(t *testing.T) {
	ctrl := &fakeController{retreatErr: transition.ErrNoCandidate}
	srv, _, _ := newTestServer(t, ctrl)

	resp, err := http.Post(srv.URL+"/api/feed/retreat", "", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "end_of_feed", body["error"])
}

func TestEventsStream(t *testing.T) {
	ctrl := &fakeController{}
	srv, ready, _ := newTestServer(t, ctrl)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/feed/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Give the handler a moment to subscribe before publishing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, ready.Publish(ctx, model.ReadyEvent{Slot: model.SlotNext, ID: "clip-2", Ready: true}))

	reader := bufio.NewReader(resp.Body)
	var sawEvent, sawData bool
	for !sawData {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		if line == "event: ready" {
			sawEvent = true
		}
		if strings.HasPrefix(line, "data: ") {
			sawData = true
			var ev model.ReadyEvent
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
			assert.Equal(t, model.SlotNext, ev.Slot)
			assert.True(t, ev.Ready)
		}
	}
	assert.True(t, sawEvent)
}

func TestHealthEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t, &fakeController{})

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		_ = resp.Body.Close()
	}

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
