// SPDX-License-Identifier: MIT

package metacache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelfeed/reelfeed/internal/feed/model"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache(0)
	defer func() { _ = c.Close() }()
	ctx := context.Background()

	_, found := c.Get(ctx, "a")
	assert.False(t, found)

	c.Set(ctx, "a", &model.DisplayMetadata{Title: "Alpha"}, time.Minute)
	got, found := c.Get(ctx, "a")
	require.True(t, found)
	assert.Equal(t, "Alpha", got.Title)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(0)
	defer func() { _ = c.Close() }()
	ctx := context.Background()

	c.Set(ctx, "a", &model.DisplayMetadata{Title: "Alpha"}, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	_, found := c.Get(ctx, "a")
	assert.False(t, found)
}

func TestMemoryCache_GetReturnsCopy(t *testing.T) {
	c := NewMemoryCache(0)
	defer func() { _ = c.Close() }()
	ctx := context.Background()

	c.Set(ctx, "a", &model.DisplayMetadata{Title: "Alpha"}, time.Minute)
	got, _ := c.Get(ctx, "a")
	got.Title = "mutated"

	again, _ := c.Get(ctx, "a")
	assert.Equal(t, "Alpha", again.Title)
}

func TestNoOpCache(t *testing.T) {
	c := NewNoOpCache()
	ctx := context.Background()
	c.Set(ctx, "a", &model.DisplayMetadata{Title: "Alpha"}, time.Minute)
	_, found := c.Get(ctx, "a")
	assert.False(t, found)
	assert.NoError(t, c.Close())
}
