// SPDX-License-Identifier: MIT

// Package resolver turns a content identifier into a playable cache entry.
// The fill pipeline drives the steps one checkpoint at a time; the urgent
// preload path runs them back to back via Resolve.
package resolver

import (
	"context"
	"math/rand"
	"time"

	"github.com/reelfeed/reelfeed/internal/feed/model"
)

// FileVariant is one playable file candidate discovered for an identifier.
type FileVariant struct {
	Name   string `json:"name"`
	Format string `json:"format"`
	Bytes  int64  `json:"bytes,omitempty"`
}

// Resolver is the step-wise resolve contract. Each method is one pipeline
// checkpoint: a fallible, cancellable unit of work that should stay small so
// preemption latency stays bounded by a single step.
type Resolver interface {
	FetchMetadata(ctx context.Context, id string) (*model.DisplayMetadata, error)
	DiscoverFiles(ctx context.Context, id string) ([]FileVariant, error)
	SelectFile(ctx context.Context, id string, variants []FileVariant) (FileVariant, error)
	ResolveURL(ctx context.Context, id string, variant FileVariant) (string, error)
	CreateAsset(ctx context.Context, id, url string, meta *model.DisplayMetadata) (model.AssetHandle, error)
	ProbeDuration(ctx context.Context, id, url string) (time.Duration, error)
}

// OffsetPolicy picks the start offset for a resolved item, once, at resolve
// time. The fraction bounds how deep into the item playback may begin.
type OffsetPolicy struct {
	MaxFraction float64
	// Rand allows deterministic tests; nil uses the shared source.
	Rand *rand.Rand
}

// Choose returns a start offset in seconds for an item of the given
// duration. Unknown durations start at zero.
func (p OffsetPolicy) Choose(duration time.Duration) float64 {
	if duration <= 0 || p.MaxFraction <= 0 {
		return 0
	}
	frac := p.MaxFraction
	if frac > 1 {
		frac = 1
	}
	limit := duration.Seconds() * frac
	if p.Rand != nil {
		return p.Rand.Float64() * limit
	}
	return rand.Float64() * limit // #nosec G404 -- offset jitter, not security
}

// Resolve runs all steps back to back and assembles a cache entry. This is
// the urgent foreground path: no checkpoint gates, the caller has already
// acquired priority. On any failure, partially acquired resources are
// released before returning.
func Resolve(ctx context.Context, r Resolver, id, collectionTag string, offsets OffsetPolicy) (*model.CacheEntry, error) {
	meta, err := r.FetchMetadata(ctx, id)
	if err != nil {
		return nil, err
	}
	variants, err := r.DiscoverFiles(ctx, id)
	if err != nil {
		return nil, err
	}
	variant, err := r.SelectFile(ctx, id, variants)
	if err != nil {
		return nil, err
	}
	url, err := r.ResolveURL(ctx, id, variant)
	if err != nil {
		return nil, err
	}
	asset, err := r.CreateAsset(ctx, id, url, meta)
	if err != nil {
		return nil, err
	}
	duration, err := r.ProbeDuration(ctx, id, url)
	if err != nil {
		asset.Release()
		return nil, err
	}
	return &model.CacheEntry{
		ID:            id,
		CollectionTag: collectionTag,
		Meta:          meta,
		Asset:         asset,
		StartOffset:   offsets.Choose(duration),
		VariantCount:  len(variants),
	}, nil
}
