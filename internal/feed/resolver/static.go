// SPDX-License-Identifier: MIT

package resolver

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/reelfeed/reelfeed/internal/feed/model"
)

// StaticResolver serves synthetic metadata and file variants without a
// catalog backend. It exists for local operation and demos: every
// identifier resolves deterministically, with the duration derived from a
// hash of the identifier so runs are reproducible.
type StaticResolver struct {
	assets      AssetFactory
	minDuration time.Duration
	maxDuration time.Duration
}

// NewStaticResolver creates a catalog-less resolver backed by the given
// asset factory.
func NewStaticResolver(assets AssetFactory) (*StaticResolver, error) {
	if assets == nil {
		return nil, fmt.Errorf("static resolver: asset factory is required")
	}
	return &StaticResolver{
		assets:      assets,
		minDuration: 15 * time.Second,
		maxDuration: 3 * time.Minute,
	}, nil
}

func (s *StaticResolver) FetchMetadata(ctx context.Context, id string) (*model.DisplayMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, NewError(KindNotFound, id, fmt.Errorf("empty identifier"))
	}
	return &model.DisplayMetadata{
		Title: normalizeTitle(strings.ReplaceAll(id, "-", " ")),
	}, nil
}

func (s *StaticResolver) DiscoverFiles(ctx context.Context, id string) ([]FileVariant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []FileVariant{{Name: id + ".mp4", Format: "mp4"}}, nil
}

func (s *StaticResolver) SelectFile(ctx context.Context, id string, variants []FileVariant) (FileVariant, error) {
	if err := ctx.Err(); err != nil {
		return FileVariant{}, err
	}
	if len(variants) == 0 {
		return FileVariant{}, NewError(KindNoPlayableFile, id, fmt.Errorf("no variants"))
	}
	return variants[0], nil
}

func (s *StaticResolver) ResolveURL(ctx context.Context, id string, variant FileVariant) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "local://" + id + "/" + variant.Name, nil
}

func (s *StaticResolver) CreateAsset(ctx context.Context, id, url string, meta *model.DisplayMetadata) (model.AssetHandle, error) {
	return s.assets.New(ctx, id, url, meta)
}

func (s *StaticResolver) ProbeDuration(ctx context.Context, id, _ string) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.duration(id), nil
}

// duration maps an identifier onto [minDuration, maxDuration) via FNV-1a.
func (s *StaticResolver) duration(id string) time.Duration {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	span := int64(s.maxDuration - s.minDuration)
	return s.minDuration + time.Duration(int64(h.Sum64()%uint64(span))) // #nosec G115 -- span is positive and small
}
