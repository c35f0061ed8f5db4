// SPDX-License-Identifier: MIT

package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/reelfeed/reelfeed/internal/feed/metacache"
	"github.com/reelfeed/reelfeed/internal/feed/model"
	"github.com/reelfeed/reelfeed/internal/log"
	"github.com/reelfeed/reelfeed/internal/platform/httpx"
	"github.com/reelfeed/reelfeed/internal/resilience"
)

// AssetFactory constructs playable asset handles from a resolved URL. The
// playback engine behind it is a collaborator, not part of this core.
type AssetFactory interface {
	New(ctx context.Context, id, url string, meta *model.DisplayMetadata) (model.AssetHandle, error)
}

// HTTPConfig configures the catalog-backed resolver.
type HTTPConfig struct {
	BaseURL             string
	Timeout             time.Duration
	SupportedFormats    []string
	BreakerThreshold    int
	BreakerResetTimeout time.Duration
	MetadataTTL         time.Duration
}

var defaultFormats = []string{"mp4", "m4v", "mov", "webm", "m3u8"}

// HTTPResolver resolves identifiers against a remote catalog API. All
// network calls run through a circuit breaker; concurrent metadata fetches
// for the same identifier are deduplicated with singleflight.
type HTTPResolver struct {
	base      string
	hc        *http.Client
	cb        *resilience.CircuitBreaker
	assets    AssetFactory
	meta      metacache.Cache
	metaTTL   time.Duration
	supported map[string]struct{}
	sf        singleflight.Group

	mu        sync.Mutex
	durations map[string]time.Duration // duration hints captured from metadata
}

// NewHTTPResolver creates a resolver for the catalog at cfg.BaseURL.
// metaCache may be nil to disable metadata caching.
func NewHTTPResolver(cfg HTTPConfig, assets AssetFactory, metaCache metacache.Cache) (*HTTPResolver, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("catalog base URL is empty")
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog base URL %q: %w", cfg.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported catalog base URL scheme %q", u.Scheme)
	}
	if assets == nil {
		return nil, fmt.Errorf("asset factory is nil")
	}
	if metaCache == nil {
		metaCache = metacache.NewNoOpCache()
	}

	formats := cfg.SupportedFormats
	if len(formats) == 0 {
		formats = defaultFormats
	}
	supported := make(map[string]struct{}, len(formats))
	for _, f := range formats {
		supported[strings.ToLower(f)] = struct{}{}
	}

	metaTTL := cfg.MetadataTTL
	if metaTTL <= 0 {
		metaTTL = 15 * time.Minute
	}

	return &HTTPResolver{
		base:      base,
		hc:        httpx.NewClient(cfg.Timeout),
		cb:        resilience.NewCircuitBreaker("catalog", cfg.BreakerThreshold, cfg.BreakerResetTimeout),
		assets:    assets,
		meta:      metaCache,
		metaTTL:   metaTTL,
		supported: supported,
		durations: make(map[string]time.Duration),
	}, nil
}

// Breaker exposes the catalog circuit breaker for health reporting.
func (r *HTTPResolver) Breaker() *resilience.CircuitBreaker { return r.cb }

type itemDTO struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	Collection      string  `json:"collection"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type filesDTO struct {
	Files []FileVariant `json:"files"`
}

type urlDTO struct {
	URL string `json:"url"`
}

func (r *HTTPResolver) FetchMetadata(ctx context.Context, id string) (meta *model.DisplayMetadata, err error) {
	defer observeStep("fetch_metadata", time.Now(), err)

	if cached, ok := r.meta.Get(ctx, id); ok {
		return cached, nil
	}

	// The deduplicated fetch runs on a context detached from the first
	// caller, so one caller cancelling cannot poison the result every
	// duplicate waiter receives. Each caller still honors its own context
	// while waiting; the HTTP client timeout bounds the fetch itself.
	fetchCtx := context.WithoutCancel(ctx)
	ch := r.sf.DoChan("meta:"+id, func() (any, error) {
		var dto itemDTO
		if err := r.getJSON(fetchCtx, id, "/api/items/"+url.PathEscape(id), &dto); err != nil {
			return nil, err
		}
		m := &model.DisplayMetadata{
			Title:       normalizeTitle(dto.Title),
			Description: strings.TrimSpace(dto.Description),
		}
		if dto.DurationSeconds > 0 {
			r.mu.Lock()
			r.durations[id] = time.Duration(dto.DurationSeconds * float64(time.Second))
			r.mu.Unlock()
		}
		r.meta.Set(fetchCtx, id, m, r.metaTTL)
		return m, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.DisplayMetadata), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *HTTPResolver) DiscoverFiles(ctx context.Context, id string) (variants []FileVariant, err error) {
	defer observeStep("discover_files", time.Now(), err)

	var dto filesDTO
	if err := r.getJSON(ctx, id, "/api/items/"+url.PathEscape(id)+"/files", &dto); err != nil {
		return nil, err
	}
	if len(dto.Files) == 0 {
		return nil, NewError(KindNoPlayableFile, id, fmt.Errorf("catalog lists no files"))
	}
	return dto.Files, nil
}

func (r *HTTPResolver) SelectFile(_ context.Context, id string, variants []FileVariant) (FileVariant, error) {
	if len(variants) == 0 {
		return FileVariant{}, NewError(KindNoPlayableFile, id, fmt.Errorf("empty variant list"))
	}
	// Prefer the largest supported variant: bigger files carry the better
	// encodes in every catalog this has been pointed at.
	var best FileVariant
	found := false
	for _, v := range variants {
		if _, ok := r.supported[strings.ToLower(v.Format)]; !ok {
			continue
		}
		if !found || v.Bytes > best.Bytes {
			best = v
			found = true
		}
	}
	if !found {
		return FileVariant{}, NewError(KindUnsupportedFormat, id, fmt.Errorf("no supported format among %d variants", len(variants)))
	}
	return best, nil
}

func (r *HTTPResolver) ResolveURL(ctx context.Context, id string, variant FileVariant) (resolved string, err error) {
	defer observeStep("resolve_url", time.Now(), err)

	var dto urlDTO
	path := "/api/items/" + url.PathEscape(id) + "/files/" + url.PathEscape(variant.Name) + "/url"
	if err := r.getJSON(ctx, id, path, &dto); err != nil {
		return "", err
	}
	if dto.URL == "" {
		return "", NewError(KindNoPlayableFile, id, fmt.Errorf("catalog returned empty URL for %q", variant.Name))
	}
	return dto.URL, nil
}

func (r *HTTPResolver) CreateAsset(ctx context.Context, id, assetURL string, meta *model.DisplayMetadata) (handle model.AssetHandle, err error) {
	defer observeStep("create_asset", time.Now(), err)
	return r.assets.New(ctx, id, assetURL, meta)
}

func (r *HTTPResolver) ProbeDuration(ctx context.Context, id, assetURL string) (d time.Duration, err error) {
	defer observeStep("probe_duration", time.Now(), err)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, assetURL, nil)
	if err != nil {
		return 0, NewError(KindTransient, id, err)
	}

	var header time.Duration
	probeErr := r.cb.Execute(func() error {
		resp, err := r.hc.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("probe %s: status %d", assetURL, resp.StatusCode)
		}
		if raw := resp.Header.Get("X-Media-Duration"); raw != "" {
			if secs, err := strconv.ParseFloat(raw, 64); err == nil && secs > 0 {
				header = time.Duration(secs * float64(time.Second))
			}
		}
		return nil
	})
	if probeErr == nil && header > 0 {
		return header, nil
	}

	// Fall back to the duration hint from metadata.
	r.mu.Lock()
	hint := r.durations[id]
	r.mu.Unlock()
	if hint > 0 {
		if probeErr != nil {
			logger := log.WithComponent("resolver")
			logger.Debug().Err(probeErr).
				Str(log.FieldIdentifier, id).
				Msg("duration probe failed, using metadata hint")
		}
		return hint, nil
	}
	if probeErr != nil {
		return 0, NewError(KindTransient, id, probeErr)
	}
	return 0, nil // unknown duration: start at zero offset
}

// getJSON performs a breaker-guarded GET with failure classification.
func (r *HTTPResolver) getJSON(ctx context.Context, id, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+path, nil)
	if err != nil {
		return NewError(KindTransient, id, err)
	}
	req.Header.Set("Accept", "application/json")

	// Content-classified responses (404, 415) do not count against the
	// breaker: the catalog answered, the item is just unusable.
	var contentErr *Error
	execErr := r.cb.Execute(func() error {
		resp, err := r.hc.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			contentErr = NewError(KindNotFound, id, fmt.Errorf("status %d", resp.StatusCode))
			return nil
		case resp.StatusCode == http.StatusUnsupportedMediaType:
			contentErr = NewError(KindUnsupportedFormat, id, fmt.Errorf("status %d", resp.StatusCode))
			return nil
		case resp.StatusCode >= 400:
			return fmt.Errorf("status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		return nil
	})
	if execErr != nil {
		return NewError(KindTransient, id, execErr) // breaker open or network/5xx
	}
	if contentErr != nil {
		return contentErr
	}
	return nil
}

var _ Resolver = (*HTTPResolver)(nil)
