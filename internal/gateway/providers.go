package gateway

import (
	"context"
	"encoding/json"
	"strconv"

	"go.uber.org/zap"

	"freestream-gateway/internal/cache"
	"freestream-gateway/internal/catalog"
	"freestream-gateway/internal/snapshot"
	"freestream-gateway/pkg/logging/logging"
)

// ProvidersResult is the provider directory as served to clients.
type ProvidersResult struct {
	Providers []catalog.Provider
	// Stale is set when the directory could not be refreshed and an older
	// copy was served instead.
	Stale bool
}

// Providers serves the stored directory while it is fresh. A stale or
// missing directory is refreshed from upstream; when that fails, a stale
// copy is still served. It errors only when there is nothing to serve.
func (s *Service) Providers(ctx context.Context) (*ProvidersResult, error) {
	dir, ok := snapshot.ReadDirectory(ctx, s.store)
	if ok && !dir.Stale(s.now()) {
		return &ProvidersResult{Providers: nonNilProviders(dir.Providers)}, nil
	}

	v, _, err := s.shared(ctx, snapshot.KeyProviders, func(callCtx context.Context) (any, error) {
		providers, err := s.upstream.Providers(callCtx, s.regions)
		if err != nil {
			return nil, err
		}
		if werr := snapshot.WriteDirectory(callCtx, s.store, snapshot.Directory{
			Providers: providers,
			UpdatedAt: s.now().UTC(),
		}); werr != nil {
			logging.L(ctx).Warn("provider directory write failed", zap.Error(werr))
		}
		return providers, nil
	})
	if err != nil {
		if ok {
			logging.L(ctx).Warn("provider refresh failed, serving stale directory",
				zap.Time("updated_at", dir.UpdatedAt), zap.Error(err))
			return &ProvidersResult{Providers: nonNilProviders(dir.Providers), Stale: true}, nil
		}
		return nil, err
	}
	return &ProvidersResult{Providers: nonNilProviders(v.([]catalog.Provider))}, nil
}

// SourcesResult lists the free places a title can be watched.
type SourcesResult struct {
	Sources   []catalog.Source
	FromCache bool
}

// Sources returns the free sources for a title in a region, cached with the
// list TTL.
func (s *Service) Sources(ctx context.Context, titleID int64, region string) (*SourcesResult, error) {
	if region == "" {
		region = catalog.DefaultRegion
	}
	key := cache.SourcesKey(titleID, region, s.versionID)

	if raw, ok, err := s.store.Get(ctx, key); err == nil && ok {
		var sources []catalog.Source
		if jerr := json.Unmarshal(raw, &sources); jerr == nil {
			return &SourcesResult{Sources: nonNilSources(sources), FromCache: true}, nil
		}
	}

	v, _, err := s.shared(ctx, key, func(callCtx context.Context) (any, error) {
		sources, err := s.upstream.TitleSources(callCtx, titleID, region)
		if err != nil {
			return nil, err
		}
		s.remember(callCtx, key, sources, s.ttl.List)
		return sources, nil
	})
	if err != nil {
		logging.L(ctx).Warn("title sources fetch failed",
			zap.String("title_id", strconv.FormatInt(titleID, 10)),
			zap.String("error_kind", catalog.Kind(err)),
			zap.Error(err),
		)
		return nil, err
	}
	return &SourcesResult{Sources: nonNilSources(v.([]catalog.Source))}, nil
}

func nonNilProviders(p []catalog.Provider) []catalog.Provider {
	if p == nil {
		return []catalog.Provider{}
	}
	return p
}

func nonNilSources(s []catalog.Source) []catalog.Source {
	if s == nil {
		return []catalog.Source{}
	}
	return s
}
