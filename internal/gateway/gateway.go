// Package gateway answers listing, provider and source requests from the
// snapshot, then the request cache, then the upstream catalog.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"freestream-gateway/internal/cache"
	"freestream-gateway/internal/catalog"
	"freestream-gateway/internal/metrics"
	"freestream-gateway/internal/snapshot"
	"freestream-gateway/internal/watchmode"
	"freestream-gateway/pkg/logging/logging"
)

const (
	TierSnapshot = "snapshot"
	TierCache    = "cache"
	TierUpstream = "upstream"
	TierError    = "error"
)

const (
	msgSnapshot    = "Served from the daily catalog snapshot."
	msgNoMatches   = "No free titles matched your search."
	msgEmptyFilter = "No free titles for this filter."
)

// SnapshotSource returns the live snapshot when one is published.
type SnapshotSource interface {
	Catalog(ctx context.Context) (*snapshot.Catalog, bool)
}

// ListingResult is what Fetch returns to the HTTP layer.
type ListingResult struct {
	Titles     []catalog.Title `json:"titles"`
	TotalPages int             `json:"totalPages"`
	Message    string          `json:"message"`
	FromCache  bool            `json:"fromCache"`
	Tier       string          `json:"-"`
}

type Options struct {
	TTL       cache.TTLPolicy
	VersionID string
	// Regions is passed to the provider directory call.
	Regions []string
	// Related enables Similar; nil leaves it disabled.
	Related Related
	Logger  *zap.Logger
}

// Service is the cached fetch gateway. It holds no per-request state; the
// store is the only shared mutable state.
type Service struct {
	upstream  watchmode.Client
	store     cache.Store
	snapshots SnapshotSource
	ttl       cache.TTLPolicy
	versionID string
	regions   []string
	related   Related
	logger    *zap.Logger
	now       func() time.Time

	group singleflight.Group
}

func New(up watchmode.Client, store cache.Store, snapshots SnapshotSource, opts Options) *Service {
	if opts.TTL.List <= 0 || opts.TTL.Search <= 0 {
		opts.TTL = cache.NewTTLPolicy(opts.TTL.List, opts.TTL.Search)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		upstream:  up,
		store:     store,
		snapshots: snapshots,
		ttl:       opts.TTL,
		versionID: opts.VersionID,
		regions:   opts.Regions,
		related:   opts.Related,
		logger:    opts.Logger.Named("gateway"),
		now:       time.Now,
	}
}

// Fetch resolves one listing request:
//  1. unfiltered list requests are sliced from the snapshot when it covers
//     the region;
//  2. otherwise the request cache is consulted;
//  3. otherwise the upstream is called once per key, and the normalized
//     result is cached with the mode TTL.
//
// Cache failures count as misses. Upstream failures are returned as errors;
// no fallback content is fabricated here.
func (s *Service) Fetch(ctx context.Context, req catalog.ListingRequest) (*ListingResult, error) {
	req = req.Normalize()
	logger := logging.L(ctx)

	if res, ok := s.fromSnapshot(ctx, req); ok {
		metrics.ListingSourceTotal.WithLabelValues(TierSnapshot).Inc()
		return res, nil
	}

	key := cache.BuildListingKey(req, s.versionID).String()

	if listing, ok := s.lookup(ctx, key); ok {
		metrics.ListingSourceTotal.WithLabelValues(TierCache).Inc()
		return &ListingResult{
			Titles:     nonNil(listing.Titles),
			TotalPages: listing.TotalPages,
			Message:    listing.Message,
			FromCache:  true,
			Tier:       TierCache,
		}, nil
	}

	v, shared, err := s.shared(ctx, key, func(callCtx context.Context) (any, error) {
		listing, err := s.callUpstream(callCtx, req)
		if err != nil {
			return nil, err
		}
		s.remember(callCtx, key, listing, s.ttl.For(req.Mode()))
		return listing, nil
	})
	if err != nil {
		metrics.ListingSourceTotal.WithLabelValues(TierError).Inc()
		logger.Warn("listing fetch failed",
			zap.String("cache_key", key),
			zap.String("error_kind", catalog.Kind(err)),
			zap.Error(err),
		)
		return nil, err
	}

	listing := v.(*catalog.Listing)
	metrics.ListingSourceTotal.WithLabelValues(TierUpstream).Inc()
	logger.Debug("listing fetched from upstream",
		zap.String("cache_key", key),
		zap.Int("titles", len(listing.Titles)),
		zap.Bool("shared", shared),
	)

	return &ListingResult{
		Titles:     nonNil(listing.Titles),
		TotalPages: listing.TotalPages,
		Message:    listing.Message,
		FromCache:  false,
		Tier:       TierUpstream,
	}, nil
}

// shared runs fn once per key across concurrent callers. fn gets a context
// detached from ctx so one client hanging up does not fail the others, while
// each caller stops waiting as soon as its own ctx is done.
func (s *Service) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, bool, error) {
	ch := s.group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	case <-ctx.Done():
		return nil, false, fmt.Errorf("gateway: waiting for %s: %w", key, ctx.Err())
	}
}

func (s *Service) fromSnapshot(ctx context.Context, req catalog.ListingRequest) (*ListingResult, bool) {
	if s.snapshots == nil || !req.Unfiltered() {
		return nil, false
	}
	cat, ok := s.snapshots.Catalog(ctx)
	if !ok || len(cat.Titles) == 0 || !cat.HasRegion(req.Region) {
		return nil, false
	}

	titles, total := cat.Page(req.Types, req.Page)
	return &ListingResult{
		Titles:     titles,
		TotalPages: total,
		Message:    msgSnapshot,
		FromCache:  true,
		Tier:       TierSnapshot,
	}, true
}

func (s *Service) lookup(ctx context.Context, key string) (*catalog.Listing, bool) {
	raw, ok, err := s.store.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var listing catalog.Listing
	if err := json.Unmarshal(raw, &listing); err != nil {
		logging.L(ctx).Warn("cached listing unreadable, refetching",
			zap.String("cache_key", key), zap.Error(err))
		return nil, false
	}
	return &listing, true
}

// remember writes v under key. Failures are logged and otherwise ignored.
func (s *Service) remember(ctx context.Context, key string, v any, ttl time.Duration) {
	payload, err := json.Marshal(v)
	if err != nil {
		logging.L(ctx).Error("marshal cache payload", zap.String("cache_key", key), zap.Error(err))
		return
	}
	if err := s.store.Set(ctx, key, payload, ttl); err != nil {
		logging.L(ctx).Warn("cache write failed", zap.String("cache_key", key), zap.Error(err))
	}
}

func (s *Service) callUpstream(ctx context.Context, req catalog.ListingRequest) (*catalog.Listing, error) {
	var (
		listing *catalog.Listing
		err     error
	)
	if req.Mode() == catalog.ModeSearch {
		listing, err = s.upstream.Search(ctx, watchmode.SearchParams{
			Query: req.Query,
			Types: req.Types,
			Page:  req.Page,
			Limit: catalog.PageSize,
		})
	} else {
		listing, err = s.upstream.ListTitles(ctx, watchmode.ListParams{
			Regions: []string{req.Region},
			Types:   req.Types,
			Genre:   req.Genre,
			Page:    req.Page,
			Limit:   catalog.PageSize,
		})
	}
	if err != nil {
		return nil, err
	}

	listing.Region = req.Region
	if listing.Message == "" {
		listing.Message = listingMessage(req, len(listing.Titles))
	}
	return listing, nil
}

func listingMessage(req catalog.ListingRequest, n int) string {
	switch {
	case req.Mode() == catalog.ModeSearch && n == 0:
		return msgNoMatches
	case req.Mode() == catalog.ModeSearch:
		return "Free results for \"" + req.Query + "\""
	case n == 0 && req.Page == 1:
		return msgEmptyFilter
	case n == 0:
		return ""
	default:
		return "Popular free titles in " + req.Region
	}
}

func nonNil(titles []catalog.Title) []catalog.Title {
	if titles == nil {
		return []catalog.Title{}
	}
	return titles
}
