package snapshot

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"freestream-gateway/internal/cache"
	"freestream-gateway/internal/catalog"
	"freestream-gateway/internal/metrics"
	"freestream-gateway/internal/watchmode"
)

// Upstream is the part of the catalog client the builder walks.
type Upstream interface {
	ListTitles(ctx context.Context, p watchmode.ListParams) (*catalog.Listing, error)
	Providers(ctx context.Context, regions []string) ([]catalog.Provider, error)
}

// BuilderConfig tunes the catalog walk.
type BuilderConfig struct {
	Secret    string
	Regions   []string
	Types     []string
	PageSize  int           // default 250
	PageDelay time.Duration // default 400ms
	MaxPages  int           // default 400
}

// Stats describes a successful refresh.
type Stats struct {
	RunID          string        `json:"runId"`
	TotalTitles    int           `json:"totalTitles"`
	TotalProviders int           `json:"totalProviders"`
	Pages          int           `json:"pages"`
	Duration       time.Duration `json:"-"`
}

// Builder walks the upstream catalog and publishes the snapshot. Nothing is
// written until both the walk and the directory fetch succeeded.
type Builder struct {
	cfg      BuilderConfig
	upstream Upstream
	store    cache.Store
	logger   *zap.Logger
	now      func() time.Time

	running atomic.Bool
}

func NewBuilder(cfg BuilderConfig, up Upstream, store cache.Store, logger *zap.Logger) *Builder {
	if len(cfg.Regions) == 0 {
		cfg.Regions = []string{"US", "GB", "CA", "AU"}
	}
	if len(cfg.Types) == 0 {
		cfg.Types = []string{catalog.TypeMovie, catalog.TypeTVSeries}
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 250
	}
	if cfg.PageDelay <= 0 {
		cfg.PageDelay = 400 * time.Millisecond
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 400
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		cfg:      cfg,
		upstream: up,
		store:    store,
		logger:   logger.Named("snapshot"),
		now:      time.Now,
	}
}

// Regions returns the region set covered by published snapshots.
func (b *Builder) Regions() []string {
	return append([]string(nil), b.cfg.Regions...)
}

// Authorize compares token to the configured secret in constant time. An
// empty secret rejects everything.
func (b *Builder) Authorize(token string) bool {
	if b.cfg.Secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(b.cfg.Secret)) == 1
}

// Refresh authorizes the caller and runs a full rebuild.
func (b *Builder) Refresh(ctx context.Context, token string) (Stats, error) {
	if !b.Authorize(token) {
		return Stats{}, ErrUnauthorized
	}
	return b.Run(ctx)
}

// Run rebuilds without authorization; used by the scheduler.
func (b *Builder) Run(ctx context.Context) (Stats, error) {
	if !b.running.CompareAndSwap(false, true) {
		return Stats{}, ErrRefreshInProgress
	}
	defer b.running.Store(false)

	start := b.now()
	runID := uuid.NewString()
	logger := b.logger.With(zap.String("run_id", runID))
	logger.Info("snapshot refresh started",
		zap.Strings("regions", b.cfg.Regions),
		zap.Strings("types", b.cfg.Types),
	)

	var (
		titles    []catalog.Title
		pages     int
		providers []catalog.Provider
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		titles, pages, err = b.walk(gctx, logger)
		return err
	})
	g.Go(func() error {
		var err error
		providers, err = b.upstream.Providers(gctx, b.cfg.Regions)
		if err != nil {
			return fmt.Errorf("snapshot: provider directory: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		metrics.SnapshotRefreshSeconds.WithLabelValues("error").Observe(time.Since(start).Seconds())
		logger.Error("snapshot refresh failed, previous snapshot kept", zap.Error(err))
		return Stats{}, err
	}

	if len(titles) == 0 {
		metrics.SnapshotRefreshSeconds.WithLabelValues("error").Observe(time.Since(start).Seconds())
		logger.Warn("snapshot walk returned no titles, previous snapshot kept")
		return Stats{}, ErrEmptyCatalog
	}

	updatedAt := b.now().UTC()
	if err := b.publish(ctx, titles, providers, updatedAt); err != nil {
		metrics.SnapshotRefreshSeconds.WithLabelValues("error").Observe(time.Since(start).Seconds())
		logger.Error("snapshot publish failed", zap.Error(err))
		return Stats{}, err
	}

	stats := Stats{
		RunID:          runID,
		TotalTitles:    len(titles),
		TotalProviders: len(providers),
		Pages:          pages,
		Duration:       time.Since(start),
	}
	metrics.SnapshotRefreshSeconds.WithLabelValues("ok").Observe(stats.Duration.Seconds())
	metrics.SnapshotTitles.Set(float64(stats.TotalTitles))

	logger.Info("snapshot refresh completed",
		zap.Int("titles", stats.TotalTitles),
		zap.Int("providers", stats.TotalProviders),
		zap.Int("pages", stats.Pages),
		zap.Duration("duration", stats.Duration),
	)
	return stats, nil
}

// walk requests pages until one comes back empty. Titles are accumulated
// locally; the live snapshot is never touched here.
func (b *Builder) walk(ctx context.Context, logger *zap.Logger) ([]catalog.Title, int, error) {
	limiter := rate.NewLimiter(rate.Every(b.cfg.PageDelay), 1)
	seen := make(map[int64]struct{})
	var titles []catalog.Title

	for page := 1; page <= b.cfg.MaxPages; page++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, page - 1, err
		}

		listing, err := b.upstream.ListTitles(ctx, watchmode.ListParams{
			Regions: b.cfg.Regions,
			Types:   b.cfg.Types,
			Page:    page,
			Limit:   b.cfg.PageSize,
		})
		if err != nil {
			if page == 1 {
				return nil, 0, fmt.Errorf("snapshot: first page: %w: %w", catalog.ErrUpstreamUnavailable, err)
			}
			return nil, page - 1, fmt.Errorf("snapshot: page %d: %w", page, err)
		}
		if len(listing.Titles) == 0 {
			return titles, page - 1, nil
		}

		for _, t := range listing.Titles {
			if _, dup := seen[t.ID]; dup {
				continue
			}
			seen[t.ID] = struct{}{}
			titles = append(titles, t)
		}
		logger.Debug("snapshot page fetched",
			zap.Int("page", page),
			zap.Int("page_titles", len(listing.Titles)),
			zap.Int("total", len(titles)),
		)
	}

	logger.Warn("snapshot walk hit page ceiling", zap.Int("max_pages", b.cfg.MaxPages))
	return titles, b.cfg.MaxPages, nil
}

func (b *Builder) publish(ctx context.Context, titles []catalog.Title, providers []catalog.Provider, updatedAt time.Time) error {
	payload, err := json.Marshal(Catalog{
		Titles:    titles,
		Regions:   b.cfg.Regions,
		UpdatedAt: updatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	// data first, stamp last: readers reload on a stamp change
	if err := b.store.Set(ctx, KeyCatalog, payload, cache.SnapshotTTL); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	stamp := []byte(updatedAt.Format(time.RFC3339Nano))
	if err := b.store.Set(ctx, KeyCatalogUpdatedAt, stamp, cache.SnapshotTTL); err != nil {
		return fmt.Errorf("write snapshot stamp: %w", err)
	}

	if err := WriteDirectory(ctx, b.store, Directory{Providers: providers, UpdatedAt: updatedAt}); err != nil {
		return fmt.Errorf("write provider directory: %w", err)
	}
	return nil
}
