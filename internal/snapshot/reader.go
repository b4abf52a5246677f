package snapshot

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"freestream-gateway/internal/cache"
)

type loaded struct {
	stamp time.Time
	cat   *Catalog
}

// Reader keeps a decoded copy of the published catalog and swaps it when
// the stored timestamp changes, so requests do not decode the full snapshot.
type Reader struct {
	store  cache.Store
	logger *zap.Logger

	current atomic.Pointer[loaded]
	mu      sync.Mutex
}

func NewReader(store cache.Store, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{store: store, logger: logger.Named("snapshot_reader")}
}

// Catalog returns the live snapshot. ok is false when none is published,
// it has expired, or the store cannot be read.
func (r *Reader) Catalog(ctx context.Context) (*Catalog, bool) {
	stamp, ok := readStamp(ctx, r.store, KeyCatalogUpdatedAt)
	if !ok {
		return nil, false
	}
	if cur := r.current.Load(); cur != nil && cur.stamp.Equal(stamp) {
		return cur.cat, true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cur := r.current.Load(); cur != nil && cur.stamp.Equal(stamp) {
		return cur.cat, true
	}

	raw, ok, err := r.store.Get(ctx, KeyCatalog)
	if err != nil || !ok {
		return nil, false
	}
	var cat Catalog
	if err := json.Unmarshal(raw, &cat); err != nil {
		r.logger.Warn("snapshot payload unreadable", zap.Error(err))
		return nil, false
	}

	r.current.Store(&loaded{stamp: stamp, cat: &cat})
	r.logger.Info("snapshot loaded",
		zap.Int("titles", len(cat.Titles)),
		zap.Time("updated_at", stamp),
	)
	return &cat, true
}
