package cache

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("cache: store closed")

// Store is the interface used by the gateway and the snapshot builder.
// Implemented by the memory cache (dev), Redis (prod) and bbolt (single node,
// survives restarts). A returned error is never fatal to callers: they log
// it and carry on as if the key were missing.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
