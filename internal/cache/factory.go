package cache

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendBolt   = "bolt"
)

type Config struct {
	Backend string
	Prefix  string

	// BoltPath is the database file used by the bolt backend.
	BoltPath string

	// CleanupInterval drives the expiry janitor of the memory and bolt backends.
	CleanupInterval time.Duration
}

// NewStore builds the configured backend. redisClient is only used (and must
// be non-nil) for the redis backend.
func NewStore(cfg Config, redisClient *redis.Client) (Store, error) {
	switch cfg.Backend {
	case BackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("cache: redis backend requires a client")
		}
		return NewRedisStore(redisClient, RedisConfig{
			Prefix: cfg.Prefix,
		}), nil
	case BackendBolt:
		return NewBoltStore(cfg.BoltPath, cfg.CleanupInterval)
	default:
		return NewMemoryStore(cfg.CleanupInterval), nil
	}
}
