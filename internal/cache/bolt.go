package cache

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketEntries = []byte("entries")

// BoltStore persists entries in a single bbolt file so a one-node deployment
// keeps its snapshot across restarts. Each value is stored as an 8 byte
// big-endian expiry (unix nanos) followed by the payload.
type BoltStore struct {
	db        *bolt.DB
	now       func() time.Time
	stop      chan struct{}
	closeOnce sync.Once
}

// NewBoltStore opens (or creates) the database at path.
func NewBoltStore(path string, sweepInterval time.Duration) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt cache: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEntries)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Minute
	}
	s := &BoltStore{db: db, now: time.Now, stop: make(chan struct{})}
	go s.sweepLoop(sweepInterval)
	return s, nil
}

func (s *BoltStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("context error: %w", err)
	}

	var (
		value   []byte
		expired bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketEntries).Get([]byte(key))
		if len(raw) < 8 {
			return nil
		}
		if !s.now().Before(expiryOf(raw)) {
			expired = true
			return nil
		}
		value = make([]byte, len(raw)-8)
		copy(value, raw[8:])
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("bolt get failed: %w", err)
	}
	if expired {
		_ = s.deleteIfExpired(key)
		return nil, false, nil
	}
	return value, value != nil, nil
}

// deleteIfExpired removes key only if the entry is still expired inside the
// write transaction, so a Set that landed after the read survives.
func (s *BoltStore) deleteIfExpired(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		raw := b.Get([]byte(key))
		if raw == nil {
			return nil
		}
		if len(raw) >= 8 && s.now().Before(expiryOf(raw)) {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

func expiryOf(raw []byte) time.Time {
	return time.Unix(0, int64(binary.BigEndian.Uint64(raw[:8])))
}

func (s *BoltStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		if ttl <= 0 {
			return b.Delete([]byte(key))
		}
		buf := make([]byte, 8+len(value))
		binary.BigEndian.PutUint64(buf[:8], uint64(s.now().Add(ttl).UnixNano()))
		copy(buf[8:], value)
		return b.Put([]byte(key), buf)
	})
	if err != nil {
		return fmt.Errorf("bolt set failed: %w", err)
	}
	return nil
}

// Sweep deletes every expired entry and returns how many were removed.
func (s *BoltStore) Sweep() (int, error) {
	removed := 0
	now := s.now()
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			if len(v) < 8 || !now.Before(expiryOf(v)) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

func (s *BoltStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_, _ = s.Sweep()
		case <-s.stop:
			return
		}
	}
}

// Close stops the sweeper and closes the database.
func (s *BoltStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		err = s.db.Close()
	})
	return err
}
