package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestBoltStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	s, err := NewBoltStore(path, time.Hour)
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	if err := s.Set(ctx, "full_catalog_snapshot", []byte(`[1,2,3]`), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = NewBoltStore(path, time.Hour)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, hit, err := s.Get(ctx, "full_catalog_snapshot")
	if err != nil || !hit {
		t.Fatalf("expected hit after reopen, hit=%v err=%v", hit, err)
	}
	if string(got) != `[1,2,3]` {
		t.Fatalf("unexpected value %q", got)
	}
}

func TestBoltStore_ExpiryAndSweep(t *testing.T) {
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "cache.db"), time.Hour)
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	defer s.Close()

	clock := newFakeClock()
	s.now = clock.Now
	ctx := context.Background()

	_ = s.Set(ctx, "a", []byte("1"), time.Minute)
	_ = s.Set(ctx, "b", []byte("2"), time.Hour)

	clock.Advance(2 * time.Minute)

	if _, hit, _ := s.Get(ctx, "a"); hit {
		t.Fatalf("expected a to be expired")
	}
	_ = s.Set(ctx, "c", []byte("3"), time.Minute)
	clock.Advance(2 * time.Minute)

	removed, err := s.Sweep()
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 swept entry, got %d", removed)
	}
	if _, hit, _ := s.Get(ctx, "b"); !hit {
		t.Fatalf("b should still be live")
	}
}

func TestBoltStore_ExpiredDeleteKeepsFreshValue(t *testing.T) {
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "cache.db"), time.Hour)
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	defer s.Close()

	clock := newFakeClock()
	s.now = clock.Now
	ctx := context.Background()

	_ = s.Set(ctx, "k", []byte("old"), time.Minute)
	clock.Advance(2 * time.Minute)

	// a writer refreshes the key between the expired read and the delete
	_ = s.Set(ctx, "k", []byte("new"), time.Hour)
	if err := s.deleteIfExpired("k"); err != nil {
		t.Fatalf("deleteIfExpired: %v", err)
	}

	got, hit, err := s.Get(ctx, "k")
	if err != nil || !hit || string(got) != "new" {
		t.Fatalf("fresh value lost: hit=%v value=%q err=%v", hit, got, err)
	}

	clock.Advance(2 * time.Hour)
	if err := s.deleteIfExpired("k"); err != nil {
		t.Fatalf("deleteIfExpired: %v", err)
	}
	if n, _ := s.Sweep(); n != 0 {
		t.Fatalf("expired key should already be gone, sweep removed %d", n)
	}
}
