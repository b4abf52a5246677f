package cache

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryStore_TTL(t *testing.T) {
	clock := newFakeClock()
	c := NewMemoryStore(time.Hour, WithClock(clock.Now))
	defer c.Close()

	ctx := context.Background()
	key := "list:v1:US:movie:1:none:none"

	if err := c.Set(ctx, key, []byte("hello"), 15*time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, hit, err := c.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !hit || string(got) != "hello" {
		t.Fatalf("expected hit with 'hello', got hit=%v value=%q", hit, got)
	}

	clock.Advance(15*time.Minute - time.Second)
	if _, hit, _ := c.Get(ctx, key); !hit {
		t.Fatalf("expected hit just before TTL")
	}

	clock.Advance(time.Second)
	if _, hit, _ := c.Get(ctx, key); hit {
		t.Fatalf("expected miss once TTL has elapsed")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry should be evicted on read, len=%d", c.Len())
	}
}

func TestMemoryStore_SetCopiesValue(t *testing.T) {
	c := NewMemoryStore(time.Minute)
	defer c.Close()

	ctx := context.Background()
	buf := []byte("abc")
	_ = c.Set(ctx, "k", buf, time.Minute)
	buf[0] = 'z'

	got, _, _ := c.Get(ctx, "k")
	if string(got) != "abc" {
		t.Fatalf("store must not alias caller buffer, got %q", got)
	}
}

func TestMemoryStore_NonPositiveTTLDeletes(t *testing.T) {
	c := NewMemoryStore(time.Minute)
	defer c.Close()

	ctx := context.Background()
	_ = c.Set(ctx, "k", []byte("v"), time.Minute)
	_ = c.Set(ctx, "k", []byte("v"), 0)

	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Fatalf("expected key removed by zero ttl")
	}
}
