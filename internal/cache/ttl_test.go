package cache

import (
	"testing"
	"time"

	"freestream-gateway/internal/catalog"
)

func TestTTLPolicyClampsAndDefaults(t *testing.T) {
	p := NewTTLPolicy(0, 0)
	if p.List != DefaultListTTL || p.Search != DefaultSearchTTL {
		t.Fatalf("unexpected defaults: %+v", p)
	}

	p = NewTTLPolicy(72*time.Hour, time.Minute)
	if p.List != MaxListTTL {
		t.Fatalf("list ttl not clamped: %v", p.List)
	}
	if p.Search != MinSearchTTL {
		t.Fatalf("search ttl not clamped: %v", p.Search)
	}

	if p.For(catalog.ModeSearch) >= p.For(catalog.ModeList) {
		t.Fatalf("search entries must expire before list entries")
	}
}
