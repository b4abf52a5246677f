package cache

import (
	"time"

	"freestream-gateway/internal/catalog"
)

const (
	MinListTTL     = 1 * time.Hour
	MaxListTTL     = 24 * time.Hour
	DefaultListTTL = 1 * time.Hour

	MinSearchTTL     = 10 * time.Minute
	MaxSearchTTL     = 30 * time.Minute
	DefaultSearchTTL = 15 * time.Minute

	// SnapshotTTL applies to the full catalog and provider directory.
	SnapshotTTL = 24 * time.Hour
)

// TTLPolicy holds per-mode lifetimes. Search entries always expire sooner
// than list entries.
type TTLPolicy struct {
	List   time.Duration
	Search time.Duration
}

// NewTTLPolicy clamps the configured values into their allowed ranges;
// zero values take the defaults.
func NewTTLPolicy(list, search time.Duration) TTLPolicy {
	if list <= 0 {
		list = DefaultListTTL
	}
	if search <= 0 {
		search = DefaultSearchTTL
	}
	return TTLPolicy{
		List:   clamp(list, MinListTTL, MaxListTTL),
		Search: clamp(search, MinSearchTTL, MaxSearchTTL),
	}
}

// For returns the lifetime for a given request mode.
func (p TTLPolicy) For(mode catalog.Mode) time.Duration {
	if mode == catalog.ModeSearch {
		return p.Search
	}
	return p.List
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
