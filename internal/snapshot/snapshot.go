// Package snapshot builds and serves the daily full-catalog snapshot and the
// provider directory.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"freestream-gateway/internal/cache"
	"freestream-gateway/internal/catalog"
)

// Persisted keys. Each data key has a companion *_updated_at key holding an
// RFC 3339 timestamp of the publishing run.
const (
	KeyCatalog            = "full_catalog_snapshot"
	KeyCatalogUpdatedAt   = "full_catalog_snapshot_updated_at"
	KeyProviders          = "provider_directory"
	KeyProvidersUpdatedAt = "provider_directory_updated_at"
)

const (
	// DirectoryMaxAge is how long a provider directory counts as fresh.
	DirectoryMaxAge = 24 * time.Hour

	// DirectoryRetention keeps a stale directory around so it can still be
	// served while the provider API is down.
	DirectoryRetention = 7 * 24 * time.Hour
)

var (
	ErrUnauthorized      = errors.New("snapshot: unauthorized")
	ErrRefreshInProgress = errors.New("snapshot: refresh already in progress")
	ErrEmptyCatalog      = errors.New("snapshot: upstream returned no titles")
)

// Catalog is the published full catalog.
type Catalog struct {
	Titles    []catalog.Title `json:"titles"`
	Regions   []string        `json:"regions"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// HasRegion reports whether the walk covered region.
func (c *Catalog) HasRegion(region string) bool {
	for _, r := range c.Regions {
		if r == region {
			return true
		}
	}
	return false
}

// Page filters the catalog by the requested types and returns the 1-indexed
// page of catalog.PageSize titles. Out-of-range pages return an empty,
// non-nil slice.
func (c *Catalog) Page(types []string, page int) (titles []catalog.Title, totalPages int) {
	want := make(map[string]struct{}, len(types))
	for _, t := range types {
		want[t] = struct{}{}
	}

	filtered := c.Titles
	if len(want) > 0 {
		filtered = make([]catalog.Title, 0, len(c.Titles))
		for _, t := range c.Titles {
			if _, ok := want[t.Type]; ok {
				filtered = append(filtered, t)
			}
		}
	}

	totalPages = catalog.TotalPages(len(filtered))
	if page < 1 {
		page = 1
	}
	start := (page - 1) * catalog.PageSize
	if start >= len(filtered) {
		return []catalog.Title{}, totalPages
	}
	end := min(start+catalog.PageSize, len(filtered))

	out := make([]catalog.Title, end-start)
	copy(out, filtered[start:end])
	return out, totalPages
}

// Directory is the published provider/logo directory.
type Directory struct {
	Providers []catalog.Provider `json:"providers"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Stale reports whether the directory is older than DirectoryMaxAge.
func (d *Directory) Stale(now time.Time) bool {
	return d.UpdatedAt.IsZero() || now.Sub(d.UpdatedAt) > DirectoryMaxAge
}

// WriteDirectory stores d and its timestamp.
func WriteDirectory(ctx context.Context, store cache.Store, d Directory) error {
	payload, err := json.Marshal(d.Providers)
	if err != nil {
		return fmt.Errorf("marshal provider directory: %w", err)
	}
	if err := store.Set(ctx, KeyProviders, payload, DirectoryRetention); err != nil {
		return err
	}
	return store.Set(ctx, KeyProvidersUpdatedAt, []byte(d.UpdatedAt.UTC().Format(time.RFC3339Nano)), DirectoryRetention)
}

// ReadDirectory loads the stored provider directory. ok is false when none
// exists or the store failed.
func ReadDirectory(ctx context.Context, store cache.Store) (*Directory, bool) {
	raw, ok, err := store.Get(ctx, KeyProviders)
	if err != nil || !ok {
		return nil, false
	}
	var d Directory
	if err := json.Unmarshal(raw, &d.Providers); err != nil {
		return nil, false
	}
	d.UpdatedAt, _ = readStamp(ctx, store, KeyProvidersUpdatedAt)
	return &d, true
}

func readStamp(ctx context.Context, store cache.Store, key string) (time.Time, bool) {
	raw, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
