package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"freestream-gateway/internal/cache"
	"freestream-gateway/internal/catalog"
	"freestream-gateway/internal/snapshot"
	"freestream-gateway/internal/watchmode"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

type fakeUpstream struct {
	listCalls    atomic.Int32
	searchCalls  atomic.Int32
	provCalls    atomic.Int32
	sourceCalls  atomic.Int32
	lastList     watchmode.ListParams
	mu           sync.Mutex
	err          error
	block        chan struct{}
	providers    []catalog.Provider
	providersErr error
}

func (f *fakeUpstream) ListTitles(ctx context.Context, p watchmode.ListParams) (*catalog.Listing, error) {
	f.listCalls.Add(1)
	f.mu.Lock()
	f.lastList = p
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if f.err != nil {
		return nil, f.err
	}
	titles := make([]catalog.Title, 0, p.Limit)
	for i := 0; i < p.Limit; i++ {
		titles = append(titles, catalog.Title{
			ID:    int64(p.Page*1000 + i),
			Title: fmt.Sprintf("%s-%d", p.Regions[0], i),
			Type:  p.Types[0],
		})
	}
	return &catalog.Listing{Titles: titles, TotalPages: 7}, nil
}

func (f *fakeUpstream) Search(ctx context.Context, p watchmode.SearchParams) (*catalog.Listing, error) {
	f.searchCalls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if p.Query == "nothing" {
		return &catalog.Listing{Titles: []catalog.Title{}, TotalPages: 1}, nil
	}
	return &catalog.Listing{Titles: []catalog.Title{{ID: 1, Title: p.Query, Type: catalog.TypeMovie}}, TotalPages: 1}, nil
}

func (f *fakeUpstream) Providers(ctx context.Context, regions []string) ([]catalog.Provider, error) {
	f.provCalls.Add(1)
	if f.providersErr != nil {
		return nil, f.providersErr
	}
	return f.providers, nil
}

func (f *fakeUpstream) TitleSources(ctx context.Context, id int64, region string) ([]catalog.Source, error) {
	f.sourceCalls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []catalog.Source{{Name: "Tubi", WebURL: fmt.Sprintf("https://tubi.tv/%d", id)}}, nil
}

type fakeSnapshots struct {
	cat *snapshot.Catalog
}

func (f *fakeSnapshots) Catalog(context.Context) (*snapshot.Catalog, bool) {
	if f.cat == nil {
		return nil, false
	}
	return f.cat, true
}

// countingStore records lookups and can be told to fail.
type countingStore struct {
	inner cache.Store
	gets  atomic.Int32
	fail  bool
}

func (s *countingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.gets.Add(1)
	if s.fail {
		return nil, false, errors.New("store down")
	}
	return s.inner.Get(ctx, key)
}

func (s *countingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.fail {
		return errors.New("store down")
	}
	return s.inner.Set(ctx, key, value, ttl)
}

type fixture struct {
	svc   *Service
	up    *fakeUpstream
	store *countingStore
	mem   *cache.MemoryStore
	clock *fakeClock
	snaps *fakeSnapshots
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	mem := cache.NewMemoryStore(time.Hour, cache.WithClock(clock.Now))
	t.Cleanup(func() { mem.Close() })

	store := &countingStore{inner: mem}
	up := &fakeUpstream{}
	snaps := &fakeSnapshots{}
	svc := New(up, store, snaps, Options{
		TTL:     cache.NewTTLPolicy(time.Hour, 15*time.Minute),
		Regions: []string{"US"},
		Logger:  zaptest.NewLogger(t),
	})
	svc.now = clock.Now
	return &fixture{svc: svc, up: up, store: store, mem: mem, clock: clock, snaps: snaps}
}

func snapshotOf(n int, regions ...string) *snapshot.Catalog {
	c := &snapshot.Catalog{Regions: regions}
	for i := 1; i <= n; i++ {
		c.Titles = append(c.Titles, catalog.Title{ID: int64(i), Type: catalog.TypeMovie})
	}
	return c
}

func TestFetchEndToEndColdCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := catalog.ListingRequest{Region: "GB", Types: []string{"movie"}, Page: 1}
	res, err := f.svc.Fetch(ctx, req)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.FromCache || len(res.Titles) != catalog.PageSize || res.TotalPages != 7 {
		t.Fatalf("unexpected result: fromCache=%v titles=%d pages=%d", res.FromCache, len(res.Titles), res.TotalPages)
	}
	if f.up.listCalls.Load() != 1 {
		t.Fatalf("expected one upstream call, got %d", f.up.listCalls.Load())
	}
	if got := f.up.lastList; got.Regions[0] != "GB" || got.Types[0] != "movie" || got.Limit != catalog.PageSize {
		t.Fatalf("unexpected upstream params: %+v", got)
	}

	key := cache.BuildListingKey(req, "").String()
	if _, ok, _ := f.mem.Get(ctx, key); !ok {
		t.Fatalf("listing not cached under %s", key)
	}
	f.clock.Advance(59 * time.Minute)
	if _, ok, _ := f.mem.Get(ctx, key); !ok {
		t.Fatalf("list entry expired before its TTL")
	}
	f.clock.Advance(time.Minute)
	if _, ok, _ := f.mem.Get(ctx, key); ok {
		t.Fatalf("list entry served past its TTL")
	}
}

func TestFetchSecondCallIsFromCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := catalog.ListingRequest{Region: "CA", Types: []string{"tv_series"}, Page: 2, Genre: 12}

	first, err := f.svc.Fetch(ctx, req)
	if err != nil {
		t.Fatalf("first Fetch: %v", err)
	}
	second, err := f.svc.Fetch(ctx, req)
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if first.FromCache || !second.FromCache {
		t.Fatalf("fromCache flags: first=%v second=%v", first.FromCache, second.FromCache)
	}
	if len(first.Titles) != len(second.Titles) {
		t.Fatalf("cached titles differ in length")
	}
	for i := range first.Titles {
		if first.Titles[i].ID != second.Titles[i].ID || first.Titles[i].Title != second.Titles[i].Title {
			t.Fatalf("cached title %d differs: %+v vs %+v", i, first.Titles[i], second.Titles[i])
		}
	}
	if f.up.listCalls.Load() != 1 {
		t.Fatalf("expected one upstream call, got %d", f.up.listCalls.Load())
	}
}

func TestFetchRepopulatesAfterExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	list := catalog.ListingRequest{Region: "US", Genre: 28}
	search := catalog.ListingRequest{Region: "US", Query: "alien"}

	for _, r := range []catalog.ListingRequest{list, search} {
		if _, err := f.svc.Fetch(ctx, r); err != nil {
			t.Fatalf("Fetch: %v", err)
		}
	}

	f.clock.Advance(16 * time.Minute)
	res, _ := f.svc.Fetch(ctx, search)
	if res.FromCache || f.up.searchCalls.Load() != 2 {
		t.Fatalf("search entry should have expired")
	}
	res, _ = f.svc.Fetch(ctx, list)
	if !res.FromCache {
		t.Fatalf("list entry should still be cached")
	}

	f.clock.Advance(time.Hour)
	res, _ = f.svc.Fetch(ctx, list)
	if res.FromCache || f.up.listCalls.Load() != 2 {
		t.Fatalf("list entry should have been repopulated")
	}
	res, _ = f.svc.Fetch(ctx, list)
	if !res.FromCache {
		t.Fatalf("repopulated entry should be served from cache")
	}
}

func TestSnapshotServesUnfilteredListings(t *testing.T) {
	f := newFixture(t)
	f.snaps.cat = snapshotOf(120, "US", "GB")

	res, err := f.svc.Fetch(context.Background(), catalog.ListingRequest{Region: "us", Page: 2})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if f.up.listCalls.Load() != 0 || f.store.gets.Load() != 0 {
		t.Fatalf("snapshot path must not touch upstream (%d) or request cache (%d)",
			f.up.listCalls.Load(), f.store.gets.Load())
	}
	if len(res.Titles) != catalog.PageSize || res.Titles[0].ID != 49 || res.Titles[47].ID != 96 {
		t.Fatalf("wrong slice: len=%d first=%d", len(res.Titles), res.Titles[0].ID)
	}
	if res.TotalPages != 3 || res.Tier != TierSnapshot {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSnapshotOutOfRangePageIsEmpty(t *testing.T) {
	f := newFixture(t)
	f.snaps.cat = snapshotOf(10, "US")

	res, err := f.svc.Fetch(context.Background(), catalog.ListingRequest{Page: 9})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Titles == nil || len(res.Titles) != 0 {
		t.Fatalf("expected empty titles, got %#v", res.Titles)
	}
	if f.up.listCalls.Load() != 0 {
		t.Fatalf("upstream must not be called")
	}
}

func TestSnapshotBypassedForFilteredRequests(t *testing.T) {
	tests := []struct {
		name string
		req  catalog.ListingRequest
	}{
		{name: "genre", req: catalog.ListingRequest{Region: "US", Genre: 35}},
		{name: "search", req: catalog.ListingRequest{Region: "US", Query: "heat"}},
		{name: "region outside snapshot", req: catalog.ListingRequest{Region: "DE"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.snaps.cat = snapshotOf(100, "US")

			res, err := f.svc.Fetch(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if res.Tier != TierUpstream {
				t.Fatalf("expected upstream tier, got %s", res.Tier)
			}
		})
	}
}

func TestEmptySnapshotFallsThrough(t *testing.T) {
	f := newFixture(t)
	f.snaps.cat = snapshotOf(0, "US")

	res, err := f.svc.Fetch(context.Background(), catalog.ListingRequest{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Tier != TierUpstream {
		t.Fatalf("expected upstream tier, got %s", res.Tier)
	}
}

func TestCacheFailureIsAMiss(t *testing.T) {
	f := newFixture(t)
	f.store.fail = true

	for i := 0; i < 2; i++ {
		res, err := f.svc.Fetch(context.Background(), catalog.ListingRequest{Region: "AU", Genre: 18})
		if err != nil {
			t.Fatalf("cache failure leaked: %v", err)
		}
		if res.FromCache {
			t.Fatalf("nothing can be served from a failing cache")
		}
	}
	if f.up.listCalls.Load() != 2 {
		t.Fatalf("expected a live fetch per request, got %d", f.up.listCalls.Load())
	}
}

func TestUpstreamFailureIsReturned(t *testing.T) {
	f := newFixture(t)
	f.up.err = fmt.Errorf("watchmode: %w: status 503", catalog.ErrUpstreamUnavailable)

	_, err := f.svc.Fetch(context.Background(), catalog.ListingRequest{Region: "US", Genre: 1})
	if !errors.Is(err, catalog.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if f.mem.Len() != 0 {
		t.Fatalf("failures must not be cached")
	}
}

func TestEmptySearchCarriesMessage(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Fetch(context.Background(), catalog.ListingRequest{Query: "nothing"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(res.Titles) != 0 || res.Message == "" {
		t.Fatalf("expected empty titles with a message, got %+v", res)
	}
}

func TestConcurrentMissesShareOneUpstreamCall(t *testing.T) {
	f := newFixture(t)
	f.up.block = make(chan struct{})
	req := catalog.ListingRequest{Region: "US", Genre: 99}

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Fetch(context.Background(), req)
			errs <- err
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for f.up.listCalls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("upstream never called")
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	f.up.mu.Lock()
	close(f.up.block)
	f.up.mu.Unlock()
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
	}
	if got := f.up.listCalls.Load(); got != 1 {
		t.Fatalf("expected 1 upstream call, got %d", got)
	}
}

func TestFetchHonorsCallerDeadline(t *testing.T) {
	f := newFixture(t)
	f.up.block = make(chan struct{})
	req := catalog.ListingRequest{Region: "US", Genre: 53}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := f.svc.Fetch(ctx, req)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Fatalf("Fetch waited %s past the caller deadline", elapsed)
	}

	// the shared call keeps going and still fills the cache
	f.up.mu.Lock()
	close(f.up.block)
	f.up.mu.Unlock()

	key := cache.BuildListingKey(req, "").String()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok, _ := f.mem.Get(context.Background(), key); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("detached upstream call never cached its result")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSuccessfulPagesCarryMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	list, err := f.svc.Fetch(ctx, catalog.ListingRequest{Region: "GB", Genre: 80})
	if err != nil {
		t.Fatalf("Fetch list: %v", err)
	}
	if list.Message != "Popular free titles in GB" {
		t.Fatalf("unexpected list message %q", list.Message)
	}

	search, err := f.svc.Fetch(ctx, catalog.ListingRequest{Query: "heat"})
	if err != nil {
		t.Fatalf("Fetch search: %v", err)
	}
	if search.Message != `Free results for "heat"` {
		t.Fatalf("unexpected search message %q", search.Message)
	}

	cached, _ := f.svc.Fetch(ctx, catalog.ListingRequest{Query: "heat"})
	if !cached.FromCache || cached.Message != search.Message {
		t.Fatalf("message not kept in cache: %+v", cached)
	}
}
