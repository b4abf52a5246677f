package browse

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"freestream-gateway/internal/catalog"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls []catalog.ListingRequest
	fn    func(req catalog.ListingRequest) (*Page, error)
}

func (f *fakeFetcher) Fetch(ctx context.Context, req catalog.ListingRequest) (*Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	fn := f.fn
	f.mu.Unlock()
	return fn(req)
}

func (f *fakeFetcher) Calls() []catalog.ListingRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]catalog.ListingRequest(nil), f.calls...)
}

type fakeEnricher struct {
	mu    sync.Mutex
	calls map[int64]int
	fail  map[int64]bool
}

func (e *fakeEnricher) Poster(ctx context.Context, t catalog.Title) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.calls == nil {
		e.calls = make(map[int64]int)
	}
	e.calls[t.ID]++
	if e.fail[t.ID] {
		return "", errors.New("tmdb down")
	}
	return fmt.Sprintf("/poster-%d.jpg", t.ID), nil
}

func (e *fakeEnricher) count(id int64) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[id]
}

func titles(from, n int, needPoster bool) []catalog.Title {
	out := make([]catalog.Title, 0, n)
	for i := 0; i < n; i++ {
		t := catalog.Title{ID: int64(from + i), Title: fmt.Sprintf("title %d", from+i), Type: catalog.TypeMovie}
		if needPoster {
			t.TMDBID = int64(10000 + from + i)
			t.TMDBType = catalog.TypeMovie
		} else {
			t.PosterPath = "/known.jpg"
		}
		out = append(out, t)
	}
	return out
}

// pagedFetcher serves full pages up to last, then a short page.
func pagedFetcher(last int) *fakeFetcher {
	return &fakeFetcher{fn: func(req catalog.ListingRequest) (*Page, error) {
		n := catalog.PageSize
		if req.Page == last {
			n = 10
		}
		if req.Page > last {
			n = 0
		}
		return &Page{Titles: titles(req.Page*1000, n, false)}, nil
	}}
}

func newSession(t *testing.T, f Fetcher, e Enricher) *Session {
	t.Helper()
	s := NewSession(f, e, Options{Debounce: 40 * time.Millisecond, Logger: zaptest.NewLogger(t)})
	t.Cleanup(s.Close)
	return s
}

func TestResetLoadsFirstPage(t *testing.T) {
	f := pagedFetcher(3)
	s := newSession(t, f, nil)

	s.Reset(context.Background(), Filter{Region: "gb", Types: []string{"movie"}})
	v := s.View()
	if v.State != StateLoaded || v.Page != 1 || !v.HasMore || len(v.Titles) != catalog.PageSize {
		t.Fatalf("unexpected view: state=%s page=%d hasMore=%v titles=%d", v.State, v.Page, v.HasMore, len(v.Titles))
	}
	if req := f.Calls()[0]; req.Region != "GB" || req.Page != 1 {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestLoadMoreAdvancesCursorByOne(t *testing.T) {
	f := pagedFetcher(3)
	s := newSession(t, f, nil)
	ctx := context.Background()

	s.Reset(ctx, Filter{})
	for i := 0; i < 4; i++ {
		s.LoadMore(ctx)
	}

	calls := f.Calls()
	if len(calls) != 3 {
		t.Fatalf("expected 3 fetches, got %d", len(calls))
	}
	for i, c := range calls {
		if c.Page != i+1 {
			t.Fatalf("fetch %d requested page %d", i, c.Page)
		}
	}
	v := s.View()
	if v.Page != 3 || v.HasMore || len(v.Titles) != 2*catalog.PageSize+10 {
		t.Fatalf("unexpected view: page=%d hasMore=%v titles=%d", v.Page, v.HasMore, len(v.Titles))
	}
}

func TestFirstPageFailureUsesFallback(t *testing.T) {
	f := &fakeFetcher{fn: func(catalog.ListingRequest) (*Page, error) {
		return nil, catalog.ErrUpstreamUnavailable
	}}
	var states []State
	var mu sync.Mutex
	s := NewSession(f, nil, Options{OnChange: func(v View) {
		mu.Lock()
		states = append(states, v.State)
		mu.Unlock()
	}})

	s.Reset(context.Background(), Filter{})
	v := s.View()
	if v.HasMore || len(v.Titles) != len(catalog.FallbackTitles()) || v.Message == "" {
		t.Fatalf("expected fallback list: %+v", v)
	}
	if s.LoadMore(context.Background()) {
		t.Fatalf("no further pages after a failed first page")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateLoading, StateError, StateLoaded}
	if len(states) != len(want) {
		t.Fatalf("unexpected transitions %v", states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("unexpected transitions %v", states)
		}
	}
}

func TestLaterFailureKeepsList(t *testing.T) {
	f := &fakeFetcher{fn: func(req catalog.ListingRequest) (*Page, error) {
		if req.Page == 2 {
			return nil, catalog.ErrUpstreamUnavailable
		}
		return &Page{Titles: titles(1, catalog.PageSize, false)}, nil
	}}
	s := newSession(t, f, nil)

	s.Reset(context.Background(), Filter{})
	s.LoadMore(context.Background())

	v := s.View()
	if len(v.Titles) != catalog.PageSize || v.HasMore || v.Page != 1 {
		t.Fatalf("expected first page kept and scrolling stopped: page=%d hasMore=%v titles=%d", v.Page, v.HasMore, len(v.Titles))
	}
}

func TestLoadMoreRespectsPause(t *testing.T) {
	f := pagedFetcher(5)
	s := newSession(t, f, nil)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Reset(context.Background(), Filter{})
	s.PauseFor(time.Minute)
	if s.LoadMore(context.Background()) {
		t.Fatalf("LoadMore must not run while paused")
	}
	if !s.View().Paused {
		t.Fatalf("view should report paused")
	}

	now = now.Add(2 * time.Minute)
	if !s.LoadMore(context.Background()) {
		t.Fatalf("LoadMore should resume after the pause")
	}
}

func TestStaleResultIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	f := &fakeFetcher{fn: func(req catalog.ListingRequest) (*Page, error) {
		if req.Query == "old" {
			close(started)
			<-release
			return &Page{Titles: titles(1, 5, false)}, nil
		}
		return &Page{Titles: titles(500, 3, false)}, nil
	}}
	s := newSession(t, f, nil)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		s.Reset(ctx, Filter{Query: "old"})
		close(done)
	}()
	<-started

	s.Reset(ctx, Filter{Query: "new"})
	close(release)
	<-done

	v := s.View()
	if v.Filter.Query != "new" || len(v.Titles) != 3 {
		t.Fatalf("stale page leaked into new state: %+v", v)
	}
	for _, title := range v.Titles {
		if title.ID < 500 {
			t.Fatalf("title %d belongs to the abandoned filter", title.ID)
		}
	}
}

func TestSetQueryDebouncesBurst(t *testing.T) {
	fetched := make(chan catalog.ListingRequest, 10)
	f := &fakeFetcher{fn: func(req catalog.ListingRequest) (*Page, error) {
		fetched <- req
		return &Page{Titles: titles(1, 1, false)}, nil
	}}
	s := newSession(t, f, nil)

	for _, q := range []string{"d", "du", "dun", "dune", "dune 2"} {
		s.SetQuery(context.Background(), q)
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case req := <-fetched:
		if req.Query != "dune 2" {
			t.Fatalf("expected final query, got %q", req.Query)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("debounced fetch never fired")
	}

	time.Sleep(150 * time.Millisecond)
	if n := len(f.Calls()); n != 1 {
		t.Fatalf("expected exactly one fetch, got %d", n)
	}
}

func TestResetKeepsQueryTypedDuringDebounce(t *testing.T) {
	f := &fakeFetcher{fn: func(req catalog.ListingRequest) (*Page, error) {
		return &Page{Titles: titles(1, 1, false)}, nil
	}}
	s := newSession(t, f, nil)
	ctx := context.Background()

	s.SetQuery(ctx, "dune")
	s.Reset(ctx, Filter{Region: "GB"})
	time.Sleep(150 * time.Millisecond)

	calls := f.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected one fetch, got %d: %+v", len(calls), calls)
	}
	if calls[0].Region != "GB" || calls[0].Query != "dune" {
		t.Fatalf("query typed before the filter change was lost: %+v", calls[0])
	}
	if v := s.View(); v.Filter.Query != "dune" || v.Filter.Region != "GB" {
		t.Fatalf("unexpected filter %+v", v.Filter)
	}
}

func TestQueryTypedAfterResetStillDebounces(t *testing.T) {
	fetched := make(chan catalog.ListingRequest, 10)
	f := &fakeFetcher{fn: func(req catalog.ListingRequest) (*Page, error) {
		fetched <- req
		return &Page{Titles: titles(1, 1, false)}, nil
	}}
	s := newSession(t, f, nil)
	ctx := context.Background()

	s.Reset(ctx, Filter{Region: "CA"})
	<-fetched
	s.SetQuery(ctx, "heat")

	select {
	case req := <-fetched:
		if req.Region != "CA" || req.Query != "heat" {
			t.Fatalf("unexpected request %+v", req)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("debounced fetch never fired")
	}
}

func TestBackfillIsolatesFailures(t *testing.T) {
	list := titles(1, 10, true)
	f := &fakeFetcher{fn: func(catalog.ListingRequest) (*Page, error) {
		return &Page{Titles: list}, nil
	}}
	e := &fakeEnricher{fail: map[int64]bool{4: true}}
	s := newSession(t, f, e)

	s.Reset(context.Background(), Filter{})
	s.WaitBackfill()

	v := s.View()
	for _, title := range v.Titles {
		if title.ID == 4 {
			if title.PosterPath != "" {
				t.Fatalf("failed title should have no poster")
			}
			continue
		}
		if title.PosterPath != fmt.Sprintf("/poster-%d.jpg", title.ID) {
			t.Fatalf("title %d not enriched: %q", title.ID, title.PosterPath)
		}
	}
}

func TestBackfillSubmitsEachTitleOnce(t *testing.T) {
	f := &fakeFetcher{fn: func(req catalog.ListingRequest) (*Page, error) {
		// page 2 repeats part of page 1
		start := (req.Page - 1) * 40
		return &Page{Titles: titles(start, catalog.PageSize, true)}, nil
	}}
	e := &fakeEnricher{fail: map[int64]bool{2: true}}
	s := newSession(t, f, e)
	ctx := context.Background()

	s.Reset(ctx, Filter{})
	s.WaitBackfill()
	s.LoadMore(ctx)
	s.WaitBackfill()

	for id := int64(0); id < 88; id++ {
		if n := e.count(id); n != 1 {
			t.Fatalf("title %d submitted %d times", id, n)
		}
	}

	// a new generation clears the dedup set
	s.Reset(ctx, Filter{})
	s.WaitBackfill()
	if n := e.count(2); n != 2 {
		t.Fatalf("expected resubmission after reset, got %d", n)
	}
}

func TestBackfillOfAbandonedGenerationIsDropped(t *testing.T) {
	var gate atomic.Bool
	release := make(chan struct{})
	f := &fakeFetcher{fn: func(req catalog.ListingRequest) (*Page, error) {
		return &Page{Titles: titles(1, 3, true)}, nil
	}}
	e := &blockingEnricher{release: release, gate: &gate}
	s := newSession(t, f, e)
	ctx := context.Background()

	gate.Store(true)
	s.Reset(ctx, Filter{Query: "a"})
	gate.Store(false)
	s.Reset(ctx, Filter{Query: "b"})
	close(release)
	s.WaitBackfill()

	for _, title := range s.View().Titles {
		if title.PosterPath == "/old.jpg" {
			t.Fatalf("poster from abandoned generation merged into title %d", title.ID)
		}
	}
}

type blockingEnricher struct {
	release chan struct{}
	gate    *atomic.Bool
}

func (b *blockingEnricher) Poster(ctx context.Context, t catalog.Title) (string, error) {
	if b.gate.Load() {
		<-b.release
		return "/old.jpg", nil
	}
	return "/new.jpg", nil
}
