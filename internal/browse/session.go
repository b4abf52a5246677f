// Package browse is the client side of the gateway: it accumulates listing
// pages into one list, debounces search input, backfills missing posters and
// drops results that arrive after the filter changed.
package browse

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"freestream-gateway/internal/catalog"
)

type State int

const (
	StateIdle State = iota
	StateLoading
	StateLoaded
	StateLoadingMore
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateLoadingMore:
		return "loading_more"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

const (
	DefaultDebounce        = 600 * time.Millisecond
	DefaultBackfillWorkers = 8

	msgOffline     = "Live listings are unavailable, showing offline picks."
	msgEndOfList   = "Could not load more titles."
	msgNoneMatched = "No free titles matched your search."
)

// Page is one gateway response.
type Page struct {
	Titles     []catalog.Title
	TotalPages int
	Message    string
	FromCache  bool
}

// Fetcher loads one listing page.
type Fetcher interface {
	Fetch(ctx context.Context, req catalog.ListingRequest) (*Page, error)
}

// Enricher finds a poster for a title.
type Enricher interface {
	Poster(ctx context.Context, t catalog.Title) (string, error)
}

// View is a snapshot of the session for rendering.
type View struct {
	Filter     Filter
	Titles     []catalog.Title
	Page       int
	HasMore    bool
	State      State
	Message    string
	Paused     bool
	Generation uint64
}

type Options struct {
	Debounce        time.Duration
	BackfillWorkers int
	Logger          *zap.Logger
	// OnChange is called after every state transition, outside the lock.
	OnChange func(View)
}

// Session holds the accumulated list for one filter state. All methods are
// safe for concurrent use.
type Session struct {
	fetcher  Fetcher
	enricher Enricher
	logger   *zap.Logger
	onChange func(View)
	workers  int
	now      func() time.Time

	debouncer *Debouncer
	backfill  sync.WaitGroup

	mu          sync.Mutex
	filter      Filter
	gen         uint64
	titles      []catalog.Title
	index       map[int64]int
	page        int
	hasMore     bool
	state       State
	message     string
	submitted   map[int64]struct{}
	pausedUntil time.Time

	// typed but not yet debounced
	pendingQuery string
	queryPending bool
}

// NewSession builds an idle session. enricher may be nil to disable
// poster backfill.
func NewSession(f Fetcher, e Enricher, opts Options) *Session {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.BackfillWorkers <= 0 {
		opts.BackfillWorkers = DefaultBackfillWorkers
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Session{
		fetcher:   f,
		enricher:  e,
		logger:    opts.Logger.Named("browse"),
		onChange:  opts.OnChange,
		workers:   opts.BackfillWorkers,
		now:       time.Now,
		debouncer: NewDebouncer(opts.Debounce),
		index:     make(map[int64]int),
		submitted: make(map[int64]struct{}),
	}
}

// View returns a copy of the current state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	titles := make([]catalog.Title, len(s.titles))
	copy(titles, s.titles)
	return View{
		Filter:     s.filter,
		Titles:     titles,
		Page:       s.page,
		HasMore:    s.hasMore,
		State:      s.state,
		Message:    s.message,
		Paused:     s.now().Before(s.pausedUntil),
		Generation: s.gen,
	}
}

func (s *Session) emit(v View) {
	if s.onChange != nil {
		s.onChange(v)
	}
}

// Reset starts a new generation for f: the list, cursor and backfill dedup
// set are cleared and the first page is loaded. In-flight results of older
// generations are discarded when they arrive. A query still waiting out its
// debounce replaces f.Query and is loaded now.
func (s *Session) Reset(ctx context.Context, f Filter) {
	s.debouncer.Stop()

	s.mu.Lock()
	if s.queryPending {
		f.Query = s.pendingQuery
		s.queryPending = false
	}
	s.gen++
	gen := s.gen
	s.filter = f
	s.titles = nil
	s.index = make(map[int64]int)
	s.page = 0
	s.hasMore = false
	s.message = ""
	s.submitted = make(map[int64]struct{})
	s.state = StateLoading
	req := f.request(1)
	v := s.viewLocked()
	s.mu.Unlock()
	s.emit(v)

	page, err := s.fetcher.Fetch(ctx, req)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.logger.Debug("discarding stale first page", zap.Uint64("generation", gen))
		return
	}

	if err != nil || (len(page.Titles) == 0 && req.Mode() == catalog.ModeList) {
		if err != nil {
			s.logger.Warn("first page failed, using fallback titles", zap.Error(err))
		}
		s.state = StateError
		errView := s.viewLocked()
		s.mu.Unlock()
		s.emit(errView)

		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			return
		}
		s.appendLocked(catalog.FallbackTitles())
		s.page = 1
		s.hasMore = false
		s.message = msgOffline
	} else {
		s.appendLocked(page.Titles)
		s.page = 1
		s.hasMore = len(page.Titles) >= catalog.PageSize
		s.message = page.Message
		if len(page.Titles) == 0 && s.message == "" {
			s.message = msgNoneMatched
		}
	}
	s.state = StateLoaded
	v = s.viewLocked()
	s.mu.Unlock()

	s.emit(v)
	s.startBackfill(ctx, gen)
}

// SetQuery debounces free-text input; only the last query of a burst
// triggers a Reset.
func (s *Session) SetQuery(ctx context.Context, query string) {
	s.mu.Lock()
	s.pendingQuery = query
	s.queryPending = true
	s.mu.Unlock()

	s.debouncer.Trigger(func() {
		s.mu.Lock()
		if !s.queryPending {
			s.mu.Unlock()
			return
		}
		f := s.filter
		s.mu.Unlock()

		s.Reset(ctx, f)
	})
}

// PauseFor suspends LoadMore for d.
func (s *Session) PauseFor(d time.Duration) {
	s.mu.Lock()
	s.pausedUntil = s.now().Add(d)
	s.mu.Unlock()
}

// LoadMore is the infinite-scroll trigger. It requests the page after the
// cursor unless a load is running, no pages remain or scrolling is paused,
// and reports whether a request was made. The cursor advances only after a
// successful append.
func (s *Session) LoadMore(ctx context.Context) bool {
	s.mu.Lock()
	if s.state != StateLoaded || !s.hasMore || s.now().Before(s.pausedUntil) {
		s.mu.Unlock()
		return false
	}
	gen := s.gen
	next := s.page + 1
	req := s.filter.request(next)
	s.state = StateLoadingMore
	v := s.viewLocked()
	s.mu.Unlock()
	s.emit(v)

	page, err := s.fetcher.Fetch(ctx, req)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.logger.Debug("discarding stale page", zap.Int("page", next))
		return true
	}

	if err != nil {
		s.logger.Warn("next page failed, keeping loaded titles", zap.Int("page", next), zap.Error(err))
		s.hasMore = false
		s.message = msgEndOfList
	} else {
		s.appendLocked(page.Titles)
		s.page = next
		s.hasMore = len(page.Titles) >= catalog.PageSize
	}
	s.state = StateLoaded
	v = s.viewLocked()
	s.mu.Unlock()

	s.emit(v)
	if err == nil {
		s.startBackfill(ctx, gen)
	}
	return true
}

// appendLocked adds titles not already in the list.
func (s *Session) appendLocked(titles []catalog.Title) {
	for _, t := range titles {
		if _, dup := s.index[t.ID]; dup {
			continue
		}
		s.index[t.ID] = len(s.titles)
		s.titles = append(s.titles, t)
	}
}

// startBackfill submits every title that needs a poster and was not
// submitted before. Titles are marked before the lookups run.
func (s *Session) startBackfill(ctx context.Context, gen uint64) {
	if s.enricher == nil {
		return
	}

	s.mu.Lock()
	var todo []catalog.Title
	for _, t := range s.titles {
		if !t.NeedsPoster() {
			continue
		}
		if _, done := s.submitted[t.ID]; done {
			continue
		}
		s.submitted[t.ID] = struct{}{}
		todo = append(todo, t)
	}
	s.mu.Unlock()

	if len(todo) == 0 {
		return
	}

	s.backfill.Add(1)
	go func() {
		defer s.backfill.Done()
		s.runBackfill(ctx, gen, todo)
	}()
}

func (s *Session) runBackfill(ctx context.Context, gen uint64, todo []catalog.Title) {
	p := pool.New().WithMaxGoroutines(s.workers)
	var failed, merged int
	var countMu sync.Mutex

	for _, t := range todo {
		p.Go(func() {
			path, err := s.enricher.Poster(ctx, t)
			countMu.Lock()
			defer countMu.Unlock()
			if err != nil || path == "" {
				failed++
				return
			}
			if s.mergePoster(gen, t.ID, path) {
				merged++
			}
		})
	}
	p.Wait()

	s.logger.Debug("poster backfill finished",
		zap.Int("submitted", len(todo)),
		zap.Int("merged", merged),
		zap.Int("failed", failed),
	)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	v := s.viewLocked()
	s.mu.Unlock()
	s.emit(v)
}

func (s *Session) mergePoster(gen uint64, id int64, path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.titles[i].PosterPath = path
	return true
}

// WaitBackfill blocks until every started backfill batch has finished.
func (s *Session) WaitBackfill() {
	s.backfill.Wait()
}

// Close drops a pending debounced query.
func (s *Session) Close() {
	s.debouncer.Stop()
}
