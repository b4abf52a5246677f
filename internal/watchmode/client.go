package watchmode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"freestream-gateway/internal/catalog"
	"freestream-gateway/internal/upstream"
)

// Client is the upstream title catalog. Every method returns data already
// normalized into catalog types.
type Client interface {
	ListTitles(ctx context.Context, p ListParams) (*catalog.Listing, error)
	Search(ctx context.Context, p SearchParams) (*catalog.Listing, error)
	Providers(ctx context.Context, regions []string) ([]catalog.Provider, error)
	TitleSources(ctx context.Context, titleID int64, region string) ([]catalog.Source, error)
}

// ListParams drives list-titles.
type ListParams struct {
	Regions []string
	Types   []string
	Genre   int
	Page    int
	Limit   int
}

// SearchParams drives a name search.
type SearchParams struct {
	Query string
	Types []string
	Page  int
	Limit int
}

func (c *client) ListTitles(ctx context.Context, p ListParams) (*catalog.Listing, error) {
	q := url.Values{}
	q.Set("source_types", "free")
	q.Set("sort_by", "popularity_desc")
	q.Set("regions", strings.Join(p.Regions, ","))
	q.Set("types", strings.Join(p.Types, ","))
	q.Set("page", strconv.Itoa(max(p.Page, 1)))
	q.Set("limit", strconv.Itoa(limitOrDefault(p.Limit)))
	if p.Genre > 0 {
		q.Set("genres", strconv.Itoa(p.Genre))
	}

	var raw wireListing
	if err := c.get(ctx, "/list-titles/", q, &raw); err != nil {
		return nil, err
	}

	listing := normalizeListing(raw, nil, limitOrDefault(p.Limit))
	listing.Region = strings.Join(p.Regions, ",")
	return listing, nil
}

func (c *client) Search(ctx context.Context, p SearchParams) (*catalog.Listing, error) {
	q := url.Values{}
	q.Set("search_field", "name")
	q.Set("search_value", p.Query)
	q.Set("page", strconv.Itoa(max(p.Page, 1)))
	q.Set("limit", strconv.Itoa(limitOrDefault(p.Limit)))

	var raw wireListing
	if err := c.get(ctx, "/search/", q, &raw); err != nil {
		return nil, err
	}
	return normalizeListing(raw, p.Types, limitOrDefault(p.Limit)), nil
}

func (c *client) Providers(ctx context.Context, regions []string) ([]catalog.Provider, error) {
	q := url.Values{}
	if len(regions) > 0 {
		q.Set("regions", strings.Join(regions, ","))
	}

	var raw providerList
	if err := c.get(ctx, "/sources/", q, &raw); err != nil {
		return nil, err
	}

	out := make([]catalog.Provider, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, p := range raw {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		logo := p.Logo100
		if logo == "" {
			logo = p.LogoURL
		}
		out = append(out, catalog.Provider{Name: name, LogoURL: logo})
	}
	return out, nil
}

func (c *client) TitleSources(ctx context.Context, titleID int64, region string) ([]catalog.Source, error) {
	if titleID <= 0 {
		return nil, fmt.Errorf("watchmode: invalid title id %d", titleID)
	}
	q := url.Values{}
	q.Set("regions", strings.ToUpper(region))

	var raw []wireSource
	if err := c.get(ctx, "/title/"+strconv.FormatInt(titleID, 10)+"/sources/", q, &raw); err != nil {
		return nil, err
	}
	return freeSources(raw), nil
}

func (c *client) get(ctx context.Context, path string, q url.Values, dst any) error {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.UpstreamTimeout)
	defer cancel()

	q.Set("apiKey", c.cfg.APIKey)
	endpoint := c.cfg.BaseURL + path + "?" + q.Encode()

	retrier := upstream.Retrier{
		MaxRetries:  c.cfg.MaxRetries,
		BaseBackoff: c.cfg.BaseBackoff,
		Logger:      c.logger,
	}
	err := upstream.GetJSON(ctx, c.httpClient, retrier, "watchmode", endpoint, nil, dst)
	if err != nil {
		c.logger.Warn("watchmode request failed",
			zap.String("path", path),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return err
	}

	c.logger.Debug("watchmode request completed",
		zap.String("path", path),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return catalog.PageSize
	}
	return limit
}

// normalizeListing maps any observed envelope into catalog.Listing. Missing
// arrays become empty slices. When types is non-empty, titles of other types
// are dropped.
func normalizeListing(raw wireListing, types []string, limit int) *catalog.Listing {
	items := raw.items()
	titles := make([]catalog.Title, 0, len(items))
	for _, w := range items {
		t := normalizeTitle(w)
		if t.ID == 0 {
			continue
		}
		if len(types) > 0 && !contains(types, t.Type) {
			continue
		}
		titles = append(titles, t)
	}

	totalPages := 1
	switch {
	case raw.TotalResults > 0:
		totalPages = (raw.TotalResults + limit - 1) / limit
	case raw.TotalPages > 0:
		totalPages = raw.TotalPages
	}

	return &catalog.Listing{
		Titles:     titles,
		TotalPages: totalPages,
	}
}

func normalizeTitle(w wireTitle) catalog.Title {
	name := w.Title
	if name == "" {
		name = w.Name
	}

	var year catalog.Year
	if len(w.Year) > 0 {
		_ = json.Unmarshal(w.Year, &year)
	}

	genres := w.GenreIDs
	if len(genres) == 0 {
		genres = w.Genres
	}

	rating := w.VoteAverage
	if rating == 0 {
		rating = w.UserRating
	}

	return catalog.Title{
		ID:          w.ID,
		Title:       name,
		Year:        year,
		Type:        normalizeType(w.Type),
		PosterPath:  w.PosterPath,
		TMDBID:      w.TMDBID,
		TMDBType:    w.TMDBType,
		GenreIDs:    genres,
		VoteAverage: rating,
	}
}

// normalizeType folds tv_miniseries, tv_special etc. into tv_series and
// short_film into movie.
func normalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if strings.HasPrefix(t, "tv") {
		return catalog.TypeTVSeries
	}
	return catalog.TypeMovie
}

// freeSources keeps sources that are free, zero-priced or ad-supported, and
// drops exact duplicates.
func freeSources(raw []wireSource) []catalog.Source {
	out := make([]catalog.Source, 0, len(raw))
	seen := make(map[catalog.Source]struct{}, len(raw))
	for _, s := range raw {
		if !isFree(s) {
			continue
		}
		src := catalog.Source{Name: s.Name, WebURL: s.WebURL, Format: s.Format}
		if _, dup := seen[src]; dup {
			continue
		}
		seen[src] = struct{}{}
		out = append(out, src)
	}
	return out
}

func isFree(s wireSource) bool {
	return strings.EqualFold(s.Type, "free") ||
		(s.Price != nil && *s.Price == 0) ||
		s.FreeWithAd
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
