// Package tmdb looks up poster and overview metadata for titles that the
// catalog returned without artwork. Lookups are best effort: callers treat any
// error as "no poster".
package tmdb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"freestream-gateway/internal/catalog"
	"freestream-gateway/internal/upstream"
)

const (
	DefaultBaseURL = "https://api.themoviedb.org/3"
	ImageBaseURL   = "https://image.tmdb.org/t/p/w500"
)

// Config for the metadata client. ReadToken is the v4 bearer token.
type Config struct {
	BaseURL     string
	ReadToken   string
	Language    string
	Timeout     time.Duration
	MaxRetries  int
	BaseBackoff time.Duration
	HTTPClient  *http.Client
}

// Details is the subset of movie/tv details the UI needs.
type Details struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Name        string  `json:"name"`
	Overview    string  `json:"overview"`
	PosterPath  string  `json:"poster_path"`
	VoteAverage float64 `json:"vote_average"`
}

// DisplayTitle returns title for movies and name for tv.
func (d *Details) DisplayTitle() string {
	if d.Title != "" {
		return d.Title
	}
	return d.Name
}

// PosterURL returns the full w500 poster URL, or "" without a poster.
// Absolute URLs are returned unchanged.
func PosterURL(path string) string {
	if path == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return ImageBaseURL + path
}

// Client fetches metadata by external id.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient validates cfg and applies defaults.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.ReadToken == "" {
		return nil, errors.New("tmdb: read token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 150 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.Named("tmdb"),
	}, nil
}

// Details fetches /movie/{id} or /tv/{id}.
func (c *Client) Details(ctx context.Context, tmdbID int64, tmdbType string) (*Details, error) {
	var d Details
	if err := c.get(ctx, detailsPath(tmdbID, tmdbType), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Similar returns up to limit titles related to the given one.
func (c *Client) Similar(ctx context.Context, tmdbID int64, tmdbType string, limit int) ([]Details, error) {
	q := url.Values{}
	q.Set("page", "1")

	var res struct {
		Results []Details `json:"results"`
	}
	if err := c.get(ctx, detailsPath(tmdbID, tmdbType)+"/similar", q, &res); err != nil {
		return nil, err
	}
	if limit > 0 && len(res.Results) > limit {
		res.Results = res.Results[:limit]
	}
	return res.Results, nil
}

// Poster implements the enrichment contract used by browse sessions: it
// returns the poster path for t, or an error when none could be found.
func (c *Client) Poster(ctx context.Context, t catalog.Title) (string, error) {
	if t.TMDBID == 0 {
		return "", fmt.Errorf("tmdb: title %d has no external id", t.ID)
	}
	d, err := c.Details(ctx, t.TMDBID, t.TMDBType)
	if err != nil {
		return "", err
	}
	if d.PosterPath == "" {
		return "", fmt.Errorf("tmdb: %w: no poster for %d", catalog.ErrNotFound, t.TMDBID)
	}
	return d.PosterPath, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, dst any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if q == nil {
		q = url.Values{}
	}
	q.Set("language", c.cfg.Language)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.ReadToken)

	retrier := upstream.Retrier{
		MaxRetries:  c.cfg.MaxRetries,
		BaseBackoff: c.cfg.BaseBackoff,
		Logger:      c.logger,
	}
	err := upstream.GetJSON(ctx, c.httpClient, retrier, "tmdb", c.cfg.BaseURL+path+"?"+q.Encode(), header, dst)
	if err != nil {
		c.logger.Debug("tmdb lookup failed", zap.String("path", path), zap.Error(err))
	}
	return err
}

// detailsPath maps catalog types onto TMDB's movie/tv namespaces.
func detailsPath(id int64, tmdbType string) string {
	kind := "tv"
	if tmdbType == catalog.TypeMovie {
		kind = "movie"
	}
	return "/" + kind + "/" + strconv.FormatInt(id, 10)
}
