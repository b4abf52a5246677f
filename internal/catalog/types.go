package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	TypeMovie    = "movie"
	TypeTVSeries = "tv_series"

	// PageSize is the number of titles served per listing page.
	PageSize = 48

	DefaultRegion = "US"
	DefaultTypes  = TypeMovie + "," + TypeTVSeries
)

// Mode separates browse traffic from free-text search traffic.
type Mode string

const (
	ModeList   Mode = "list"
	ModeSearch Mode = "search"
)

// Year accepts both "2024" and 2024 on input and always encodes as a number.
type Year int

func (y *Year) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*y = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if len(s) >= 4 {
			s = s[:4]
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			*y = 0
			return nil
		}
		*y = Year(n)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("year: %w", err)
	}
	*y = Year(int(n))
	return nil
}

// Title is the canonical content item shared by every layer.
type Title struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Year        Year    `json:"year,omitempty"`
	Type        string  `json:"type"`
	PosterPath  string  `json:"poster_path,omitempty"`
	TMDBID      int64   `json:"tmdb_id,omitempty"`
	TMDBType    string  `json:"tmdb_type,omitempty"`
	GenreIDs    []int   `json:"genre_ids,omitempty"`
	VoteAverage float64 `json:"vote_average,omitempty"`
}

// NeedsPoster reports whether the title can and should be enriched.
func (t Title) NeedsPoster() bool {
	return t.TMDBID != 0 && t.TMDBType != "" && t.PosterPath == ""
}

// Listing is the normalized page payload stored in the request cache.
type Listing struct {
	Titles     []Title `json:"titles"`
	Region     string  `json:"region,omitempty"`
	TotalPages int     `json:"totalPages"`
	Message    string  `json:"message"`
}

// Provider is one entry of the provider/logo directory.
type Provider struct {
	Name    string `json:"name"`
	LogoURL string `json:"logoUrl"`
}

// Source is a place a title can be watched.
type Source struct {
	Name   string `json:"name"`
	WebURL string `json:"web_url"`
	Format string `json:"format,omitempty"`
}

// TotalPages derives a page count from an item total, never less than one.
func TotalPages(total int) int {
	if total <= 0 {
		return 1
	}
	return (total + PageSize - 1) / PageSize
}
