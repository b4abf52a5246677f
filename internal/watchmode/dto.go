package watchmode

import (
	"bytes"
	"encoding/json"
)

// wireTitle is a title as returned by list-titles and search. Search results
// use "name" where listings use "title".
type wireTitle struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Name        string          `json:"name"`
	Year        json.RawMessage `json:"year"`
	Type        string          `json:"type"`
	TMDBID      int64           `json:"tmdb_id"`
	TMDBType    string          `json:"tmdb_type"`
	PosterPath  string          `json:"poster_path"`
	GenreIDs    []int           `json:"genre_ids"`
	Genres      []int           `json:"genres"`
	UserRating  float64         `json:"user_rating"`
	VoteAverage float64         `json:"vote_average"`
}

// wireListing covers every observed envelope: list-titles ("titles"),
// search ("title_results") and older proxies ("results").
type wireListing struct {
	Titles       []wireTitle `json:"titles"`
	Results      []wireTitle `json:"results"`
	TitleResults []wireTitle `json:"title_results"`
	Page         int         `json:"page"`
	TotalResults int         `json:"total_results"`
	TotalPages   int         `json:"total_pages"`
}

func (l wireListing) items() []wireTitle {
	switch {
	case len(l.Titles) > 0:
		return l.Titles
	case len(l.Results) > 0:
		return l.Results
	default:
		return l.TitleResults
	}
}

type wireSource struct {
	SourceID   int64    `json:"source_id"`
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Region     string   `json:"region"`
	WebURL     string   `json:"web_url"`
	Format     string   `json:"format"`
	Price      *float64 `json:"price"`
	FreeWithAd bool     `json:"free_with_ads"`
}

type wireProvider struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Logo100 string `json:"logo_100"`
	LogoURL string `json:"logo_url"`
}

// providerList accepts either a bare array or {"results": [...]}.
type providerList []wireProvider

func (p *providerList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var arr []wireProvider
		if err := json.Unmarshal(data, &arr); err != nil {
			return err
		}
		*p = arr
		return nil
	}
	var env struct {
		Results []wireProvider `json:"results"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	*p = env.Results
	return nil
}
