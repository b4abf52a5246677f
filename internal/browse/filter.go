package browse

import (
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"freestream-gateway/internal/catalog"
)

// Filter is the server-side filter state. Any change to it starts a new
// generation.
type Filter struct {
	Tab    string
	Region string
	Types  []string
	Genre  int
	Query  string
}

func (f Filter) request(page int) catalog.ListingRequest {
	return catalog.ListingRequest{
		Region: f.Region,
		Types:  f.Types,
		Page:   page,
		Genre:  f.Genre,
		Query:  f.Query,
	}.Normalize()
}

// LocalFilter narrows the already loaded list without a new fetch.
type LocalFilter struct {
	Text      string
	Type      string
	Genres    []int
	YearFrom  int
	YearTo    int
	MinRating float64
}

// Apply keeps titles matching every set criterion, preserving order. Text
// is matched fuzzily, case and accent insensitive.
func (f LocalFilter) Apply(titles []catalog.Title) []catalog.Title {
	text := strings.TrimSpace(f.Text)
	out := make([]catalog.Title, 0, len(titles))
	for _, t := range titles {
		if text != "" && !fuzzy.MatchNormalizedFold(text, t.Title) {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if len(f.Genres) > 0 && !anyGenre(t.GenreIDs, f.Genres) {
			continue
		}
		if f.YearFrom > 0 && int(t.Year) < f.YearFrom {
			continue
		}
		if f.YearTo > 0 && int(t.Year) > f.YearTo {
			continue
		}
		if f.MinRating > 0 && t.VoteAverage < f.MinRating {
			continue
		}
		out = append(out, t)
	}
	return out
}

func anyGenre(have, want []int) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}
