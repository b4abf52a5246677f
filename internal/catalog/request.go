package catalog

import (
	"sort"
	"strings"
)

// ListingRequest is one logical call to the gateway.
type ListingRequest struct {
	Region string   `json:"region" validate:"required,len=2,alpha"`
	Types  []string `json:"types" validate:"required,min=1,dive,oneof=movie tv_series"`
	Page   int      `json:"page" validate:"min=1,max=10000"`
	Genre  int      `json:"genre,omitempty" validate:"min=0"`
	Query  string   `json:"query,omitempty" validate:"max=200"`
}

// Normalize applies defaults and canonical ordering so that identical logical
// requests compare equal. A query always wins over a genre.
func (r ListingRequest) Normalize() ListingRequest {
	out := ListingRequest{
		Region: strings.ToUpper(strings.TrimSpace(r.Region)),
		Page:   r.Page,
		Genre:  r.Genre,
		Query:  strings.TrimSpace(r.Query),
	}
	if out.Region == "" {
		out.Region = DefaultRegion
	}
	if out.Page < 1 {
		out.Page = 1
	}
	if out.Genre < 0 {
		out.Genre = 0
	}
	if out.Query != "" {
		out.Genre = 0
	}

	seen := make(map[string]struct{}, len(r.Types))
	for _, t := range r.Types {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out.Types = append(out.Types, t)
	}
	if len(out.Types) == 0 {
		out.Types = []string{TypeMovie, TypeTVSeries}
	}
	sort.Strings(out.Types)
	return out
}

// Mode is search when a query is present, list otherwise.
func (r ListingRequest) Mode() Mode {
	if strings.TrimSpace(r.Query) != "" {
		return ModeSearch
	}
	return ModeList
}

// Unfiltered reports a plain browse request: no query and no genre.
func (r ListingRequest) Unfiltered() bool {
	return r.Mode() == ModeList && r.Genre == 0
}

// TypesCSV joins the types in their canonical order.
func (r ListingRequest) TypesCSV() string {
	return strings.Join(r.Types, ",")
}

// ParseTypes splits a comma separated types filter.
func ParseTypes(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	return strings.Split(csv, ",")
}

// HasType reports whether t is one of the requested types.
func (r ListingRequest) HasType(t string) bool {
	for _, want := range r.Types {
		if want == t {
			return true
		}
	}
	return false
}
