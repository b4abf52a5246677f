package cache

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"freestream-gateway/internal/catalog"
)

const noneSegment = "none"

// ListingKey identifies one logical listing request.
type ListingKey struct {
	Mode      catalog.Mode
	VersionID string
	Region    string
	Types     string
	Page      int
	Genre     int
	Query     string
}

// String converts the structured key into the final string used in Redis/map.
func (k ListingKey) String() string {
	// <MODE>:<VERSION>:<REGION>:<TYPES>:<PAGE>:<GENRE|none>:<q.QUERY|none>
	genre := noneSegment
	if k.Genre > 0 {
		genre = strconv.Itoa(k.Genre)
	}
	query := noneSegment
	if k.Query != "" {
		// escaped so the segment never contains ':' and never equals "none"
		query = "q." + url.QueryEscape(k.Query)
	}
	return fmt.Sprintf("%s:%s:%s:%s:%d:%s:%s",
		k.Mode, k.VersionID, k.Region, k.Types, k.Page, genre, query)
}

// BuildListingKey normalizes req and derives its cache key. The function is
// pure: identical logical requests always produce the same key.
func BuildListingKey(req catalog.ListingRequest, versionID string) ListingKey {
	n := req.Normalize()
	return ListingKey{
		Mode:      n.Mode(),
		VersionID: versionOrDefault(versionID),
		Region:    n.Region,
		Types:     n.TypesCSV(),
		Page:      n.Page,
		Genre:     n.Genre,
		Query:     n.Query,
	}
}

// SourcesKey builds the key for a title's free-source list.
func SourcesKey(titleID int64, region, versionID string) string {
	return fmt.Sprintf("sources:%s:%s:%d",
		versionOrDefault(versionID), strings.ToUpper(region), titleID)
}

// SimilarKey builds the key for the related titles of a TMDB title.
func SimilarKey(tmdbType string, tmdbID int64, versionID string) string {
	return fmt.Sprintf("similar:%s:%s:%d", versionOrDefault(versionID), tmdbType, tmdbID)
}

func versionOrDefault(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "v1"
	}
	return v
}

// ModeOf extracts the namespace segment from a key built by this package.
// Snapshot keys have no namespace and report "snapshot".
func ModeOf(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "snapshot"
}
