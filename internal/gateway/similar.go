package gateway

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"freestream-gateway/internal/cache"
	"freestream-gateway/internal/catalog"
	"freestream-gateway/internal/tmdb"
	"freestream-gateway/pkg/logging/logging"
)

const similarLimit = 12

// ErrRelatedDisabled is returned by Similar when no metadata provider is set.
var ErrRelatedDisabled = errors.New("related titles are not configured")

// Related looks up titles similar to a metadata-provider title.
type Related interface {
	Similar(ctx context.Context, tmdbID int64, tmdbType string, limit int) ([]tmdb.Details, error)
}

// RelatedTitle is a "more like this" entry. It carries the metadata id only;
// the client resolves it against the catalog when opened.
type RelatedTitle struct {
	TMDBID      int64   `json:"tmdb_id"`
	TMDBType    string  `json:"tmdb_type"`
	Title       string  `json:"title"`
	Overview    string  `json:"overview,omitempty"`
	PosterURL   string  `json:"poster_url,omitempty"`
	VoteAverage float64 `json:"vote_average,omitempty"`
}

type SimilarResult struct {
	Titles    []RelatedTitle
	FromCache bool
}

// Similar returns related titles for tmdbID, cached with the list TTL.
func (s *Service) Similar(ctx context.Context, tmdbType string, tmdbID int64) (*SimilarResult, error) {
	if s.related == nil {
		return nil, ErrRelatedDisabled
	}
	key := cache.SimilarKey(tmdbType, tmdbID, s.versionID)

	if raw, ok, err := s.store.Get(ctx, key); err == nil && ok {
		var titles []RelatedTitle
		if jerr := json.Unmarshal(raw, &titles); jerr == nil {
			return &SimilarResult{Titles: nonNilRelated(titles), FromCache: true}, nil
		}
	}

	v, _, err := s.shared(ctx, key, func(callCtx context.Context) (any, error) {
		details, err := s.related.Similar(callCtx, tmdbID, tmdbType, similarLimit)
		if err != nil {
			return nil, err
		}
		titles := make([]RelatedTitle, 0, len(details))
		for i := range details {
			d := &details[i]
			if d.ID == 0 {
				continue
			}
			titles = append(titles, RelatedTitle{
				TMDBID:      d.ID,
				TMDBType:    tmdbType,
				Title:       d.DisplayTitle(),
				Overview:    d.Overview,
				PosterURL:   tmdb.PosterURL(d.PosterPath),
				VoteAverage: d.VoteAverage,
			})
		}
		s.remember(callCtx, key, titles, s.ttl.List)
		return titles, nil
	})
	if err != nil {
		logging.L(ctx).Warn("similar titles fetch failed",
			zap.Int64("tmdb_id", tmdbID),
			zap.String("error_kind", catalog.Kind(err)),
			zap.Error(err),
		)
		return nil, err
	}
	return &SimilarResult{Titles: nonNilRelated(v.([]RelatedTitle))}, nil
}

func nonNilRelated(t []RelatedTitle) []RelatedTitle {
	if t == nil {
		return []RelatedTitle{}
	}
	return t
}
