package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"freestream-gateway/internal/catalog"
	"freestream-gateway/internal/gateway"
	"freestream-gateway/pkg/logging/logging"
)

// ListingService is the part of the gateway the HTTP layer calls.
type ListingService interface {
	Fetch(ctx context.Context, req catalog.ListingRequest) (*gateway.ListingResult, error)
	Providers(ctx context.Context) (*gateway.ProvidersResult, error)
	Sources(ctx context.Context, titleID int64, region string) (*gateway.SourcesResult, error)
	Similar(ctx context.Context, tmdbType string, tmdbID int64) (*gateway.SimilarResult, error)
}

// ListingsHandler serves the read-only catalog endpoints.
type ListingsHandler struct {
	svc      ListingService
	validate *validator.Validate
}

func NewListingsHandler(svc ListingService) *ListingsHandler {
	return &ListingsHandler{svc: svc, validate: validator.New()}
}

type listingResponse struct {
	Success    bool            `json:"success"`
	Titles     []catalog.Title `json:"titles"`
	TotalPages int             `json:"totalPages"`
	Message    string          `json:"message"`
	FromCache  bool            `json:"fromCache"`
	Error      string          `json:"error,omitempty"`
}

// Listings handles GET /listings.
func (h *ListingsHandler) Listings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	req, err := parseListingRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req = req.Normalize()
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", validationMessage(err))
		return
	}

	res, err := h.svc.Fetch(ctx, req)
	if err != nil {
		writeJSON(w, statusFor(err), listingResponse{
			Success: false,
			Titles:  []catalog.Title{},
			Message: "Live listings are unavailable right now.",
			Error:   catalog.Kind(err),
		})
		return
	}

	logger.Info("listing_served",
		zap.String("region", req.Region),
		zap.String("types", req.TypesCSV()),
		zap.Int("page", req.Page),
		zap.String("mode", string(req.Mode())),
		zap.String("tier", res.Tier),
		zap.Int("titles", len(res.Titles)),
		zap.Duration("total_latency_ms", time.Since(start)),
	)

	writeJSON(w, http.StatusOK, listingResponse{
		Success:    true,
		Titles:     res.Titles,
		TotalPages: res.TotalPages,
		Message:    res.Message,
		FromCache:  res.FromCache,
	})
}

type providersResponse struct {
	Success   bool               `json:"success"`
	Providers []catalog.Provider `json:"providers"`
	Error     string             `json:"error,omitempty"`
}

// Providers handles GET /providers.
func (h *ListingsHandler) Providers(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Providers(r.Context())
	if err != nil {
		writeJSON(w, statusFor(err), providersResponse{
			Success:   false,
			Providers: []catalog.Provider{},
			Error:     catalog.Kind(err),
		})
		return
	}

	resp := providersResponse{Success: true, Providers: res.Providers}
	if res.Stale {
		resp.Error = "using cached providers, refresh failed"
	}
	writeJSON(w, http.StatusOK, resp)
}

type sourcesResponse struct {
	Success     bool             `json:"success"`
	FreeSources []catalog.Source `json:"freeSources"`
	Error       string           `json:"error,omitempty"`
}

// Sources handles GET /titles/{id}/sources.
func (h *ListingsHandler) Sources(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "title id must be a positive integer")
		return
	}
	region := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("region")))
	if region == "" {
		region = catalog.DefaultRegion
	}
	if err := h.validate.Var(region, "len=2,alpha"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "region must be a two letter country code")
		return
	}

	res, err := h.svc.Sources(r.Context(), id, region)
	if err != nil {
		writeJSON(w, statusFor(err), sourcesResponse{
			Success:     false,
			FreeSources: []catalog.Source{},
			Error:       catalog.Kind(err),
		})
		return
	}
	writeJSON(w, http.StatusOK, sourcesResponse{Success: true, FreeSources: res.Sources})
}

type similarResponse struct {
	Success   bool                   `json:"success"`
	Titles    []gateway.RelatedTitle `json:"titles"`
	FromCache bool                   `json:"fromCache"`
	Error     string                 `json:"error,omitempty"`
}

// Similar handles GET /similar/{type}/{tmdbId}.
func (h *ListingsHandler) Similar(w http.ResponseWriter, r *http.Request) {
	tmdbType := strings.ToLower(chi.URLParam(r, "type"))
	if tmdbType == "tv" {
		tmdbType = catalog.TypeTVSeries
	}
	if err := h.validate.Var(tmdbType, "oneof=movie tv_series"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "type must be movie or tv_series")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "tmdbId"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "tmdb id must be a positive integer")
		return
	}

	res, err := h.svc.Similar(r.Context(), tmdbType, id)
	if err != nil {
		status, kind := statusFor(err), catalog.Kind(err)
		if errors.Is(err, gateway.ErrRelatedDisabled) {
			status, kind = http.StatusServiceUnavailable, "not_configured"
		}
		writeJSON(w, status, similarResponse{Success: false, Titles: []gateway.RelatedTitle{}, Error: kind})
		return
	}
	writeJSON(w, http.StatusOK, similarResponse{Success: true, Titles: res.Titles, FromCache: res.FromCache})
}

// parseListingRequest reads the query string. "genres" is accepted as an
// alias of "genre".
func parseListingRequest(r *http.Request) (catalog.ListingRequest, error) {
	q := r.URL.Query()
	req := catalog.ListingRequest{
		Region: q.Get("region"),
		Types:  catalog.ParseTypes(q.Get("types")),
		Query:  q.Get("query"),
	}

	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			return req, errors.New("page must be an integer")
		}
		req.Page = page
	}

	genre := q.Get("genre")
	if genre == "" {
		genre = q.Get("genres")
	}
	if genre != "" {
		g, err := strconv.Atoi(genre)
		if err != nil {
			return req, errors.New("genre must be an integer")
		}
		req.Genre = g
	}
	return req, nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	return "invalid " + strings.ToLower(fe.Field()) + " (" + fe.Tag() + ")"
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrUpstreamUnavailable), errors.Is(err, catalog.ErrMalformedResponse):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
