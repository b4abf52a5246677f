package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"freestream-gateway/internal/catalog"
	"freestream-gateway/internal/snapshot"
	"freestream-gateway/pkg/logging/logging"
)

// Refresher rebuilds the catalog snapshot.
type Refresher interface {
	Refresh(ctx context.Context, token string) (snapshot.Stats, error)
}

type AdminHandler struct {
	refresher Refresher
}

func NewAdminHandler(r Refresher) *AdminHandler {
	return &AdminHandler{refresher: r}
}

type refreshResponse struct {
	Success        bool   `json:"success"`
	RunID          string `json:"runId"`
	TotalTitles    int    `json:"totalTitles"`
	TotalProviders int    `json:"totalProviders"`
	Pages          int    `json:"pages"`
	DurationMs     int64  `json:"durationMs"`
}

// RefreshSnapshot handles POST /admin/refresh-snapshot. The secret is taken
// from ?secret= or a bearer token. The walk runs synchronously.
func (h *AdminHandler) RefreshSnapshot(w http.ResponseWriter, r *http.Request) {
	logger := logging.L(r.Context())

	token := r.URL.Query().Get("secret")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	stats, err := h.refresher.Refresh(r.Context(), token)
	switch {
	case err == nil:
	case errors.Is(err, snapshot.ErrUnauthorized):
		logger.Warn("snapshot refresh rejected")
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid secret")
		return
	case errors.Is(err, snapshot.ErrRefreshInProgress):
		writeError(w, http.StatusConflict, "refresh_in_progress", err.Error())
		return
	case errors.Is(err, snapshot.ErrEmptyCatalog):
		writeError(w, http.StatusBadGateway, "empty_catalog", err.Error())
		return
	default:
		logger.Error("snapshot refresh failed", zap.Error(err))
		writeError(w, statusFor(err), catalog.Kind(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{
		Success:        true,
		RunID:          stats.RunID,
		TotalTitles:    stats.TotalTitles,
		TotalProviders: stats.TotalProviders,
		Pages:          stats.Pages,
		DurationMs:     stats.Duration.Milliseconds(),
	})
}
