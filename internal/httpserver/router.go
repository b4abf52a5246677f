package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"freestream-gateway/internal/handlers"
	"freestream-gateway/internal/metrics"
	"freestream-gateway/internal/middleware"
)

type RouterConfig struct {
	RequestTimeout time.Duration
	// AdminRatePerMinute limits refresh calls per client IP.
	AdminRatePerMinute int
}

func SetupRouter(
	r *chi.Mux,
	baseLogger *zap.Logger,
	cfg RouterConfig,
	listings *handlers.ListingsHandler,
	admin *handlers.AdminHandler,
) {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())

	// catalog reads
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
		r.Get("/listings", listings.Listings)
		r.Get("/providers", listings.Providers)
		r.Get("/titles/{id}/sources", listings.Sources)
		r.Get("/similar/{type}/{tmdbId}", listings.Similar)
	})

	// the snapshot walk takes minutes, so no request timeout here
	limiter := middleware.NewIPRateLimiter(cfg.AdminRatePerMinute, 2)
	r.Route("/admin", func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Use(middleware.MaxBodySize(4 * 1024))
		r.Post("/refresh-snapshot", admin.RefreshSnapshot)
	})

	// health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())
}
