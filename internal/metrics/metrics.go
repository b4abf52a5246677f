package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CacheResultsTotal counts request cache lookups by namespace and result.
	CacheResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freestream_cache_results_total",
			Help: "Request cache lookups by namespace (list, search, sources, similar, snapshot) and result (hit, miss, error).",
		},
		[]string{"namespace", "result"},
	)

	// ListingSourceTotal counts which tier answered a listing request.
	ListingSourceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freestream_listing_source_total",
			Help: "Listing responses by serving tier (snapshot, cache, upstream, error).",
		},
		[]string{"tier"},
	)

	// UpstreamRequestsTotal counts calls to third-party APIs.
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freestream_upstream_requests_total",
			Help: "Upstream HTTP calls by client and outcome.",
		},
		[]string{"client", "outcome"},
	)

	// SnapshotRefreshSeconds observes full catalog walks.
	SnapshotRefreshSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "freestream_snapshot_refresh_seconds",
			Help:    "Duration of snapshot refresh runs.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"result"},
	)

	// SnapshotTitles is the size of the last published snapshot.
	SnapshotTitles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "freestream_snapshot_titles",
			Help: "Number of titles in the last published catalog snapshot.",
		},
	)

	// GatewayLatencySeconds observes HTTP latency.
	GatewayLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_latency_seconds",
			Help:    "HTTP request latency for the gateway in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"path", "method", "status_code"},
	)
)

// Register is called once in main() to register metrics.
func Register() {
	prometheus.MustRegister(
		CacheResultsTotal,
		ListingSourceTotal,
		UpstreamRequestsTotal,
		SnapshotRefreshSeconds,
		SnapshotTitles,
		GatewayLatencySeconds,
	)
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures gateway latency for each HTTP request. The route
// pattern is used as label so /titles/{id}/sources stays one series; requests
// that match no route are labelled "unmatched".
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		// unrouted paths share one series
		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		GatewayLatencySeconds.
			WithLabelValues(path, r.Method, strconv.Itoa(rec.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
