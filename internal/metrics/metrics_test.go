package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/titles/{id}/sources", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, path := range []string{"/titles/1/sources", "/titles/2/sources", "/wp-login.php", "/.env"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if !GatewayLatencySeconds.DeleteLabelValues("/titles/{id}/sources", http.MethodGet, "200") {
		t.Fatalf("routed requests not labelled by pattern")
	}
	if !GatewayLatencySeconds.DeleteLabelValues("unmatched", http.MethodGet, "404") {
		t.Fatalf("unrouted requests not labelled unmatched")
	}
	for _, raw := range []string{"/wp-login.php", "/.env", "/titles/1/sources"} {
		if GatewayLatencySeconds.DeleteLabelValues(raw, http.MethodGet, "404") ||
			GatewayLatencySeconds.DeleteLabelValues(raw, http.MethodGet, "200") {
			t.Fatalf("raw path %q leaked into labels", raw)
		}
	}
}
