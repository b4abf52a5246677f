package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"freestream-gateway/internal/catalog"
	"freestream-gateway/internal/metrics"
)

// maxBodySize bounds what we are willing to decode from a provider.
const maxBodySize = 32 << 20

// GetJSON performs a retried GET and decodes a 2xx JSON body into dst.
// Transport failures and non-2xx answers wrap catalog.ErrUpstreamUnavailable
// (404 wraps catalog.ErrNotFound); undecodable bodies wrap
// catalog.ErrMalformedResponse.
func GetJSON(
	ctx context.Context,
	httpClient *http.Client,
	retrier Retrier,
	clientName string,
	url string,
	header http.Header,
	dst any,
) error {
	doOnce := func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build HTTP request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		return httpClient.Do(req)
	}

	resp, err := retrier.Do(ctx, doOnce)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(clientName, "error").Inc()
		return fmt.Errorf("%s: %w: %v", clientName, catalog.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.UpstreamRequestsTotal.WithLabelValues(clientName, "status_"+statusClass(resp.StatusCode)).Inc()
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%s: %w", clientName, catalog.ErrNotFound)
		}
		return fmt.Errorf("%s: %w: status %d: %s",
			clientName, catalog.ErrUpstreamUnavailable, resp.StatusCode, Truncate(string(body), 200))
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(dst); err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(clientName, "malformed").Inc()
		return fmt.Errorf("%s: %w: %v", clientName, catalog.ErrMalformedResponse, err)
	}

	metrics.UpstreamRequestsTotal.WithLabelValues(clientName, "ok").Inc()
	return nil
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

// Truncate limits string length for logging
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
