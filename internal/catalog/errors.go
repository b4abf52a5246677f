package catalog

import (
	"context"
	"errors"
)

var (
	// ErrUpstreamUnavailable covers network errors and non-2xx answers from
	// the catalog or metadata provider.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrMalformedResponse is returned when an upstream body cannot be decoded.
	ErrMalformedResponse = errors.New("malformed upstream response")

	// ErrNotFound is returned when the provider has no record for an id.
	ErrNotFound = errors.New("not found")
)

// Kind returns a short machine-readable name for err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_upstream_response"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "gateway_timeout"
	default:
		return "internal"
	}
}
