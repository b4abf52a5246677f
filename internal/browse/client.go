package browse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"freestream-gateway/internal/catalog"
	"freestream-gateway/internal/upstream"
)

// GatewayClient talks to the gateway's HTTP surface.
type GatewayClient struct {
	baseURL    string
	httpClient *http.Client
	retrier    upstream.Retrier
}

func NewGatewayClient(baseURL string, timeout time.Duration, logger *zap.Logger) *GatewayClient {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GatewayClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		retrier: upstream.Retrier{
			MaxRetries:  1,
			BaseBackoff: 200 * time.Millisecond,
			Logger:      logger.Named("gateway_client"),
		},
	}
}

type listingEnvelope struct {
	Success    bool            `json:"success"`
	Titles     []catalog.Title `json:"titles"`
	TotalPages int             `json:"totalPages"`
	Message    string          `json:"message"`
	FromCache  bool            `json:"fromCache"`
	Error      string          `json:"error"`
}

// Fetch implements Fetcher against GET /listings.
func (c *GatewayClient) Fetch(ctx context.Context, req catalog.ListingRequest) (*Page, error) {
	req = req.Normalize()
	q := url.Values{}
	q.Set("region", req.Region)
	q.Set("types", req.TypesCSV())
	q.Set("page", strconv.Itoa(req.Page))
	if req.Query != "" {
		q.Set("query", req.Query)
	} else if req.Genre > 0 {
		q.Set("genre", strconv.Itoa(req.Genre))
	}

	var env listingEnvelope
	if err := c.get(ctx, "/listings?"+q.Encode(), &env); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, fmt.Errorf("gateway: %w: %s", catalog.ErrUpstreamUnavailable, env.Error)
	}
	if env.Titles == nil {
		env.Titles = []catalog.Title{}
	}
	return &Page{
		Titles:     env.Titles,
		TotalPages: env.TotalPages,
		Message:    env.Message,
		FromCache:  env.FromCache,
	}, nil
}

// Providers fetches the provider directory.
func (c *GatewayClient) Providers(ctx context.Context) ([]catalog.Provider, error) {
	var env struct {
		Success   bool               `json:"success"`
		Providers []catalog.Provider `json:"providers"`
	}
	if err := c.get(ctx, "/providers", &env); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, errors.New("gateway: providers unavailable")
	}
	return env.Providers, nil
}

// Sources fetches the free sources of a title.
func (c *GatewayClient) Sources(ctx context.Context, titleID int64, region string) ([]catalog.Source, error) {
	var env struct {
		Success     bool             `json:"success"`
		FreeSources []catalog.Source `json:"freeSources"`
	}
	path := fmt.Sprintf("/titles/%d/sources?region=%s", titleID, url.QueryEscape(region))
	if err := c.get(ctx, path, &env); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, errors.New("gateway: sources unavailable")
	}
	return env.FreeSources, nil
}

func (c *GatewayClient) get(ctx context.Context, path string, dst any) error {
	return upstream.GetJSON(ctx, c.httpClient, c.retrier, "gateway", c.baseURL+path, nil, dst)
}
