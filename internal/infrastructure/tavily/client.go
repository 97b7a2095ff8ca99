// Package tavily implements the web-search capability on top of the Tavily
// search API.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rxscout/backend/internal/domain"
	"go.uber.org/zap"
)

const (
	providerName   = "tavily"
	defaultBaseURL = "https://api.tavily.com"
)

// Client handles communication with the Tavily search API. It makes exactly
// one attempt per call; retry and admission control belong to the caller.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	debug      bool
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// NewClient creates a new Tavily API client
func NewClient(apiKey, baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		apiKey:  apiKey,
		baseURL: baseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetDebug enables or disables request logging
func (c *Client) SetDebug(debug bool) {
	c.debug = debug
}

// Search runs one query against POST /search.
func (c *Client) Search(ctx context.Context, req domain.SearchRequest) ([]domain.RawResult, error) {
	body, err := json.Marshal(newSearchBody(req))
	if err != nil {
		return nil, domain.NewProviderError(providerName, domain.ProviderBadResponse, 0, eris.Wrap(err, "tavily: marshal request"))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewProviderError(providerName, domain.ProviderBadResponse, 0, eris.Wrap(err, "tavily: create request"))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("User-Agent", "rxscout/1.0")

	if c.debug {
		zap.L().Debug("tavily search",
			zap.String("query", req.QueryText),
			zap.Strings("domains", req.AllowedDomains),
			zap.String("depth", string(req.Depth)),
		)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(ctx, eris.Wrap(err, "tavily: read response"))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewProviderError(providerName, kindForStatus(resp.StatusCode), resp.StatusCode,
			eris.Errorf("tavily: unexpected status %d: %s", resp.StatusCode, truncate(string(respBody), 200)))
	}

	var parsed searchResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, domain.NewProviderError(providerName, domain.ProviderBadResponse, resp.StatusCode, eris.Wrap(err, "tavily: decode response"))
	}

	results := mapResults(parsed.Results)
	if c.debug {
		zap.L().Debug("tavily results", zap.String("query", req.QueryText), zap.Int("count", len(results)))
	}
	return results, nil
}

func classifyTransportError(ctx context.Context, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return domain.NewProviderError(providerName, domain.ProviderTimeout, 0, err)
	}
	return domain.NewProviderError(providerName, domain.ProviderServerError, 0, err)
}

func kindForStatus(status int) domain.ProviderErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return domain.ProviderRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return domain.ProviderTimeout
	case status >= 500:
		return domain.ProviderServerError
	case status == http.StatusNotFound:
		return domain.ProviderNotFound
	default:
		return domain.ProviderBadResponse
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
