// Package geocode resolves free-text addresses through a Nominatim-compatible
// search endpoint.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rxscout/backend/internal/domain"
	"golang.org/x/time/rate"
)

const (
	providerName     = "nominatim"
	defaultBaseURL   = "https://nominatim.openstreetmap.org"
	defaultUserAgent = "rxscout/1.0"
)

// Client is a throttled Nominatim client. Nominatim's usage policy allows one
// request per second per application.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different Nominatim instance.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithRateLimit sets the maximum requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// NewClient creates a geocoding client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    defaultBaseURL,
		userAgent:  defaultUserAgent,
		limiter:    rate.NewLimiter(rate.Limit(1), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode returns the best match for address. No match is a ProviderError of
// kind ProviderNotFound.
func (c *Client) Geocode(ctx context.Context, address string) (domain.Coordinates, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return domain.Coordinates{}, domain.NewProviderError(providerName, domain.ProviderNotFound, 0, eris.New("geocode: empty address"))
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return domain.Coordinates{}, domain.NewProviderError(providerName, domain.ProviderTimeout, 0, eris.Wrap(err, "geocode: rate limit wait"))
	}

	params := url.Values{
		"q":      {address},
		"format": {"json"},
		"limit":  {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return domain.Coordinates{}, domain.NewProviderError(providerName, domain.ProviderBadResponse, 0, eris.Wrap(err, "geocode: build request"))
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return domain.Coordinates{}, domain.NewProviderError(providerName, domain.ProviderTimeout, 0, eris.Wrap(err, "geocode: request"))
		}
		return domain.Coordinates{}, domain.NewProviderError(providerName, domain.ProviderServerError, 0, eris.Wrap(err, "geocode: request"))
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.Coordinates{}, domain.NewProviderError(providerName, domain.ProviderRateLimited, resp.StatusCode, eris.New("geocode: throttled"))
	case resp.StatusCode >= 500:
		return domain.Coordinates{}, domain.NewProviderError(providerName, domain.ProviderServerError, resp.StatusCode, eris.Errorf("geocode: status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return domain.Coordinates{}, domain.NewProviderError(providerName, domain.ProviderBadResponse, resp.StatusCode, eris.Errorf("geocode: status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Coordinates{}, domain.NewProviderError(providerName, domain.ProviderServerError, resp.StatusCode, eris.Wrap(err, "geocode: read body"))
	}

	var places []place
	if err := json.Unmarshal(body, &places); err != nil {
		return domain.Coordinates{}, domain.NewProviderError(providerName, domain.ProviderBadResponse, resp.StatusCode, eris.Wrap(err, "geocode: parse response"))
	}
	if len(places) == 0 {
		return domain.Coordinates{}, domain.NewProviderError(providerName, domain.ProviderNotFound, resp.StatusCode, eris.Errorf("geocode: no match for %q", address))
	}

	lat, latErr := strconv.ParseFloat(places[0].Lat, 64)
	lon, lonErr := strconv.ParseFloat(places[0].Lon, 64)
	if latErr != nil || lonErr != nil {
		return domain.Coordinates{}, domain.NewProviderError(providerName, domain.ProviderBadResponse, resp.StatusCode, eris.Errorf("geocode: bad coordinates %q,%q", places[0].Lat, places[0].Lon))
	}
	return domain.Coordinates{Lat: lat, Lon: lon}, nil
}
