package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rxscout/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeocode_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "San Diego, CA", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "rxscout-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"lat":"32.7157","lon":"-117.1611","display_name":"San Diego"}]`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithUserAgent("rxscout-test"), WithRateLimit(100))
	got, err := c.Geocode(context.Background(), "San Diego, CA")

	require.NoError(t, err)
	assert.InDelta(t, 32.7157, got.Lat, 1e-9)
	assert.InDelta(t, -117.1611, got.Lon, 1e-9)
}

func TestGeocode_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind domain.ProviderErrorKind
	}{
		{"no match", http.StatusOK, `[]`, domain.ProviderNotFound},
		{"bad json", http.StatusOK, `{`, domain.ProviderBadResponse},
		{"bad coordinates", http.StatusOK, `[{"lat":"north","lon":"-1"}]`, domain.ProviderBadResponse},
		{"throttled", http.StatusTooManyRequests, ``, domain.ProviderRateLimited},
		{"server error", http.StatusServiceUnavailable, ``, domain.ProviderServerError},
		{"forbidden", http.StatusForbidden, ``, domain.ProviderBadResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(WithBaseURL(srv.URL), WithRateLimit(100))
			_, err := c.Geocode(context.Background(), "Nowhere")

			var perr *domain.ProviderError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.wantKind, perr.Kind)
		})
	}
}

func TestGeocode_EmptyAddress(t *testing.T) {
	c := NewClient(WithBaseURL("http://127.0.0.1:0"))
	_, err := c.Geocode(context.Background(), "  ")

	var perr *domain.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, domain.ProviderNotFound, perr.Kind)
}

func TestGeocode_CancelledWhileThrottled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"lat":"1","lon":"2"}]`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(0.001))
	_, err := c.Geocode(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Geocode(ctx, "second")
	assert.ErrorIs(t, err, domain.ErrProviderFailure)
}
