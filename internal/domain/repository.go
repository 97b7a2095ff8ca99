package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// SearchProvider is the opaque web-search capability.
type SearchProvider interface {
	Search(ctx context.Context, req SearchRequest) ([]RawResult, error)
}

// Geocoder resolves free-text addresses. A miss is reported as a ProviderError
// of kind ProviderNotFound.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Coordinates, error)
}

// RateLimiter admits or denies calls per logical endpoint.
type RateLimiter interface {
	Acquire(endpointKey string, cost int) bool
}
