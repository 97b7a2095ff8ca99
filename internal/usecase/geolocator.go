package usecase

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rxscout/backend/internal/domain"
	"go.uber.org/zap"
)

// EarthRadiusMiles is the mean Earth radius used for great-circle distances.
const EarthRadiusMiles = 3958.8

// GeocodeEndpoint is the limiter key guarding the geocoding provider.
const GeocodeEndpoint = "geocode"

// GeolocatorConfig holds configuration for the geocoder adapter
type GeolocatorConfig struct {
	CacheSize int
	Timeout   time.Duration
}

type geoEntry struct {
	coords domain.Coordinates
	found  bool
}

// Geolocator wraps a Geocoder with a bounded per-address cache. Misses are
// cached too so an unresolvable address is asked about once.
type Geolocator struct {
	geocoder domain.Geocoder
	limiter  domain.RateLimiter
	timeout  time.Duration
	capacity int

	mu    sync.Mutex
	cache map[string]geoEntry
	order []string
}

// NewGeolocator creates a geolocator. A nil geocoder resolves nothing; a nil
// limiter admits every call.
func NewGeolocator(geocoder domain.Geocoder, limiter domain.RateLimiter, cfg GeolocatorConfig) *Geolocator {
	if limiter == nil {
		limiter = admitAll{}
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Geolocator{
		geocoder: geocoder,
		limiter:  limiter,
		timeout:  cfg.Timeout,
		capacity: cfg.CacheSize,
		cache:    make(map[string]geoEntry),
	}
}

// Locate resolves address. The bool is false when the address could not be
// resolved for any reason.
func (g *Geolocator) Locate(ctx context.Context, address string) (domain.Coordinates, bool) {
	key := strings.ToLower(strings.Join(strings.Fields(address), " "))
	if key == "" || g.geocoder == nil {
		return domain.Coordinates{}, false
	}

	g.mu.Lock()
	if e, ok := g.cache[key]; ok {
		g.mu.Unlock()
		return e.coords, e.found
	}
	g.mu.Unlock()

	if !g.limiter.Acquire(GeocodeEndpoint, 1) {
		zap.L().Debug("geocode rate limited", zap.String("address", address))
		return domain.Coordinates{}, false
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	coords, err := g.geocoder.Geocode(callCtx, address)
	cancel()

	entry := geoEntry{coords: coords, found: err == nil}
	if err != nil {
		zap.L().Debug("geocode failed", zap.String("address", address), zap.Error(err))
		if ctx.Err() != nil || !cacheableGeocodeError(err) {
			return domain.Coordinates{}, false
		}
	}
	g.store(key, entry)
	return entry.coords, entry.found
}

// Only definitive misses are remembered; transient failures are retried on
// the next request.
func cacheableGeocodeError(err error) bool {
	var perr *domain.ProviderError
	return errors.As(err, &perr) && perr.Kind == domain.ProviderNotFound
}

func (g *Geolocator) store(key string, e geoEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.cache[key]; ok {
		return
	}
	for len(g.order) >= g.capacity {
		oldest := g.order[0]
		g.order = g.order[1:]
		delete(g.cache, oldest)
	}
	g.cache[key] = e
	g.order = append(g.order, key)
}

// Len returns the number of cached addresses.
func (g *Geolocator) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cache)
}

// Haversine returns the great-circle distance between a and b in miles.
func Haversine(a, b domain.Coordinates) float64 {
	const rad = math.Pi / 180
	dLat := (b.Lat - a.Lat) * rad
	dLon := (b.Lon - a.Lon) * rad
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*rad)*math.Cos(b.Lat*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusMiles * math.Asin(math.Min(1, math.Sqrt(h)))
}
