package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rxscout/backend/internal/domain"
)

func TestHaversine(t *testing.T) {
	sanDiego := domain.Coordinates{Lat: 32.7157, Lon: -117.1611}
	losAngeles := domain.Coordinates{Lat: 34.0522, Lon: -118.2437}

	assert.InDelta(t, 111.4, Haversine(sanDiego, losAngeles), 1.0)
	assert.InDelta(t, Haversine(sanDiego, losAngeles), Haversine(losAngeles, sanDiego), 1e-9)
	assert.Zero(t, Haversine(sanDiego, sanDiego))
}

func TestGeolocator_CachesPerAddress(t *testing.T) {
	geo := newStubGeocoder(map[string]domain.Coordinates{
		"123 Main St, San Diego, CA": {Lat: 32.71, Lon: -117.16},
	})
	g := NewGeolocator(geo, nil, GeolocatorConfig{})
	ctx := context.Background()

	c, ok := g.Locate(ctx, "123 Main St, San Diego, CA")
	assert.True(t, ok)
	assert.InDelta(t, 32.71, c.Lat, 1e-9)

	_, ok = g.Locate(ctx, "123  main st, san diego, ca")
	assert.True(t, ok)
	assert.Equal(t, 1, geo.callCount("123 Main St, San Diego, CA"))

	_, ok = g.Locate(ctx, "nowhere")
	assert.False(t, ok)
	_, ok = g.Locate(ctx, "nowhere")
	assert.False(t, ok)
	assert.Equal(t, 1, geo.callCount("nowhere"), "misses are cached")
}

func TestGeolocator_Bounded(t *testing.T) {
	geo := newStubGeocoder(nil)
	g := NewGeolocator(geo, nil, GeolocatorConfig{CacheSize: 3})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		g.Locate(ctx, fmt.Sprintf("addr %d", i))
	}
	assert.Equal(t, 3, g.Len())

	g.Locate(ctx, "addr 0")
	assert.Equal(t, 2, geo.callCount("addr 0"), "oldest entry was evicted")
	g.Locate(ctx, "addr 4")
	assert.Equal(t, 1, geo.callCount("addr 4"))
}

func TestGeolocator_NilGeocoder(t *testing.T) {
	g := NewGeolocator(nil, nil, GeolocatorConfig{})
	_, ok := g.Locate(context.Background(), "123 Main St")
	assert.False(t, ok)
}

func TestGeolocator_LimiterDenialNotCached(t *testing.T) {
	geo := newStubGeocoder(map[string]domain.Coordinates{"1 Elm St": {Lat: 1, Lon: 2}})
	limiter := newStubLimiter(1)
	g := NewGeolocator(geo, limiter, GeolocatorConfig{})
	ctx := context.Background()

	_, ok := g.Locate(ctx, "9 Oak Ave")
	assert.False(t, ok)
	_, ok = g.Locate(ctx, "1 Elm St")
	assert.False(t, ok, "denied before reaching the provider")
	assert.Equal(t, 0, geo.callCount("1 Elm St"))
	assert.Equal(t, 1, g.Len())
}
