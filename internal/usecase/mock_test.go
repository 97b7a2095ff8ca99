package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/rxscout/backend/internal/domain"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// --- Search provider mock ---

type mockSearchProvider struct {
	mock.Mock
}

func (m *mockSearchProvider) Search(ctx context.Context, req domain.SearchRequest) ([]domain.RawResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RawResult), args.Error(1)
}

// queryIs matches a SearchRequest by its query text.
func queryIs(text string) interface{} {
	return mock.MatchedBy(func(r domain.SearchRequest) bool { return r.QueryText == text })
}

// --- Limiter stub ---

// stubLimiter admits the first n acquisitions.
type stubLimiter struct {
	remaining atomic.Int64
	calls     atomic.Int64
}

func newStubLimiter(n int64) *stubLimiter {
	l := &stubLimiter{}
	l.remaining.Store(n)
	return l
}

func (l *stubLimiter) Acquire(_ string, cost int) bool {
	l.calls.Add(1)
	for {
		cur := l.remaining.Load()
		if cur < int64(cost) {
			return false
		}
		if l.remaining.CompareAndSwap(cur, cur-int64(cost)) {
			return true
		}
	}
}

// --- Geocoder stub ---

type stubGeocoder struct {
	mu     sync.Mutex
	points map[string]domain.Coordinates
	calls  map[string]int
}

func newStubGeocoder(points map[string]domain.Coordinates) *stubGeocoder {
	return &stubGeocoder{points: points, calls: make(map[string]int)}
}

func (g *stubGeocoder) Geocode(_ context.Context, address string) (domain.Coordinates, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[address]++
	if c, ok := g.points[address]; ok {
		return c, nil
	}
	return domain.Coordinates{}, domain.NewProviderError("stub", domain.ProviderNotFound, 0, nil)
}

func (g *stubGeocoder) callCount(address string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[address]
}

// --- Cache stub ---

type memoryCache struct {
	mu   sync.Mutex
	data map[string]interface{}
	sets int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string]interface{})}
}

func (c *memoryCache) Get(_ context.Context, key string) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.data[key]; ok {
		return v, nil
	}
	return nil, domain.ErrCacheMiss
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.data[key] = value
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memoryCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok, nil
}
