// Package ratelimit keeps one token bucket per logical endpoint in front of
// outbound provider calls.
package ratelimit

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Endpoint keys used by the pipeline.
const (
	EndpointSearch  = "search"
	EndpointGeocode = "geocode"
)

// Bucket configures a single endpoint's bucket.
type Bucket struct {
	Capacity        int     `mapstructure:"capacity"`
	RefillPerSecond float64 `mapstructure:"refill_per_second"`
}

// DefaultBuckets mirrors the per-tool limits the service has always used.
func DefaultBuckets() map[string]Bucket {
	return map[string]Bucket{
		EndpointSearch:  {Capacity: 10, RefillPerSecond: 5},
		EndpointGeocode: {Capacity: 5, RefillPerSecond: 1},
	}
}

// DefaultBucket applies to keys without their own entry.
var DefaultBucket = Bucket{Capacity: 20, RefillPerSecond: 10}

// Config holds limiter settings.
type Config struct {
	Buckets      map[string]Bucket
	Default      Bucket
	IdleEviction time.Duration
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter admits or denies calls per endpoint key. Each bucket is backed by a
// rate.Limiter, whose own mutex makes refill-check-consume atomic; the map and
// lastSeen bookkeeping sit behind mu.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limits  map[string]Bucket
	def     Bucket
	idle    time.Duration
	now     func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a Limiter.
func New(cfg Config, opts ...Option) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		limits:  make(map[string]Bucket, len(cfg.Buckets)),
		def:     cfg.Default,
		idle:    cfg.IdleEviction,
		now:     time.Now,
	}
	for k, b := range cfg.Buckets {
		l.limits[k] = b
	}
	if l.def.Capacity <= 0 {
		l.def = DefaultBucket
	}
	if l.idle <= 0 {
		l.idle = 10 * time.Minute
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire takes cost tokens from the endpoint's bucket if it holds enough.
// A denied call leaves the bucket untouched.
func (l *Limiter) Acquire(endpointKey string, cost int) bool {
	return l.AcquireAt(endpointKey, cost, l.now())
}

// AcquireAt is Acquire with an explicit timestamp.
func (l *Limiter) AcquireAt(endpointKey string, cost int, at time.Time) bool {
	if cost <= 0 {
		cost = 1
	}

	l.mu.Lock()
	b := l.bucketLocked(endpointKey, at)
	b.lastSeen = at
	l.mu.Unlock()

	ok := b.limiter.AllowN(at, cost)
	if !ok {
		zap.L().Debug("rate limit denied",
			zap.String("endpoint", endpointKey),
			zap.Int("cost", cost),
			zap.Float64("tokens", b.limiter.TokensAt(at)),
		)
	}
	return ok
}

// Sweep drops buckets untouched for longer than the idle window and returns
// how many were removed. A dropped bucket comes back full on next use.
func (l *Limiter) Sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idle {
			delete(l.buckets, key)
			removed++
		}
	}
	if removed > 0 {
		zap.L().Debug("rate limit buckets evicted", zap.Int("removed", removed), zap.Int("remaining", len(l.buckets)))
	}
	return removed
}

// BucketUsage is a point-in-time view of one live bucket.
type BucketUsage struct {
	Endpoint string    `json:"endpoint"`
	Tokens   float64   `json:"tokens"`
	Capacity int       `json:"capacity"`
	LastSeen time.Time `json:"last_seen"`
}

// Usage reports every live bucket, ordered by endpoint key. Reading usage
// never creates a bucket.
func (l *Limiter) Usage() []BucketUsage {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]BucketUsage, 0, len(l.buckets))
	for key, b := range l.buckets {
		out = append(out, BucketUsage{
			Endpoint: key,
			Tokens:   b.limiter.TokensAt(now),
			Capacity: b.limiter.Burst(),
			LastSeen: b.lastSeen,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}

func (l *Limiter) bucketLocked(key string, at time.Time) *bucket {
	if b, ok := l.buckets[key]; ok {
		return b
	}
	cfg, ok := l.limits[key]
	if !ok {
		cfg = l.def
	}
	b := &bucket{
		limiter:  rate.NewLimiter(rate.Limit(cfg.RefillPerSecond), cfg.Capacity),
		lastSeen: at,
	}
	l.buckets[key] = b
	return b
}
