// Package app wires the configured infrastructure into a PharmacyService.
package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rxscout/backend/config"
	"github.com/rxscout/backend/internal/domain"
	"github.com/rxscout/backend/internal/infrastructure/cache"
	"github.com/rxscout/backend/internal/infrastructure/geocode"
	"github.com/rxscout/backend/internal/infrastructure/janitor"
	"github.com/rxscout/backend/internal/infrastructure/ratelimit"
	"github.com/rxscout/backend/internal/infrastructure/tavily"
	"github.com/rxscout/backend/internal/usecase"
)

// Janitor job names.
const (
	JobCacheSweep   = "cache-sweep"
	JobLimiterSweep = "ratelimit-sweep"
)

// Env holds the initialized pipeline and the resources behind it. Callers
// should defer env.Close().
type Env struct {
	Service *usecase.PharmacyService
	Cache   *cache.MemoryCache
	Limiter *ratelimit.Limiter
	Geo     *usecase.Geolocator
	Janitor *janitor.Janitor

	searchConfigured bool
}

// Status is the operational snapshot served by the status endpoint.
type Status struct {
	SearchConfigured    bool                    `json:"search_configured"`
	Cache               cache.Stats             `json:"cache"`
	RateLimits          []ratelimit.BucketUsage `json:"rate_limits"`
	GeocodeCacheEntries int                     `json:"geocode_cache_entries"`
	Jobs                map[string]time.Time    `json:"jobs"`
}

// Options overrides the network-facing pieces, mainly for tests.
type Options struct {
	Provider domain.SearchProvider
	Geocoder domain.Geocoder
}

// New builds the pipeline from cfg. The janitor is registered but not
// started; call Start.
func New(cfg *config.Config, opts Options) (*Env, error) {
	minPrice, maxPrice, err := cfg.Extraction.Band()
	if err != nil {
		return nil, err
	}
	overrides, err := cfg.Aggregation.DomainTypeTable()
	if err != nil {
		return nil, err
	}
	domainTypes := usecase.DefaultDomainTypes()
	for d, t := range overrides {
		domainTypes[d] = t
	}

	memoryCache := cache.NewMemoryCache(cache.WithDefaultTTL(cfg.Cache.PharmacyTTL))
	limiter := ratelimit.New(limiterConfig(cfg.RateLimit))

	provider := opts.Provider
	if provider == nil {
		tc := tavily.NewClient(cfg.Tavily.APIKey, cfg.Tavily.BaseURL, tavily.WithTimeout(cfg.Tavily.Timeout))
		tc.SetDebug(cfg.Server.Environment == "development")
		provider = tc
	}
	geocoder := opts.Geocoder
	if geocoder == nil {
		geocoder = geocode.NewClient(
			geocode.WithBaseURL(cfg.Geocoder.BaseURL),
			geocode.WithUserAgent(cfg.Geocoder.UserAgent),
			geocode.WithTimeout(cfg.Geocoder.Timeout),
			geocode.WithRateLimit(cfg.Geocoder.RequestsPerSecond),
		)
	}

	geo := usecase.NewGeolocator(geocoder, limiter, usecase.GeolocatorConfig{
		CacheSize: cfg.Geocoder.CacheSize,
		Timeout:   cfg.Geocoder.Timeout,
	})
	extractor := usecase.NewExtractor(usecase.ExtractorConfig{
		MinPrice:    minPrice,
		MaxPrice:    maxPrice,
		DomainTypes: domainTypes,
	})
	aggregator := usecase.NewAggregator(geo, usecase.AggregatorConfig{
		DomainTypes:       domainTypes,
		MinSamplesPerType: cfg.Aggregation.MinSamplesPerType,
	})
	orchestrator := usecase.NewSearchOrchestrator(provider, limiter, usecase.OrchestratorConfig{
		AllowedDomains: cfg.Search.AllowedDomains,
		InfoDomains:    cfg.Search.InfoDomains,
		DomainTypes:    domainTypes,
		MaxConcurrency: cfg.Search.MaxConcurrency,
		MaxResults:     cfg.Tavily.MaxResults,
		CallTimeout:    cfg.Search.CallTimeout,
		RetryBackoff:   cfg.Search.RetryBackoff,
	})
	service := usecase.NewPharmacyService(memoryCache, orchestrator, extractor, aggregator, usecase.PharmacyServiceConfig{
		PharmacyTTL: cfg.Cache.PharmacyTTL,
		PriceTTL:    cfg.Cache.PriceTTL,
		InfoTTL:     cfg.Cache.InfoTTL,
	})

	j := janitor.New()
	j.Every(JobCacheSweep, cfg.Cache.SweepInterval, func() { memoryCache.Sweep() })
	j.Every(JobLimiterSweep, cfg.RateLimit.SweepInterval, func() { limiter.Sweep() })

	zap.L().Info("pipeline initialized",
		zap.String("search_base_url", cfg.Tavily.BaseURL),
		zap.String("geocoder_base_url", cfg.Geocoder.BaseURL),
		zap.String("price_band", minPrice.StringFixed(2)+".."+maxPrice.StringFixed(2)),
		zap.Int("max_concurrency", cfg.Search.MaxConcurrency),
	)

	return &Env{
		Service: service,
		Cache:   memoryCache,
		Limiter: limiter,
		Geo:     geo,
		Janitor: j,

		searchConfigured: opts.Provider != nil || cfg.Tavily.APIKey != "",
	}, nil
}

// Start begins the periodic sweeps.
func (e *Env) Start() {
	e.Janitor.Start()
}

// Close stops the sweeps, waiting for a running one up to ctx.
func (e *Env) Close(ctx context.Context) {
	e.Janitor.Stop(ctx)
}

// Status reports cache counters, live rate-limit buckets, the geocode cache
// size and the next run of each housekeeping job.
func (e *Env) Status() Status {
	return Status{
		SearchConfigured:    e.searchConfigured,
		Cache:               e.Cache.Stats(),
		RateLimits:          e.Limiter.Usage(),
		GeocodeCacheEntries: e.Geo.Len(),
		Jobs:                e.Janitor.Jobs(),
	}
}

// RunJob runs the named housekeeping job now. Returns false for unknown names.
func (e *Env) RunJob(name string) bool {
	return e.Janitor.RunNow(name)
}

func limiterConfig(rc config.RateLimitConfig) ratelimit.Config {
	buckets := ratelimit.DefaultBuckets()
	for k, b := range rc.Buckets {
		buckets[k] = ratelimit.Bucket{Capacity: b.Capacity, RefillPerSecond: b.RefillPerSecond}
	}
	def := ratelimit.DefaultBucket
	if rc.Default.Capacity > 0 {
		def = ratelimit.Bucket{Capacity: rc.Default.Capacity, RefillPerSecond: rc.Default.RefillPerSecond}
	}
	return ratelimit.Config{
		Buckets:      buckets,
		Default:      def,
		IdleEviction: rc.IdleEviction,
	}
}
