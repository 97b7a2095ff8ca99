package config

import (
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rxscout/backend/internal/domain"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig
	Log         LogConfig
	Tavily      TavilyConfig
	Geocoder    GeocoderConfig
	Cache       CacheConfig
	RateLimit   RateLimitConfig
	Search      SearchConfig
	Extraction  ExtractionConfig
	Aggregation AggregationConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig selects the zap encoder and level.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

// TavilyConfig holds search provider configuration
type TavilyConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxResults int           `mapstructure:"max_results"`
}

// GeocoderConfig holds Nominatim configuration
type GeocoderConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	UserAgent         string        `mapstructure:"user_agent"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	CacheSize         int           `mapstructure:"cache_size"`
}

// CacheConfig holds per-category TTLs for the result cache
type CacheConfig struct {
	PharmacyTTL   time.Duration `mapstructure:"pharmacy_ttl"`
	PriceTTL      time.Duration `mapstructure:"price_ttl"`
	InfoTTL       time.Duration `mapstructure:"info_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// BucketConfig is one token bucket.
type BucketConfig struct {
	Capacity        int     `mapstructure:"capacity"`
	RefillPerSecond float64 `mapstructure:"refill_per_second"`
}

// RateLimitConfig holds the outbound token buckets
type RateLimitConfig struct {
	Buckets       map[string]BucketConfig `mapstructure:"buckets"`
	Default       BucketConfig            `mapstructure:"default"`
	IdleEviction  time.Duration           `mapstructure:"idle_eviction"`
	SweepInterval time.Duration           `mapstructure:"sweep_interval"`
}

// SearchConfig controls query fan-out
type SearchConfig struct {
	AllowedDomains []string      `mapstructure:"allowed_domains"`
	InfoDomains    []string      `mapstructure:"info_domains"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	CallTimeout    time.Duration `mapstructure:"call_timeout"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
}

// ExtractionConfig is the plausible price band, inclusive
type ExtractionConfig struct {
	MinPrice string `mapstructure:"min_price"`
	MaxPrice string `mapstructure:"max_price"`
}

// AggregationConfig controls classification and comparison
type AggregationConfig struct {
	MinSamplesPerType int      `mapstructure:"min_samples_per_type"`
	DomainTypes       []string `mapstructure:"domain_types"` // "goodrx.com=discount"
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, eris.Wrap(err, "error reading .env file")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/rxscout/")

	v.SetEnvPrefix("RXSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional; env vars and defaults cover everything
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "error reading config file")
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, eris.Wrap(err, "unable to decode config")
	}

	if err := validate(&config); err != nil {
		return nil, eris.Wrap(err, "invalid configuration")
	}

	return &config, nil
}

// loadEnvFile reads ./.env when present. Variables already set in the
// environment win.
func loadEnvFile() error {
	if _, err := os.Stat(".env"); os.IsNotExist(err) {
		return nil
	}
	return gotenv.Load(".env")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Tavily defaults
	v.SetDefault("tavily.api_key", "")
	v.SetDefault("tavily.base_url", "https://api.tavily.com")
	v.SetDefault("tavily.timeout", "15s")
	v.SetDefault("tavily.max_results", 8)

	// Geocoder defaults
	v.SetDefault("geocoder.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocoder.user_agent", "rxscout/1.0")
	v.SetDefault("geocoder.timeout", "5s")
	v.SetDefault("geocoder.requests_per_second", 1.0)
	v.SetDefault("geocoder.cache_size", 1024)

	// Cache defaults
	v.SetDefault("cache.pharmacy_ttl", "30m")
	v.SetDefault("cache.price_ttl", "1h")
	v.SetDefault("cache.info_ttl", "24h")
	v.SetDefault("cache.sweep_interval", "5m")

	// Rate limit defaults
	v.SetDefault("ratelimit.buckets.search.capacity", 10)
	v.SetDefault("ratelimit.buckets.search.refill_per_second", 5.0)
	v.SetDefault("ratelimit.buckets.geocode.capacity", 5)
	v.SetDefault("ratelimit.buckets.geocode.refill_per_second", 1.0)
	v.SetDefault("ratelimit.default.capacity", 20)
	v.SetDefault("ratelimit.default.refill_per_second", 10.0)
	v.SetDefault("ratelimit.idle_eviction", "10m")
	v.SetDefault("ratelimit.sweep_interval", "1m")

	// Search defaults; empty lists fall back to the built-in allowlists
	v.SetDefault("search.allowed_domains", []string{})
	v.SetDefault("search.info_domains", []string{})
	v.SetDefault("search.max_concurrency", 3)
	v.SetDefault("search.call_timeout", "10s")
	v.SetDefault("search.retry_backoff", "500ms")

	v.SetDefault("extraction.min_price", "0.50")
	v.SetDefault("extraction.max_price", "500.00")

	v.SetDefault("aggregation.min_samples_per_type", 1)
	v.SetDefault("aggregation.domain_types", []string{})
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Tavily.APIKey == "" {
		return eris.New("Tavily API key is required (set RXSCOUT_TAVILY_API_KEY)")
	}

	if config.Log.Format != "" && config.Log.Format != "json" && config.Log.Format != "console" {
		return eris.Errorf("log format must be 'json' or 'console', got: %s", config.Log.Format)
	}

	minPrice, maxPrice, err := config.Extraction.Band()
	if err != nil {
		return err
	}
	if !minPrice.IsPositive() || minPrice.GreaterThan(maxPrice) {
		return eris.Errorf("price band %s..%s is invalid", minPrice, maxPrice)
	}

	ttls := map[string]time.Duration{
		"cache.pharmacy_ttl": config.Cache.PharmacyTTL,
		"cache.price_ttl":    config.Cache.PriceTTL,
		"cache.info_ttl":     config.Cache.InfoTTL,
	}
	for name, ttl := range ttls {
		if ttl <= 0 {
			return eris.Errorf("%s must be positive, got: %s", name, ttl)
		}
	}

	for name, b := range config.RateLimit.Buckets {
		if b.Capacity <= 0 || b.RefillPerSecond <= 0 {
			return eris.Errorf("ratelimit bucket %q needs a positive capacity and refill rate", name)
		}
	}
	if config.RateLimit.Default.Capacity <= 0 || config.RateLimit.Default.RefillPerSecond <= 0 {
		return eris.New("ratelimit default bucket needs a positive capacity and refill rate")
	}

	if config.Geocoder.CacheSize <= 0 {
		return eris.Errorf("geocoder cache size must be positive, got: %d", config.Geocoder.CacheSize)
	}
	if config.Search.MaxConcurrency <= 0 {
		return eris.Errorf("search max concurrency must be positive, got: %d", config.Search.MaxConcurrency)
	}

	if _, err := config.Aggregation.DomainTypeTable(); err != nil {
		return err
	}

	return nil
}

// Band parses the configured price band.
func (e ExtractionConfig) Band() (decimal.Decimal, decimal.Decimal, error) {
	minPrice, err := decimal.NewFromString(e.MinPrice)
	if err != nil {
		return decimal.Zero, decimal.Zero, eris.Wrapf(err, "extraction.min_price %q", e.MinPrice)
	}
	maxPrice, err := decimal.NewFromString(e.MaxPrice)
	if err != nil {
		return decimal.Zero, decimal.Zero, eris.Wrapf(err, "extraction.max_price %q", e.MaxPrice)
	}
	return minPrice, maxPrice, nil
}

// DomainTypeTable parses the domain=type overrides. The result only holds the
// overrides; callers merge it over their defaults.
func (a AggregationConfig) DomainTypeTable() (map[string]domain.PharmacyType, error) {
	table := make(map[string]domain.PharmacyType, len(a.DomainTypes))
	for _, entry := range a.DomainTypes {
		d, t, ok := strings.Cut(entry, "=")
		d = strings.ToLower(strings.TrimSpace(d))
		if !ok || d == "" {
			return nil, eris.Errorf("aggregation.domain_types entry %q must look like domain=type", entry)
		}
		pt, known := domain.ParsePharmacyType(strings.TrimSpace(t))
		if !known || pt == domain.PharmacyUnknown {
			return nil, eris.Errorf("aggregation.domain_types entry %q has unknown pharmacy type", entry)
		}
		table[d] = pt
	}
	return table, nil
}

// InitLogger builds the zap logger described by cfg and installs it as the
// global logger. The returned func flushes it.
func InitLogger(cfg LogConfig) (*zap.Logger, func(), error) {
	level := zap.NewAtomicLevel()
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, nil, eris.Wrapf(err, "invalid log level %q", cfg.Level)
		}
	}

	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.Level = level

	logger, err := zc.Build()
	if err != nil {
		return nil, nil, eris.Wrap(err, "failed to build logger")
	}
	undo := zap.ReplaceGlobals(logger)
	return logger, func() {
		_ = logger.Sync()
		undo()
	}, nil
}
