package config

import (
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rxscout/backend/internal/domain"
)

func TestLoad(t *testing.T) {
	t.Run("loads with defaults when only the API key is set", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("RXSCOUT_TAVILY_API_KEY", "test-key")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "8080", cfg.Server.Port)
		assert.Equal(t, "development", cfg.Server.Environment)
		assert.Equal(t, "https://api.tavily.com", cfg.Tavily.BaseURL)
		assert.Equal(t, 15*time.Second, cfg.Tavily.Timeout)
		assert.Equal(t, 30*time.Minute, cfg.Cache.PharmacyTTL)
		assert.Equal(t, time.Hour, cfg.Cache.PriceTTL)
		assert.Equal(t, 24*time.Hour, cfg.Cache.InfoTTL)
		assert.Equal(t, 1024, cfg.Geocoder.CacheSize)
		assert.Equal(t, 3, cfg.Search.MaxConcurrency)
		assert.Equal(t, 500*time.Millisecond, cfg.Search.RetryBackoff)
		assert.Empty(t, cfg.Search.AllowedDomains)

		require.Contains(t, cfg.RateLimit.Buckets, "search")
		assert.Equal(t, 10, cfg.RateLimit.Buckets["search"].Capacity)
		assert.Equal(t, 5.0, cfg.RateLimit.Buckets["search"].RefillPerSecond)
		assert.Equal(t, 5, cfg.RateLimit.Buckets["geocode"].Capacity)
		assert.Equal(t, 20, cfg.RateLimit.Default.Capacity)

		minPrice, maxPrice, err := cfg.Extraction.Band()
		require.NoError(t, err)
		assert.True(t, minPrice.Equal(decimal.RequireFromString("0.50")))
		assert.True(t, maxPrice.Equal(decimal.RequireFromString("500")))
	})

	t.Run("loads custom values from environment variables", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("RXSCOUT_TAVILY_API_KEY", "custom-api-key")
		t.Setenv("RXSCOUT_SERVER_PORT", "9090")
		t.Setenv("RXSCOUT_SERVER_ENVIRONMENT", "production")
		t.Setenv("RXSCOUT_CACHE_PRICE_TTL", "2h")
		t.Setenv("RXSCOUT_SEARCH_MAX_CONCURRENCY", "5")
		t.Setenv("RXSCOUT_RATELIMIT_BUCKETS_SEARCH_CAPACITY", "30")
		t.Setenv("RXSCOUT_EXTRACTION_MAX_PRICE", "250")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9090", cfg.Server.Port)
		assert.Equal(t, "production", cfg.Server.Environment)
		assert.Equal(t, "custom-api-key", cfg.Tavily.APIKey)
		assert.Equal(t, 2*time.Hour, cfg.Cache.PriceTTL)
		assert.Equal(t, 5, cfg.Search.MaxConcurrency)
		assert.Equal(t, 30, cfg.RateLimit.Buckets["search"].Capacity)
		assert.Equal(t, "250", cfg.Extraction.MaxPrice)
	})

	t.Run("fails validation when API key is missing", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("RXSCOUT_TAVILY_API_KEY", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Tavily API key is required")
	})

	t.Run("fails validation for an inverted price band", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("RXSCOUT_TAVILY_API_KEY", "test-key")
		t.Setenv("RXSCOUT_EXTRACTION_MIN_PRICE", "600")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("reads config.yaml from the working directory", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		t.Setenv("RXSCOUT_TAVILY_API_KEY", "test-key")

		yaml := `
server:
  port: "7070"
aggregation:
  domain_types:
    - "localrx.com=retail"
`
		require.NoError(t, os.WriteFile("config.yaml", []byte(yaml), 0o644))

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "7070", cfg.Server.Port)

		table, err := cfg.Aggregation.DomainTypeTable()
		require.NoError(t, err)
		assert.Equal(t, domain.PharmacyRetail, table["localrx.com"])
	})
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("returns nil when .env file doesn't exist", func(t *testing.T) {
		t.Chdir(t.TempDir())

		assert.NoError(t, loadEnvFile())
	})

	t.Run("loads variables from .env file", func(t *testing.T) {
		t.Chdir(t.TempDir())

		envContent := `
# Comment line
RXSCOUT_TEST_VAR_1=value1
RXSCOUT_TEST_VAR_2=value2
# RXSCOUT_TEST_COMMENTED=should_not_load
`
		require.NoError(t, os.WriteFile(".env", []byte(envContent), 0o644))
		t.Cleanup(func() {
			os.Unsetenv("RXSCOUT_TEST_VAR_1")
			os.Unsetenv("RXSCOUT_TEST_VAR_2")
		})

		require.NoError(t, loadEnvFile())

		assert.Equal(t, "value1", os.Getenv("RXSCOUT_TEST_VAR_1"))
		assert.Equal(t, "value2", os.Getenv("RXSCOUT_TEST_VAR_2"))
		assert.Empty(t, os.Getenv("RXSCOUT_TEST_COMMENTED"))
	})

	t.Run("doesn't override existing environment variables", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("RXSCOUT_TEST_OVERRIDE", "existing-value")

		require.NoError(t, os.WriteFile(".env", []byte("RXSCOUT_TEST_OVERRIDE=new-value"), 0o644))
		require.NoError(t, loadEnvFile())

		assert.Equal(t, "existing-value", os.Getenv("RXSCOUT_TEST_OVERRIDE"))
	})
}

func validConfig() *Config {
	return &Config{
		Tavily:     TavilyConfig{APIKey: "test-key"},
		Geocoder:   GeocoderConfig{CacheSize: 16},
		Cache:      CacheConfig{PharmacyTTL: time.Minute, PriceTTL: time.Minute, InfoTTL: time.Minute},
		Extraction: ExtractionConfig{MinPrice: "0.50", MaxPrice: "500.00"},
		RateLimit: RateLimitConfig{
			Buckets: map[string]BucketConfig{"search": {Capacity: 10, RefillPerSecond: 5}},
			Default: BucketConfig{Capacity: 20, RefillPerSecond: 10},
		},
		Search: SearchConfig{MaxConcurrency: 3},
	}
}

func TestValidate(t *testing.T) {
	t.Run("validates successfully with all required fields", func(t *testing.T) {
		assert.NoError(t, validate(validConfig()))
	})

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty API key", func(c *Config) { c.Tavily.APIKey = "" }},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }},
		{"unparseable min price", func(c *Config) { c.Extraction.MinPrice = "cheap" }},
		{"zero min price", func(c *Config) { c.Extraction.MinPrice = "0" }},
		{"inverted band", func(c *Config) { c.Extraction.MinPrice = "10"; c.Extraction.MaxPrice = "5" }},
		{"zero price ttl", func(c *Config) { c.Cache.PriceTTL = 0 }},
		{"negative info ttl", func(c *Config) { c.Cache.InfoTTL = -time.Second }},
		{"zero bucket capacity", func(c *Config) { c.RateLimit.Buckets["search"] = BucketConfig{RefillPerSecond: 1} }},
		{"zero default refill", func(c *Config) { c.RateLimit.Default.RefillPerSecond = 0 }},
		{"zero geocode cache", func(c *Config) { c.Geocoder.CacheSize = 0 }},
		{"zero concurrency", func(c *Config) { c.Search.MaxConcurrency = 0 }},
		{"malformed domain type", func(c *Config) { c.Aggregation.DomainTypes = []string{"goodrx.com"} }},
		{"unknown domain type", func(c *Config) { c.Aggregation.DomainTypes = []string{"goodrx.com=coupon"} }},
	}

	for _, tt := range tests {
		t.Run("fails for "+tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, validate(cfg))
		})
	}
}

func TestDomainTypeTable(t *testing.T) {
	a := AggregationConfig{DomainTypes: []string{" GoodRx.com = discount", "localrx.com=retail"}}

	table, err := a.DomainTypeTable()
	require.NoError(t, err)
	assert.Equal(t, map[string]domain.PharmacyType{
		"goodrx.com":  domain.PharmacyDiscount,
		"localrx.com": domain.PharmacyRetail,
	}, table)
}

func TestInitLogger(t *testing.T) {
	t.Cleanup(func() { zap.ReplaceGlobals(zap.NewNop()) })

	t.Run("installs the global logger", func(t *testing.T) {
		logger, flush, err := InitLogger(LogConfig{Level: "debug", Format: "console"})
		require.NoError(t, err)
		defer flush()

		assert.Same(t, logger, zap.L())
		assert.True(t, logger.Core().Enabled(zap.DebugLevel))
	})

	t.Run("rejects unknown levels", func(t *testing.T) {
		_, _, err := InitLogger(LogConfig{Level: "loud"})
		assert.Error(t, err)
	})
}
