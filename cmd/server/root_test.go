package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rxscout/backend/internal/domain"
	"github.com/rxscout/backend/internal/infrastructure/cache"
	"github.com/rxscout/backend/internal/infrastructure/ratelimit"
	"github.com/rxscout/backend/internal/usecase"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "lookup"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "rxscout", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "", flag.DefValue)

	flag = serveCmd.Flags().Lookup("shutdown-timeout")
	require.NotNil(t, flag)
	assert.Equal(t, "15s", flag.DefValue)
}

func TestLookupCommand_Flags(t *testing.T) {
	for _, name := range []string{"lat", "lon", "compare", "generics", "info"} {
		assert.NotNil(t, lookupCmd.Flags().Lookup(name), "lookup command should have --%s flag", name)
	}
	assert.Error(t, lookupCmd.Args(lookupCmd, nil))
	assert.NoError(t, lookupCmd.Args(lookupCmd, []string{"ibuprofen"}))
}

func TestAwaitShutdown(t *testing.T) {
	zap.ReplaceGlobals(zap.NewNop())

	t.Run("listen failure still closes pipeline", func(t *testing.T) {
		errCh := make(chan error, 1)
		errCh <- errors.New("address already in use")
		var shutdownCalled, closed bool

		err := awaitShutdown(context.Background(), errCh,
			func(context.Context) error { shutdownCalled = true; return nil },
			func(context.Context) { closed = true },
			time.Second,
		)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "address already in use")
		assert.True(t, closed)
		assert.False(t, shutdownCalled)
	})

	t.Run("signal drains server then closes pipeline", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		var order []string

		err := awaitShutdown(ctx, make(chan error),
			func(context.Context) error { order = append(order, "shutdown"); return nil },
			func(context.Context) { order = append(order, "close") },
			time.Second,
		)

		require.NoError(t, err)
		assert.Equal(t, []string{"shutdown", "close"}, order)
	})
}

func TestParseTypes(t *testing.T) {
	types, err := parseTypes([]string{"Retail", " online "})
	require.NoError(t, err)
	assert.Equal(t, []domain.PharmacyType{domain.PharmacyRetail, domain.PharmacyOnline}, types)

	_, err = parseTypes([]string{"unknown"})
	assert.Error(t, err)
	_, err = parseTypes([]string{"coupon"})
	assert.Error(t, err)
}

type stubProvider []domain.RawResult

func (s stubProvider) Search(ctx context.Context, req domain.SearchRequest) ([]domain.RawResult, error) {
	return s, nil
}

func testService(results []domain.RawResult) *usecase.PharmacyService {
	limiter := ratelimit.New(ratelimit.Config{Buckets: ratelimit.DefaultBuckets(), Default: ratelimit.DefaultBucket})
	return usecase.NewPharmacyService(
		cache.NewMemoryCache(),
		usecase.NewSearchOrchestrator(stubProvider(results), limiter, usecase.OrchestratorConfig{CallTimeout: time.Second}),
		usecase.NewExtractor(usecase.DefaultExtractorConfig()),
		usecase.NewAggregator(nil, usecase.AggregatorConfig{}),
		usecase.PharmacyServiceConfig{},
	)
}

func TestRunLookup(t *testing.T) {
	zap.ReplaceGlobals(zap.NewNop())
	svc := testService([]domain.RawResult{
		{URL: "https://www.walmart.com/ip/ibuprofen", Content: "Walmart $4.88 ibuprofen 200mg", SourceDomain: "walmart.com"},
	})
	ctx := context.Background()

	t.Run("pharmacies by default", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, runLookup(ctx, svc, lookupRequest{query: "ibuprofen online"}, &out))

		var payload domain.PharmacyResultSet
		require.NoError(t, json.Unmarshal(out.Bytes(), &payload))
		assert.Equal(t, "ibuprofen", payload.Query.MedicationName)
		require.Len(t, payload.Prices, 1)
		assert.Equal(t, "4.88", payload.Prices[0].Amount.StringFixed(2))
	})

	t.Run("compare", func(t *testing.T) {
		var out bytes.Buffer
		req := lookupRequest{query: "ibuprofen", compare: true, types: []string{"retail"}}
		require.NoError(t, runLookup(ctx, svc, req, &out))

		var payload domain.ComparisonResultSet
		require.NoError(t, json.Unmarshal(out.Bytes(), &payload))
		assert.Equal(t, []domain.PharmacyType{domain.PharmacyRetail}, payload.RequestedTypes)
		assert.False(t, payload.InsufficientData)
	})

	t.Run("bad compare type", func(t *testing.T) {
		req := lookupRequest{query: "ibuprofen", compare: true, types: []string{"mail"}}
		assert.Error(t, runLookup(ctx, svc, req, &bytes.Buffer{}))
	})

	t.Run("validation error", func(t *testing.T) {
		err := runLookup(ctx, svc, lookupRequest{query: " "}, &bytes.Buffer{})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}
