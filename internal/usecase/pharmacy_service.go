package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rxscout/backend/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const tracerName = "internal/usecase"

// Cache categories.
const (
	CategoryPharmacies = "pharmacies"
	CategoryPrices     = "prices"
	CategoryGenerics   = "generics"
	CategoryInfo       = "info"
)

// PharmacyServiceConfig holds configuration for the pharmacy service
type PharmacyServiceConfig struct {
	PharmacyTTL  time.Duration
	PriceTTL     time.Duration
	InfoTTL      time.Duration
	CompareTypes []domain.PharmacyType
}

// PharmacyService runs the per-request pipeline:
// normalize -> cache lookup -> search -> extract -> aggregate -> cache put.
type PharmacyService struct {
	normalizer   *Normalizer
	orchestrator *SearchOrchestrator
	extractor    *Extractor
	aggregator   *Aggregator
	cache        domain.CacheRepository
	cfg          PharmacyServiceConfig
	newID        func() string
}

// NewPharmacyService creates a new pharmacy service with dependencies
func NewPharmacyService(
	cache domain.CacheRepository,
	orchestrator *SearchOrchestrator,
	extractor *Extractor,
	aggregator *Aggregator,
	cfg PharmacyServiceConfig,
) *PharmacyService {
	if cfg.PharmacyTTL <= 0 {
		cfg.PharmacyTTL = 30 * time.Minute
	}
	if cfg.PriceTTL <= 0 {
		cfg.PriceTTL = time.Hour
	}
	if cfg.InfoTTL <= 0 {
		cfg.InfoTTL = 24 * time.Hour
	}
	if len(cfg.CompareTypes) == 0 {
		cfg.CompareTypes = []domain.PharmacyType{domain.PharmacyRetail, domain.PharmacyOnline, domain.PharmacyDiscount}
	}
	return &PharmacyService{
		normalizer:   NewNormalizer(),
		orchestrator: orchestrator,
		extractor:    extractor,
		aggregator:   aggregator,
		cache:        cache,
		cfg:          cfg,
		newID:        func() string { return uuid.NewString() },
	}
}

// FindPharmacies answers a free-text query with ranked pharmacies and the
// prices found for the medication. Only a malformed query returns an error.
func (s *PharmacyService) FindPharmacies(ctx context.Context, rawQuery string, client *domain.Coordinates) (*domain.PharmacyResultSet, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "FindPharmacies")
	defer span.End()

	q, err := s.normalize(ctx, rawQuery, client)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	key := CacheKey(CategoryPharmacies, q)
	if cached, ok := s.lookup(ctx, key).(*domain.PharmacyResultSet); ok {
		out := cached.Clone()
		s.stamp(&out.Outcome, domain.SourceCache)
		return out, nil
	}

	outcome := s.search(ctx, q, PurposePharmacies)
	prices, pharmacies := s.extract(ctx, outcome.Results)

	var result *domain.PharmacyResultSet
	s.stage(ctx, "aggregate", func(ctx context.Context) {
		result = s.aggregator.Aggregate(ctx, prices, pharmacies, q)
	})
	annotate(&result.Outcome, outcome)

	s.store(ctx, key, result.Clone(), s.cfg.PharmacyTTL, outcome)
	s.stamp(&result.Outcome, domain.SourceSearch)
	return result, nil
}

// ComparePrices groups the prices found for the query by pharmacy type. An
// empty types list compares retail, online and discount.
func (s *PharmacyService) ComparePrices(ctx context.Context, rawQuery string, types []domain.PharmacyType) (*domain.ComparisonResultSet, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ComparePrices")
	defer span.End()

	q, err := s.normalize(ctx, rawQuery, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	types = uniqueTypes(types)
	if len(types) == 0 {
		types = s.cfg.CompareTypes
	}

	typeKeys := make([]string, len(types))
	for i, t := range types {
		typeKeys[i] = string(t)
	}
	key := CacheKey(CategoryPrices, q, strings.Join(typeKeys, ","))
	if cached, ok := s.lookup(ctx, key).(*domain.ComparisonResultSet); ok {
		out := cached.Clone()
		s.stamp(&out.Outcome, domain.SourceCache)
		return out, nil
	}

	outcome := s.search(ctx, q, PurposeCompare, types...)
	prices, _ := s.extract(ctx, outcome.Results)

	var result *domain.ComparisonResultSet
	s.stage(ctx, "aggregate", func(context.Context) {
		result = s.aggregator.Compare(prices, q, types)
	})
	annotate(&result.Outcome, outcome)

	s.store(ctx, key, result.Clone(), s.cfg.PriceTTL, outcome)
	s.stamp(&result.Outcome, domain.SourceSearch)
	return result, nil
}

// FindGenericAlternatives lists generic equivalents of a brand-name drug.
// Table entries are verified; names mined from search text are estimated.
func (s *PharmacyService) FindGenericAlternatives(ctx context.Context, brandName string) (*domain.AlternativeSet, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "FindGenericAlternatives")
	defer span.End()

	q, err := s.normalize(ctx, brandName, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	key := CacheKey(CategoryGenerics, q)
	if cached, ok := s.lookup(ctx, key).(*domain.AlternativeSet); ok {
		out := cached.Clone()
		s.stamp(&out.Outcome, domain.SourceCache)
		return out, nil
	}

	outcome := s.search(ctx, q, PurposeGenerics)

	var result *domain.AlternativeSet
	s.stage(ctx, "extract", func(context.Context) {
		result = s.alternatives(q.MedicationName, outcome.Results)
	})
	annotate(&result.Outcome, outcome)

	s.store(ctx, key, result.Clone(), s.cfg.InfoTTL, outcome)
	s.stamp(&result.Outcome, domain.SourceSearch)
	return result, nil
}

// GetMedicationInfo summarises what search results say about a medication.
func (s *PharmacyService) GetMedicationInfo(ctx context.Context, name string) (*domain.InfoRecord, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "GetMedicationInfo")
	defer span.End()

	q, err := s.normalize(ctx, name, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	key := CacheKey(CategoryInfo, q)
	if cached, ok := s.lookup(ctx, key).(*domain.InfoRecord); ok {
		out := cached.Clone()
		s.stamp(&out.Outcome, domain.SourceCache)
		return out, nil
	}

	outcome := s.search(ctx, q, PurposeInfo)

	var result *domain.InfoRecord
	s.stage(ctx, "extract", func(context.Context) {
		result = s.info(q, outcome.Results)
	})
	annotate(&result.Outcome, outcome)

	s.store(ctx, key, result.Clone(), s.cfg.InfoTTL, outcome)
	s.stamp(&result.Outcome, domain.SourceSearch)
	return result, nil
}

func (s *PharmacyService) alternatives(brand string, results []domain.RawResult) *domain.AlternativeSet {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = resultText(r)
	}
	band := s.extractor.cfg

	out := &domain.AlternativeSet{
		Outcome:      domain.Outcome{GeneratedAt: time.Now().UTC()},
		BrandName:    brand,
		Alternatives: []domain.GenericAlternative{},
	}
	known, hasKnown := genericOf(brand)
	if hasKnown {
		out.Alternatives = append(out.Alternatives, domain.GenericAlternative{
			GenericName: known,
			Accuracy:    domain.AccuracyVerified,
			LowestPrice: lowestMentionedPrice(known, texts, band.MinPrice, band.MaxPrice),
			Sources:     sourcesMentioning(known, results, texts),
		})
	}
	for _, g := range mineGenerics(brand, texts) {
		if hasKnown && g == known {
			continue
		}
		out.Alternatives = append(out.Alternatives, domain.GenericAlternative{
			GenericName: g,
			Accuracy:    domain.AccuracyEstimated,
			LowestPrice: lowestMentionedPrice(g, texts, band.MinPrice, band.MaxPrice),
			Sources:     sourcesMentioning(g, results, texts),
		})
	}
	sortAlternatives(out.Alternatives)

	if len(out.Alternatives) == 0 {
		out.InsufficientData = true
		out.AddReason(domain.ReasonNoResults)
		out.Message = "No generic alternatives were found for " + brand + "."
	}
	return out
}

func (s *PharmacyService) info(q domain.MedicationQuery, results []domain.RawResult) *domain.InfoRecord {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = resultText(r)
	}

	out := &domain.InfoRecord{
		Outcome: domain.Outcome{GeneratedAt: time.Now().UTC()},
		Name:    q.MedicationName,
		Dosages: dosagesIn(texts, 10),
	}
	if g, ok := genericOf(q.MedicationName); ok {
		out.GenericName = g
	} else if mined := mineGenerics(q.MedicationName, texts); len(mined) > 0 {
		out.GenericName = mined[0]
	}
	for _, r := range results {
		if out.Summary == "" && strings.TrimSpace(r.Content) != "" {
			out.Summary = summarize(resultText(domain.RawResult{Content: r.Content}), 400)
		}
		if len(out.Sources) < 5 {
			out.Sources = append(out.Sources, r.URL)
		}
	}
	if len(results) == 0 {
		out.InsufficientData = true
		out.AddReason(domain.ReasonNoResults)
		out.Message = "No information was found for " + q.MedicationName + "."
	}
	return out
}

// normalize wraps the normalizer in its own span.
func (s *PharmacyService) normalize(ctx context.Context, raw string, client *domain.Coordinates) (domain.MedicationQuery, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "normalize")
	defer span.End()

	q, err := s.normalizer.Normalize(raw, client)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return q, err
	}
	span.SetAttributes(
		attribute.String("medication", q.MedicationName),
		attribute.String("mode", string(q.Mode)),
	)
	return q, nil
}

// lookup returns the cached payload for key, or nil.
func (s *PharmacyService) lookup(ctx context.Context, key string) interface{} {
	if s.cache == nil {
		return nil
	}
	_, span := otel.Tracer(tracerName).Start(ctx, "cache.lookup")
	defer span.End()

	value, err := s.cache.Get(ctx, key)
	if err != nil {
		if !eris.Is(err, domain.ErrCacheMiss) {
			zap.L().Warn("cache lookup failed", zap.String("key", key), zap.Error(err))
		}
		span.SetAttributes(attribute.Bool("hit", false))
		return nil
	}
	span.SetAttributes(attribute.Bool("hit", true))
	return value
}

func (s *PharmacyService) search(ctx context.Context, q domain.MedicationQuery, purpose SearchPurpose, types ...domain.PharmacyType) SearchOutcome {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "search")
	defer span.End()

	outcome := s.orchestrator.Search(ctx, q, purpose, types...)
	span.SetAttributes(
		attribute.Int("variants", outcome.Variants),
		attribute.Int("failed", outcome.Failed),
		attribute.Int("results", len(outcome.Results)),
		attribute.Bool("rate_limited", outcome.RateLimited),
	)
	if outcome.Variants > 0 && outcome.Failed == outcome.Variants {
		span.SetStatus(codes.Error, "all search variants failed")
	}
	return outcome
}

func (s *PharmacyService) extract(ctx context.Context, results []domain.RawResult) (prices []domain.PriceRecord, pharmacies []domain.PharmacyRecord) {
	s.stage(ctx, "extract", func(context.Context) {
		prices, pharmacies = s.extractor.Extract(results)
	})
	return prices, pharmacies
}

// store caches value unless the search behind it was incomplete.
func (s *PharmacyService) store(ctx context.Context, key string, value interface{}, ttl time.Duration, outcome SearchOutcome) {
	if s.cache == nil || !outcome.Complete() {
		return
	}
	_, span := otel.Tracer(tracerName).Start(ctx, "cache.put")
	defer span.End()

	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		span.RecordError(err)
		zap.L().Warn("cache store failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *PharmacyService) stage(ctx context.Context, name string, fn func(context.Context)) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	defer span.End()
	fn(ctx)
}

func (s *PharmacyService) stamp(o *domain.Outcome, source string) {
	o.RequestID = s.newID()
	o.Source = source
}

// annotate records why a payload may be incomplete.
func annotate(o *domain.Outcome, outcome SearchOutcome) {
	if outcome.RateLimited {
		o.RateLimited = true
		o.AddReason(domain.ReasonRateLimited)
	}
	switch {
	case outcome.Variants > 0 && outcome.Failed == outcome.Variants:
		o.AddReason(domain.ReasonProviderFailure)
	case outcome.Failed > 0:
		o.AddReason(domain.ReasonPartialResults)
	}
}

func uniqueTypes(types []domain.PharmacyType) []domain.PharmacyType {
	seen := make(map[domain.PharmacyType]bool, len(types))
	var out []domain.PharmacyType
	for _, t := range types {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func sourcesMentioning(name string, results []domain.RawResult, texts []string) []string {
	var out []string
	for i, text := range texts {
		if strings.Contains(strings.ToLower(text), name) && results[i].URL != "" {
			out = append(out, results[i].URL)
		}
	}
	return out
}
