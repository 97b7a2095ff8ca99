package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rxscout/backend/internal/domain"
	"github.com/shopspring/decimal"
)

// AggregatorConfig holds configuration for the aggregator
type AggregatorConfig struct {
	DomainTypes       map[string]domain.PharmacyType
	MinSamplesPerType int
}

// Aggregator deduplicates, classifies, locates and ranks extracted records.
type Aggregator struct {
	cfg AggregatorConfig
	geo *Geolocator
	now func() time.Time
}

// NewAggregator creates an aggregator. geo may be nil, in which case no
// distances are computed.
func NewAggregator(geo *Geolocator, cfg AggregatorConfig) *Aggregator {
	if cfg.DomainTypes == nil {
		cfg.DomainTypes = DefaultDomainTypes()
	}
	if cfg.MinSamplesPerType <= 0 {
		cfg.MinSamplesPerType = 1
	}
	return &Aggregator{cfg: cfg, geo: geo, now: time.Now}
}

// Aggregate builds the FindPharmacies payload from extracted records. The
// inputs are copied; the payload never shares memory with them.
func (a *Aggregator) Aggregate(ctx context.Context, prices []domain.PriceRecord, pharmacies []domain.PharmacyRecord, q domain.MedicationQuery) *domain.PharmacyResultSet {
	classified := a.classifyPrices(prices)

	records := make([]domain.PharmacyRecord, 0, len(pharmacies))
	for _, p := range pharmacies {
		rec := p.Clone()
		rec.Type = a.pharmacyType(rec.Name, rec.Website)
		if rec.Price != nil {
			rec.Price.PharmacyType = rec.Type
		}
		records = append(records, rec)
	}
	records = Dedup(records)

	if q.Mode == domain.ModeLocal {
		kept := records[:0]
		for _, r := range records {
			if strings.TrimSpace(r.Address) != "" {
				kept = append(kept, r)
			}
		}
		records = kept
		a.applyDistances(ctx, records, q)
	}
	sortPharmacies(records, q.Mode)

	summary := groupPrices(classified, nil)
	out := &domain.PharmacyResultSet{
		Outcome: domain.Outcome{
			Source:      domain.SourceSearch,
			GeneratedAt: a.now().UTC(),
		},
		Query:            q,
		Pharmacies:       records,
		Prices:           classified,
		Summary:          summary,
		PotentialSavings: savings(summary),
	}
	if len(records) == 0 && len(classified) == 0 {
		out.InsufficientData = true
		out.AddReason(domain.ReasonNoResults)
		out.Message = fmt.Sprintf("No pharmacy or price information was found for %s.", q.MedicationName)
	}
	return out
}

// Compare groups prices by the requested pharmacy types. When any requested
// type has fewer than the minimum number of samples the payload carries a
// message instead of a comparison table.
func (a *Aggregator) Compare(prices []domain.PriceRecord, q domain.MedicationQuery, types []domain.PharmacyType) *domain.ComparisonResultSet {
	classified := a.classifyPrices(prices)
	groups := groupPrices(classified, types)

	counts := make(map[domain.PharmacyType]int, len(types))
	for _, t := range types {
		counts[t] = 0
	}
	for _, g := range groups {
		counts[g.Type] = g.Count
	}

	out := &domain.ComparisonResultSet{
		Outcome: domain.Outcome{
			Source:      domain.SourceSearch,
			GeneratedAt: a.now().UTC(),
		},
		Query:          q,
		RequestedTypes: append([]domain.PharmacyType(nil), types...),
		SampleCounts:   counts,
	}

	var short []string
	for _, t := range types {
		if counts[t] < a.cfg.MinSamplesPerType {
			short = append(short, fmt.Sprintf("%d %s", counts[t], t))
		}
	}
	if len(short) > 0 {
		out.InsufficientData = true
		out.AddReason(domain.ReasonInsufficientSamples)
		out.Message = fmt.Sprintf("Not enough price data to compare %s: found %s price(s).",
			q.MedicationName, strings.Join(short, ", "))
		return out
	}

	out.Groups = groups
	out.PotentialSavings = savings(groups)
	return out
}

// classifyPrices copies prices, assigns pharmacy types and drops exact
// repeats of (pharmacy, amount, domain).
func (a *Aggregator) classifyPrices(prices []domain.PriceRecord) []domain.PriceRecord {
	seen := make(map[string]struct{}, len(prices))
	out := make([]domain.PriceRecord, 0, len(prices))
	for _, p := range prices {
		key := normalizeName(p.Pharmacy) + "|" + p.Amount.StringFixed(2) + "|" + p.SourceDomain
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		p.PharmacyType = a.priceType(p)
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Amount.LessThan(out[j].Amount) })
	return out
}

// priceType uses the named chain's home domain, then the source domain.
func (a *Aggregator) priceType(p domain.PriceRecord) domain.PharmacyType {
	if c, ok := chainByName(p.Pharmacy); ok {
		if t := typeForDomain(a.cfg.DomainTypes, c.Domain); t != domain.PharmacyUnknown {
			return t
		}
	}
	return typeForDomain(a.cfg.DomainTypes, p.SourceDomain)
}

func (a *Aggregator) pharmacyType(name, website string) domain.PharmacyType {
	if c, ok := chainByName(name); ok {
		if t := typeForDomain(a.cfg.DomainTypes, c.Domain); t != domain.PharmacyUnknown {
			return t
		}
	}
	return typeForDomain(a.cfg.DomainTypes, domain.DomainOf(website))
}

// applyDistances fills DistanceMiles from the query origin: the client
// position when known, else the geocoded query location.
func (a *Aggregator) applyDistances(ctx context.Context, records []domain.PharmacyRecord, q domain.MedicationQuery) {
	if a.geo == nil || len(records) == 0 {
		return
	}
	var origin domain.Coordinates
	switch {
	case q.Origin != nil:
		origin = *q.Origin
	case q.Location != "" && !q.NearMe():
		c, ok := a.geo.Locate(ctx, q.Location)
		if !ok {
			return
		}
		origin = c
	default:
		return
	}

	for i := range records {
		c, ok := a.geo.Locate(ctx, records[i].Address)
		if !ok {
			continue
		}
		d := Haversine(origin, c)
		d = float64(int64(d*100+0.5)) / 100
		records[i].DistanceMiles = &d
	}
}

// Dedup collapses records naming the same pharmacy. Two records match when
// their normalized names are equal and, if both carry an address, the
// addresses match; otherwise their websites must match. The survivor has the
// higher accuracy, then a price; blank fields are filled from the other.
func Dedup(records []domain.PharmacyRecord) []domain.PharmacyRecord {
	out := make([]domain.PharmacyRecord, 0, len(records))
	for _, r := range records {
		merged := false
		for i := range out {
			if !samePharmacy(out[i], r) {
				continue
			}
			out[i] = mergeRecords(out[i], r)
			merged = true
			break
		}
		if !merged {
			out = append(out, r)
		}
	}
	return out
}

func samePharmacy(a, b domain.PharmacyRecord) bool {
	if normalizeName(a.Name) != normalizeName(b.Name) {
		return false
	}
	if a.Address != "" && b.Address != "" {
		return normalizeName(a.Address) == normalizeName(b.Address)
	}
	return a.Website != "" && domain.DomainOf(a.Website) == domain.DomainOf(b.Website)
}

func mergeRecords(a, b domain.PharmacyRecord) domain.PharmacyRecord {
	winner, loser := a, b
	switch {
	case b.Accuracy.Rank() > a.Accuracy.Rank():
		winner, loser = b, a
	case b.Accuracy.Rank() == a.Accuracy.Rank() && a.Price == nil && b.Price != nil:
		winner, loser = b, a
	}
	if winner.Address == "" {
		winner.Address = loser.Address
	}
	if winner.Phone == "" {
		winner.Phone = loser.Phone
	}
	if winner.Hours == "" {
		winner.Hours = loser.Hours
	}
	if winner.Website == "" {
		winner.Website = loser.Website
	}
	if winner.Price == nil {
		winner.Price = loser.Price
	}
	if winner.DistanceMiles == nil {
		winner.DistanceMiles = loser.DistanceMiles
	}
	return winner
}

func sortPharmacies(records []domain.PharmacyRecord, mode domain.SearchMode) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if mode == domain.ModeLocal {
			if c := compareFloatPtr(a.DistanceMiles, b.DistanceMiles); c != 0 {
				return c < 0
			}
		}
		if c := comparePrice(a.Price, b.Price); c != 0 {
			return c < 0
		}
		return normalizeName(a.Name) < normalizeName(b.Name)
	})
}

// compareFloatPtr orders nil last.
func compareFloatPtr(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	}
	return 0
}

// comparePrice orders nil last.
func comparePrice(a, b *domain.PriceRecord) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return a.Amount.Cmp(b.Amount)
}

// groupPrices computes count/average/min/max per pharmacy type. With types
// nil every type present is reported, ordered by type name; otherwise groups
// follow types and omit types without prices.
func groupPrices(prices []domain.PriceRecord, types []domain.PharmacyType) []domain.PriceGroup {
	byType := make(map[domain.PharmacyType][]decimal.Decimal)
	for _, p := range prices {
		byType[p.PharmacyType] = append(byType[p.PharmacyType], p.Amount)
	}

	order := types
	if order == nil {
		for t := range byType {
			order = append(order, t)
		}
		sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	}

	var groups []domain.PriceGroup
	for _, t := range order {
		amounts := byType[t]
		if len(amounts) == 0 {
			continue
		}
		g := domain.PriceGroup{Type: t, Count: len(amounts), Min: amounts[0], Max: amounts[0]}
		sum := decimal.Zero
		for _, amt := range amounts {
			sum = sum.Add(amt)
			if amt.LessThan(g.Min) {
				g.Min = amt
			}
			if amt.GreaterThan(g.Max) {
				g.Max = amt
			}
		}
		g.Average = sum.Div(decimal.NewFromInt(int64(len(amounts)))).Round(2)
		groups = append(groups, g)
	}
	return groups
}

// savings is the spread between the highest and lowest group averages,
// never negative.
func savings(groups []domain.PriceGroup) decimal.Decimal {
	if len(groups) < 2 {
		return decimal.Zero
	}
	lo, hi := groups[0].Average, groups[0].Average
	for _, g := range groups[1:] {
		lo = decimal.Min(lo, g.Average)
		hi = decimal.Max(hi, g.Average)
	}
	s := hi.Sub(lo)
	if s.IsNegative() {
		return decimal.Zero
	}
	return s
}
