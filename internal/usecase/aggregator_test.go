package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rxscout/backend/internal/domain"
)

func price(amount, pharmacy, sourceDomain string) domain.PriceRecord {
	return domain.PriceRecord{
		Amount:         dec(amount),
		Currency:       domain.CurrencyUSD,
		SourceDomain:   sourceDomain,
		Pharmacy:       pharmacy,
		RawMatchedText: "$" + amount,
		PatternID:      domain.PatternStandard,
	}
}

func floatPtr(f float64) *float64 { return &f }

func TestDedup(t *testing.T) {
	p := price("9.99", "CVS", "cvs.com")

	t.Run("same name and address prefers verified", func(t *testing.T) {
		out := Dedup([]domain.PharmacyRecord{
			{Name: "CVS Pharmacy", Address: "123 Main St, San Diego, CA", Accuracy: domain.AccuracyEstimated, Phone: "(619) 555-0100"},
			{Name: "cvs pharmacy.", Address: "123 main st,  san diego, ca", Accuracy: domain.AccuracyVerified},
		})
		require.Len(t, out, 1)
		assert.Equal(t, domain.AccuracyVerified, out[0].Accuracy)
		assert.Equal(t, "cvs pharmacy.", out[0].Name)
		assert.Equal(t, "(619) 555-0100", out[0].Phone, "blank fields filled from the duplicate")
	})

	t.Run("equal accuracy prefers a price", func(t *testing.T) {
		out := Dedup([]domain.PharmacyRecord{
			{Name: "CVS", Website: "https://cvs.com", Accuracy: domain.AccuracySample},
			{Name: "CVS", Website: "https://www.cvs.com/", Accuracy: domain.AccuracySample, Price: &p},
		})
		require.Len(t, out, 1)
		require.NotNil(t, out[0].Price)
	})

	t.Run("different addresses stay apart", func(t *testing.T) {
		out := Dedup([]domain.PharmacyRecord{
			{Name: "CVS", Address: "123 Main St", Website: "https://cvs.com"},
			{Name: "CVS", Address: "9 Oak Ave", Website: "https://cvs.com"},
		})
		assert.Len(t, out, 2)
	})

	t.Run("website used when an address is missing", func(t *testing.T) {
		out := Dedup([]domain.PharmacyRecord{
			{Name: "Walgreens", Address: "1 Elm St", Website: "https://walgreens.com", Accuracy: domain.AccuracyVerified},
			{Name: "Walgreens", Website: "https://walgreens.com", Accuracy: domain.AccuracySample, Price: &p},
			{Name: "Walgreens", Website: "https://goodrx.com", Accuracy: domain.AccuracySample},
		})
		require.Len(t, out, 2)
		assert.Equal(t, "1 Elm St", out[0].Address)
		assert.NotNil(t, out[0].Price)
	})
}

func TestAggregate_IbuprofenScenario(t *testing.T) {
	geo := newStubGeocoder(map[string]domain.Coordinates{
		"San Diego, CA":              {Lat: 32.7157, Lon: -117.1611},
		"123 Main St, San Diego, CA": {Lat: 32.7200, Lon: -117.1600},
	})
	agg := NewAggregator(NewGeolocator(geo, nil, GeolocatorConfig{}), AggregatorConfig{})

	prices, pharmacies := NewExtractor(DefaultExtractorConfig()).Extract([]domain.RawResult{
		{URL: "https://www.walmart.com/ip/1", Content: "Walmart $4.88 ibuprofen 200mg", SourceDomain: "walmart.com"},
		{URL: "https://www.cvs.com/store/1", Content: "CVS Pharmacy, 123 Main St, San Diego, CA", SourceDomain: "cvs.com"},
	})
	out := agg.Aggregate(context.Background(), prices, pharmacies, sanDiegoQuery)

	require.Len(t, out.Pharmacies, 1)
	cvs := out.Pharmacies[0]
	assert.Equal(t, "CVS", cvs.Name)
	assert.Equal(t, domain.PharmacyRetail, cvs.Type)
	assert.NotEmpty(t, cvs.Address)
	assert.Nil(t, cvs.Price)
	require.NotNil(t, cvs.DistanceMiles)
	assert.Less(t, *cvs.DistanceMiles, 1.0)

	require.Len(t, out.Prices, 1)
	assert.Equal(t, "Walmart", out.Prices[0].Pharmacy)
	assert.Equal(t, domain.PharmacyRetail, out.Prices[0].PharmacyType)
	assert.True(t, dec("4.88").Equal(out.Prices[0].Amount))

	require.Len(t, out.Summary, 1)
	assert.Equal(t, domain.PharmacyRetail, out.Summary[0].Type)
	assert.False(t, out.InsufficientData)
}

func TestAggregate_LocalSortOrder(t *testing.T) {
	origin := domain.Coordinates{Lat: 32.70, Lon: -117.16}
	geo := newStubGeocoder(map[string]domain.Coordinates{
		"near":  {Lat: 32.71, Lon: -117.16},
		"far":   {Lat: 32.90, Lon: -117.16},
		"also":  {Lat: 32.90, Lon: -117.16},
		"blank": {Lat: 32.90, Lon: -117.16},
	})
	agg := NewAggregator(NewGeolocator(geo, nil, GeolocatorConfig{}), AggregatorConfig{})
	cheap := price("3.00", "", "example.org")
	dear := price("9.00", "", "example.org")

	q := domain.MedicationQuery{MedicationName: "ibuprofen", Location: domain.LocationNearMe, Mode: domain.ModeLocal, Origin: &origin}
	out := agg.Aggregate(context.Background(), nil, []domain.PharmacyRecord{
		{Name: "Zed Pharmacy", Address: "far", Price: &dear},
		{Name: "Unknown Place Pharmacy", Address: "unresolvable"},
		{Name: "Able Pharmacy", Address: "near"},
		{Name: "Bee Pharmacy", Address: "also", Price: &cheap},
		{Name: "Cee Pharmacy", Address: "blank"},
		{Name: "No Address Pharmacy"},
	}, q)

	var names []string
	for _, p := range out.Pharmacies {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Able Pharmacy", "Bee Pharmacy", "Zed Pharmacy", "Cee Pharmacy", "Unknown Place Pharmacy"}, names)
	assert.Nil(t, out.Pharmacies[4].DistanceMiles)
}

func TestAggregate_OnlineKeepsAddresslessAndSortsByPrice(t *testing.T) {
	agg := NewAggregator(nil, AggregatorConfig{})
	a := price("12.00", "Amazon Pharmacy", "amazon.com")
	b := price("6.00", "Mark Cuban Cost Plus Drugs", "costplusdrugs.com")

	out := agg.Aggregate(context.Background(), []domain.PriceRecord{a, b, a}, []domain.PharmacyRecord{
		{Name: "Amazon Pharmacy", Website: "https://amazon.com", Price: &a},
		{Name: "Mark Cuban Cost Plus Drugs", Website: "https://costplusdrugs.com", Price: &b},
	}, domain.MedicationQuery{MedicationName: "metformin", Mode: domain.ModeOnline})

	require.Len(t, out.Pharmacies, 2)
	assert.Equal(t, "Mark Cuban Cost Plus Drugs", out.Pharmacies[0].Name)
	assert.Equal(t, domain.PharmacyOnline, out.Pharmacies[0].Type)
	assert.Len(t, out.Prices, 2, "repeated price records collapse")
	assert.True(t, dec("6.00").Equal(out.Prices[0].Amount))
}

func TestAggregate_NoResults(t *testing.T) {
	out := NewAggregator(nil, AggregatorConfig{}).Aggregate(context.Background(), nil, nil, sanDiegoQuery)

	assert.True(t, out.InsufficientData)
	assert.True(t, out.HasReason(domain.ReasonNoResults))
	assert.NotEmpty(t, out.Message)
	assert.NotNil(t, out.Pharmacies)
}

func TestCompare(t *testing.T) {
	agg := NewAggregator(nil, AggregatorConfig{})
	q := domain.MedicationQuery{MedicationName: "metformin", Mode: domain.ModeOnline}

	t.Run("insufficient samples", func(t *testing.T) {
		out := agg.Compare([]domain.PriceRecord{price("4.00", "Walmart", "walmart.com")}, q,
			[]domain.PharmacyType{domain.PharmacyRetail, domain.PharmacyOnline})

		assert.True(t, out.InsufficientData)
		assert.Nil(t, out.Groups)
		assert.Equal(t, 1, out.SampleCounts[domain.PharmacyRetail])
		assert.Equal(t, 0, out.SampleCounts[domain.PharmacyOnline])
		assert.Contains(t, out.Message, "0 online")
		assert.True(t, out.HasReason(domain.ReasonInsufficientSamples))
	})

	t.Run("groups and savings", func(t *testing.T) {
		out := agg.Compare([]domain.PriceRecord{
			price("10.00", "Walmart", "walmart.com"),
			price("20.00", "CVS", "cvs.com"),
			price("5.00", "Amazon Pharmacy", "amazon.com"),
			price("2.00", "", "goodrx.com"),
		}, q, []domain.PharmacyType{domain.PharmacyRetail, domain.PharmacyOnline})

		require.False(t, out.InsufficientData)
		require.Len(t, out.Groups, 2)
		retail, online := out.Groups[0], out.Groups[1]
		assert.Equal(t, domain.PharmacyRetail, retail.Type)
		assert.Equal(t, 2, retail.Count)
		assert.True(t, dec("15").Equal(retail.Average))
		assert.True(t, dec("10").Equal(retail.Min))
		assert.True(t, dec("20").Equal(retail.Max))
		assert.Equal(t, domain.PharmacyOnline, online.Type)
		assert.True(t, dec("10").Equal(out.PotentialSavings))
	})
}

func TestSavings(t *testing.T) {
	assert.True(t, savings(nil).IsZero())
	assert.True(t, savings([]domain.PriceGroup{{Average: dec("4")}}).IsZero())
	assert.True(t, dec("3.5").Equal(savings([]domain.PriceGroup{{Average: dec("8")}, {Average: dec("4.5")}, {Average: dec("6")}})))
}

func TestCompareHelpers(t *testing.T) {
	assert.Equal(t, -1, compareFloatPtr(floatPtr(1), nil))
	assert.Equal(t, 1, compareFloatPtr(nil, floatPtr(1)))
	assert.Equal(t, 0, compareFloatPtr(nil, nil))
}
