package domain

import (
	"github.com/shopspring/decimal"
)

// CurrencyUSD is the only currency extracted.
const CurrencyUSD = "USD"

// PatternID names the matcher that produced a price.
type PatternID string

const (
	PatternPharmacyPrefixed PatternID = "pharmacy_prefixed"
	PatternPromotional      PatternID = "promotional"
	PatternRange            PatternID = "range"
	PatternStandard         PatternID = "standard"
	PatternContext          PatternID = "context_qualified"
)

// PriceRecord is a single price found in search text.
type PriceRecord struct {
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	SourceDomain   string          `json:"sourceDomain"`
	Pharmacy       string          `json:"pharmacy,omitempty"`
	PharmacyType   PharmacyType    `json:"pharmacyType,omitempty"`
	RawMatchedText string          `json:"rawMatchedText"`
	PatternID      PatternID       `json:"extractionPatternId"`
}

// PharmacyType buckets pharmacies for comparison.
type PharmacyType string

const (
	PharmacyRetail   PharmacyType = "retail"
	PharmacyOnline   PharmacyType = "online"
	PharmacyDiscount PharmacyType = "discount"
	PharmacyUnknown  PharmacyType = "unknown"
)

// ParsePharmacyType returns the type for s and whether s was recognised.
func ParsePharmacyType(s string) (PharmacyType, bool) {
	switch PharmacyType(s) {
	case PharmacyRetail, PharmacyOnline, PharmacyDiscount, PharmacyUnknown:
		return PharmacyType(s), true
	}
	return PharmacyUnknown, false
}

// Accuracy is the confidence tier of a pharmacy record.
type Accuracy string

const (
	AccuracyVerified  Accuracy = "verified"
	AccuracyEstimated Accuracy = "estimated"
	AccuracySample    Accuracy = "sample"
)

// Rank orders tiers; higher is better.
func (a Accuracy) Rank() int {
	switch a {
	case AccuracyVerified:
		return 3
	case AccuracyEstimated:
		return 2
	case AccuracySample:
		return 1
	}
	return 0
}

// PharmacyRecord describes one pharmacy found in search results.
type PharmacyRecord struct {
	Name          string       `json:"name"`
	Type          PharmacyType `json:"type"`
	Address       string       `json:"address,omitempty"`
	Phone         string       `json:"phone,omitempty"`
	Website       string       `json:"website,omitempty"`
	Hours         string       `json:"hours,omitempty"`
	Price         *PriceRecord `json:"price,omitempty"`
	DistanceMiles *float64     `json:"distanceMiles,omitempty"`
	Accuracy      Accuracy     `json:"accuracy"`
}

// Clone returns a deep copy so callers never share pointers with cached payloads.
func (p PharmacyRecord) Clone() PharmacyRecord {
	out := p
	if p.Price != nil {
		price := *p.Price
		out.Price = &price
	}
	if p.DistanceMiles != nil {
		d := *p.DistanceMiles
		out.DistanceMiles = &d
	}
	return out
}
