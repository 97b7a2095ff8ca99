package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Result sources.
const (
	SourceSearch = "search"
	SourceCache  = "cache"
)

// PriceGroup summarises the prices seen for one pharmacy type.
type PriceGroup struct {
	Type    PharmacyType    `json:"type"`
	Count   int             `json:"count"`
	Average decimal.Decimal `json:"average"`
	Min     decimal.Decimal `json:"min"`
	Max     decimal.Decimal `json:"max"`
}

// Outcome carries the completeness annotations shared by every payload.
type Outcome struct {
	RequestID        string    `json:"requestId"`
	Source           string    `json:"source"`
	InsufficientData bool      `json:"insufficientData"`
	RateLimited      bool      `json:"rateLimited"`
	Reasons          []string  `json:"reasons,omitempty"`
	Message          string    `json:"message,omitempty"`
	GeneratedAt      time.Time `json:"generatedAt"`
}

// AddReason appends r once.
func (o *Outcome) AddReason(r string) {
	for _, existing := range o.Reasons {
		if existing == r {
			return
		}
	}
	o.Reasons = append(o.Reasons, r)
}

// HasReason reports whether r was recorded.
func (o Outcome) HasReason(r string) bool {
	for _, existing := range o.Reasons {
		if existing == r {
			return true
		}
	}
	return false
}

func (o Outcome) clone() Outcome {
	out := o
	out.Reasons = append([]string(nil), o.Reasons...)
	return out
}

// PharmacyResultSet is the payload returned by FindPharmacies.
type PharmacyResultSet struct {
	Outcome
	Query            MedicationQuery  `json:"query"`
	Pharmacies       []PharmacyRecord `json:"pharmacies"`
	Prices           []PriceRecord    `json:"prices"`
	Summary          []PriceGroup     `json:"summary,omitempty"`
	PotentialSavings decimal.Decimal  `json:"potentialSavings"`
}

// Clone deep-copies the result set.
func (r *PharmacyResultSet) Clone() *PharmacyResultSet {
	if r == nil {
		return nil
	}
	out := *r
	out.Outcome = r.Outcome.clone()
	if r.Query.Origin != nil {
		origin := *r.Query.Origin
		out.Query.Origin = &origin
	}
	out.Pharmacies = make([]PharmacyRecord, len(r.Pharmacies))
	for i, p := range r.Pharmacies {
		out.Pharmacies[i] = p.Clone()
	}
	out.Prices = append([]PriceRecord(nil), r.Prices...)
	out.Summary = append([]PriceGroup(nil), r.Summary...)
	return &out
}

// ComparisonResultSet is the payload returned by ComparePrices. Groups is nil
// when InsufficientData is set.
type ComparisonResultSet struct {
	Outcome
	Query            MedicationQuery      `json:"query"`
	RequestedTypes   []PharmacyType       `json:"requestedTypes"`
	Groups           []PriceGroup         `json:"groups,omitempty"`
	PotentialSavings decimal.Decimal      `json:"potentialSavings"`
	SampleCounts     map[PharmacyType]int `json:"sampleCounts"`
}

// Clone deep-copies the result set.
func (r *ComparisonResultSet) Clone() *ComparisonResultSet {
	if r == nil {
		return nil
	}
	out := *r
	out.Outcome = r.Outcome.clone()
	if r.Query.Origin != nil {
		origin := *r.Query.Origin
		out.Query.Origin = &origin
	}
	out.RequestedTypes = append([]PharmacyType(nil), r.RequestedTypes...)
	out.Groups = append([]PriceGroup(nil), r.Groups...)
	out.SampleCounts = make(map[PharmacyType]int, len(r.SampleCounts))
	for k, v := range r.SampleCounts {
		out.SampleCounts[k] = v
	}
	return &out
}

// GenericAlternative is one generic equivalent of a brand-name drug.
type GenericAlternative struct {
	GenericName string           `json:"genericName"`
	Accuracy    Accuracy         `json:"accuracy"`
	LowestPrice *decimal.Decimal `json:"lowestPrice,omitempty"`
	Sources     []string         `json:"sources,omitempty"`
}

// AlternativeSet is the payload returned by FindGenericAlternatives.
type AlternativeSet struct {
	Outcome
	BrandName    string               `json:"brandName"`
	Alternatives []GenericAlternative `json:"alternatives"`
}

// Clone deep-copies the set.
func (r *AlternativeSet) Clone() *AlternativeSet {
	if r == nil {
		return nil
	}
	out := *r
	out.Outcome = r.Outcome.clone()
	out.Alternatives = make([]GenericAlternative, len(r.Alternatives))
	for i, alt := range r.Alternatives {
		c := alt
		if alt.LowestPrice != nil {
			p := *alt.LowestPrice
			c.LowestPrice = &p
		}
		c.Sources = append([]string(nil), alt.Sources...)
		out.Alternatives[i] = c
	}
	return &out
}

// InfoRecord is the payload returned by GetMedicationInfo.
type InfoRecord struct {
	Outcome
	Name        string   `json:"name"`
	GenericName string   `json:"genericName,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	Dosages     []string `json:"dosages,omitempty"`
	Sources     []string `json:"sources,omitempty"`
}

// Clone deep-copies the record.
func (r *InfoRecord) Clone() *InfoRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Outcome = r.Outcome.clone()
	out.Dosages = append([]string(nil), r.Dosages...)
	out.Sources = append([]string(nil), r.Sources...)
	return &out
}
