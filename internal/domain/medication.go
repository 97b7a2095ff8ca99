package domain

// SearchMode says whether the user wants nearby stores or online offers.
type SearchMode string

const (
	ModeLocal       SearchMode = "local"
	ModeOnline      SearchMode = "online"
	ModeUnspecified SearchMode = "unspecified"
)

// LocationNearMe is the location recorded for "X near me" queries.
const LocationNearMe = "near me"

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// MedicationQuery is the structured intent parsed from a raw user query.
type MedicationQuery struct {
	MedicationName string       `json:"medicationName"`
	Dosage         string       `json:"dosage,omitempty"`
	Location       string       `json:"location,omitempty"`
	Mode           SearchMode   `json:"mode"`
	Origin         *Coordinates `json:"origin,omitempty"` // client position, if supplied
}

// NearMe reports whether the location refers to the caller's own position.
func (q MedicationQuery) NearMe() bool {
	return q.Location == LocationNearMe
}

// SearchDepth is passed through to the search provider.
type SearchDepth string

const (
	DepthBasic    SearchDepth = "basic"
	DepthAdvanced SearchDepth = "advanced"
)

// SearchRequest is one phrasing of a query sent to the search provider.
// Built by the orchestrator and never modified afterwards.
type SearchRequest struct {
	QueryText      string
	AllowedDomains []string
	Depth          SearchDepth
	MaxResults     int
}

// RawResult is a single search hit. Order carries no meaning.
type RawResult struct {
	Title        string  `json:"title"`
	URL          string  `json:"url"`
	Content      string  `json:"content"`
	SourceDomain string  `json:"sourceDomain"`
	Score        float64 `json:"score,omitempty"`
}
