package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rxscout/backend/internal/domain"
	"golang.org/x/text/cases"
)

// MaxQueryLength bounds raw query text accepted by the normalizer.
const MaxQueryLength = 500

// locationPattern splits a cleaned query into medication and location text.
type locationPattern struct {
	name   string
	re     *regexp.Regexp
	nearMe bool
}

// Tried in order; first match wins.
var locationPatterns = []locationPattern{
	{
		name:   "near_me",
		re:     regexp.MustCompile(`(?i)^(?:where\s+can\s+i\s+(?:find|get|buy)\s+)?(.+?)\s+(?:near|around|close\s+to)\s+me$`),
		nearMe: true,
	},
	{
		name: "where_can_i_at",
		re:   regexp.MustCompile(`(?i)^where\s+can\s+i\s+(?:find|get|buy)\s+(.+?)\s+(?:near|in|at|around)\s+(.+)$`),
	},
	{
		name: "where_can_i",
		re:   regexp.MustCompile(`(?i)^where\s+can\s+i\s+(?:find|get|buy)\s+(.+)$`),
	},
	{
		name: "preposition",
		re:   regexp.MustCompile(`(?i)^(.+?)\s+(?:near|in|at|around)\s+(.+)$`),
	},
}

var (
	leadingVerbPattern  = regexp.MustCompile(`(?i)^(?:what(?:'s|\s+is)\s+the\s+(?:price|cost)\s+of|how\s+much\s+(?:is|does)|(?:price|cost)\s+of|find|search\s+for|look\s+up|get|buy|order)(?:\s+|$)`)
	leadingAdjPattern   = regexp.MustCompile(`(?i)^(?:cheap(?:est)?|affordable|low[\s-]cost)\s+`)
	trailingNounPattern = regexp.MustCompile(`(?i)\s+(?:prices?|costs?)$`)
	onlineTokenPattern  = regexp.MustCompile(`(?i)\bonline\b`)
	dosagePattern       = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(mg|mcg|g|ml|iu|units?)\b`)
	trailingPunct       = regexp.MustCompile(`[?.!]+$`)
	whitespaceRun       = regexp.MustCompile(`\s+`)
)

// Normalizer parses free-text queries into MedicationQuery values. It holds no
// state and is safe for concurrent use.
type Normalizer struct{}

// NewNormalizer creates a Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize parses raw into a MedicationQuery. client is recorded as the
// query origin for "near me" queries only.
func (n *Normalizer) Normalize(raw string, client *domain.Coordinates) (domain.MedicationQuery, error) {
	if len(raw) > MaxQueryLength {
		return domain.MedicationQuery{}, eris.Wrapf(domain.ErrValidation, "query longer than %d characters", MaxQueryLength)
	}

	cleaned := whitespaceRun.ReplaceAllString(strings.TrimSpace(raw), " ")
	cleaned = strings.TrimSpace(trailingPunct.ReplaceAllString(cleaned, ""))

	var (
		name, location string
		nearMe         bool
		matched        bool
	)
	for _, p := range locationPatterns {
		m := p.re.FindStringSubmatch(cleaned)
		if m == nil {
			continue
		}
		name = m[1]
		if p.nearMe {
			nearMe = true
		} else if len(m) > 2 {
			location = m[2]
		}
		matched = true
		break
	}
	if !matched {
		name = cleaned
	}

	name = leadingVerbPattern.ReplaceAllString(strings.TrimSpace(name), "")
	name = leadingAdjPattern.ReplaceAllString(name, "")
	name = trailingNounPattern.ReplaceAllString(name, "")

	var dosage string
	if m := dosagePattern.FindStringSubmatch(name); m != nil {
		dosage = strings.ToLower(m[1] + m[2])
		name = strings.Replace(name, m[0], " ", 1)
	}
	name = onlineTokenPattern.ReplaceAllString(name, " ")
	name = strings.Trim(whitespaceRun.ReplaceAllString(name, " "), " ,;:-")

	location = strings.Trim(strings.TrimSpace(location), " ,;:-")
	if strings.EqualFold(location, "online") {
		location = ""
	}
	if strings.EqualFold(location, "me") {
		nearMe = true
		location = ""
	}

	if name == "" {
		return domain.MedicationQuery{}, eris.Wrapf(domain.ErrValidation, "no medication name in %q", raw)
	}

	q := domain.MedicationQuery{
		MedicationName: name,
		Dosage:         dosage,
		Location:       location,
	}
	if nearMe {
		q.Location = domain.LocationNearMe
		if client != nil {
			origin := *client
			q.Origin = &origin
		}
	}
	q.Mode = deriveMode(q.Location, raw)
	return q, nil
}

// deriveMode is online when there is no location or the raw text asks for
// online offers; local otherwise.
func deriveMode(location, raw string) domain.SearchMode {
	if location == "" || strings.EqualFold(location, "online") || onlineTokenPattern.MatchString(raw) {
		return domain.ModeOnline
	}
	return domain.ModeLocal
}

// CacheKey derives the cache key for a normalized query. Queries that
// normalize identically share a key. The origin participates only for
// "near me" queries, rounded to about a kilometre.
func CacheKey(category string, q domain.MedicationQuery, extra ...string) string {
	fold := cases.Fold()
	parts := []string{
		category,
		fold.String(strings.TrimSpace(q.MedicationName)),
		fold.String(strings.TrimSpace(q.Dosage)),
		fold.String(strings.TrimSpace(q.Location)),
		string(q.Mode),
	}
	if q.NearMe() && q.Origin != nil {
		parts = append(parts, fmt.Sprintf("%.2f,%.2f", q.Origin.Lat, q.Origin.Lon))
	}
	parts = append(parts, extra...)

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return category + ":" + hex.EncodeToString(sum[:])
}
