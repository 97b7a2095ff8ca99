package usecase

import (
	"regexp"
	"sort"
	"strings"

	"github.com/rxscout/backend/internal/domain"
	"github.com/shopspring/decimal"
)

// amountExpr matches "4", "4.88", "1,299.00".
const amountExpr = `(\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)`

// rangeTail is the optional upper bound after a prefixed or promotional
// price. It belongs to the same span so the bound is never counted on its own.
const rangeTail = `(?:\s*(?:-|–|—|to)\s*\$?\s*(?:\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?))?`

// priceMatcher is one entry in the ordered matcher list. extract receives the
// submatches of Pattern and returns the amount text and, when the pattern names
// one, the pharmacy.
type priceMatcher struct {
	ID       domain.PatternID
	Priority int
	Pattern  *regexp.Regexp
	extract  func(m []string) (amount, pharmacy string)
}

// chainAlternation is every way a chain is mentioned in text, longest first.
func chainAlternation() string {
	var names []string
	for _, c := range knownChains {
		names = append(names, c.mentions()...)
	}
	sort.SliceStable(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	for i, n := range names {
		names[i] = strings.ReplaceAll(regexp.QuoteMeta(n), " ", `\s+`)
	}
	return strings.Join(names, "|")
}

var chainMention = regexp.MustCompile(`(?i)\b(` + chainAlternation() + `)\b`)

// priceMatchers are applied in Priority order; a span claimed by an earlier
// matcher is never matched again.
var priceMatchers = []priceMatcher{
	{
		ID:       domain.PatternPharmacyPrefixed,
		Priority: 1,
		Pattern:  regexp.MustCompile(`(?i)\b(` + chainAlternation() + `)(?:'s)?(?:\s+pharmacy)?(?:\s+(?:for|price|is|at)){0,2}\s*[:\-–]?\s*\$\s*` + amountExpr + rangeTail),
		extract:  func(m []string) (string, string) { return m[2], m[1] },
	},
	{
		ID:       domain.PatternPromotional,
		Priority: 2,
		Pattern:  regexp.MustCompile(`(?i)\b(?:as\s+low\s+as|starting\s+(?:at|from)|prices?\s+from|for\s+as\s+little\s+as|low\s+as)\s*:?\s*\$\s*` + amountExpr + rangeTail),
		extract:  func(m []string) (string, string) { return m[1], "" },
	},
	{
		ID:       domain.PatternRange,
		Priority: 3,
		Pattern:  regexp.MustCompile(`\$\s*` + amountExpr + `\s*(?:-|–|—|to)\s*\$?\s*` + amountExpr),
		extract:  func(m []string) (string, string) { return m[1], "" },
	},
	{
		ID:       domain.PatternStandard,
		Priority: 4,
		Pattern:  regexp.MustCompile(`(?i)\$\s*` + amountExpr + `|\b` + amountExpr + `\s*(?:dollars|usd)\b`),
		extract: func(m []string) (string, string) {
			if m[1] != "" {
				return m[1], ""
			}
			return m[2], ""
		},
	},
	{
		ID:       domain.PatternContext,
		Priority: 5,
		Pattern:  regexp.MustCompile(`(?i)\b(?:price|cost)s?\s*(?:is|of|from|:|=)?\s*(?:usd\s*)?(\d{1,3}(?:,\d{3})*\.\d{2})\b`),
		extract:  func(m []string) (string, string) { return m[1], "" },
	},
}

func init() {
	sort.SliceStable(priceMatchers, func(i, j int) bool { return priceMatchers[i].Priority < priceMatchers[j].Priority })
}

func matcherByID(id domain.PatternID) (priceMatcher, bool) {
	for _, m := range priceMatchers {
		if m.ID == id {
			return m, true
		}
	}
	return priceMatcher{}, false
}

// parseAmount converts matched amount text to a two-place decimal.
func parseAmount(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return decimal.Zero, false
	}
	return d.Round(2), true
}

// ReparseAmount re-runs matcher id against text and returns the first amount
// it yields. Used to audit stored records.
func ReparseAmount(id domain.PatternID, text string) (decimal.Decimal, bool) {
	m, ok := matcherByID(id)
	if !ok {
		return decimal.Zero, false
	}
	sub := m.Pattern.FindStringSubmatch(text)
	if sub == nil {
		return decimal.Zero, false
	}
	amount, _ := m.extract(sub)
	return parseAmount(amount)
}

// priceMatch is a claimed span and what it yielded.
type priceMatch struct {
	PatternID domain.PatternID
	Text      string
	Amount    decimal.Decimal
	Pharmacy  string
	Start     int
	End       int
}

// matchPrices runs the ordered matchers over text. Matches whose amount falls
// outside [min, max] still claim their span but are not returned.
func matchPrices(text string, min, max decimal.Decimal) []priceMatch {
	var claimed [][2]int
	overlaps := func(s, e int) bool {
		for _, c := range claimed {
			if s < c[1] && c[0] < e {
				return true
			}
		}
		return false
	}

	var out []priceMatch
	for _, pm := range priceMatchers {
		for _, idx := range pm.Pattern.FindAllStringSubmatchIndex(text, -1) {
			start, end := idx[0], idx[1]
			if overlaps(start, end) {
				continue
			}
			claimed = append(claimed, [2]int{start, end})

			sub := make([]string, len(idx)/2)
			for i := range sub {
				if idx[2*i] >= 0 {
					sub[i] = text[idx[2*i]:idx[2*i+1]]
				}
			}
			amountText, pharmacy := pm.extract(sub)
			amount, ok := parseAmount(amountText)
			if !ok || amount.LessThan(min) || amount.GreaterThan(max) {
				continue
			}
			out = append(out, priceMatch{
				PatternID: pm.ID,
				Text:      sub[0],
				Amount:    amount,
				Pharmacy:  pharmacy,
				Start:     start,
				End:       end,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
