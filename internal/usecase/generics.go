package usecase

import (
	"regexp"
	"sort"
	"strings"

	"github.com/rxscout/backend/internal/domain"
	"github.com/shopspring/decimal"
)

// brandGenerics maps brand names (lower case) to their generic ingredient.
var brandGenerics = map[string]string{
	"advil":      "ibuprofen",
	"motrin":     "ibuprofen",
	"aleve":      "naproxen",
	"tylenol":    "acetaminophen",
	"lipitor":    "atorvastatin",
	"zocor":      "simvastatin",
	"crestor":    "rosuvastatin",
	"pravachol":  "pravastatin",
	"glucophage": "metformin",
	"glucotrol":  "glipizide",
	"norvasc":    "amlodipine",
	"zestril":    "lisinopril",
	"prinivil":   "lisinopril",
	"cozaar":     "losartan",
	"toprol xl":  "metoprolol",
	"lopressor":  "metoprolol",
	"lasix":      "furosemide",
	"coumadin":   "warfarin",
	"plavix":     "clopidogrel",
	"synthroid":  "levothyroxine",
	"prilosec":   "omeprazole",
	"nexium":     "esomeprazole",
	"protonix":   "pantoprazole",
	"pepcid":     "famotidine",
	"zoloft":     "sertraline",
	"lexapro":    "escitalopram",
	"prozac":     "fluoxetine",
	"wellbutrin": "bupropion",
	"xanax":      "alprazolam",
	"ambien":     "zolpidem",
	"neurontin":  "gabapentin",
	"singulair":  "montelukast",
	"flonase":    "fluticasone",
	"claritin":   "loratadine",
	"zyrtec":     "cetirizine",
	"amoxil":     "amoxicillin",
	"viagra":     "sildenafil",
	"cialis":     "tadalafil",
}

// genericOf returns the table entry for a brand name.
func genericOf(brand string) (string, bool) {
	g, ok := brandGenerics[strings.ToLower(strings.Join(strings.Fields(brand), " "))]
	return g, ok
}

var genericMentionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bgeneric\s+(?:name|version|form|equivalent)\s*(?:of\s+[\w-]+\s*)?(?:is|:)\s*([a-z][a-z-]{3,})`),
	regexp.MustCompile(`(?i)\b([a-z][a-z-]{3,})\s*\(generic\)`),
	regexp.MustCompile(`(?i)\bgeneric\s+([a-z][a-z-]{3,})\b`),
}

// notGenericNames rules out words the mention patterns pick up that are not
// ingredients.
var notGenericNames = map[string]bool{
	"name": true, "version": true, "versions": true, "form": true, "drug": true, "drugs": true,
	"medication": true, "medications": true, "brand": true, "available": true, "price": true,
	"prices": true, "equivalent": true, "alternative": true, "alternatives": true, "option": true,
	"options": true, "medicine": true, "pharmacy": true, "cost": true, "costs": true, "coupon": true,
}

// mineGenerics collects candidate generic names for brand from result texts,
// in order of first appearance.
func mineGenerics(brand string, texts []string) []string {
	brandKey := strings.ToLower(strings.TrimSpace(brand))
	parenthetical := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(brandKey) + `\s*\(([a-z][a-z-]{3,})\)`)

	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		name = strings.ToLower(strings.Trim(name, "-"))
		if name == "" || name == brandKey || notGenericNames[name] || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}

	for _, text := range texts {
		for _, m := range parenthetical.FindAllStringSubmatch(text, -1) {
			add(m[1])
		}
		for _, re := range genericMentionPatterns {
			for _, m := range re.FindAllStringSubmatch(text, -1) {
				add(m[1])
			}
		}
	}
	return out
}

// lowestMentionedPrice is the cheapest in-band price in any text that names
// generic.
func lowestMentionedPrice(generic string, texts []string, min, max decimal.Decimal) *decimal.Decimal {
	var best *decimal.Decimal
	for _, text := range texts {
		if !strings.Contains(strings.ToLower(text), generic) {
			continue
		}
		for _, m := range matchPrices(text, min, max) {
			if best == nil || m.Amount.LessThan(*best) {
				amt := m.Amount
				best = &amt
			}
		}
	}
	return best
}

// summarize returns the leading sentences of text, at most limit bytes.
func summarize(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= limit {
		return text
	}
	cut := text[:limit]
	if i := strings.LastIndexAny(cut, ".!?"); i > limit/3 {
		return cut[:i+1]
	}
	if i := strings.LastIndex(cut, " "); i > 0 {
		return cut[:i] + "..."
	}
	return cut
}

// dosagesIn lists distinct strengths such as "10mg" in first-seen order.
func dosagesIn(texts []string, limit int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, text := range texts {
		for _, m := range dosagePattern.FindAllStringSubmatch(text, -1) {
			d := strings.ToLower(m[1] + m[2])
			if seen[d] {
				continue
			}
			seen[d] = true
			out = append(out, d)
			if len(out) == limit {
				return out
			}
		}
	}
	return out
}

// sortAlternatives puts verified entries first, then by lowest price, then name.
func sortAlternatives(alts []domain.GenericAlternative) {
	sort.SliceStable(alts, func(i, j int) bool {
		a, b := alts[i], alts[j]
		if a.Accuracy.Rank() != b.Accuracy.Rank() {
			return a.Accuracy.Rank() > b.Accuracy.Rank()
		}
		switch {
		case a.LowestPrice != nil && b.LowestPrice == nil:
			return true
		case a.LowestPrice == nil && b.LowestPrice != nil:
			return false
		case a.LowestPrice != nil && !a.LowestPrice.Equal(*b.LowestPrice):
			return a.LowestPrice.LessThan(*b.LowestPrice)
		}
		return a.GenericName < b.GenericName
	})
}
