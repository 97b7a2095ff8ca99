package usecase

import (
	"strings"

	"github.com/rxscout/backend/internal/domain"
)

// Chain is a pharmacy brand recognisable by name or home domain. A Strict
// chain's name is also an everyday word, so text only names it when followed
// by "pharmacy".
type Chain struct {
	Name    string
	Domain  string
	Aliases []string
	Strict  bool
}

// mentions lists the forms that identify c in free text.
func (c Chain) mentions() []string {
	names := append([]string{c.Name}, c.Aliases...)
	if !c.Strict {
		return names
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, n+" pharmacy")
	}
	return out
}

// knownChains lists the chains the extractor attributes prices and stores to.
var knownChains = []Chain{
	{Name: "Walmart", Domain: "walmart.com", Aliases: []string{"walmart pharmacy"}},
	{Name: "CVS", Domain: "cvs.com", Aliases: []string{"cvs pharmacy", "cvs/pharmacy"}},
	{Name: "Walgreens", Domain: "walgreens.com"},
	{Name: "Rite Aid", Domain: "riteaid.com", Aliases: []string{"riteaid"}},
	{Name: "Kroger", Domain: "kroger.com"},
	{Name: "Costco", Domain: "costco.com"},
	{Name: "Target", Domain: "target.com", Strict: true},
	{Name: "Publix", Domain: "publix.com"},
	{Name: "Safeway", Domain: "safeway.com"},
	{Name: "Sam's Club", Domain: "samsclub.com", Aliases: []string{"sams club"}},
	{Name: "H-E-B", Domain: "heb.com", Aliases: []string{"heb"}},
	{Name: "Meijer", Domain: "meijer.com"},
	{Name: "Albertsons", Domain: "albertsons.com"},
	{Name: "Amazon Pharmacy", Domain: "amazon.com", Aliases: []string{"amazon"}},
	{Name: "Mark Cuban Cost Plus Drugs", Domain: "costplusdrugs.com", Aliases: []string{"cost plus drugs", "costplus"}},
	{Name: "HealthWarehouse", Domain: "healthwarehouse.com"},
	{Name: "Blink Health", Domain: "blinkhealth.com"},
	{Name: "Capsule", Domain: "capsule.com", Strict: true},
	{Name: "Alto Pharmacy", Domain: "alto.com"},
	{Name: "GoodRx", Domain: "goodrx.com"},
	{Name: "WellRx", Domain: "wellrx.com"},
	{Name: "SingleCare", Domain: "singlecare.com"},
	{Name: "RxSaver", Domain: "rxsaver.com"},
	{Name: "NeedyMeds", Domain: "needymeds.org"},
	{Name: "BuzzRx", Domain: "buzzrx.com"},
}

// DefaultDomainTypes maps home domains to pharmacy types.
func DefaultDomainTypes() map[string]domain.PharmacyType {
	m := make(map[string]domain.PharmacyType)
	for _, d := range []string{"walmart.com", "cvs.com", "walgreens.com", "riteaid.com", "kroger.com",
		"costco.com", "target.com", "publix.com", "safeway.com", "samsclub.com", "heb.com", "meijer.com", "albertsons.com"} {
		m[d] = domain.PharmacyRetail
	}
	for _, d := range []string{"amazon.com", "costplusdrugs.com", "healthwarehouse.com", "blinkhealth.com", "capsule.com", "alto.com"} {
		m[d] = domain.PharmacyOnline
	}
	for _, d := range []string{"goodrx.com", "wellrx.com", "singlecare.com", "rxsaver.com", "needymeds.org", "buzzrx.com"} {
		m[d] = domain.PharmacyDiscount
	}
	return m
}

// DefaultAllowedDomains is the search allowlist for price and pharmacy queries.
func DefaultAllowedDomains() []string {
	return []string{
		"goodrx.com", "walgreens.com", "cvs.com", "costco.com", "walmart.com",
		"pharmacychecker.com", "wellrx.com", "drugs.com", "rxsaver.com", "singlecare.com",
		"needymeds.org", "riteaid.com", "kroger.com", "amazon.com", "costplusdrugs.com", "blinkhealth.com",
	}
}

// DefaultInfoDomains is the allowlist for medication information queries.
func DefaultInfoDomains() []string {
	return []string{"drugs.com", "medlineplus.gov", "mayoclinic.org", "webmd.com", "nih.gov"}
}

// chainForDomain returns the chain whose home domain owns d.
func chainForDomain(d string) (Chain, bool) {
	for _, c := range knownChains {
		if domain.DomainMatches(d, c.Domain) {
			return c, true
		}
	}
	return Chain{}, false
}

// chainByName resolves a chain from a name or alias, ignoring case and punctuation.
func chainByName(name string) (Chain, bool) {
	key := normalizeName(name)
	if key == "" {
		return Chain{}, false
	}
	for _, c := range knownChains {
		if normalizeName(c.Name) == key {
			return c, true
		}
		for _, a := range c.Aliases {
			if normalizeName(a) == key {
				return c, true
			}
		}
		for _, m := range c.mentions() {
			if normalizeName(m) == key {
				return c, true
			}
		}
	}
	return Chain{}, false
}

// typeForDomain classifies d using table, matching subdomains.
func typeForDomain(table map[string]domain.PharmacyType, d string) domain.PharmacyType {
	if d == "" {
		return domain.PharmacyUnknown
	}
	if t, ok := table[d]; ok {
		return t
	}
	for base, t := range table {
		if domain.DomainMatches(d, base) {
			return t
		}
	}
	return domain.PharmacyUnknown
}

// normalizeName lower-cases s, drops punctuation and collapses whitespace.
func normalizeName(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case r == ' ' || r == '\t' || r == '\n' || r == '/' || r == '-':
			space = true
		}
	}
	return b.String()
}
