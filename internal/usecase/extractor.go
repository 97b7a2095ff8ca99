package usecase

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rxscout/backend/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ExtractorConfig holds the plausibility band for extracted prices and the
// domain table used to recognise discount-card sites.
type ExtractorConfig struct {
	MinPrice    decimal.Decimal
	MaxPrice    decimal.Decimal
	DomainTypes map[string]domain.PharmacyType
}

// DefaultExtractorConfig accepts 0.50 through 500.00 inclusive.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		MinPrice:    decimal.RequireFromString("0.50"),
		MaxPrice:    decimal.RequireFromString("500.00"),
		DomainTypes: DefaultDomainTypes(),
	}
}

// Extractor turns raw search results into price and pharmacy records.
type Extractor struct {
	cfg ExtractorConfig
}

// NewExtractor creates an extractor. A zero band falls back to the default.
func NewExtractor(cfg ExtractorConfig) *Extractor {
	def := DefaultExtractorConfig()
	if cfg.MinPrice.IsZero() && cfg.MaxPrice.IsZero() {
		cfg.MinPrice, cfg.MaxPrice = def.MinPrice, def.MaxPrice
	}
	if cfg.DomainTypes == nil {
		cfg.DomainTypes = def.DomainTypes
	}
	return &Extractor{cfg: cfg}
}

var (
	htmlTagPattern = regexp.MustCompile(`<[a-zA-Z/!][^>]*>`)

	addressPattern = regexp.MustCompile(`\b\d{1,6}\s+(?:[A-Z0-9][\w.'-]*\s+){0,5}(?:St|Street|Ave|Avenue|Blvd|Boulevard|Rd|Road|Dr|Drive|Ln|Lane|Way|Pkwy|Parkway|Hwy|Highway|Ct|Court|Pl|Place|Sq|Square|Ter|Terrace|Cir|Circle)\b\.?(?:,?\s+(?:Suite|Ste|Unit|#)\s*[\w-]+)?(?:,\s*[A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,3})?(?:,\s*[A-Z]{2}\b)?(?:\s+\d{5}(?:-\d{4})?)?`)
	phonePattern   = regexp.MustCompile(`(?:\+?1[\s.-]?)?(?:\(\d{3}\)|\d{3})[\s.-]?\d{3}[\s.-]\d{4}\b`)
	hoursPattern   = regexp.MustCompile(`(?i)\b(?:open\s+24\s+hours|24/7|(?:mon|tue|wed|thu|fri|sat|sun)[a-z]*\.?(?:\s*[-–]\s*(?:mon|tue|wed|thu|fri|sat|sun)[a-z]*\.?)?:?\s*\d{1,2}(?::\d{2})?\s*[ap]\.?m\.?\s*[-–]\s*\d{1,2}(?::\d{2})?\s*[ap]\.?m\.?)`)

	genericPharmacyPattern = regexp.MustCompile(`\b((?:[A-Z][A-Za-z'&.-]*\s+){1,3}(?:Pharmacy|Drugs|Drug Store|Apothecary))\b`)
)

// genericNameStopWords are dropped from the front of capitalised phrases
// that end in "Pharmacy".
var genericNameStopWords = map[string]bool{
	"online": true, "the": true, "best": true, "discount": true, "local": true,
	"find": true, "your": true, "mail": true, "order": true, "cheap": true,
	"compare": true, "nearby": true, "retail": true, "generic": true,
	"visit": true, "call": true, "try": true, "shop": true, "our": true,
}

// Extract scans every result. Results are treated as unordered; output
// follows input order. A result without a recognisable pharmacy name still
// contributes its prices.
func (e *Extractor) Extract(results []domain.RawResult) ([]domain.PriceRecord, []domain.PharmacyRecord) {
	var (
		prices     []domain.PriceRecord
		pharmacies []domain.PharmacyRecord
	)
	for _, r := range results {
		text := resultText(r)
		sourceDomain := r.SourceDomain
		if sourceDomain == "" {
			sourceDomain = domain.DomainOf(r.URL)
		}
		domainChain, ownDomain := chainForDomain(sourceDomain)

		matches := matchPrices(text, e.cfg.MinPrice, e.cfg.MaxPrice)
		recordStart := len(prices)
		for _, m := range matches {
			pharmacy := ""
			if c, ok := chainByName(m.Pharmacy); ok {
				pharmacy = c.Name
			} else if ownDomain {
				pharmacy = domainChain.Name
			}
			prices = append(prices, domain.PriceRecord{
				Amount:         m.Amount,
				Currency:       domain.CurrencyUSD,
				SourceDomain:   sourceDomain,
				Pharmacy:       pharmacy,
				RawMatchedText: m.Text,
				PatternID:      m.PatternID,
			})
		}

		rec, ok := e.pharmacyFrom(text, r, sourceDomain, domainChain, ownDomain)
		if !ok {
			continue
		}
		rec.Price = lowestPriceFor(rec.Name, prices[recordStart:])
		pharmacies = append(pharmacies, rec)
	}

	zap.L().Debug("extraction finished",
		zap.Int("results", len(results)),
		zap.Int("prices", len(prices)),
		zap.Int("pharmacies", len(pharmacies)),
	)
	return prices, pharmacies
}

// pharmacyFrom applies the name, address, phone and hours heuristics.
func (e *Extractor) pharmacyFrom(text string, r domain.RawResult, sourceDomain string, domainChain Chain, ownDomain bool) (domain.PharmacyRecord, bool) {
	discountSite := ownDomain && typeForDomain(e.cfg.DomainTypes, domainChain.Domain) == domain.PharmacyDiscount
	name, website, fromOwnDomain := pharmacyName(text, sourceDomain, domainChain, ownDomain, discountSite)
	if name == "" {
		return domain.PharmacyRecord{}, false
	}

	rec := domain.PharmacyRecord{
		Name:    name,
		Type:    domain.PharmacyUnknown,
		Website: website,
		Address: strings.TrimSpace(addressPattern.FindString(text)),
		Phone:   strings.TrimSpace(phonePattern.FindString(text)),
		Hours:   strings.TrimSpace(hoursPattern.FindString(text)),
	}
	switch {
	case fromOwnDomain && rec.Address != "":
		rec.Accuracy = domain.AccuracyVerified
	case rec.Address != "" || rec.Phone != "":
		rec.Accuracy = domain.AccuracyEstimated
	default:
		rec.Accuracy = domain.AccuracySample
	}
	return rec, true
}

// pharmacyName resolves the store a result describes. A chain's own domain
// wins unless it is a discount-card site, which lists other pharmacies.
func pharmacyName(text, sourceDomain string, domainChain Chain, ownDomain, discountSite bool) (name, website string, fromOwnDomain bool) {
	if ownDomain && !discountSite {
		return domainChain.Name, "https://" + domainChain.Domain, true
	}
	if m := chainMention.FindString(text); m != "" {
		if c, ok := chainByName(m); ok && !(discountSite && c.Name == domainChain.Name) {
			return c.Name, "https://" + c.Domain, false
		}
	}
	for _, m := range genericPharmacyPattern.FindAllStringSubmatch(text, -1) {
		words := strings.Fields(m[1])
		for len(words) > 1 && genericNameStopWords[strings.ToLower(words[0])] {
			words = words[1:]
		}
		if len(words) < 2 {
			continue
		}
		candidate := strings.Join(words, " ")
		website = ""
		if sourceDomain != "" {
			website = "https://" + sourceDomain
		}
		return candidate, website, false
	}
	if discountSite {
		return domainChain.Name, "https://" + domainChain.Domain, false
	}
	return "", "", false
}

// lowestPriceFor picks the cheapest record attributed to name.
func lowestPriceFor(name string, prices []domain.PriceRecord) *domain.PriceRecord {
	var best *domain.PriceRecord
	for i := range prices {
		if prices[i].Pharmacy != name {
			continue
		}
		if best == nil || prices[i].Amount.LessThan(best.Amount) {
			p := prices[i]
			best = &p
		}
	}
	return best
}

// resultText is the title and content of r with any markup reduced to text.
func resultText(r domain.RawResult) string {
	content := r.Content
	if htmlTagPattern.MatchString(content) {
		content = htmlToText(content)
	}
	text := strings.TrimSpace(r.Title)
	if content != "" {
		if text != "" {
			text += "\n"
		}
		text += content
	}
	return text
}

// htmlToText joins the text nodes of an HTML fragment in document order.
func htmlToText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	doc.Find("script,style,noscript").Remove()

	var parts []string
	var walk func(s *goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				if t := strings.TrimSpace(c.Text()); t != "" {
					parts = append(parts, t)
				}
				return
			}
			walk(c)
		})
	}
	walk(doc.Find("body"))
	return strings.Join(parts, " ")
}
