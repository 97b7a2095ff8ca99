package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rxscout/backend/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SearchPurpose selects the phrasing strategies used for a query.
type SearchPurpose string

const (
	PurposePharmacies SearchPurpose = "pharmacies"
	PurposeCompare    SearchPurpose = "compare"
	PurposeGenerics   SearchPurpose = "generics"
	PurposeInfo       SearchPurpose = "info"
)

// SearchEndpoint is the limiter key guarding the search provider.
const SearchEndpoint = "search"

// OrchestratorConfig holds configuration for the search orchestrator
type OrchestratorConfig struct {
	AllowedDomains []string
	InfoDomains    []string
	DomainTypes    map[string]domain.PharmacyType
	MaxConcurrency int
	MaxResults     int
	CallTimeout    time.Duration
	RetryBackoff   time.Duration
}

// SearchOutcome is what one orchestrated search gathered. Partial results are
// normal; RateLimited and Failed describe what is missing.
type SearchOutcome struct {
	Results     []domain.RawResult
	RateLimited bool
	Attempted   int // variants that reached the provider
	Failed      int // variants dropped after their retry
	Variants    int
}

// Complete reports whether every variant ran and succeeded.
func (o SearchOutcome) Complete() bool {
	return !o.RateLimited && o.Failed == 0
}

// SearchOrchestrator fans a query out to the search provider.
type SearchOrchestrator struct {
	provider domain.SearchProvider
	limiter  domain.RateLimiter
	cfg      OrchestratorConfig
	sleep    func(ctx context.Context, d time.Duration) error
}

// admitAll is the limiter used when none is configured.
type admitAll struct{}

func (admitAll) Acquire(string, int) bool { return true }

// NewSearchOrchestrator creates an orchestrator with defaults filled in. A nil
// limiter admits every call.
func NewSearchOrchestrator(provider domain.SearchProvider, limiter domain.RateLimiter, cfg OrchestratorConfig) *SearchOrchestrator {
	if limiter == nil {
		limiter = admitAll{}
	}
	if len(cfg.AllowedDomains) == 0 {
		cfg.AllowedDomains = DefaultAllowedDomains()
	}
	if len(cfg.InfoDomains) == 0 {
		cfg.InfoDomains = DefaultInfoDomains()
	}
	if cfg.DomainTypes == nil {
		cfg.DomainTypes = DefaultDomainTypes()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 3
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 8
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	return &SearchOrchestrator{
		provider: provider,
		limiter:  limiter,
		cfg:      cfg,
		sleep:    sleepCtx,
	}
}

// Variants builds the search requests for q. Compare searches get one variant
// per pharmacy type, scoped to that type's domains.
func (o *SearchOrchestrator) Variants(q domain.MedicationQuery, purpose SearchPurpose, types ...domain.PharmacyType) []domain.SearchRequest {
	med := strings.TrimSpace(q.MedicationName + " " + q.Dosage)
	allowed := o.cfg.AllowedDomains
	req := func(text string, domains []string, depth domain.SearchDepth) domain.SearchRequest {
		return domain.SearchRequest{
			QueryText:      whitespaceRun.ReplaceAllString(strings.TrimSpace(text), " "),
			AllowedDomains: append([]string(nil), domains...),
			Depth:          depth,
			MaxResults:     o.cfg.MaxResults,
		}
	}

	switch purpose {
	case PurposeCompare:
		out := make([]domain.SearchRequest, 0, len(types))
		for _, t := range types {
			domains := o.domainsOfType(t)
			if len(domains) == 0 {
				domains = allowed
			}
			out = append(out, req(fmt.Sprintf("%s price at %s pharmacies", med, t), domains, domain.DepthAdvanced))
		}
		return out

	case PurposeGenerics:
		return []domain.SearchRequest{
			req(fmt.Sprintf("%s generic alternative price", q.MedicationName), allowed, domain.DepthBasic),
			req(fmt.Sprintf("%s generic name", q.MedicationName), o.cfg.InfoDomains, domain.DepthBasic),
		}

	case PurposeInfo:
		return []domain.SearchRequest{
			req(fmt.Sprintf("%s medication uses dosage", q.MedicationName), o.cfg.InfoDomains, domain.DepthBasic),
			req(fmt.Sprintf("%s generic name strengths", q.MedicationName), o.cfg.InfoDomains, domain.DepthBasic),
		}
	}

	if q.Mode == domain.ModeLocal {
		where := q.Location
		if q.NearMe() && q.Origin != nil {
			where = fmt.Sprintf("%.4f,%.4f", q.Origin.Lat, q.Origin.Lon)
		}
		return []domain.SearchRequest{
			req(fmt.Sprintf("%s price %s", med, where), allowed, domain.DepthAdvanced),
			req(fmt.Sprintf("%s pharmacy near %s", med, where), allowed, domain.DepthAdvanced),
			req(fmt.Sprintf("%s cheapest price near %s", med, where), o.domainsOfType(domain.PharmacyDiscount), domain.DepthBasic),
		}
	}
	return []domain.SearchRequest{
		req(fmt.Sprintf("%s price", med), allowed, domain.DepthAdvanced),
		req(fmt.Sprintf("%s online pharmacy price", med), o.domainsOfType(domain.PharmacyOnline, domain.PharmacyDiscount), domain.DepthBasic),
	}
}

func (o *SearchOrchestrator) domainsOfType(types ...domain.PharmacyType) []string {
	var out []string
	for _, d := range o.cfg.AllowedDomains {
		t := typeForDomain(o.cfg.DomainTypes, d)
		for _, want := range types {
			if t == want {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

type variantStatus int

const (
	variantSkipped variantStatus = iota
	variantOK
	variantFailed
	variantDenied
)

// Search runs every variant for q. A limiter denial stops variants that have
// not started yet; provider errors drop only the failing variant.
func (o *SearchOrchestrator) Search(ctx context.Context, q domain.MedicationQuery, purpose SearchPurpose, types ...domain.PharmacyType) SearchOutcome {
	variants := o.Variants(q, purpose, types...)
	results := make([][]domain.RawResult, len(variants))
	statuses := make([]variantStatus, len(variants))
	attempted := make([]bool, len(variants))

	var denied atomic.Bool
	g := new(errgroup.Group)
	g.SetLimit(o.cfg.MaxConcurrency)

	for i, v := range variants {
		if denied.Load() || ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i], statuses[i], attempted[i] = o.runVariant(ctx, v, &denied)
			return nil
		})
	}
	_ = g.Wait()

	out := SearchOutcome{Variants: len(variants), RateLimited: denied.Load()}
	cancelled := ctx.Err() != nil
	seen := make(map[string]struct{})
	for i := range variants {
		if attempted[i] {
			out.Attempted++
		}
		if statuses[i] == variantFailed || (cancelled && statuses[i] == variantSkipped && !out.RateLimited) {
			out.Failed++
		}
		for _, r := range results[i] {
			key := normalizeURL(r.URL)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out.Results = append(out.Results, r)
		}
	}

	zap.L().Debug("search finished",
		zap.String("medication", q.MedicationName),
		zap.String("purpose", string(purpose)),
		zap.Int("variants", out.Variants),
		zap.Int("attempted", out.Attempted),
		zap.Int("failed", out.Failed),
		zap.Bool("rate_limited", out.RateLimited),
		zap.Int("results", len(out.Results)),
	)
	return out
}

// runVariant makes at most two provider calls, each admitted by the limiter.
func (o *SearchOrchestrator) runVariant(ctx context.Context, req domain.SearchRequest, denied *atomic.Bool) ([]domain.RawResult, variantStatus, bool) {
	attempted := false
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			if err := o.sleep(ctx, o.cfg.RetryBackoff); err != nil {
				return nil, variantFailed, attempted
			}
		}
		if denied.Load() {
			if attempted {
				return nil, variantDenied, attempted
			}
			return nil, variantSkipped, attempted
		}
		if ctx.Err() != nil {
			return nil, variantFailed, attempted
		}
		if !o.limiter.Acquire(SearchEndpoint, 1) {
			denied.Store(true)
			zap.L().Warn("search rate limited", zap.String("query", req.QueryText))
			return nil, variantDenied, attempted
		}

		attempted = true
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
		res, err := o.provider.Search(callCtx, req)
		cancel()
		if err == nil {
			return res, variantOK, attempted
		}

		retry := isRetryable(err)
		zap.L().Warn("search variant failed",
			zap.String("query", req.QueryText),
			zap.Int("attempt", attempt+1),
			zap.Bool("will_retry", retry && attempt == 0),
			zap.Error(err),
		)
		if !retry {
			break
		}
	}
	return nil, variantFailed, attempted
}

func isRetryable(err error) bool {
	var perr *domain.ProviderError
	if errors.As(err, &perr) {
		return perr.Retryable()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// normalizeURL keys results for dedup: scheme and "www." dropped, host
// lower-cased, fragment and trailing slash removed.
func normalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	path := strings.TrimRight(u.EscapedPath(), "/")
	key := host + path
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return key
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
