package tavily

import (
	"strings"

	"github.com/rxscout/backend/internal/domain"
)

// searchBody is the request body for POST /search.
type searchBody struct {
	Query             string   `json:"query"`
	SearchDepth       string   `json:"search_depth"`
	MaxResults        int      `json:"max_results"`
	IncludeDomains    []string `json:"include_domains,omitempty"`
	IncludeAnswer     bool     `json:"include_answer"`
	IncludeRawContent bool     `json:"include_raw_content"`
}

// searchResponse is the response from POST /search.
type searchResponse struct {
	Query        string         `json:"query"`
	Results      []searchResult `json:"results"`
	ResponseTime float64        `json:"response_time"`
}

type searchResult struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Content    string  `json:"content"`
	RawContent string  `json:"raw_content"`
	Score      float64 `json:"score"`
}

func newSearchBody(req domain.SearchRequest) searchBody {
	depth := req.Depth
	if depth == "" {
		depth = domain.DepthBasic
	}
	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	return searchBody{
		Query:          req.QueryText,
		SearchDepth:    string(depth),
		MaxResults:     maxResults,
		IncludeDomains: req.AllowedDomains,
	}
}

// mapResults converts Tavily hits to RawResults, dropping hits without a URL.
func mapResults(hits []searchResult) []domain.RawResult {
	out := make([]domain.RawResult, 0, len(hits))
	for _, h := range hits {
		if strings.TrimSpace(h.URL) == "" {
			continue
		}
		content := h.Content
		if strings.TrimSpace(content) == "" {
			content = h.RawContent
		}
		out = append(out, domain.RawResult{
			Title:        strings.TrimSpace(h.Title),
			URL:          h.URL,
			Content:      content,
			SourceDomain: domain.DomainOf(h.URL),
			Score:        h.Score,
		})
	}
	return out
}
