package tavily

import (
	"testing"

	"github.com/rxscout/backend/internal/domain"
)

func TestMapResults(t *testing.T) {
	tests := []struct {
		name string
		hits []searchResult
		want []domain.RawResult
	}{
		{
			name: "complete hit",
			hits: []searchResult{
				{Title: " Ibuprofen Prices ", URL: "https://www.goodrx.com/ibuprofen", Content: "CVS $7.99", Score: 0.91},
			},
			want: []domain.RawResult{
				{Title: "Ibuprofen Prices", URL: "https://www.goodrx.com/ibuprofen", Content: "CVS $7.99", SourceDomain: "goodrx.com", Score: 0.91},
			},
		},
		{
			name: "raw content fills empty snippet",
			hits: []searchResult{
				{URL: "https://www.cvs.com/store/1", Content: "  ", RawContent: "<p>CVS Pharmacy</p>"},
			},
			want: []domain.RawResult{
				{URL: "https://www.cvs.com/store/1", Content: "<p>CVS Pharmacy</p>", SourceDomain: "cvs.com"},
			},
		},
		{
			name: "hits without a URL are dropped",
			hits: []searchResult{
				{Title: "no url", Content: "$4.00"},
				{URL: "https://walmart.com/ip/1", Content: "$4.88"},
			},
			want: []domain.RawResult{
				{URL: "https://walmart.com/ip/1", Content: "$4.88", SourceDomain: "walmart.com"},
			},
		},
		{
			name: "no hits",
			hits: nil,
			want: []domain.RawResult{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapResults(tt.hits)
			if len(got) != len(tt.want) {
				t.Fatalf("mapResults() returned %d results, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("mapResults()[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
