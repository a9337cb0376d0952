package analytics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatsHandlerTop(t *testing.T) {
	agg := NewAggregator()
	for _, q := range []string{"lamp", "lamp", "mug", "shoe"} {
		agg.Record(SearchEvent{Type: EventSearch, Query: q, Total: 1})
	}
	h := NewHandler(agg)

	tests := []struct {
		url     string
		status  int
		queries int
	}{
		{"/api/v1/analytics", http.StatusOK, 3},
		{"/api/v1/analytics?top=1", http.StatusOK, 1},
		{"/api/v1/analytics?top=0", http.StatusBadRequest, 0},
		{"/api/v1/analytics?top=abc", http.StatusBadRequest, 0},
		{"/api/v1/analytics?top=101", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.Stats(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))
		if rec.Code != tt.status {
			t.Errorf("%s: status = %d, want %d", tt.url, rec.Code, tt.status)
			continue
		}
		if tt.status != http.StatusOK {
			continue
		}
		var s AggregatedStats
		if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
			t.Fatalf("%s: decode: %v", tt.url, err)
		}
		if len(s.TopQueries) != tt.queries {
			t.Errorf("%s: %d top queries, want %d", tt.url, len(s.TopQueries), tt.queries)
		}
		if s.TopQueries[0] != (QueryCount{Query: "lamp", Count: 2}) {
			t.Errorf("%s: top query = %+v", tt.url, s.TopQueries[0])
		}
	}
}
