package handler

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/auth/token"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/history"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/search"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/search/recommend"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/search/relevance"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/search/sample"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/store/memory"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/config"
)

type fixture struct {
	mux     *http.ServeMux
	history *history.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New(
		catalog.Product{ID: "p1", Name: "Red Shoe", Category: "footwear", Tags: []string{"shoe", "red"}, Price: 50},
		catalog.Product{ID: "p2", Name: "Blue Shoe", Category: "footwear", Tags: []string{"shoe", "blue"}, Price: 55},
		catalog.Product{ID: "p3", Name: "Trail Shoe", Category: "footwear", Tags: []string{"shoe", "trail"}, Price: 80},
		catalog.Product{ID: "p4", Name: "Kids Shoe", Category: "footwear", Tags: []string{"kids", "shoe"}, Price: 30},
		catalog.Product{ID: "p5", Name: "Court Shoe", Category: "footwear", Tags: []string{"shoe"}, Price: 90},
		catalog.Product{ID: "p6", Name: "Desk Lamp", Category: "home", Tags: []string{"lamp", "desk"}, Price: 20},
	)
	sampler := sample.NewWithSource(rand.NewPCG(3, 4))
	builder := relevance.NewBuilder(store, sampler, relevance.Config{Threshold: 85, SampleSize: 4, Workers: 2}, nil)
	rec := recommend.New(store, sampler, recommend.Config{
		Threshold: 80, MaxIndex: 1, MinCandidates: 4, SampleSize: 4, Workers: 2,
	}, nil)
	svc := search.NewService(builder, store, rec, config.SearchConfig{DefaultPerPage: 2, MaxPerPage: 50}, nil)
	hist := history.NewService(store.History(), store.Orders(), store, rec,
		config.HistoryConfig{SearchWeight: 5, BrowseWeight: 1, TopTerms: 5}, nil)

	mux := http.NewServeMux()
	New(svc, hist).Register(mux)
	return &fixture{mux: mux, history: hist}
}

func (f *fixture) do(t *testing.T, method, target, body, userID string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if userID != "" {
		req.Header.Set(token.UserIDHeader, userID)
	}
	rr := httptest.NewRecorder()
	f.mux.ServeHTTP(rr, req)
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: decoding %q: %v", method, target, rr.Body.String(), err)
	}
	return rr, out
}

func TestProductsListing(t *testing.T) {
	f := newFixture(t)
	rr, body := f.do(t, "GET", "/api/v1/products?category=footwear&sortBy=high-to-low", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %v", rr.Code, body)
	}
	products := body["products"].([]any)
	if len(products) != 2 {
		t.Fatalf("got %d products, want the default page size 2", len(products))
	}
	if id := products[0].(map[string]any)["_id"]; id != "p5" {
		t.Errorf("first product = %v, want p5", id)
	}
	if body["length"].(float64) != 5 || body["nextPage"].(float64) != 2 {
		t.Errorf("length=%v nextPage=%v", body["length"], body["nextPage"])
	}
}

func TestProductsErrors(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		target string
		status int
	}{
		{"unknown category", "/api/v1/products?category=garden", http.StatusNotFound},
		{"page not a number", "/api/v1/products?page=abc", http.StatusBadRequest},
		{"page zero", "/api/v1/products?page=0", http.StatusBadRequest},
		{"negative perPage", "/api/v1/products?perPage=-1", http.StatusBadRequest},
		{"bad random", "/api/v1/products?search=shoe&random=maybe", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, body := f.do(t, "GET", tt.target, "", "")
			if rr.Code != tt.status {
				t.Errorf("status = %d, want %d (%v)", rr.Code, tt.status, body)
			}
			if body["error"] == "" {
				t.Error("missing error message")
			}
		})
	}
}

func TestRecommend(t *testing.T) {
	f := newFixture(t)
	rr, body := f.do(t, "POST", "/api/v1/products/recommend", `{"tags":["shoe"]}`, "")
	if rr.Code != http.StatusOK || body["status"] != "success" {
		t.Fatalf("status %d body %v", rr.Code, body)
	}
	if n := len(body["products"].([]any)); n != 4 {
		t.Errorf("got %d products, want 4", n)
	}

	rr, body = f.do(t, "POST", "/api/v1/products/recommend", `{"tags":["lamp"]}`, "")
	if rr.Code != http.StatusOK || body["status"] != "failure" {
		t.Fatalf("status %d body %v", rr.Code, body)
	}
	if len(body["products"].([]any)) != 0 || body["details"] == "" {
		t.Errorf("body = %v", body)
	}

	rr, _ = f.do(t, "POST", "/api/v1/products/recommend", `{"tags":`, "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d", rr.Code)
	}
}

func TestHistoryRecommendations(t *testing.T) {
	f := newFixture(t)
	rr, body := f.do(t, "GET", "/api/v1/recommendations/history", "", "u9")
	if rr.Code != http.StatusOK || body["status"] != "failure" || body["details"] != history.DetailNoHistory {
		t.Fatalf("no history: status %d body %v", rr.Code, body)
	}

	if err := f.history.Record(context.Background(), history.KindSearch, "u9", "shoe"); err != nil {
		t.Fatal(err)
	}
	rr, body = f.do(t, "GET", "/api/v1/recommendations/history", "", "u9")
	if rr.Code != http.StatusOK || body["status"] != "success" {
		t.Fatalf("with history: status %d body %v", rr.Code, body)
	}
	if n := len(body["products"].([]any)); n != 4 {
		t.Errorf("got %d products, want 4", n)
	}
}

func TestOrderHistoryTags(t *testing.T) {
	f := newFixture(t)
	rr, _ := f.do(t, "GET", "/api/v1/user-history/order-history-tags", "", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing user status = %d, want 400", rr.Code)
	}
	rr, body := f.do(t, "GET", "/api/v1/user-history/order-history-tags?user_id=u1", "", "")
	if rr.Code != http.StatusOK || body["status"] != "failure" || body["details"] != history.DetailNoHistory {
		t.Errorf("status %d body %v", rr.Code, body)
	}
}

func TestCacheRoutesWithoutCache(t *testing.T) {
	f := newFixture(t)
	rr, body := f.do(t, "GET", "/api/v1/cache/stats", "", "")
	if rr.Code != http.StatusOK || body["status"] != "disabled" {
		t.Errorf("stats: %d %v", rr.Code, body)
	}
	rr, _ = f.do(t, "POST", "/api/v1/cache/invalidate", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("invalidate status = %d, want 503", rr.Code)
	}
}
