package pipeline

import (
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
)

func testProducts() []catalog.Product {
	return []catalog.Product{
		{ID: "p3", Name: "Trail Boot", Category: "footwear", Price: 120, Seller: "acme",
			Ratings: []catalog.Rating{{UserID: "u1", Rating: 4}, {UserID: "u2", Rating: 5}}},
		{ID: "p1", Name: "Red Shoe", Category: "footwear", Price: 50, Seller: "acme",
			Images: []string{"a.jpg"}},
		{ID: "p2", Name: "Blue Shoe", Category: "footwear", Price: 50, Seller: "shoeco",
			Ratings: []catalog.Rating{{UserID: "u1", Rating: 2}}},
		{ID: "p4", Name: "Desk Lamp", Category: "home", Price: 30, Seller: "lampco",
			Ratings: []catalog.Rating{{UserID: "u3", Rating: 3}}},
	}
}

func run(t *testing.T, q Query) []catalog.Summary {
	t.Helper()
	p, err := Build(q)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	out, err := p.Run(testProducts())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out
}

func ids(s []catalog.Summary) []catalog.ProductID {
	out := make([]catalog.ProductID, len(s))
	for i := range s {
		out[i] = s[i].ID
	}
	return out
}

func equalIDs(a, b []catalog.ProductID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestResolveSort(t *testing.T) {
	tests := []struct {
		raw      string
		hasQuery bool
		want     SortKey
	}{
		{"high-to-low", false, SortPriceDesc},
		{"low-to-high", true, SortPriceAsc},
		{"ratings", false, SortRatings},
		{"relevance", true, SortRelevance},
		{"relevance", false, SortDefault},
		{"High-To-Low", false, SortDefault},
		{"", false, SortDefault},
		{"price", true, SortDefault},
	}
	for _, tt := range tests {
		if got := ResolveSort(tt.raw, tt.hasQuery); got != tt.want {
			t.Errorf("ResolveSort(%q, %v) = %q, want %q", tt.raw, tt.hasQuery, got, tt.want)
		}
	}
}

func TestAverageRatingDerivation(t *testing.T) {
	out := run(t, Query{Filter: catalog.Filter{Category: "footwear"}, Limit: 10})
	byID := map[catalog.ProductID]catalog.Summary{}
	for _, s := range out {
		byID[s.ID] = s
	}
	if got := byID["p3"].AverageRating; got == nil || *got != 4.5 {
		t.Errorf("p3 average = %v, want 4.5", got)
	}
	if got := byID["p1"].AverageRating; got != nil {
		t.Errorf("unrated p1 average = %v, want nil", *got)
	}
	if len(byID["p1"].Images) != 1 || byID["p1"].Seller != "acme" {
		t.Errorf("first-seen fields lost: %+v", byID["p1"])
	}
	if len(out) != 3 {
		t.Errorf("unrated products must survive unwind, got %d rows", len(out))
	}
}

func TestSortOrders(t *testing.T) {
	tests := []struct {
		sort SortKey
		want []catalog.ProductID
	}{
		{SortDefault, []catalog.ProductID{"p1", "p2", "p3", "p4"}},
		{SortPriceDesc, []catalog.ProductID{"p3", "p1", "p2", "p4"}},
		{SortPriceAsc, []catalog.ProductID{"p4", "p1", "p2", "p3"}},
		{SortRatings, []catalog.ProductID{"p3", "p4", "p2", "p1"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.sort), func(t *testing.T) {
			got := ids(run(t, Query{Sort: tt.sort, Limit: 10}))
			if !equalIDs(got, tt.want) {
				t.Errorf("order = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSortIsDeterministicUnderPermutation(t *testing.T) {
	p, err := Build(Query{Sort: SortPriceAsc, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	products := testProducts()
	first, _ := p.Run(products)
	reversed := make([]catalog.Product, len(products))
	for i := range products {
		reversed[len(products)-1-i] = products[i]
	}
	second, _ := p.Run(reversed)
	if !equalIDs(ids(first), ids(second)) {
		t.Errorf("order depends on input order: %v vs %v", ids(first), ids(second))
	}
}

func TestRelevanceAttachAndSort(t *testing.T) {
	scores := catalog.RelevanceMap{"p1": 90, "p2": 100}
	out := run(t, Query{
		Filter: catalog.Filter{}.WithIDs(scores.IDs()),
		Scores: scores,
		Sort:   SortRelevance,
		Limit:  10,
	})
	if !equalIDs(ids(out), []catalog.ProductID{"p2", "p1"}) {
		t.Fatalf("order = %v", ids(out))
	}
	if *out[0].RelevanceScore != 100 {
		t.Errorf("score = %v", *out[0].RelevanceScore)
	}

	out = run(t, Query{Sort: SortRelevance, Scores: scores, Limit: 10})
	if out[2].RelevanceScore != nil || out[3].RelevanceScore != nil {
		t.Error("unscored products must have nil relevance")
	}
	if out[0].ID != "p2" || out[1].ID != "p1" {
		t.Errorf("null scores must sort last, got %v", ids(out))
	}
}

func TestSkipAndLimit(t *testing.T) {
	got := ids(run(t, Query{Skip: 1, Limit: 2}))
	if !equalIDs(got, []catalog.ProductID{"p2", "p3"}) {
		t.Errorf("page = %v", got)
	}
	if got := run(t, Query{Skip: 50, Limit: 2}); len(got) != 0 {
		t.Errorf("skip past end = %v, want empty", ids(got))
	}
}

func TestBuildRejectsBadBounds(t *testing.T) {
	if _, err := Build(Query{Skip: -1, Limit: 1}); err == nil {
		t.Error("negative skip accepted")
	}
	if _, err := Build(Query{Limit: 0}); err == nil {
		t.Error("zero limit accepted")
	}
}

func TestRunRejectsMalformedPipeline(t *testing.T) {
	p := Pipeline{Stages: []Stage{Sort{Fields: SortDefault.Fields()}}}
	if _, err := p.Run(testProducts()); !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}
