package relevance

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/search/fuzzy"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/search/sample"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeScanner struct {
	entries []catalog.CorpusEntry
	err     error
}

func (f *fakeScanner) ScanCorpus(_ context.Context, filter catalog.Filter) ([]catalog.CorpusEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []catalog.CorpusEntry
	for _, e := range f.entries {
		if filter.Category == "" || e.Category == filter.Category {
			out = append(out, e)
		}
	}
	return out, nil
}

func corpus() []catalog.CorpusEntry {
	return []catalog.CorpusEntry{
		{ID: "p1", Name: "Red Shoe", Category: "footwear", Tags: []string{"shoe", "red"}},
		{ID: "p2", Name: "Desk Lamp", Category: "home", Tags: []string{"lamp", "desk"}},
		{ID: "p3", Name: "Running Shoes", Category: "footwear", Tags: []string{"running", "shoes"}},
		{ID: "p4", Name: "Red Sneaker", Category: "footwear", Tags: []string{"sneaker", "red", "shoe"}},
		{ID: "p5", Name: "Shoe Rack", Category: "home", Tags: []string{"storage", "shoe"}},
		{ID: "p6", Name: "Red Shoe Polish", Category: "care", Tags: []string{"polish"}},
		{ID: "p7", Name: "Shoe", Category: "footwear", Tags: []string{"x"}},
	}
}

func newBuilder(entries []catalog.CorpusEntry, workers int) *Builder {
	return NewBuilder(
		&fakeScanner{entries: entries},
		sample.NewWithSource(rand.NewPCG(3, 4)),
		Config{Threshold: 85, SampleSize: 4, Workers: workers},
		nil,
	)
}

func TestTokens(t *testing.T) {
	got := Tokens(catalog.CorpusEntry{Name: "An Ox Red Shoe", Category: "footwear", Tags: []string{"x", "red", "ab"}})
	want := []string{"Red", "Shoe", "footwear", "red", "ab"}
	if !slices.Equal(got, want) {
		t.Errorf("Tokens = %v, want %v", got, want)
	}
}

func TestBuildAdmitsOnlyAboveThreshold(t *testing.T) {
	for _, workers := range []int{1, 3, 16} {
		res, err := newBuilder(corpus(), workers).Build(context.Background(), "shoe", "", false)
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		want := []catalog.ProductID{"p1", "p4", "p5", "p6", "p7"}
		if !slices.Equal(res.IDs, want) {
			t.Errorf("workers=%d: IDs = %v, want %v (corpus order)", workers, res.IDs, want)
		}
		for _, e := range corpus() {
			best := fuzzy.BestMatch("shoe", Tokens(e)).Score
			_, admitted := res.Scores[e.ID]
			if admitted != (best > 85) {
				t.Errorf("product %s score %v admitted=%v", e.ID, best, admitted)
			}
			if admitted && res.Scores[e.ID] != best {
				t.Errorf("product %s recorded %v, best %v", e.ID, res.Scores[e.ID], best)
			}
		}
	}
}

func TestBuildCategoryFilter(t *testing.T) {
	res, err := newBuilder(corpus(), 2).Build(context.Background(), "shoe", "home", false)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(res.IDs, []catalog.ProductID{"p5"}) {
		t.Errorf("IDs = %v, want [p5]", res.IDs)
	}
}

func TestBuildRandomSubset(t *testing.T) {
	full, _ := newBuilder(corpus(), 1).Build(context.Background(), "shoe", "", false)
	for i := 0; i < 20; i++ {
		res, err := newBuilder(corpus(), 1).Build(context.Background(), "shoe", "", true)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Sampled || len(res.IDs) != 4 || len(res.Scores) != 4 {
			t.Fatalf("sampled=%v ids=%v scores=%v", res.Sampled, res.IDs, res.Scores)
		}
		for _, id := range res.IDs {
			if _, ok := full.Scores[id]; !ok {
				t.Errorf("sampled %s not in admitted set", id)
			}
		}
	}
}

func TestBuildRandomWithTooFewKeepsAll(t *testing.T) {
	res, err := newBuilder(corpus(), 1).Build(context.Background(), "lamp", "", true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Sampled || !slices.Equal(res.IDs, []catalog.ProductID{"p2"}) {
		t.Errorf("res = %+v, want unsampled [p2]", res)
	}
}

func TestBuildSkipsUnreadableProducts(t *testing.T) {
	entries := append(corpus(),
		catalog.CorpusEntry{ID: "bad", Err: errors.New("tags: invalid json")},
		catalog.CorpusEntry{Name: "Shoe Without Id", Category: "footwear"},
	)
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	b := NewBuilder(&fakeScanner{entries: entries}, sample.New(), Config{Threshold: 85, Workers: 2}, m)
	res, err := b.Build(context.Background(), "shoe", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", res.Skipped)
	}
	if len(res.IDs) != 5 {
		t.Errorf("readable products must still be scored, got %v", res.IDs)
	}
	if got := testutil.ToFloat64(m.CorpusSkippedTotal.WithLabelValues("relevance")); got != 2 {
		t.Errorf("skipped metric = %v", got)
	}
}

func TestBuildEmptyCorpusAndStoreError(t *testing.T) {
	res, err := newBuilder(nil, 4).Build(context.Background(), "shoe", "", true)
	if err != nil || len(res.IDs) != 0 {
		t.Errorf("empty corpus: res=%+v err=%v", res, err)
	}

	boom := errors.New("connection reset")
	b := NewBuilder(&fakeScanner{err: boom}, sample.New(), Config{Threshold: 85}, nil)
	if _, err := b.Build(context.Background(), "shoe", "", false); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped store error", err)
	}
}
