package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/cart"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/history"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/order"
	apperrors "github.com/Adithya-Monish-Kumar-K/buyit/pkg/errors"
)

func newStore() *Store {
	return New(
		catalog.Product{ID: "p1", Name: "Red Shoe", Category: "footwear", Tags: []string{"shoe", "red"}},
		catalog.Product{ID: "p2", Name: "Desk Lamp", Category: "home", Tags: []string{"lamp"}},
	)
}

func TestInsertAndGetProduct(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	err := s.InsertProduct(ctx, catalog.Product{ID: "p3", Name: "Mug", Category: "kitchen"})
	if err != nil {
		t.Fatalf("InsertProduct: %v", err)
	}
	if err := s.InsertProduct(ctx, catalog.Product{ID: "p3"}); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("duplicate insert err = %v, want conflict", err)
	}
	p, err := s.Get(ctx, "p3")
	if err != nil || p.Name != "Mug" {
		t.Errorf("Get = %+v, %v", p, err)
	}
	if _, err := s.Get(ctx, "nope"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Get missing err = %v", err)
	}
	corpus, _ := s.ScanCorpus(ctx, catalog.Filter{})
	if len(corpus) != 3 || corpus[2].ID != "p3" {
		t.Errorf("corpus order = %+v", corpus)
	}
}

func TestReturnedProductsAreCopies(t *testing.T) {
	s := newStore()
	p, _ := s.Get(context.Background(), "p1")
	p.Tags[0] = "mutated"
	again, _ := s.Get(context.Background(), "p1")
	if again.Tags[0] != "shoe" {
		t.Errorf("store shares tag slice with caller: %v", again.Tags)
	}
}

func TestUpsertRating(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	added, err := s.UpsertRating(ctx, "p1", catalog.Rating{UserID: "u1", Rating: 2})
	if err != nil || !added {
		t.Fatalf("first rating: added=%v err=%v", added, err)
	}
	added, err = s.UpsertRating(ctx, "p1", catalog.Rating{UserID: "u1", Rating: 5, Details: "better"})
	if err != nil || added {
		t.Fatalf("second rating: added=%v err=%v", added, err)
	}
	p, _ := s.Get(ctx, "p1")
	if len(p.Ratings) != 1 || p.Ratings[0].Rating != 5 || p.Ratings[0].Details != "better" {
		t.Errorf("ratings = %+v", p.Ratings)
	}
	if _, err := s.UpsertRating(ctx, "missing", catalog.Rating{UserID: "u1", Rating: 1}); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("unknown product err = %v", err)
	}
}

func TestCartAddMergeRemove(t *testing.T) {
	carts := newStore().Carts()
	ctx := context.Background()
	_ = carts.Add(ctx, "u1", cart.Item{ProductID: "p1", Quantity: 1})
	_ = carts.Add(ctx, "u1", cart.Item{ProductID: "p1", Quantity: 2})
	_ = carts.Merge(ctx, "u1", []cart.Item{{ProductID: "p2", Quantity: 1}, {ProductID: "p1", Quantity: 1}})

	items, _ := carts.Items(ctx, "u1")
	if len(items) != 2 || items[0].Quantity != 4 || items[1].ProductID != "p2" {
		t.Fatalf("items = %+v", items)
	}
	_ = carts.Remove(ctx, "u1", "p1")
	items, _ = carts.Items(ctx, "u1")
	if len(items) != 1 || items[0].ProductID != "p2" {
		t.Errorf("after remove = %+v", items)
	}
	if other, _ := carts.Items(ctx, "u2"); len(other) != 0 {
		t.Errorf("u2 cart = %+v", other)
	}
}

func TestPlaceOrderDecrementsCart(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	_ = s.Carts().Add(ctx, "u1", cart.Item{ProductID: "p1", Quantity: 3})
	_ = s.Carts().Add(ctx, "u1", cart.Item{ProductID: "p2", Quantity: 1})

	place := func(pid catalog.ProductID, qty int) {
		t.Helper()
		err := s.Orders().Place(ctx, order.Order{ID: uuid.New(), UserID: "u1", ProductID: pid, Quantity: qty})
		if err != nil {
			t.Fatalf("Place: %v", err)
		}
	}
	place("p1", 2)
	place("p2", 5)

	items, _ := s.Carts().Items(ctx, "u1")
	if len(items) != 1 || items[0].ProductID != "p1" || items[0].Quantity != 1 {
		t.Errorf("cart after orders = %+v", items)
	}
	orders, _ := s.Orders().List(ctx, "u1")
	if len(orders) != 2 {
		t.Errorf("orders = %d, want 2", len(orders))
	}
	err := s.Orders().Place(ctx, order.Order{ID: uuid.New(), UserID: "u1", ProductID: "ghost", Quantity: 1})
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("unknown product err = %v", err)
	}
}

func TestArchiveOrder(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	id := uuid.New()
	_ = s.Orders().Place(ctx, order.Order{ID: id, UserID: "u1", ProductID: "p2", Quantity: 2, OrderDate: "2026-01-02"})

	entry, err := s.Orders().Archive(ctx, "u1", id)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if entry.ProductID != "p2" || entry.Quantity != 2 || entry.OrderedAt != "2026-01-02" {
		t.Errorf("entry = %+v", entry)
	}
	if open, _ := s.Orders().List(ctx, "u1"); len(open) != 0 {
		t.Errorf("order still open: %+v", open)
	}
	if hist, _ := s.Orders().History(ctx, "u1"); len(hist) != 1 {
		t.Errorf("history = %+v", hist)
	}
	if _, err := s.Orders().Archive(ctx, "u1", id); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("second archive err = %v", err)
	}
	if _, err := s.Orders().Archive(ctx, "u2", uuid.New()); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("other user's archive err = %v", err)
	}
}

func TestHistoryIncrementAndEvict(t *testing.T) {
	h := newStore().History()
	ctx := context.Background()
	inc := func(key string, w int) {
		t.Helper()
		if err := h.Increment(ctx, history.KindSearch, "u1", key, w, 3); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}
	inc("shoe", 5)
	inc("lamp", 5)
	inc("shoe", 5)
	inc("mug", 1)
	inc("boot", 1) // evicts mug: lowest weight, older than boot

	got, _ := h.Weights(ctx, history.KindSearch, "u1")
	want := map[string]int{"shoe": 10, "lamp": 5, "boot": 1}
	if len(got) != len(want) {
		t.Fatalf("weights = %v, want %v", got, want)
	}
	for k, w := range want {
		if got[k] != w {
			t.Errorf("weight[%s] = %d, want %d", k, got[k], w)
		}
	}
	browse, _ := h.Weights(ctx, history.KindBrowse, "u1")
	if len(browse) != 0 {
		t.Errorf("browse history = %v, want empty", browse)
	}
}

func TestHistoryUnbounded(t *testing.T) {
	h := newStore().History()
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		_ = h.Increment(ctx, history.KindBrowse, "u1", k, 1, 0)
	}
	got, _ := h.Weights(ctx, history.KindBrowse, "u1")
	if len(got) != 5 {
		t.Errorf("weights = %v, want 5 keys", got)
	}
}

func TestSeedUpserts(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	err := s.Seed(ctx, []catalog.Product{
		{ID: "p1", Name: "Crimson Shoe", Category: "footwear"},
		{ID: "p9", Name: "Kettle", Category: "kitchen"},
	})
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	entries, _ := s.ScanCorpus(ctx, catalog.Filter{})
	if len(entries) != 3 || entries[0].ID != "p1" || entries[0].Name != "Crimson Shoe" || entries[2].ID != "p9" {
		t.Errorf("corpus after seed = %+v", entries)
	}
}
