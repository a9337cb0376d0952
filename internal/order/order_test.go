package order_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/cart"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/order"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/store/memory"
	apperrors "github.com/Adithya-Monish-Kumar-K/buyit/pkg/errors"
)

func setup(t *testing.T) (*order.Service, *memory.Store) {
	t.Helper()
	store := memory.New(catalog.Product{ID: "p1", Name: "Red Shoe", Price: 50})
	return order.NewService(store.Orders(), store, nil), store
}

func TestPlaceOrder(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	_ = store.Carts().Add(ctx, "u1", cart.Item{ProductID: "p1", Quantity: 2})

	o, err := svc.Place(ctx, "u1", order.PlaceRequest{ProductID: "p1", Quantity: 2, Address: "1 Main St"})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if o.ID == uuid.Nil {
		t.Error("order id not assigned")
	}
	if o.Status != order.StatusPreparing {
		t.Errorf("Status = %q", o.Status)
	}
	if len(o.OrderDate) != len(order.DateLayout) {
		t.Errorf("OrderDate = %q, want date only", o.OrderDate)
	}
	if items, _ := store.Carts().Items(ctx, "u1"); len(items) != 0 {
		t.Errorf("cart not pruned: %+v", items)
	}
	orders, _ := svc.List(ctx, "u1")
	if len(orders) != 1 || orders[0].ID != o.ID {
		t.Errorf("List = %+v", orders)
	}
}

func TestPlaceOrderErrors(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	if _, err := svc.Place(ctx, "u1", order.PlaceRequest{ProductID: "ghost", Quantity: 1}); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("unknown product err = %v", err)
	}
	if _, err := svc.Place(ctx, "u1", order.PlaceRequest{ProductID: "p1", Quantity: 0}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("zero quantity err = %v", err)
	}
}

func TestDeleteMovesToHistory(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	o, _ := svc.Place(ctx, "u1", order.PlaceRequest{ProductID: "p1", Quantity: 1, Address: "x"})

	entry, err := svc.Delete(ctx, "u1", o.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if entry.OrderID != o.ID || entry.OrderedAt != o.OrderDate {
		t.Errorf("entry = %+v", entry)
	}
	hist, _ := svc.History(ctx, "u1")
	if len(hist) != 1 {
		t.Errorf("History = %+v", hist)
	}
	if orders, _ := svc.List(ctx, "u1"); len(orders) != 0 {
		t.Errorf("List after delete = %+v", orders)
	}
	if _, err := svc.Delete(ctx, "u1", o.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("double delete err = %v", err)
	}
}

func TestEmptyListsAreNonNil(t *testing.T) {
	svc, _ := setup(t)
	orders, _ := svc.List(context.Background(), "nobody")
	hist, _ := svc.History(context.Background(), "nobody")
	if orders == nil || hist == nil {
		t.Error("expected empty, non-nil slices")
	}
}
