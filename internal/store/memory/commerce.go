package memory

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/cart"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/order"
	apperrors "github.com/Adithya-Monish-Kumar-K/buyit/pkg/errors"
)

// Carts is the cart repository view of a Store.
type Carts struct{ s *Store }

// Carts returns the cart repository.
func (s *Store) Carts() *Carts { return &Carts{s: s} }

func (c *Carts) Items(_ context.Context, userID string) ([]cart.Item, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	return slices.Clone(c.s.carts[userID]), nil
}

func (c *Carts) Add(_ context.Context, userID string, item cart.Item) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.addLocked(userID, item)
	return nil
}

func (c *Carts) Merge(_ context.Context, userID string, items []cart.Item) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	for _, it := range items {
		c.s.addLocked(userID, it)
	}
	return nil
}

func (c *Carts) Remove(_ context.Context, userID string, productID catalog.ProductID) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.carts[userID] = slices.DeleteFunc(c.s.carts[userID], func(it cart.Item) bool {
		return it.ProductID == productID
	})
	return nil
}

func (s *Store) addLocked(userID string, item cart.Item) {
	lines := s.carts[userID]
	for i := range lines {
		if lines[i].ProductID == item.ProductID {
			lines[i].Quantity += item.Quantity
			return
		}
	}
	s.carts[userID] = append(lines, item)
}

// Orders is the order repository view of a Store.
type Orders struct{ s *Store }

// Orders returns the order repository.
func (s *Store) Orders() *Orders { return &Orders{s: s} }

// Place stores o and decrements the cart under one lock.
func (o *Orders) Place(_ context.Context, ord order.Order) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	if _, ok := o.s.index[ord.ProductID]; !ok {
		return apperrors.NotFound("product %s not found", ord.ProductID)
	}
	o.s.orders[ord.UserID] = append(o.s.orders[ord.UserID], ord)

	lines := o.s.carts[ord.UserID]
	for i := range lines {
		if lines[i].ProductID == ord.ProductID {
			lines[i].Quantity -= ord.Quantity
		}
	}
	o.s.carts[ord.UserID] = slices.DeleteFunc(lines, func(it cart.Item) bool {
		return it.Quantity <= 0
	})
	return nil
}

func (o *Orders) List(_ context.Context, userID string) ([]order.Order, error) {
	o.s.mu.RLock()
	defer o.s.mu.RUnlock()
	return slices.Clone(o.s.orders[userID]), nil
}

func (o *Orders) Archive(_ context.Context, userID string, orderID uuid.UUID) (order.HistoryEntry, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	open := o.s.orders[userID]
	i := slices.IndexFunc(open, func(ord order.Order) bool { return ord.ID == orderID })
	if i < 0 {
		return order.HistoryEntry{}, apperrors.NotFound("order %s not found", orderID)
	}
	ord := open[i]
	o.s.orders[userID] = slices.Delete(open, i, i+1)
	entry := order.HistoryEntry{
		OrderID:   ord.ID,
		ProductID: ord.ProductID,
		Quantity:  ord.Quantity,
		OrderedAt: ord.OrderDate,
	}
	o.s.archive[userID] = append(o.s.archive[userID], entry)
	return entry, nil
}

func (o *Orders) History(_ context.Context, userID string) ([]order.HistoryEntry, error) {
	o.s.mu.RLock()
	defer o.s.mu.RUnlock()
	return slices.Clone(o.s.archive[userID]), nil
}

var (
	_ cart.Repository  = (*Carts)(nil)
	_ order.Repository = (*Orders)(nil)
)
