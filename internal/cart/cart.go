// Package cart manages per-user shopping carts.
package cart

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
	apperrors "github.com/Adithya-Monish-Kumar-K/buyit/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/logger"
)

// Item is one cart line.
type Item struct {
	ProductID catalog.ProductID `json:"productId" validate:"required"`
	Quantity  int               `json:"quantity" validate:"gte=1,lte=1000"`
}

// Repository persists carts. Add and Merge increment existing lines.
type Repository interface {
	Items(ctx context.Context, userID string) ([]Item, error)
	Add(ctx context.Context, userID string, item Item) error
	Merge(ctx context.Context, userID string, items []Item) error
	Remove(ctx context.Context, userID string, productID catalog.ProductID) error
}

// ProductLookup confirms a product exists.
type ProductLookup interface {
	Get(ctx context.Context, id catalog.ProductID) (catalog.Product, error)
}

// Service applies cart rules on top of a Repository.
type Service struct {
	repo     Repository
	products ProductLookup
	logger   *slog.Logger
}

// NewService creates a cart Service.
func NewService(repo Repository, products ProductLookup) *Service {
	return &Service{
		repo:     repo,
		products: products,
		logger:   slog.Default().With("component", "cart"),
	}
}

// Get returns the user's cart, empty when nothing was added.
func (s *Service) Get(ctx context.Context, userID string) ([]Item, error) {
	items, err := s.repo.Items(ctx, userID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

// Add puts quantity of a product into the cart, adding to any quantity
// already there.
func (s *Service) Add(ctx context.Context, userID string, item Item) error {
	if item.Quantity <= 0 {
		return apperrors.Invalid("quantity must be >= 1")
	}
	if _, err := s.products.Get(ctx, item.ProductID); err != nil {
		return err
	}
	if err := s.repo.Add(ctx, userID, item); err != nil {
		return fmt.Errorf("adding cart item: %w", err)
	}
	logger.FromContext(ctx).Debug("cart item added",
		"component", "cart",
		"user_id", userID,
		"product_id", item.ProductID,
		"quantity", item.Quantity,
	)
	return nil
}

// MergeLocal folds a cart built before sign-in into the stored cart.
// Quantities for the same product are summed and lines with non-positive
// quantities are dropped.
func (s *Service) MergeLocal(ctx context.Context, userID string, items []Item) error {
	merged := make(map[catalog.ProductID]int, len(items))
	var order []catalog.ProductID
	for _, it := range items {
		if it.Quantity <= 0 || it.ProductID == "" {
			continue
		}
		if _, ok := merged[it.ProductID]; !ok {
			order = append(order, it.ProductID)
		}
		merged[it.ProductID] += it.Quantity
	}
	if len(order) == 0 {
		return nil
	}
	lines := make([]Item, 0, len(order))
	for _, id := range order {
		lines = append(lines, Item{ProductID: id, Quantity: merged[id]})
	}
	if err := s.repo.Merge(ctx, userID, lines); err != nil {
		return fmt.Errorf("merging local cart: %w", err)
	}
	s.logger.Info("local cart merged", "user_id", userID, "lines", len(lines))
	return nil
}

// Remove deletes a product from the cart. Removing an absent product is not
// an error.
func (s *Service) Remove(ctx context.Context, userID string, productID catalog.ProductID) error {
	if err := s.repo.Remove(ctx, userID, productID); err != nil {
		return fmt.Errorf("removing cart item: %w", err)
	}
	return nil
}
