// Package order places orders from a user's cart and archives them into the
// order history.
package order

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
	apperrors "github.com/Adithya-Monish-Kumar-K/buyit/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/metrics"
)

// StatusPreparing is the status of a freshly placed order.
const StatusPreparing = "Getting ready for shipping"

// DateLayout formats order dates.
const DateLayout = "2006-01-02"

// Order is an open order.
type Order struct {
	ID        uuid.UUID         `json:"orderId"`
	UserID    string            `json:"userId"`
	ProductID catalog.ProductID `json:"productId"`
	Quantity  int               `json:"quantity"`
	Address   string            `json:"address"`
	OrderDate string            `json:"orderDate"`
	Status    string            `json:"orderStatus"`
}

// HistoryEntry is an order moved out of the open list.
type HistoryEntry struct {
	OrderID   uuid.UUID         `json:"orderId"`
	ProductID catalog.ProductID `json:"productId"`
	Quantity  int               `json:"quantity"`
	OrderedAt string            `json:"orderedAt"`
}

// Repository persists orders.
type Repository interface {
	// Place stores o and takes o.Quantity off the matching cart line,
	// dropping the line once it reaches zero, in one transaction.
	Place(ctx context.Context, o Order) error
	List(ctx context.Context, userID string) ([]Order, error)
	// Archive removes the order and appends it to the order history.
	Archive(ctx context.Context, userID string, orderID uuid.UUID) (HistoryEntry, error)
	History(ctx context.Context, userID string) ([]HistoryEntry, error)
}

// ProductLookup confirms a product exists.
type ProductLookup interface {
	Get(ctx context.Context, id catalog.ProductID) (catalog.Product, error)
}

// PlaceRequest is the body of an order upload.
type PlaceRequest struct {
	ProductID catalog.ProductID `json:"productId" validate:"required"`
	Quantity  int               `json:"quantity" validate:"gte=1,lte=1000"`
	Address   string            `json:"address" validate:"notblank,max=500"`
}

// Service places and archives orders.
type Service struct {
	repo     Repository
	products ProductLookup
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *slog.Logger
}

// NewService creates an order Service. m may be nil.
func NewService(repo Repository, products ProductLookup, m *metrics.Metrics) *Service {
	return &Service{
		repo:     repo,
		products: products,
		metrics:  m,
		now:      time.Now,
		logger:   slog.Default().With("component", "orders"),
	}
}

// Place records a new order for userID.
func (s *Service) Place(ctx context.Context, userID string, req PlaceRequest) (Order, error) {
	if req.Quantity <= 0 {
		return Order{}, apperrors.Invalid("quantity must be >= 1")
	}
	if _, err := s.products.Get(ctx, req.ProductID); err != nil {
		return Order{}, err
	}
	o := Order{
		ID:        uuid.New(),
		UserID:    userID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Address:   req.Address,
		OrderDate: s.now().UTC().Format(DateLayout),
		Status:    StatusPreparing,
	}
	if err := s.repo.Place(ctx, o); err != nil {
		return Order{}, fmt.Errorf("placing order: %w", err)
	}
	if s.metrics != nil {
		s.metrics.OrdersPlacedTotal.Inc()
	}
	s.logger.Info("order placed",
		"order_id", o.ID,
		"user_id", userID,
		"product_id", o.ProductID,
		"quantity", o.Quantity,
	)
	return o, nil
}

// List returns the user's open orders.
func (s *Service) List(ctx context.Context, userID string) ([]Order, error) {
	orders, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []Order{}
	}
	return orders, nil
}

// Delete closes an open order, moving it into the order history.
func (s *Service) Delete(ctx context.Context, userID string, orderID uuid.UUID) (HistoryEntry, error) {
	entry, err := s.repo.Archive(ctx, userID, orderID)
	if err != nil {
		return HistoryEntry{}, err
	}
	s.logger.Info("order archived", "order_id", orderID, "user_id", userID)
	return entry, nil
}

// History returns the user's archived orders.
func (s *Service) History(ctx context.Context, userID string) ([]HistoryEntry, error) {
	entries, err := s.repo.History(ctx, userID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []HistoryEntry{}
	}
	return entries, nil
}
