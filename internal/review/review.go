// Package review records user ratings on products.
package review

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
	apperrors "github.com/Adithya-Monish-Kumar-K/buyit/pkg/errors"
)

// Request is a review upload. The reviewer comes from the session.
type Request struct {
	ProductID catalog.ProductID `json:"productId" validate:"required"`
	Text      string            `json:"reviewText" validate:"max=2000"`
	Rating    int               `json:"rating" validate:"gte=1,lte=5"`
}

// Store updates the ratings embedded in a product. UpsertRating replaces the
// rating left by the same user and reports whether a new one was appended.
type Store interface {
	UpsertRating(ctx context.Context, id catalog.ProductID, r catalog.Rating) (bool, error)
}

// Result reports whether the review was added or an earlier one replaced.
type Result struct {
	Status  string `json:"status"`
	Updated bool   `json:"updated"`
}

// Service stores reviews.
type Service struct {
	store    Store
	notifier catalog.ChangeNotifier
	logger   *slog.Logger
}

// NewService creates a review Service.
func NewService(store Store, notifier catalog.ChangeNotifier) *Service {
	if notifier == nil {
		notifier = catalog.NopNotifier{}
	}
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   slog.Default().With("component", "reviews"),
	}
}

// Upload stores the caller's review of a product, replacing any review the
// caller left before.
func (s *Service) Upload(ctx context.Context, userID, username string, req Request) (Result, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return Result{}, apperrors.Invalid("rating must be between 1 and 5, got %d", req.Rating)
	}
	added, err := s.store.UpsertRating(ctx, req.ProductID, catalog.Rating{
		UserID:   userID,
		Username: username,
		Details:  req.Text,
		Rating:   req.Rating,
	})
	if err != nil {
		return Result{}, fmt.Errorf("saving review: %w", err)
	}
	if err := s.notifier.ProductChanged(ctx, catalog.ChangeEvent{
		ProductID: req.ProductID,
		Reason:    catalog.ChangeRated,
	}); err != nil {
		s.logger.Warn("failed to announce rating change",
			"product_id", req.ProductID,
			"error", err,
		)
	}
	s.logger.Info("review saved",
		"product_id", req.ProductID,
		"user_id", userID,
		"added", added,
	)
	return Result{Status: "success", Updated: !added}, nil
}
