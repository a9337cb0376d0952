// Package upload adds seller products to the catalog together with their
// images.
package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/blob"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
	apperrors "github.com/Adithya-Monish-Kumar-K/buyit/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/validation"
)

// Inserter stores new products.
type Inserter interface {
	InsertProduct(ctx context.Context, p catalog.Product) error
}

// Seller is the authenticated caller uploading a product.
type Seller struct {
	ID       string
	Name     string
	Verified bool
}

// Form carries the text fields of an upload. Tags holds a JSON array of
// strings.
type Form struct {
	Name     string  `json:"name" validate:"notblank,max=200"`
	Category string  `json:"category" validate:"notblank,max=100"`
	Details  string  `json:"details" validate:"max=5000"`
	Tags     string  `json:"tags" validate:"required"`
	Price    float64 `json:"price" validate:"gte=0"`
}

// Image is one uploaded file.
type Image struct {
	Filename string
	Body     io.Reader
}

// Service uploads products.
type Service struct {
	products Inserter
	blobs    blob.Store
	notifier catalog.ChangeNotifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewService creates an upload Service. m may be nil.
func NewService(products Inserter, blobs blob.Store, notifier catalog.ChangeNotifier, m *metrics.Metrics) *Service {
	if notifier == nil {
		notifier = catalog.NopNotifier{}
	}
	return &Service{
		products: products,
		blobs:    blobs,
		notifier: notifier,
		metrics:  m,
		logger:   slog.Default().With("component", "product-upload"),
	}
}

// ParseTags decodes the JSON tag list, trimming entries and dropping blanks.
func ParseTags(raw string) ([]string, error) {
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, apperrors.Invalid("tags must be a JSON array of strings")
	}
	tags = lo.Map(tags, func(t string, _ int) string { return strings.TrimSpace(t) })
	return lo.Compact(tags), nil
}

// Upload stores the images and then the product. The seller must be
// verified. If any image fails, images already stored are removed and
// nothing is inserted.
func (s *Service) Upload(ctx context.Context, seller Seller, form Form, images []Image) (catalog.Product, error) {
	if !seller.Verified {
		return catalog.Product{}, apperrors.New(apperrors.ErrForbidden, http.StatusForbidden, "user not validated")
	}
	if err := validation.Struct(form); err != nil {
		return catalog.Product{}, err
	}
	tags, err := ParseTags(form.Tags)
	if err != nil {
		return catalog.Product{}, err
	}
	if len(images) == 0 {
		return catalog.Product{}, apperrors.Invalid("at least one image is required")
	}

	var stored []blob.Object
	rollback := func() {
		for _, obj := range stored {
			if err := s.blobs.Delete(context.WithoutCancel(ctx), obj.Key); err != nil {
				s.logger.Warn("failed to remove orphaned image", "key", obj.Key, "error", err)
			}
		}
	}
	for _, img := range images {
		obj, err := s.blobs.Put(ctx, img.Body)
		if err != nil {
			rollback()
			s.logger.Warn("image upload failed", "filename", img.Filename, "error", err)
			return catalog.Product{}, fmt.Errorf("storing image %q: %w", img.Filename, err)
		}
		stored = append(stored, obj)
	}

	p := catalog.Product{
		ID:       catalog.ProductID(uuid.NewString()),
		Name:     strings.TrimSpace(form.Name),
		Category: strings.TrimSpace(form.Category),
		Details:  form.Details,
		Tags:     tags,
		Price:    form.Price,
		Seller:   seller.Name,
		Images:   lo.Map(stored, func(o blob.Object, _ int) string { return o.URL }),
		Ratings:  []catalog.Rating{},
	}
	if err := s.products.InsertProduct(ctx, p); err != nil {
		rollback()
		return catalog.Product{}, fmt.Errorf("inserting product: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ProductsUploadedTotal.Inc()
	}
	if err := s.notifier.ProductChanged(ctx, catalog.ChangeEvent{ProductID: p.ID, Reason: catalog.ChangeCreated}); err != nil {
		s.logger.Warn("failed to announce new product", "product_id", p.ID, "error", err)
	}
	s.logger.Info("product uploaded",
		"product_id", p.ID,
		"seller", seller.Name,
		"images", len(stored),
	)
	return p, nil
}
