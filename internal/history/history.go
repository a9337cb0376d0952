// Package history keeps weighted per-user search and browse history and
// derives recommendation tags from it and from the order history.
package history

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/order"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/buyit/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/metrics"
)

// Kind selects which history an entry belongs to.
type Kind string

const (
	KindSearch Kind = "search"
	KindBrowse Kind = "browse"
)

// Valid reports whether k names a known history.
func (k Kind) Valid() bool {
	return k == KindSearch || k == KindBrowse
}

// Event is a history update carried on the history-events topic. Value is
// the search term or the browsed category.
type Event struct {
	Kind   Kind      `json:"kind"`
	UserID string    `json:"userId"`
	Value  string    `json:"value"`
	At     time.Time `json:"at"`
}

// Repository stores weighted history entries.
type Repository interface {
	// Increment adds weight to key, creating it if needed. With maxKeys > 0
	// the lowest-weight entries, least recently updated first, are evicted
	// until at most maxKeys remain.
	Increment(ctx context.Context, kind Kind, userID, key string, weight, maxKeys int) error
	Weights(ctx context.Context, kind Kind, userID string) (map[string]int, error)
}

// OrderHistory lists a user's archived orders.
type OrderHistory interface {
	History(ctx context.Context, userID string) ([]order.HistoryEntry, error)
}

// ProductFinder loads products by id.
type ProductFinder interface {
	FindByIDs(ctx context.Context, ids []catalog.ProductID) ([]catalog.Product, error)
}

// TagVerifier reports whether a set of tags yields enough products for a
// recommendation.
type TagVerifier interface {
	Sufficient(ctx context.Context, tags []string) (bool, error)
}

// Outcome messages of OrderTags.
const (
	DetailInsufficient = "No sufficient products"
	DetailNoHistory    = "No History Found"
)

// OrderTags is the result of deriving tags from the order history.
type OrderTags struct {
	Status  string   `json:"status"`
	Tags    []string `json:"tags"`
	Details string   `json:"details,omitempty"`
}

// OK reports whether the tags may be used for a recommendation.
func (o OrderTags) OK() bool { return o.Status == "success" }

// Service records history and builds tag lists.
type Service struct {
	repo     Repository
	orders   OrderHistory
	products ProductFinder
	verifier TagVerifier
	cfg      config.HistoryConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewService creates a history Service. orders, products and verifier are
// only needed for the tag operations and m may be nil.
func NewService(repo Repository, orders OrderHistory, products ProductFinder, verifier TagVerifier, cfg config.HistoryConfig, m *metrics.Metrics) *Service {
	return &Service{
		repo:     repo,
		orders:   orders,
		products: products,
		verifier: verifier,
		cfg:      cfg,
		metrics:  m,
		logger:   slog.Default().With("component", "history"),
	}
}

func (s *Service) weight(kind Kind) int {
	if kind == KindSearch {
		return s.cfg.SearchWeight
	}
	return s.cfg.BrowseWeight
}

// Record adds one search or browse to the user's history.
func (s *Service) Record(ctx context.Context, kind Kind, userID, value string) error {
	if !kind.Valid() {
		return apperrors.Invalid("unknown history kind %q", kind)
	}
	value = strings.TrimSpace(value)
	if userID == "" || value == "" {
		return apperrors.Invalid("user id and %s value are required", kind)
	}
	if err := s.repo.Increment(ctx, kind, userID, value, s.weight(kind), s.cfg.MaxKeys); err != nil {
		return fmt.Errorf("recording %s history: %w", kind, err)
	}
	if s.metrics != nil {
		s.metrics.HistoryUpdatesTotal.WithLabelValues(string(kind)).Inc()
	}
	return nil
}

// Apply records an event read from the history topic.
func (s *Service) Apply(ctx context.Context, ev Event) error {
	return s.Record(ctx, ev.Kind, ev.UserID, ev.Value)
}

// Weights returns the user's search or browse history. A user with no
// history gets an empty map.
func (s *Service) Weights(ctx context.Context, kind Kind, userID string) (map[string]int, error) {
	if !kind.Valid() {
		return nil, apperrors.Invalid("unknown history kind %q", kind)
	}
	w, err := s.repo.Weights(ctx, kind, userID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = map[string]int{}
	}
	return w, nil
}

// Top returns up to n keys of w, heaviest first, ties broken by key.
func Top(w map[string]int, n int) []string {
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		if c := cmp.Compare(w[b], w[a]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	if n > 0 && len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// OrderTags turns the products in the user's order history into one tag
// string per product and checks that the recommender can serve them.
func (s *Service) OrderTags(ctx context.Context, userID string) (OrderTags, error) {
	entries, err := s.orders.History(ctx, userID)
	if err != nil {
		return OrderTags{}, fmt.Errorf("loading order history: %w", err)
	}
	if len(entries) == 0 {
		return OrderTags{Status: "failure", Tags: []string{}, Details: DetailNoHistory}, nil
	}

	ids := lo.Uniq(lo.Map(entries, func(e order.HistoryEntry, _ int) catalog.ProductID {
		return e.ProductID
	}))
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return OrderTags{}, fmt.Errorf("loading ordered products: %w", err)
	}
	byID := lo.KeyBy(products, func(p catalog.Product) catalog.ProductID { return p.ID })

	// one tag string per order line, in history order
	tags := make([]string, 0, len(entries))
	for _, e := range entries {
		if p, ok := byID[e.ProductID]; ok && len(p.Tags) > 0 {
			tags = append(tags, catalog.JoinedTags(p.Tags))
		}
	}

	ok, err := s.verifier.Sufficient(ctx, tags)
	if err != nil {
		return OrderTags{}, fmt.Errorf("verifying order tags: %w", err)
	}
	if !ok {
		return OrderTags{Status: "failure", Tags: []string{}, Details: DetailInsufficient}, nil
	}
	return OrderTags{Status: "success", Tags: tags}, nil
}

// PreferenceTags combines the order-history tags, when usable, with the
// user's top search terms and top browsed categories.
func (s *Service) PreferenceTags(ctx context.Context, userID string) ([]string, error) {
	var tags []string
	ot, err := s.OrderTags(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ot.OK() {
		tags = append(tags, ot.Tags...)
	}
	for _, kind := range []Kind{KindSearch, KindBrowse} {
		w, err := s.Weights(ctx, kind, userID)
		if err != nil {
			return nil, err
		}
		tags = append(tags, Top(w, s.cfg.TopTerms)...)
	}
	s.logger.Debug("preference tags built", "user_id", userID, "count", len(tags))
	return lo.Uniq(tags), nil
}
