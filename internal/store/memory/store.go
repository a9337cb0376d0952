// Package memory is an in-process implementation of every storefront
// repository. The searcher runs on it with -store=memory for local
// development, and package tests use it in place of PostgreSQL.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/cart"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/history"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/order"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/search/pipeline"
	apperrors "github.com/Adithya-Monish-Kumar-K/buyit/pkg/errors"
)

// Store holds all data behind one lock. Products keep insertion order,
// which plays the role of natural (corpus) order.
type Store struct {
	mu       sync.RWMutex
	products []catalog.Product
	index    map[catalog.ProductID]int
	carts    map[string][]cart.Item
	orders   map[string][]order.Order
	archive  map[string][]order.HistoryEntry
	weights  map[history.Kind]map[string]map[string]*weighted
	tick     int64
}

// New returns a store seeded with products.
func New(products ...catalog.Product) *Store {
	s := &Store{
		index:   make(map[catalog.ProductID]int),
		carts:   make(map[string][]cart.Item),
		orders:  make(map[string][]order.Order),
		archive: make(map[string][]order.HistoryEntry),
		weights: map[history.Kind]map[string]map[string]*weighted{
			history.KindSearch: {},
			history.KindBrowse: {},
		},
	}
	for _, p := range products {
		s.putLocked(p)
	}
	return s
}

func (s *Store) putLocked(p catalog.Product) {
	if i, ok := s.index[p.ID]; ok {
		s.products[i] = p
		return
	}
	s.index[p.ID] = len(s.products)
	s.products = append(s.products, p)
}

func (s *Store) snapshot() []catalog.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Product, len(s.products))
	for i, p := range s.products {
		out[i] = cloneProduct(p)
	}
	return out
}

func cloneProduct(p catalog.Product) catalog.Product {
	p.Tags = slices.Clone(p.Tags)
	p.Images = slices.Clone(p.Images)
	p.Ratings = slices.Clone(p.Ratings)
	return p
}

// ScanCorpus returns the scoring projection of every product matching
// filter, in insertion order.
func (s *Store) ScanCorpus(ctx context.Context, filter catalog.Filter) ([]catalog.CorpusEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []catalog.CorpusEntry
	for i := range s.products {
		p := &s.products[i]
		if !filter.Matches(p) {
			continue
		}
		out = append(out, catalog.CorpusEntry{
			ID:       p.ID,
			Name:     p.Name,
			Category: p.Category,
			Tags:     slices.Clone(p.Tags),
		})
	}
	return out, nil
}

// Aggregate executes the pipeline over a snapshot of the products.
func (s *Store) Aggregate(ctx context.Context, p pipeline.Pipeline) ([]catalog.Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.Run(s.snapshot())
}

// Count returns the number of products matching filter.
func (s *Store) Count(ctx context.Context, filter catalog.Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for i := range s.products {
		if filter.Matches(&s.products[i]) {
			n++
		}
	}
	return n, nil
}

// FindByIDs returns the products whose ids are listed, in insertion order.
// Unknown ids are ignored.
func (s *Store) FindByIDs(ctx context.Context, ids []catalog.ProductID) ([]catalog.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filter := catalog.Filter{}.WithIDs(ids)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []catalog.Product
	for i := range s.products {
		if filter.Matches(&s.products[i]) {
			out = append(out, cloneProduct(s.products[i]))
		}
	}
	return out, nil
}

// Get returns one product.
func (s *Store) Get(ctx context.Context, id catalog.ProductID) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return catalog.Product{}, apperrors.NotFound("product %s not found", id)
	}
	return cloneProduct(s.products[i]), nil
}

// InsertProduct adds a new product.
func (s *Store) InsertProduct(ctx context.Context, p catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[p.ID]; ok {
		return apperrors.Conflict("product %s already exists", p.ID)
	}
	s.putLocked(cloneProduct(p))
	return nil
}

// UpsertRating replaces the rating left by r.UserID, or appends r. It
// reports whether a new rating was added.
func (s *Store) UpsertRating(ctx context.Context, id catalog.ProductID, r catalog.Rating) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return false, apperrors.NotFound("product %s not found", id)
	}
	p := &s.products[i]
	for j := range p.Ratings {
		if p.Ratings[j].UserID == r.UserID {
			p.Ratings[j] = r
			return false, nil
		}
	}
	p.Ratings = append(p.Ratings, r)
	return true, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Seed inserts or replaces products, keeping the position of replaced ones.
func (s *Store) Seed(ctx context.Context, products []catalog.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range products {
		s.putLocked(cloneProduct(p))
	}
	return nil
}
