// Package search serves catalog listings and tag recommendations. A listing
// request without a query is a browse; with one, every product in scope is
// scored first and only admitted products are listed.
package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/history"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/search/cache"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/search/paginate"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/search/pipeline"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/search/recommend"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/search/relevance"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/buyit/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/tracing"
)

// Request is one browse or search call. Page and PerPage are taken as
// given; callers fill in defaults for absent parameters.
type Request struct {
	Category string
	Search   string
	SortBy   string
	Page     int
	PerPage  int
	Random   bool
	UserID   string
}

// EventTracker receives analytics events. The analytics collector
// implements it.
type EventTracker interface {
	Track(event analytics.SearchEvent)
}

// Service answers listing and recommendation requests.
type Service struct {
	builder     *relevance.Builder
	agg         paginate.Aggregator
	recommender *recommend.Recommender
	cfg         config.SearchConfig
	metrics     *metrics.Metrics
	logger      *slog.Logger

	cache   *cache.ListingCache
	events  EventTracker
	history *history.Emitter
}

// NewService creates a Service. m may be nil.
func NewService(builder *relevance.Builder, agg paginate.Aggregator, rec *recommend.Recommender, cfg config.SearchConfig, m *metrics.Metrics) *Service {
	if cfg.DefaultPerPage <= 0 {
		cfg.DefaultPerPage = 8
	}
	return &Service{
		builder:     builder,
		agg:         agg,
		recommender: rec,
		cfg:         cfg,
		metrics:     m,
		logger:      slog.Default().With("component", "catalog-search"),
	}
}

// WithCache serves non-random listings through c.
func (s *Service) WithCache(c *cache.ListingCache) *Service {
	s.cache = c
	return s
}

// WithEvents reports every request to t.
func (s *Service) WithEvents(t EventTracker) *Service {
	s.events = t
	return s
}

// WithHistory records the searches and browses of signed-in users.
func (s *Service) WithHistory(e *history.Emitter) *Service {
	s.history = e
	return s
}

// Cache returns the listing cache, or nil.
func (s *Service) Cache() *cache.ListingCache { return s.cache }

// DefaultPerPage is the page size used when a request names none.
func (s *Service) DefaultPerPage() int { return s.cfg.DefaultPerPage }

// List returns one page of products. A category browse that matches
// nothing is NotFound; a search that admits nothing is an empty page.
func (s *Service) List(ctx context.Context, req Request) (catalog.Listing, error) {
	start := time.Now()
	query := strings.TrimSpace(req.Search)
	hasQuery := query != ""
	kind := analytics.EventBrowse
	if hasQuery {
		kind = analytics.EventSearch
	}
	if s.cfg.MaxPerPage > 0 && req.PerPage > s.cfg.MaxPerPage {
		req.PerPage = s.cfg.MaxPerPage
	}
	sortKey := pipeline.ResolveSort(req.SortBy, hasQuery)

	ctx, span := tracing.StartSpan(ctx, "catalog.list", logger.RequestID(ctx))
	span.SetAttr("kind", string(kind))
	defer func() {
		span.End()
		span.Log(s.logger)
	}()

	compute := func() (catalog.Listing, error) {
		return s.list(ctx, query, req, sortKey)
	}

	var (
		listing  catalog.Listing
		cacheHit bool
		err      error
	)
	if s.cache != nil && !req.Random {
		listing, cacheHit, err = s.cache.GetOrCompute(ctx, cache.Key{
			Category: req.Category,
			Search:   query,
			Sort:     string(sortKey),
			Page:     req.Page,
			PerPage:  req.PerPage,
		}, compute)
	} else {
		listing, err = compute()
	}
	elapsed := time.Since(start)

	if err != nil {
		s.observe(kind, resultType(err), cacheHit, elapsed, 0)
		return catalog.Listing{}, err
	}
	result := "hit"
	if listing.Length == 0 {
		result = "zero_result"
	}
	s.observe(kind, result, cacheHit, elapsed, len(listing.Products))
	s.recordHistory(req.UserID, query, req.Category)
	s.track(analytics.SearchEvent{
		Type:      kind,
		Query:     query,
		Category:  req.Category,
		Sort:      string(sortKey),
		Page:      req.Page,
		Total:     listing.Length,
		Returned:  len(listing.Products),
		Random:    req.Random,
		LatencyMs: elapsed.Milliseconds(),
		CacheHit:  cacheHit,
		UserID:    req.UserID,
		Timestamp: start.UTC(),
		RequestID: logger.RequestID(ctx),
	})
	logger.FromContext(ctx).Info("catalog listing served",
		"component", "catalog-search",
		"kind", kind,
		"category", req.Category,
		"sort", sortKey,
		"page", req.Page,
		"total", listing.Length,
		"returned", len(listing.Products),
		"cache_hit", cacheHit,
		"latency_ms", elapsed.Milliseconds(),
	)
	return listing, nil
}

func (s *Service) list(ctx context.Context, query string, req Request, sortKey pipeline.SortKey) (catalog.Listing, error) {
	filter := catalog.Filter{Category: req.Category}
	var scores catalog.RelevanceMap

	if query != "" {
		_, scan := tracing.StartChildSpan(ctx, "relevance_scan")
		res, err := s.builder.Build(ctx, query, req.Category, req.Random)
		scan.SetAttr("accepted", len(res.IDs))
		scan.End()
		if err != nil {
			return catalog.Listing{}, err
		}
		filter = filter.WithIDs(res.IDs)
		scores = res.Scores
	}

	_, pg := tracing.StartChildSpan(ctx, "paginate")
	page, err := paginate.Paginate(ctx, s.agg, paginate.Request{
		Filter:  filter,
		Scores:  scores,
		Sort:    sortKey,
		Page:    req.Page,
		PerPage: req.PerPage,
	})
	pg.End()
	if err != nil {
		return catalog.Listing{}, err
	}
	if query == "" && req.Category != "" && page.Total == 0 {
		return catalog.Listing{}, apperrors.NotFound("no products found in category %q", req.Category)
	}
	items := page.Items
	if items == nil {
		items = []catalog.Summary{}
	}
	return catalog.Listing{Products: items, NextPage: page.NextPage, Length: page.Total}, nil
}

// Recommend returns products similar to tags. recommend.ErrInsufficient is
// returned unchanged so callers can report the soft failure.
func (s *Service) Recommend(ctx context.Context, tags []string, userID string) ([]catalog.Product, error) {
	start := time.Now()
	products, err := s.recommender.Recommend(ctx, tags)

	outcome := "success"
	switch {
	case errors.Is(err, apperrors.ErrInsufficientResults):
		outcome = "insufficient"
	case err != nil:
		outcome = "error"
	}
	s.track(analytics.SearchEvent{
		Type:      analytics.EventRecommend,
		Query:     strings.Join(tags, ","),
		Returned:  len(products),
		Outcome:   outcome,
		LatencyMs: time.Since(start).Milliseconds(),
		UserID:    userID,
		Timestamp: start.UTC(),
		RequestID: logger.RequestID(ctx),
	})
	return products, err
}

func (s *Service) recordHistory(userID, query, category string) {
	if s.history == nil || userID == "" {
		return
	}
	if query != "" {
		s.history.Emit(history.KindSearch, userID, query)
	}
	if category != "" {
		s.history.Emit(history.KindBrowse, userID, category)
	}
}

func (s *Service) track(ev analytics.SearchEvent) {
	if s.events != nil {
		s.events.Track(ev)
	}
}

func (s *Service) observe(kind analytics.EventType, result string, cacheHit bool, elapsed time.Duration, returned int) {
	if s.metrics == nil {
		return
	}
	cacheStatus := "miss"
	if cacheHit {
		cacheStatus = "hit"
	}
	s.metrics.CatalogQueriesTotal.WithLabelValues(string(kind), result).Inc()
	s.metrics.CatalogQueryLatency.WithLabelValues(cacheStatus).Observe(elapsed.Seconds())
	if result == "hit" || result == "zero_result" {
		s.metrics.CatalogResultsCount.Observe(float64(returned))
	}
}

func resultType(err error) string {
	if errors.Is(err, apperrors.ErrNotFound) {
		return "not_found"
	}
	return "error"
}
