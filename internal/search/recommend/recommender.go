// Package recommend suggests products whose tags resemble a set of input
// tags, typically the tags of products a user already ordered.
package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/search/fuzzy"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/search/sample"
	apperrors "github.com/Adithya-Monish-Kumar-K/buyit/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/metrics"
)

// Store reads the corpus projection and full product documents.
type Store interface {
	ScanCorpus(ctx context.Context, filter catalog.Filter) ([]catalog.CorpusEntry, error)
	FindByIDs(ctx context.Context, ids []catalog.ProductID) ([]catalog.Product, error)
}

// Config controls tag admission and the size of a recommendation.
type Config struct {
	// Threshold is inclusive.
	Threshold float64
	// MaxIndex is the highest position in a product's tag list the best
	// matching tag may occupy. Matches further down the list are ignored.
	MaxIndex      int
	MinCandidates int
	SampleSize    int
	Workers       int
}

// ErrInsufficient is returned when fewer than MinCandidates distinct
// products match. Callers report it as a soft failure.
var ErrInsufficient = apperrors.New(apperrors.ErrInsufficientResults, http.StatusOK, "could not find sufficient products")

// Recommender picks products by tag similarity.
type Recommender struct {
	store   Store
	sampler *sample.Sampler
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Recommender. m may be nil.
func New(store Store, sampler *sample.Sampler, cfg Config, m *metrics.Metrics) *Recommender {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = 4
	}
	if cfg.MinCandidates < cfg.SampleSize {
		cfg.MinCandidates = cfg.SampleSize
	}
	return &Recommender{
		store:   store,
		sampler: sampler,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "tag-recommender"),
	}
}

// Candidates returns every product id collected by the tag pass, in corpus
// order, once per input tag that matched it.
func (r *Recommender) Candidates(ctx context.Context, tags []string) ([]catalog.ProductID, error) {
	start := time.Now()
	tags = lo.Filter(tags, func(t string, _ int) bool { return strings.TrimSpace(t) != "" })
	if len(tags) == 0 {
		return nil, nil
	}

	entries, err := r.store.ScanCorpus(ctx, catalog.Filter{})
	if err != nil {
		return nil, fmt.Errorf("scanning corpus: %w", err)
	}

	hits := make([][]catalog.ProductID, len(entries))
	skipped := make([]bool, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	chunk := (len(entries) + r.cfg.Workers - 1) / r.cfg.Workers
	for from := 0; from < len(entries); from += chunk {
		to := min(from+chunk, len(entries))
		g.Go(func() error {
			for i := from; i < to; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				e := entries[i]
				if e.Err != nil || e.ID == "" {
					skipped[i] = true
					continue
				}
				for _, tag := range tags {
					if r.accepts(fuzzy.BestMatch(tag, e.Tags)) {
						hits[i] = append(hits[i], e.ID)
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scoring tags: %w", err)
	}

	log := logger.FromContext(ctx).With("component", "tag-recommender")
	var out []catalog.ProductID
	nSkipped := 0
	for i := range entries {
		if skipped[i] {
			nSkipped++
			log.Warn("skipping unreadable product during tag scan",
				"product_id", entries[i].ID,
				"error", entries[i].Err,
			)
			continue
		}
		out = append(out, hits[i]...)
	}
	if r.metrics != nil {
		r.metrics.CorpusScanDuration.WithLabelValues("tags").Observe(time.Since(start).Seconds())
		if nSkipped > 0 {
			r.metrics.CorpusSkippedTotal.WithLabelValues("tags").Add(float64(nSkipped))
		}
	}
	return out, nil
}

func (r *Recommender) accepts(m fuzzy.Match) bool {
	return m.Found() && m.Index <= r.cfg.MaxIndex && m.Score >= r.cfg.Threshold
}

// Sufficient reports whether tags collect enough distinct products for a
// recommendation.
func (r *Recommender) Sufficient(ctx context.Context, tags []string) (bool, error) {
	ids, err := r.Candidates(ctx, tags)
	if err != nil {
		return false, err
	}
	return len(lo.Uniq(ids)) >= r.cfg.MinCandidates, nil
}

// Recommend returns exactly SampleSize distinct products drawn uniformly
// from the matching products, or ErrInsufficient.
func (r *Recommender) Recommend(ctx context.Context, tags []string) ([]catalog.Product, error) {
	ids, err := r.Candidates(ctx, tags)
	if err != nil {
		r.observe("error")
		return nil, err
	}
	unique := lo.Uniq(ids)
	if len(unique) < r.cfg.MinCandidates {
		r.observe("insufficient")
		logger.FromContext(ctx).Debug("not enough tag matches",
			"component", "tag-recommender",
			"candidates", len(ids),
			"distinct", len(unique),
		)
		return nil, ErrInsufficient
	}

	products, err := r.store.FindByIDs(ctx, unique)
	if err != nil {
		r.observe("error")
		return nil, fmt.Errorf("fetching candidates: %w", err)
	}
	picked, err := sample.Pick(r.sampler, products, r.cfg.SampleSize)
	if err != nil {
		// products vanished between the scan and the fetch
		r.observe("insufficient")
		return nil, ErrInsufficient
	}
	r.observe("success")
	return picked, nil
}

func (r *Recommender) observe(outcome string) {
	if r.metrics != nil {
		r.metrics.RecommendationsTotal.WithLabelValues(outcome).Inc()
	}
}
