// Package relevance scores every product in the corpus against a free-text
// query and returns the admitted identifiers with their scores.
//
// Each product is matched through the token list built by Tokens. This is a
// full corpus scan per query, so latency grows linearly with catalog size.
package relevance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/search/fuzzy"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/search/sample"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/metrics"
)

// Scanner reads the corpus projection.
type Scanner interface {
	ScanCorpus(ctx context.Context, filter catalog.Filter) ([]catalog.CorpusEntry, error)
}

// Config controls admission and sampling.
type Config struct {
	// Threshold is exclusive: a product is admitted when its best token
	// scores strictly above it.
	Threshold  float64
	SampleSize int
	Workers    int
}

// Result is the outcome of one scoring pass.
type Result struct {
	// IDs are the admitted products in corpus order.
	IDs     []catalog.ProductID
	Scores  catalog.RelevanceMap
	Sampled bool
	Skipped int
}

// Builder runs scoring passes.
type Builder struct {
	scanner Scanner
	sampler *sample.Sampler
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewBuilder creates a Builder. m may be nil.
func NewBuilder(scanner Scanner, sampler *sample.Sampler, cfg Config, m *metrics.Metrics) *Builder {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = 4
	}
	return &Builder{
		scanner: scanner,
		sampler: sampler,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "relevance-builder"),
	}
}

// Tokens returns the strings a product is matched through: name words
// longer than two characters, the category, and tags longer than one
// character.
func Tokens(e catalog.CorpusEntry) []string {
	tokens := make([]string, 0, len(e.Tags)+4)
	for _, w := range strings.Fields(e.Name) {
		if utf8.RuneCountInString(w) > 2 {
			tokens = append(tokens, w)
		}
	}
	tokens = append(tokens, e.Category)
	for _, t := range e.Tags {
		if utf8.RuneCountInString(t) > 1 {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// Build scores the corpus (restricted to category when non-empty) against
// query. When random is set and at least SampleSize products are admitted,
// the result is reduced to a uniform sample of SampleSize; with fewer
// admitted products the full set is returned unsampled.
func (b *Builder) Build(ctx context.Context, query, category string, random bool) (Result, error) {
	start := time.Now()
	log := logger.FromContext(ctx).With("component", "relevance-builder")

	entries, err := b.scanner.ScanCorpus(ctx, catalog.Filter{Category: category})
	if err != nil {
		return Result{}, fmt.Errorf("scanning corpus: %w", err)
	}

	type verdict struct {
		accepted bool
		skipped  bool
		score    float64
	}
	verdicts := make([]verdict, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Workers)
	chunk := (len(entries) + b.cfg.Workers - 1) / b.cfg.Workers
	for lo := 0; lo < len(entries); lo += chunk {
		hi := min(lo+chunk, len(entries))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				e := entries[i]
				if e.Err != nil || e.ID == "" {
					verdicts[i].skipped = true
					continue
				}
				m := fuzzy.BestMatch(query, Tokens(e))
				if m.Score > b.cfg.Threshold {
					verdicts[i] = verdict{accepted: true, score: m.Score}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("scoring corpus: %w", err)
	}

	res := Result{Scores: make(catalog.RelevanceMap)}
	for i, v := range verdicts {
		switch {
		case v.skipped:
			res.Skipped++
			log.Warn("skipping unreadable product during relevance scan",
				"product_id", entries[i].ID,
				"error", entries[i].Err,
			)
		case v.accepted:
			res.IDs = append(res.IDs, entries[i].ID)
			res.Scores[entries[i].ID] = v.score
		}
	}

	if random {
		if picked, err := sample.Pick(b.sampler, res.IDs, b.cfg.SampleSize); err == nil {
			res.IDs = picked
			res.Scores = res.Scores.Restrict(picked)
			res.Sampled = true
		} else {
			log.Debug("random subset skipped, too few matches",
				"accepted", len(res.IDs),
				"sample_size", b.cfg.SampleSize,
			)
		}
	}

	if b.metrics != nil {
		b.metrics.CorpusScanDuration.WithLabelValues("relevance").Observe(time.Since(start).Seconds())
		if res.Skipped > 0 {
			b.metrics.CorpusSkippedTotal.WithLabelValues("relevance").Add(float64(res.Skipped))
		}
	}
	log.Debug("relevance scan complete",
		"query", query,
		"category", category,
		"corpus", len(entries),
		"accepted", len(res.IDs),
		"skipped", res.Skipped,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}
