// Package paginate turns a catalog filter into one page of listing
// summaries plus the total match count and the next page number.
package paginate

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/search/pipeline"
	apperrors "github.com/Adithya-Monish-Kumar-K/buyit/pkg/errors"
)

// Aggregator executes listing pipelines and counts matches.
type Aggregator interface {
	Aggregate(ctx context.Context, p pipeline.Pipeline) ([]catalog.Summary, error)
	Count(ctx context.Context, filter catalog.Filter) (int, error)
}

// Request describes one page. Page is 1-based.
type Request struct {
	Filter  catalog.Filter
	Scores  catalog.RelevanceMap
	Sort    pipeline.SortKey
	Page    int
	PerPage int
}

// Page is one page of results. Total counts every product matching the
// filter regardless of sort or page.
type Page struct {
	Items    []catalog.Summary
	NextPage *int
	Total    int
}

// NextPage returns page+1 when products remain after this page, else nil.
func NextPage(page, perPage, total int) *int {
	if (page-1)*perPage+perPage < total {
		next := page + 1
		return &next
	}
	return nil
}

// Paginate runs the listing pipeline and the count concurrently.
func Paginate(ctx context.Context, agg Aggregator, req Request) (Page, error) {
	if req.Page <= 0 {
		return Page{}, apperrors.Invalid("page must be >= 1, got %d", req.Page)
	}
	if req.PerPage <= 0 {
		return Page{}, apperrors.Invalid("perPage must be >= 1, got %d", req.PerPage)
	}
	// page*perPage must fit an int for the skip and next-page arithmetic
	if req.Page > math.MaxInt/req.PerPage {
		return Page{}, apperrors.Invalid("page %d is out of range for perPage %d", req.Page, req.PerPage)
	}
	p, err := pipeline.Build(pipeline.Query{
		Filter: req.Filter,
		Scores: req.Scores,
		Sort:   req.Sort,
		Skip:   (req.Page - 1) * req.PerPage,
		Limit:  req.PerPage,
	})
	if err != nil {
		return Page{}, apperrors.Invalid("%v", err)
	}

	var (
		items []catalog.Summary
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = agg.Aggregate(gctx, p)
		if err != nil {
			return fmt.Errorf("aggregating page: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		total, err = agg.Count(gctx, req.Filter)
		if err != nil {
			return fmt.Errorf("counting matches: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Page{}, err
	}
	if items == nil {
		items = []catalog.Summary{}
	}
	return Page{
		Items:    items,
		NextPage: NextPage(req.Page, req.PerPage, total),
		Total:    total,
	}, nil
}
