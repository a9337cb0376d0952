package pipeline

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
)

// ErrUnsupported is returned by executors for stages or fields they cannot
// evaluate.
var ErrUnsupported = errors.New("unsupported pipeline stage")

type unwound struct {
	product *catalog.Product
	rating  *catalog.Rating
}

// rows tracks the shape of the data between stages: whole documents, then
// unwound rating rows, then grouped summaries.
type rows struct {
	docs    []*catalog.Product
	unwound []unwound
	grouped []catalog.Summary
	phase   int
}

const (
	phaseDocs = iota
	phaseUnwound
	phaseGrouped
)

// Run executes the pipeline over products. Input order is preserved until
// the Sort stage, so Group keeps the first-seen value in corpus order.
func (p Pipeline) Run(products []catalog.Product) ([]catalog.Summary, error) {
	r := rows{docs: make([]*catalog.Product, len(products))}
	for i := range products {
		r.docs[i] = &products[i]
	}
	for _, st := range p.Stages {
		if err := r.apply(st); err != nil {
			return nil, fmt.Errorf("%s stage: %w", st.stage(), err)
		}
	}
	if r.phase != phaseGrouped {
		return nil, fmt.Errorf("%w: pipeline must group rows into summaries", ErrUnsupported)
	}
	return r.grouped, nil
}

func (r *rows) apply(st Stage) error {
	switch s := st.(type) {
	case Match:
		if r.phase != phaseDocs {
			return fmt.Errorf("%w: match after reshaping", ErrUnsupported)
		}
		kept := r.docs[:0:0]
		for _, d := range r.docs {
			if s.Filter.Matches(d) {
				kept = append(kept, d)
			}
		}
		r.docs = kept
	case Unwind:
		if r.phase != phaseDocs || s.Path != FieldRatings {
			return fmt.Errorf("%w: unwind %q", ErrUnsupported, s.Path)
		}
		for _, d := range r.docs {
			if len(d.Ratings) == 0 {
				if s.PreserveEmpty {
					r.unwound = append(r.unwound, unwound{product: d})
				}
				continue
			}
			for i := range d.Ratings {
				r.unwound = append(r.unwound, unwound{product: d, rating: &d.Ratings[i]})
			}
		}
		r.docs = nil
		r.phase = phaseUnwound
	case Group:
		return r.group(s)
	case AddScores:
		if r.phase != phaseGrouped || s.As != FieldRelevanceScore {
			return fmt.Errorf("%w: addScores as %q", ErrUnsupported, s.As)
		}
		for i := range r.grouped {
			r.grouped[i].RelevanceScore = s.Scores.Score(r.grouped[i].ID)
		}
	case Sort:
		if r.phase != phaseGrouped {
			return fmt.Errorf("%w: sort before group", ErrUnsupported)
		}
		for _, f := range s.Fields {
			if _, ok := summaryKeys[f.Field]; !ok {
				return fmt.Errorf("%w: sort on %q", ErrUnsupported, f.Field)
			}
		}
		slices.SortStableFunc(r.grouped, func(a, b catalog.Summary) int {
			return compareSummaries(a, b, s.Fields)
		})
	case Skip:
		if r.phase != phaseGrouped {
			return fmt.Errorf("%w: skip before group", ErrUnsupported)
		}
		r.grouped = r.grouped[min(s.N, len(r.grouped)):]
	case Limit:
		if r.phase != phaseGrouped {
			return fmt.Errorf("%w: limit before group", ErrUnsupported)
		}
		r.grouped = r.grouped[:min(s.N, len(r.grouped))]
	default:
		return fmt.Errorf("%w: %T", ErrUnsupported, st)
	}
	return nil
}

func (r *rows) group(g Group) error {
	if r.phase != phaseUnwound || g.Key != FieldID || g.Average != FieldRatingValue || g.As != FieldAverageRating {
		return fmt.Errorf("%w: group by %q averaging %q", ErrUnsupported, g.Key, g.Average)
	}
	type acc struct {
		summary catalog.Summary
		sum     int
		n       int
	}
	index := make(map[catalog.ProductID]int)
	var groups []*acc
	for _, u := range r.unwound {
		i, ok := index[u.product.ID]
		if !ok {
			s := catalog.Summary{ID: u.product.ID}
			for _, f := range g.First {
				switch f {
				case FieldName:
					s.Name = u.product.Name
				case FieldPrice:
					s.Price = u.product.Price
				case FieldSeller:
					s.Seller = u.product.Seller
				case FieldImages:
					s.Images = u.product.Images
				default:
					return fmt.Errorf("%w: first(%q)", ErrUnsupported, f)
				}
			}
			i = len(groups)
			index[u.product.ID] = i
			groups = append(groups, &acc{summary: s})
		}
		if u.rating != nil {
			groups[i].sum += u.rating.Rating
			groups[i].n++
		}
	}
	r.grouped = make([]catalog.Summary, len(groups))
	for i, a := range groups {
		if a.n > 0 {
			avg := float64(a.sum) / float64(a.n)
			a.summary.AverageRating = &avg
		}
		r.grouped[i] = a.summary
	}
	r.unwound = nil
	r.phase = phaseGrouped
	return nil
}

var summaryKeys = map[Field]struct{}{
	FieldID:             {},
	FieldPrice:          {},
	FieldAverageRating:  {},
	FieldRelevanceScore: {},
}

func compareSummaries(a, b catalog.Summary, fields []SortField) int {
	for _, f := range fields {
		var c int
		switch f.Field {
		case FieldID:
			c = int(f.Direction) * cmp.Compare(a.ID, b.ID)
		case FieldPrice:
			c = int(f.Direction) * cmp.Compare(a.Price, b.Price)
		case FieldAverageRating:
			c = compareNullable(a.AverageRating, b.AverageRating, f.Direction)
		case FieldRelevanceScore:
			c = compareNullable(a.RelevanceScore, b.RelevanceScore, f.Direction)
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

func compareNullable(a, b *float64, dir Direction) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return int(dir) * cmp.Compare(*a, *b)
}
