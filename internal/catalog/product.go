// Package catalog defines the product document and the projections the
// search pipeline reads and writes.
package catalog

import (
	"slices"
	"strings"
)

// ProductID identifies a product document. Ordering is lexicographic and is
// the final tiebreak of every catalog sort.
type ProductID string

// Rating is one user's review embedded in a product. A user rates a product
// at most once.
type Rating struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Details  string `json:"details"`
	Rating   int    `json:"rating"`
}

// Product is the stored catalog document.
type Product struct {
	ID       ProductID `json:"_id"`
	Name     string    `json:"name"`
	Category string    `json:"category"`
	Details  string    `json:"details"`
	Tags     []string  `json:"tags"`
	Price    float64   `json:"price"`
	Seller   string    `json:"seller"`
	Images   []string  `json:"images"`
	Ratings  []Rating  `json:"ratings"`
}

// Summary is the listing projection returned by browse and search.
// AverageRating is nil for unrated products and RelevanceScore is nil unless
// the product was scored against a search query.
type Summary struct {
	ID             ProductID `json:"_id"`
	Name           string    `json:"name"`
	Price          float64   `json:"price"`
	Seller         string    `json:"seller"`
	Images         []string  `json:"images"`
	AverageRating  *float64  `json:"averageRating"`
	RelevanceScore *float64  `json:"relevanceScore"`
}

// CorpusEntry is the scan projection used by fuzzy scoring. Err is set when
// the stored document could not be decoded; scorers skip such entries.
type CorpusEntry struct {
	ID       ProductID
	Name     string
	Category string
	Tags     []string
	Err      error
}

// AverageRating returns the mean of the ratings, or nil when there are none.
func AverageRating(ratings []Rating) *float64 {
	if len(ratings) == 0 {
		return nil
	}
	sum := 0
	for _, r := range ratings {
		sum += r.Rating
	}
	avg := float64(sum) / float64(len(ratings))
	return &avg
}

// JoinedTags renders a product's tags as one space separated string, the
// shape the tag recommender receives from order history.
func JoinedTags(tags []string) string {
	return strings.Join(tags, " ")
}

// Filter selects products by category and/or an explicit identifier set.
// When RestrictIDs is set only IDs match, so an empty IDs list matches
// nothing.
type Filter struct {
	Category    string
	IDs         []ProductID
	RestrictIDs bool
}

// WithIDs returns a copy of f restricted to ids.
func (f Filter) WithIDs(ids []ProductID) Filter {
	f.IDs = ids
	f.RestrictIDs = true
	return f
}

// Matches reports whether the product satisfies the filter.
func (f Filter) Matches(p *Product) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.RestrictIDs && !slices.Contains(f.IDs, p.ID) {
		return false
	}
	return true
}

// RelevanceMap holds the fuzzy score of every product admitted by a search
// query, keyed by product id.
type RelevanceMap map[ProductID]float64

// IDs returns the admitted identifiers in ascending order.
func (m RelevanceMap) IDs() []ProductID {
	ids := make([]ProductID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Score returns the product's score, or nil when it was not scored.
func (m RelevanceMap) Score(id ProductID) *float64 {
	s, ok := m[id]
	if !ok {
		return nil
	}
	return &s
}

// Restrict returns a map holding only the given ids.
func (m RelevanceMap) Restrict(ids []ProductID) RelevanceMap {
	out := make(RelevanceMap, len(ids))
	for _, id := range ids {
		if s, ok := m[id]; ok {
			out[id] = s
		}
	}
	return out
}

// Listing is one page of a browse or search response. NextPage is nil on
// the last page and Length counts every product matching the filter.
type Listing struct {
	Products []Summary `json:"products"`
	NextPage *int      `json:"nextPage"`
	Length   int       `json:"length"`
}
