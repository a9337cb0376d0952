// Package pipeline describes catalog listing queries as an ordered list of
// declarative stages: match, unwind ratings, group, attach relevance, sort,
// skip and limit. Stores compile the plan to their own query language; Run
// executes it over in-memory products.
package pipeline

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
)

// Field names a value on a product document or listing summary.
type Field string

const (
	FieldID             Field = "_id"
	FieldName           Field = "name"
	FieldPrice          Field = "price"
	FieldSeller         Field = "seller"
	FieldImages         Field = "images"
	FieldRatings        Field = "ratings"
	FieldRatingValue    Field = "ratings.rating"
	FieldAverageRating  Field = "averageRating"
	FieldRelevanceScore Field = "relevanceScore"
)

// Direction orders a sort field.
type Direction int

const (
	Asc  Direction = 1
	Desc Direction = -1
)

// SortField is one key of a multi-key sort. Null values sort last in either
// direction.
type SortField struct {
	Field     Field
	Direction Direction
}

// Stage is one step of a Pipeline.
type Stage interface {
	stage() string
}

// Match keeps documents satisfying Filter.
type Match struct {
	Filter catalog.Filter
}

// Unwind emits one row per element of the array at Path. With
// PreserveEmpty a document whose array is empty still yields one row with
// no element.
type Unwind struct {
	Path          Field
	PreserveEmpty bool
}

// Group collapses rows sharing Key, keeping the first-seen value of every
// First field and the mean of Average stored as As. The mean is null when
// no row carried a value.
type Group struct {
	Key     Field
	First   []Field
	Average Field
	As      Field
}

// AddScores attaches Scores[id] as As. Products without a score get null.
type AddScores struct {
	Scores catalog.RelevanceMap
	As     Field
}

// Sort orders rows by Fields.
type Sort struct {
	Fields []SortField
}

// Skip drops the first N rows.
type Skip struct {
	N int
}

// Limit keeps at most N rows.
type Limit struct {
	N int
}

func (Match) stage() string     { return "match" }
func (Unwind) stage() string    { return "unwind" }
func (Group) stage() string     { return "group" }
func (AddScores) stage() string { return "addScores" }
func (Sort) stage() string      { return "sort" }
func (Skip) stage() string      { return "skip" }
func (Limit) stage() string     { return "limit" }

// Name returns the stage's kind, for logging.
func Name(s Stage) string {
	return s.stage()
}

// Pipeline is an ordered list of stages.
type Pipeline struct {
	Stages []Stage
}

// String renders the stage kinds, for logs.
func (p Pipeline) String() string {
	out := ""
	for i, s := range p.Stages {
		if i > 0 {
			out += " -> "
		}
		out += s.stage()
	}
	return out
}

// Query is the input of Build.
type Query struct {
	Filter catalog.Filter
	Scores catalog.RelevanceMap
	Sort   SortKey
	Skip   int
	Limit  int
}

// Build assembles the listing pipeline: match, unwind ratings (keeping
// unrated products), group by id with first-seen name, price, seller and
// images plus the average rating, attach relevance scores, sort, skip and
// limit.
func Build(q Query) (Pipeline, error) {
	if q.Skip < 0 {
		return Pipeline{}, fmt.Errorf("pipeline skip must be >= 0, got %d", q.Skip)
	}
	if q.Limit <= 0 {
		return Pipeline{}, fmt.Errorf("pipeline limit must be > 0, got %d", q.Limit)
	}
	stages := []Stage{
		Match{Filter: q.Filter},
		Unwind{Path: FieldRatings, PreserveEmpty: true},
		Group{
			Key:     FieldID,
			First:   []Field{FieldName, FieldPrice, FieldSeller, FieldImages},
			Average: FieldRatingValue,
			As:      FieldAverageRating,
		},
		AddScores{Scores: q.Scores, As: FieldRelevanceScore},
		Sort{Fields: q.Sort.Fields()},
		Skip{N: q.Skip},
		Limit{N: q.Limit},
	}
	return Pipeline{Stages: stages}, nil
}
