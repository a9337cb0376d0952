package postgres

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/search/pipeline"
)

// columns maps pipeline fields to SQL expressions once rows are grouped.
var columns = map[pipeline.Field]string{
	pipeline.FieldID:             `id COLLATE "C"`,
	pipeline.FieldName:           "name",
	pipeline.FieldPrice:          "price",
	pipeline.FieldSeller:         "seller",
	pipeline.FieldImages:         "images",
	pipeline.FieldAverageRating:  "average_rating",
	pipeline.FieldRelevanceScore: "relevance_score",
}

// compiled is a listing query and its positional arguments.
type compiled struct {
	sql  string
	args []any
}

type compiler struct {
	ctes    []string
	args    []any
	prev    string
	grouped bool
	scored  bool
	order   []string
	offset  int
	limit   int
}

func (c *compiler) arg(v any) string {
	c.args = append(c.args, v)
	return fmt.Sprintf("$%d", len(c.args))
}

func (c *compiler) push(body string) {
	name := fmt.Sprintf("s%d", len(c.ctes))
	c.ctes = append(c.ctes, fmt.Sprintf("%s AS (%s)", name, body))
	c.prev = name
}

// where renders the filter as a WHERE clause, or "" for no filter.
func (c *compiler) where(f catalog.Filter) string {
	var conds []string
	if f.Category != "" {
		conds = append(conds, "category = "+c.arg(f.Category))
	}
	if f.RestrictIDs {
		ids := make([]string, len(f.IDs))
		for i, id := range f.IDs {
			ids[i] = string(id)
		}
		conds = append(conds, "id = ANY("+c.arg(pq.Array(ids))+"::text[])")
	}
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

// compile translates a listing pipeline into one SQL statement built from
// CTEs, one per reshaping stage.
func compile(p pipeline.Pipeline) (compiled, error) {
	c := &compiler{prev: "products"}
	for _, st := range p.Stages {
		if err := c.stage(st); err != nil {
			return compiled{}, fmt.Errorf("%s stage: %w", pipeline.Name(st), err)
		}
	}
	if !c.grouped {
		return compiled{}, fmt.Errorf("%w: pipeline must group rows into summaries", pipeline.ErrUnsupported)
	}
	if !c.scored {
		c.push("SELECT " + c.prev + ".*, NULL::float8 AS relevance_score FROM " + c.prev)
	}

	var b strings.Builder
	b.WriteString("WITH ")
	b.WriteString(strings.Join(c.ctes, ",\n"))
	b.WriteString("\nSELECT id, name, price, seller, images, average_rating, relevance_score FROM ")
	b.WriteString(c.prev)
	if len(c.order) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(c.order, ", "))
	}
	if c.offset > 0 {
		b.WriteString(" OFFSET " + c.arg(c.offset))
	}
	if c.limit > 0 {
		b.WriteString(" LIMIT " + c.arg(c.limit))
	}
	return compiled{sql: b.String(), args: c.args}, nil
}

func (c *compiler) stage(st pipeline.Stage) error {
	switch s := st.(type) {
	case pipeline.Match:
		if c.prev != "products" {
			return fmt.Errorf("%w: match after reshaping", pipeline.ErrUnsupported)
		}
		c.push("SELECT * FROM products" + c.where(s.Filter))
	case pipeline.Unwind:
		if s.Path != pipeline.FieldRatings || c.grouped {
			return fmt.Errorf("%w: unwind %s", pipeline.ErrUnsupported, s.Path)
		}
		join := "CROSS JOIN LATERAL"
		on := ""
		if s.PreserveEmpty {
			join = "LEFT JOIN LATERAL"
			on = " ON TRUE"
		}
		c.push(fmt.Sprintf(
			"SELECT %[1]s.*, r.elem AS rating_elem FROM %[1]s %[2]s jsonb_array_elements(COALESCE(%[1]s.ratings, '[]'::jsonb)) AS r(elem)%[3]s",
			c.prev, join, on))
	case pipeline.Group:
		if s.Key != pipeline.FieldID || s.As != pipeline.FieldAverageRating || s.Average != pipeline.FieldRatingValue {
			return fmt.Errorf("%w: group by %s", pipeline.ErrUnsupported, s.Key)
		}
		cols := []string{"id"}
		for _, f := range s.First {
			col, ok := columns[f]
			if !ok || f == pipeline.FieldID {
				return fmt.Errorf("%w: first %s", pipeline.ErrUnsupported, f)
			}
			cols = append(cols, fmt.Sprintf("(array_agg(%[1]s ORDER BY seq))[1] AS %[1]s", col))
		}
		cols = append(cols, "AVG((rating_elem->>'rating')::float8) AS average_rating")
		c.push("SELECT " + strings.Join(cols, ", ") + " FROM " + c.prev + " GROUP BY id")
		c.grouped = true
	case pipeline.AddScores:
		if !c.grouped || s.As != pipeline.FieldRelevanceScore {
			return fmt.Errorf("%w: scores before grouping", pipeline.ErrUnsupported)
		}
		if len(s.Scores) == 0 {
			return nil
		}
		ids := make([]string, 0, len(s.Scores))
		scores := make([]float64, 0, len(s.Scores))
		for _, id := range s.Scores.IDs() {
			ids = append(ids, string(id))
			scores = append(scores, s.Scores[id])
		}
		c.push(fmt.Sprintf(
			"SELECT %[1]s.*, sc.score AS relevance_score FROM %[1]s LEFT JOIN unnest(%[2]s::text[], %[3]s::float8[]) AS sc(sid, score) ON sc.sid = %[1]s.id",
			c.prev, c.arg(pq.Array(ids)), c.arg(pq.Array(scores))))
		c.scored = true
	case pipeline.Sort:
		for _, f := range s.Fields {
			col, ok := columns[f.Field]
			if !ok {
				return fmt.Errorf("%w: sort on %s", pipeline.ErrUnsupported, f.Field)
			}
			dir := "ASC"
			if f.Direction == pipeline.Desc {
				dir = "DESC"
			}
			c.order = append(c.order, col+" "+dir+" NULLS LAST")
		}
	case pipeline.Skip:
		c.offset = s.N
	case pipeline.Limit:
		c.limit = s.N
	default:
		return fmt.Errorf("%w: %T", pipeline.ErrUnsupported, st)
	}
	return nil
}
