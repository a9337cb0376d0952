// Package postgres implements the storefront repositories on PostgreSQL.
// Product documents keep their tags, images and ratings in JSONB columns and
// listing pipelines are compiled into SQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/search/pipeline"
	apperrors "github.com/Adithya-Monish-Kumar-K/buyit/pkg/errors"
	pg "github.com/Adithya-Monish-Kumar-K/buyit/pkg/postgres"
)

const uniqueViolation = "23505"

// Store reads and writes every storefront table through one client.
type Store struct {
	client *pg.Client
	logger *slog.Logger
}

// New creates a Store.
func New(client *pg.Client) *Store {
	return &Store{
		client: client,
		logger: slog.Default().With("component", "postgres-store"),
	}
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func productWhere(f catalog.Filter) (string, []any) {
	c := &compiler{}
	return c.where(f), c.args
}

// ScanCorpus returns the scoring projection of every matching product in
// insertion order. Rows whose tags cannot be decoded are returned with Err
// set so scorers can skip them.
func (s *Store) ScanCorpus(ctx context.Context, filter catalog.Filter) ([]catalog.CorpusEntry, error) {
	where, args := productWhere(filter)
	rows, err := s.client.DB.QueryContext(ctx,
		`SELECT id, name, category, tags FROM products`+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, apperrors.DataAccess("scanning corpus", err)
	}
	defer rows.Close()

	var out []catalog.CorpusEntry
	for rows.Next() {
		var (
			e    catalog.CorpusEntry
			tags []byte
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Category, &tags); err != nil {
			return nil, apperrors.DataAccess("scanning corpus row", err)
		}
		if err := json.Unmarshal(tags, &e.Tags); err != nil {
			e.Err = fmt.Errorf("decoding tags of %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DataAccess("iterating corpus", err)
	}
	return out, nil
}

// Aggregate runs a listing pipeline compiled to SQL.
func (s *Store) Aggregate(ctx context.Context, p pipeline.Pipeline) ([]catalog.Summary, error) {
	q, err := compile(p)
	if err != nil {
		return nil, err
	}
	rows, err := s.client.DB.QueryContext(ctx, q.sql, q.args...)
	if err != nil {
		return nil, apperrors.DataAccess("aggregating listing", err)
	}
	defer rows.Close()

	out := []catalog.Summary{}
	for rows.Next() {
		var (
			sum    catalog.Summary
			images []byte
			avg    sql.NullFloat64
			score  sql.NullFloat64
		)
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.Price, &sum.Seller, &images, &avg, &score); err != nil {
			return nil, apperrors.DataAccess("scanning listing row", err)
		}
		if err := json.Unmarshal(images, &sum.Images); err != nil {
			return nil, apperrors.DataAccess("decoding images of "+string(sum.ID), err)
		}
		if avg.Valid {
			sum.AverageRating = &avg.Float64
		}
		if score.Valid {
			sum.RelevanceScore = &score.Float64
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DataAccess("iterating listing", err)
	}
	return out, nil
}

// Count returns the number of products matching filter.
func (s *Store) Count(ctx context.Context, filter catalog.Filter) (int, error) {
	where, args := productWhere(filter)
	var n int
	if err := s.client.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&n); err != nil {
		return 0, apperrors.DataAccess("counting products", err)
	}
	return n, nil
}

const productColumns = `id, name, category, details, tags, price, seller, images, ratings`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(r rowScanner) (catalog.Product, error) {
	var (
		p                     catalog.Product
		tags, images, ratings []byte
	)
	if err := r.Scan(&p.ID, &p.Name, &p.Category, &p.Details, &tags, &p.Price, &p.Seller, &images, &ratings); err != nil {
		return catalog.Product{}, err
	}
	for _, f := range []struct {
		raw []byte
		dst any
	}{{tags, &p.Tags}, {images, &p.Images}, {ratings, &p.Ratings}} {
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return catalog.Product{}, fmt.Errorf("decoding product %s: %w", p.ID, err)
		}
	}
	return p, nil
}

// FindByIDs loads the listed products in insertion order. Unknown ids are
// ignored.
func (s *Store) FindByIDs(ctx context.Context, ids []catalog.ProductID) ([]catalog.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	rows, err := s.client.DB.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1::text[]) ORDER BY seq`, pq.Array(raw))
	if err != nil {
		return nil, apperrors.DataAccess("finding products", err)
	}
	defer rows.Close()
	var out []catalog.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, apperrors.DataAccess("scanning product", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DataAccess("iterating products", err)
	}
	return out, nil
}

// Get loads one product.
func (s *Store) Get(ctx context.Context, id catalog.ProductID) (catalog.Product, error) {
	p, err := scanProduct(s.client.DB.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Product{}, apperrors.NotFound("product %s not found", id)
	}
	if err != nil {
		return catalog.Product{}, apperrors.DataAccess("getting product", err)
	}
	return p, nil
}

func marshalJSON(v any, empty string) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return []byte(empty), nil
	}
	return b, nil
}

// InsertProduct stores a new product.
func (s *Store) InsertProduct(ctx context.Context, p catalog.Product) error {
	tags, err := marshalJSON(p.Tags, "[]")
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}
	images, err := marshalJSON(p.Images, "[]")
	if err != nil {
		return fmt.Errorf("encoding images: %w", err)
	}
	ratings, err := marshalJSON(p.Ratings, "[]")
	if err != nil {
		return fmt.Errorf("encoding ratings: %w", err)
	}
	_, err = s.client.DB.ExecContext(ctx,
		`INSERT INTO products (`+productColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(p.ID), p.Name, p.Category, p.Details, tags, p.Price, p.Seller, images, ratings)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return apperrors.Conflict("product %s already exists", p.ID)
		}
		return apperrors.DataAccess("inserting product", err)
	}
	return nil
}

// UpsertRating replaces the rating left by r.UserID or appends r. The
// product row is locked for the read-modify-write.
func (s *Store) UpsertRating(ctx context.Context, id catalog.ProductID, r catalog.Rating) (bool, error) {
	added := false
	err := s.client.InTx(ctx, func(tx *sql.Tx) error {
		var raw []byte
		err := tx.QueryRowContext(ctx, `SELECT ratings FROM products WHERE id = $1 FOR UPDATE`, string(id)).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("product %s not found", id)
		}
		if err != nil {
			return apperrors.DataAccess("locking product", err)
		}
		var ratings []catalog.Rating
		if err := json.Unmarshal(raw, &ratings); err != nil {
			return apperrors.DataAccess("decoding ratings", err)
		}
		replaced := false
		for i := range ratings {
			if ratings[i].UserID == r.UserID {
				ratings[i] = r
				replaced = true
				break
			}
		}
		if !replaced {
			ratings = append(ratings, r)
			added = true
		}
		enc, err := json.Marshal(ratings)
		if err != nil {
			return fmt.Errorf("encoding ratings: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE products SET ratings = $2 WHERE id = $1`, string(id), enc); err != nil {
			return apperrors.DataAccess("updating ratings", err)
		}
		return nil
	})
	return added, err
}

// Seed inserts or replaces products in one transaction.
func (s *Store) Seed(ctx context.Context, products []catalog.Product) error {
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		for _, p := range products {
			tags, _ := marshalJSON(p.Tags, "[]")
			images, _ := marshalJSON(p.Images, "[]")
			ratings, _ := marshalJSON(p.Ratings, "[]")
			_, err := tx.ExecContext(ctx, `
				INSERT INTO products (`+productColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT (id) DO UPDATE SET
					name = EXCLUDED.name, category = EXCLUDED.category, details = EXCLUDED.details,
					tags = EXCLUDED.tags, price = EXCLUDED.price, seller = EXCLUDED.seller,
					images = EXCLUDED.images, ratings = EXCLUDED.ratings`,
				string(p.ID), p.Name, p.Category, p.Details, tags, p.Price, p.Seller, images, ratings)
			if err != nil {
				return apperrors.DataAccess("seeding product "+string(p.ID), err)
			}
		}
		return nil
	})
}
