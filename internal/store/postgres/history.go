package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/history"
	apperrors "github.com/Adithya-Monish-Kumar-K/buyit/pkg/errors"
)

type historyTable struct {
	table string
	key   string
}

var historyTables = map[history.Kind]historyTable{
	history.KindSearch: {table: "search_history", key: "term"},
	history.KindBrowse: {table: "browse_history", key: "category"},
}

// History is the history repository view of a Store.
type History struct{ s *Store }

// History returns the history repository.
func (s *Store) History() *History { return &History{s: s} }

func (h *History) Increment(ctx context.Context, kind history.Kind, userID, key string, weight, maxKeys int) error {
	t, ok := historyTables[kind]
	if !ok {
		return apperrors.Invalid("unknown history kind %q", kind)
	}
	return h.s.client.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %[1]s (user_id, %[2]s, weight, updated_at) VALUES ($1, $2, $3, clock_timestamp())
			ON CONFLICT (user_id, %[2]s) DO UPDATE
			SET weight = %[1]s.weight + EXCLUDED.weight, updated_at = EXCLUDED.updated_at`, t.table, t.key),
			userID, key, weight)
		if err != nil {
			return apperrors.DataAccess("incrementing "+string(kind)+" history", err)
		}
		if maxKeys <= 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`
			DELETE FROM %[1]s WHERE user_id = $1 AND %[2]s IN (
				SELECT %[2]s FROM %[1]s WHERE user_id = $1
				ORDER BY weight DESC, updated_at DESC OFFSET $2
			)`, t.table, t.key), userID, maxKeys)
		if err != nil {
			return apperrors.DataAccess("evicting "+string(kind)+" history", err)
		}
		return nil
	})
}

func (h *History) Weights(ctx context.Context, kind history.Kind, userID string) (map[string]int, error) {
	t, ok := historyTables[kind]
	if !ok {
		return nil, apperrors.Invalid("unknown history kind %q", kind)
	}
	rows, err := h.s.client.DB.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s, weight FROM %s WHERE user_id = $1`, t.key, t.table), userID)
	if err != nil {
		return nil, apperrors.DataAccess("reading "+string(kind)+" history", err)
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var (
			k string
			w int
		)
		if err := rows.Scan(&k, &w); err != nil {
			return nil, apperrors.DataAccess("scanning history", err)
		}
		out[k] = w
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DataAccess("iterating history", err)
	}
	return out, nil
}

var _ history.Repository = (*History)(nil)
