package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/cart"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/order"
	apperrors "github.com/Adithya-Monish-Kumar-K/buyit/pkg/errors"
)

// Carts is the cart repository view of a Store.
type Carts struct{ s *Store }

// Carts returns the cart repository.
func (s *Store) Carts() *Carts { return &Carts{s: s} }

func (c *Carts) Items(ctx context.Context, userID string) ([]cart.Item, error) {
	rows, err := c.s.client.DB.QueryContext(ctx,
		`SELECT product_id, quantity FROM cart_items WHERE user_id = $1 ORDER BY added_at, product_id`, userID)
	if err != nil {
		return nil, apperrors.DataAccess("listing cart", err)
	}
	defer rows.Close()
	var out []cart.Item
	for rows.Next() {
		var it cart.Item
		if err := rows.Scan(&it.ProductID, &it.Quantity); err != nil {
			return nil, apperrors.DataAccess("scanning cart item", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DataAccess("iterating cart", err)
	}
	return out, nil
}

const addCartItem = `
	INSERT INTO cart_items (user_id, product_id, quantity) VALUES ($1, $2, $3)
	ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func addItem(ctx context.Context, db execer, userID string, it cart.Item) error {
	if _, err := db.ExecContext(ctx, addCartItem, userID, string(it.ProductID), it.Quantity); err != nil {
		return apperrors.DataAccess("adding cart item", err)
	}
	return nil
}

func (c *Carts) Add(ctx context.Context, userID string, item cart.Item) error {
	return addItem(ctx, c.s.client.DB, userID, item)
}

func (c *Carts) Merge(ctx context.Context, userID string, items []cart.Item) error {
	return c.s.client.InTx(ctx, func(tx *sql.Tx) error {
		for _, it := range items {
			if err := addItem(ctx, tx, userID, it); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *Carts) Remove(ctx context.Context, userID string, productID catalog.ProductID) error {
	_, err := c.s.client.DB.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`, userID, string(productID))
	if err != nil {
		return apperrors.DataAccess("removing cart item", err)
	}
	return nil
}

// Orders is the order repository view of a Store.
type Orders struct{ s *Store }

// Orders returns the order repository.
func (s *Store) Orders() *Orders { return &Orders{s: s} }

// Place inserts the order and decrements the cart in one transaction.
func (o *Orders) Place(ctx context.Context, ord order.Order) error {
	return o.s.client.InTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, string(ord.ProductID)).Scan(&exists)
		if err != nil {
			return apperrors.DataAccess("checking product", err)
		}
		if !exists {
			return apperrors.NotFound("product %s not found", ord.ProductID)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO orders (order_id, user_id, product_id, quantity, address, order_date, order_status)
			VALUES ($1, $2, $3, $4, $5, $6::date, $7)`,
			ord.ID, ord.UserID, string(ord.ProductID), ord.Quantity, ord.Address, ord.OrderDate, ord.Status)
		if err != nil {
			return apperrors.DataAccess("inserting order", err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE cart_items SET quantity = quantity - $3 WHERE user_id = $1 AND product_id = $2`,
			ord.UserID, string(ord.ProductID), ord.Quantity)
		if err != nil {
			return apperrors.DataAccess("decrementing cart", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1 AND quantity <= 0`, ord.UserID); err != nil {
			return apperrors.DataAccess("pruning cart", err)
		}
		return nil
	})
}

func (o *Orders) List(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := o.s.client.DB.QueryContext(ctx, `
		SELECT order_id, user_id, product_id, quantity, address, order_date, order_status
		FROM orders WHERE user_id = $1 ORDER BY created_at, order_id`, userID)
	if err != nil {
		return nil, apperrors.DataAccess("listing orders", err)
	}
	defer rows.Close()
	var out []order.Order
	for rows.Next() {
		var (
			ord  order.Order
			date time.Time
		)
		if err := rows.Scan(&ord.ID, &ord.UserID, &ord.ProductID, &ord.Quantity, &ord.Address, &date, &ord.Status); err != nil {
			return nil, apperrors.DataAccess("scanning order", err)
		}
		ord.OrderDate = date.Format(order.DateLayout)
		out = append(out, ord)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DataAccess("iterating orders", err)
	}
	return out, nil
}

// Archive moves an order into the order history in one transaction.
func (o *Orders) Archive(ctx context.Context, userID string, orderID uuid.UUID) (order.HistoryEntry, error) {
	entry := order.HistoryEntry{OrderID: orderID}
	err := o.s.client.InTx(ctx, func(tx *sql.Tx) error {
		var date time.Time
		err := tx.QueryRowContext(ctx,
			`DELETE FROM orders WHERE user_id = $1 AND order_id = $2 RETURNING product_id, quantity, order_date`,
			userID, orderID).Scan(&entry.ProductID, &entry.Quantity, &date)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("order %s not found", orderID)
		}
		if err != nil {
			return apperrors.DataAccess("removing order", err)
		}
		entry.OrderedAt = date.Format(order.DateLayout)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_history (user_id, order_id, product_id, quantity, ordered_at)
			VALUES ($1, $2, $3, $4, $5::date)`,
			userID, orderID, string(entry.ProductID), entry.Quantity, entry.OrderedAt)
		if err != nil {
			return apperrors.DataAccess("archiving order", err)
		}
		return nil
	})
	if err != nil {
		return order.HistoryEntry{}, err
	}
	return entry, nil
}

func (o *Orders) History(ctx context.Context, userID string) ([]order.HistoryEntry, error) {
	rows, err := o.s.client.DB.QueryContext(ctx, `
		SELECT order_id, product_id, quantity, ordered_at
		FROM order_history WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, apperrors.DataAccess("listing order history", err)
	}
	defer rows.Close()
	var out []order.HistoryEntry
	for rows.Next() {
		var (
			e    order.HistoryEntry
			date time.Time
		)
		if err := rows.Scan(&e.OrderID, &e.ProductID, &e.Quantity, &date); err != nil {
			return nil, apperrors.DataAccess("scanning order history", err)
		}
		e.OrderedAt = date.Format(order.DateLayout)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DataAccess("iterating order history", err)
	}
	return out, nil
}

var (
	_ cart.Repository  = (*Carts)(nil)
	_ order.Repository = (*Orders)(nil)
)
