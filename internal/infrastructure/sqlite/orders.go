package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/mojig27/web-site-sub001/internal/domain/order"
)

// OrderRepository persists orders. Status changes only happen through the
// conditional UPDATE in Transition.
type OrderRepository struct {
	db *sql.DB
}

const orderColumns = `id, user_id, idempotency_key, total_amount, status,
	payment_attempt_id, reservation_id, tracking_code,
	ship_province, ship_city, ship_address, ship_postal_code,
	receiver_name, receiver_phone, created_at, updated_at, version`

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}
	addr := o.ShippingAddress
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO orders (`+orderColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			o.ID, o.UserID, nullString(o.IdempotencyKey), o.TotalAmount, string(o.Status),
			o.PaymentAttemptID, o.ReservationID, o.TrackingCode,
			addr.Province, addr.City, addr.Address, addr.PostalCode,
			addr.Receiver.Name, addr.Receiver.Phone,
			nanos(o.CreatedAt), nanos(o.UpdatedAt), o.Version,
		)
		if isConstraint(err) {
			return domain.ErrConflict
		}
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		for i, it := range o.Items {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO order_items (order_id, line_no, product_id, quantity, unit_price)
				VALUES (?, ?, ?, ?, ?)`,
				o.ID, i, it.ProductID, it.Quantity, it.UnitPrice,
			); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		return nil
	})
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	return getOrder(ctx, r.db, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
}

func (r *OrderRepository) FindByIdempotency(ctx context.Context, userID, key string) (*domain.Order, error) {
	if key == "" {
		return nil, domain.ErrNotFound
	}
	return getOrder(ctx, r.db,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = ? AND idempotency_key = ?`, userID, key)
}

// Transition is a compare-and-set on (status, version). When nothing matches
// it tells a missing order apart from a lost race.
func (r *OrderRepository) Transition(ctx context.Context, t domain.Transition) (*domain.Order, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	at := t.At
	if at.IsZero() {
		at = time.Now()
	}

	var out *domain.Order
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders SET
				status = ?,
				payment_attempt_id = CASE WHEN ? = '' THEN payment_attempt_id ELSE ? END,
				reservation_id     = CASE WHEN ? = '' THEN reservation_id ELSE ? END,
				tracking_code      = CASE WHEN ? = '' THEN tracking_code ELSE ? END,
				updated_at = ?,
				version = version + 1
			WHERE id = ? AND version = ? AND status = ?`,
			string(t.To),
			t.PaymentAttemptID, t.PaymentAttemptID,
			t.ReservationID, t.ReservationID,
			t.TrackingCode, t.TrackingCode,
			nanos(at),
			t.OrderID, t.ExpectedVersion, string(t.From),
		)
		if err != nil {
			return fmt.Errorf("transition order: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("transition order: %w", err)
		}
		if n == 0 {
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM orders WHERE id = ?`, t.OrderID).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("transition order: %w", err)
			}
			return domain.ErrVersionConflict
		}
		out, err = getOrder(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, t.OrderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *OrderRepository) ListByStatusBefore(ctx context.Context, status domain.Status, before time.Time, after domain.Cursor, limit int) ([]*domain.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	at := nanos(after.UpdatedAt)
	return listOrders(ctx, r.db, `SELECT `+orderColumns+` FROM orders
		WHERE status = ? AND updated_at < ?
		  AND (? = '' OR updated_at > ? OR (updated_at = ? AND id > ?))
		ORDER BY updated_at ASC, id ASC LIMIT ?`,
		string(status), nanos(before), after.ID, at, at, after.ID, limit)
}

func (r *OrderRepository) List(ctx context.Context, f domain.ListFilter) ([]*domain.Order, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	return listOrders(ctx, r.db, `SELECT `+orderColumns+` FROM orders
		WHERE (? = '' OR user_id = ?) AND (? = '' OR status = ?)
		ORDER BY created_at DESC, id ASC LIMIT ?`,
		f.UserID, f.UserID, string(f.Status), string(f.Status), limit)
}

func getOrder(ctx context.Context, q querier, query string, args ...any) (*domain.Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if err := loadItems(ctx, q, o); err != nil {
		return nil, err
	}
	return o, nil
}

func listOrders(ctx context.Context, q querier, query string, args ...any) ([]*domain.Order, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("list orders: %w", err)
	}
	// Items are loaded after the cursor is closed; the pool has one connection.
	rows.Close()

	for _, o := range out {
		if err := loadItems(ctx, q, o); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func loadItems(ctx context.Context, q querier, o *domain.Order) error {
	rows, err := q.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price FROM order_items
		WHERE order_id = ? ORDER BY line_no`, o.ID)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	o.Items = o.Items[:0]
	for rows.Next() {
		var it domain.LineItem
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.UnitPrice); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

func scanOrder(s scanner) (*domain.Order, error) {
	var (
		o                domain.Order
		key              sql.NullString
		status           string
		created, updated int64
	)
	addr := &o.ShippingAddress
	err := s.Scan(
		&o.ID, &o.UserID, &key, &o.TotalAmount, &status,
		&o.PaymentAttemptID, &o.ReservationID, &o.TrackingCode,
		&addr.Province, &addr.City, &addr.Address, &addr.PostalCode,
		&addr.Receiver.Name, &addr.Receiver.Phone,
		&created, &updated, &o.Version,
	)
	if err != nil {
		return nil, err
	}
	o.IdempotencyKey = key.String
	o.Status = domain.Status(status)
	o.CreatedAt = fromNanos(created)
	o.UpdatedAt = fromNanos(updated)
	return &o, nil
}
