package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/mojig27/web-site-sub001/internal/domain/inventory"
)

// Ledger keeps per-product counters in the stock table and one row per
// reservation. Every counter change is a guarded single-row UPDATE inside
// an immediate transaction.
type Ledger struct {
	db *sql.DB
}

func (l *Ledger) Reserve(ctx context.Context, reservationID, orderID string, lines []domain.Line) (*domain.Reservation, error) {
	merged, err := domain.MergeLines(lines)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	var out *domain.Reservation
	err = withTx(ctx, l.db, func(tx *sql.Tx) error {
		// Replaying a reservation id returns what was held the first time.
		existing, err := getReservation(ctx, tx, reservationID)
		if err == nil {
			out = existing
			return nil
		}
		if !errors.Is(err, domain.ErrReservationNotFound) {
			return err
		}

		var shortages []domain.Shortage
		for _, line := range merged {
			res, err := tx.ExecContext(ctx, `
				UPDATE stock SET available = available - ?, reserved = reserved + ?, updated_at = ?
				WHERE product_id = ? AND available >= ?`,
				line.Quantity, line.Quantity, nanos(now), line.ProductID, line.Quantity,
			)
			if err != nil {
				return fmt.Errorf("reserve %s: %w", line.ProductID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("reserve %s: %w", line.ProductID, err)
			}
			if n == 1 {
				continue
			}
			available := 0
			err = tx.QueryRowContext(ctx, `SELECT available FROM stock WHERE product_id = ?`, line.ProductID).Scan(&available)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("reserve %s: %w", line.ProductID, err)
			}
			shortages = append(shortages, domain.Shortage{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: available,
			})
		}
		if len(shortages) > 0 {
			// Rolling back undoes the lines that did fit.
			return &domain.InsufficientStockError{Shortages: shortages}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reservations (id, order_id, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)`,
			reservationID, orderID, string(domain.ReservationActive), nanos(now), nanos(now),
		); err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}
		for _, line := range merged {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO reservation_lines (reservation_id, product_id, quantity) VALUES (?, ?, ?)`,
				reservationID, line.ProductID, line.Quantity,
			); err != nil {
				return fmt.Errorf("insert reservation line: %w", err)
			}
		}
		out = &domain.Reservation{
			ID:        reservationID,
			OrderID:   orderID,
			Lines:     merged,
			Status:    domain.ReservationActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Ledger) Commit(ctx context.Context, reservationID string) error {
	return l.settle(ctx, reservationID, domain.ReservationCommitted, `
		UPDATE stock SET reserved = reserved - ?, updated_at = ?
		WHERE product_id = ? AND reserved >= ?`)
}

func (l *Ledger) Release(ctx context.Context, reservationID string) error {
	return l.settle(ctx, reservationID, domain.ReservationReleased, `
		UPDATE stock SET reserved = reserved - ?, available = available + ?, updated_at = ?
		WHERE product_id = ? AND reserved >= ?`)
}

// settle moves an active reservation to final. Repeating the same settlement
// is a no-op; the opposite one is refused.
func (l *Ledger) settle(ctx context.Context, reservationID string, final domain.ReservationStatus, update string) error {
	now := time.Now().UTC()
	return withTx(ctx, l.db, func(tx *sql.Tx) error {
		r, err := getReservation(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		switch r.Status {
		case final:
			return nil
		case domain.ReservationCommitted:
			return domain.ErrReservationCommitted
		case domain.ReservationReleased:
			return domain.ErrReservationReleased
		}

		for _, line := range r.Lines {
			args := []any{line.Quantity, nanos(now), line.ProductID, line.Quantity}
			if final == domain.ReservationReleased {
				args = []any{line.Quantity, line.Quantity, nanos(now), line.ProductID, line.Quantity}
			}
			res, err := tx.ExecContext(ctx, update, args...)
			if err != nil {
				return fmt.Errorf("settle %s: %w", line.ProductID, err)
			}
			if n, err := res.RowsAffected(); err != nil || n != 1 {
				return fmt.Errorf("settle %s: reserved counter below reservation quantity", line.ProductID)
			}
		}

		_, err = tx.ExecContext(ctx, `UPDATE reservations SET status = ?, updated_at = ? WHERE id = ?`,
			string(final), nanos(now), reservationID)
		if err != nil {
			return fmt.Errorf("settle reservation: %w", err)
		}
		return nil
	})
}

func (l *Ledger) Reservation(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	return getReservation(ctx, l.db, reservationID)
}

func (l *Ledger) Stock(ctx context.Context, productID string) (*domain.Stock, error) {
	return getStock(ctx, l.db, productID)
}

func (l *Ledger) SetStock(ctx context.Context, productID string, available int) (*domain.Stock, error) {
	if productID == "" {
		return nil, domain.ErrNotFound
	}
	if available < 0 {
		return nil, domain.ErrInvalidQuantity
	}
	var out *domain.Stock
	err := withTx(ctx, l.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO stock (product_id, available, reserved, updated_at) VALUES (?, ?, 0, ?)
			ON CONFLICT(product_id) DO UPDATE SET available = excluded.available, updated_at = excluded.updated_at`,
			productID, available, nanos(time.Now()),
		)
		if err != nil {
			return fmt.Errorf("set stock: %w", err)
		}
		out, err = getStock(ctx, tx, productID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Ledger) Seed(ctx context.Context, productID string, available int) (bool, error) {
	if productID == "" {
		return false, domain.ErrNotFound
	}
	if available < 0 {
		return false, domain.ErrInvalidQuantity
	}
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO stock (product_id, available, reserved, updated_at) VALUES (?, ?, 0, ?)
		ON CONFLICT(product_id) DO NOTHING`,
		productID, available, nanos(time.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("seed stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("seed stock: %w", err)
	}
	return n == 1, nil
}

func getStock(ctx context.Context, q querier, productID string) (*domain.Stock, error) {
	s := domain.Stock{ProductID: productID}
	var updated int64
	err := q.QueryRowContext(ctx, `SELECT available, reserved, updated_at FROM stock WHERE product_id = ?`, productID).
		Scan(&s.Available, &s.Reserved, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get stock: %w", err)
	}
	s.UpdatedAt = fromNanos(updated)
	return &s, nil
}

func getReservation(ctx context.Context, q querier, id string) (*domain.Reservation, error) {
	var (
		r                domain.Reservation
		status           string
		created, updated int64
	)
	err := q.QueryRowContext(ctx, `SELECT id, order_id, status, created_at, updated_at FROM reservations WHERE id = ?`, id).
		Scan(&r.ID, &r.OrderID, &status, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	r.Status = domain.ReservationStatus(status)
	r.CreatedAt = fromNanos(created)
	r.UpdatedAt = fromNanos(updated)

	rows, err := q.QueryContext(ctx, `
		SELECT product_id, quantity FROM reservation_lines
		WHERE reservation_id = ? ORDER BY product_id`, id)
	if err != nil {
		return nil, fmt.Errorf("get reservation lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var line domain.Line
		if err := rows.Scan(&line.ProductID, &line.Quantity); err != nil {
			return nil, fmt.Errorf("scan reservation line: %w", err)
		}
		r.Lines = append(r.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &r, nil
}
