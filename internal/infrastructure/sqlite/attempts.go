package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/mojig27/web-site-sub001/internal/domain/payment"
)

type AttemptRepository struct {
	db *sql.DB
}

const attemptColumns = `id, order_id, gateway_reference, redirect_url, amount, status,
	verify_attempts, next_check_at, needs_review, failure_reason, provider_ref,
	created_at, updated_at, verified_at, version`

func (r *AttemptRepository) Insert(ctx context.Context, a *domain.Attempt) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("attempt repository: id is required")
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO payment_attempts (`+attemptColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.OrderID, nullString(a.GatewayReference), a.RedirectURL, a.Amount, string(a.Status),
		a.VerifyAttempts, nanos(a.NextCheckAt), a.NeedsReview, a.FailureReason, a.ProviderRef,
		nanos(a.CreatedAt), nanos(a.UpdatedAt), nanos(a.VerifiedAt), a.Version,
	)
	if isConstraint(err) {
		return domain.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (r *AttemptRepository) Get(ctx context.Context, id string) (*domain.Attempt, error) {
	return r.getOne(ctx, `SELECT `+attemptColumns+` FROM payment_attempts WHERE id = ?`, id)
}

func (r *AttemptRepository) GetByGatewayReference(ctx context.Context, reference string) (*domain.Attempt, error) {
	if reference == "" {
		return nil, domain.ErrNotFound
	}
	return r.getOne(ctx, `SELECT `+attemptColumns+` FROM payment_attempts WHERE gateway_reference = ?`, reference)
}

// Save writes every mutable column of a if the stored version still equals
// expectedVersion.
func (r *AttemptRepository) Save(ctx context.Context, a *domain.Attempt, expectedVersion int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_attempts SET
			gateway_reference = ?, redirect_url = ?, status = ?,
			verify_attempts = ?, next_check_at = ?, needs_review = ?,
			failure_reason = ?, provider_ref = ?, updated_at = ?, verified_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		nullString(a.GatewayReference), a.RedirectURL, string(a.Status),
		a.VerifyAttempts, nanos(a.NextCheckAt), a.NeedsReview,
		a.FailureReason, a.ProviderRef, nanos(a.UpdatedAt), nanos(a.VerifiedAt),
		a.ID, expectedVersion,
	)
	if isConstraint(err) {
		return domain.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("save attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save attempt: %w", err)
	}
	if n == 0 {
		if _, err := r.Get(ctx, a.ID); err != nil {
			return err
		}
		return domain.ErrVersionConflict
	}
	a.Version = expectedVersion + 1
	return nil
}

func (r *AttemptRepository) ListByOrder(ctx context.Context, orderID string) ([]*domain.Attempt, error) {
	return r.list(ctx, `SELECT `+attemptColumns+` FROM payment_attempts
		WHERE order_id = ? ORDER BY created_at ASC, id ASC`, orderID)
}

func (r *AttemptRepository) ListDueVerifying(ctx context.Context, now time.Time, limit int) ([]*domain.Attempt, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx, `SELECT `+attemptColumns+` FROM payment_attempts
		WHERE status = ? AND needs_review = 0 AND next_check_at > 0 AND next_check_at <= ?
		ORDER BY next_check_at ASC LIMIT ?`,
		string(domain.StatusVerifying), nanos(now), limit)
}

func (r *AttemptRepository) ListNeedingReview(ctx context.Context, limit int) ([]*domain.Attempt, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx, `SELECT `+attemptColumns+` FROM payment_attempts
		WHERE needs_review = 1 ORDER BY updated_at ASC LIMIT ?`, limit)
}

func (r *AttemptRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Attempt, error) {
	a, err := scanAttempt(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return a, nil
}

func (r *AttemptRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Attempt, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []*domain.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAttempt(s scanner) (*domain.Attempt, error) {
	var (
		a                          domain.Attempt
		ref                        sql.NullString
		status                     string
		next, created, updated, vt int64
	)
	err := s.Scan(
		&a.ID, &a.OrderID, &ref, &a.RedirectURL, &a.Amount, &status,
		&a.VerifyAttempts, &next, &a.NeedsReview, &a.FailureReason, &a.ProviderRef,
		&created, &updated, &vt, &a.Version,
	)
	if err != nil {
		return nil, err
	}
	a.GatewayReference = ref.String
	a.Status = domain.Status(status)
	a.NextCheckAt = fromNanos(next)
	a.CreatedAt = fromNanos(created)
	a.UpdatedAt = fromNanos(updated)
	a.VerifiedAt = fromNanos(vt)
	return &a, nil
}
