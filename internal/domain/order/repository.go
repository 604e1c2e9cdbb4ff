package order

import (
	"context"
	"fmt"
	"time"
)

// Transition is a version-guarded status change. It is the only way an
// order's status moves once the order exists.
type Transition struct {
	OrderID         string
	ExpectedVersion int64
	From            Status
	To              Status
	// Optional attribute updates applied together with the status change.
	PaymentAttemptID string
	ReservationID    string
	TrackingCode     string
	At               time.Time
}

func (t Transition) Validate() error {
	if !CanTransition(t.From, t.To) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.From, t.To)
	}
	return nil
}

func (t Transition) at() time.Time {
	if t.At.IsZero() {
		return time.Now().UTC()
	}
	return t.At.UTC()
}

// Next builds a transition from o's current status and version.
func Next(o *Order, to Status) Transition {
	return Transition{
		OrderID:         o.ID,
		ExpectedVersion: o.Version,
		From:            o.Status,
		To:              to,
	}
}

// Cursor is a keyset position in (UpdatedAt, ID) order. The zero value
// starts before the first order.
type Cursor struct {
	UpdatedAt time.Time
	ID        string
}

// CursorAt positions a scan just past o.
func CursorAt(o *Order) Cursor {
	return Cursor{UpdatedAt: o.UpdatedAt, ID: o.ID}
}

// Precedes reports whether o sorts strictly after c.
func (c Cursor) Precedes(o *Order) bool {
	if c.ID == "" {
		return true
	}
	if !o.UpdatedAt.Equal(c.UpdatedAt) {
		return o.UpdatedAt.After(c.UpdatedAt)
	}
	return o.ID > c.ID
}

type ListFilter struct {
	UserID string
	Status Status
	Limit  int
}

type Repository interface {
	Insert(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	FindByIdempotency(ctx context.Context, userID, key string) (*Order, error)
	// Transition applies t only if the stored order still has t.From and
	// t.ExpectedVersion; otherwise it fails with ErrVersionConflict.
	Transition(ctx context.Context, t Transition) (*Order, error)
	// ListByStatusBefore returns orders in status whose last update is older
	// than before, ordered by (UpdatedAt, ID) and starting past after.
	ListByStatusBefore(ctx context.Context, status Status, before time.Time, after Cursor, limit int) ([]*Order, error)
	List(ctx context.Context, filter ListFilter) ([]*Order, error)
}
