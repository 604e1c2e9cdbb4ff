package payment

import (
	"context"
	"time"
)

type Repository interface {
	Insert(ctx context.Context, a *Attempt) error
	Get(ctx context.Context, id string) (*Attempt, error)
	GetByGatewayReference(ctx context.Context, reference string) (*Attempt, error)
	// Save persists a only if the stored row still has version
	// expectedVersion, then sets a.Version to the new version. A stale
	// writer gets ErrVersionConflict.
	Save(ctx context.Context, a *Attempt, expectedVersion int64) error
	ListByOrder(ctx context.Context, orderID string) ([]*Attempt, error)
	// ListDueVerifying returns verifying attempts not flagged for review whose
	// NextCheckAt is at or before now.
	ListDueVerifying(ctx context.Context, now time.Time, limit int) ([]*Attempt, error)
	ListNeedingReview(ctx context.Context, limit int) ([]*Attempt, error)
}
