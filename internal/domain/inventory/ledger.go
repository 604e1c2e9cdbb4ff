package inventory

import "context"

// Ledger tracks available and reserved stock per product.
type Ledger interface {
	// Reserve holds every line or none of them. A shortage on any line
	// returns *InsufficientStockError and leaves all counters untouched.
	Reserve(ctx context.Context, reservationID, orderID string, lines []Line) (*Reservation, error)
	// Commit turns an active reservation into a permanent deduction.
	// Committing twice is a no-op; committing a released reservation fails
	// with ErrReservationReleased.
	Commit(ctx context.Context, reservationID string) error
	// Release returns the held quantity to Available. Releasing twice is a
	// no-op; releasing a committed reservation fails with ErrReservationCommitted.
	Release(ctx context.Context, reservationID string) error
	Reservation(ctx context.Context, reservationID string) (*Reservation, error)
	Stock(ctx context.Context, productID string) (*Stock, error)
	// SetStock sets the available counter, leaving reservations alone.
	SetStock(ctx context.Context, productID string, available int) (*Stock, error)
	// Seed creates the product with the given availability if it is unknown.
	Seed(ctx context.Context, productID string, available int) (bool, error)
}
