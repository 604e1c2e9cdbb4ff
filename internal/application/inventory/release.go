package inventory

import (
	"context"
	"errors"

	domain "github.com/mojig27/web-site-sub001/internal/domain/inventory"
	"github.com/mojig27/web-site-sub001/internal/observability"
	"github.com/mojig27/web-site-sub001/internal/observability/logctx"
)

// ReleaseReservation returns held stock for a failed, expired or canceled
// order. A reservation that is already released, or was never stored, is not
// an error. A committed one is: that stock belongs to a paid order.
func ReleaseReservation(ctx context.Context, ledger domain.Ledger, reservationID string) error {
	if reservationID == "" {
		return nil
	}
	err := ledger.Release(ctx, reservationID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrReservationNotFound):
		logctx.FromOr(ctx, nil).Warn("reservation_missing_on_release",
			observability.F("reservation_id", reservationID))
		return nil
	default:
		return err
	}
}
