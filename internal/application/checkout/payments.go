package checkout

import (
	"context"
	"errors"
	"fmt"

	appinventory "github.com/mojig27/web-site-sub001/internal/application/inventory"
	apppayment "github.com/mojig27/web-site-sub001/internal/application/payment"
	"github.com/mojig27/web-site-sub001/internal/domain/inventory"
	"github.com/mojig27/web-site-sub001/internal/domain/order"
	"github.com/mojig27/web-site-sub001/internal/domain/payment"
	"github.com/mojig27/web-site-sub001/internal/observability"
	"github.com/mojig27/web-site-sub001/internal/observability/logctx"
)

// startPayment stores a new initiated attempt for o and opens it at the
// gateway. When the gateway refuses, the stored attempt is marked failed and
// returned together with the error.
func (d Deps) startPayment(ctx context.Context, o *order.Order) (*payment.Attempt, error) {
	a, err := payment.NewAttempt(d.IDs.NewID(), o.ID, o.TotalAmount)
	if err != nil {
		return nil, err
	}
	if err := d.Attempts.Insert(ctx, a); err != nil {
		return nil, repositoryError("insert attempt", err)
	}

	res, err := d.Gateway.Initiate(ctx, payment.InitiateRequest{
		OrderID:     o.ID,
		AttemptID:   a.ID,
		Amount:      a.Amount,
		CallbackURL: d.CallbackURL,
		Description: fmt.Sprintf("Order %s", o.ID),
	})
	if err != nil {
		d.failAttempt(ctx, a, err.Error())
		return a, err
	}

	expected := a.Version
	if err := a.AttachGateway(res.GatewayReference, res.RedirectURL, d.now()); err != nil {
		d.failAttempt(ctx, a, err.Error())
		return a, err
	}
	if err := d.Attempts.Save(ctx, a, expected); err != nil {
		d.failAttempt(ctx, a, "attach gateway reference: "+err.Error())
		return a, repositoryError("attach gateway reference", err)
	}
	return a, nil
}

func (d Deps) failAttempt(ctx context.Context, a *payment.Attempt, reason string) {
	logger := logctx.FromOr(ctx, nil).With(observability.F("attempt_id", a.ID))
	current, err := d.Attempts.Get(ctx, a.ID)
	if err != nil {
		logger.Error("attempt_fail_lookup_failed", observability.F("error", err))
		return
	}
	expected := current.Version
	if err := current.MarkFailed(reason, d.now()); err != nil {
		return
	}
	if err := d.Attempts.Save(ctx, current, expected); err != nil {
		logger.Error("attempt_fail_save_failed", observability.F("error", err))
	}
}

// abandon undoes a payment that was opened but could not be attached to the
// order: the attempt is fenced and the reservation released.
func (d Deps) abandon(ctx context.Context, a *payment.Attempt, reservationID string) {
	logger := logctx.FromOr(ctx, nil)
	if a != nil {
		if _, err := apppayment.FenceAttempt(ctx, d.Attempts, a.ID, d.now()); err != nil {
			logger.Error("attempt_fence_failed", observability.F("attempt_id", a.ID), observability.F("error", err))
		}
	}
	d.release(ctx, reservationID)
}

// release logs instead of returning: it runs on failure paths whose own
// error is the one the caller needs.
func (d Deps) release(ctx context.Context, reservationID string) {
	err := appinventory.ReleaseReservation(ctx, d.Ledger, reservationID)
	if err == nil {
		return
	}
	level := logctx.FromOr(ctx, nil).Error
	if errors.Is(err, inventory.ErrReservationCommitted) {
		level = logctx.FromOr(ctx, nil).Warn
	}
	level("reservation_release_failed",
		observability.F("reservation_id", reservationID),
		observability.F("error", err),
	)
}

// markPaymentFailed moves o to PaymentFailed after an initiation failure.
func (d Deps) markPaymentFailed(ctx context.Context, o *order.Order) {
	t := order.Next(o, order.StatusPaymentFailed)
	t.At = d.now()
	updated, err := d.Orders.Transition(ctx, t)
	if err != nil {
		logctx.FromOr(ctx, nil).Warn("order_payment_failed_transition_failed",
			observability.F("order_id", o.ID),
			observability.F("error", err),
		)
		return
	}
	*o = *updated
}

func gatewayStatus(err error) string {
	switch {
	case errors.Is(err, payment.ErrGatewayRejected):
		return "GATEWAY_REJECTED"
	case errors.Is(err, payment.ErrGatewayUnreachable):
		return "GATEWAY_UNREACHABLE"
	default:
		return "PAYMENT_START_FAILED"
	}
}
