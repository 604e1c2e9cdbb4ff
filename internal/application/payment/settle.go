package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/mojig27/web-site-sub001/internal/application"
	appinventory "github.com/mojig27/web-site-sub001/internal/application/inventory"
	"github.com/mojig27/web-site-sub001/internal/domain/inventory"
	"github.com/mojig27/web-site-sub001/internal/domain/order"
	domain "github.com/mojig27/web-site-sub001/internal/domain/payment"
	"github.com/mojig27/web-site-sub001/internal/observability"
	"github.com/mojig27/web-site-sub001/internal/observability/logctx"
)

// Result outcomes reported to callers.
const (
	OutcomePaid          = "paid"
	OutcomePaymentFailed = "payment_failed"
	OutcomePending       = "pending"
	OutcomeNeedsReview   = "needs_review"
	OutcomeExpired       = "expired"
)

type Result struct {
	OrderID       string
	AttemptID     string
	OrderStatus   order.Status
	AttemptStatus domain.Status
	Outcome       string
	// Cached is set when the answer came from stored state without a
	// gateway call.
	Cached bool
}

// settler applies a verification to the order, the attempt and the
// reservation, in that order. The order transition is the commit point: the
// attempt and inventory follow whichever writer won it.
type settler struct {
	deps Deps
	tel  application.Telemetry
}

func (s settler) settle(ctx context.Context, a *domain.Attempt, v domain.Verification) (*Result, error) {
	d := s.deps
	o, err := d.Orders.Get(ctx, a.OrderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}

	if v.Outcome == domain.OutcomeConfirmed && (v.Amount != o.TotalAmount || a.Amount != o.TotalAmount) {
		logctx.FromOr(ctx, nil).Warn("payment_amount_mismatch",
			observability.F("order_total", o.TotalAmount),
			observability.F("attempt_amount", a.Amount),
			observability.F("verified_amount", v.Amount),
		)
		v = domain.Verification{
			Outcome: domain.OutcomeRejected,
			Reason:  fmt.Sprintf("amount mismatch: gateway %d, order %d", v.Amount, o.TotalAmount),
		}
	}

	switch v.Outcome {
	case domain.OutcomeConfirmed:
		return s.confirm(ctx, o, a, v)
	case domain.OutcomeRejected:
		return s.reject(ctx, o, a, v.Reason)
	default:
		return s.postpone(ctx, o, a, v.Reason)
	}
}

func (s settler) confirm(ctx context.Context, o *order.Order, a *domain.Attempt, v domain.Verification) (*Result, error) {
	d := s.deps
	logger := logctx.FromOr(ctx, nil)

	prev := o.Status
	o, err := s.transition(ctx, o, a, order.StatusPaid)
	if err != nil {
		return nil, err
	}
	expected := a.Version
	if err := a.MarkVerified(v.ProviderRef, d.now()); err != nil {
		return nil, err
	}

	ownsOrder := o.PaymentAttemptID == a.ID
	if o.Status != order.StatusPaid || !ownsOrder {
		// Money was captured for an order that expired, was canceled or moved
		// on to another attempt. Stock stays as the order left it.
		a.FlagForReview(fmt.Sprintf("payment confirmed for order in status %s", o.Status), d.now())
		logger.Error("payment_confirmed_for_closed_order",
			observability.F("order_status", string(o.Status)),
			observability.F("provider_ref", v.ProviderRef),
		)
	}
	if err := d.Attempts.Save(ctx, a, expected); err != nil {
		return nil, fmt.Errorf("save verified attempt: %w", err)
	}

	res := &Result{OrderID: o.ID, AttemptID: a.ID, OrderStatus: o.Status, AttemptStatus: a.Status, Outcome: OutcomePaid}
	if a.NeedsReview {
		res.Outcome = OutcomeNeedsReview
		return res, nil
	}

	if err := d.Ledger.Commit(ctx, o.ReservationID); err != nil && !errors.Is(err, inventory.ErrReservationNotFound) {
		// The order is paid; a failed commit leaves stock reserved, never oversold.
		logger.Error("reservation_commit_failed",
			observability.F("reservation_id", o.ReservationID),
			observability.F("error", err),
		)
	}
	if prev != order.StatusPaid {
		s.tel.Publish(ctx, d.Events, order.NewStatusChangedEvent(o, prev))
	}
	return res, nil
}

func (s settler) reject(ctx context.Context, o *order.Order, a *domain.Attempt, reason string) (*Result, error) {
	d := s.deps
	prev := o.Status
	o, err := s.transition(ctx, o, a, order.StatusPaymentFailed)
	if err != nil {
		return nil, err
	}
	expected := a.Version
	if err := a.MarkFailed(reason, d.now()); err != nil {
		return nil, err
	}
	paidByThisAttempt := o.Status == order.StatusPaid && o.PaymentAttemptID == a.ID
	if paidByThisAttempt {
		a.FlagForReview("gateway rejected a payment already applied to the order: "+reason, d.now())
	}
	if err := d.Attempts.Save(ctx, a, expected); err != nil {
		return nil, fmt.Errorf("save failed attempt: %w", err)
	}
	if paidByThisAttempt {
		return &Result{OrderID: o.ID, AttemptID: a.ID, OrderStatus: o.Status, AttemptStatus: a.Status, Outcome: OutcomeNeedsReview}, nil
	}

	if o.Status == order.StatusPaymentFailed && o.PaymentAttemptID == a.ID {
		if err := appinventory.ReleaseReservation(ctx, d.Ledger, o.ReservationID); err != nil {
			logctx.FromOr(ctx, nil).Error("reservation_release_failed",
				observability.F("reservation_id", o.ReservationID),
				observability.F("error", err),
			)
		}
		if prev != order.StatusPaymentFailed {
			s.tel.Publish(ctx, d.Events, order.NewStatusChangedEvent(o, prev))
		}
	}
	return &Result{OrderID: o.ID, AttemptID: a.ID, OrderStatus: o.Status, AttemptStatus: a.Status, Outcome: OutcomePaymentFailed}, nil
}

// postpone books an ambiguous verification. Neither the order nor the
// reservation is touched.
func (s settler) postpone(ctx context.Context, o *order.Order, a *domain.Attempt, reason string) (*Result, error) {
	d := s.deps
	expected := a.Version
	if err := a.RecordAmbiguous(reason, d.now(), d.Policy); err != nil {
		return nil, err
	}
	if err := d.Attempts.Save(ctx, a, expected); err != nil {
		return nil, fmt.Errorf("save ambiguous attempt: %w", err)
	}

	res := &Result{OrderID: o.ID, AttemptID: a.ID, OrderStatus: o.Status, AttemptStatus: a.Status, Outcome: OutcomePending}
	if a.NeedsReview {
		res.Outcome = OutcomeNeedsReview
		logctx.FromOr(ctx, nil).Warn("payment_flagged_for_review",
			observability.F("verify_attempts", a.VerifyAttempts),
			observability.F("reason", reason),
		)
	}
	return res, nil
}

// transition moves o to `to` if o is still awaiting payment on attempt a.
// A lost race is not an error: the order is re-read and returned as it now
// stands so the caller can see who won.
func (s settler) transition(ctx context.Context, o *order.Order, a *domain.Attempt, to order.Status) (*order.Order, error) {
	d := s.deps
	for i := 0; i < 3; i++ {
		if o.Status != order.StatusAwaitingPayment || o.PaymentAttemptID != a.ID {
			return o, nil
		}
		t := order.Next(o, to)
		t.At = d.now()
		updated, err := d.Orders.Transition(ctx, t)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, order.ErrVersionConflict) {
			return nil, fmt.Errorf("transition order to %s: %w", to, err)
		}
		logctx.FromOr(ctx, nil).Info("order_transition_conflict", observability.F("to", string(to)))
		if o, err = d.Orders.Get(ctx, o.ID); err != nil {
			return nil, fmt.Errorf("reload order: %w", err)
		}
	}
	return nil, order.ErrVersionConflict
}
