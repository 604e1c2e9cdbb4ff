package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/mojig27/web-site-sub001/internal/application"
	"github.com/mojig27/web-site-sub001/internal/domain/inventory"
	"github.com/mojig27/web-site-sub001/internal/domain/order"
	"github.com/mojig27/web-site-sub001/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const useCaseRetryPayment = "checkout.retry_payment"

type RetryPaymentInput struct {
	OrderID string
	// UserID, when set, must own the order.
	UserID string
}

// RetryPaymentUseCase reopens payment for an order in PaymentFailed. The old
// reservation was released when the payment failed, so stock is reserved
// again and a brand-new attempt is created; the failed attempt is left as is.
type RetryPaymentUseCase struct {
	deps Deps
	tel  application.Telemetry
}

func NewRetryPaymentUseCase(deps Deps, tel observability.Observability) *RetryPaymentUseCase {
	return &RetryPaymentUseCase{deps: deps, tel: application.NewTelemetry(tel, checkoutService)}
}

func (uc *RetryPaymentUseCase) Execute(ctx context.Context, cmd RetryPaymentInput) (_ *CheckoutResult, err error) {
	ctx, run := uc.tel.Begin(ctx, useCaseRetryPayment, "RetryPayment",
		[]attribute.KeyValue{attribute.String("order.id", cmd.OrderID)},
		observability.F("order_id", cmd.OrderID),
	)
	defer func() { run.End(err) }()
	d := uc.deps

	o, err := d.Orders.Get(ctx, cmd.OrderID)
	if err != nil {
		run.Fail("rejected", "ORDER_LOOKUP_FAILED")
		return nil, err
	}
	if cmd.UserID != "" && o.UserID != cmd.UserID {
		run.Fail("rejected", "NOT_OWNER")
		return nil, order.ErrNotFound
	}
	if o.Status != order.StatusPaymentFailed {
		run.Fail("rejected", "NOT_RETRYABLE")
		return nil, fmt.Errorf("%w: retry requires %s, order is %s", order.ErrInvalidTransition, order.StatusPaymentFailed, o.Status)
	}

	reservationID := d.IDs.NewID()
	lines := make([]inventory.Line, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, inventory.Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	if _, err := d.Ledger.Reserve(ctx, reservationID, o.ID, lines); err != nil {
		if errors.Is(err, inventory.ErrInsufficientStock) {
			run.Fail("rejected", "INSUFFICIENT_STOCK")
			return nil, err
		}
		run.Fail("error", "RESERVE_FAILED")
		return nil, fmt.Errorf("reserve stock: %w", err)
	}

	attempt, err := d.startPayment(ctx, o)
	if err != nil {
		d.release(ctx, reservationID)
		run.Fail("error", gatewayStatus(err))
		return nil, err
	}

	t := order.Next(o, order.StatusAwaitingPayment)
	t.PaymentAttemptID = attempt.ID
	t.ReservationID = reservationID
	t.At = d.now()
	updated, err := d.Orders.Transition(ctx, t)
	if err != nil {
		d.abandon(ctx, attempt, reservationID)
		run.Fail("error", "ORDER_MOVED_CONCURRENTLY")
		return nil, fmt.Errorf("await payment: %w", err)
	}
	uc.tel.Publish(ctx, d.Events, order.NewStatusChangedEvent(updated, order.StatusPaymentFailed))
	run.With(observability.F("attempt_id", attempt.ID))

	return &CheckoutResult{
		OrderID:          updated.ID,
		PaymentAttemptID: attempt.ID,
		RedirectURL:      attempt.RedirectURL,
		Status:           updated.Status,
		TotalAmount:      updated.TotalAmount,
	}, nil
}
