package checkout

import (
	"context"
	"fmt"

	"github.com/mojig27/web-site-sub001/internal/application"
	apppayment "github.com/mojig27/web-site-sub001/internal/application/payment"
	"github.com/mojig27/web-site-sub001/internal/domain/order"
	"github.com/mojig27/web-site-sub001/internal/domain/payment"
	"github.com/mojig27/web-site-sub001/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const useCaseCancel = "checkout.cancel"

type CancelInput struct {
	OrderID string
	UserID  string
}

type CancelResult struct {
	OrderID string
	Status  order.Status
}

// CancelUseCase accepts a shopper's cancel while the order is unpaid. Once a
// verification has been claimed the cancel is refused: the gateway may still
// confirm, and refunds are a separate workflow.
type CancelUseCase struct {
	deps Deps
	tel  application.Telemetry
}

func NewCancelUseCase(deps Deps, tel observability.Observability) *CancelUseCase {
	return &CancelUseCase{deps: deps, tel: application.NewTelemetry(tel, checkoutService)}
}

func (uc *CancelUseCase) Execute(ctx context.Context, cmd CancelInput) (_ *CancelResult, err error) {
	ctx, run := uc.tel.Begin(ctx, useCaseCancel, "Cancel",
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
	if o.Status == order.StatusCanceled {
		run.Status("ALREADY_CANCELED")
		return &CancelResult{OrderID: o.ID, Status: o.Status}, nil
	}
	if !o.Status.Cancelable() {
		run.Fail("rejected", "NOT_CANCELABLE")
		return nil, fmt.Errorf("%w: cannot cancel an order in %s", order.ErrInvalidTransition, o.Status)
	}

	if o.PaymentAttemptID != "" && o.Status == order.StatusAwaitingPayment {
		a, err := apppayment.FenceAttempt(ctx, d.Attempts, o.PaymentAttemptID, d.now())
		if err != nil {
			run.Fail("error", "ATTEMPT_FENCE_FAILED")
			return nil, fmt.Errorf("fence payment attempt: %w", err)
		}
		if a.Status == payment.StatusVerifying || a.Status == payment.StatusVerified {
			run.Fail("rejected", "PAYMENT_IN_FLIGHT")
			return nil, ErrPaymentInFlight
		}
	}

	t := order.Next(o, order.StatusCanceled)
	t.At = d.now()
	updated, err := d.Orders.Transition(ctx, t)
	if err != nil {
		run.Fail("rejected", "ORDER_MOVED_CONCURRENTLY")
		return nil, err
	}

	// A PaymentFailed order's reservation is already released; repeating it is a no-op.
	d.release(ctx, updated.ReservationID)
	uc.tel.Publish(ctx, d.Events, order.NewStatusChangedEvent(updated, o.Status))

	return &CancelResult{OrderID: updated.ID, Status: updated.Status}, nil
}
