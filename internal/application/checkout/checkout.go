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
	"go.opentelemetry.io/otel/trace"
)

const (
	checkoutService = "checkout-service"
	useCaseCheckout = "checkout.place"
)

type CheckoutInput struct {
	UserID          string
	IdempotencyKey  string
	Items           []CartItem
	ShippingAddress order.ShippingAddress
}

type CheckoutResult struct {
	OrderID          string
	PaymentAttemptID string
	RedirectURL      string
	Status           order.Status
	TotalAmount      int64
	// Replayed is set when the idempotency key matched an earlier checkout.
	Replayed bool
}

// CheckoutUseCase turns a cart into an order awaiting payment: prices are
// snapshotted, stock reserved, the order stored and a payment opened at the
// gateway. Every failure after the reservation releases it.
type CheckoutUseCase struct {
	deps         Deps
	tel          application.Telemetry
	reservations observability.Counter // inventory_reservations_total{outcome}
}

func NewCheckoutUseCase(deps Deps, tel observability.Observability) *CheckoutUseCase {
	return &CheckoutUseCase{
		deps:         deps,
		tel:          application.NewTelemetry(tel, checkoutService),
		reservations: observability.MetricsOf(tel).Counter(observability.MInventoryReservations),
	}
}

func (uc *CheckoutUseCase) Execute(ctx context.Context, cmd CheckoutInput) (_ *CheckoutResult, err error) {
	ctx, run := uc.tel.Begin(ctx, useCaseCheckout, "Checkout",
		[]attribute.KeyValue{
			attribute.String("order.user_id", cmd.UserID),
			attribute.Int("order.items", len(cmd.Items)),
		},
		observability.F("user_id", cmd.UserID),
	)
	defer func() { run.End(err) }()
	d := uc.deps

	if err := validateCart(cmd.UserID, cmd.Items); err != nil {
		run.Fail("rejected", "VALIDATION_FAILED")
		return nil, err
	}
	if err := validateAddress(cmd.ShippingAddress); err != nil {
		run.Fail("rejected", "VALIDATION_FAILED")
		return nil, err
	}

	if cmd.IdempotencyKey != "" {
		existing, lookupErr := d.Orders.FindByIdempotency(ctx, cmd.UserID, cmd.IdempotencyKey)
		switch {
		case lookupErr == nil:
			run.Status("IDEMPOTENT_REPLAY")
			return uc.replay(ctx, run, existing)
		case errors.Is(lookupErr, order.ErrNotFound):
		default:
			run.Fail("error", "IDEMPOTENCY_LOOKUP_FAILED")
			return nil, repositoryError("idempotency lookup", lookupErr)
		}
	}

	items := make([]order.LineItem, 0, len(cmd.Items))
	lines := make([]inventory.Line, 0, len(cmd.Items))
	for _, it := range cmd.Items {
		price, priceErr := d.Prices.Price(ctx, it.ProductID)
		if priceErr != nil {
			run.Fail("rejected", "PRICE_UNAVAILABLE")
			return nil, validation("price unavailable for %s: %v", it.ProductID, priceErr)
		}
		items = append(items, order.LineItem{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: price})
		lines = append(lines, inventory.Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	orderID, reservationID := d.IDs.NewID(), d.IDs.NewID()
	o, err := order.New(orderID, cmd.UserID, cmd.IdempotencyKey, items, cmd.ShippingAddress, reservationID)
	if err != nil {
		run.Fail("rejected", "VALIDATION_FAILED")
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	run.Span.SetAttributes(attribute.String("order.id", o.ID), attribute.Int64("order.total_amount", o.TotalAmount))
	run.With(observability.F("order_id", o.ID), observability.F("total_amount", o.TotalAmount))

	if _, err := d.Ledger.Reserve(ctx, reservationID, orderID, lines); err != nil {
		if errors.Is(err, inventory.ErrInsufficientStock) {
			uc.reservations.Add(1, observability.L("outcome", "insufficient_stock"))
			run.Fail("rejected", "INSUFFICIENT_STOCK")
			return nil, err
		}
		uc.reservations.Add(1, observability.L("outcome", "error"))
		run.Fail("error", "RESERVE_FAILED")
		return nil, fmt.Errorf("reserve stock: %w", err)
	}
	uc.reservations.Add(1, observability.L("outcome", "reserved"))

	if err := d.Orders.Insert(ctx, o); err != nil {
		d.release(ctx, reservationID)
		if errors.Is(err, order.ErrConflict) && cmd.IdempotencyKey != "" {
			// A concurrent checkout with the same key won the insert.
			if existing, lookupErr := d.Orders.FindByIdempotency(ctx, cmd.UserID, cmd.IdempotencyKey); lookupErr == nil {
				run.Status("IDEMPOTENT_REPLAY")
				return uc.replay(ctx, run, existing)
			}
		}
		run.Fail("error", "REPO_INSERT_FAILED")
		return nil, repositoryError("insert order", err)
	}

	attempt, err := d.startPayment(ctx, o)
	if err != nil {
		d.markPaymentFailed(ctx, o)
		d.release(ctx, reservationID)
		run.Fail("error", gatewayStatus(err))
		if o.Status == order.StatusPaymentFailed {
			uc.tel.Publish(ctx, d.Events, order.NewStatusChangedEvent(o, order.StatusCreated))
		}
		return nil, err
	}

	t := order.Next(o, order.StatusAwaitingPayment)
	t.PaymentAttemptID = attempt.ID
	t.At = d.now()
	updated, err := d.Orders.Transition(ctx, t)
	if err != nil {
		// Canceled or swept while the gateway was being called.
		d.abandon(ctx, attempt, reservationID)
		run.Fail("error", "ORDER_MOVED_CONCURRENTLY")
		return nil, fmt.Errorf("await payment: %w", err)
	}

	uc.tel.Publish(ctx, d.Events, order.NewStatusChangedEvent(updated, order.StatusCreated))
	run.Span.AddEvent("order.awaiting_payment", trace.WithAttributes(
		attribute.String("payment.attempt_id", attempt.ID),
		attribute.String("payment.gateway_reference", attempt.GatewayReference),
	))

	return &CheckoutResult{
		OrderID:          updated.ID,
		PaymentAttemptID: attempt.ID,
		RedirectURL:      attempt.RedirectURL,
		Status:           updated.Status,
		TotalAmount:      updated.TotalAmount,
	}, nil
}

func (uc *CheckoutUseCase) replay(ctx context.Context, run *application.Run, o *order.Order) (*CheckoutResult, error) {
	run.Span.AddEvent("order.idempotent_replay", trace.WithAttributes(attribute.String("order.id", o.ID)))
	run.With(observability.F("order_id", o.ID))

	res := &CheckoutResult{
		OrderID:          o.ID,
		PaymentAttemptID: o.PaymentAttemptID,
		Status:           o.Status,
		TotalAmount:      o.TotalAmount,
		Replayed:         true,
	}
	if o.Status == order.StatusAwaitingPayment && o.PaymentAttemptID != "" {
		a, err := uc.deps.Attempts.Get(ctx, o.PaymentAttemptID)
		if err != nil {
			run.Fail("error", "ATTEMPT_LOOKUP_FAILED")
			return nil, repositoryError("get attempt", err)
		}
		res.RedirectURL = a.RedirectURL
	}
	return res, nil
}
