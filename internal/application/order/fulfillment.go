package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mojig27/web-site-sub001/internal/application"
	domain "github.com/mojig27/web-site-sub001/internal/domain/order"
	"github.com/mojig27/web-site-sub001/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const useCaseAdvance = "order.advance"

var ErrTrackingCodeRequired = errors.New("order: tracking code is required when shipping")

// fulfillmentSteps are the moves an operator may make after payment.
var fulfillmentSteps = map[domain.Status]domain.Status{
	domain.StatusProcessing: domain.StatusPaid,
	domain.StatusShipped:    domain.StatusProcessing,
	domain.StatusDelivered:  domain.StatusShipped,
}

type AdvanceInput struct {
	OrderID      string
	To           domain.Status
	TrackingCode string
	// ExpectedVersion, when non-zero, pins the write to the version the
	// operator was looking at.
	ExpectedVersion int64
}

// Fulfillment moves paid orders along Paid -> Processing -> Shipped -> Delivered.
type Fulfillment struct {
	deps Deps
	tel  application.Telemetry
}

func NewFulfillment(deps Deps, tel observability.Observability) *Fulfillment {
	return &Fulfillment{deps: deps, tel: application.NewTelemetry(tel, orderService)}
}

func (f *Fulfillment) Advance(ctx context.Context, cmd AdvanceInput) (_ *domain.Order, err error) {
	ctx, run := f.tel.Begin(ctx, useCaseAdvance, "AdvanceOrder",
		[]attribute.KeyValue{
			attribute.String("order.id", cmd.OrderID),
			attribute.String("order.to", string(cmd.To)),
		},
		observability.F("order_id", cmd.OrderID),
		observability.F("to", string(cmd.To)),
	)
	defer func() { run.End(err) }()
	d := f.deps

	from, ok := fulfillmentSteps[cmd.To]
	if !ok {
		run.Fail("rejected", "NOT_A_FULFILLMENT_STEP")
		return nil, fmt.Errorf("%w: %s is not a fulfillment step", domain.ErrInvalidTransition, cmd.To)
	}
	tracking := strings.TrimSpace(cmd.TrackingCode)
	if cmd.To == domain.StatusShipped && tracking == "" {
		run.Fail("rejected", "TRACKING_CODE_REQUIRED")
		return nil, ErrTrackingCodeRequired
	}

	o, err := d.Orders.Get(ctx, cmd.OrderID)
	if err != nil {
		run.Fail("rejected", "ORDER_LOOKUP_FAILED")
		return nil, err
	}
	if o.Status == cmd.To {
		run.Status("ALREADY_APPLIED")
		return o, nil
	}
	if o.Status != from {
		run.Fail("rejected", "INVALID_TRANSITION")
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, o.Status, cmd.To)
	}
	if cmd.ExpectedVersion != 0 && cmd.ExpectedVersion != o.Version {
		run.Fail("rejected", "STALE_VERSION")
		return nil, domain.ErrVersionConflict
	}

	t := domain.Next(o, cmd.To)
	t.At = d.now()
	if cmd.To == domain.StatusShipped {
		t.TrackingCode = tracking
	}
	updated, err := d.Orders.Transition(ctx, t)
	if err != nil {
		run.Fail("rejected", "TRANSITION_FAILED")
		return nil, err
	}
	f.tel.Publish(ctx, d.Events, domain.NewStatusChangedEvent(updated, o.Status))
	return updated, nil
}
