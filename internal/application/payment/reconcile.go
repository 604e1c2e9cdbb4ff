package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/mojig27/web-site-sub001/internal/application"
	"github.com/mojig27/web-site-sub001/internal/domain/order"
	domain "github.com/mojig27/web-site-sub001/internal/domain/payment"
	"github.com/mojig27/web-site-sub001/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	paymentService     = "payment-service"
	useCaseReconcile   = "payment.reconcile"
	useCaseRecheck     = "payment.recheck"
	reconcileSpanName  = "ReconcilePayment"
	recheckSpanName    = "RecheckPayment"
	claimedStatusField = "claimed_status"
)

type ReconcileInput struct {
	GatewayReference string
	// ClaimedStatus is what the callback says happened. It is logged and
	// never acted on; only the gateway's verify answer counts.
	ClaimedStatus string
}

// ReconcileUseCase handles a gateway callback. Each attempt is verified
// remotely at most once: terminal attempts are answered from storage, and an
// initiated attempt is claimed (Initiated -> Verifying) with a version-guarded
// write before the gateway is called, so concurrent deliveries race on the
// store instead of on the gateway.
type ReconcileUseCase struct {
	settler
	verifications observability.Counter
}

func NewReconcileUseCase(deps Deps, tel observability.Observability) *ReconcileUseCase {
	return &ReconcileUseCase{
		settler:       settler{deps: deps, tel: application.NewTelemetry(tel, paymentService)},
		verifications: observability.MetricsOf(tel).Counter(observability.MPaymentVerifications),
	}
}

func (uc *ReconcileUseCase) Execute(ctx context.Context, cmd ReconcileInput) (_ *Result, err error) {
	ctx, run := uc.tel.Begin(ctx, useCaseReconcile, reconcileSpanName,
		[]attribute.KeyValue{
			attribute.String("payment.gateway_reference", cmd.GatewayReference),
			attribute.String("payment.claimed_status", cmd.ClaimedStatus),
		},
		observability.F("gateway_reference", cmd.GatewayReference),
		observability.F(claimedStatusField, cmd.ClaimedStatus),
	)
	defer func() { run.End(err) }()
	d := uc.deps

	if cmd.GatewayReference == "" {
		run.Fail("rejected", "REFERENCE_REQUIRED")
		return nil, fmt.Errorf("%w: gateway reference is required", domain.ErrNotFound)
	}

	a, err := d.Attempts.GetByGatewayReference(ctx, cmd.GatewayReference)
	if err != nil {
		run.Fail("rejected", "ATTEMPT_LOOKUP_FAILED")
		return nil, err
	}
	run.Span.SetAttributes(attribute.String("order.id", a.OrderID), attribute.String("payment.attempt_id", a.ID))
	run.With(observability.F("order_id", a.OrderID), observability.F("attempt_id", a.ID))

	if a.Status != domain.StatusInitiated {
		run.Status("CACHED")
		return uc.stored(ctx, a)
	}

	expected := a.Version
	now := d.now()
	if err := a.StartVerifying(now, now.Add(d.lease())); err != nil {
		return nil, err
	}
	if err := d.Attempts.Save(ctx, a, expected); err != nil {
		if !errors.Is(err, domain.ErrVersionConflict) {
			run.Fail("error", "ATTEMPT_CLAIM_FAILED")
			return nil, err
		}
		// Another delivery, the sweeper or a cancel got there first.
		current, getErr := d.Attempts.Get(ctx, a.ID)
		if getErr != nil {
			run.Fail("error", "ATTEMPT_LOOKUP_FAILED")
			return nil, getErr
		}
		run.Status("CLAIM_LOST")
		return uc.stored(ctx, current)
	}

	v := d.Gateway.Verify(ctx, a.GatewayReference, a.Amount)
	uc.verifications.Add(1, observability.L("outcome", string(v.Outcome)))
	run.Span.SetAttributes(attribute.String("payment.verify_outcome", string(v.Outcome)))
	run.With(observability.F("verify_outcome", string(v.Outcome)))

	res, err := uc.settle(ctx, a, v)
	if err != nil {
		run.Fail("error", "SETTLE_FAILED")
		return nil, err
	}
	run.Span.SetAttributes(attribute.String("order.status", string(res.OrderStatus)))
	run.With(observability.F("result", res.Outcome))
	return res, nil
}

// stored answers from persisted state without calling the gateway.
func (uc *ReconcileUseCase) stored(ctx context.Context, a *domain.Attempt) (*Result, error) {
	o, err := uc.deps.Orders.Get(ctx, a.OrderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	return storedResult(o, a), nil
}

func storedResult(o *order.Order, a *domain.Attempt) *Result {
	res := &Result{
		OrderID:       o.ID,
		AttemptID:     a.ID,
		OrderStatus:   o.Status,
		AttemptStatus: a.Status,
		Cached:        true,
	}
	switch {
	case a.NeedsReview:
		res.Outcome = OutcomeNeedsReview
	case a.Status == domain.StatusVerified:
		res.Outcome = OutcomePaid
	case a.Status == domain.StatusFailed:
		res.Outcome = OutcomePaymentFailed
	case a.Status == domain.StatusExpired:
		res.Outcome = OutcomeExpired
	default:
		res.Outcome = OutcomePending
	}
	return res
}
