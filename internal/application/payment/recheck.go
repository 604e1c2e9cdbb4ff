package payment

import (
	"context"
	"errors"

	"github.com/mojig27/web-site-sub001/internal/application"
	domain "github.com/mojig27/web-site-sub001/internal/domain/payment"
	"github.com/mojig27/web-site-sub001/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const defaultRecheckBatch = 50

// RecheckWorker re-verifies attempts left in Verifying: ambiguous answers due
// for their backoff slot, and claims whose owner died before recording an
// outcome. Each attempt's lease is renewed with a guarded write before the
// gateway call.
type RecheckWorker struct {
	settler
	batch         int
	verifications observability.Counter
}

type RecheckReport struct {
	Due       int
	Verified  int
	Failed    int
	Pending   int
	Review    int
	Conflicts int
	Errors    int
}

func NewRecheckWorker(deps Deps, tel observability.Observability, batch int) *RecheckWorker {
	if batch <= 0 {
		batch = defaultRecheckBatch
	}
	return &RecheckWorker{
		settler:       settler{deps: deps, tel: application.NewTelemetry(tel, paymentService)},
		batch:         batch,
		verifications: observability.MetricsOf(tel).Counter(observability.MPaymentVerifications),
	}
}

func (w *RecheckWorker) Tick(ctx context.Context) (report RecheckReport, err error) {
	ctx, run := w.tel.Begin(ctx, useCaseRecheck, recheckSpanName, nil)
	defer func() {
		run.With(
			observability.F("due", report.Due),
			observability.F("verified", report.Verified),
			observability.F("failed", report.Failed),
			observability.F("pending", report.Pending),
			observability.F("review", report.Review),
			observability.F("conflicts", report.Conflicts),
			observability.F("errors", report.Errors),
		)
		run.End(err)
	}()
	d := w.deps

	due, err := d.Attempts.ListDueVerifying(ctx, d.now(), w.batch)
	if err != nil {
		run.Fail("error", "LIST_DUE_FAILED")
		return report, err
	}
	report.Due = len(due)
	run.Span.SetAttributes(attribute.Int("payment.due", len(due)))

	for _, a := range due {
		if ctx.Err() != nil {
			break
		}
		res, err := w.recheck(ctx, a)
		switch {
		case errors.Is(err, domain.ErrVersionConflict):
			report.Conflicts++
			continue
		case err != nil:
			report.Errors++
			run.Log.Warn("payment_recheck_failed",
				observability.F("attempt_id", a.ID),
				observability.F("error", err),
			)
			continue
		}
		switch res.Outcome {
		case OutcomePaid:
			report.Verified++
		case OutcomePaymentFailed:
			report.Failed++
		case OutcomeNeedsReview:
			report.Review++
		default:
			report.Pending++
		}
	}
	if report.Errors > 0 {
		run.Fail("partial", "RECHECK_ERRORS")
	}
	return report, nil
}

func (w *RecheckWorker) recheck(ctx context.Context, a *domain.Attempt) (*Result, error) {
	d := w.deps
	expected := a.Version
	now := d.now()
	if err := a.Renew(now, now.Add(d.lease())); err != nil {
		return nil, err
	}
	if err := d.Attempts.Save(ctx, a, expected); err != nil {
		return nil, err
	}

	v := d.Gateway.Verify(ctx, a.GatewayReference, a.Amount)
	w.verifications.Add(1, observability.L("outcome", string(v.Outcome)))
	return w.settle(ctx, a, v)
}
