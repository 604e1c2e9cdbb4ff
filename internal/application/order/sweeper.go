package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mojig27/web-site-sub001/internal/application"
	appinventory "github.com/mojig27/web-site-sub001/internal/application/inventory"
	apppayment "github.com/mojig27/web-site-sub001/internal/application/payment"
	domain "github.com/mojig27/web-site-sub001/internal/domain/order"
	"github.com/mojig27/web-site-sub001/internal/domain/payment"
	"github.com/mojig27/web-site-sub001/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	useCaseSweep        = "order.sweep"
	defaultSweepTimeout = 15 * time.Minute
	defaultSweepBatch   = 100
)

type SweeperConfig struct {
	// Timeout is how long an order may wait for payment before it expires.
	Timeout time.Duration
	Batch   int
}

type SweepReport struct {
	Scanned int
	Expired int
	// Skipped orders have a verification in flight or already settled.
	Skipped   int
	Conflicts int
	Errors    int
}

// Sweeper expires orders whose payment never arrived and returns their stock.
// Each order's attempt is fenced first, so a callback racing the sweep either
// claims the attempt (and the order is skipped) or finds it expired.
type Sweeper struct {
	deps  Deps
	cfg   SweeperConfig
	tel   application.Telemetry
	swept observability.Counter
}

func NewSweeper(deps Deps, cfg SweeperConfig, tel observability.Observability) *Sweeper {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSweepTimeout
	}
	if cfg.Batch <= 0 {
		cfg.Batch = defaultSweepBatch
	}
	return &Sweeper{
		deps:  deps,
		cfg:   cfg,
		tel:   application.NewTelemetry(tel, orderService),
		swept: observability.MetricsOf(tel).Counter(observability.MOrdersSwept),
	}
}

func (s *Sweeper) Sweep(ctx context.Context) (report SweepReport, err error) {
	ctx, run := s.tel.Begin(ctx, useCaseSweep, "Sweep",
		[]attribute.KeyValue{attribute.String("sweep.timeout", s.cfg.Timeout.String())})
	defer func() {
		run.With(
			observability.F("scanned", report.Scanned),
			observability.F("expired", report.Expired),
			observability.F("skipped", report.Skipped),
			observability.F("conflicts", report.Conflicts),
			observability.F("errors", report.Errors),
		)
		run.End(err)
	}()

	cutoff := s.deps.now().Add(-s.cfg.Timeout)
	for _, status := range []domain.Status{domain.StatusAwaitingPayment, domain.StatusCreated} {
		if err := s.sweepStatus(ctx, status, cutoff, &report); err != nil {
			run.Fail("error", "LIST_STALE_FAILED")
			return report, err
		}
	}
	run.Span.SetAttributes(attribute.Int("sweep.expired", report.Expired))
	if report.Errors > 0 {
		run.Fail("partial", "SWEEP_ERRORS")
	}
	return report, nil
}

// sweepStatus walks every stale order in status, Batch at a time. The
// keyset cursor moves past skipped orders, which keep their UpdatedAt, so
// they never hide newer orders behind them.
func (s *Sweeper) sweepStatus(ctx context.Context, status domain.Status, cutoff time.Time, report *SweepReport) error {
	var cursor domain.Cursor
	for {
		orders, err := s.deps.Orders.ListByStatusBefore(ctx, status, cutoff, cursor, s.cfg.Batch)
		if err != nil {
			return fmt.Errorf("list stale %s orders: %w", status, err)
		}
		for _, o := range orders {
			if ctx.Err() != nil {
				return nil
			}
			report.Scanned++
			outcome := s.expire(ctx, o)
			s.swept.Add(1, observability.L("outcome", outcome))
			switch outcome {
			case "expired":
				report.Expired++
			case "skipped":
				report.Skipped++
			case "conflict":
				report.Conflicts++
			default:
				report.Errors++
			}
			cursor = domain.CursorAt(o)
		}
		if len(orders) < s.cfg.Batch {
			return nil
		}
	}
}

func (s *Sweeper) expire(ctx context.Context, o *domain.Order) string {
	d := s.deps
	logger := s.tel.Logger().With(observability.F("order_id", o.ID), observability.F("order_status", string(o.Status)))

	fenced, err := s.fence(ctx, o)
	if err != nil {
		logger.Error("sweep_fence_failed", observability.F("error", err))
		return "error"
	}
	if !fenced {
		return "skipped"
	}

	t := domain.Next(o, domain.StatusExpired)
	t.At = d.now()
	updated, err := d.Orders.Transition(ctx, t)
	if errors.Is(err, domain.ErrVersionConflict) {
		// A callback or a cancel moved the order; whatever it did to the
		// reservation stands.
		logger.Info("sweep_transition_conflict")
		return "conflict"
	}
	if err != nil {
		logger.Error("sweep_transition_failed", observability.F("error", err))
		return "error"
	}

	if err := appinventory.ReleaseReservation(ctx, d.Ledger, updated.ReservationID); err != nil {
		logger.Error("reservation_release_failed",
			observability.F("reservation_id", updated.ReservationID),
			observability.F("error", err),
		)
	}
	s.tel.Publish(ctx, d.Events, domain.NewStatusChangedEvent(updated, o.Status))
	logger.Info("order_expired", observability.F("reservation_id", updated.ReservationID))
	return "expired"
}

// fence expires every initiated attempt of o. It reports false when an
// attempt has left Initiated on its own, meaning a verification owns the
// order's outcome.
func (s *Sweeper) fence(ctx context.Context, o *domain.Order) (bool, error) {
	d := s.deps
	ids := []string{}
	switch {
	case o.Status == domain.StatusAwaitingPayment && o.PaymentAttemptID != "":
		ids = append(ids, o.PaymentAttemptID)
	case o.Status == domain.StatusCreated:
		// Stranded between insert and await: an attempt may have been opened.
		attempts, err := d.Attempts.ListByOrder(ctx, o.ID)
		if err != nil {
			return false, err
		}
		for _, a := range attempts {
			ids = append(ids, a.ID)
		}
	}

	for _, id := range ids {
		a, err := apppayment.FenceAttempt(ctx, d.Attempts, id, d.now())
		if err != nil {
			return false, err
		}
		if a.Status == payment.StatusVerifying || a.Status == payment.StatusVerified {
			return false, nil
		}
	}
	return true, nil
}
