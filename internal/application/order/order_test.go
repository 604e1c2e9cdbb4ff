package order

import (
	"context"
	"fmt"
	"testing"
	"time"

	apppayment "github.com/mojig27/web-site-sub001/internal/application/payment"
	"github.com/mojig27/web-site-sub001/internal/domain/inventory"
	domain "github.com/mojig27/web-site-sub001/internal/domain/order"
	"github.com/mojig27/web-site-sub001/internal/domain/payment"
	"github.com/mojig27/web-site-sub001/internal/infrastructure/gateway/simulated"
	"github.com/mojig27/web-site-sub001/internal/infrastructure/memory"
	"github.com/mojig27/web-site-sub001/internal/infrastructure/outbox"
	"github.com/mojig27/web-site-sub001/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	orders   *memory.OrderRepository
	attempts *memory.AttemptRepository
	ledger   *memory.Ledger
	gateway  *simulated.Gateway
	now      time.Time
	seq      int
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		orders:   memory.NewOrderRepository(),
		attempts: memory.NewAttemptRepository(),
		ledger:   memory.NewLedger(),
		gateway:  simulated.New("https://pay.test/"),
		now:      time.Now().UTC(),
	}
	_, err := e.ledger.SetStock(context.Background(), "sku-1", 10)
	require.NoError(t, err)
	return e
}

func (e *env) deps() Deps {
	return Deps{
		Orders:   e.orders,
		Attempts: e.attempts,
		Ledger:   e.ledger,
		Events:   outbox.NewBus(observability.Nop()),
		Clock:    func() time.Time { return e.now },
	}
}

// place stores an order for qty units of sku-1 with its stock reserved. With
// await set it also opens an attempt and moves the order to AwaitingPayment.
func (e *env) place(t *testing.T, qty int, await bool) (*domain.Order, *payment.Attempt) {
	t.Helper()
	ctx := context.Background()
	e.seq++
	o, err := domain.New(fmt.Sprintf("o-%d", e.seq), "u-1", "",
		[]domain.LineItem{{ProductID: "sku-1", Quantity: qty, UnitPrice: 700}},
		domain.ShippingAddress{Province: "Fars", City: "Shiraz", Address: "Zand 3", PostalCode: "7134567890"},
		fmt.Sprintf("r-%d", e.seq))
	require.NoError(t, err)
	_, err = e.ledger.Reserve(ctx, o.ReservationID, o.ID, []inventory.Line{{ProductID: "sku-1", Quantity: qty}})
	require.NoError(t, err)
	require.NoError(t, e.orders.Insert(ctx, o))

	a, err := payment.NewAttempt(fmt.Sprintf("a-%d", e.seq), o.ID, o.TotalAmount)
	require.NoError(t, err)
	res, err := e.gateway.Initiate(ctx, payment.InitiateRequest{OrderID: o.ID, AttemptID: a.ID, Amount: a.Amount})
	require.NoError(t, err)
	require.NoError(t, a.AttachGateway(res.GatewayReference, res.RedirectURL, time.Now()))
	require.NoError(t, e.attempts.Insert(ctx, a))
	if !await {
		return o, a
	}

	tr := domain.Next(o, domain.StatusAwaitingPayment)
	tr.PaymentAttemptID = a.ID
	o, err = e.orders.Transition(ctx, tr)
	require.NoError(t, err)
	return o, a
}

func (e *env) forceStatus(t *testing.T, id string, path ...domain.Status) *domain.Order {
	t.Helper()
	ctx := context.Background()
	o, err := e.orders.Get(ctx, id)
	require.NoError(t, err)
	for _, to := range path {
		o, err = e.orders.Transition(ctx, domain.Next(o, to))
		require.NoError(t, err)
	}
	return o
}

func TestSweeper_ExpiresUnpaidOrders(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	o, a := e.place(t, 3, true)
	e.now = e.now.Add(20 * time.Minute)

	sweeper := NewSweeper(e.deps(), SweeperConfig{Timeout: 15 * time.Minute}, observability.Nop())
	report, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Scanned: 1, Expired: 1}, report)

	got, err := e.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, got.Status)

	stored, err := e.attempts.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusExpired, stored.Status)

	s, err := e.ledger.Stock(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 10, s.Available)
	assert.Zero(t, s.Reserved)

	// A late callback finds the fenced attempt and never reaches the gateway.
	reconcile := apppayment.NewReconcileUseCase(apppayment.Deps{
		Orders: e.orders, Attempts: e.attempts, Ledger: e.ledger, Gateway: e.gateway,
	}, observability.Nop())
	res, err := reconcile.Execute(ctx, apppayment.ReconcileInput{GatewayReference: a.GatewayReference, ClaimedStatus: "OK"})
	require.NoError(t, err)
	assert.Equal(t, apppayment.OutcomeExpired, res.Outcome)
	assert.Zero(t, e.gateway.Verifies(a.GatewayReference))

	report, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)
}

func TestSweeper_LeavesFreshAndVerifyingOrders(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	fresh, _ := e.place(t, 1, true)
	verifying, a := e.place(t, 2, true)

	expected := a.Version
	require.NoError(t, a.StartVerifying(e.now, e.now.Add(time.Minute)))
	require.NoError(t, e.attempts.Save(ctx, a, expected))

	e.now = e.now.Add(10 * time.Minute)
	sweeper := NewSweeper(e.deps(), SweeperConfig{Timeout: 15 * time.Minute}, observability.Nop())
	report, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)

	e.now = e.now.Add(10 * time.Minute)
	report, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Scanned: 2, Expired: 1, Skipped: 1}, report)

	got, err := e.orders.Get(ctx, verifying.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingPayment, got.Status)
	got, err = e.orders.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, got.Status)

	s, err := e.ledger.Stock(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 2, s.Reserved)
}

func TestSweeper_PagesPastSkippedOrders(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	stuck, a := e.place(t, 1, true)
	expected := a.Version
	require.NoError(t, a.StartVerifying(e.now, e.now.Add(time.Minute)))
	a.FlagForReview("gateway outage", e.now)
	require.NoError(t, e.attempts.Save(ctx, a, expected))
	unpaid, _ := e.place(t, 2, true)

	e.now = e.now.Add(time.Hour)
	sweeper := NewSweeper(e.deps(), SweeperConfig{Timeout: 15 * time.Minute, Batch: 1}, observability.Nop())
	report, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Scanned: 2, Expired: 1, Skipped: 1}, report)

	got, err := e.orders.Get(ctx, unpaid.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, got.Status)
	got, err = e.orders.Get(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingPayment, got.Status)

	report, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Scanned: 1, Skipped: 1}, report)
}

func TestSweeper_RecoversStrandedCreatedOrders(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	o, a := e.place(t, 4, false)
	e.now = e.now.Add(time.Hour)

	report, err := NewSweeper(e.deps(), SweeperConfig{}, observability.Nop()).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Expired)

	got, err := e.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, got.Status)
	stored, err := e.attempts.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusExpired, stored.Status)

	r, err := e.ledger.Reservation(ctx, o.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, inventory.ReservationReleased, r.Status)
}

func TestFulfillment_Advance(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	o, _ := e.place(t, 1, true)
	e.forceStatus(t, o.ID, domain.StatusPaid)
	f := NewFulfillment(e.deps(), observability.Nop())

	_, err := f.Advance(ctx, AdvanceInput{OrderID: o.ID, To: domain.StatusShipped, TrackingCode: "T-1"})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "cannot skip processing")

	_, err = f.Advance(ctx, AdvanceInput{OrderID: o.ID, To: domain.StatusPaid})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	processing, err := f.Advance(ctx, AdvanceInput{OrderID: o.ID, To: domain.StatusProcessing})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, processing.Status)

	_, err = f.Advance(ctx, AdvanceInput{OrderID: o.ID, To: domain.StatusShipped, TrackingCode: "  "})
	assert.ErrorIs(t, err, ErrTrackingCodeRequired)

	_, err = f.Advance(ctx, AdvanceInput{OrderID: o.ID, To: domain.StatusShipped, TrackingCode: "T-1", ExpectedVersion: processing.Version - 1})
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	shipped, err := f.Advance(ctx, AdvanceInput{OrderID: o.ID, To: domain.StatusShipped, TrackingCode: " T-1 "})
	require.NoError(t, err)
	assert.Equal(t, "T-1", shipped.TrackingCode)

	delivered, err := f.Advance(ctx, AdvanceInput{OrderID: o.ID, To: domain.StatusDelivered})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, delivered.Status)
	assert.Equal(t, "T-1", delivered.TrackingCode)

	again, err := f.Advance(ctx, AdvanceInput{OrderID: o.ID, To: domain.StatusDelivered})
	require.NoError(t, err)
	assert.Equal(t, delivered.Version, again.Version)
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	first, _ := e.place(t, 1, true)
	second, a := e.place(t, 1, true)
	e.forceStatus(t, second.ID, domain.StatusPaymentFailed)

	q := NewQuery(e.orders, e.attempts, observability.Nop())

	got, err := q.Order(ctx, first.ID, "u-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	_, err = q.Order(ctx, first.ID, "u-2")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	failed, err := q.List(ctx, domain.ListFilter{Status: domain.StatusPaymentFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, second.ID, failed[0].ID)

	all, err := q.List(ctx, domain.ListFilter{UserID: "u-1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	attempts, err := q.Attempts(ctx, second.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, a.ID, attempts[0].ID)

	_, err = q.Attempts(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	expected := a.Version
	a.FlagForReview("operator check", time.Now())
	require.NoError(t, e.attempts.Save(ctx, a, expected))
	review, err := q.Review(ctx, 0)
	require.NoError(t, err)
	require.Len(t, review, 1)
	assert.True(t, review[0].NeedsReview)
}
