package order

import (
	"context"

	"github.com/mojig27/web-site-sub001/internal/application"
	domain "github.com/mojig27/web-site-sub001/internal/domain/order"
	"github.com/mojig27/web-site-sub001/internal/domain/payment"
	"github.com/mojig27/web-site-sub001/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const defaultReviewLimit = 100

// Query is the read-only view over orders and payment attempts used by
// shoppers and operators. It never mutates state.
type Query struct {
	orders   domain.Repository
	attempts payment.Repository
	tel      application.Telemetry
}

func NewQuery(orders domain.Repository, attempts payment.Repository, tel observability.Observability) *Query {
	return &Query{orders: orders, attempts: attempts, tel: application.NewTelemetry(tel, orderService)}
}

// Order returns one order. A non-empty userID must own it; otherwise the
// order is reported as not found.
func (q *Query) Order(ctx context.Context, id, userID string) (_ *domain.Order, err error) {
	ctx, run := q.tel.Begin(ctx, "order.get", "GetOrder",
		[]attribute.KeyValue{attribute.String("order.id", id)},
		observability.F("order_id", id),
	)
	defer func() { run.End(err) }()

	o, err := q.orders.Get(ctx, id)
	if err != nil {
		run.Fail("rejected", "ORDER_LOOKUP_FAILED")
		return nil, err
	}
	if userID != "" && o.UserID != userID {
		run.Fail("rejected", "NOT_OWNER")
		return nil, domain.ErrNotFound
	}
	return o, nil
}

func (q *Query) List(ctx context.Context, filter domain.ListFilter) (_ []*domain.Order, err error) {
	ctx, run := q.tel.Begin(ctx, "order.list", "ListOrders",
		[]attribute.KeyValue{attribute.String("order.status", string(filter.Status))},
		observability.F("user_id", filter.UserID),
		observability.F("status", string(filter.Status)),
	)
	defer func() { run.End(err) }()

	orders, err := q.orders.List(ctx, filter)
	if err != nil {
		run.Fail("error", "LIST_FAILED")
		return nil, err
	}
	run.With(observability.F("count", len(orders)))
	return orders, nil
}

func (q *Query) Attempts(ctx context.Context, orderID string) ([]*payment.Attempt, error) {
	if _, err := q.orders.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return q.attempts.ListByOrder(ctx, orderID)
}

// Review lists attempts waiting for an operator.
func (q *Query) Review(ctx context.Context, limit int) ([]*payment.Attempt, error) {
	if limit <= 0 {
		limit = defaultReviewLimit
	}
	return q.attempts.ListNeedingReview(ctx, limit)
}
