package notification

import (
	"context"
	"fmt"

	"github.com/mojig27/web-site-sub001/internal/application"
	"github.com/mojig27/web-site-sub001/internal/domain/order"
	domoutbox "github.com/mojig27/web-site-sub001/internal/domain/outbox"
	"github.com/mojig27/web-site-sub001/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	notificationService = "notification-service"
	useCaseNotify       = "notification.dispatch"
)

// Notifier delivers one order event to the shopper.
type Notifier interface {
	Notify(ctx context.Context, orderID, event string) error
}

// Statuses that produce a shopper notification.
var notified = []order.Status{
	order.StatusAwaitingPayment,
	order.StatusPaid,
	order.StatusPaymentFailed,
	order.StatusProcessing,
	order.StatusShipped,
	order.StatusDelivered,
	order.StatusCanceled,
	order.StatusExpired,
}

// Worker forwards order status changes to a Notifier. Delivery failures are
// logged and dropped.
type Worker struct {
	subscriber domoutbox.Subscriber
	notifier   Notifier
	tel        application.Telemetry
}

func NewWorker(subscriber domoutbox.Subscriber, notifier Notifier, tel observability.Observability) *Worker {
	t := application.NewTelemetry(tel, notificationService)
	if notifier == nil {
		notifier = LogNotifier{Log: t.Logger()}
	}
	return &Worker{subscriber: subscriber, notifier: notifier, tel: t}
}

func (w *Worker) Start() {
	if w.subscriber == nil {
		return
	}
	for _, s := range notified {
		w.subscriber.Subscribe(order.EventName(s), w.handle)
	}
}

func (w *Worker) handle(ctx context.Context, e domoutbox.Event) (err error) {
	evt, ok := e.(order.StatusChangedEvent)
	if !ok {
		return nil
	}
	ctx, run := w.tel.Begin(ctx, useCaseNotify, "Notify",
		[]attribute.KeyValue{
			attribute.String("order.id", evt.OrderID),
			attribute.String("event", e.EventName()),
		},
		observability.F("order_id", evt.OrderID),
		observability.F("event", e.EventName()),
		observability.F("from", string(evt.From)),
	)
	defer func() { run.End(err) }()

	if err := w.notifier.Notify(ctx, evt.OrderID, e.EventName()); err != nil {
		run.Fail("error", "NOTIFY_FAILED")
		return fmt.Errorf("notify %s: %w", evt.OrderID, err)
	}
	return nil
}

// LogNotifier records notifications in the log. It stands in for an SMS or
// mail provider.
type LogNotifier struct {
	Log observability.Logger
}

func (n LogNotifier) Notify(_ context.Context, orderID, event string) error {
	if n.Log != nil {
		n.Log.Info("notification_sent",
			observability.F("order_id", orderID),
			observability.F("event", event),
		)
	}
	return nil
}
