package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mojig27/web-site-sub001/internal/domain/order"
	"github.com/mojig27/web-site-sub001/internal/infrastructure/outbox"
	"github.com/mojig27/web-site-sub001/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	mu   sync.Mutex
	sent []string
	fail bool
}

func (c *captured) Notify(_ context.Context, orderID, event string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, orderID+" "+event)
	if c.fail {
		return errors.New("sms provider down")
	}
	return nil
}

func (c *captured) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func TestWorker_ForwardsStatusChanges(t *testing.T) {
	ctx := context.Background()
	bus := outbox.NewBus(observability.Nop())
	bus.Start(ctx)
	defer bus.Stop(ctx)

	sink := &captured{}
	NewWorker(bus, sink, observability.Nop()).Start()

	require.NoError(t, bus.Publish(ctx, order.StatusChangedEvent{OrderID: "o-1", From: order.StatusAwaitingPayment, To: order.StatusPaid}))
	require.NoError(t, bus.Publish(ctx, order.StatusChangedEvent{OrderID: "o-2", From: order.StatusCreated, To: order.StatusCreated}))

	assert.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 10*time.Millisecond)
	sink.mu.Lock()
	assert.Equal(t, []string{"o-1 order.paid"}, sink.sent)
	sink.mu.Unlock()
}

func TestWorker_HandlerReportsNotifierFailure(t *testing.T) {
	sink := &captured{fail: true}
	w := NewWorker(nil, sink, observability.Nop())

	err := w.handle(context.Background(), order.StatusChangedEvent{OrderID: "o-1", To: order.StatusExpired})
	assert.Error(t, err)
	assert.Equal(t, 1, sink.count())
}
