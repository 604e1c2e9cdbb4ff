package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domoutbox "github.com/mojig27/web-site-sub001/internal/domain/outbox"
	"github.com/mojig27/web-site-sub001/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent string

func (e testEvent) EventName() string { return string(e) }

func TestBus_DeliversToSubscribers(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(observability.Nop())

	var (
		mu   sync.Mutex
		seen []string
		wg   sync.WaitGroup
	)
	wg.Add(2)
	record := func(tag string) domoutbox.Handler {
		return func(ctx context.Context, e domoutbox.Event) error {
			defer wg.Done()
			mu.Lock()
			seen = append(seen, tag+":"+e.EventName())
			mu.Unlock()
			return errors.New("ignored")
		}
	}
	bus.Subscribe("order.paid", record("a"))
	bus.Subscribe("order.paid", record("b"))
	bus.Start(ctx)

	require.NoError(t, bus.Publish(ctx, testEvent("order.paid")))
	require.NoError(t, bus.Publish(ctx, testEvent("order.expired")))
	wg.Wait()
	bus.Stop(ctx)

	assert.ElementsMatch(t, []string{"a:order.paid", "b:order.paid"}, seen)
}

func TestBus_HandlerPanicDoesNotStopDispatch(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(nil)

	delivered := make(chan struct{}, 1)
	bus.Subscribe("boom", func(context.Context, domoutbox.Event) error { panic("boom") })
	bus.Subscribe("ok", func(context.Context, domoutbox.Event) error {
		delivered <- struct{}{}
		return nil
	})
	bus.Start(ctx)

	require.NoError(t, bus.Publish(ctx, testEvent("boom")))
	require.NoError(t, bus.Publish(ctx, testEvent("ok")))

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("event after a panicking handler was not delivered")
	}
	bus.Stop(ctx)
}

func TestBus_PublishAfterStopIsDropped(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(nil, WithQueueSize(1))
	bus.Start(ctx)
	bus.Stop(ctx)

	assert.NoError(t, bus.Publish(ctx, testEvent("late")))
}

func TestBus_FullQueueDropsInsteadOfBlocking(t *testing.T) {
	bus := NewBus(nil, WithQueueSize(1))
	ctx := context.Background()

	// Not started: the queue only drains once Start is called.
	require.NoError(t, bus.Publish(ctx, testEvent("first")))
	done := make(chan struct{})
	go func() {
		_ = bus.Publish(ctx, testEvent("second"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full queue")
	}
}
