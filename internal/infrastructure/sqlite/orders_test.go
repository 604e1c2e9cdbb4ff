package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/mojig27/web-site-sub001/internal/domain/order"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder(t *testing.T, id, userID, key string) *order.Order {
	t.Helper()
	o, err := order.New(id, userID, key, []order.LineItem{
		{ProductID: "p-1", Quantity: 2, UnitPrice: 1500},
		{ProductID: "p-2", Quantity: 1, UnitPrice: 990},
	}, order.ShippingAddress{
		Province:   "Tehran",
		City:       "Tehran",
		Address:    "Valiasr 1",
		PostalCode: "1234567890",
		Receiver:   order.Receiver{Name: "Ali", Phone: "09121234567"},
	}, "r-"+id)
	require.NoError(t, err)
	return o
}

func TestOrders_InsertAndGet(t *testing.T) {
	ctx := context.Background()
	repo := openTestStore(t).Orders()
	o := newTestOrder(t, "o-1", "u-1", "k-1")

	require.NoError(t, repo.Insert(ctx, o))
	assert.ErrorIs(t, repo.Insert(ctx, o), order.ErrConflict)

	got, err := repo.Get(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, o.Items, got.Items)
	assert.Equal(t, int64(3990), got.TotalAmount)
	assert.Equal(t, o.ShippingAddress, got.ShippingAddress)
	assert.Equal(t, order.StatusCreated, got.Status)
	assert.Equal(t, "r-o-1", got.ReservationID)
	assert.Equal(t, int64(1), got.Version)
	assert.True(t, o.CreatedAt.Equal(got.CreatedAt))

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrders_IdempotencyKeyIsPerUser(t *testing.T) {
	ctx := context.Background()
	repo := openTestStore(t).Orders()

	require.NoError(t, repo.Insert(ctx, newTestOrder(t, "o-1", "u-1", "k")))
	require.NoError(t, repo.Insert(ctx, newTestOrder(t, "o-2", "u-2", "k")))
	assert.ErrorIs(t, repo.Insert(ctx, newTestOrder(t, "o-3", "u-1", "k")), order.ErrConflict)

	// Orders without a key never collide.
	require.NoError(t, repo.Insert(ctx, newTestOrder(t, "o-4", "u-1", "")))
	require.NoError(t, repo.Insert(ctx, newTestOrder(t, "o-5", "u-1", "")))

	got, err := repo.FindByIdempotency(ctx, "u-2", "k")
	require.NoError(t, err)
	assert.Equal(t, "o-2", got.ID)

	_, err = repo.FindByIdempotency(ctx, "u-3", "k")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrders_TransitionIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	repo := openTestStore(t).Orders()
	o := newTestOrder(t, "o-1", "u-1", "")
	require.NoError(t, repo.Insert(ctx, o))

	tr := order.Next(o, order.StatusAwaitingPayment)
	tr.PaymentAttemptID = "a-1"
	got, err := repo.Transition(ctx, tr)
	require.NoError(t, err)
	assert.Equal(t, order.StatusAwaitingPayment, got.Status)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, "a-1", got.PaymentAttemptID)
	assert.Equal(t, "r-o-1", got.ReservationID, "unset optional fields are kept")

	_, err = repo.Transition(ctx, tr)
	assert.ErrorIs(t, err, order.ErrVersionConflict)

	paid, err := repo.Transition(ctx, order.Next(got, order.StatusPaid))
	require.NoError(t, err)

	// A sweeper holding the pre-payment version loses.
	_, err = repo.Transition(ctx, order.Next(got, order.StatusExpired))
	assert.ErrorIs(t, err, order.ErrVersionConflict)

	_, err = repo.Transition(ctx, order.Next(paid, order.StatusPaymentFailed))
	assert.ErrorIs(t, err, order.ErrInvalidTransition)

	_, err = repo.Transition(ctx, order.Transition{OrderID: "missing", ExpectedVersion: 1,
		From: order.StatusCreated, To: order.StatusAwaitingPayment})
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrders_ListByStatusBefore(t *testing.T) {
	ctx := context.Background()
	repo := openTestStore(t).Orders()

	old := time.Now().Add(-time.Hour)
	for _, id := range []string{"o-old", "o-new"} {
		o := newTestOrder(t, id, "u-1", "")
		require.NoError(t, repo.Insert(ctx, o))
		tr := order.Next(o, order.StatusAwaitingPayment)
		if id == "o-old" {
			tr.At = old
		}
		_, err := repo.Transition(ctx, tr)
		require.NoError(t, err)
	}

	stale, err := repo.ListByStatusBefore(ctx, order.StatusAwaitingPayment, time.Now().Add(-15*time.Minute), order.Cursor{}, 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "o-old", stale[0].ID)
	assert.Len(t, stale[0].Items, 2)
}

func TestOrders_ListByStatusBeforeCursor(t *testing.T) {
	ctx := context.Background()
	repo := openTestStore(t).Orders()

	at := time.Now().Add(-time.Hour)
	for _, id := range []string{"o-b", "o-a", "o-c"} {
		o := newTestOrder(t, id, "u-1", "")
		require.NoError(t, repo.Insert(ctx, o))
		tr := order.Next(o, order.StatusAwaitingPayment)
		tr.At = at
		if id == "o-c" {
			tr.At = at.Add(time.Second)
		}
		_, err := repo.Transition(ctx, tr)
		require.NoError(t, err)
	}

	cutoff := time.Now().Add(-15 * time.Minute)
	var cursor order.Cursor
	var seen []string
	for {
		page, err := repo.ListByStatusBefore(ctx, order.StatusAwaitingPayment, cutoff, cursor, 1)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		require.Len(t, page, 1)
		seen = append(seen, page[0].ID)
		cursor = order.CursorAt(page[0])
	}
	assert.Equal(t, []string{"o-a", "o-b", "o-c"}, seen)
}

func TestOrders_ListFilters(t *testing.T) {
	ctx := context.Background()
	repo := openTestStore(t).Orders()

	require.NoError(t, repo.Insert(ctx, newTestOrder(t, "o-1", "u-1", "")))
	require.NoError(t, repo.Insert(ctx, newTestOrder(t, "o-2", "u-2", "")))
	o3 := newTestOrder(t, "o-3", "u-1", "")
	require.NoError(t, repo.Insert(ctx, o3))
	_, err := repo.Transition(ctx, order.Next(o3, order.StatusCanceled))
	require.NoError(t, err)

	all, err := repo.List(ctx, order.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := repo.List(ctx, order.ListFilter{UserID: "u-1"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	canceled, err := repo.List(ctx, order.ListFilter{Status: order.StatusCanceled})
	require.NoError(t, err)
	require.Len(t, canceled, 1)
	assert.Equal(t, "o-3", canceled[0].ID)
}
