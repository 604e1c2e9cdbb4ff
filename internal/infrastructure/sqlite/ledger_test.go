package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/mojig27/web-site-sub001/internal/domain/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedStock(t *testing.T, l *Ledger, stock map[string]int) {
	t.Helper()
	for id, qty := range stock {
		_, err := l.SetStock(context.Background(), id, qty)
		require.NoError(t, err)
	}
}

func requireStock(t *testing.T, l *Ledger, productID string, available, reserved int) {
	t.Helper()
	st, err := l.Stock(context.Background(), productID)
	require.NoError(t, err)
	assert.Equal(t, available, st.Available, "%s available", productID)
	assert.Equal(t, reserved, st.Reserved, "%s reserved", productID)
}

func TestLedger_ReserveIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	l := openTestStore(t).Ledger()
	seedStock(t, l, map[string]int{"p-1": 5, "p-2": 1})

	_, err := l.Reserve(ctx, "r-1", "o-1", []inventory.Line{
		{ProductID: "p-1", Quantity: 2},
		{ProductID: "p-2", Quantity: 2},
		{ProductID: "p-3", Quantity: 1},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, inventory.ErrInsufficientStock))

	var ise *inventory.InsufficientStockError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, []inventory.Shortage{
		{ProductID: "p-2", Requested: 2, Available: 1},
		{ProductID: "p-3", Requested: 1, Available: 0},
	}, ise.Shortages)

	requireStock(t, l, "p-1", 5, 0)
	requireStock(t, l, "p-2", 1, 0)

	_, err = l.Reservation(ctx, "r-1")
	assert.ErrorIs(t, err, inventory.ErrReservationNotFound)
}

func TestLedger_ReserveMergesDuplicateLines(t *testing.T) {
	ctx := context.Background()
	l := openTestStore(t).Ledger()
	seedStock(t, l, map[string]int{"p-1": 3})

	_, err := l.Reserve(ctx, "r-1", "o-1", []inventory.Line{
		{ProductID: "p-1", Quantity: 2},
		{ProductID: "p-1", Quantity: 2},
	})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	requireStock(t, l, "p-1", 3, 0)

	r, err := l.Reserve(ctx, "r-2", "o-2", []inventory.Line{
		{ProductID: "p-1", Quantity: 1},
		{ProductID: "p-1", Quantity: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, []inventory.Line{{ProductID: "p-1", Quantity: 3}}, r.Lines)
	requireStock(t, l, "p-1", 0, 3)
}

func TestLedger_ReserveReplayReturnsSameReservation(t *testing.T) {
	ctx := context.Background()
	l := openTestStore(t).Ledger()
	seedStock(t, l, map[string]int{"p-1": 3})

	lines := []inventory.Line{{ProductID: "p-1", Quantity: 2}}
	_, err := l.Reserve(ctx, "r-1", "o-1", lines)
	require.NoError(t, err)
	again, err := l.Reserve(ctx, "r-1", "o-1", lines)
	require.NoError(t, err)

	assert.Equal(t, inventory.ReservationActive, again.Status)
	requireStock(t, l, "p-1", 1, 2)
}

func TestLedger_CommitAndRelease(t *testing.T) {
	ctx := context.Background()
	l := openTestStore(t).Ledger()
	seedStock(t, l, map[string]int{"p-1": 10})

	_, err := l.Reserve(ctx, "r-commit", "o-1", []inventory.Line{{ProductID: "p-1", Quantity: 3}})
	require.NoError(t, err)
	_, err = l.Reserve(ctx, "r-release", "o-2", []inventory.Line{{ProductID: "p-1", Quantity: 2}})
	require.NoError(t, err)
	requireStock(t, l, "p-1", 5, 5)

	require.NoError(t, l.Commit(ctx, "r-commit"))
	require.NoError(t, l.Commit(ctx, "r-commit"), "second commit is a no-op")
	requireStock(t, l, "p-1", 5, 2)

	require.NoError(t, l.Release(ctx, "r-release"))
	require.NoError(t, l.Release(ctx, "r-release"), "second release is a no-op")
	requireStock(t, l, "p-1", 7, 0)

	assert.ErrorIs(t, l.Release(ctx, "r-commit"), inventory.ErrReservationCommitted)
	assert.ErrorIs(t, l.Commit(ctx, "r-release"), inventory.ErrReservationReleased)
	assert.ErrorIs(t, l.Commit(ctx, "missing"), inventory.ErrReservationNotFound)
	requireStock(t, l, "p-1", 7, 0)

	r, err := l.Reservation(ctx, "r-commit")
	require.NoError(t, err)
	assert.Equal(t, inventory.ReservationCommitted, r.Status)
}

func TestLedger_NoOversellUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	l := openTestStore(t).Ledger()
	const stock = 5
	seedStock(t, l, map[string]int{"p-1": stock})

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failures  []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.Reserve(ctx, fmt.Sprintf("r-%d", i), fmt.Sprintf("o-%d", i),
				[]inventory.Line{{ProductID: "p-1", Quantity: 1}})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			failures = append(failures, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, stock, succeeded)
	for _, err := range failures {
		assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	}
	requireStock(t, l, "p-1", 0, stock)
}

func TestLedger_SetStockKeepsReservations(t *testing.T) {
	ctx := context.Background()
	l := openTestStore(t).Ledger()
	seedStock(t, l, map[string]int{"p-1": 4})
	_, err := l.Reserve(ctx, "r-1", "o-1", []inventory.Line{{ProductID: "p-1", Quantity: 3}})
	require.NoError(t, err)

	st, err := l.SetStock(ctx, "p-1", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, st.Available)
	assert.Equal(t, 3, st.Reserved)

	_, err = l.SetStock(ctx, "p-1", -1)
	assert.ErrorIs(t, err, inventory.ErrInvalidQuantity)
}

func TestLedger_SeedOnlyCreates(t *testing.T) {
	ctx := context.Background()
	l := openTestStore(t).Ledger()

	created, err := l.Seed(ctx, "p-1", 7)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = l.Seed(ctx, "p-1", 100)
	require.NoError(t, err)
	assert.False(t, created)
	requireStock(t, l, "p-1", 7, 0)

	_, err = l.Stock(ctx, "unknown")
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}
