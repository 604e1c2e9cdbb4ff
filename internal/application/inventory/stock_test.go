package inventory

import (
	"context"
	"testing"

	domain "github.com/mojig27/web-site-sub001/internal/domain/inventory"
	"github.com/mojig27/web-site-sub001/internal/infrastructure/memory"
	"github.com/mojig27/web-site-sub001/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStock_SetKeepsReservations(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	s := NewStock(ledger, observability.Nop())

	_, err := s.Set(ctx, "sku-1", 5)
	require.NoError(t, err)
	_, err = ledger.Reserve(ctx, "r-1", "o-1", []domain.Line{{ProductID: "sku-1", Quantity: 2}})
	require.NoError(t, err)

	st, err := s.Set(ctx, "sku-1", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, st.Available)
	assert.Equal(t, 2, st.Reserved)

	got, err := s.Get(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, st.Available, got.Available)

	_, err = s.Set(ctx, "sku-1", -1)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	_, err = s.Set(ctx, " ", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStock_SeedOnlyCreatesUnknownProducts(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	s := NewStock(ledger, observability.Nop())
	_, err := s.Set(ctx, "sku-1", 1)
	require.NoError(t, err)

	report, err := s.Seed(ctx, []SeedItem{{ProductID: "sku-1", Available: 50}, {ProductID: "sku-2", Available: 7}})
	require.NoError(t, err)
	assert.Equal(t, SeedReport{Created: 1, Kept: 1}, report)

	one, err := s.Get(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 1, one.Available)
	two, err := s.Get(ctx, "sku-2")
	require.NoError(t, err)
	assert.Equal(t, 7, two.Available)
}

func TestReleaseReservation(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	_, err := ledger.SetStock(ctx, "sku-1", 3)
	require.NoError(t, err)
	_, err = ledger.Reserve(ctx, "r-1", "o-1", []domain.Line{{ProductID: "sku-1", Quantity: 3}})
	require.NoError(t, err)

	require.NoError(t, ReleaseReservation(ctx, ledger, "r-1"))
	require.NoError(t, ReleaseReservation(ctx, ledger, "r-1"))
	require.NoError(t, ReleaseReservation(ctx, ledger, "missing"))
	require.NoError(t, ReleaseReservation(ctx, ledger, ""))

	_, err = ledger.Reserve(ctx, "r-2", "o-2", []domain.Line{{ProductID: "sku-1", Quantity: 1}})
	require.NoError(t, err)
	require.NoError(t, ledger.Commit(ctx, "r-2"))
	assert.ErrorIs(t, ReleaseReservation(ctx, ledger, "r-2"), domain.ErrReservationCommitted)
}
