package inventory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeLines(t *testing.T) {
	merged, err := MergeLines([]Line{
		{ProductID: "b", Quantity: 1},
		{ProductID: "a", Quantity: 2},
		{ProductID: "b", Quantity: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, []Line{{ProductID: "a", Quantity: 2}, {ProductID: "b", Quantity: 4}}, merged)

	_, err = MergeLines([]Line{{ProductID: "a", Quantity: 0}})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = MergeLines(nil)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestInsufficientStockError(t *testing.T) {
	var err error = &InsufficientStockError{Shortages: []Shortage{
		{ProductID: "p-1", Requested: 3, Available: 1},
		{ProductID: "p-2", Requested: 1, Available: 0},
	}}
	assert.True(t, errors.Is(err, ErrInsufficientStock))
	assert.Contains(t, err.Error(), "p-1 (requested 3, available 1)")
	assert.Contains(t, err.Error(), "p-2")

	var ise *InsufficientStockError
	require.True(t, errors.As(err, &ise))
	assert.Len(t, ise.Shortages, 2)
}
