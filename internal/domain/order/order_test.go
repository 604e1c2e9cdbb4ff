package order

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAddress() ShippingAddress {
	return ShippingAddress{
		Province:   " Tehran ",
		City:       "Tehran",
		Address:    "Valiasr St. 12",
		PostalCode: "1234567890",
		Receiver:   Receiver{Name: "Sara", Phone: "09121234567"},
	}
}

func TestNewComputesTotal(t *testing.T) {
	o, err := New("o-1", "u-1", "", []LineItem{
		{ProductID: "p-1", Quantity: 2, UnitPrice: 1500},
		{ProductID: "p-2", Quantity: 1, UnitPrice: 700},
	}, testAddress(), "r-1")
	require.NoError(t, err)

	assert.Equal(t, int64(3700), o.TotalAmount)
	assert.Equal(t, StatusCreated, o.Status)
	assert.Equal(t, int64(1), o.Version)
	assert.Equal(t, "Tehran", o.ShippingAddress.Province)
	assert.Equal(t, "r-1", o.ReservationID)
}

func TestNewRejectsBadCarts(t *testing.T) {
	_, err := New("o-1", "u-1", "", nil, testAddress(), "r")
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = New("o-1", "u-1", "", []LineItem{{ProductID: "p", Quantity: 0, UnitPrice: 10}}, testAddress(), "r")
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = New("o-1", "u-1", "", []LineItem{{ProductID: "p", Quantity: 1, UnitPrice: 0}}, testAddress(), "r")
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestNewRejectsOverflowingAmounts(t *testing.T) {
	_, err := New("o-1", "u-1", "", []LineItem{
		{ProductID: "p", Quantity: 3, UnitPrice: math.MaxInt64 / 2},
	}, testAddress(), "r")
	assert.ErrorIs(t, err, ErrAmountOverflow)

	_, err = New("o-1", "u-1", "", []LineItem{
		{ProductID: "p-1", Quantity: 1, UnitPrice: math.MaxInt64 - 10},
		{ProductID: "p-2", Quantity: 1, UnitPrice: 11},
	}, testAddress(), "r")
	assert.ErrorIs(t, err, ErrAmountOverflow)

	o, err := New("o-1", "u-1", "", []LineItem{
		{ProductID: "p-1", Quantity: 1, UnitPrice: math.MaxInt64 - 10},
		{ProductID: "p-2", Quantity: 1, UnitPrice: 10},
	}, testAddress(), "r")
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), o.TotalAmount)
}

func TestApplyGuardsVersionAndStatus(t *testing.T) {
	o, err := New("o-1", "u-1", "", []LineItem{{ProductID: "p", Quantity: 1, UnitPrice: 10}}, testAddress(), "r")
	require.NoError(t, err)

	tr := Next(o, StatusAwaitingPayment)
	tr.PaymentAttemptID = "a-1"
	require.NoError(t, o.Apply(tr))
	assert.Equal(t, StatusAwaitingPayment, o.Status)
	assert.Equal(t, int64(2), o.Version)
	assert.Equal(t, "a-1", o.PaymentAttemptID)
	assert.Equal(t, int64(10), o.TotalAmount)

	// Replaying the same stale transition must not apply twice.
	err = o.Apply(tr)
	assert.ErrorIs(t, err, ErrVersionConflict)

	err = o.Apply(Transition{ExpectedVersion: o.Version, From: StatusAwaitingPayment, To: StatusShipped})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCloneDoesNotShareItems(t *testing.T) {
	o, err := New("o-1", "u-1", "", []LineItem{{ProductID: "p", Quantity: 1, UnitPrice: 10}}, testAddress(), "r")
	require.NoError(t, err)
	c := o.Clone()
	c.Items[0].Quantity = 99
	assert.Equal(t, 1, o.Items[0].Quantity)
}
