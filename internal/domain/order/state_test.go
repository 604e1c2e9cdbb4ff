package order

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusCreated, StatusAwaitingPayment, true},
		{StatusCreated, StatusPaymentFailed, true},
		{StatusAwaitingPayment, StatusPaid, true},
		{StatusAwaitingPayment, StatusPaymentFailed, true},
		{StatusAwaitingPayment, StatusExpired, true},
		{StatusAwaitingPayment, StatusCanceled, true},
		{StatusPaid, StatusProcessing, true},
		{StatusProcessing, StatusShipped, true},
		{StatusShipped, StatusDelivered, true},
		{StatusPaymentFailed, StatusAwaitingPayment, true},
		{StatusPaymentFailed, StatusCanceled, true},

		{StatusPaid, StatusPaymentFailed, false},
		{StatusPaid, StatusExpired, false},
		{StatusPaid, StatusCanceled, false},
		{StatusPaymentFailed, StatusPaid, false},
		{StatusExpired, StatusPaid, false},
		{StatusExpired, StatusAwaitingPayment, false},
		{StatusAwaitingPayment, StatusCreated, false},
		{StatusPaymentFailed, StatusCreated, false},
		{StatusAwaitingPayment, StatusShipped, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestNothingReentersCreated(t *testing.T) {
	for from := range transitions {
		assert.False(t, CanTransition(from, StatusCreated), "from %s", from)
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []Status{StatusDelivered, StatusCanceled, StatusExpired} {
		assert.True(t, s.IsTerminal(), s)
	}
	for _, s := range []Status{StatusCreated, StatusAwaitingPayment, StatusPaid, StatusPaymentFailed} {
		assert.False(t, s.IsTerminal(), s)
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("awaiting_payment")
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingPayment, s)

	_, err = ParseStatus("refunded")
	assert.Error(t, err)
}

func TestTransitionValidate(t *testing.T) {
	err := Transition{From: StatusPaid, To: StatusExpired}.Validate()
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.NoError(t, Transition{From: StatusAwaitingPayment, To: StatusExpired}.Validate())
}
