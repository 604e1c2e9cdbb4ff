package order

import "fmt"

type Status string

const (
	StatusCreated         Status = "created"
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusPaid            Status = "paid"
	StatusPaymentFailed   Status = "payment_failed"
	StatusProcessing      Status = "processing"
	StatusShipped         Status = "shipped"
	StatusDelivered       Status = "delivered"
	StatusCanceled        Status = "canceled"
	StatusExpired         Status = "expired"
)

// transitions is the order state machine. Nothing ever re-enters Created.
var transitions = map[Status][]Status{
	StatusCreated:         {StatusAwaitingPayment, StatusPaymentFailed, StatusCanceled, StatusExpired},
	StatusAwaitingPayment: {StatusPaid, StatusPaymentFailed, StatusExpired, StatusCanceled},
	StatusPaid:            {StatusProcessing},
	StatusProcessing:      {StatusShipped},
	StatusShipped:         {StatusDelivered},
	StatusPaymentFailed:   {StatusAwaitingPayment, StatusCanceled},
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusCreated, StatusAwaitingPayment, StatusPaid, StatusPaymentFailed,
		StatusProcessing, StatusShipped, StatusDelivered, StatusCanceled, StatusExpired:
		return st, nil
	}
	return "", fmt.Errorf("order: unknown status %q", s)
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// Cancelable reports whether a user-initiated cancel may be accepted in s.
func (s Status) Cancelable() bool {
	return CanTransition(s, StatusCanceled)
}
