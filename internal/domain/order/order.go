package order

import (
	"errors"
	"math"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

var (
	ErrNotFound          = errors.New("order: not found")
	ErrConflict          = errors.New("order: already exists")
	ErrVersionConflict   = errors.New("order: version conflict")
	ErrInvalidTransition = errors.New("order: invalid status transition")
	ErrEmptyCart         = errors.New("order: cart is empty")
	ErrInvalidQuantity   = errors.New("order: quantity must be greater than zero")
	ErrInvalidPrice      = errors.New("order: unit price must be greater than zero")
	ErrAmountOverflow    = errors.New("order: amount out of range")
)

// LineItem is one cart line with the unit price captured when the order was
// created. Prices are never recomputed from the live catalog afterwards.
type LineItem struct {
	ProductID string
	Quantity  int
	UnitPrice int64
}

func (l LineItem) Subtotal() int64 {
	return int64(l.Quantity) * l.UnitPrice
}

type Receiver struct {
	Name  string
	Phone string
}

type ShippingAddress struct {
	Province   string
	City       string
	Address    string
	PostalCode string
	Receiver   Receiver
}

// Normalized returns the address with surrounding whitespace trimmed and text
// in NFC form, so the same address typed on different keyboards compares equal.
func (a ShippingAddress) Normalized() ShippingAddress {
	clean := func(s string) string { return norm.NFC.String(strings.TrimSpace(s)) }
	return ShippingAddress{
		Province:   clean(a.Province),
		City:       clean(a.City),
		Address:    clean(a.Address),
		PostalCode: clean(a.PostalCode),
		Receiver: Receiver{
			Name:  clean(a.Receiver.Name),
			Phone: clean(a.Receiver.Phone),
		},
	}
}

type Order struct {
	ID              string
	UserID          string
	IdempotencyKey  string
	Items           []LineItem
	TotalAmount     int64
	ShippingAddress ShippingAddress
	Status          Status
	// PaymentAttemptID references the active payment attempt, empty until one is attached.
	PaymentAttemptID string
	ReservationID    string
	TrackingCode     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Version          int64
}

// New builds an order in StatusCreated. TotalAmount is derived from the items
// here and is immutable afterwards.
func New(id, userID, idempotencyKey string, items []LineItem, addr ShippingAddress, reservationID string) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	lines := make([]LineItem, len(items))
	var total int64
	for i, it := range items {
		if it.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if it.UnitPrice <= 0 {
			return nil, ErrInvalidPrice
		}
		if int64(it.Quantity) > math.MaxInt64/it.UnitPrice {
			return nil, ErrAmountOverflow
		}
		sub := it.Subtotal()
		if total > math.MaxInt64-sub {
			return nil, ErrAmountOverflow
		}
		lines[i] = it
		total += sub
	}

	now := time.Now().UTC()
	return &Order{
		ID:              id,
		UserID:          userID,
		IdempotencyKey:  idempotencyKey,
		Items:           lines,
		TotalAmount:     total,
		ShippingAddress: addr.Normalized(),
		Status:          StatusCreated,
		ReservationID:   reservationID,
		CreatedAt:       now,
		UpdatedAt:       now,
		Version:         1,
	}, nil
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Items = append([]LineItem(nil), o.Items...)
	return &clone
}

// Apply performs t against o in memory, enforcing the same guards as the
// durable stores: matching version and status, and a legal edge.
func (o *Order) Apply(t Transition) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if o.Version != t.ExpectedVersion || o.Status != t.From {
		return ErrVersionConflict
	}
	o.Status = t.To
	if t.PaymentAttemptID != "" {
		o.PaymentAttemptID = t.PaymentAttemptID
	}
	if t.ReservationID != "" {
		o.ReservationID = t.ReservationID
	}
	if t.TrackingCode != "" {
		o.TrackingCode = t.TrackingCode
	}
	o.UpdatedAt = t.at()
	o.Version++
	return nil
}
