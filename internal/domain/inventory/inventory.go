package inventory

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrNotFound             = errors.New("inventory: product not found")
	ErrInvalidQuantity      = errors.New("inventory: quantity must be greater than zero")
	ErrInsufficientStock    = errors.New("inventory: insufficient stock")
	ErrReservationNotFound  = errors.New("inventory: reservation not found")
	ErrReservationCommitted = errors.New("inventory: reservation already committed")
	ErrReservationReleased  = errors.New("inventory: reservation already released")
)

// Stock holds the two counters of a product. Available+Reserved is the
// physical stock still on hand.
type Stock struct {
	ProductID string
	Available int
	Reserved  int
	UpdatedAt time.Time
}

func (s Stock) Total() int { return s.Available + s.Reserved }

type Line struct {
	ProductID string
	Quantity  int
}

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationCommitted ReservationStatus = "committed"
	ReservationReleased  ReservationStatus = "released"
)

// Reservation is stock held for one order. Only active reservations count
// toward a product's Reserved counter; settled ones are kept for audit.
type Reservation struct {
	ID        string
	OrderID   string
	Lines     []Line
	Status    ReservationStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r *Reservation) Clone() *Reservation {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Lines = append([]Line(nil), r.Lines...)
	return &clone
}

type Shortage struct {
	ProductID string
	Requested int
	Available int
}

// InsufficientStockError lists every product of a reserve request that could
// not be covered. It matches ErrInsufficientStock with errors.Is.
type InsufficientStockError struct {
	Shortages []Shortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("%s (requested %d, available %d)", s.ProductID, s.Requested, s.Available))
	}
	return ErrInsufficientStock.Error() + ": " + strings.Join(parts, ", ")
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// MergeLines folds duplicate products together and orders the result by
// product id, which is also the order in which stores touch product rows.
func MergeLines(lines []Line) ([]Line, error) {
	if len(lines) == 0 {
		return nil, ErrInvalidQuantity
	}
	totals := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.ProductID == "" {
			return nil, ErrNotFound
		}
		if l.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		totals[l.ProductID] += l.Quantity
	}
	merged := make([]Line, 0, len(totals))
	for id, q := range totals {
		merged = append(merged, Line{ProductID: id, Quantity: q})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged, nil
}
