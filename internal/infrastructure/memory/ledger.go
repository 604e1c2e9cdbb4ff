package memory

import (
	"context"
	"sync"
	"time"

	domain "github.com/mojig27/web-site-sub001/internal/domain/inventory"
)

// Ledger is a mutex-guarded inventory ledger. It holds no state across
// restarts and backs tests and the memory store driver only.
type Ledger struct {
	mu           sync.Mutex
	stock        map[string]*domain.Stock
	reservations map[string]*domain.Reservation
}

func NewLedger() *Ledger {
	return &Ledger{
		stock:        make(map[string]*domain.Stock),
		reservations: make(map[string]*domain.Reservation),
	}
}

func (l *Ledger) Reserve(ctx context.Context, reservationID, orderID string, lines []domain.Line) (*domain.Reservation, error) {
	_ = ctx
	merged, err := domain.MergeLines(lines)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if r, ok := l.reservations[reservationID]; ok {
		return r.Clone(), nil
	}

	var shortages []domain.Shortage
	for _, line := range merged {
		available := 0
		if s, ok := l.stock[line.ProductID]; ok {
			available = s.Available
		}
		if available < line.Quantity {
			shortages = append(shortages, domain.Shortage{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: available,
			})
		}
	}
	if len(shortages) > 0 {
		return nil, &domain.InsufficientStockError{Shortages: shortages}
	}

	now := time.Now().UTC()
	for _, line := range merged {
		s := l.stock[line.ProductID]
		s.Available -= line.Quantity
		s.Reserved += line.Quantity
		s.UpdatedAt = now
	}
	r := &domain.Reservation{
		ID:        reservationID,
		OrderID:   orderID,
		Lines:     merged,
		Status:    domain.ReservationActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	l.reservations[reservationID] = r
	return r.Clone(), nil
}

func (l *Ledger) Commit(ctx context.Context, reservationID string) error {
	return l.settle(ctx, reservationID, domain.ReservationCommitted)
}

func (l *Ledger) Release(ctx context.Context, reservationID string) error {
	return l.settle(ctx, reservationID, domain.ReservationReleased)
}

func (l *Ledger) settle(ctx context.Context, reservationID string, final domain.ReservationStatus) error {
	_ = ctx

	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.reservations[reservationID]
	if !ok {
		return domain.ErrReservationNotFound
	}
	switch r.Status {
	case final:
		return nil
	case domain.ReservationCommitted:
		return domain.ErrReservationCommitted
	case domain.ReservationReleased:
		return domain.ErrReservationReleased
	}

	now := time.Now().UTC()
	for _, line := range r.Lines {
		s := l.stock[line.ProductID]
		s.Reserved -= line.Quantity
		if final == domain.ReservationReleased {
			s.Available += line.Quantity
		}
		s.UpdatedAt = now
	}
	r.Status = final
	r.UpdatedAt = now
	return nil
}

func (l *Ledger) Reservation(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	_ = ctx

	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.reservations[reservationID]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	return r.Clone(), nil
}

func (l *Ledger) Stock(ctx context.Context, productID string) (*domain.Stock, error) {
	_ = ctx

	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.stock[productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *s
	return &clone, nil
}

func (l *Ledger) SetStock(ctx context.Context, productID string, available int) (*domain.Stock, error) {
	_ = ctx
	if productID == "" {
		return nil, domain.ErrNotFound
	}
	if available < 0 {
		return nil, domain.ErrInvalidQuantity
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.stock[productID]
	if !ok {
		s = &domain.Stock{ProductID: productID}
		l.stock[productID] = s
	}
	s.Available = available
	s.UpdatedAt = time.Now().UTC()
	clone := *s
	return &clone, nil
}

func (l *Ledger) Seed(ctx context.Context, productID string, available int) (bool, error) {
	_ = ctx
	if productID == "" {
		return false, domain.ErrNotFound
	}
	if available < 0 {
		return false, domain.ErrInvalidQuantity
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.stock[productID]; ok {
		return false, nil
	}
	l.stock[productID] = &domain.Stock{ProductID: productID, Available: available, UpdatedAt: time.Now().UTC()}
	return true, nil
}
