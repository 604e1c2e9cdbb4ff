package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "github.com/mojig27/web-site-sub001/internal/domain/order"
)

// OrderRepository is a process-local order store used by tests and the
// in-memory dev profile. It enforces the same compare-and-set rules as the
// durable store.
type OrderRepository struct {
	mu          sync.RWMutex
	orders      map[string]*domain.Order
	idempotency map[string]string
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders:      make(map[string]*domain.Order),
		idempotency: make(map[string]string),
	}
}

func idempotencyIndex(userID, key string) string {
	return userID + "\x00" + key
}

func (r *OrderRepository) Insert(ctx context.Context, order *domain.Order) error {
	_ = ctx
	if order == nil || order.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return domain.ErrConflict
	}

	if key := order.IdempotencyKey; key != "" {
		if _, exists := r.idempotency[idempotencyIndex(order.UserID, key)]; exists {
			return domain.ErrConflict
		}
		r.idempotency[idempotencyIndex(order.UserID, key)] = order.ID
	}

	r.orders[order.ID] = order.Clone()
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return order.Clone(), nil
}

func (r *OrderRepository) FindByIdempotency(ctx context.Context, userID, key string) (*domain.Order, error) {
	_ = ctx
	if key == "" {
		return nil, domain.ErrNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	orderID, ok := r.idempotency[idempotencyIndex(userID, key)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	order, found := r.orders[orderID]
	if !found {
		return nil, domain.ErrNotFound
	}
	return order.Clone(), nil
}

func (r *OrderRepository) Transition(ctx context.Context, t domain.Transition) (*domain.Order, error) {
	_ = ctx
	if err := t.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[t.OrderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	next := stored.Clone()
	if err := next.Apply(t); err != nil {
		return nil, err
	}
	r.orders[t.OrderID] = next
	return next.Clone(), nil
}

func (r *OrderRepository) ListByStatusBefore(ctx context.Context, status domain.Status, before time.Time, after domain.Cursor, limit int) ([]*domain.Order, error) {
	_ = ctx

	r.mu.RLock()
	var out []*domain.Order
	for _, o := range r.orders {
		if o.Status == status && o.UpdatedAt.Before(before) && after.Precedes(o) {
			out = append(out, o.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return truncate(out, limit, 100), nil
}

func (r *OrderRepository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Order, error) {
	_ = ctx

	r.mu.RLock()
	var out []*domain.Order
	for _, o := range r.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, o.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return truncate(out, filter.Limit, 50), nil
}

func truncate[T any](items []T, limit, fallback int) []T {
	if limit <= 0 {
		limit = fallback
	}
	if len(items) > limit {
		return items[:limit]
	}
	return items
}
