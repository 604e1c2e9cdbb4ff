package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "github.com/mojig27/web-site-sub001/internal/domain/payment"
)

type AttemptRepository struct {
	mu       sync.RWMutex
	attempts map[string]*domain.Attempt
	byRef    map[string]string
}

func NewAttemptRepository() *AttemptRepository {
	return &AttemptRepository{
		attempts: make(map[string]*domain.Attempt),
		byRef:    make(map[string]string),
	}
}

func (r *AttemptRepository) Insert(ctx context.Context, a *domain.Attempt) error {
	_ = ctx
	if a == nil || a.ID == "" {
		return fmt.Errorf("attempt repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.attempts[a.ID]; exists {
		return domain.ErrConflict
	}
	if ref := a.GatewayReference; ref != "" {
		if _, taken := r.byRef[ref]; taken {
			return domain.ErrConflict
		}
		r.byRef[ref] = a.ID
	}
	r.attempts[a.ID] = a.Clone()
	return nil
}

func (r *AttemptRepository) Get(ctx context.Context, id string) (*domain.Attempt, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.attempts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return a.Clone(), nil
}

func (r *AttemptRepository) GetByGatewayReference(ctx context.Context, reference string) (*domain.Attempt, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byRef[reference]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.attempts[id].Clone(), nil
}

func (r *AttemptRepository) Save(ctx context.Context, a *domain.Attempt, expectedVersion int64) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.attempts[a.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	if ref := a.GatewayReference; ref != "" && ref != stored.GatewayReference {
		if owner, taken := r.byRef[ref]; taken && owner != a.ID {
			return domain.ErrConflict
		}
		r.byRef[ref] = a.ID
	}

	a.Version = expectedVersion + 1
	r.attempts[a.ID] = a.Clone()
	return nil
}

func (r *AttemptRepository) ListByOrder(ctx context.Context, orderID string) ([]*domain.Attempt, error) {
	return r.filter(ctx, 0, func(a *domain.Attempt) bool { return a.OrderID == orderID },
		func(a, b *domain.Attempt) bool { return a.CreatedAt.Before(b.CreatedAt) })
}

func (r *AttemptRepository) ListDueVerifying(ctx context.Context, now time.Time, limit int) ([]*domain.Attempt, error) {
	return r.filter(ctx, limit, func(a *domain.Attempt) bool {
		return a.Status == domain.StatusVerifying && !a.NeedsReview &&
			!a.NextCheckAt.IsZero() && !a.NextCheckAt.After(now)
	}, func(a, b *domain.Attempt) bool { return a.NextCheckAt.Before(b.NextCheckAt) })
}

func (r *AttemptRepository) ListNeedingReview(ctx context.Context, limit int) ([]*domain.Attempt, error) {
	return r.filter(ctx, limit, func(a *domain.Attempt) bool { return a.NeedsReview },
		func(a, b *domain.Attempt) bool { return a.UpdatedAt.Before(b.UpdatedAt) })
}

func (r *AttemptRepository) filter(ctx context.Context, limit int, keep func(*domain.Attempt) bool, less func(a, b *domain.Attempt) bool) ([]*domain.Attempt, error) {
	_ = ctx

	r.mu.RLock()
	var out []*domain.Attempt
	for _, a := range r.attempts {
		if keep(a) {
			out = append(out, a.Clone())
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if less(out[i], out[j]) {
			return true
		}
		if less(out[j], out[i]) {
			return false
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
