package payment

import (
	"context"
	"errors"
	"time"

	domain "github.com/mojig27/web-site-sub001/internal/domain/payment"
)

// FenceAttempt expires attemptID if it is still initiated, so a callback that
// arrives later finds a terminal attempt and never reaches the gateway. It
// returns the attempt as stored afterwards; callers decide from its status
// whether the order may still be moved.
func FenceAttempt(ctx context.Context, repo domain.Repository, attemptID string, now time.Time) (*domain.Attempt, error) {
	for i := 0; i < 3; i++ {
		a, err := repo.Get(ctx, attemptID)
		if err != nil {
			return nil, err
		}
		if a.Status != domain.StatusInitiated {
			return a, nil
		}
		expected := a.Version
		if err := a.MarkExpired(now); err != nil {
			return nil, err
		}
		err = repo.Save(ctx, a, expected)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, err
		}
		// Someone else moved the attempt; look again.
	}
	return nil, domain.ErrVersionConflict
}
