package payment

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("payment: attempt not found")
	ErrConflict          = errors.New("payment: attempt already exists")
	ErrVersionConflict   = errors.New("payment: attempt version conflict")
	ErrInvalidTransition = errors.New("payment: invalid attempt transition")
	ErrInvalidAmount     = errors.New("payment: amount must be greater than zero")
)

type Status string

const (
	StatusInitiated Status = "initiated"
	StatusVerifying Status = "verifying"
	StatusVerified  Status = "verified"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

// IsTerminal reports whether the attempt outcome is settled. A callback for a
// terminal attempt is answered from stored state without calling the gateway.
func (s Status) IsTerminal() bool {
	return s == StatusVerified || s == StatusFailed || s == StatusExpired
}

// Attempt is one round-trip to the payment gateway for an order. Attempts are
// never deleted; a retry creates a new attempt.
type Attempt struct {
	ID               string
	OrderID          string
	GatewayReference string
	RedirectURL      string
	Amount           int64
	Status           Status
	// VerifyAttempts counts remote verifications that came back ambiguous.
	VerifyAttempts int
	// NextCheckAt is when a verifying attempt is due for a re-check. Zero
	// means no re-check is scheduled.
	NextCheckAt   time.Time
	NeedsReview   bool
	FailureReason string
	ProviderRef   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	VerifiedAt    time.Time
	Version       int64
}

func NewAttempt(id, orderID string, amount int64) (*Attempt, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	now := time.Now().UTC()
	return &Attempt{
		ID:        id,
		OrderID:   orderID,
		Amount:    amount,
		Status:    StatusInitiated,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}, nil
}

func (a *Attempt) Clone() *Attempt {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

// AttachGateway records the gateway's reference for an initiated attempt.
func (a *Attempt) AttachGateway(reference, redirectURL string, now time.Time) error {
	if a.Status != StatusInitiated || a.GatewayReference != "" {
		return a.invalid(StatusInitiated)
	}
	a.GatewayReference = reference
	a.RedirectURL = redirectURL
	a.touch(now)
	return nil
}

// StartVerifying claims the attempt for a remote verification. recheckAt is
// when a re-checker should pick the attempt up if this process never
// records an outcome.
func (a *Attempt) StartVerifying(now, recheckAt time.Time) error {
	if a.Status != StatusInitiated {
		return a.invalid(StatusVerifying)
	}
	a.Status = StatusVerifying
	a.NextCheckAt = recheckAt.UTC()
	a.touch(now)
	return nil
}

// Renew extends the re-check lease of a verifying attempt. A re-checker
// saves the renewal before calling the gateway, so two re-checkers cannot
// both verify the same attempt.
func (a *Attempt) Renew(now, recheckAt time.Time) error {
	if a.Status != StatusVerifying || a.NeedsReview {
		return a.invalid(StatusVerifying)
	}
	a.NextCheckAt = recheckAt.UTC()
	a.touch(now)
	return nil
}

// RecordAmbiguous books an ambiguous verification. The attempt stays
// verifying; once policy's attempt cap is reached it is flagged for manual
// reconciliation instead of being scheduled again.
func (a *Attempt) RecordAmbiguous(reason string, now time.Time, policy RetryPolicy) error {
	if a.Status != StatusVerifying {
		return a.invalid(StatusVerifying)
	}
	a.VerifyAttempts++
	a.FailureReason = reason
	if a.VerifyAttempts >= policy.MaxAttempts {
		a.NeedsReview = true
		a.NextCheckAt = time.Time{}
	} else {
		a.NextCheckAt = now.Add(policy.Delay(a.VerifyAttempts)).UTC()
	}
	a.touch(now)
	return nil
}

func (a *Attempt) MarkVerified(providerRef string, now time.Time) error {
	if a.Status != StatusVerifying {
		return a.invalid(StatusVerified)
	}
	a.Status = StatusVerified
	a.ProviderRef = providerRef
	a.FailureReason = ""
	a.NextCheckAt = time.Time{}
	a.VerifiedAt = now.UTC()
	a.touch(now)
	return nil
}

func (a *Attempt) MarkFailed(reason string, now time.Time) error {
	if a.Status != StatusInitiated && a.Status != StatusVerifying {
		return a.invalid(StatusFailed)
	}
	a.Status = StatusFailed
	a.FailureReason = reason
	a.NextCheckAt = time.Time{}
	a.touch(now)
	return nil
}

// MarkExpired fences an attempt that was never called back. Only initiated
// attempts expire; a verifying attempt has a verification in flight.
func (a *Attempt) MarkExpired(now time.Time) error {
	if a.Status != StatusInitiated {
		return a.invalid(StatusExpired)
	}
	a.Status = StatusExpired
	a.touch(now)
	return nil
}

// FlagForReview marks the attempt for an operator, e.g. money captured for
// an order that had already expired.
func (a *Attempt) FlagForReview(reason string, now time.Time) {
	a.NeedsReview = true
	a.FailureReason = reason
	a.NextCheckAt = time.Time{}
	a.touch(now)
}

func (a *Attempt) touch(now time.Time) {
	if now.IsZero() {
		now = time.Now()
	}
	a.UpdatedAt = now.UTC()
}

func (a *Attempt) invalid(to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, to)
}
