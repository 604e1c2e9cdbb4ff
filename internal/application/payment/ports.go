package payment

import (
	"time"

	"github.com/mojig27/web-site-sub001/internal/application"
	"github.com/mojig27/web-site-sub001/internal/domain/inventory"
	"github.com/mojig27/web-site-sub001/internal/domain/order"
	domoutbox "github.com/mojig27/web-site-sub001/internal/domain/outbox"
	domain "github.com/mojig27/web-site-sub001/internal/domain/payment"
)

type Deps struct {
	Orders   order.Repository
	Attempts domain.Repository
	Ledger   inventory.Ledger
	Gateway  domain.Gateway
	Events   domoutbox.Publisher
	// Policy schedules re-checks of ambiguous verifications.
	Policy domain.RetryPolicy
	// Lease is how long a claimed verification may run before a re-checker
	// treats the claimer as dead and verifies again.
	Lease time.Duration
	Clock application.Clock
}

func (d Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock().UTC()
	}
	return time.Now().UTC()
}

func (d Deps) lease() time.Duration {
	if d.Lease > 0 {
		return d.Lease
	}
	return time.Minute
}
