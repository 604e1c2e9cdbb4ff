package order

import (
	"time"

	"github.com/mojig27/web-site-sub001/internal/application"
	"github.com/mojig27/web-site-sub001/internal/domain/inventory"
	domain "github.com/mojig27/web-site-sub001/internal/domain/order"
	domoutbox "github.com/mojig27/web-site-sub001/internal/domain/outbox"
	"github.com/mojig27/web-site-sub001/internal/domain/payment"
)

const orderService = "order-service"

type Deps struct {
	Orders   domain.Repository
	Attempts payment.Repository
	Ledger   inventory.Ledger
	Events   domoutbox.Publisher
	Clock    application.Clock
}

func (d Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock().UTC()
	}
	return time.Now().UTC()
}
