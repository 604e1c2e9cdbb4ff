package checkout

import (
	"context"
	"time"

	"github.com/mojig27/web-site-sub001/internal/application"
	"github.com/mojig27/web-site-sub001/internal/domain/inventory"
	"github.com/mojig27/web-site-sub001/internal/domain/order"
	domoutbox "github.com/mojig27/web-site-sub001/internal/domain/outbox"
	"github.com/mojig27/web-site-sub001/internal/domain/payment"
)

// PriceLookup resolves the current unit price of a product.
type PriceLookup interface {
	Price(ctx context.Context, productID string) (int64, error)
}

// Deps are the collaborators shared by the checkout use cases.
type Deps struct {
	Orders   order.Repository
	Attempts payment.Repository
	Ledger   inventory.Ledger
	Gateway  payment.Gateway
	Prices   PriceLookup
	IDs      application.IDGenerator
	Events   domoutbox.Publisher
	// CallbackURL is where the gateway sends the payer back.
	CallbackURL string
	Clock       application.Clock
}

func (d Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock().UTC()
	}
	return time.Now().UTC()
}
