package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/mojig27/web-site-sub001/internal/application"
	domain "github.com/mojig27/web-site-sub001/internal/domain/inventory"
	"github.com/mojig27/web-site-sub001/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	inventoryService = "inventory-service"
	useCaseStockSet  = "inventory.set_stock"
	useCaseStockSeed = "inventory.seed"
)

// SeedItem is the opening availability of one product.
type SeedItem struct {
	ProductID string
	Available int
}

type SeedReport struct {
	Created int
	Kept    int
}

// Stock administers the ledger's counters. Reservations are never touched
// here: setting stock changes Available only.
type Stock struct {
	ledger domain.Ledger
	tel    application.Telemetry
}

func NewStock(ledger domain.Ledger, tel observability.Observability) *Stock {
	return &Stock{ledger: ledger, tel: application.NewTelemetry(tel, inventoryService)}
}

func (s *Stock) Set(ctx context.Context, productID string, available int) (_ *domain.Stock, err error) {
	ctx, run := s.tel.Begin(ctx, useCaseStockSet, "SetStock",
		[]attribute.KeyValue{
			attribute.String("product.id", productID),
			attribute.Int("stock.available", available),
		},
		observability.F("product_id", productID),
		observability.F("available", available),
	)
	defer func() { run.End(err) }()

	if strings.TrimSpace(productID) == "" {
		run.Fail("rejected", "PRODUCT_REQUIRED")
		return nil, fmt.Errorf("%w: product id is required", domain.ErrNotFound)
	}
	if available < 0 {
		run.Fail("rejected", "NEGATIVE_STOCK")
		return nil, fmt.Errorf("%w: available must not be negative", domain.ErrInvalidQuantity)
	}
	st, err := s.ledger.SetStock(ctx, productID, available)
	if err != nil {
		run.Fail("error", "SET_STOCK_FAILED")
		return nil, err
	}
	run.With(observability.F("reserved", st.Reserved))
	return st, nil
}

func (s *Stock) Get(ctx context.Context, productID string) (*domain.Stock, error) {
	return s.ledger.Stock(ctx, productID)
}

// Seed creates the products the ledger does not know yet. Existing counters
// are left alone, so seeding on every start is safe.
func (s *Stock) Seed(ctx context.Context, items []SeedItem) (report SeedReport, err error) {
	ctx, run := s.tel.Begin(ctx, useCaseStockSeed, "SeedStock",
		[]attribute.KeyValue{attribute.Int("stock.products", len(items))})
	defer func() {
		run.With(observability.F("created", report.Created), observability.F("kept", report.Kept))
		run.End(err)
	}()

	for _, it := range items {
		created, err := s.ledger.Seed(ctx, it.ProductID, it.Available)
		if err != nil {
			run.Fail("error", "SEED_FAILED")
			return report, fmt.Errorf("seed %s: %w", it.ProductID, err)
		}
		if created {
			report.Created++
		} else {
			report.Kept++
		}
	}
	return report, nil
}
