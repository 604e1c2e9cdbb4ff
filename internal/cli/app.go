package cli

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mojig27/web-site-sub001/internal/application/checkout"
	appinventory "github.com/mojig27/web-site-sub001/internal/application/inventory"
	"github.com/mojig27/web-site-sub001/internal/application/notification"
	apporder "github.com/mojig27/web-site-sub001/internal/application/order"
	apppayment "github.com/mojig27/web-site-sub001/internal/application/payment"
	"github.com/mojig27/web-site-sub001/internal/config"
	"github.com/mojig27/web-site-sub001/internal/domain/payment"
	"github.com/mojig27/web-site-sub001/internal/infrastructure/catalog"
	"github.com/mojig27/web-site-sub001/internal/infrastructure/gateway/simulated"
	"github.com/mojig27/web-site-sub001/internal/infrastructure/gateway/zarinpal"
	"github.com/mojig27/web-site-sub001/internal/infrastructure/id"
	obsinfra "github.com/mojig27/web-site-sub001/internal/infrastructure/observability"
	"github.com/mojig27/web-site-sub001/internal/infrastructure/outbox"
	"github.com/mojig27/web-site-sub001/internal/infrastructure/sqlite"
	"github.com/mojig27/web-site-sub001/internal/observability"
	"github.com/mojig27/web-site-sub001/internal/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// app is the composition root shared by every command: configuration, the
// zap/Prometheus/OTel stack, the SQLite store, the gateway and the event bus.
type app struct {
	cfg      *config.Config
	zap      *zap.Logger
	registry *prometheus.Registry
	tel      observability.Observability
	store    *sqlite.Store
	gateway  payment.Gateway
	bus      *outbox.Bus
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	zl, err := logging.NewLogger(cfg.Service.Name, cfg.Service.Env, logging.Options{
		Level: cfg.Log.Level,
		File:  cfg.Log.File,
	})
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	tel := obsinfra.Build(cfg.Service.Name, zl, registry)

	store, err := sqlite.Open(cfg.Store.Path)
	if err != nil {
		_ = zl.Sync()
		return nil, fmt.Errorf("open store %s: %w", cfg.Store.Path, err)
	}

	a := &app{
		cfg:      cfg,
		zap:      zl,
		registry: registry,
		tel:      tel,
		store:    store,
		bus: outbox.NewBus(tel,
			outbox.WithQueueSize(cfg.Events.QueueSize),
			outbox.WithConcurrency(cfg.Events.Concurrency),
			outbox.WithHandlerTimeout(cfg.Events.HandlerTimeout),
		),
	}
	a.gateway = a.newGateway()
	return a, nil
}

func (a *app) newGateway() payment.Gateway {
	g := a.cfg.Gateway
	if g.Driver == config.GatewayZarinpal {
		return zarinpal.New(zarinpal.Config{
			MerchantID:      g.MerchantID,
			BaseURL:         g.BaseURL,
			StartPayURL:     g.StartPayURL,
			InitiateTimeout: g.InitiateTimeout,
			VerifyTimeout:   g.VerifyTimeout,
		}, &http.Client{}, a.tel)
	}
	sim := simulated.New(g.StartPayURL)
	sim.SetSuccessRate(g.SuccessRate)
	return sim
}

func (a *app) Close() error {
	err := a.store.Close()
	_ = a.zap.Sync()
	return err
}

func (a *app) checkoutDeps(prices checkout.PriceLookup) checkout.Deps {
	return checkout.Deps{
		Orders:      a.store.Orders(),
		Attempts:    a.store.Attempts(),
		Ledger:      a.store.Ledger(),
		Gateway:     a.gateway,
		Prices:      prices,
		IDs:         id.NewUUIDGenerator(),
		Events:      a.bus,
		CallbackURL: a.cfg.Gateway.CallbackURL,
	}
}

func (a *app) paymentDeps() apppayment.Deps {
	r := a.cfg.Recheck
	return apppayment.Deps{
		Orders:   a.store.Orders(),
		Attempts: a.store.Attempts(),
		Ledger:   a.store.Ledger(),
		Gateway:  a.gateway,
		Events:   a.bus,
		Policy:   payment.RetryPolicy{Initial: r.InitialBackoff, Max: r.MaxBackoff, MaxAttempts: r.MaxAttempts},
		Lease:    r.Lease,
	}
}

func (a *app) orderDeps() apporder.Deps {
	return apporder.Deps{
		Orders:   a.store.Orders(),
		Attempts: a.store.Attempts(),
		Ledger:   a.store.Ledger(),
		Events:   a.bus,
	}
}

func (a *app) stock() *appinventory.Stock {
	return appinventory.NewStock(a.store.Ledger(), a.tel)
}

func (a *app) sweeper() *apporder.Sweeper {
	return apporder.NewSweeper(a.orderDeps(), apporder.SweeperConfig{
		Timeout: a.cfg.Checkout.ReservationTimeout,
		Batch:   a.cfg.Sweeper.Batch,
	}, a.tel)
}

func (a *app) rechecker() *apppayment.RecheckWorker {
	return apppayment.NewRecheckWorker(a.paymentDeps(), a.tel, a.cfg.Recheck.Batch)
}

// loadCatalog reads the product catalog and seeds stock counters for
// products the ledger has never seen. Existing counters are left alone.
func (a *app) loadCatalog(ctx context.Context) (*catalog.Catalog, appinventory.SeedReport, error) {
	cat, err := catalog.Load(a.cfg.Catalog.Path)
	if err != nil {
		return nil, appinventory.SeedReport{}, err
	}
	products := cat.Products()
	items := make([]appinventory.SeedItem, 0, len(products))
	for _, p := range products {
		items = append(items, appinventory.SeedItem{ProductID: p.ID, Available: p.InitialStock})
	}
	report, err := a.stock().Seed(ctx, items)
	if err != nil {
		return nil, report, fmt.Errorf("seed stock: %w", err)
	}
	return cat, report, nil
}

// startEvents subscribes the notification worker and starts the bus. The
// returned func drains queued events within the shutdown timeout.
func (a *app) startEvents(ctx context.Context) func() {
	notification.NewWorker(a.bus, nil, a.tel).Start()
	a.bus.Start(ctx)
	return func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		a.bus.Stop(stopCtx)
	}
}
