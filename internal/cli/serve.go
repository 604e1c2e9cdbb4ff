package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mojig27/web-site-sub001/internal/application/checkout"
	apporder "github.com/mojig27/web-site-sub001/internal/application/order"
	apppayment "github.com/mojig27/web-site-sub001/internal/application/payment"
	"github.com/mojig27/web-site-sub001/internal/pkg/logging"
	httppresentation "github.com/mojig27/web-site-sub001/internal/presentation/http"
	workerpresentation "github.com/mojig27/web-site-sub001/internal/presentation/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(load func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with the reservation sweeper and payment re-checker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	system := logging.WithTrace(a.zap, logging.SystemTraceID, logging.SystemSpanID)

	cat, seeded, err := a.loadCatalog(ctx)
	if err != nil {
		return err
	}
	system.Info("catalog_loaded",
		zap.String("path", a.cfg.Catalog.Path),
		zap.Int("products", len(cat.Products())),
		zap.String("currency", cat.Currency()),
		zap.Int("stock_seeded", seeded.Created),
	)

	stopEvents := a.startEvents(ctx)
	defer stopEvents()

	runner := workerpresentation.NewRunner(a.tel)
	sweeper := a.sweeper()
	rechecker := a.rechecker()
	runner.Start(ctx,
		workerpresentation.Job{
			Name:     "reservation_sweeper",
			Interval: a.cfg.Sweeper.Interval,
			Tick: func(ctx context.Context) error {
				_, err := sweeper.Sweep(ctx)
				return err
			},
		},
		workerpresentation.Job{
			Name:     "payment_recheck",
			Interval: a.cfg.Recheck.Interval,
			Tick: func(ctx context.Context) error {
				_, err := rechecker.Tick(ctx)
				return err
			},
		},
	)

	cdeps := a.checkoutDeps(cat)
	handler := httppresentation.NewHandler(httppresentation.Services{
		Checkout:    checkout.NewCheckoutUseCase(cdeps, a.tel),
		Retry:       checkout.NewRetryPaymentUseCase(cdeps, a.tel),
		Cancel:      checkout.NewCancelUseCase(cdeps, a.tel),
		Reconcile:   apppayment.NewReconcileUseCase(a.paymentDeps(), a.tel),
		Query:       apporder.NewQuery(a.store.Orders(), a.store.Attempts(), a.tel),
		Fulfillment: apporder.NewFulfillment(a.orderDeps(), a.tel),
		Stock:       a.stock(),
		Health:      a.store.Ping,
		Metrics:     promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
	}, a.tel)

	server := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		system.Info("http_server_start", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			system.Error("http_server_error", zap.Error(err))
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		system.Error("http_server_shutdown_error", zap.Error(err))
	} else {
		system.Info("http_server_stopped")
	}
	runner.Wait()
	return nil
}
