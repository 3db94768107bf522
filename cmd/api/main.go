package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	esewawebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/esewa"
	"github.com/angelmondragon/storefront-backend/pkg/bootstrap"
	"github.com/angelmondragon/storefront-backend/pkg/esewa"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx := context.Background()
	proc, err := bootstrap.Start(ctx, "api")
	if err != nil {
		os.Stderr.WriteString("api: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer proc.Close()
	cfg, logg, dbClient := proc.Config, proc.Logger, proc.DB

	bootstrap.Must(logg, "refusing to start without payment credentials", cfg.Esewa.Validate())

	redisClient, err := proc.Redis(ctx)
	bootstrap.Must(logg, "failed to bootstrap redis", err)

	ordersRepo := orders.NewRepository(dbClient.DB())
	cartRepo := cart.NewRepository(dbClient.DB())
	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	materializer, err := orders.NewMaterializer(ordersRepo, dbClient, cartRepo, emitter, orders.AddressBook{}, logg)
	bootstrap.Must(logg, "failed to create order materializer", err)

	statusMachine, err := orders.NewStatusMachine(
		ordersRepo,
		dbClient,
		cartRepo,
		orders.NewProductStock(logg),
		orders.NewOutboxRefunder(emitter),
		emitter,
		logg,
	)
	bootstrap.Must(logg, "failed to create order status machine", err)

	initiator, err := payments.NewInitiator(cfg.Esewa, cfg.Storefront)
	bootstrap.Must(logg, "failed to create payment initiator", err)

	gateway, err := esewa.NewClient(cfg.Esewa.ProductCode, esewa.WithStatusURL(cfg.Esewa.StatusURL), esewa.WithTimeout(cfg.Esewa.HTTPTimeout))
	bootstrap.Must(logg, "failed to create esewa client", err)

	reconciler, err := payments.NewReconciler(payments.ReconcilerParams{
		Orders:            ordersRepo,
		TransactionRunner: dbClient,
		Cart:              cartRepo,
		Outbox:            emitter,
		Gateway:           gateway,
		SecretKey:         cfg.Esewa.SecretKey,
		ProductCode:       cfg.Esewa.ProductCode,
		Metrics:           metrics.NewPaymentMetrics(prometheus.DefaultRegisterer),
		Logger:            logg,
	})
	bootstrap.Must(logg, "failed to create payment reconciler", err)

	guard, err := esewawebhook.NewIdempotencyGuard(redisClient, cfg.Payments.CallbackIdempotencyTTL)
	bootstrap.Must(logg, "failed to create callback guard", err)

	checkoutService, err := checkoutsvc.NewService(materializer, initiator, logg)
	bootstrap.Must(logg, "failed to create checkout service", err)

	server := &http.Server{
		Addr: ":" + cfg.App.Port,
		Handler: routes.NewRouter(cfg, logg, routes.Deps{
			DB:            dbClient,
			Redis:         redisClient,
			Metrics:       prometheus.DefaultGatherer,
			Checkout:      checkoutService,
			Payments:      reconciler,
			Guard:         guard,
			Orders:        ordersRepo,
			StatusMachine: statusMachine,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := proc.SignalContext()
	defer stop()
	runCtx = logg.WithField(runCtx, "addr", server.Addr)

	go func() {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(runCtx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(runCtx, "api server shutdown failed", err)
		}
	}()

	logg.Info(runCtx, "api server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(runCtx, "api server stopped unexpectedly", err)
		proc.Close()
		os.Exit(1)
	}
	logg.Info(runCtx, "api server stopped")
}
