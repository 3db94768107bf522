package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/cron"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/bootstrap"
	"github.com/angelmondragon/storefront-backend/pkg/esewa"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

const lockName = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	ctx := context.Background()
	proc, err := bootstrap.Start(ctx, "cron-worker")
	if err != nil {
		os.Stderr.WriteString("cron-worker: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer proc.Close()
	cfg, logg := proc.Config, proc.Logger

	bootstrap.Must(logg, "payment sweep needs gateway credentials", cfg.Esewa.Validate())

	redisClient, err := proc.Redis(ctx)
	bootstrap.Must(logg, "failed to bootstrap redis", err)

	ordersRepo := orders.NewRepository(proc.DB.DB())
	outboxRepo := outbox.NewRepository(proc.DB.DB())

	gateway, err := esewa.NewClient(cfg.Esewa.ProductCode, esewa.WithStatusURL(cfg.Esewa.StatusURL), esewa.WithTimeout(cfg.Esewa.HTTPTimeout))
	bootstrap.Must(logg, "failed to create esewa client", err)

	reconciler, err := payments.NewReconciler(payments.ReconcilerParams{
		Orders:            ordersRepo,
		TransactionRunner: proc.DB,
		Cart:              cart.NewRepository(proc.DB.DB()),
		Outbox:            outbox.NewService(outboxRepo, logg),
		Gateway:           gateway,
		SecretKey:         cfg.Esewa.SecretKey,
		ProductCode:       cfg.Esewa.ProductCode,
		Metrics:           metrics.NewPaymentMetrics(prometheus.DefaultRegisterer),
		Logger:            logg,
	})
	bootstrap.Must(logg, "failed to create payment reconciler", err)

	sweep, err := cron.NewPendingPaymentSweepJob(cron.PendingPaymentSweepJobParams{
		Logger:      logg,
		Sessions:    ordersRepo,
		Reconciler:  reconciler,
		StaleAfter:  cfg.Payments.StalePendingAfter,
		ExpireAfter: cfg.Payments.ExpirePendingAfter,
		BatchSize:   cfg.Payments.SweepBatchSize,
	})
	bootstrap.Must(logg, "failed to create pending payment sweep", err)

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outboxRepo,
		Retention:  cfg.Outbox.Retention,
	})
	bootstrap.Must(logg, "failed to create outbox retention job", err)

	lock, err := cron.NewRedisLock(redisClient, lockName, cfg.Cron.LockTTL)
	bootstrap.Must(logg, "failed to create cron lock", err)

	jobs := cron.NewRegistry(sweep, retention)
	scheduler, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   jobs,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.LockTTL,
	})
	bootstrap.Must(logg, "failed to create cron service", err)

	runCtx, stop := proc.SignalContext()
	defer stop()
	runCtx = logg.WithField(runCtx, "jobs", jobs.Names())

	if *once {
		logg.Info(runCtx, "running single cron cycle")
		if err := scheduler.RunOnce(runCtx); err != nil {
			logg.Error(runCtx, "cron cycle failed", err)
			proc.Close()
			os.Exit(1)
		}
		return
	}

	logg.Info(runCtx, "cron worker started")
	if err := scheduler.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "cron worker stopped unexpectedly", err)
		proc.Close()
		os.Exit(1)
	}
	logg.Info(runCtx, "cron worker stopped")
}
