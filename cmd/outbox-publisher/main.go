package main

import (
	"context"
	"errors"
	"os"

	"github.com/angelmondragon/storefront-backend/pkg/bootstrap"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

func main() {
	ctx := context.Background()
	proc, err := bootstrap.Start(ctx, "outbox-publisher")
	if err != nil {
		os.Stderr.WriteString("outbox-publisher: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer proc.Close()
	logg := proc.Logger

	pubsubClient, err := proc.PubSub(ctx)
	bootstrap.Must(logg, "failed to bootstrap pubsub", err)

	events, err := registry.NewEventRegistry(proc.Config.PubSub)
	bootstrap.Must(logg, "failed to build event registry", err)

	relay, err := NewService(ServiceParams{
		Config:      proc.Config,
		Logger:      logg,
		DB:          proc.DB,
		PubSub:      pubsubClient,
		Outbox:      outbox.NewRepository(proc.DB.DB()),
		Routes:      events,
		DeadLetters: outbox.NewDLQRepository(proc.DB.DB()),
	})
	bootstrap.Must(logg, "failed to create outbox publisher", err)

	runCtx, stop := proc.SignalContext()
	defer stop()

	logg.Info(runCtx, "outbox publisher started")
	if err := relay.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "outbox publisher stopped unexpectedly", err)
		proc.Close()
		os.Exit(1)
	}
	logg.Info(runCtx, "outbox publisher drained")
}
