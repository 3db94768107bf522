// Package bootstrap holds the startup sequence shared by the storefront
// binaries: environment, config, logger, database and optional clients.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// Process is a started binary. Close releases everything it opened in
// reverse order.
type Process struct {
	Name   string
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client

	closers []closer
}

type closer struct {
	name  string
	close func() error
}

// Option tunes Start.
type Option func(*startOptions)

type startOptions struct {
	skipDevMigrations bool
}

// SkipDevMigrations leaves the schema alone even when dev auto-migrate is on.
// The migrate binary uses it so a down run is not undone at startup.
func SkipDevMigrations() Option {
	return func(o *startOptions) { o.skipDevMigrations = true }
}

// Start loads .env and config, builds the logger, connects the database and
// applies embedded migrations when the environment asks for it.
func Start(ctx context.Context, name string, opts ...Option) (*Process, error) {
	var o startOptions
	for _, opt := range opts {
		opt(&o)
	}

	logg := logger.New(logger.Options{ServiceName: name})
	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = name

	p := &Process{
		Name:   name,
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: name,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			WarnStack:   cfg.App.LogWarnStack,
		}),
	}

	p.DB, err = db.New(ctx, cfg.DB, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	p.onClose("database", p.DB.Close)

	if o.skipDevMigrations {
		return p, nil
	}
	if err := migrate.MaybeRunDev(ctx, cfg, p.Logger, p.DB); err != nil {
		p.Close()
		return nil, fmt.Errorf("dev migrations: %w", err)
	}
	return p, nil
}

// Redis connects to redis and ties it to the process lifetime.
func (p *Process) Redis(ctx context.Context) (*redis.Client, error) {
	client, err := redis.New(ctx, p.Config.Redis, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	p.onClose("redis", client.Close)
	return client, nil
}

// PubSub opens the Pub/Sub client and ties it to the process lifetime.
func (p *Process) PubSub(ctx context.Context) (*pubsub.Client, error) {
	client, err := pubsub.NewClient(ctx, p.Config.GCP, p.Config.PubSub, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("connect pubsub: %w", err)
	}
	p.onClose("pubsub", client.Close)
	return client, nil
}

func (p *Process) onClose(name string, fn func() error) {
	p.closers = append(p.closers, closer{name: name, close: fn})
}

// Close runs the registered closers newest first and logs what failed.
func (p *Process) Close() error {
	var errs error
	for i := len(p.closers) - 1; i >= 0; i-- {
		c := p.closers[i]
		if err := c.close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	p.closers = nil
	if errs != nil && p.Logger != nil {
		p.Logger.Error(context.Background(), "shutdown left resources open", errs)
	}
	return errs
}

// SignalContext is canceled on SIGINT or SIGTERM and carries the process
// identity as log fields.
func (p *Process) SignalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return p.Logger.WithFields(ctx, map[string]any{
		"env":         p.Config.App.Env,
		"serviceKind": p.Name,
		"instance":    instance.ID(p.Name),
	}), stop
}

// Must exits the process when err is set.
func Must(logg *logger.Logger, msg string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), msg, err)
	os.Exit(1)
}
