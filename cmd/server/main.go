package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/heartlink/billing/internal/billing"
	"github.com/heartlink/billing/internal/transport"
	"github.com/heartlink/billing/pkg/config"
	"github.com/heartlink/billing/pkg/httpserver"
	"github.com/heartlink/billing/pkg/logger"
	"github.com/heartlink/billing/pkg/pg"
	"github.com/heartlink/billing/pkg/ratelimiter"
	"github.com/heartlink/billing/pkg/redis"
)

type appConfig struct {
	Logger    logger.Config
	Postgres  pg.Config
	Redis     redis.Config
	Server    httpserver.Config
	Billing   billing.Config
	Paystack  billing.PaystackConfig
	Transport transport.Config

	// PollRateLimit shapes the per-reference verification bucket.
	PollCapacity int           `env:"BILLING_POLL_CAPACITY" envDefault:"5"`
	PollRefill   time.Duration `env:"BILLING_POLL_REFILL_INTERVAL" envDefault:"10s"`
}

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.MustNew(cfg.Logger, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, cfg.Postgres, log); err != nil {
		return err
	}

	probes := []func(context.Context) error{pg.Healthcheck(pool)}

	// The poll limiter falls back to process-local state when Redis is
	// not reachable; a single replica does not need shared buckets.
	var limiterStore ratelimiter.Store
	if client, err := redis.Connect(ctx, cfg.Redis); err != nil {
		log.Warn("redis unavailable, using in-memory rate limiting", "error", err)
		memStore := ratelimiter.NewMemoryStore(5 * time.Minute)
		defer memStore.Close()
		limiterStore = memStore
	} else {
		defer func() {
			if err := client.Close(); err != nil {
				log.Error("failed to close redis client", "error", err)
			}
		}()
		limiterStore = ratelimiter.NewRedisStore(client, "billing:poll")
		probes = append(probes, redis.Healthcheck(client))
	}

	limiter, err := ratelimiter.NewBucket(limiterStore, ratelimiter.Config{
		Capacity:       cfg.PollCapacity,
		RefillRate:     1,
		RefillInterval: cfg.PollRefill,
	})
	if err != nil {
		return err
	}

	catalog, err := billing.NewCatalog(ctx, billing.FilePlanSource{Path: cfg.Billing.PlansPath})
	if err != nil {
		return err
	}

	provider, err := billing.NewPaystackProvider(cfg.Paystack)
	if err != nil {
		return err
	}

	store := billing.NewPgStore(pool)
	svc := billing.NewService(catalog, provider, store, cfg.Billing, log)
	sweeper := billing.NewSweeper(store, log, cfg.Billing.SweepInterval, cfg.Billing.PendingTTL)

	router := transport.Router(cfg.Transport, transport.Options{
		Service:  svc,
		Provider: provider,
		Limiter:  limiter,
		Log:      log,
		Health: func(ctx context.Context) error {
			for _, probe := range probes {
				if err := probe(ctx); err != nil {
					return err
				}
			}
			return nil
		},
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sweeper.Run(ctx) })
	g.Go(func() error { return httpserver.New(cfg.Server, log).Run(ctx, router) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
