// Command coin-sync keeps a local asset store in sync with the CoinGecko
// market listing and serves it over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/coin-sync/pkg/api"
	"github.com/Sternrassler/coin-sync/pkg/cache"
	"github.com/Sternrassler/coin-sync/pkg/config"
	"github.com/Sternrassler/coin-sync/pkg/gecko"
	"github.com/Sternrassler/coin-sync/pkg/logging"
	"github.com/Sternrassler/coin-sync/pkg/pagination"
	"github.com/Sternrassler/coin-sync/pkg/ratelimit"
	"github.com/Sternrassler/coin-sync/pkg/reconcile"
	"github.com/Sternrassler/coin-sync/pkg/scheduler"
	"github.com/Sternrassler/coin-sync/pkg/store"
	"github.com/Sternrassler/coin-sync/pkg/syncer"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LoggingConfig())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("coin-sync failed")
	}
}

// app holds every long-lived component.
type app struct {
	store     store.Store
	redis     *redis.Client
	syncer    *syncer.Syncer
	scheduler *scheduler.Scheduler
	server    *http.Server
}

func run(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	if err := a.scheduler.Start(); err != nil {
		a.close()
		return fmt.Errorf("start scheduler: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", a.server.Addr).Msg("HTTP server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}

	return a.shutdown()
}

// newApp wires configuration into components. Redis is optional: without
// it the fetcher has no shared cooldown and responses are not cached.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := logging.NewLogger("main")

	st, err := store.Open(ctx, cfg.Store, logging.NewLogger("store"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logger.Info().Str("driver", cfg.Store.Driver).Msg("Store ready")

	a := &app{store: st}

	clientCfg := cfg.ClientConfig()
	routerCfg := api.Config{Store: st, Release: cfg.IsProduction()}
	var invalidator syncer.CacheInvalidator

	if cfg.RedisEnabled() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")

		clientCfg.Cooldown = ratelimit.NewTracker(a.redis, logging.NewLogger("ratelimit"))

		responseCache := cache.NewManager(a.redis, cfg.CacheTTL)
		routerCfg.Cache = responseCache
		invalidator = responseCache
	}

	client, err := gecko.New(clientCfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create gecko client: %w", err)
	}
	if !client.HasCredentials() {
		logger.Warn().Msg("GECKO_API_KEY not set - sync cycles will fetch nothing")
	}

	driver := pagination.NewDriver(client, cfg.PaginationConfig())
	writer := reconcile.NewWriter(st, cfg.ReconcileMode())
	a.syncer = syncer.New(driver, writer, invalidator)
	a.scheduler = scheduler.New(a.syncer.RunCycle, cfg.SyncInterval)

	routerCfg.Scheduler = a.scheduler
	routerCfg.Status = a.syncer
	routerCfg.Market = client

	a.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(routerCfg),
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	logger.Info().
		Dur("interval", cfg.SyncInterval).
		Str("mode", string(writer.Mode())).
		Int("per_page", cfg.Gecko.PerPage).
		Int("max_pages", cfg.Gecko.MaxPages).
		Bool("redis", cfg.RedisEnabled()).
		Msg("Sync engine configured")

	return a, nil
}

// shutdown stops accepting requests, cancels the running cycle and closes
// connections.
func (a *app) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
	}
	if err := a.scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	if err := a.close(); err != nil {
		errs = append(errs, err)
	}

	log.Info().Msg("Shutdown completed")
	return errors.Join(errs...)
}

func (a *app) close() error {
	var errs []error
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
