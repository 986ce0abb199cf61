// Command gastos serves the budgeting calendar UI.
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

	"golang.org/x/sync/errgroup"

	"gastos/internal/backend"
	"gastos/internal/cache"
	"gastos/internal/config"
	"gastos/internal/events"
	apphttp "gastos/internal/http"
	"gastos/internal/log"
	"gastos/internal/view"
)

const (
	shutdownTimeout = 30 * time.Second
	sweepInterval   = time.Minute
)

func main() {
	// a missing .env is fine outside development
	config.LoadEnvFile()
	cfg := config.Load()

	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: log.ComponentApp,
		Output:    os.Stdout,
	})
	log.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("gastos exited", log.Err(err))
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully", log.FieldOperation, log.OpShutdown)
}

func run(cfg *config.Config, logger *log.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, opts)
	if err != nil {
		return fmt.Errorf("ledger backend %s: %w", cfg.DataBackend, err)
	}
	if res.Cleanup != nil {
		defer func() {
			if err := res.Cleanup(); err != nil {
				logger.Warn("Backend cleanup failed", log.Err(err))
			}
		}()
	}

	g, ctx := errgroup.WithContext(ctx)

	// Without a broker each instance only sees its own mutations.
	var publisher events.Publisher = events.Nop{}
	if cfg.AMQPURL != "" {
		client, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			return fmt.Errorf("AMQP client: %w", err)
		}
		defer client.Close()
		publisher = client

		g.Go(func() error {
			err := client.Consume(ctx, func(ctx context.Context, msg *events.Message) error {
				return res.Backend.Invalidate(ctx, msg.Principal)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				// cached reads still expire after CACHE_TTL; keep serving
				logger.Error("Event consumer stopped", log.FieldOperation, log.OpConsume, log.Err(err))
			}
			return nil
		})
		logger.Info("Ledger events enabled", "exchange", cfg.AMQPExchange)
	}

	controller := view.NewController(res.Backend,
		view.WithPublisher(publisher),
		view.WithLogger(logger))
	sessions := view.NewSessions(cfg.SessionMax, cfg.SessionTTL, nil)

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		CookieSecure:       cfg.CookieSecure,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
		Ready:              res.Ready,
		Logger:             logger,
	}, controller, sessions)

	manager := cache.NewManager(logger)
	manager.Register(sessions)
	manager.Register(res.Cleaners...)
	manager.Register(srv.Cleaners()...)
	manager.StartCleanup(sweepInterval)
	defer manager.Stop()

	g.Go(func() error {
		logger.Info("Starting gastos server", log.FieldOperation, log.OpStartup,
			"port", cfg.Port, "backend", cfg.DataBackend, "cache", cfg.CacheBackend)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down", log.FieldOperation, log.OpShutdown)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
