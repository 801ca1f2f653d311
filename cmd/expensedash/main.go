package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"expensedash/internal/amqp"
	"expensedash/internal/cli"
	"expensedash/internal/client"
	apphttp "expensedash/internal/http"
	"expensedash/internal/log"
	"expensedash/internal/middleware/ratelimit"
	"expensedash/internal/resource"
	"expensedash/internal/store"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig(cli.SetupLogger(nil))
	logger := cli.SetupLogger(cfg)

	api := client.New(cfg.ExpenseAPIURL,
		client.WithTimeout(cfg.APITimeout),
		client.WithHealthTimeout(cfg.HealthTimeout),
		client.WithLogger(logger))

	opts := []store.Option{
		store.WithLogger(logger),
		store.WithDefaultIncome(cfg.DefaultIncome),
	}

	var publisher *amqp.Publisher
	if cfg.AMQPEnabled() {
		p, err := amqp.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey, logger)
		if err != nil {
			logger.Warn("AMQP unavailable, store events will not be published",
				log.FieldError, err,
				log.FieldErrorType, log.ErrorTypeNetwork)
		} else {
			publisher = p
			opts = append(opts, store.WithPublisher(p))
		}
	}

	st := store.New(api, opts...)
	st.Dashboard().Subscribe(func(snap resource.Snapshot[store.View]) {
		logger.Debug("Dashboard state changed",
			log.FieldState, snap.State.String(),
			log.FieldCount, snap.Data.Count)
	})

	srv, err := apphttp.NewServer(apphttp.Config{
		Addr:           ":" + cfg.Port,
		TrustedProxies: cfg.TrustedProxies,
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
		Logger: logger,
	}, st, api)
	if err != nil {
		logger.Error("Failed to create server", log.FieldError, err)
		os.Exit(1)
	}

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	// The page renders the loading state until the first load settles.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.APITimeout*3)
		defer cancel()
		if err := st.LoadAll(ctx); err != nil {
			logger.Warn("Initial dashboard load failed", log.FieldError, err)
		}
	}()

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if publisher != nil {
			if err := publisher.Close(); err != nil {
				logger.Warn("AMQP close error", log.FieldError, err)
			}
		}
	})

	logger.Info("Starting expense dashboard",
		"port", cfg.Port,
		"expense_api", api.BaseURL(),
		"amqp_enabled", publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
