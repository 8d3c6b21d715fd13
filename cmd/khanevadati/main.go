package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"khanevadati/internal/amqp"
	"khanevadati/internal/cli"
	apphttp "khanevadati/internal/http"
	"khanevadati/internal/ledger"
	"khanevadati/internal/log"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	ctx := context.Background()
	backend := cli.InitBackend(ctx, logger, cfg)

	var publisher ledger.Publisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			// Events are best effort; the ledger itself does not depend on the broker.
			logger.Warn("AMQP unavailable, ledger events will not be published", log.FieldError, err)
		} else {
			publisher = amqpClient
			logger.Info("Publishing ledger events", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	engine := ledger.NewEngine(backend.Store, publisher, logger)
	srv := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		CacheTTL:           cfg.SummaryCacheTTL,
		CacheSize:          cfg.SummaryCacheSize,
		DefaultNamespace:   cfg.DefaultNamespace,
	}, engine, backend.Ready, logger)

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	sigCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", log.FieldError, err)
			}
		}
		if err := backend.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	logger.Info("Starting khanevadati server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"default_namespace", cfg.DefaultNamespace)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(sigCtx, done)
	logger.Info("Server stopped gracefully")
}
