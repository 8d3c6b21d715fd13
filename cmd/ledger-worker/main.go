package main

import (
	"context"
	"errors"
	"os"
	"time"

	"khanevadati/internal/amqp"
	"khanevadati/internal/cache"
	"khanevadati/internal/cli"
	"khanevadati/internal/log"
	"khanevadati/internal/sheets"
	gsheet "khanevadati/internal/sheets/google"
	mem "khanevadati/internal/sheets/memory"
	"khanevadati/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	logger.Info("Starting ledger-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the ledger worker")
		os.Exit(1)
	}

	var journal sheets.JournalWriter
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(context.Background(), gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		journal = client
		logger.Info("Google Sheets journal initialized",
			"spreadsheet_id", cfg.GoogleSpreadsheetID,
			"sheet", cfg.GoogleSheetName)
	} else {
		journal = mem.New()
		logger.Info("Google Sheets disabled - journal rows are kept in memory")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}

	exporter := worker.NewExportWorker(journal, logger)
	caches := cache.NewManager(logger)
	caches.Register(exporter.SeenCache())
	caches.StartCleanup(time.Hour)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		caches.Stop()
		stats := exporter.Stats()
		logger.Info("Worker stopping",
			"exported", stats.Exported,
			"skipped", stats.Skipped,
			"failed", stats.Failed)
		if err := amqpClient.Close(); err != nil {
			logger.Warn("AMQP close error", log.FieldError, err)
		}
	})

	if err := amqpClient.Consume(ctx, exporter.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Event consumption failed", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
