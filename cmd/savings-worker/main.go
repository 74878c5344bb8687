package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/blurryplay/savings-tracker/internal/config"
	"github.com/blurryplay/savings-tracker/internal/events"
	"github.com/blurryplay/savings-tracker/internal/export"
	gsheet "github.com/blurryplay/savings-tracker/internal/export/google"
	"github.com/blurryplay/savings-tracker/internal/export/memory"
	applog "github.com/blurryplay/savings-tracker/internal/log"
	"github.com/blurryplay/savings-tracker/internal/storage"
	"github.com/blurryplay/savings-tracker/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := applog.Setup(cfg.LogFormat, cfg.LogLevel, "savings-worker")

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// Without a spreadsheet the worker still runs reconciliation and
	// keeps an in-memory export log.
	var sheet export.TransactionWriter
	if cfg.ExportEnabled() {
		client, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		sheet = client
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		sheet = memory.New()
		logger.Info("Google Sheets export disabled - using in-memory writer")
	}

	exportWorker := worker.NewExportWorker(repo, sheet, cfg.SyncBatchSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Recover anything missed while the worker was down.
	if err := exportWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Startup sync check failed", "error", err)
	}
	if _, err := exportWorker.ReconcileAll(ctx); err != nil {
		logger.Error("Startup reconciliation failed", "error", err)
	}

	if cfg.AMQPURL != "" {
		amqpClient, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()

		go func() {
			err := amqpClient.ConsumeTransactionRecorded(ctx, func(msg *events.TransactionRecordedMessage) error {
				return exportWorker.HandleTransactionMessage(ctx, msg)
			})
			if err != nil && err != context.Canceled {
				logger.Error("Message consumption failed", "error", err)
			}
			cancel()
		}()
		logger.Info("Consuming transaction messages", "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - relying on periodic sweeps only")
	}

	go func() {
		if err := exportWorker.RunPeriodic(ctx, cfg.SyncInterval, cfg.ReconcileInterval); err != nil && err != context.Canceled {
			logger.Error("Periodic sweeps stopped", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("Worker shutdown complete")
}
