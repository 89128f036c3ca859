package main

import (
	"context"
	"errors"
	"os"
	"time"

	"certdash/internal/amqp"
	"certdash/internal/cli"
	"certdash/internal/log"
	"certdash/internal/sheets"
	gsheet "certdash/internal/sheets/google"
	"certdash/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentWorker)
	logger.Info("Starting certdash-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the activity worker")
		os.Exit(1)
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// Without a spreadsheet the worker only keeps the local activity log.
	var appender sheets.ActivityAppender
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(ctx, gsheet.Options{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		appender = client
	} else {
		logger.Info("Google Sheets disabled, activity is stored locally only")
	}

	consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer consumer.Close()

	w := worker.NewActivityWorker(repo, appender, cfg.SyncBatchSize, logger)

	// Export anything a previous run left behind before consuming.
	if _, _, err := w.ProcessPending(ctx); err != nil {
		logger.Error("Startup export sweep failed", log.FieldError, err)
	}

	go func() {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, _, err := w.ProcessPending(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Periodic export sweep failed", log.FieldError, err)
				}
			}
		}
	}()

	if err := consumer.ConsumeActivity(ctx, w.HandleActivityMessage); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("certdash-worker stopped")
}
