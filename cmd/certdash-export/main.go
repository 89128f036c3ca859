package main

import (
	"flag"
	"os"
	"time"

	"certdash/internal/backend"
	"certdash/internal/cli"
	"certdash/internal/core"
	"certdash/internal/log"
	"certdash/internal/services"
	"certdash/internal/session"
	"certdash/internal/sheets"
	gsheet "certdash/internal/sheets/google"
	memsheet "certdash/internal/sheets/memory"
)

func main() {
	year := flag.Int("year", time.Now().Year(), "year to export")
	email := flag.String("email", os.Getenv("CERTDASH_EMAIL"), "account email (CERTDASH_EMAIL)")
	flag.Parse()

	cfg, logger := cli.Bootstrap(log.ComponentSheets)
	password := os.Getenv("CERTDASH_PASSWORD")
	if *email == "" || password == "" {
		logger.Error("Both an email and CERTDASH_PASSWORD are required")
		os.Exit(2)
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	// The export only needs the trading API; sessions stay in memory.
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	backendCfg.Store = backend.MemoryStore
	backendCfg.AMQPURL = ""
	comps, err := backend.NewFactory(logger).Build(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err)
		os.Exit(1)
	}
	defer comps.Close()

	var writer sheets.TableWriter
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
		writer = client
	} else {
		logger.Warn("GOOGLE_SPREADSHEET_ID not set, running a dry export")
		writer = memsheet.New()
	}

	sessions := session.NewManager(comps.Sessions, comps.API, cfg.SessionTTL, logger)
	sess, err := sessions.Login(ctx, core.Credentials{Email: *email, Password: password})
	if err != nil {
		logger.Error("Login failed", log.FieldError, err, log.FieldOperation, log.OpLogin)
		os.Exit(1)
	}
	defer func() { _ = sessions.Logout(ctx, sess) }()

	dashboard := services.NewDashboardService(comps.API, cfg.CacheSize, cfg.CacheTTL, cfg.ChartWindow, logger)
	res, err := services.NewExportService(dashboard, writer, logger).Export(ctx, sess, *year)
	if err != nil {
		logger.Error("Export failed", log.FieldError, err, log.FieldYear, *year)
		os.Exit(1)
	}
	for _, r := range res.Ranges {
		logger.Info("Table written", "range", r)
	}
}
