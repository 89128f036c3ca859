package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"certdash/internal/backend"
	"certdash/internal/cache"
	"certdash/internal/cli"
	apphttp "certdash/internal/http"
	"certdash/internal/log"
	"certdash/internal/render"
	"certdash/internal/services"
	"certdash/internal/session"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentApp)
	logger.Info("Starting certdash", "api_backend", cfg.APIBackend, "session_backend", cfg.SessionBackend)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	comps, err := backend.NewFactory(logger).Build(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err)
		os.Exit(1)
	}
	defer func() {
		if err := comps.Close(); err != nil {
			logger.Error("Failed to release backend resources", log.FieldError, err)
		}
	}()

	dashboard := services.NewDashboardService(comps.API, cfg.CacheSize, cfg.CacheTTL, cfg.ChartWindow, logger)
	caches := cache.NewManager(logger)
	dashboard.RegisterCaches(caches)
	caches.StartCleanup(cfg.CacheTTL)
	defer caches.Stop()

	var janitor *services.SessionJanitor
	if comps.Purger != nil {
		janitor = services.NewSessionJanitor(comps.Purger, services.DefaultJanitorConfig(), logger)
		if err := janitor.Start(ctx); err != nil {
			logger.Error("Failed to start session janitor", log.FieldError, err)
			os.Exit(1)
		}
	}

	activity := services.NewActivityRecorder(comps.Publisher, logger)
	sessions := session.NewManager(comps.Sessions, comps.API, cfg.SessionTTL, logger)

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		CookieSecure:       cfg.SessionCookieSecure,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		ChartWindow:        cfg.ChartWindow,
	}, apphttp.Deps{
		Dashboard:    dashboard,
		Certificates: services.NewCertificateService(comps.API, dashboard, activity, logger),
		Accounts:     services.NewAccountService(comps.API, sessions, dashboard, activity, logger),
		Sessions:     sessions,
		Renderer:     render.NewRenderer(),
		Checks:       comps.Checks,
	}, logger)

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if janitor != nil {
			if err := janitor.Stop(shutdownCtx); err != nil {
				logger.Warn("Session janitor stop error", log.FieldError, err)
			}
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err, log.FieldOperation, log.OpShutdown)
		}
	}()

	logger.Info("HTTP server listening", "port", cfg.Port, log.FieldOperation, log.OpStartup)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		cancel()
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
