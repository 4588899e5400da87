package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/govconsole/internal/app"
	"github.com/odyssey-erp/govconsole/internal/console"
	"github.com/odyssey-erp/govconsole/internal/governance"
	"github.com/odyssey-erp/govconsole/internal/observability"
	"github.com/odyssey-erp/govconsole/internal/platform/cache"
	"github.com/odyssey-erp/govconsole/internal/shared"
	"github.com/odyssey-erp/govconsole/internal/view"
	"github.com/odyssey-erp/govconsole/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "govconsole_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	registry, err := console.LoadRegistry()
	if err != nil {
		logger.Error("load screens", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	apiClient := governance.NewClient(cfg.GovernanceAPIURL, cfg.GovernanceAPIToken, cfg.GovernanceTimeout, logger)
	lookupCache := governance.NewCache(redisClient, cfg.LookupCacheTTL)
	lookups := governance.NewLookups(apiClient, lookupCache, logger)

	store := console.NewStore(registry, console.Dependencies{
		Fetchers:     apiClient.Fetcher,
		Lookups:      lookups,
		Recorder:     metrics,
		Logger:       logger,
		DemoFallback: cfg.DemoFallback,
	}, cfg.WorkspaceCacheSize, cfg.WorkspaceTTL)

	// Other instances bump the lookup version after a warmup; open
	// workspaces keep their options and new ones pick up the fresh set.
	go func() {
		err := lookupCache.ListenForInvalidation(ctx, func(version int64) {
			logger.Info("lookup cache invalidated", slog.Int64("version", version))
		})
		if err != nil && ctx.Err() == nil {
			logger.Warn("lookup invalidation listener stopped", slog.Any("error", err))
		}
	}()

	if _, err := lookups.Load(ctx, registry.LookupSources()); err != nil {
		logger.Warn("preload lookups", slog.Any("error", err))
	}

	consoleHandler := console.NewHandler(logger, store, templates, csrfManager)

	queueOpts, err := jobs.RedisConnOpt(cfg.RedisAddr)
	if err != nil {
		logger.Error("queue redis", slog.Any("error", err))
		os.Exit(1)
	}
	inspector := asynq.NewInspector(queueOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Templates:      templates,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		ConsoleHandler: consoleHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	store.Purge()
}
