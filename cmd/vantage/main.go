package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/httprate"
	"github.com/hibiken/asynq"

	"github.com/vantage-market/vantage-market/internal/app"
	"github.com/vantage-market/vantage-market/internal/audit"
	audithttp "github.com/vantage-market/vantage-market/internal/audit/http"
	"github.com/vantage-market/vantage-market/internal/auth"
	"github.com/vantage-market/vantage-market/internal/authz"
	"github.com/vantage-market/vantage-market/internal/catalog"
	"github.com/vantage-market/vantage-market/internal/observability"
	"github.com/vantage-market/vantage-market/internal/platform/cache"
	"github.com/vantage-market/vantage-market/internal/platform/db"
	"github.com/vantage-market/vantage-market/internal/users"
	"github.com/vantage-market/vantage-market/internal/vendors"
	"github.com/vantage-market/vantage-market/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	riskCfg := audit.DefaultRiskConfig()
	riskCfg.AllowedCountries = cfg.AllowedCountries()
	auditRepo := audit.NewRepository(pool)
	auditService, err := audit.NewService(auditRepo, []byte(cfg.AuditHMACSecret), riskCfg, audit.DefaultRetentionConfig(), logger)
	if err != nil {
		logger.Error("init audit service", slog.Any("error", err))
		os.Exit(1)
	}
	auditService.SetObserver(metrics)
	auditHandler := audithttp.NewHandler(logger, auditService)

	authzRepo := authz.NewRepository(pool)
	decisionCache := authz.NewDecisionCache(redisClient, cfg.AuthzDecisionTTL)
	registry := authz.NewRegistry()
	resolver := authz.NewResolver(authzRepo)
	engine := authz.NewEngine(registry, decisionCache, resolver, authzRepo, auditService, metrics, logger)
	legacyGuard := authz.NewLegacyRoleGuard(authzRepo)
	rateLimit := httprate.Limit(cfg.RateLimitRPM, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
	pipeline := authz.NewPipeline(engine, legacyGuard, rateLimit, logger)

	authzService := authz.NewService(authzRepo, decisionCache, registry, auditService, logger)
	if err := authzService.ReloadRegistry(ctx); err != nil {
		logger.Error("load route registry", slog.Any("error", err))
		os.Exit(1)
	}
	authzHandler := authz.NewHandler(logger, authzService)

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, logger)
	authHandler := auth.NewHandler(logger, authService)

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo, authzService, auditService)
	usersHandler := users.NewHandler(logger, usersService)

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, auditService)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	vendorsRepo := vendors.NewRepository(pool)
	vendorsService := vendors.NewService(vendorsRepo, auditService)
	vendorsHandler := vendors.NewHandler(logger, vendorsService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		AuthMiddleware: auth.Middleware(authService, logger),
		Guard:          pipeline,
		AuthHandler:    authHandler,
		AuthzHandler:   authzHandler,
		UsersHandler:   usersHandler,
		CatalogHandler: catalogHandler,
		VendorsHandler: vendorsHandler,
		AuditHandler:   auditHandler,
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
}
