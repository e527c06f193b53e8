package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/vantage-market/vantage-market/internal/app"
	"github.com/vantage-market/vantage-market/internal/audit"
	jobmetrics "github.com/vantage-market/vantage-market/internal/jobs"
	"github.com/vantage-market/vantage-market/internal/platform/db"
	"github.com/vantage-market/vantage-market/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	riskCfg := audit.DefaultRiskConfig()
	riskCfg.AllowedCountries = cfg.AllowedCountries()
	auditRepo := audit.NewRepository(pool)
	auditService, err := audit.NewService(auditRepo, []byte(cfg.AuditHMACSecret), riskCfg, audit.DefaultRetentionConfig(), logger)
	if err != nil {
		logger.Error("init audit service", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := jobmetrics.NewMetrics(nil)
	exportJob := jobs.NewAuditExportJob(auditService, cfg.AuditExportDir, logger, metrics)
	anomalyJob := jobs.NewAnomalyScanJob(auditService, logger, metrics)

	anomalyTask, err := jobs.NewAnomalyScanTask(jobs.AnomalyScanPayload{WindowHours: 24, Margin: 30})
	if err != nil {
		logger.Error("build anomaly task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuditExport, Handler: exportJob.Handle},
			{Type: jobs.TaskAuditAnomalyScan, Handler: anomalyJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "30 1 * * *", Task: anomalyTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
