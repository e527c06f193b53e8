package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/vantage-market/vantage-market/internal/jobs"
)

// AnomalyScanner is the slice of the audit service the scan job needs.
type AnomalyScanner interface {
	ScanAnomalies(ctx context.Context, window time.Duration, margin int) (int, error)
}

// AnomalyScanJob walks recent audit entries and flags risk outliers.
type AnomalyScanJob struct {
	Audit   AnomalyScanner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAnomalyScanJob initialises the anomaly scan handler.
func NewAnomalyScanJob(auditSvc AnomalyScanner, logger *slog.Logger, metrics *jobmetrics.Metrics) *AnomalyScanJob {
	return &AnomalyScanJob{Audit: auditSvc, Logger: logger, Metrics: metrics}
}

// Handle executes the anomaly scan logic.
func (j *AnomalyScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Audit == nil {
		return errors.New("anomaly scan: handler not configured")
	}
	var payload AnomalyScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.WindowHours <= 0 {
		payload.WindowHours = 24
	}
	if payload.Margin <= 0 {
		payload.Margin = 30
	}

	tracker := j.metrics().Track(TaskAuditAnomalyScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(
		slog.Int("window_hours", payload.WindowHours),
		slog.Int("margin", payload.Margin),
	)
	logger.Info("starting anomaly scan")

	start := time.Now()
	flagged, err := j.Audit.ScanAnomalies(ctx, time.Duration(payload.WindowHours)*time.Hour, payload.Margin)
	if err != nil {
		resultErr = err
		logger.Error("scan failed", slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddAnomalies(flagged)

	logger.Info("completed anomaly scan",
		slog.Int("flagged", flagged),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *AnomalyScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAuditAnomalyScan))
	}
	return slog.Default().With(slog.String("job", TaskAuditAnomalyScan))
}

func (j *AnomalyScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
