package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/vantage-market/vantage-market/internal/audit"
	jobmetrics "github.com/vantage-market/vantage-market/internal/jobs"
)

// AuditExporter is the slice of the audit service the export job needs.
type AuditExporter interface {
	Export(ctx context.Context, f audit.Filters) ([]audit.Entry, error)
}

// AuditExportJob writes CSV compliance exports to the local export
// directory. Delivery to long-term storage happens out of process.
type AuditExportJob struct {
	Audit   AuditExporter
	Dir     string
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAuditExportJob initialises the export handler.
func NewAuditExportJob(auditSvc AuditExporter, dir string, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditExportJob {
	return &AuditExportJob{Audit: auditSvc, Dir: dir, Logger: logger, Metrics: metrics}
}

// Handle executes one export run.
func (j *AuditExportJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Audit == nil {
		return errors.New("audit export: handler not configured")
	}
	var payload AuditExportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	filters, err := payload.filters()
	if err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskAuditExport)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(
		slog.String("from", payload.From),
		slog.String("to", payload.To),
		slog.String("module", payload.Module),
	)
	logger.Info("starting audit export")

	entries, err := j.Audit.Export(ctx, filters)
	if err != nil {
		resultErr = err
		logger.Error("export query failed", slog.Any("error", err))
		return resultErr
	}

	dir := j.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		resultErr = fmt.Errorf("audit export: %w", err)
		return resultErr
	}
	path := filepath.Join(dir, fmt.Sprintf("audit-export-%s.csv", uuid.NewString()))
	file, err := os.Create(path)
	if err != nil {
		resultErr = fmt.Errorf("audit export: %w", err)
		return resultErr
	}
	defer file.Close()

	if err := audit.WriteCSV(file, entries); err != nil {
		resultErr = fmt.Errorf("audit export: %w", err)
		logger.Error("export write failed", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed audit export",
		slog.Int("entries", len(entries)),
		slog.String("path", path),
	)
	return resultErr
}

func (p AuditExportPayload) filters() (audit.Filters, error) {
	var f audit.Filters
	if p.From != "" {
		from, err := time.Parse(time.RFC3339, p.From)
		if err != nil {
			return audit.Filters{}, err
		}
		f.From = from
	}
	if p.To != "" {
		to, err := time.Parse(time.RFC3339, p.To)
		if err != nil {
			return audit.Filters{}, err
		}
		f.To = to
	}
	f.Module = p.Module
	return f, nil
}

func (j *AuditExportJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAuditExport))
	}
	return slog.Default().With(slog.String("job", TaskAuditExport))
}

func (j *AuditExportJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
