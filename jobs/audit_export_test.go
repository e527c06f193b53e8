package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/vantage-market/vantage-market/internal/audit"
)

type stubExporter struct {
	filters audit.Filters
	entries []audit.Entry
	err     error
}

func (s *stubExporter) Export(ctx context.Context, f audit.Filters) ([]audit.Entry, error) {
	s.filters = f
	return s.entries, s.err
}

func TestAuditExportHandleWritesCSV(t *testing.T) {
	exporter := &stubExporter{entries: []audit.Entry{
		{
			ID:               uuid.New(),
			Action:           "vendor.approved",
			Module:           "vendors",
			ActorID:          "42",
			ActorType:        audit.ActorUser,
			Severity:         audit.SeverityMedium,
			IsFinancialEvent: true,
			MonetaryAmount:   1250000,
			Currency:         "USD",
			CreatedAt:        time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
			RetentionDate:    time.Date(2036, 3, 10, 10, 0, 0, 0, time.UTC),
		},
	}}
	dir := t.TempDir()
	job := NewAuditExportJob(exporter, dir, nil, nil)

	task, err := NewAuditExportTask(AuditExportPayload{
		From:   "2026-03-01T00:00:00Z",
		To:     "2026-03-31T00:00:00Z",
		Module: "vendors",
	})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if exporter.filters.Module != "vendors" {
		t.Fatalf("module filter not forwarded: %+v", exporter.filters)
	}
	if exporter.filters.From.IsZero() || exporter.filters.To.IsZero() {
		t.Fatalf("date filters not parsed: %+v", exporter.filters)
	}

	files, err := filepath.Glob(filepath.Join(dir, "audit-export-*.csv"))
	if err != nil || len(files) != 1 {
		t.Fatalf("expected one export file, got %v (err %v)", files, err)
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	body := string(data)
	if !strings.Contains(body, "vendor.approved") {
		t.Fatalf("export missing entry: %s", body)
	}
	if !strings.Contains(body, "1,250,000.00") {
		t.Fatalf("export must group monetary amounts: %s", body)
	}
}

func TestAuditExportHandleBadPayloads(t *testing.T) {
	job := NewAuditExportJob(&stubExporter{}, t.TempDir(), nil, nil)

	for _, payload := range []string{
		"{not json",
		`{"from":"March 1st"}`,
	} {
		task := asynq.NewTask(TaskAuditExport, []byte(payload))
		if err := job.Handle(context.Background(), task); !errors.Is(err, asynq.SkipRetry) {
			t.Fatalf("payload %q: expected SkipRetry, got %v", payload, err)
		}
	}
}

func TestAuditExportHandleSurfacesQueryFailure(t *testing.T) {
	exporter := &stubExporter{err: errors.New("db down")}
	job := NewAuditExportJob(exporter, t.TempDir(), nil, nil)

	task, err := NewAuditExportTask(AuditExportPayload{})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := job.Handle(context.Background(), task); err == nil {
		t.Fatalf("expected query failure to surface for retry")
	}
}
