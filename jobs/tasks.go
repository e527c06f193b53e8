package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/vantage-market/vantage-market/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditExport produces a CSV compliance export for a date range.
	TaskAuditExport = "audit:export"
	// TaskAuditAnomalyScan flags audit entries whose risk deviates from
	// the rolling mean.
	TaskAuditAnomalyScan = "audit:anomaly_scan"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// AuditExportPayload selects the entries included in an export run.
type AuditExportPayload struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Module string `json:"module,omitempty"`
}

// NewAuditExportTask constructs an Asynq task.
func NewAuditExportTask(payload AuditExportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditExport, data), nil
}

// AnomalyScanPayload tunes a single anomaly scan run.
type AnomalyScanPayload struct {
	WindowHours int `json:"windowHours"`
	Margin      int `json:"margin"`
}

// NewAnomalyScanTask constructs an Asynq task.
func NewAnomalyScanTask(payload AnomalyScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditAnomalyScan, data), nil
}
