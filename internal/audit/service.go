package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vantage-market/vantage-market/internal/shared"
)

// Repository persists and reads immutable audit entries.
type Repository interface {
	Insert(ctx context.Context, e Entry) error
	List(ctx context.Context, f Filters) ([]Entry, error)
	MeanRiskSince(ctx context.Context, since time.Time) (float64, int, error)
	ListAboveRisk(ctx context.Context, since time.Time, minScore int) ([]Entry, error)
}

// Filters narrows audit queries.
type Filters struct {
	From     time.Time
	To       time.Time
	Module   string
	ActorID  string
	Severity Severity
	Page     int
	PageSize int
}

// PagingInfo describes the window a query returned.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	NextPage int
	PrevPage int
}

// Result bundles query rows with paging metadata.
type Result struct {
	Rows   []Entry
	Paging PagingInfo
}

// EventObserver receives recorded entries for metrics. Implementations
// must not block.
type EventObserver interface {
	ObserveAuditEvent(severity string)
}

// Service derives checksums, risk scores and retention dates, and persists
// entries synchronously. Record sits on the request's critical path: a
// persistence failure fails the caller's request, it is never swallowed.
type Service struct {
	repo      Repository
	secret    []byte
	risk      RiskConfig
	retention RetentionConfig
	logger    *slog.Logger
	observer  EventObserver

	// Now is the clock used for write timestamps; tests override it.
	Now func() time.Time
}

// NewService constructs the audit writer. The secret keys every checksum and
// must be non-empty.
func NewService(repo Repository, secret []byte, risk RiskConfig, retention RetentionConfig, logger *slog.Logger) (*Service, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("audit: checksum secret required")
	}
	return &Service{
		repo:      repo,
		secret:    secret,
		risk:      risk,
		retention: retention,
		logger:    logger,
		Now:       time.Now,
	}, nil
}

// SetObserver attaches a metrics sink. Call before serving traffic.
func (s *Service) SetObserver(o EventObserver) {
	s.observer = o
}

// Record derives all write-time fields and persists the entry before
// returning it.
func (s *Service) Record(ctx context.Context, ev Event) (Entry, error) {
	if ev.Action == "" || ev.Module == "" {
		return Entry{}, fmt.Errorf("audit: event requires action and module")
	}
	if ev.Severity == "" {
		ev.Severity = SeverityLow
	}
	if ev.ActorType == "" {
		ev.ActorType = ActorUser
	}

	createdAt := ev.OccurredAt
	if createdAt.IsZero() {
		createdAt = s.Now().UTC()
	}

	entry := Entry{
		ID:         uuid.New(),
		Action:     ev.Action,
		Module:     ev.Module,
		ActorID:    ev.ActorID,
		ActorType:  ev.ActorType,
		EntityType: ev.EntityType,
		EntityID:   ev.EntityID,
		Severity:   ev.Severity,
		Operation:  ev.Operation,

		IsComplianceEvent: ev.Compliance,
		IsSecurityEvent:   ev.Security,
		IsFinancialEvent:  ev.Financial,
		Category:          ev.Category,

		MonetaryAmount: ev.Amount,
		Currency:       ev.Currency,
		IsB2B:          ev.B2B,

		Country:   ev.Country,
		IsAnomaly: ev.Anomaly,

		Meta: ev.Meta,

		CreatedAt: createdAt,
	}

	if entry.Flagged() {
		entry.Checksum = Checksum(s.secret, entry.Action, entry.ActorID, entry.EntityType, entry.EntityID, entry.CreatedAt)
	}
	entry.RiskScore = RiskScore(s.risk, ev, createdAt)
	entry.RetentionDate = RetentionDate(s.retention, ev, createdAt)

	if err := s.repo.Insert(ctx, entry); err != nil {
		return Entry{}, fmt.Errorf("%w: audit insert: %v", shared.ErrPersistence, err)
	}

	if s.observer != nil {
		s.observer.ObserveAuditEvent(string(entry.Severity))
	}

	if entry.IsCritical() && s.logger != nil {
		s.logger.Warn("critical audit entry",
			slog.String("action", entry.Action),
			slog.String("module", entry.Module),
			slog.Int("risk_score", entry.RiskScore))
	}

	return entry, nil
}

// Query returns a page of entries matching the filters, newest first.
func (s *Service) Query(ctx context.Context, f Filters) (Result, error) {
	if f.PageSize <= 0 {
		f.PageSize = 20
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}
	if f.Page <= 0 {
		f.Page = 1
	}

	probe := f
	probe.PageSize = f.PageSize + 1
	rows, err := s.repo.List(ctx, probe)
	if err != nil {
		return Result{}, fmt.Errorf("audit: query: %w", err)
	}

	hasNext := len(rows) > f.PageSize
	if hasNext {
		rows = rows[:f.PageSize]
	}
	paging := PagingInfo{Page: f.Page, PageSize: f.PageSize, HasNext: hasNext}
	if f.Page > 1 {
		paging.PrevPage = f.Page - 1
	}
	if hasNext {
		paging.NextPage = f.Page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every entry matching the filters without paging.
func (s *Service) Export(ctx context.Context, f Filters) ([]Entry, error) {
	f.Page = 0
	f.PageSize = 0
	rows, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("audit: export: %w", err)
	}
	return rows, nil
}

// ScanAnomalies records a fresh security event for every entry in the window
// whose risk deviates from the rolling mean by more than margin. Existing
// rows are never touched.
func (s *Service) ScanAnomalies(ctx context.Context, window time.Duration, margin int) (int, error) {
	since := s.Now().UTC().Add(-window)
	mean, count, err := s.repo.MeanRiskSince(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("audit: anomaly scan: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	threshold := int(mean) + margin
	outliers, err := s.repo.ListAboveRisk(ctx, since, threshold)
	if err != nil {
		return 0, fmt.Errorf("audit: anomaly scan: %w", err)
	}

	flagged := 0
	for _, outlier := range outliers {
		if outlier.Action == ActionAnomalyDetected {
			continue
		}
		_, err := s.Record(ctx, Event{
			Action:     ActionAnomalyDetected,
			Module:     "audit",
			ActorID:    "anomaly-scan",
			ActorType:  ActorSystem,
			EntityType: "audit_entry",
			EntityID:   outlier.ID.String(),
			Severity:   SeverityHigh,
			Security:   true,
			Anomaly:    true,
		})
		if err != nil {
			return flagged, err
		}
		flagged++
	}
	return flagged, nil
}

// ActionAnomalyDetected marks entries produced by the anomaly scan itself.
const ActionAnomalyDetected = "audit.anomaly.detected"
