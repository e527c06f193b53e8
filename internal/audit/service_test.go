package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vantage-market/vantage-market/internal/shared"
)

type stubAuditRepo struct {
	inserted  []Entry
	insertErr error

	listRows []Entry
	lastList Filters

	mean      float64
	meanCount int
	outliers  []Entry
	lastSince time.Time
	lastMin   int
}

func (s *stubAuditRepo) Insert(ctx context.Context, e Entry) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, e)
	return nil
}

func (s *stubAuditRepo) List(ctx context.Context, f Filters) ([]Entry, error) {
	s.lastList = f
	if f.PageSize > 0 && len(s.listRows) > f.PageSize {
		return s.listRows[:f.PageSize], nil
	}
	return s.listRows, nil
}

func (s *stubAuditRepo) MeanRiskSince(ctx context.Context, since time.Time) (float64, int, error) {
	s.lastSince = since
	return s.mean, s.meanCount, nil
}

func (s *stubAuditRepo) ListAboveRisk(ctx context.Context, since time.Time, minScore int) ([]Entry, error) {
	s.lastMin = minScore
	return s.outliers, nil
}

func newTestService(t *testing.T, repo Repository) *Service {
	t.Helper()
	svc, err := NewService(repo, []byte("test-secret"), DefaultRiskConfig(), DefaultRetentionConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.Now = func() time.Time {
		return time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	}
	return svc
}

func TestNewServiceRejectsEmptySecret(t *testing.T) {
	if _, err := NewService(&stubAuditRepo{}, nil, DefaultRiskConfig(), DefaultRetentionConfig(), nil); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestRecordDerivesWriteTimeFields(t *testing.T) {
	repo := &stubAuditRepo{}
	svc := newTestService(t, repo)

	entry, err := svc.Record(context.Background(), Event{
		Action:     "vendor.approve",
		Module:     "vendors",
		ActorID:    "42",
		EntityType: "vendor",
		EntityID:   "7",
		Severity:   SeverityMedium,
		Operation:  OperationApprove,
		Compliance: true,
		Financial:  true,
		Amount:     75000,
		Currency:   "USD",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if entry.ID == uuid.Nil {
		t.Fatalf("expected generated id")
	}
	if entry.Checksum == "" {
		t.Fatalf("flagged entry must carry a checksum")
	}
	if !VerifyChecksum([]byte("test-secret"), entry) {
		t.Fatalf("stored checksum does not verify")
	}
	// medium 30 + approve/vendor 10 + amount>50000 25
	if entry.RiskScore != 65 {
		t.Fatalf("expected risk 65, got %d", entry.RiskScore)
	}
	if want := entry.CreatedAt.AddDate(10, 0, 0); !entry.RetentionDate.Equal(want) {
		t.Fatalf("expected financial retention %s, got %s", want, entry.RetentionDate)
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(repo.inserted))
	}
}

func TestRecordSkipsChecksumForUnflaggedEvents(t *testing.T) {
	repo := &stubAuditRepo{}
	svc := newTestService(t, repo)

	entry, err := svc.Record(context.Background(), Event{
		Action:  "authz.decision.allow",
		Module:  "authz",
		ActorID: "42",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if entry.Checksum != "" {
		t.Fatalf("unflagged entry must not carry a checksum")
	}
	if entry.Severity != SeverityLow {
		t.Fatalf("expected severity default low, got %s", entry.Severity)
	}
	if entry.ActorType != ActorUser {
		t.Fatalf("expected actor type default user, got %s", entry.ActorType)
	}
}

func TestRecordRequiresActionAndModule(t *testing.T) {
	svc := newTestService(t, &stubAuditRepo{})
	if _, err := svc.Record(context.Background(), Event{Module: "vendors"}); err == nil {
		t.Fatalf("expected error for missing action")
	}
	if _, err := svc.Record(context.Background(), Event{Action: "vendor.approve"}); err == nil {
		t.Fatalf("expected error for missing module")
	}
}

func TestRecordSurfacesPersistenceFailure(t *testing.T) {
	repo := &stubAuditRepo{insertErr: fmt.Errorf("connection refused")}
	svc := newTestService(t, repo)

	_, err := svc.Record(context.Background(), Event{Action: "vendor.approve", Module: "vendors"})
	if !errors.Is(err, shared.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}

func TestQueryPaging(t *testing.T) {
	rows := make([]Entry, 5)
	for i := range rows {
		rows[i] = Entry{ID: uuid.New(), Action: "x", Module: "m"}
	}
	repo := &stubAuditRepo{listRows: rows}
	svc := newTestService(t, repo)

	result, err := svc.Query(context.Background(), Filters{Page: 2, PageSize: 4})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if repo.lastList.PageSize != 5 {
		t.Fatalf("expected probe page size 5, got %d", repo.lastList.PageSize)
	}
	if len(result.Rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(result.Rows))
	}
	if !result.Paging.HasNext {
		t.Fatalf("expected hasNext true")
	}
	if result.Paging.NextPage != 3 || result.Paging.PrevPage != 1 {
		t.Fatalf("unexpected paging %+v", result.Paging)
	}
}

func TestQueryLastPage(t *testing.T) {
	repo := &stubAuditRepo{listRows: []Entry{{ID: uuid.New(), Action: "x", Module: "m"}}}
	svc := newTestService(t, repo)

	result, err := svc.Query(context.Background(), Filters{Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if result.Paging.HasNext {
		t.Fatalf("expected hasNext false")
	}
	if result.Paging.NextPage != 0 || result.Paging.PrevPage != 0 {
		t.Fatalf("unexpected paging %+v", result.Paging)
	}
}

func TestExportIgnoresPaging(t *testing.T) {
	repo := &stubAuditRepo{listRows: []Entry{{}, {}, {}}}
	svc := newTestService(t, repo)

	rows, err := svc.Export(context.Background(), Filters{Page: 3, PageSize: 1})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected all rows, got %d", len(rows))
	}
	if repo.lastList.Page != 0 || repo.lastList.PageSize != 0 {
		t.Fatalf("export must zero paging, got %+v", repo.lastList)
	}
}

func TestScanAnomaliesFlagsOutliers(t *testing.T) {
	outlier := Entry{ID: uuid.New(), Action: "vendor.suspend", Module: "vendors", RiskScore: 95}
	alreadyFlagged := Entry{ID: uuid.New(), Action: ActionAnomalyDetected, Module: "audit", RiskScore: 90}
	repo := &stubAuditRepo{
		mean:      30,
		meanCount: 12,
		outliers:  []Entry{outlier, alreadyFlagged},
	}
	svc := newTestService(t, repo)

	flagged, err := svc.ScanAnomalies(context.Background(), 24*time.Hour, 30)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if flagged != 1 {
		t.Fatalf("expected 1 flagged entry, got %d", flagged)
	}
	if repo.lastMin != 60 {
		t.Fatalf("expected threshold mean+margin=60, got %d", repo.lastMin)
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("expected 1 new audit entry, got %d", len(repo.inserted))
	}
	got := repo.inserted[0]
	if got.Action != ActionAnomalyDetected {
		t.Fatalf("unexpected action %s", got.Action)
	}
	if !got.IsSecurityEvent || !got.IsAnomaly {
		t.Fatalf("anomaly entry must be a flagged security event: %+v", got)
	}
	if got.EntityID != outlier.ID.String() {
		t.Fatalf("anomaly entry must reference the outlier, got %s", got.EntityID)
	}
	if got.ActorType != ActorSystem {
		t.Fatalf("expected system actor, got %s", got.ActorType)
	}
}

func TestScanAnomaliesEmptyWindow(t *testing.T) {
	repo := &stubAuditRepo{meanCount: 0}
	svc := newTestService(t, repo)

	flagged, err := svc.ScanAnomalies(context.Background(), 24*time.Hour, 30)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if flagged != 0 {
		t.Fatalf("expected no flags on an empty window, got %d", flagged)
	}
	if len(repo.inserted) != 0 {
		t.Fatalf("no entries should be written for an empty window")
	}
}
