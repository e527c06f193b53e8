package vendors

import (
	"context"
	"fmt"

	"github.com/vantage-market/vantage-market/internal/audit"
	"github.com/vantage-market/vantage-market/internal/authz"
	"github.com/vantage-market/vantage-market/internal/shared"
)

// RepositoryPort defines data access methods for vendors.
type RepositoryPort interface {
	List(ctx context.Context, status VendorStatus, page shared.Pagination) ([]Vendor, error)
	Get(ctx context.Context, id int64) (Vendor, error)
	Create(ctx context.Context, v Vendor) (Vendor, error)
	UpdateStatus(ctx context.Context, id int64, status VendorStatus) error
}

// AuditRecorder records vendor lifecycle events.
type AuditRecorder interface {
	Record(ctx context.Context, ev audit.Event) (audit.Entry, error)
}

// Service handles vendor onboarding logic. Approval and suspension carry
// real money consequences, so both are flagged for compliance review.
type Service struct {
	repo  RepositoryPort
	audit AuditRecorder
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, recorder AuditRecorder) *Service {
	return &Service{repo: repo, audit: recorder}
}

// List returns a page of vendors.
func (s *Service) List(ctx context.Context, status VendorStatus, page shared.Pagination) ([]Vendor, error) {
	return s.repo.List(ctx, status, page)
}

// Get returns a single vendor.
func (s *Service) Get(ctx context.Context, id int64) (Vendor, error) {
	return s.repo.Get(ctx, id)
}

// Create registers a vendor in pending state.
func (s *Service) Create(ctx context.Context, actor authz.Actor, v Vendor) (Vendor, error) {
	v.Status = VendorPending
	created, err := s.repo.Create(ctx, v)
	if err != nil {
		return Vendor{}, err
	}
	ev := s.event(actor, "vendor.created", audit.OperationCreate, created)
	if _, err := s.audit.Record(ctx, ev); err != nil {
		return Vendor{}, err
	}
	return created, nil
}

// Approve grants a pending vendor access to sell. Only pending vendors
// can be approved; re-approving a suspended vendor goes through Reinstate
// semantics deliberately absent here.
func (s *Service) Approve(ctx context.Context, actor authz.Actor, id int64) error {
	vendor, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if vendor.Status != VendorPending {
		return fmt.Errorf("vendor %d is %s: %w", id, vendor.Status, shared.ErrDuplicate)
	}
	if err := s.repo.UpdateStatus(ctx, id, VendorApproved); err != nil {
		return err
	}
	ev := s.event(actor, "vendor.approved", audit.OperationApprove, vendor)
	ev.Severity = audit.SeverityMedium
	_, err = s.audit.Record(ctx, ev)
	return err
}

// Suspend cuts off an approved vendor.
func (s *Service) Suspend(ctx context.Context, actor authz.Actor, id int64, reason string) error {
	vendor, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, id, VendorSuspended); err != nil {
		return err
	}
	ev := s.event(actor, "vendor.suspended", audit.OperationUpdate, vendor)
	ev.Severity = audit.SeverityHigh
	ev.Security = true
	ev.Meta["reason"] = reason
	_, err = s.audit.Record(ctx, ev)
	return err
}

func (s *Service) event(actor authz.Actor, action, operation string, v Vendor) audit.Event {
	return audit.Event{
		Action:     action,
		Module:     "vendors",
		Operation:  operation,
		ActorID:    actor.ID,
		ActorType:  actor.Type,
		EntityType: "vendor",
		EntityID:   fmt.Sprintf("%d", v.ID),
		Severity:   audit.SeverityLow,
		Compliance: true,
		Financial:  true,
		Category:   audit.CategoryCommerce,
		Amount:     v.CreditLimit,
		Currency:   v.Currency,
		B2B:        v.IsB2B,
		Country:    v.Country,
		Meta:       map[string]any{"name": v.Name, "status": string(v.Status)},
	}
}
