package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/vantage-market/vantage-market/internal/audit"
	"github.com/vantage-market/vantage-market/internal/authz"
	"github.com/vantage-market/vantage-market/internal/shared"
)

// RepositoryPort defines data access methods for products.
type RepositoryPort interface {
	List(ctx context.Context, vendorID int64, page shared.Pagination) ([]Product, error)
	Get(ctx context.Context, id int64) (Product, error)
	Create(ctx context.Context, p Product) (Product, error)
	UpdateStatus(ctx context.Context, id int64, status ProductStatus) error
	Delete(ctx context.Context, id int64) error
}

// AuditRecorder records catalog lifecycle events.
type AuditRecorder interface {
	Record(ctx context.Context, ev audit.Event) (audit.Entry, error)
}

// Service handles catalog business logic.
type Service struct {
	repo  RepositoryPort
	audit AuditRecorder
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, recorder AuditRecorder) *Service {
	return &Service{repo: repo, audit: recorder}
}

// List returns a page of products.
func (s *Service) List(ctx context.Context, vendorID int64, page shared.Pagination) ([]Product, error) {
	return s.repo.List(ctx, vendorID, page)
}

// Get returns a single product.
func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	return s.repo.Get(ctx, id)
}

// Create registers a draft listing for a vendor.
func (s *Service) Create(ctx context.Context, actor authz.Actor, p Product) (Product, error) {
	p.Status = ProductDraft
	p.Currency = strings.ToUpper(p.Currency)
	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return Product{}, err
	}
	if _, err := s.audit.Record(ctx, s.event(actor, "product.created", audit.OperationCreate, created)); err != nil {
		return Product{}, err
	}
	return created, nil
}

// Publish activates a draft listing.
func (s *Service) Publish(ctx context.Context, actor authz.Actor, id int64) error {
	product, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, id, ProductActive); err != nil {
		return err
	}
	_, err = s.audit.Record(ctx, s.event(actor, "product.published", audit.OperationUpdate, product))
	return err
}

// Delete removes a listing. The price rides along on the audit event so
// high-value removals score accordingly.
func (s *Service) Delete(ctx context.Context, actor authz.Actor, id int64) error {
	product, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	_, err = s.audit.Record(ctx, s.event(actor, "product.deleted", audit.OperationDelete, product))
	return err
}

func (s *Service) event(actor authz.Actor, action, operation string, p Product) audit.Event {
	return audit.Event{
		Action:     action,
		Module:     "catalog",
		Operation:  operation,
		ActorID:    actor.ID,
		ActorType:  actor.Type,
		EntityType: "product",
		EntityID:   fmt.Sprintf("%d", p.ID),
		Severity:   audit.SeverityLow,
		Financial:  true,
		Category:   audit.CategoryCommerce,
		Amount:     p.Price,
		Currency:   p.Currency,
		Meta:       map[string]any{"vendorId": p.VendorID, "sku": p.SKU},
	}
}
