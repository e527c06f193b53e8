package users

import (
	"context"
	"fmt"

	"github.com/vantage-market/vantage-market/internal/audit"
	"github.com/vantage-market/vantage-market/internal/authz"
	"github.com/vantage-market/vantage-market/internal/shared"
)

// RepositoryPort defines data access methods for principals.
type RepositoryPort interface {
	List(ctx context.Context, page shared.Pagination) ([]Principal, error)
	Get(ctx context.Context, id int64) (Principal, error)
	Create(ctx context.Context, p Principal) (Principal, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// AuditRecorder records principal lifecycle events.
type AuditRecorder interface {
	Record(ctx context.Context, ev audit.Event) (audit.Entry, error)
}

// Service handles principal management logic. Role changes delegate to
// the authorization service so cache invalidation stays in one place.
type Service struct {
	repo  RepositoryPort
	authz *authz.Service
	audit AuditRecorder
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, authzService *authz.Service, recorder AuditRecorder) *Service {
	return &Service{repo: repo, authz: authzService, audit: recorder}
}

// List returns a page of principals.
func (s *Service) List(ctx context.Context, page shared.Pagination) ([]Principal, error) {
	return s.repo.List(ctx, page)
}

// Get returns a single principal.
func (s *Service) Get(ctx context.Context, id int64) (Principal, error) {
	return s.repo.Get(ctx, id)
}

// Create registers a new principal with its initial role bindings.
func (s *Service) Create(ctx context.Context, actor authz.Actor, p Principal) (Principal, error) {
	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return Principal{}, err
	}
	_, err = s.audit.Record(ctx, audit.Event{
		Action:     "principal.created",
		Module:     "users",
		Operation:  audit.OperationCreate,
		ActorID:    actor.ID,
		ActorType:  actor.Type,
		EntityType: "principal",
		EntityID:   fmt.Sprintf("%d", created.ID),
		Severity:   audit.SeverityLow,
		Compliance: true,
		Category:   audit.CategoryGDPR,
		Meta:       map[string]any{"email": created.Email, "actorType": created.ActorType},
	})
	if err != nil {
		return Principal{}, err
	}
	return created, nil
}

// Deactivate disables a principal and drops its cached decisions so the
// next request re-evaluates against the disabled account.
func (s *Service) Deactivate(ctx context.Context, actor authz.Actor, id int64) error {
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return err
	}
	_, err := s.audit.Record(ctx, audit.Event{
		Action:     "principal.deactivated",
		Module:     "users",
		Operation:  audit.OperationUpdate,
		ActorID:    actor.ID,
		ActorType:  actor.Type,
		EntityType: "principal",
		EntityID:   fmt.Sprintf("%d", id),
		Severity:   audit.SeverityMedium,
		Compliance: true,
		Security:   true,
		Category:   audit.CategoryGDPR,
	})
	if err != nil {
		return err
	}
	return s.authz.InvalidatePrincipal(ctx, id)
}

// AssignRoles rebinds a principal's roles via the authorization service.
func (s *Service) AssignRoles(ctx context.Context, actor authz.Actor, principalID, businessRoleID int64, assignedRoleID *int64) error {
	if _, err := s.repo.Get(ctx, principalID); err != nil {
		return err
	}
	return s.authz.AssignRoles(ctx, actor, principalID, businessRoleID, assignedRoleID)
}
