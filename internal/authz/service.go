package authz

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/vantage-market/vantage-market/internal/audit"
)

// Store captures the persistence operations the management surface needs.
// Implemented by *Repository; stubbed in tests.
type Store interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, name string, kind RoleKind, priority int) (Role, error)
	CloneRole(ctx context.Context, sourceID int64, name string) (Role, error)
	DeleteRole(ctx context.Context, id int64) error

	ListPermissions(ctx context.Context) ([]Permission, error)
	EnsurePermission(ctx context.Context, name, resource, action string) (Permission, error)
	AttachPermission(ctx context.Context, roleID, permissionID int64) error
	DetachPermission(ctx context.Context, roleID, permissionID int64) error
	RolePermissions(ctx context.Context, roleID int64) ([]Permission, error)

	ListRouteMappings(ctx context.Context) ([]RouteMapping, error)
	UpsertRouteMapping(ctx context.Context, m RouteMapping) (RouteMapping, error)
	DeleteRouteMapping(ctx context.Context, id int64) error

	PrincipalIDsWithRole(ctx context.Context, roleID int64) ([]int64, error)
	SetPrincipalRoles(ctx context.Context, principalID, businessRoleID int64, assignedRoleID *int64) error
}

// Invalidator is the slice of the decision cache the service drives.
type Invalidator interface {
	InvalidatePrincipal(ctx context.Context, principalID int64) error
	InvalidateAll(ctx context.Context) error
}

// Service drives the role-management surface. Every mutation that can change
// a permission set commits first, records its audit event, and invalidates
// the affected cached decisions as the final step before acknowledging
// success, bounding staleness to zero immediately after an edit.
type Service struct {
	store    Store
	cache    Invalidator
	registry *Registry
	auditor  AuditRecorder
	logger   *slog.Logger
}

// NewService constructs the management service.
func NewService(store Store, cache Invalidator, registry *Registry, auditor AuditRecorder, logger *slog.Logger) *Service {
	return &Service{store: store, cache: cache, registry: registry, auditor: auditor, logger: logger}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// GetRole fetches one role with its permissions.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, []Permission, error) {
	role, err := s.store.GetRole(ctx, id)
	if err != nil {
		return Role{}, nil, err
	}
	perms, err := s.store.RolePermissions(ctx, id)
	if err != nil {
		return Role{}, nil, err
	}
	return role, perms, nil
}

// CreateRole inserts a new role. No cached decision can reference a role
// that did not exist, so no invalidation is needed.
func (s *Service) CreateRole(ctx context.Context, actor Actor, name string, kind RoleKind, priority int) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("authz: role name required")
	}
	role, err := s.store.CreateRole(ctx, name, kind, priority)
	if err != nil {
		return Role{}, err
	}
	if err := s.recordRoleEvent(ctx, actor, "authz.role.create", audit.OperationCreate, role); err != nil {
		return Role{}, err
	}
	return role, nil
}

// CloneRole copies a role together with its permission assignments.
func (s *Service) CloneRole(ctx context.Context, actor Actor, sourceID int64, name string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("authz: role name required")
	}
	role, err := s.store.CloneRole(ctx, sourceID, name)
	if err != nil {
		return Role{}, err
	}
	if err := s.recordRoleEvent(ctx, actor, "authz.role.clone", audit.OperationCreate, role); err != nil {
		return Role{}, err
	}
	return role, nil
}

// DeleteRole removes a role and purges every cached decision of principals
// that held it.
func (s *Service) DeleteRole(ctx context.Context, actor Actor, id int64) error {
	role, err := s.store.GetRole(ctx, id)
	if err != nil {
		return err
	}
	holders, err := s.store.PrincipalIDsWithRole(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteRole(ctx, id); err != nil {
		return err
	}
	if err := s.recordRoleEvent(ctx, actor, "authz.role.delete", audit.OperationDelete, role); err != nil {
		return err
	}
	return s.invalidateHolders(ctx, holders)
}

// ListPermissions returns the permission catalogue.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

// EnsurePermission upserts a permission definition.
func (s *Service) EnsurePermission(ctx context.Context, name, resource, action string) (Permission, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return Permission{}, fmt.Errorf("authz: permission name required")
	}
	return s.store.EnsurePermission(ctx, name, resource, action)
}

// AssignPermission grants a permission to a role and invalidates every
// principal holding that role before returning.
func (s *Service) AssignPermission(ctx context.Context, actor Actor, roleID, permissionID int64) error {
	if err := s.store.AttachPermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	if err := s.recordPermissionEvent(ctx, actor, "authz.permission.assign", roleID, permissionID); err != nil {
		return err
	}
	return s.invalidateRole(ctx, roleID)
}

// RevokePermission removes a permission from a role and invalidates every
// principal holding that role before returning.
func (s *Service) RevokePermission(ctx context.Context, actor Actor, roleID, permissionID int64) error {
	if err := s.store.DetachPermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	if err := s.recordPermissionEvent(ctx, actor, "authz.permission.revoke", roleID, permissionID); err != nil {
		return err
	}
	return s.invalidateRole(ctx, roleID)
}

// AssignRoles re-points a principal's business and assigned roles and purges
// that principal's cached decisions before returning.
func (s *Service) AssignRoles(ctx context.Context, actor Actor, principalID, businessRoleID int64, assignedRoleID *int64) error {
	if _, err := s.store.GetRole(ctx, businessRoleID); err != nil {
		return err
	}
	if assignedRoleID != nil {
		if _, err := s.store.GetRole(ctx, *assignedRoleID); err != nil {
			return err
		}
	}
	if err := s.store.SetPrincipalRoles(ctx, principalID, businessRoleID, assignedRoleID); err != nil {
		return err
	}
	ev := audit.Event{
		Action:     "authz.principal.assign_roles",
		Module:     "authz",
		ActorID:    actor.ID,
		ActorType:  actor.Type,
		EntityType: "principal",
		EntityID:   strconv.FormatInt(principalID, 10),
		Severity:   audit.SeverityMedium,
		Security:   true,
		Operation:  audit.OperationUpdate,
	}
	if _, err := s.auditor.Record(ctx, ev); err != nil {
		return err
	}
	return s.cache.InvalidatePrincipal(ctx, principalID)
}

// ListRouteMappings returns the registry's backing rows.
func (s *Service) ListRouteMappings(ctx context.Context) ([]RouteMapping, error) {
	return s.store.ListRouteMappings(ctx)
}

// SetRouteMapping creates or updates a mapping, reloads the registry
// snapshot, and drops every cached decision: route identity may have
// changed, so the per-principal bound is not enough.
func (s *Service) SetRouteMapping(ctx context.Context, actor Actor, m RouteMapping) (RouteMapping, error) {
	m.Method = strings.ToUpper(strings.TrimSpace(m.Method))
	m.Path = strings.TrimSpace(m.Path)
	if m.Method == "" || m.Path == "" {
		return RouteMapping{}, fmt.Errorf("authz: route mapping requires method and path")
	}
	saved, err := s.store.UpsertRouteMapping(ctx, m)
	if err != nil {
		return RouteMapping{}, err
	}
	if err := s.reloadRegistry(ctx); err != nil {
		return RouteMapping{}, err
	}
	ev := audit.Event{
		Action:     "authz.route.map",
		Module:     "authz",
		ActorID:    actor.ID,
		ActorType:  actor.Type,
		EntityType: "route",
		EntityID:   saved.Method + " " + saved.Path,
		Severity:   audit.SeverityMedium,
		Security:   true,
		Operation:  audit.OperationUpdate,
	}
	if _, err := s.auditor.Record(ctx, ev); err != nil {
		return RouteMapping{}, err
	}
	if err := s.cache.InvalidateAll(ctx); err != nil {
		return RouteMapping{}, err
	}
	return saved, nil
}

// RemoveRouteMapping deletes a mapping; the route falls back to deny.
func (s *Service) RemoveRouteMapping(ctx context.Context, actor Actor, id int64) error {
	if err := s.store.DeleteRouteMapping(ctx, id); err != nil {
		return err
	}
	if err := s.reloadRegistry(ctx); err != nil {
		return err
	}
	ev := audit.Event{
		Action:     "authz.route.unmap",
		Module:     "authz",
		ActorID:    actor.ID,
		ActorType:  actor.Type,
		EntityType: "route",
		EntityID:   strconv.FormatInt(id, 10),
		Severity:   audit.SeverityMedium,
		Security:   true,
		Operation:  audit.OperationDelete,
	}
	if _, err := s.auditor.Record(ctx, ev); err != nil {
		return err
	}
	return s.cache.InvalidateAll(ctx)
}

// InvalidatePrincipal drops one principal's cached decisions. Exposed for
// collaborators that change principal state outside this service.
func (s *Service) InvalidatePrincipal(ctx context.Context, principalID int64) error {
	return s.cache.InvalidatePrincipal(ctx, principalID)
}

// ReloadRegistry rebuilds the in-memory route snapshot from the store.
func (s *Service) ReloadRegistry(ctx context.Context) error {
	return s.reloadRegistry(ctx)
}

func (s *Service) reloadRegistry(ctx context.Context) error {
	mappings, err := s.store.ListRouteMappings(ctx)
	if err != nil {
		return fmt.Errorf("authz: reload registry: %w", err)
	}
	s.registry.Replace(mappings)
	return nil
}

func (s *Service) invalidateRole(ctx context.Context, roleID int64) error {
	holders, err := s.store.PrincipalIDsWithRole(ctx, roleID)
	if err != nil {
		return err
	}
	return s.invalidateHolders(ctx, holders)
}

func (s *Service) invalidateHolders(ctx context.Context, holders []int64) error {
	for _, id := range holders {
		if err := s.cache.InvalidatePrincipal(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Actor identifies who performed a management operation, for the audit
// trail.
type Actor struct {
	ID   string
	Type audit.ActorType
}

// ActorFromPrincipal converts the request principal into an audit actor.
func ActorFromPrincipal(p *Principal) Actor {
	if p == nil {
		return Actor{ID: "anonymous", Type: audit.ActorUser}
	}
	actorType := audit.ActorUser
	if p.ActorType != "" {
		actorType = audit.ActorType(p.ActorType)
	}
	return Actor{ID: strconv.FormatInt(p.ID, 10), Type: actorType}
}

func (s *Service) recordRoleEvent(ctx context.Context, actor Actor, action, operation string, role Role) error {
	ev := audit.Event{
		Action:     action,
		Module:     "authz",
		ActorID:    actor.ID,
		ActorType:  actor.Type,
		EntityType: "role",
		EntityID:   strconv.FormatInt(role.ID, 10),
		Severity:   audit.SeverityMedium,
		Security:   true,
		Operation:  operation,
		Meta:       map[string]any{"name": role.Name, "kind": string(role.Kind)},
	}
	_, err := s.auditor.Record(ctx, ev)
	return err
}

func (s *Service) recordPermissionEvent(ctx context.Context, actor Actor, action string, roleID, permissionID int64) error {
	ev := audit.Event{
		Action:     action,
		Module:     "authz",
		ActorID:    actor.ID,
		ActorType:  actor.Type,
		EntityType: "role_permission",
		EntityID:   fmt.Sprintf("%d:%d", roleID, permissionID),
		Severity:   audit.SeverityMedium,
		Security:   true,
		Operation:  audit.OperationUpdate,
	}
	_, err := s.auditor.Record(ctx, ev)
	return err
}
