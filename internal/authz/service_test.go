package authz

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/vantage-market/vantage-market/internal/shared"
)

type memoryStore struct {
	roles       map[int64]Role
	rolePerms   map[int64][]Permission
	permissions map[int64]Permission
	mappings    []RouteMapping
	holders     map[int64][]int64
	nextRoleID  int64
	nextMapID   int64

	assignedPrincipal int64
	assignedBusiness  int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		roles:       make(map[int64]Role),
		rolePerms:   make(map[int64][]Permission),
		permissions: make(map[int64]Permission),
		holders:     make(map[int64][]int64),
	}
}

func (m *memoryStore) ListRoles(ctx context.Context) ([]Role, error) {
	var out []Role
	for _, r := range m.roles {
		out = append(out, r)
	}
	return out, nil
}

func (m *memoryStore) GetRole(ctx context.Context, id int64) (Role, error) {
	r, ok := m.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return r, nil
}

func (m *memoryStore) CreateRole(ctx context.Context, name string, kind RoleKind, priority int) (Role, error) {
	m.nextRoleID++
	r := Role{ID: m.nextRoleID, Name: name, Kind: kind, Priority: priority}
	m.roles[r.ID] = r
	return r, nil
}

func (m *memoryStore) CloneRole(ctx context.Context, sourceID int64, name string) (Role, error) {
	src, ok := m.roles[sourceID]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	m.nextRoleID++
	r := Role{ID: m.nextRoleID, Name: name, Kind: src.Kind, Priority: src.Priority}
	m.roles[r.ID] = r
	m.rolePerms[r.ID] = append([]Permission(nil), m.rolePerms[sourceID]...)
	return r, nil
}

func (m *memoryStore) DeleteRole(ctx context.Context, id int64) error {
	delete(m.roles, id)
	delete(m.rolePerms, id)
	return nil
}

func (m *memoryStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	var out []Permission
	for _, p := range m.permissions {
		out = append(out, p)
	}
	return out, nil
}

func (m *memoryStore) EnsurePermission(ctx context.Context, name, resource, action string) (Permission, error) {
	for _, p := range m.permissions {
		if p.Name == name {
			return p, nil
		}
	}
	p := Permission{ID: int64(len(m.permissions) + 1), Name: name, Resource: resource, Action: action}
	m.permissions[p.ID] = p
	return p, nil
}

func (m *memoryStore) AttachPermission(ctx context.Context, roleID, permissionID int64) error {
	p, ok := m.permissions[permissionID]
	if !ok {
		return shared.ErrNotFound
	}
	m.rolePerms[roleID] = append(m.rolePerms[roleID], p)
	return nil
}

func (m *memoryStore) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	perms := m.rolePerms[roleID]
	for i, p := range perms {
		if p.ID == permissionID {
			m.rolePerms[roleID] = append(perms[:i], perms[i+1:]...)
			return nil
		}
	}
	return shared.ErrNotFound
}

func (m *memoryStore) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	return m.rolePerms[roleID], nil
}

func (m *memoryStore) PermissionsByName(ctx context.Context, names []string) ([]Permission, error) {
	var out []Permission
	for _, name := range names {
		for _, p := range m.permissions {
			if p.Name == name {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (m *memoryStore) ListRouteMappings(ctx context.Context) ([]RouteMapping, error) {
	return append([]RouteMapping(nil), m.mappings...), nil
}

func (m *memoryStore) UpsertRouteMapping(ctx context.Context, mapping RouteMapping) (RouteMapping, error) {
	for i, existing := range m.mappings {
		if existing.Method == mapping.Method && existing.Path == mapping.Path {
			mapping.ID = existing.ID
			m.mappings[i] = mapping
			return mapping, nil
		}
	}
	m.nextMapID++
	mapping.ID = m.nextMapID
	m.mappings = append(m.mappings, mapping)
	return mapping, nil
}

func (m *memoryStore) DeleteRouteMapping(ctx context.Context, id int64) error {
	for i, existing := range m.mappings {
		if existing.ID == id {
			m.mappings = append(m.mappings[:i], m.mappings[i+1:]...)
			return nil
		}
	}
	return shared.ErrNotFound
}

func (m *memoryStore) PrincipalIDsWithRole(ctx context.Context, roleID int64) ([]int64, error) {
	return m.holders[roleID], nil
}

func (m *memoryStore) SetPrincipalRoles(ctx context.Context, principalID, businessRoleID int64, assignedRoleID *int64) error {
	m.assignedPrincipal = principalID
	m.assignedBusiness = businessRoleID
	return nil
}

type recordingInvalidator struct {
	principals []int64
	globals    int
	err        error
}

func (r *recordingInvalidator) InvalidatePrincipal(ctx context.Context, principalID int64) error {
	if r.err != nil {
		return r.err
	}
	r.principals = append(r.principals, principalID)
	return nil
}

func (r *recordingInvalidator) InvalidateAll(ctx context.Context) error {
	if r.err != nil {
		return r.err
	}
	r.globals++
	return nil
}

type serviceFixture struct {
	svc      *Service
	store    *memoryStore
	cache    *recordingInvalidator
	registry *Registry
	auditor  *stubAuditor
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()
	store := newMemoryStore()
	cache := &recordingInvalidator{}
	registry := NewRegistry()
	auditor := &stubAuditor{}
	svc := NewService(store, cache, registry, auditor, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return serviceFixture{svc: svc, store: store, cache: cache, registry: registry, auditor: auditor}
}

var admin = Actor{ID: "1"}

func TestCreateRoleAuditsWithoutInvalidation(t *testing.T) {
	fx := newServiceFixture(t)

	role, err := fx.svc.CreateRole(context.Background(), admin, "merchandiser", RoleKindBusiness, 40)
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	if role.ID == 0 {
		t.Fatalf("expected assigned id")
	}
	if len(fx.auditor.events) != 1 || fx.auditor.events[0].Action != "authz.role.create" {
		t.Fatalf("unexpected audit events: %+v", fx.auditor.events)
	}
	if len(fx.cache.principals) != 0 || fx.cache.globals != 0 {
		t.Fatalf("creating a role must not invalidate anything")
	}
}

func TestCreateRoleRejectsBlankName(t *testing.T) {
	fx := newServiceFixture(t)
	if _, err := fx.svc.CreateRole(context.Background(), admin, "   ", RoleKindBusiness, 0); err == nil {
		t.Fatalf("expected error for blank name")
	}
}

func TestCloneRoleCopiesPermissions(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	src, _ := fx.svc.CreateRole(ctx, admin, "viewer", RoleKindBusiness, 10)
	perm, _ := fx.svc.EnsurePermission(ctx, "products.view", "products", "view")
	if err := fx.svc.AssignPermission(ctx, admin, src.ID, perm.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}

	clone, err := fx.svc.CloneRole(ctx, admin, src.ID, "viewer-copy")
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	perms, _ := fx.store.RolePermissions(ctx, clone.ID)
	if len(perms) != 1 || perms[0].Name != "products.view" {
		t.Fatalf("clone did not copy permissions: %+v", perms)
	}
}

func TestDeleteRoleInvalidatesHolders(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	role, _ := fx.svc.CreateRole(ctx, admin, "viewer", RoleKindBusiness, 10)
	fx.store.holders[role.ID] = []int64{7, 8}

	if err := fx.svc.DeleteRole(ctx, admin, role.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(fx.cache.principals) != 2 {
		t.Fatalf("expected both holders invalidated, got %v", fx.cache.principals)
	}
	last := fx.auditor.events[len(fx.auditor.events)-1]
	if last.Action != "authz.role.delete" {
		t.Fatalf("unexpected last event %s", last.Action)
	}
}

func TestAssignPermissionInvalidatesRoleHolders(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	role, _ := fx.svc.CreateRole(ctx, admin, "viewer", RoleKindBusiness, 10)
	perm, _ := fx.svc.EnsurePermission(ctx, "products.view", "products", "view")
	fx.store.holders[role.ID] = []int64{3}

	if err := fx.svc.AssignPermission(ctx, admin, role.ID, perm.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if len(fx.cache.principals) != 1 || fx.cache.principals[0] != 3 {
		t.Fatalf("expected holder 3 invalidated, got %v", fx.cache.principals)
	}
}

func TestAssignPermissionAuditFailureStopsInvalidation(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	role, _ := fx.svc.CreateRole(ctx, admin, "viewer", RoleKindBusiness, 10)
	perm, _ := fx.svc.EnsurePermission(ctx, "products.view", "products", "view")
	fx.store.holders[role.ID] = []int64{3}
	fx.auditor.err = fmt.Errorf("%w: audit down", shared.ErrPersistence)

	if err := fx.svc.AssignPermission(ctx, admin, role.ID, perm.ID); err == nil {
		t.Fatalf("expected audit failure to surface")
	}
	if len(fx.cache.principals) != 0 {
		t.Fatalf("invalidation must not run when the audit write failed")
	}
}

func TestAssignRolesValidatesAndInvalidates(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	business, _ := fx.svc.CreateRole(ctx, admin, "viewer", RoleKindBusiness, 10)

	if err := fx.svc.AssignRoles(ctx, admin, 7, 999, nil); err == nil {
		t.Fatalf("expected error for unknown business role")
	}

	if err := fx.svc.AssignRoles(ctx, admin, 7, business.ID, nil); err != nil {
		t.Fatalf("assign roles: %v", err)
	}
	if fx.store.assignedPrincipal != 7 || fx.store.assignedBusiness != business.ID {
		t.Fatalf("store not updated: %+v", fx.store)
	}
	if len(fx.cache.principals) != 1 || fx.cache.principals[0] != 7 {
		t.Fatalf("expected principal 7 invalidated, got %v", fx.cache.principals)
	}
}

func TestSetRouteMappingReloadsRegistryAndInvalidatesAll(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	saved, err := fx.svc.SetRouteMapping(ctx, admin, RouteMapping{
		Method:      "get",
		Path:        "/products",
		Permissions: []string{"products.view"},
	})
	if err != nil {
		t.Fatalf("set mapping: %v", err)
	}
	if saved.Method != "GET" {
		t.Fatalf("method must be upper-cased, got %s", saved.Method)
	}
	if _, ok := fx.registry.Lookup("GET", "/products"); !ok {
		t.Fatalf("registry must be live immediately after the edit")
	}
	if fx.cache.globals != 1 {
		t.Fatalf("expected one global invalidation, got %d", fx.cache.globals)
	}
}

func TestRemoveRouteMappingFallsBackToDeny(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()

	saved, err := fx.svc.SetRouteMapping(ctx, admin, RouteMapping{Method: "GET", Path: "/products"})
	if err != nil {
		t.Fatalf("set mapping: %v", err)
	}
	if err := fx.svc.RemoveRouteMapping(ctx, admin, saved.ID); err != nil {
		t.Fatalf("remove mapping: %v", err)
	}
	if _, ok := fx.registry.Lookup("GET", "/products"); ok {
		t.Fatalf("removed mapping must be gone from the registry")
	}
	if fx.cache.globals != 2 {
		t.Fatalf("expected global invalidation on both edits, got %d", fx.cache.globals)
	}
}
