package authz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/vantage-market/vantage-market/internal/audit"
	"github.com/vantage-market/vantage-market/internal/shared"
)

type stubPermStore struct {
	rows map[string]Permission
	err  error
}

func (s *stubPermStore) PermissionsByName(ctx context.Context, names []string) ([]Permission, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []Permission
	for _, name := range names {
		if row, ok := s.rows[name]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

type stubAuditor struct {
	events []audit.Event
	err    error
}

func (s *stubAuditor) Record(ctx context.Context, ev audit.Event) (audit.Entry, error) {
	if s.err != nil {
		return audit.Entry{}, s.err
	}
	s.events = append(s.events, ev)
	return audit.Entry{Action: ev.Action}, nil
}

type engineFixture struct {
	engine  *Engine
	auditor *stubAuditor
	roles   *stubRoleStore
	perms   *stubPermStore
}

func newEngineFixture(t *testing.T) engineFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	registry := NewRegistry()
	registry.Replace([]RouteMapping{
		{ID: 1, Method: "GET", Path: "/healthz", IsPublic: true},
		{ID: 2, Method: "GET", Path: "/products", Permissions: []string{"products.view"}},
		{ID: 3, Method: "DELETE", Path: "/products/:id", Permissions: []string{"products.view", "products.delete"}},
		{ID: 4, Method: "GET", Path: "/reports", Permissions: []string{"reports.view"}},
		{ID: 5, Method: "GET", Path: "/open", Permissions: nil},
	})

	roles := &stubRoleStore{perms: map[int64][]Permission{
		10: {{ID: 1, Name: "products.view"}},
	}}
	perms := &stubPermStore{rows: map[string]Permission{
		"products.view":   {ID: 1, Name: "products.view"},
		"products.delete": {ID: 2, Name: "products.delete"},
	}}
	auditor := &stubAuditor{}

	engine := NewEngine(
		registry,
		NewDecisionCache(client, time.Minute),
		NewResolver(roles),
		perms,
		auditor,
		nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return engineFixture{engine: engine, auditor: auditor, roles: roles, perms: perms}
}

func viewer() *Principal {
	return &Principal{ID: 1, BusinessRoleID: 10}
}

func TestDecideNoMappingDenies(t *testing.T) {
	fx := newEngineFixture(t)

	d, err := fx.engine.Decide(context.Background(), viewer(), "GET", "/unknown")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Allowed || d.Reason != ReasonNoMapping {
		t.Fatalf("expected NO_MAPPING deny, got %+v", d)
	}
	if len(fx.auditor.events) != 1 {
		t.Fatalf("fresh decisions must be audited, got %d events", len(fx.auditor.events))
	}
	if fx.auditor.events[0].Action != "authz.decision.deny" {
		t.Fatalf("unexpected action %s", fx.auditor.events[0].Action)
	}
}

func TestDecidePublicRouteAllowsAnonymous(t *testing.T) {
	fx := newEngineFixture(t)

	d, err := fx.engine.Decide(context.Background(), nil, "GET", "/healthz")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !d.Allowed || d.Reason != ReasonPublic {
		t.Fatalf("expected public allow, got %+v", d)
	}
	if fx.auditor.events[0].ActorID != "anonymous" {
		t.Fatalf("anonymous actor expected, got %s", fx.auditor.events[0].ActorID)
	}
}

func TestDecideNilPrincipalOnProtectedRoute(t *testing.T) {
	fx := newEngineFixture(t)

	d, err := fx.engine.Decide(context.Background(), nil, "GET", "/products")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Allowed || d.Reason != ReasonUnauthenticated {
		t.Fatalf("expected UNAUTHENTICATED deny, got %+v", d)
	}
}

func TestDecideGrantedAndCached(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	d, err := fx.engine.Decide(ctx, viewer(), "GET", "/products")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !d.Allowed || d.Reason != ReasonGranted || d.Cached {
		t.Fatalf("expected fresh grant, got %+v", d)
	}
	if len(fx.auditor.events) != 1 {
		t.Fatalf("expected 1 audit event, got %d", len(fx.auditor.events))
	}

	// The second call hits the cache: same outcome, tagged, no new audit row.
	d, err = fx.engine.Decide(ctx, viewer(), "GET", "/products")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !d.Allowed || !d.Cached {
		t.Fatalf("expected cached grant, got %+v", d)
	}
	if len(fx.auditor.events) != 1 {
		t.Fatalf("cache hits must not write audit entries, got %d", len(fx.auditor.events))
	}
}

func TestDecideMissingPermissionNamesLowestID(t *testing.T) {
	fx := newEngineFixture(t)

	// Viewer holds products.view but not products.delete.
	d, err := fx.engine.Decide(context.Background(), viewer(), "DELETE", "/products/42")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Allowed || d.Reason != ReasonMissingPermission {
		t.Fatalf("expected MISSING_PERMISSION, got %+v", d)
	}
	if d.Permission != "products.delete" {
		t.Fatalf("expected lowest-ID missing permission, got %s", d.Permission)
	}
	if fx.auditor.events[0].Meta["permission"] != "products.delete" {
		t.Fatalf("audit meta must carry the missing permission")
	}
}

func TestDecideUnbackedPermissionDenies(t *testing.T) {
	fx := newEngineFixture(t)

	// reports.view has no permission row, so the requirement can never hold.
	d, err := fx.engine.Decide(context.Background(), viewer(), "GET", "/reports")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Allowed || d.Reason != ReasonMissingPermission || d.Permission != "reports.view" {
		t.Fatalf("expected deny on unbacked permission, got %+v", d)
	}
}

func TestDecideEmptyPermissionListAllows(t *testing.T) {
	fx := newEngineFixture(t)

	d, err := fx.engine.Decide(context.Background(), viewer(), "GET", "/open")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !d.Allowed || d.Reason != ReasonGranted {
		t.Fatalf("mapping without permissions must allow authenticated callers, got %+v", d)
	}
}

func TestDecideConfigErrorIsCriticalDeny(t *testing.T) {
	fx := newEngineFixture(t)

	// A principal without a business role is a configuration fault.
	d, err := fx.engine.Decide(context.Background(), &Principal{ID: 9}, "GET", "/products")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Allowed || d.Reason != ReasonConfigError {
		t.Fatalf("expected CONFIG_ERROR deny, got %+v", d)
	}
	last := fx.auditor.events[len(fx.auditor.events)-1]
	if last.Severity != audit.SeverityCritical {
		t.Fatalf("config errors must audit as critical, got %s", last.Severity)
	}
}

func TestDecideFailsClosedWhenAuditFails(t *testing.T) {
	fx := newEngineFixture(t)
	fx.auditor.err = fmt.Errorf("%w: audit insert: disk full", shared.ErrPersistence)

	_, err := fx.engine.Decide(context.Background(), viewer(), "GET", "/products")
	if !errors.Is(err, shared.ErrPersistence) {
		t.Fatalf("audit failure must fail the decision, got %v", err)
	}

	// Nothing may be cached for a decision whose audit write failed. Once
	// the store recovers the same request is evaluated and audited afresh.
	fx.auditor.err = nil
	d, err := fx.engine.Decide(context.Background(), viewer(), "GET", "/products")
	if err != nil {
		t.Fatalf("decide after recovery: %v", err)
	}
	if !d.Allowed || d.Cached {
		t.Fatalf("expected fresh grant after recovery, got %+v", d)
	}
	if len(fx.auditor.events) != 1 {
		t.Fatalf("recovered decision must write its audit entry, got %d", len(fx.auditor.events))
	}
}

func TestDecideDeniesAfterPermissionRevocation(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	// Engine and management service share the store, registry and cache so
	// a revocation is observed exactly the way a running process would.
	store := newMemoryStore()
	cache := NewDecisionCache(client, time.Minute)
	registry := NewRegistry()
	auditor := &stubAuditor{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := NewService(store, cache, registry, auditor, logger)
	engine := NewEngine(registry, cache, NewResolver(store), store, auditor, nil, logger)

	role, err := svc.CreateRole(ctx, admin, "viewer", RoleKindBusiness, 10)
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	perm, err := svc.EnsurePermission(ctx, "products.view", "products", "view")
	if err != nil {
		t.Fatalf("ensure permission: %v", err)
	}
	if err := svc.AssignPermission(ctx, admin, role.ID, perm.ID); err != nil {
		t.Fatalf("assign permission: %v", err)
	}
	if _, err := svc.SetRouteMapping(ctx, admin, RouteMapping{
		Method:      "GET",
		Path:        "/products",
		Permissions: []string{"products.view"},
	}); err != nil {
		t.Fatalf("set mapping: %v", err)
	}
	store.holders[role.ID] = []int64{1}
	principal := &Principal{ID: 1, BusinessRoleID: role.ID}

	d, err := engine.Decide(ctx, principal, "GET", "/products")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected grant before revocation, got %+v", d)
	}
	d, err = engine.Decide(ctx, principal, "GET", "/products")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !d.Cached {
		t.Fatalf("expected cached grant, got %+v", d)
	}

	if err := svc.RevokePermission(ctx, admin, role.ID, perm.ID); err != nil {
		t.Fatalf("revoke permission: %v", err)
	}

	d, err = engine.Decide(ctx, principal, "GET", "/products")
	if err != nil {
		t.Fatalf("decide after revocation: %v", err)
	}
	if d.Allowed || d.Cached || d.Reason != ReasonMissingPermission {
		t.Fatalf("revocation must deny the next decision, got %+v", d)
	}
	if d.Permission != "products.view" {
		t.Fatalf("denial must name the revoked permission, got %s", d.Permission)
	}
}

func TestDecidePermissionStoreFailure(t *testing.T) {
	fx := newEngineFixture(t)
	fx.perms.err = fmt.Errorf("connection refused")

	_, err := fx.engine.Decide(context.Background(), viewer(), "GET", "/products")
	if !errors.Is(err, shared.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}
