package authz

import (
	"context"
	"fmt"
	"sort"

	"github.com/vantage-market/vantage-market/internal/shared"
)

// PermissionSet is a deduplicated set of permissions keyed by ID.
type PermissionSet struct {
	byID   map[int64]Permission
	byName map[string]struct{}
}

func newPermissionSet(perms []Permission) PermissionSet {
	set := PermissionSet{
		byID:   make(map[int64]Permission, len(perms)),
		byName: make(map[string]struct{}, len(perms)),
	}
	set.add(perms)
	return set
}

func (s PermissionSet) add(perms []Permission) {
	for _, p := range perms {
		if _, ok := s.byID[p.ID]; ok {
			continue
		}
		s.byID[p.ID] = p
		s.byName[p.Name] = struct{}{}
	}
}

// HasName reports whether any permission in the set carries the name.
func (s PermissionSet) HasName(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// Len returns the number of distinct permission rows in the set.
func (s PermissionSet) Len() int {
	return len(s.byID)
}

// Names returns the distinct permission names, sorted.
func (s PermissionSet) Names() []string {
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RolePermissionStore loads the permission rows attached to a role. A role
// that no longer exists yields an empty slice, not an error.
type RolePermissionStore interface {
	RolePermissions(ctx context.Context, roleID int64) ([]Permission, error)
}

// Resolver computes effective permission sets. It is stateless and safe to
// call on every cache miss.
type Resolver struct {
	store RolePermissionStore
}

// NewResolver constructs a Resolver.
func NewResolver(store RolePermissionStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the union of the business role's permissions and, when an
// assigned role exists, its permissions, deduplicated by permission ID. A
// principal with no business role is a configuration error, not a deny.
func (r *Resolver) Resolve(ctx context.Context, p Principal) (PermissionSet, error) {
	if p.BusinessRoleID == 0 {
		return PermissionSet{}, fmt.Errorf("%w: principal %d has no business role", shared.ErrConfiguration, p.ID)
	}

	base, err := r.store.RolePermissions(ctx, p.BusinessRoleID)
	if err != nil {
		return PermissionSet{}, fmt.Errorf("authz: resolve business role %d: %w", p.BusinessRoleID, err)
	}
	set := newPermissionSet(base)

	if p.AssignedRoleID != nil {
		extra, err := r.store.RolePermissions(ctx, *p.AssignedRoleID)
		if err != nil {
			return PermissionSet{}, fmt.Errorf("authz: resolve assigned role %d: %w", *p.AssignedRoleID, err)
		}
		set.add(extra)
	}

	return set, nil
}
