package authz

import (
	"context"
	"fmt"
	"strings"

	"github.com/vantage-market/vantage-market/internal/shared"
)

// RoleNameStore loads the role names a principal holds.
type RoleNameStore interface {
	RoleNamesForPrincipal(ctx context.Context, principalID int64) ([]string, error)
}

// LegacyRoleGuard is the decorator-era static role check kept as a secondary
// decision source. It never runs on its own: the pipeline consults it only
// when the dynamic engine allowed the request or found no mapping for it.
type LegacyRoleGuard struct {
	store RoleNameStore
}

// NewLegacyRoleGuard constructs the guard.
func NewLegacyRoleGuard(store RoleNameStore) *LegacyRoleGuard {
	return &LegacyRoleGuard{store: store}
}

// Satisfies reports whether the principal holds at least one of the required
// role names. An empty requirement always passes.
func (g *LegacyRoleGuard) Satisfies(ctx context.Context, principal *Principal, required []string) (bool, error) {
	if len(required) == 0 {
		return true, nil
	}
	if principal == nil {
		return false, nil
	}
	held, err := g.store.RoleNamesForPrincipal(ctx, principal.ID)
	if err != nil {
		return false, fmt.Errorf("%w: legacy role lookup: %v", shared.ErrPersistence, err)
	}
	holds := make(map[string]struct{}, len(held))
	for _, name := range held {
		holds[strings.ToLower(name)] = struct{}{}
	}
	for _, name := range required {
		if _, ok := holds[strings.ToLower(name)]; ok {
			return true, nil
		}
	}
	return false, nil
}
