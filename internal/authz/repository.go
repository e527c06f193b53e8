package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-market/vantage-market/internal/platform/db"
	"github.com/vantage-market/vantage-market/internal/shared"
)

// Repository provides PostgreSQL backed persistence for roles, permissions,
// route mappings and principal role references.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRoles returns all roles ordered by priority then name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, kind, priority, created_at, updated_at
		FROM roles ORDER BY priority DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("authz: list roles: %w", err)
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		var kind string
		if err := rows.Scan(&role.ID, &role.Name, &kind, &role.Priority, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, fmt.Errorf("authz: scan role: %w", err)
		}
		role.Kind = RoleKind(kind)
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by ID.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	var kind string
	err := r.pool.QueryRow(ctx, `SELECT id, name, kind, priority, created_at, updated_at
		FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &kind, &role.Priority, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrNotFound
	}
	if err != nil {
		return Role{}, fmt.Errorf("authz: get role %d: %w", id, err)
	}
	role.Kind = RoleKind(kind)
	return role, nil
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, name string, kind RoleKind, priority int) (Role, error) {
	var role Role
	var kindStr string
	err := r.pool.QueryRow(ctx, `INSERT INTO roles (name, kind, priority)
		VALUES ($1, $2, $3)
		RETURNING id, name, kind, priority, created_at, updated_at`,
		name, string(kind), priority).
		Scan(&role.ID, &role.Name, &kindStr, &role.Priority, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Role{}, fmt.Errorf("%w: role %q", shared.ErrDuplicate, name)
		}
		return Role{}, fmt.Errorf("authz: create role: %w", err)
	}
	role.Kind = RoleKind(kindStr)
	return role, nil
}

// CloneRole creates a copy of a role and its permission assignments in one
// transaction.
func (r *Repository) CloneRole(ctx context.Context, sourceID int64, name string) (Role, error) {
	var role Role
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var kind string
		err := tx.QueryRow(ctx, `INSERT INTO roles (name, kind, priority)
			SELECT $2, kind, priority FROM roles WHERE id = $1
			RETURNING id, name, kind, priority, created_at, updated_at`,
			sourceID, name).
			Scan(&role.ID, &role.Name, &kind, &role.Priority, &role.CreatedAt, &role.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrNotFound
		}
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: role %q", shared.ErrDuplicate, name)
			}
			return fmt.Errorf("authz: clone role: %w", err)
		}
		role.Kind = RoleKind(kind)
		_, err = tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id)
			SELECT $2, permission_id FROM role_permissions WHERE role_id = $1`,
			sourceID, role.ID)
		if err != nil {
			return fmt.Errorf("authz: clone role permissions: %w", err)
		}
		return nil
	})
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// DeleteRole removes a role and its assignments. Principal references are
// left to the caller, which must re-point or reject them first.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("authz: delete role %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// RolePermissions returns the permission rows attached to a role. A missing
// role yields an empty slice.
func (r *Repository) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.name, p.resource, p.action
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.id`, roleID)
	if err != nil {
		return nil, fmt.Errorf("authz: role permissions %d: %w", roleID, err)
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// ListPermissions returns all permissions ordered by ID.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, resource, action FROM permissions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("authz: list permissions: %w", err)
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// PermissionsByName resolves permission names to their rows. Unknown names
// are simply absent from the result.
func (r *Repository) PermissionsByName(ctx context.Context, names []string) ([]Permission, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name, resource, action
		FROM permissions WHERE name = ANY($1) ORDER BY id`, names)
	if err != nil {
		return nil, fmt.Errorf("authz: permissions by name: %w", err)
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// EnsurePermission upserts a permission row by name.
func (r *Repository) EnsurePermission(ctx context.Context, name, resource, action string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx, `INSERT INTO permissions (name, resource, action)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET resource = EXCLUDED.resource, action = EXCLUDED.action
		RETURNING id, name, resource, action`,
		name, resource, action).
		Scan(&p.ID, &p.Name, &p.Resource, &p.Action)
	if err != nil {
		return Permission{}, fmt.Errorf("authz: ensure permission %q: %w", name, err)
	}
	return p, nil
}

// AttachPermission assigns a permission to a role.
func (r *Repository) AttachPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id)
		VALUES ($1, $2) ON CONFLICT DO NOTHING`, roleID, permissionID)
	if err != nil {
		return fmt.Errorf("authz: attach permission: %w", err)
	}
	return nil
}

// DetachPermission revokes a permission from a role.
func (r *Repository) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM role_permissions
		WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	if err != nil {
		return fmt.Errorf("authz: detach permission: %w", err)
	}
	return nil
}

// ListRouteMappings returns all mappings in registration order.
func (r *Repository) ListRouteMappings(ctx context.Context) ([]RouteMapping, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, method, path, permissions, is_public, created_at
		FROM route_permissions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("authz: list route mappings: %w", err)
	}
	defer rows.Close()
	var mappings []RouteMapping
	for rows.Next() {
		var m RouteMapping
		if err := rows.Scan(&m.ID, &m.Method, &m.Path, &m.Permissions, &m.IsPublic, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("authz: scan route mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// UpsertRouteMapping creates or updates the mapping for (method, path).
func (r *Repository) UpsertRouteMapping(ctx context.Context, m RouteMapping) (RouteMapping, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO route_permissions (method, path, permissions, is_public)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (method, path) DO UPDATE SET permissions = EXCLUDED.permissions, is_public = EXCLUDED.is_public
		RETURNING id, method, path, permissions, is_public, created_at`,
		m.Method, m.Path, m.Permissions, m.IsPublic).
		Scan(&m.ID, &m.Method, &m.Path, &m.Permissions, &m.IsPublic, &m.CreatedAt)
	if err != nil {
		return RouteMapping{}, fmt.Errorf("authz: upsert route mapping: %w", err)
	}
	return m, nil
}

// DeleteRouteMapping removes a mapping.
func (r *Repository) DeleteRouteMapping(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM route_permissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("authz: delete route mapping %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// PrincipalIDsWithRole returns every principal holding the role, either as
// business role or assigned role. The invalidation path walks this list.
func (r *Repository) PrincipalIDsWithRole(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM principals
		WHERE business_role_id = $1 OR assigned_role_id = $1`, roleID)
	if err != nil {
		return nil, fmt.Errorf("authz: principals with role %d: %w", roleID, err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("authz: scan principal id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RoleNamesForPrincipal returns the names of the roles a principal holds.
func (r *Repository) RoleNamesForPrincipal(ctx context.Context, principalID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT r.name FROM roles r
		JOIN principals p ON r.id IN (p.business_role_id, p.assigned_role_id)
		WHERE p.id = $1`, principalID)
	if err != nil {
		return nil, fmt.Errorf("authz: role names for principal %d: %w", principalID, err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("authz: scan role name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SetPrincipalRoles re-points a principal's role references.
func (r *Repository) SetPrincipalRoles(ctx context.Context, principalID, businessRoleID int64, assignedRoleID *int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE principals
		SET business_role_id = $2, assigned_role_id = $3, updated_at = NOW()
		WHERE id = $1`, principalID, businessRoleID, assignedRoleID)
	if err != nil {
		return fmt.Errorf("authz: set principal roles: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanPermissions(rows pgx.Rows) ([]Permission, error) {
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action); err != nil {
			return nil, fmt.Errorf("authz: scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
