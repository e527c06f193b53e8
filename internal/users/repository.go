package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-market/vantage-market/internal/shared"
)

const principalColumns = `id, email, display_name, actor_type, business_role_id, assigned_role_id, is_active, created_at, updated_at`

// Repository provides PostgreSQL backed persistence for principals.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns principals ordered by creation, newest first.
func (r *Repository) List(ctx context.Context, page shared.Pagination) ([]Principal, error) {
	q := fmt.Sprintf(`SELECT %s FROM principals ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, principalColumns)
	rows, err := r.pool.Query(ctx, q, page.PerPage, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
	}
	defer rows.Close()
	return scanPrincipals(rows)
}

// Get fetches a single principal by ID.
func (r *Repository) Get(ctx context.Context, id int64) (Principal, error) {
	q := fmt.Sprintf(`SELECT %s FROM principals WHERE id = $1`, principalColumns)
	rows, err := r.pool.Query(ctx, q, id)
	if err != nil {
		return Principal{}, fmt.Errorf("get principal: %w", err)
	}
	defer rows.Close()
	principals, err := scanPrincipals(rows)
	if err != nil {
		return Principal{}, err
	}
	if len(principals) == 0 {
		return Principal{}, shared.ErrNotFound
	}
	return principals[0], nil
}

// Create inserts a new principal and returns the stored row.
func (r *Repository) Create(ctx context.Context, p Principal) (Principal, error) {
	q := fmt.Sprintf(`
INSERT INTO principals (email, display_name, actor_type, business_role_id, assigned_role_id, is_active)
VALUES ($1, $2, $3, $4, $5, TRUE)
RETURNING %s`, principalColumns)

	assigned := pgtype.Int8{}
	if p.AssignedRoleID != nil {
		assigned = pgtype.Int8{Int64: *p.AssignedRoleID, Valid: true}
	}
	rows, err := r.pool.Query(ctx, q, p.Email, p.DisplayName, p.ActorType, p.BusinessRoleID, assigned)
	if err != nil {
		return Principal{}, fmt.Errorf("create principal: %w", err)
	}
	defer rows.Close()
	created, err := scanPrincipals(rows)
	if err != nil {
		if isUniqueViolation(err) {
			return Principal{}, shared.ErrDuplicate
		}
		return Principal{}, err
	}
	if len(created) == 0 {
		return Principal{}, shared.ErrPersistence
	}
	return created[0], nil
}

// SetActive flips the principal's active flag.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE principals SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set principal active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanPrincipals(rows pgx.Rows) ([]Principal, error) {
	var out []Principal
	for rows.Next() {
		var (
			p        Principal
			assigned pgtype.Int8
		)
		if err := rows.Scan(
			&p.ID, &p.Email, &p.DisplayName, &p.ActorType,
			&p.BusinessRoleID, &assigned, &p.IsActive,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan principal: %w", err)
		}
		if assigned.Valid {
			v := assigned.Int64
			p.AssignedRoleID = &v
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate principals: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
