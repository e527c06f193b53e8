package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-market/vantage-market/internal/authz"
	"github.com/vantage-market/vantage-market/internal/shared"
)

// Repository defines persistence operations for token authentication.
type Repository interface {
	FindToken(ctx context.Context, id string) (APIToken, error)
	CreateToken(ctx context.Context, token APIToken) error
	RevokeToken(ctx context.Context, id string) error
	TouchToken(ctx context.Context, id string, usedAt time.Time) error
	FindPrincipal(ctx context.Context, id int64) (authz.Principal, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindToken fetches a token by its public identifier.
func (r *PGRepository) FindToken(ctx context.Context, id string) (APIToken, error) {
	const q = `
SELECT id, principal_id, name, secret_hash, is_active, last_used_at, expires_at, created_at
FROM api_tokens
WHERE id = $1`
	var (
		token    APIToken
		lastUsed pgtype.Timestamptz
		expires  pgtype.Timestamptz
	)
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&token.ID, &token.PrincipalID, &token.Name, &token.SecretHash,
		&token.IsActive, &lastUsed, &expires, &token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return APIToken{}, shared.ErrNotFound
		}
		return APIToken{}, fmt.Errorf("find token: %w", err)
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		token.LastUsedAt = &t
	}
	if expires.Valid {
		t := expires.Time
		token.ExpiresAt = &t
	}
	return token, nil
}

// CreateToken persists a newly issued token.
func (r *PGRepository) CreateToken(ctx context.Context, token APIToken) error {
	const q = `
INSERT INTO api_tokens (id, principal_id, name, secret_hash, is_active, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	expires := pgtype.Timestamptz{}
	if token.ExpiresAt != nil {
		expires = pgtype.Timestamptz{Time: token.ExpiresAt.UTC(), Valid: true}
	}
	_, err := r.pool.Exec(ctx, q,
		token.ID, token.PrincipalID, token.Name, token.SecretHash,
		token.IsActive, expires, token.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("create token: %w", err)
	}
	return nil
}

// RevokeToken deactivates a token. Revocation is permanent.
func (r *PGRepository) RevokeToken(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE api_tokens SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// TouchToken records the last successful use of a token.
func (r *PGRepository) TouchToken(ctx context.Context, id string, usedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_tokens SET last_used_at = $2 WHERE id = $1`, id, usedAt.UTC())
	if err != nil {
		return fmt.Errorf("touch token: %w", err)
	}
	return nil
}

// FindPrincipal loads the role bindings for an active principal.
func (r *PGRepository) FindPrincipal(ctx context.Context, id int64) (authz.Principal, error) {
	const q = `
SELECT id, business_role_id, assigned_role_id, actor_type
FROM principals
WHERE id = $1 AND is_active`
	var (
		p        authz.Principal
		assigned pgtype.Int8
	)
	err := r.pool.QueryRow(ctx, q, id).Scan(&p.ID, &p.BusinessRoleID, &assigned, &p.ActorType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.Principal{}, shared.ErrNotFound
		}
		return authz.Principal{}, fmt.Errorf("find principal: %w", err)
	}
	if assigned.Valid {
		v := assigned.Int64
		p.AssignedRoleID = &v
	}
	return p, nil
}

var _ Repository = (*PGRepository)(nil)
