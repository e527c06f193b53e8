package vendors

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-market/vantage-market/internal/shared"
)

const vendorColumns = `id, name, legal_name, country, status, is_b2b, credit_limit, currency, created_at, updated_at`

// Repository provides PostgreSQL backed persistence for vendors.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns vendors, optionally filtered by status.
func (r *Repository) List(ctx context.Context, status VendorStatus, page shared.Pagination) ([]Vendor, error) {
	q := fmt.Sprintf(`
SELECT %s FROM vendors
WHERE ($1 = '' OR status = $1)
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`, vendorColumns)
	rows, err := r.pool.Query(ctx, q, string(status), page.PerPage, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("list vendors: %w", err)
	}
	defer rows.Close()
	return scanVendors(rows)
}

// Get fetches a single vendor.
func (r *Repository) Get(ctx context.Context, id int64) (Vendor, error) {
	q := fmt.Sprintf(`SELECT %s FROM vendors WHERE id = $1`, vendorColumns)
	var v Vendor
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&v.ID, &v.Name, &v.LegalName, &v.Country, &v.Status,
		&v.IsB2B, &v.CreditLimit, &v.Currency, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Vendor{}, shared.ErrNotFound
		}
		return Vendor{}, fmt.Errorf("get vendor: %w", err)
	}
	return v, nil
}

// Create registers a pending vendor.
func (r *Repository) Create(ctx context.Context, v Vendor) (Vendor, error) {
	q := fmt.Sprintf(`
INSERT INTO vendors (name, legal_name, country, status, is_b2b, credit_limit, currency)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING %s`, vendorColumns)
	var created Vendor
	err := r.pool.QueryRow(ctx, q, v.Name, v.LegalName, v.Country, v.Status, v.IsB2B, v.CreditLimit, v.Currency).Scan(
		&created.ID, &created.Name, &created.LegalName, &created.Country, &created.Status,
		&created.IsB2B, &created.CreditLimit, &created.Currency, &created.CreatedAt, &created.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Vendor{}, shared.ErrDuplicate
		}
		return Vendor{}, fmt.Errorf("create vendor: %w", err)
	}
	return created, nil
}

// UpdateStatus transitions a vendor's lifecycle state.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status VendorStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE vendors SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update vendor status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanVendors(rows pgx.Rows) ([]Vendor, error) {
	var out []Vendor
	for rows.Next() {
		var v Vendor
		if err := rows.Scan(
			&v.ID, &v.Name, &v.LegalName, &v.Country, &v.Status,
			&v.IsB2B, &v.CreditLimit, &v.Currency, &v.CreatedAt, &v.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan vendor: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vendors: %w", err)
	}
	return out, nil
}
