package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-market/vantage-market/internal/shared"
)

const productColumns = `id, vendor_id, sku, name, description, price, currency, status, created_at, updated_at`

// Repository provides PostgreSQL backed persistence for products.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns products, optionally narrowed to one vendor.
func (r *Repository) List(ctx context.Context, vendorID int64, page shared.Pagination) ([]Product, error) {
	q := fmt.Sprintf(`
SELECT %s FROM products
WHERE ($1 = 0 OR vendor_id = $1)
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`, productColumns)
	rows, err := r.pool.Query(ctx, q, vendorID, page.PerPage, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// Get fetches a single product.
func (r *Repository) Get(ctx context.Context, id int64) (Product, error) {
	q := fmt.Sprintf(`SELECT %s FROM products WHERE id = $1`, productColumns)
	var p Product
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&p.ID, &p.VendorID, &p.SKU, &p.Name, &p.Description,
		&p.Price, &p.Currency, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, shared.ErrNotFound
		}
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// Create inserts a draft product and returns the stored row.
func (r *Repository) Create(ctx context.Context, p Product) (Product, error) {
	q := fmt.Sprintf(`
INSERT INTO products (vendor_id, sku, name, description, price, currency, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING %s`, productColumns)
	var created Product
	err := r.pool.QueryRow(ctx, q, p.VendorID, p.SKU, p.Name, p.Description, p.Price, p.Currency, p.Status).Scan(
		&created.ID, &created.VendorID, &created.SKU, &created.Name, &created.Description,
		&created.Price, &created.Currency, &created.Status, &created.CreatedAt, &created.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Product{}, shared.ErrDuplicate
		}
		return Product{}, fmt.Errorf("create product: %w", err)
	}
	return created, nil
}

// UpdateStatus moves a product through its lifecycle.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status ProductStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update product status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a product.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanProducts(rows pgx.Rows) ([]Product, error) {
	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(
			&p.ID, &p.VendorID, &p.SKU, &p.Name, &p.Description,
			&p.Price, &p.Currency, &p.Status, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return out, nil
}
