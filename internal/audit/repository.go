package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository provides PostgreSQL backed persistence for audit entries.
// The table is append-only; this type exposes no update or delete.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const entryColumns = `id, action, module, actor_id, actor_type, entity_type, entity_id,
	severity, operation, is_compliance, is_security, is_financial, category,
	amount, currency, is_b2b, country, is_anomaly, meta, checksum, risk_score,
	retention_date, created_at`

// Insert appends one entry.
func (r *PGRepository) Insert(ctx context.Context, e Entry) error {
	checksum := pgtype.Text{}
	if e.Checksum != "" {
		checksum = pgtype.Text{String: e.Checksum, Valid: true}
	}
	meta, err := json.Marshal(e.Meta)
	if err != nil {
		return fmt.Errorf("audit: marshal meta: %w", err)
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO audit_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		e.ID, e.Action, e.Module, e.ActorID, string(e.ActorType), e.EntityType, e.EntityID,
		string(e.Severity), e.Operation, e.IsComplianceEvent, e.IsSecurityEvent, e.IsFinancialEvent, string(e.Category),
		e.MonetaryAmount, e.Currency, e.IsB2B, e.Country, e.IsAnomaly, meta, checksum, e.RiskScore,
		e.RetentionDate, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit: insert entry: %w", err)
	}
	return nil
}

// List returns entries matching the filters, newest first. A zero PageSize
// disables paging.
func (r *PGRepository) List(ctx context.Context, f Filters) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM audit_entries
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at <= $2)
		  AND ($3 = '' OR module = $3)
		  AND ($4 = '' OR actor_id = $4)
		  AND ($5 = '' OR severity = $5)
		ORDER BY created_at DESC, id DESC`
	args := []any{optionalTime(f.From), optionalTime(f.To), f.Module, f.ActorID, string(f.Severity)}
	if f.PageSize > 0 {
		query += ` LIMIT $6 OFFSET $7`
		args = append(args, f.PageSize, (f.Page-1)*f.PageSize)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: list entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// MeanRiskSince returns the mean risk score and row count for the window.
func (r *PGRepository) MeanRiskSince(ctx context.Context, since time.Time) (float64, int, error) {
	var mean pgtype.Float8
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT AVG(risk_score), COUNT(*) FROM audit_entries WHERE created_at >= $1`,
		since).Scan(&mean, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("audit: mean risk: %w", err)
	}
	if !mean.Valid {
		return 0, count, nil
	}
	return mean.Float64, count, nil
}

// ListAboveRisk returns window entries at or above the score, oldest first.
func (r *PGRepository) ListAboveRisk(ctx context.Context, since time.Time, minScore int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM audit_entries
		WHERE created_at >= $1 AND risk_score >= $2
		ORDER BY created_at ASC`, since, minScore)
	if err != nil {
		return nil, fmt.Errorf("audit: list above risk: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var actorType, severity, category string
		var meta []byte
		var checksum pgtype.Text
		if err := rows.Scan(&e.ID, &e.Action, &e.Module, &e.ActorID, &actorType, &e.EntityType, &e.EntityID,
			&severity, &e.Operation, &e.IsComplianceEvent, &e.IsSecurityEvent, &e.IsFinancialEvent, &category,
			&e.MonetaryAmount, &e.Currency, &e.IsB2B, &e.Country, &e.IsAnomaly, &meta, &checksum, &e.RiskScore,
			&e.RetentionDate, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan entry: %w", err)
		}
		e.ActorType = ActorType(actorType)
		e.Severity = Severity(severity)
		e.Category = Category(category)
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &e.Meta)
		}
		if checksum.Valid {
			e.Checksum = checksum.String
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate entries: %w", err)
	}
	return entries, nil
}

func optionalTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}
