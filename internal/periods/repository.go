package periods

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/resource-planning/internal/platform/db"
	"github.com/odyssey-erp/resource-planning/internal/shared"
)

// Repository persists periods in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn inside a serializable transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

const periodColumns = `id, tenant_id, year, month, status, locked_at, locked_by, COALESCE(lock_reason, ''), created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	var status string
	err := row.Scan(&p.ID, &p.TenantID, &p.Year, &p.Month, &status, &p.LockedAt, &p.LockedBy, &p.LockReason, &p.CreatedAt, &p.UpdatedAt)
	p.Status = Status(status)
	return p, err
}

// List implements RepositoryPort.
func (r *Repository) List(ctx context.Context, tenantID string) ([]Period, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+periodColumns+` FROM periods
WHERE tenant_id = $1 ORDER BY year DESC, month DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("periods: list: %w", err)
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Get implements RepositoryPort.
func (r *Repository) Get(ctx context.Context, tenantID string, id uuid.UUID) (Period, error) {
	return LoadByID(ctx, r.pool, tenantID, id, false)
}

// LoadByID reads a period by id, optionally under a FOR SHARE row lock.
func LoadByID(ctx context.Context, q db.DBTX, tenantID string, id uuid.UUID, share bool) (Period, error) {
	sql := `SELECT ` + periodColumns + ` FROM periods WHERE tenant_id = $1 AND id = $2`
	if share {
		sql += ` FOR SHARE`
	}
	p, err := scanPeriod(q.QueryRow(ctx, sql, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, shared.NotFound("period")
	}
	if err != nil {
		return Period{}, fmt.Errorf("periods: load: %w", err)
	}
	return p, nil
}

// FindByYearMonth implements RepositoryPort.
func (r *Repository) FindByYearMonth(ctx context.Context, tenantID string, ym shared.YearMonth) (*Period, error) {
	return findByYearMonth(ctx, r.pool, tenantID, ym, "")
}

// LoadForShare reads the period for ym with a FOR SHARE row lock so a concurrent
// lock/unlock waits for the caller's transaction. Returns nil when the month has no period.
func LoadForShare(ctx context.Context, q db.DBTX, tenantID string, ym shared.YearMonth) (*Period, error) {
	return findByYearMonth(ctx, q, tenantID, ym, " FOR SHARE")
}

func findByYearMonth(ctx context.Context, q db.DBTX, tenantID string, ym shared.YearMonth, lockClause string) (*Period, error) {
	p, err := scanPeriod(q.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods
WHERE tenant_id = $1 AND year = $2 AND month = $3`+lockClause, tenantID, ym.Year, ym.Month))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("periods: find %s: %w", ym, err)
	}
	return &p, nil
}

type txRepo struct {
	q db.DBTX
}

func (t *txRepo) FindByYearMonth(ctx context.Context, tenantID string, ym shared.YearMonth) (*Period, error) {
	return findByYearMonth(ctx, t.q, tenantID, ym, "")
}

func (t *txRepo) LoadForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (Period, error) {
	p, err := scanPeriod(t.q.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods
WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, shared.NotFound("period")
	}
	return p, err
}

func (t *txRepo) Insert(ctx context.Context, p Period) (Period, error) {
	_, err := t.q.Exec(ctx, `INSERT INTO periods (id, tenant_id, year, month, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, p.ID, p.TenantID, p.Year, p.Month, string(p.Status), p.CreatedAt, p.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return Period{}, shared.Conflict(fmt.Sprintf("period %s already exists", p.YearMonth())).WithCause(err)
	}
	if err != nil {
		return Period{}, fmt.Errorf("periods: insert: %w", err)
	}
	return p, nil
}

func (t *txRepo) UpdateStatus(ctx context.Context, p Period) error {
	_, err := t.q.Exec(ctx, `UPDATE periods
SET status = $3, locked_at = $4, locked_by = $5, lock_reason = NULLIF($6, ''), updated_at = $7
WHERE tenant_id = $1 AND id = $2`, p.TenantID, p.ID, string(p.Status), p.LockedAt, p.LockedBy, p.LockReason, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("periods: update status: %w", err)
	}
	return nil
}
