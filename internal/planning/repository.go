package planning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/resource-planning/internal/periods"
	"github.com/odyssey-erp/resource-planning/internal/platform/db"
	"github.com/odyssey-erp/resource-planning/internal/shared"
)

// Repository persists planning lines in Postgres. Reads join a transaction carried in ctx.
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

// where renders the tenant predicate plus any filter fields.
func where(tenantID string, f Filter) (string, []any) {
	clauses := []string{"tenant_id = $1"}
	args := []any{tenantID}
	add := func(column string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if f.Year != nil {
		add("year", *f.Year)
	}
	if f.Month != nil {
		add("month", *f.Month)
	}
	if f.ProjectID != nil {
		add("project_id", *f.ProjectID)
	}
	if f.ResourceID != nil {
		add("resource_id", *f.ResourceID)
	}
	if f.PeriodID != nil {
		add("period_id", *f.PeriodID)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func queryLines[T any](ctx context.Context, q db.DBTX, sql string, args []any, scan func(pgx.Row) (T, error)) ([]T, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("planning: query: %w", err)
	}
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		line, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("planning: scan: %w", err)
		}
		out = append(out, line)
	}
	return out, rows.Err()
}

func getOne[T any](ctx context.Context, q db.DBTX, entity, sql string, args []any, scan func(pgx.Row) (T, error)) (T, error) {
	line, err := scan(q.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		var zero T
		return zero, shared.NotFound(entity)
	}
	if err != nil {
		var zero T
		return zero, fmt.Errorf("planning: load %s: %w", entity, err)
	}
	return line, nil
}

func exists(ctx context.Context, q db.DBTX, sql string, args ...any) (bool, error) {
	var found bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (`+sql+`)`, args...).Scan(&found); err != nil {
		return false, fmt.Errorf("planning: exists: %w", err)
	}
	return found, nil
}

// exec maps unique-index races onto CONFLICT.
func exec(ctx context.Context, q db.DBTX, entity, sql string, args ...any) error {
	tag, err := q.Exec(ctx, sql, args...)
	if db.IsUniqueViolation(err) {
		return shared.Conflict(entity + " already exists for this combination").WithCause(err)
	}
	if err != nil {
		return fmt.Errorf("planning: write %s: %w", entity, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(entity)
	}
	return nil
}

const demandColumns = `id, tenant_id, period_id, project_id, resource_id, placeholder_id, year, month, fte_percent, created_by, created_at, updated_at`

func scanDemand(row pgx.Row) (DemandLine, error) {
	var l DemandLine
	err := row.Scan(&l.ID, &l.TenantID, &l.PeriodID, &l.ProjectID, &l.ResourceID, &l.PlaceholderID, &l.Year, &l.Month, &l.FTEPercent, &l.CreatedBy, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

const supplyColumns = `id, tenant_id, period_id, resource_id, project_id, year, month, fte_percent, created_by, created_at, updated_at`

func scanSupply(row pgx.Row) (SupplyLine, error) {
	var l SupplyLine
	err := row.Scan(&l.ID, &l.TenantID, &l.PeriodID, &l.ResourceID, &l.ProjectID, &l.Year, &l.Month, &l.FTEPercent, &l.CreatedBy, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

const actualColumns = `id, tenant_id, period_id, resource_id, project_id, year, month, planned_fte_percent, actual_fte_percent,
employee_signed_at, employee_signed_by, is_proxy_signed, COALESCE(proxy_sign_reason, ''), ro_approved_at, ro_approved_by,
created_by, created_at, updated_at`

func scanActual(row pgx.Row) (ActualLine, error) {
	var l ActualLine
	err := row.Scan(&l.ID, &l.TenantID, &l.PeriodID, &l.ResourceID, &l.ProjectID, &l.Year, &l.Month, &l.PlannedFTEPercent, &l.ActualFTEPercent,
		&l.SignedAt, &l.SignedBy, &l.ProxySigned, &l.ProxySignReason, &l.ROApprovedAt, &l.ROApprovedBy,
		&l.CreatedBy, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

const oopColumns = `id, tenant_id, period_id, resource_id, project_id, year, month, hours, hourly_rate, total_cost, COALESCE(description, ''), created_by, created_at, updated_at`

func scanOOP(row pgx.Row) (OOPLine, error) {
	var l OOPLine
	err := row.Scan(&l.ID, &l.TenantID, &l.PeriodID, &l.ResourceID, &l.ProjectID, &l.Year, &l.Month, &l.Hours, &l.HourlyRate, &l.TotalCost, &l.Description, &l.CreatedBy, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

// ListDemand implements RepositoryPort.
func (r *Repository) ListDemand(ctx context.Context, tenantID string, f Filter) ([]DemandLine, error) {
	cond, args := where(tenantID, f)
	return queryLines(ctx, db.Querier(ctx, r.pool), `SELECT `+demandColumns+` FROM demand_lines`+cond+` ORDER BY year, month, created_at`, args, scanDemand)
}

// GetDemand implements RepositoryPort.
func (r *Repository) GetDemand(ctx context.Context, tenantID string, id uuid.UUID) (DemandLine, error) {
	return getOne(ctx, db.Querier(ctx, r.pool), "demand line", `SELECT `+demandColumns+` FROM demand_lines WHERE tenant_id = $1 AND id = $2`, []any{tenantID, id}, scanDemand)
}

// ListSupply implements RepositoryPort.
func (r *Repository) ListSupply(ctx context.Context, tenantID string, f Filter) ([]SupplyLine, error) {
	cond, args := where(tenantID, f)
	return queryLines(ctx, db.Querier(ctx, r.pool), `SELECT `+supplyColumns+` FROM supply_lines`+cond+` ORDER BY year, month, created_at`, args, scanSupply)
}

// GetSupply implements RepositoryPort.
func (r *Repository) GetSupply(ctx context.Context, tenantID string, id uuid.UUID) (SupplyLine, error) {
	return getOne(ctx, db.Querier(ctx, r.pool), "supply line", `SELECT `+supplyColumns+` FROM supply_lines WHERE tenant_id = $1 AND id = $2`, []any{tenantID, id}, scanSupply)
}

// ListActuals implements RepositoryPort.
func (r *Repository) ListActuals(ctx context.Context, tenantID string, f Filter) ([]ActualLine, error) {
	cond, args := where(tenantID, f)
	return queryLines(ctx, db.Querier(ctx, r.pool), `SELECT `+actualColumns+` FROM actual_lines`+cond+` ORDER BY year, month, created_at`, args, scanActual)
}

// GetActual implements RepositoryPort.
func (r *Repository) GetActual(ctx context.Context, tenantID string, id uuid.UUID) (ActualLine, error) {
	return getOne(ctx, db.Querier(ctx, r.pool), "actual line", `SELECT `+actualColumns+` FROM actual_lines WHERE tenant_id = $1 AND id = $2`, []any{tenantID, id}, scanActual)
}

// ListOOP implements RepositoryPort.
func (r *Repository) ListOOP(ctx context.Context, tenantID string, f Filter) ([]OOPLine, error) {
	cond, args := where(tenantID, f)
	return queryLines(ctx, db.Querier(ctx, r.pool), `SELECT `+oopColumns+` FROM oop_lines`+cond+` ORDER BY year, month, created_at`, args, scanOOP)
}

type txRepo struct {
	q db.DBTX
}

func (t *txRepo) PeriodForShare(ctx context.Context, tenantID string, ym shared.YearMonth) (*periods.Period, error) {
	return periods.LoadForShare(ctx, t.q, tenantID, ym)
}

func (t *txRepo) AdvisoryLock(ctx context.Context, key string) error {
	return db.AdvisoryLock(ctx, t.q, key)
}

func (t *txRepo) DemandExists(ctx context.Context, l DemandLine) (bool, error) {
	return exists(ctx, t.q, `SELECT 1 FROM demand_lines
WHERE tenant_id = $1 AND project_id = $2 AND year = $3 AND month = $4
  AND resource_id IS NOT DISTINCT FROM $5 AND placeholder_id IS NOT DISTINCT FROM $6`,
		l.TenantID, l.ProjectID, l.Year, l.Month, l.ResourceID, l.PlaceholderID)
}

func (t *txRepo) InsertDemand(ctx context.Context, l DemandLine) error {
	_, err := t.q.Exec(ctx, `INSERT INTO demand_lines (`+demandColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		l.ID, l.TenantID, l.PeriodID, l.ProjectID, l.ResourceID, l.PlaceholderID, l.Year, l.Month, l.FTEPercent, l.CreatedBy, l.CreatedAt, l.UpdatedAt)
	return insertErr("demand line", err)
}

func (t *txRepo) LoadDemandForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (DemandLine, error) {
	return getOne(ctx, t.q, "demand line", `SELECT `+demandColumns+` FROM demand_lines WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, []any{tenantID, id}, scanDemand)
}

func (t *txRepo) UpdateDemand(ctx context.Context, l DemandLine) error {
	return exec(ctx, t.q, "demand line", `UPDATE demand_lines SET fte_percent = $3, updated_at = $4 WHERE tenant_id = $1 AND id = $2`,
		l.TenantID, l.ID, l.FTEPercent, l.UpdatedAt)
}

func (t *txRepo) DeleteDemand(ctx context.Context, tenantID string, id uuid.UUID) error {
	return exec(ctx, t.q, "demand line", `DELETE FROM demand_lines WHERE tenant_id = $1 AND id = $2`, tenantID, id)
}

func (t *txRepo) SupplyExists(ctx context.Context, l SupplyLine) (bool, error) {
	return exists(ctx, t.q, `SELECT 1 FROM supply_lines
WHERE tenant_id = $1 AND resource_id = $2 AND year = $3 AND month = $4 AND project_id IS NOT DISTINCT FROM $5`,
		l.TenantID, l.ResourceID, l.Year, l.Month, l.ProjectID)
}

func (t *txRepo) InsertSupply(ctx context.Context, l SupplyLine) error {
	_, err := t.q.Exec(ctx, `INSERT INTO supply_lines (`+supplyColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		l.ID, l.TenantID, l.PeriodID, l.ResourceID, l.ProjectID, l.Year, l.Month, l.FTEPercent, l.CreatedBy, l.CreatedAt, l.UpdatedAt)
	return insertErr("supply line", err)
}

func (t *txRepo) LoadSupplyForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (SupplyLine, error) {
	return getOne(ctx, t.q, "supply line", `SELECT `+supplyColumns+` FROM supply_lines WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, []any{tenantID, id}, scanSupply)
}

func (t *txRepo) UpdateSupply(ctx context.Context, l SupplyLine) error {
	return exec(ctx, t.q, "supply line", `UPDATE supply_lines SET fte_percent = $3, updated_at = $4 WHERE tenant_id = $1 AND id = $2`,
		l.TenantID, l.ID, l.FTEPercent, l.UpdatedAt)
}

func (t *txRepo) DeleteSupply(ctx context.Context, tenantID string, id uuid.UUID) error {
	return exec(ctx, t.q, "supply line", `DELETE FROM supply_lines WHERE tenant_id = $1 AND id = $2`, tenantID, id)
}

func (t *txRepo) ActualExists(ctx context.Context, l ActualLine) (bool, error) {
	return exists(ctx, t.q, `SELECT 1 FROM actual_lines
WHERE tenant_id = $1 AND resource_id = $2 AND project_id = $3 AND year = $4 AND month = $5`,
		l.TenantID, l.ResourceID, l.ProjectID, l.Year, l.Month)
}

func (t *txRepo) ActualsForResourceMonth(ctx context.Context, tenantID string, resourceID uuid.UUID, ym shared.YearMonth) ([]ActualLine, error) {
	return queryLines(ctx, t.q, `SELECT `+actualColumns+` FROM actual_lines
WHERE tenant_id = $1 AND resource_id = $2 AND year = $3 AND month = $4 ORDER BY created_at`,
		[]any{tenantID, resourceID, ym.Year, ym.Month}, scanActual)
}

func (t *txRepo) InsertActual(ctx context.Context, l ActualLine) error {
	_, err := t.q.Exec(ctx, `INSERT INTO actual_lines
    (id, tenant_id, period_id, resource_id, project_id, year, month, planned_fte_percent, actual_fte_percent, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		l.ID, l.TenantID, l.PeriodID, l.ResourceID, l.ProjectID, l.Year, l.Month, l.PlannedFTEPercent, l.ActualFTEPercent, l.CreatedBy, l.CreatedAt, l.UpdatedAt)
	return insertErr("actual line", err)
}

func (t *txRepo) LoadActualForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (ActualLine, error) {
	return getOne(ctx, t.q, "actual line", `SELECT `+actualColumns+` FROM actual_lines WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, []any{tenantID, id}, scanActual)
}

func (t *txRepo) UpdateActual(ctx context.Context, l ActualLine) error {
	return exec(ctx, t.q, "actual line", `UPDATE actual_lines
SET actual_fte_percent = $3, employee_signed_at = $4, employee_signed_by = $5, is_proxy_signed = $6,
    proxy_sign_reason = NULLIF($7, ''), ro_approved_at = $8, ro_approved_by = $9, updated_at = $10
WHERE tenant_id = $1 AND id = $2`,
		l.TenantID, l.ID, l.ActualFTEPercent, l.SignedAt, l.SignedBy, l.ProxySigned, l.ProxySignReason, l.ROApprovedAt, l.ROApprovedBy, l.UpdatedAt)
}

func (t *txRepo) DeleteActual(ctx context.Context, tenantID string, id uuid.UUID) error {
	return exec(ctx, t.q, "actual line", `DELETE FROM actual_lines WHERE tenant_id = $1 AND id = $2`, tenantID, id)
}

func (t *txRepo) InsertOOP(ctx context.Context, l OOPLine) error {
	_, err := t.q.Exec(ctx, `INSERT INTO oop_lines (id, tenant_id, period_id, resource_id, project_id, year, month, hours, hourly_rate, total_cost, description, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13, $14)`,
		l.ID, l.TenantID, l.PeriodID, l.ResourceID, l.ProjectID, l.Year, l.Month, l.Hours, l.HourlyRate, l.TotalCost, l.Description, l.CreatedBy, l.CreatedAt, l.UpdatedAt)
	return insertErr("oop line", err)
}

func insertErr(entity string, err error) error {
	if db.IsUniqueViolation(err) {
		return shared.Conflict(entity + " already exists for this combination").WithCause(err)
	}
	if err != nil {
		return fmt.Errorf("planning: insert %s: %w", entity, err)
	}
	return nil
}
