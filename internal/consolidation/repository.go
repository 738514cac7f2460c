package consolidation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/resource-planning/internal/periods"
	"github.com/odyssey-erp/resource-planning/internal/platform/db"
	"github.com/odyssey-erp/resource-planning/internal/shared"
)

// Repository persists snapshots in Postgres.
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
		return fn(ctx, &txRepo{tx: tx})
	})
}

// Period implements RepositoryPort.
func (r *Repository) Period(ctx context.Context, tenantID string, id uuid.UUID) (periods.Period, error) {
	return periods.LoadByID(ctx, db.Querier(ctx, r.pool), tenantID, id, false)
}

const snapshotColumns = `s.id, s.tenant_id, s.period_id, s.name, COALESCE(s.description, ''), s.published_by, s.published_at,
(SELECT COUNT(*) FROM publish_snapshot_lines l WHERE l.snapshot_id = s.id)`

func scanSnapshot(row pgx.Row) (Snapshot, error) {
	var snap Snapshot
	err := row.Scan(&snap.ID, &snap.TenantID, &snap.PeriodID, &snap.Name, &snap.Description,
		&snap.PublishedBy, &snap.PublishedAt, &snap.LinesCount)
	return snap, err
}

// ListSnapshots implements RepositoryPort.
func (r *Repository) ListSnapshots(ctx context.Context, tenantID string, periodID *uuid.UUID) ([]Snapshot, error) {
	rows, err := db.Querier(ctx, r.pool).Query(ctx, `SELECT `+snapshotColumns+` FROM publish_snapshots s
WHERE s.tenant_id = $1 AND ($2::uuid IS NULL OR s.period_id = $2)
ORDER BY s.published_at DESC`, tenantID, periodID)
	if err != nil {
		return nil, fmt.Errorf("consolidation: list snapshots: %w", err)
	}
	defer rows.Close()
	out := []Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("consolidation: scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// GetSnapshot implements RepositoryPort.
func (r *Repository) GetSnapshot(ctx context.Context, tenantID string, id uuid.UUID) (Snapshot, error) {
	q := db.Querier(ctx, r.pool)
	snap, err := scanSnapshot(q.QueryRow(ctx, `SELECT `+snapshotColumns+` FROM publish_snapshots s
WHERE s.tenant_id = $1 AND s.id = $2`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, shared.NotFound("snapshot")
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("consolidation: load snapshot: %w", err)
	}
	rows, err := q.Query(ctx, `SELECT id, snapshot_id, line_type, project_id, COALESCE(project_name, ''),
resource_id, COALESCE(resource_name, ''), placeholder_id, COALESCE(placeholder_name, ''),
COALESCE(department_name, ''), COALESCE(cost_center_name, ''), year, month, fte_percent, hours, cost
FROM publish_snapshot_lines WHERE snapshot_id = $1
ORDER BY line_type, year, month, resource_name NULLS LAST, id`, id)
	if err != nil {
		return Snapshot{}, fmt.Errorf("consolidation: load snapshot lines: %w", err)
	}
	defer rows.Close()
	snap.Lines = []SnapshotLine{}
	for rows.Next() {
		var l SnapshotLine
		var lineType string
		if err := rows.Scan(&l.ID, &l.SnapshotID, &lineType, &l.ProjectID, &l.ProjectName,
			&l.ResourceID, &l.ResourceName, &l.PlaceholderID, &l.PlaceholderName,
			&l.DepartmentName, &l.CostCenterName, &l.Year, &l.Month, &l.FTEPercent, &l.Hours, &l.Cost); err != nil {
			return Snapshot{}, fmt.Errorf("consolidation: scan snapshot line: %w", err)
		}
		l.LineType = LineType(lineType)
		snap.Lines = append(snap.Lines, l)
	}
	return snap, rows.Err()
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) Period(ctx context.Context, tenantID string, id uuid.UUID) (periods.Period, error) {
	return periods.LoadByID(ctx, t.tx, tenantID, id, true)
}

func (t *txRepo) InsertSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO publish_snapshots (id, tenant_id, period_id, name, description, published_by, published_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)`,
		snap.ID, snap.TenantID, snap.PeriodID, snap.Name, snap.Description, snap.PublishedBy, snap.PublishedAt)
	if err != nil {
		return fmt.Errorf("consolidation: insert snapshot: %w", err)
	}
	return nil
}

func (t *txRepo) InsertLines(ctx context.Context, lines []SnapshotLine) error {
	if len(lines) == 0 {
		return nil
	}
	const query = `INSERT INTO publish_snapshot_lines
    (id, snapshot_id, line_type, project_id, project_name, resource_id, resource_name, placeholder_id, placeholder_name,
     department_name, cost_center_name, year, month, fte_percent, hours, cost)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), $8, NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), $12, $13, $14, $15, $16)`
	batch := &pgx.Batch{}
	for _, l := range lines {
		batch.Queue(query, l.ID, l.SnapshotID, string(l.LineType), l.ProjectID, l.ProjectName,
			l.ResourceID, l.ResourceName, l.PlaceholderID, l.PlaceholderName,
			l.DepartmentName, l.CostCenterName, l.Year, l.Month, l.FTEPercent, l.Hours, l.Cost)
	}
	results := t.tx.SendBatch(ctx, batch)
	for range lines {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("consolidation: insert snapshot line: %w", err)
		}
	}
	return results.Close()
}
