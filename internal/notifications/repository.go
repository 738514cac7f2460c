package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/resource-planning/internal/platform/db"
	"github.com/odyssey-erp/resource-planning/internal/shared"
)

// Repository persists notification runs and logs in Postgres.
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

const logColumns = `id, tenant_id, run_id, phase, year, month, recipient_id, recipient_email, subject, body, status,
COALESCE(error_message, ''), sent_at, created_at`

func scanLog(row pgx.Row) (Log, error) {
	var l Log
	var phase, status string
	err := row.Scan(&l.ID, &l.TenantID, &l.RunID, &phase, &l.Year, &l.Month, &l.RecipientID, &l.RecipientEmail,
		&l.Subject, &l.Body, &status, &l.Error, &l.SentAt, &l.CreatedAt)
	l.Phase, l.Status = Phase(phase), Status(status)
	return l, err
}

// Logs implements RepositoryPort.
func (r *Repository) Logs(ctx context.Context, tenantID string, f LogFilter) ([]Log, error) {
	clauses := []string{"tenant_id = $1"}
	args := []any{tenantID}
	add := func(column string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if f.Phase != nil {
		add("phase", string(*f.Phase))
	}
	if f.Year != nil {
		add("year", *f.Year)
	}
	if f.Month != nil {
		add("month", *f.Month)
	}
	if f.RunID != nil {
		add("run_id", *f.RunID)
	}
	rows, err := db.Querier(ctx, r.pool).Query(ctx, `SELECT `+logColumns+` FROM notification_logs
WHERE `+strings.Join(clauses, " AND ")+` ORDER BY created_at DESC, recipient_email`, args...)
	if err != nil {
		return nil, fmt.Errorf("notifications: list logs: %w", err)
	}
	defer rows.Close()
	out := []Log{}
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("notifications: scan log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Tenants implements RepositoryPort.
func (r *Repository) Tenants(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT tenant_id FROM users WHERE is_active ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("notifications: list tenants: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// MarkDelivery implements RepositoryPort. Only PENDING rows change.
func (r *Repository) MarkDelivery(ctx context.Context, tenantID string, id uuid.UUID, status Status, errMsg string, at time.Time) error {
	var sentAt *time.Time
	if status == StatusSent {
		sentAt = &at
	}
	_, err := r.pool.Exec(ctx, `UPDATE notification_logs
SET status = $3, error_message = NULLIF($4, ''), sent_at = $5
WHERE tenant_id = $1 AND id = $2 AND status = 'PENDING'`, tenantID, id, string(status), errMsg, sentAt)
	if err != nil {
		return fmt.Errorf("notifications: mark delivery: %w", err)
	}
	return nil
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) FindRun(ctx context.Context, tenantID string, phase Phase, ym shared.YearMonth) (*Run, error) {
	var run Run
	var p, mode string
	err := t.tx.QueryRow(ctx, `SELECT run_id, tenant_id, phase, year, month, mode, deadline, created_at
FROM notification_runs WHERE tenant_id = $1 AND phase = $2 AND year = $3 AND month = $4`,
		tenantID, string(phase), ym.Year, ym.Month).
		Scan(&run.RunID, &run.TenantID, &p, &run.Year, &run.Month, &mode, &run.Deadline, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("notifications: find run: %w", err)
	}
	run.Phase, run.Mode = Phase(p), Mode(mode)
	return &run, nil
}

func (t *txRepo) InsertRun(ctx context.Context, run Run) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO notification_runs (run_id, tenant_id, phase, year, month, mode, deadline, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.RunID, run.TenantID, string(run.Phase), run.Year, run.Month, string(run.Mode), run.Deadline, run.CreatedAt)
	if db.IsUniqueViolation(err) {
		return shared.Conflict("notification phase already run for this month").WithCause(err)
	}
	if err != nil {
		return fmt.Errorf("notifications: insert run: %w", err)
	}
	return nil
}

func (t *txRepo) InsertLogs(ctx context.Context, logs []Log) error {
	if len(logs) == 0 {
		return nil
	}
	const query = `INSERT INTO notification_logs
    (id, tenant_id, run_id, phase, year, month, recipient_id, recipient_email, subject, body, status, sent_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	batch := &pgx.Batch{}
	for _, l := range logs {
		batch.Queue(query, l.ID, l.TenantID, l.RunID, string(l.Phase), l.Year, l.Month, l.RecipientID, l.RecipientEmail,
			l.Subject, l.Body, string(l.Status), l.SentAt, l.CreatedAt)
	}
	results := t.tx.SendBatch(ctx, batch)
	for range logs {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("notifications: insert log: %w", err)
		}
	}
	return results.Close()
}
