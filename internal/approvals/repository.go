package approvals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/resource-planning/internal/periods"
	"github.com/odyssey-erp/resource-planning/internal/platform/db"
	"github.com/odyssey-erp/resource-planning/internal/shared"
)

// Repository persists approval instances in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn inside a serializable transaction, joining one already in ctx.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

const instanceColumns = `id, tenant_id, subject_type, subject_id, status, COALESCE(created_by, '00000000-0000-0000-0000-000000000000'::uuid), created_at, updated_at`

func scanInstance(row pgx.Row) (Instance, error) {
	var inst Instance
	var status string
	err := row.Scan(&inst.ID, &inst.TenantID, &inst.SubjectType, &inst.SubjectID, &status, &inst.CreatedBy, &inst.CreatedAt, &inst.UpdatedAt)
	inst.Status = InstanceStatus(status)
	return inst, err
}

func loadInstance(ctx context.Context, q db.DBTX, tenantID string, id uuid.UUID, lock string) (Instance, error) {
	inst, err := scanInstance(q.QueryRow(ctx, `SELECT `+instanceColumns+` FROM approval_instances WHERE tenant_id = $1 AND id = $2`+lock, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Instance{}, shared.NotFound("approval")
	}
	if err != nil {
		return Instance{}, fmt.Errorf("approvals: load instance: %w", err)
	}
	if err := attachSteps(ctx, q, []*Instance{&inst}); err != nil {
		return Instance{}, err
	}
	return inst, nil
}

// attachSteps loads the steps of every instance in one query.
func attachSteps(ctx context.Context, q db.DBTX, instances []*Instance) error {
	if len(instances) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(instances))
	byID := make(map[uuid.UUID]*Instance, len(instances))
	for _, inst := range instances {
		ids = append(ids, inst.ID)
		byID[inst.ID] = inst
	}
	rows, err := q.Query(ctx, `SELECT id, instance_id, step_order, step_name, approver_id, status, actioned_at, actioned_by, COALESCE(comment, '')
FROM approval_steps WHERE instance_id = ANY($1) ORDER BY instance_id, step_order`, ids)
	if err != nil {
		return fmt.Errorf("approvals: load steps: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s Step
		var name, status string
		if err := rows.Scan(&s.ID, &s.InstanceID, &s.Order, &name, &s.ApproverID, &status, &s.ActionedAt, &s.ActionedBy, &s.Comment); err != nil {
			return fmt.Errorf("approvals: scan step: %w", err)
		}
		s.Name = StepName(name)
		s.Status = StepStatus(status)
		if inst, ok := byID[s.InstanceID]; ok {
			inst.Steps = append(inst.Steps, s)
		}
	}
	return rows.Err()
}

// Get implements RepositoryPort.
func (r *Repository) Get(ctx context.Context, tenantID string, id uuid.UUID) (Instance, error) {
	return loadInstance(ctx, r.pool, tenantID, id, "")
}

// Actions implements RepositoryPort.
func (r *Repository) Actions(ctx context.Context, instanceID uuid.UUID) ([]Action, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, instance_id, step_id, actor_id, action, COALESCE(comment, ''), created_at
FROM approval_actions WHERE instance_id = $1 ORDER BY created_at`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("approvals: list actions: %w", err)
	}
	defer rows.Close()
	out := []Action{}
	for rows.Next() {
		var a Action
		if err := rows.Scan(&a.ID, &a.InstanceID, &a.StepID, &a.ActorID, &a.Action, &a.Comment, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("approvals: scan action: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListPending implements RepositoryPort.
func (r *Repository) ListPending(ctx context.Context, tenantID string) ([]Instance, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+instanceColumns+` FROM approval_instances
WHERE tenant_id = $1 AND status = 'pending' ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("approvals: list pending: %w", err)
	}
	var out []Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("approvals: scan instance: %w", err)
		}
		out = append(out, inst)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	ptrs := make([]*Instance, len(out))
	for i := range out {
		ptrs[i] = &out[i]
	}
	if err := attachSteps(ctx, r.pool, ptrs); err != nil {
		return nil, err
	}
	return out, nil
}

// OverviewSources implements RepositoryPort.
func (r *Repository) OverviewSources(ctx context.Context, tenantID string, f OverviewFilter) ([]OverviewSource, error) {
	clauses := []string{"a.tenant_id = $1"}
	args := []any{tenantID}
	add := func(expr string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(expr, len(args)))
	}
	if f.Year != nil {
		add("a.year = $%d", *f.Year)
	}
	if f.Month != nil {
		add("a.month = $%d", *f.Month)
	}
	if f.ProjectID != nil {
		add("a.project_id = $%d", *f.ProjectID)
	}
	rows, err := r.pool.Query(ctx, `SELECT a.id, a.resource_id, a.project_id, a.year, a.month, a.actual_fte_percent,
       i.id, i.status
FROM actual_lines a
LEFT JOIN approval_instances i ON i.tenant_id = a.tenant_id AND i.subject_type = 'actuals' AND i.subject_id = a.id
WHERE `+strings.Join(clauses, " AND ")+`
ORDER BY a.year, a.month, a.created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("approvals: overview: %w", err)
	}
	var out []OverviewSource
	for rows.Next() {
		var (
			src        OverviewSource
			instanceID *uuid.UUID
			status     *string
		)
		if err := rows.Scan(&src.ActualID, &src.ResourceID, &src.ProjectID, &src.Year, &src.Month, &src.FTEPercent, &instanceID, &status); err != nil {
			rows.Close()
			return nil, fmt.Errorf("approvals: scan overview: %w", err)
		}
		if instanceID != nil {
			src.Instance = &Instance{ID: *instanceID, TenantID: tenantID, SubjectType: SubjectActuals, SubjectID: src.ActualID, Status: InstanceStatus(*status)}
		}
		out = append(out, src)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var instances []*Instance
	for i := range out {
		if out[i].Instance != nil {
			instances = append(instances, out[i].Instance)
		}
	}
	if err := attachSteps(ctx, r.pool, instances); err != nil {
		return nil, err
	}
	return out, nil
}

type txRepo struct {
	q db.DBTX
}

func (t *txRepo) AdvisoryLock(ctx context.Context, key string) error {
	return db.AdvisoryLock(ctx, t.q, key)
}

func (t *txRepo) PeriodForShare(ctx context.Context, tenantID string, ym shared.YearMonth) (*periods.Period, error) {
	return periods.LoadForShare(ctx, t.q, tenantID, ym)
}

func (t *txRepo) FindBySubject(ctx context.Context, tenantID, subjectType string, subjectID uuid.UUID) (*Instance, error) {
	var id uuid.UUID
	err := t.q.QueryRow(ctx, `SELECT id FROM approval_instances WHERE tenant_id = $1 AND subject_type = $2 AND subject_id = $3`,
		tenantID, subjectType, subjectID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("approvals: find by subject: %w", err)
	}
	inst, err := loadInstance(ctx, t.q, tenantID, id, "")
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func (t *txRepo) Insert(ctx context.Context, inst Instance) error {
	_, err := t.q.Exec(ctx, `INSERT INTO approval_instances (id, tenant_id, subject_type, subject_id, status, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		inst.ID, inst.TenantID, inst.SubjectType, inst.SubjectID, string(inst.Status), inst.CreatedBy, inst.CreatedAt, inst.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return shared.Conflict("approval already exists for this subject").WithCause(err)
	}
	if err != nil {
		return fmt.Errorf("approvals: insert instance: %w", err)
	}
	for _, s := range inst.Steps {
		if _, err := t.q.Exec(ctx, `INSERT INTO approval_steps (id, instance_id, step_order, step_name, approver_id, status)
VALUES ($1, $2, $3, $4, $5, $6)`, s.ID, s.InstanceID, s.Order, string(s.Name), s.ApproverID, string(s.Status)); err != nil {
			return fmt.Errorf("approvals: insert step: %w", err)
		}
	}
	return nil
}

func (t *txRepo) LoadForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (Instance, error) {
	return loadInstance(ctx, t.q, tenantID, id, " FOR UPDATE")
}

func (t *txRepo) SaveTransition(ctx context.Context, inst Instance) error {
	if _, err := t.q.Exec(ctx, `UPDATE approval_instances SET status = $3, updated_at = $4 WHERE tenant_id = $1 AND id = $2`,
		inst.TenantID, inst.ID, string(inst.Status), inst.UpdatedAt); err != nil {
		return fmt.Errorf("approvals: update instance: %w", err)
	}
	for _, s := range inst.Steps {
		if _, err := t.q.Exec(ctx, `UPDATE approval_steps
SET status = $2, actioned_at = $3, actioned_by = $4, comment = NULLIF($5, '')
WHERE id = $1`, s.ID, string(s.Status), s.ActionedAt, s.ActionedBy, s.Comment); err != nil {
			return fmt.Errorf("approvals: update step: %w", err)
		}
	}
	return nil
}

func (t *txRepo) InsertAction(ctx context.Context, a Action) error {
	_, err := t.q.Exec(ctx, `INSERT INTO approval_actions (id, instance_id, step_id, actor_id, action, comment, created_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)`, a.ID, a.InstanceID, a.StepID, a.ActorID, a.Action, a.Comment, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("approvals: insert action: %w", err)
	}
	return nil
}

func (t *txRepo) ActualMonth(ctx context.Context, tenantID string, actualID uuid.UUID) (shared.YearMonth, error) {
	var ym shared.YearMonth
	err := t.q.QueryRow(ctx, `SELECT year, month FROM actual_lines WHERE tenant_id = $1 AND id = $2`, tenantID, actualID).Scan(&ym.Year, &ym.Month)
	if errors.Is(err, pgx.ErrNoRows) {
		return ym, shared.NotFound("actual line")
	}
	if err != nil {
		return ym, fmt.Errorf("approvals: load actual month: %w", err)
	}
	return ym, nil
}

func (t *txRepo) MarkROApproved(ctx context.Context, tenantID string, actualID, approver uuid.UUID, at time.Time) error {
	if _, err := t.q.Exec(ctx, `UPDATE actual_lines SET ro_approved_at = $3, ro_approved_by = $4, updated_at = $3
WHERE tenant_id = $1 AND id = $2`, tenantID, actualID, at, approver); err != nil {
		return fmt.Errorf("approvals: mark ro approved: %w", err)
	}
	return nil
}
