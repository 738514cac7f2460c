package approvals

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/resource-planning/internal/directory"
	"github.com/odyssey-erp/resource-planning/internal/periods"
	"github.com/odyssey-erp/resource-planning/internal/shared"
)

// RepositoryPort abstracts persistence for approval instances.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, tenantID string, id uuid.UUID) (Instance, error)
	Actions(ctx context.Context, instanceID uuid.UUID) ([]Action, error)
	ListPending(ctx context.Context, tenantID string) ([]Instance, error)
	OverviewSources(ctx context.Context, tenantID string, f OverviewFilter) ([]OverviewSource, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	AdvisoryLock(ctx context.Context, key string) error
	PeriodForShare(ctx context.Context, tenantID string, ym shared.YearMonth) (*periods.Period, error)
	FindBySubject(ctx context.Context, tenantID, subjectType string, subjectID uuid.UUID) (*Instance, error)
	Insert(ctx context.Context, inst Instance) error
	LoadForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (Instance, error)
	SaveTransition(ctx context.Context, inst Instance) error
	InsertAction(ctx context.Context, a Action) error
	ActualMonth(ctx context.Context, tenantID string, actualID uuid.UUID) (shared.YearMonth, error)
	MarkROApproved(ctx context.Context, tenantID string, actualID, approver uuid.UUID, at time.Time) error
}

// AuditPort records audit trails.
type AuditPort interface {
	Record(ctx context.Context, entry shared.AuditLog) error
}

// Observer counts approval transitions.
type Observer interface {
	ObserveApproval(step StepName, status StepStatus)
}

// Service drives approval instances through their steps.
type Service struct {
	repo     RepositoryPort
	dir      directory.Directory
	audit    AuditPort
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo RepositoryPort, dir directory.Directory, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, dir: dir, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithObserver registers a metrics observer.
func (s *Service) WithObserver(o Observer) {
	s.observer = o
}

// EnsureForActual creates the approval instance for a signed actual line unless one
// already exists. It joins the caller's transaction when one is in flight.
func (s *Service) EnsureForActual(ctx context.Context, actor shared.Actor, actualID, resourceID uuid.UUID) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.AdvisoryLock(ctx, shared.ApprovalSubjectLockKey(actualID)); err != nil {
			return err
		}
		existing, err := tx.FindBySubject(ctx, actor.TenantID, SubjectActuals, actualID)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}
		ro, director, err := s.resolveApprovers(ctx, actor.TenantID, resourceID)
		if err != nil {
			return err
		}
		inst := NewInstance(actor.TenantID, actualID, actor.UserID, ro, director, s.now().UTC())
		if err := tx.Insert(ctx, inst); err != nil {
			return err
		}
		for _, step := range inst.Steps {
			if step.ApproverID == nil && step.Status == StepPending {
				s.logger.Info("approval step falls back to role holders",
					slog.String("tenant_id", actor.TenantID),
					slog.String("instance_id", inst.ID.String()),
					slog.String("step", string(step.Name)))
			}
		}
		s.logger.Info("approval instance created",
			slog.String("tenant_id", actor.TenantID),
			slog.String("instance_id", inst.ID.String()),
			slog.String("actual_id", actualID.String()))
		return nil
	})
}

// resolveApprovers looks up the cost-center owner and the department director of a resource.
// Deactivated resources still resolve so lines of people who left can be proxy-signed.
// Missing links leave the approver unset.
func (s *Service) resolveApprovers(ctx context.Context, tenantID string, resourceID uuid.UUID) (ro, director *uuid.UUID, err error) {
	res, err := s.dir.ResourceRecord(ctx, tenantID, resourceID)
	if err != nil {
		return nil, nil, err
	}
	cc, err := s.dir.CostCenter(ctx, tenantID, res.CostCenterID)
	if err != nil {
		if shared.CodeOf(err) == shared.CodeNotFound {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	ro = cc.ROUserID
	dir, err := s.dir.DirectorOf(ctx, tenantID, cc.DepartmentID)
	if err != nil {
		return nil, nil, err
	}
	if dir != nil {
		id := dir.ID
		director = &id
	}
	return ro, director, nil
}

// Get returns an instance together with its action history.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id uuid.UUID) (Detail, error) {
	if err := actor.Require(shared.CapActionApprovals); err != nil {
		return Detail{}, err
	}
	inst, err := s.repo.Get(ctx, actor.TenantID, id)
	if err != nil {
		return Detail{}, err
	}
	actions, err := s.repo.Actions(ctx, inst.ID)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Instance: inst, Actions: actions}, nil
}

// CurrentStep returns the step awaiting a decision, or nil when the instance is finished.
func (s *Service) CurrentStep(ctx context.Context, actor shared.Actor, id uuid.UUID) (*Step, error) {
	inst, err := s.repo.Get(ctx, actor.TenantID, id)
	if err != nil {
		return nil, err
	}
	step := inst.CurrentStep()
	if step == nil {
		return nil, nil
	}
	out := *step
	return &out, nil
}

// Inbox lists pending instances whose current step the actor may decide.
func (s *Service) Inbox(ctx context.Context, actor shared.Actor) ([]Instance, error) {
	if err := actor.Require(shared.CapActionApprovals); err != nil {
		return nil, err
	}
	pending, err := s.repo.ListPending(ctx, actor.TenantID)
	if err != nil {
		return nil, err
	}
	out := make([]Instance, 0, len(pending))
	for _, inst := range pending {
		if step := inst.CurrentStep(); step != nil && CanAction(*step, actor) {
			out = append(out, inst)
		}
	}
	return out, nil
}

// Approve approves stepID of instance id.
func (s *Service) Approve(ctx context.Context, actor shared.Actor, id, stepID uuid.UUID, comment string) (Instance, error) {
	return s.transition(ctx, actor, id, stepID, comment, "approve")
}

// Reject rejects stepID of instance id, terminating the instance.
func (s *Service) Reject(ctx context.Context, actor shared.Actor, id, stepID uuid.UUID, comment string) (Instance, error) {
	return s.transition(ctx, actor, id, stepID, comment, "reject")
}

func (s *Service) transition(ctx context.Context, actor shared.Actor, id, stepID uuid.UUID, comment, action string) (Instance, error) {
	if err := actor.Require(shared.CapActionApprovals); err != nil {
		return Instance{}, err
	}
	comment = strings.TrimSpace(comment)
	var (
		out     Instance
		decided Step
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.AdvisoryLock(ctx, shared.ApprovalInstanceLockKey(id)); err != nil {
			return err
		}
		inst, err := tx.LoadForUpdate(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if inst.Status != InstancePending {
			return shared.Validation("approval is already " + string(inst.Status))
		}
		ym, err := tx.ActualMonth(ctx, actor.TenantID, inst.SubjectID)
		if err != nil {
			return err
		}
		period, err := tx.PeriodForShare(ctx, actor.TenantID, ym)
		if err != nil {
			return err
		}
		if err := periods.CheckOpen(period, ym); err != nil {
			return err
		}
		now := s.now().UTC()
		switch action {
		case "approve":
			decided, err = inst.Approve(stepID, actor, comment, now)
		default:
			decided, err = inst.Reject(stepID, actor, comment, now)
		}
		if err != nil {
			return err
		}
		if err := tx.SaveTransition(ctx, inst); err != nil {
			return err
		}
		if err := tx.InsertAction(ctx, Action{
			ID:         uuid.New(),
			InstanceID: inst.ID,
			StepID:     decided.ID,
			ActorID:    actor.UserID,
			Action:     action,
			Comment:    comment,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		if decided.Name == StepRO && decided.Status == StepApproved {
			if err := tx.MarkROApproved(ctx, actor.TenantID, inst.SubjectID, actor.UserID, now); err != nil {
				return err
			}
		}
		entry := shared.NewAuditLog(actor, action, "ApprovalStep", decided.ID)
		entry.OldValues = map[string]any{"status": string(StepPending)}
		entry.NewValues = map[string]any{
			"status":          string(decided.Status),
			"step":            string(decided.Name),
			"instance_id":     inst.ID.String(),
			"instance_status": string(inst.Status),
		}
		entry.Reason = comment
		if err := s.audit.Record(ctx, entry); err != nil {
			return err
		}
		out = inst
		return nil
	})
	if err != nil {
		return Instance{}, err
	}
	if s.observer != nil {
		s.observer.ObserveApproval(decided.Name, decided.Status)
	}
	if decided.ApproverID == nil {
		s.logger.Warn("approval step decided by role holder",
			slog.String("tenant_id", actor.TenantID),
			slog.String("step_id", decided.ID.String()),
			slog.String("actor_id", actor.UserID.String()),
			slog.String("role", string(actor.Role)))
	}
	s.logger.Info("approval step decided",
		slog.String("tenant_id", actor.TenantID),
		slog.String("instance_id", out.ID.String()),
		slog.String("step", string(decided.Name)),
		slog.String("status", string(decided.Status)))
	return out, nil
}
