package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/resource-planning/internal/directory"
	"github.com/odyssey-erp/resource-planning/internal/platform/locks"
	"github.com/odyssey-erp/resource-planning/internal/shared"
)

// RepositoryPort abstracts persistence for runs and logs.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Logs(ctx context.Context, tenantID string, f LogFilter) ([]Log, error)
	Tenants(ctx context.Context) ([]string, error)
	MarkDelivery(ctx context.Context, tenantID string, id uuid.UUID, status Status, errMsg string, at time.Time) error
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	FindRun(ctx context.Context, tenantID string, phase Phase, ym shared.YearMonth) (*Run, error)
	// InsertRun fails with CONFLICT when a run for the same key already exists.
	InsertRun(ctx context.Context, run Run) error
	InsertLogs(ctx context.Context, logs []Log) error
}

// AuditPort records audit trails.
type AuditPort interface {
	Record(ctx context.Context, entry shared.AuditLog) error
}

// Enqueuer hands a queued run to the delivery worker.
type Enqueuer interface {
	EnqueueDelivery(ctx context.Context, tenantID string, runID uuid.UUID) error
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Log) error
}

// Observer counts written messages.
type Observer interface {
	ObserveNotifications(phase Phase, status Status, n int)
}

// Config carries the delivery mode.
type Config struct {
	Mode Mode `envconfig:"NOTIFY_MODE" default:"stub"`
}

// Service computes phase deadlines and records reminder batches.
type Service struct {
	repo     RepositoryPort
	dir      directory.Directory
	audit    AuditPort
	locker   locks.Locker
	queue    Enqueuer
	sender   Sender
	observer Observer
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a Service instance. A nil locker runs without cross-process locking.
func NewService(repo RepositoryPort, dir directory.Directory, audit AuditPort, locker locks.Locker, cfg Config, logger *slog.Logger) *Service {
	if cfg.Mode != ModeQueue {
		cfg.Mode = ModeStub
	}
	if locker == nil {
		locker = locks.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, dir: dir, audit: audit, locker: locker, cfg: cfg, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithDelivery wires the queue used in queue mode and the sender used by Deliver.
func (s *Service) WithDelivery(queue Enqueuer, sender Sender) {
	s.queue = queue
	s.sender = sender
}

// WithObserver registers a metrics observer.
func (s *Service) WithObserver(o Observer) {
	s.observer = o
}

// Mode reports the configured delivery mode.
func (s *Service) Mode() Mode {
	return s.cfg.Mode
}

// Deadline returns the phase's deadline for the month, moved past weekends and tenant holidays.
func (s *Service) Deadline(ctx context.Context, tenantID string, phase Phase, ym shared.YearMonth) (time.Time, error) {
	if err := ym.Validate(); err != nil {
		return time.Time{}, err
	}
	return s.shift(ctx, tenantID, phase.BaseDate(ym))
}

// DayDeadline returns day-of-month baseDay in ym, shifted like a phase deadline.
func (s *Service) DayDeadline(ctx context.Context, tenantID string, ym shared.YearMonth, baseDay int) (time.Time, error) {
	if err := ym.Validate(); err != nil {
		return time.Time{}, err
	}
	if baseDay < 1 || baseDay > 28 {
		return time.Time{}, shared.Validation("base_day must be between 1 and 28")
	}
	return s.shift(ctx, tenantID, time.Date(ym.Year, time.Month(ym.Month), baseDay, 0, 0, 0, 0, time.UTC))
}

func (s *Service) shift(ctx context.Context, tenantID string, base time.Time) (time.Time, error) {
	holidays, err := s.dir.Holidays(ctx, tenantID, base, base.AddDate(0, 0, holidayWindow))
	if err != nil {
		return time.Time{}, err
	}
	dates := make([]time.Time, 0, len(holidays))
	for _, h := range holidays {
		dates = append(dates, h.Date)
	}
	return ShiftToNextWorkday(base, dates), nil
}

func (s *Service) recipients(ctx context.Context, tenantID string, phase Phase) ([]directory.User, error) {
	return s.dir.UsersWithRoles(ctx, tenantID, phase.Roles()...)
}

// Preview resolves recipients and renders the message without writing anything.
func (s *Service) Preview(ctx context.Context, actor shared.Actor, phase Phase, ym shared.YearMonth) (Preview, error) {
	if err := actor.Require(shared.CapManageNotifications); err != nil {
		return Preview{}, err
	}
	deadline, err := s.Deadline(ctx, actor.TenantID, phase, ym)
	if err != nil {
		return Preview{}, err
	}
	users, err := s.recipients(ctx, actor.TenantID, phase)
	if err != nil {
		return Preview{}, err
	}
	subject, body := phase.Message(ym, deadline)
	out := Preview{
		Phase:           phase,
		Year:            ym.Year,
		Month:           ym.Month,
		Deadline:        deadline.Format(time.DateOnly),
		RecipientsCount: len(users),
		Recipients:      make([]Recipient, 0, len(users)),
		Subject:         subject,
		MessageTemplate: body,
	}
	for _, u := range users {
		out.Recipients = append(out.Recipients, Recipient{UserID: u.ID, Email: u.Email, DisplayName: u.DisplayName, Role: u.Role})
	}
	return out, nil
}

// Run writes one message per recipient for the phase and month. A second run for the same
// key returns the first run's id with status already_run and writes nothing.
func (s *Service) Run(ctx context.Context, actor shared.Actor, phase Phase, ym shared.YearMonth) (RunResult, error) {
	if err := actor.Require(shared.CapManageNotifications); err != nil {
		return RunResult{}, err
	}
	if err := ym.Validate(); err != nil {
		return RunResult{}, err
	}
	var result RunResult
	err := s.locker.WithLock(ctx, shared.NotificationRunLockKey(actor.TenantID, string(phase), ym), func(ctx context.Context) error {
		var err error
		result, err = s.run(ctx, actor, phase, ym)
		return err
	})
	if errors.Is(err, locks.ErrNotAcquired) {
		return RunResult{}, shared.Conflict(fmt.Sprintf("notification run for %s %s is in progress", phase, ym)).WithCause(err)
	}
	if err != nil {
		return RunResult{}, err
	}
	if result.Status != OutcomeSuccess {
		return result, nil
	}

	if s.observer != nil {
		status := StatusSent
		if result.Mode == ModeQueue {
			status = StatusPending
		}
		s.observer.ObserveNotifications(phase, status, result.NotificationsCount)
	}
	if result.Mode == ModeQueue && s.queue != nil && result.NotificationsCount > 0 {
		if err := s.queue.EnqueueDelivery(ctx, actor.TenantID, result.RunID); err != nil {
			// Logs stay PENDING until the run is enqueued again.
			s.logger.Warn("enqueue notification delivery",
				slog.String("tenant_id", actor.TenantID),
				slog.String("run_id", result.RunID.String()),
				slog.Any("error", err))
		}
	}
	s.logger.Info("notification run recorded",
		slog.String("tenant_id", actor.TenantID),
		slog.String("phase", string(phase)),
		slog.String("period", ym.String()),
		slog.String("run_id", result.RunID.String()),
		slog.Int("recipients", result.NotificationsCount))
	return result, nil
}

func alreadyRun(run Run) RunResult {
	return RunResult{
		Status: OutcomeAlreadyRun,
		RunID:  run.RunID,
		Phase:  run.Phase,
		Year:   run.Year,
		Month:  run.Month,
		Mode:   run.Mode,
	}
}

func (s *Service) run(ctx context.Context, actor shared.Actor, phase Phase, ym shared.YearMonth) (RunResult, error) {
	var result RunResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.FindRun(ctx, actor.TenantID, phase, ym)
		if err != nil {
			return err
		}
		if existing != nil {
			result = alreadyRun(*existing)
			return nil
		}
		deadline, err := s.Deadline(ctx, actor.TenantID, phase, ym)
		if err != nil {
			return err
		}
		users, err := s.recipients(ctx, actor.TenantID, phase)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		run := Run{
			RunID:     uuid.New(),
			TenantID:  actor.TenantID,
			Phase:     phase,
			Year:      ym.Year,
			Month:     ym.Month,
			Mode:      s.cfg.Mode,
			Deadline:  deadline,
			CreatedAt: now,
		}
		if err := tx.InsertRun(ctx, run); err != nil {
			return err
		}
		subject, body := phase.Message(ym, deadline)
		logs := make([]Log, 0, len(users))
		for _, u := range users {
			l := Log{
				ID:             uuid.New(),
				TenantID:       actor.TenantID,
				RunID:          run.RunID,
				Phase:          phase,
				Year:           ym.Year,
				Month:          ym.Month,
				RecipientID:    u.ID,
				RecipientEmail: u.Email,
				Subject:        subject,
				Body:           body,
				Status:         StatusPending,
				CreatedAt:      now,
			}
			if s.cfg.Mode == ModeStub {
				l.Status = StatusSent
				sentAt := now
				l.SentAt = &sentAt
			}
			logs = append(logs, l)
		}
		if err := tx.InsertLogs(ctx, logs); err != nil {
			return err
		}
		entry := shared.NewAuditLog(actor, "run_notifications", "NotificationRun", run.RunID)
		entry.NewValues = map[string]any{
			"phase":            string(phase),
			"year":             ym.Year,
			"month":            ym.Month,
			"recipients_count": len(logs),
			"mode":             string(run.Mode),
		}
		if err := s.audit.Record(ctx, entry); err != nil {
			return err
		}
		result = RunResult{
			Status:             OutcomeSuccess,
			RunID:              run.RunID,
			Phase:              phase,
			Year:               ym.Year,
			Month:              ym.Month,
			Mode:               run.Mode,
			Deadline:           deadline.Format(time.DateOnly),
			NotificationsCount: len(logs),
			Notifications:      logs,
		}
		return nil
	})
	if shared.CodeOf(err) == shared.CodeConflict {
		// Lost the race on the unique key to a run outside our lock.
		return s.existingRun(ctx, actor.TenantID, phase, ym, err)
	}
	return result, err
}

func (s *Service) existingRun(ctx context.Context, tenantID string, phase Phase, ym shared.YearMonth, cause error) (RunResult, error) {
	var result RunResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.FindRun(ctx, tenantID, phase, ym)
		if err != nil {
			return err
		}
		if existing == nil {
			return cause
		}
		result = alreadyRun(*existing)
		return nil
	})
	return result, err
}

// Logs lists recorded messages, newest first.
func (s *Service) Logs(ctx context.Context, actor shared.Actor, f LogFilter) ([]Log, error) {
	if err := actor.Require(shared.CapManageNotifications); err != nil {
		return nil, err
	}
	return s.repo.Logs(ctx, actor.TenantID, f)
}

// DueToday returns the phases whose shifted deadline falls on now's date. A deadline may be
// pushed into the following month, so the previous month is checked as well.
func (s *Service) DueToday(ctx context.Context, tenantID string, now time.Time) ([]PhaseMonth, error) {
	today := now.UTC()
	current := shared.MonthOf(today)
	var due []PhaseMonth
	for _, ym := range []shared.YearMonth{current.AddMonths(-1), current} {
		for _, phase := range Phases() {
			deadline, err := s.Deadline(ctx, tenantID, phase, ym)
			if err != nil {
				return nil, err
			}
			if sameDay(deadline, today) {
				due = append(due, PhaseMonth{Phase: phase, Period: ym})
			}
		}
	}
	return due, nil
}

// PhaseMonth pairs a phase with the month it reminds about.
type PhaseMonth struct {
	Phase  Phase
	Period shared.YearMonth
}

// RunDue runs every phase due today for every tenant as the system actor. A failing tenant
// does not stop the others; the first error is returned after all tenants were tried.
func (s *Service) RunDue(ctx context.Context) ([]RunResult, error) {
	tenants, err := s.repo.Tenants(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var (
		results  []RunResult
		firstErr error
	)
	for _, tenantID := range tenants {
		due, err := s.DueToday(ctx, tenantID, now)
		if err != nil {
			s.logger.Error("notification schedule", slog.String("tenant_id", tenantID), slog.Any("error", err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, d := range due {
			res, err := s.Run(ctx, shared.SystemActor(tenantID), d.Phase, d.Period)
			if err != nil {
				s.logger.Error("scheduled notification run",
					slog.String("tenant_id", tenantID),
					slog.String("phase", string(d.Phase)),
					slog.Any("error", err))
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			results = append(results, res)
		}
	}
	return results, firstErr
}

// Deliver sends every pending message of a run and records the outcome per message.
// It returns the number of messages sent.
func (s *Service) Deliver(ctx context.Context, tenantID string, runID uuid.UUID) (int, error) {
	if s.sender == nil {
		return 0, errors.New("notifications: sender not configured")
	}
	logs, err := s.repo.Logs(ctx, tenantID, LogFilter{RunID: &runID})
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, l := range logs {
		if l.Status != StatusPending {
			continue
		}
		status, msg := StatusSent, ""
		if err := s.sender.Send(ctx, l); err != nil {
			status, msg = StatusFailed, err.Error()
			s.logger.Warn("notification delivery failed",
				slog.String("tenant_id", tenantID),
				slog.String("log_id", l.ID.String()),
				slog.Any("error", err))
		}
		if err := s.repo.MarkDelivery(ctx, tenantID, l.ID, status, msg, s.now().UTC()); err != nil {
			return sent, err
		}
		if status == StatusSent {
			sent++
		}
		if s.observer != nil {
			s.observer.ObserveNotifications(l.Phase, status, 1)
		}
	}
	return sent, nil
}
