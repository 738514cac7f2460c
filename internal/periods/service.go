package periods

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/resource-planning/internal/shared"
)

// RepositoryPort abstracts persistence for the period lifecycle.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, tenantID string) ([]Period, error)
	Get(ctx context.Context, tenantID string, id uuid.UUID) (Period, error)
	FindByYearMonth(ctx context.Context, tenantID string, ym shared.YearMonth) (*Period, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	FindByYearMonth(ctx context.Context, tenantID string, ym shared.YearMonth) (*Period, error)
	LoadForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (Period, error)
	Insert(ctx context.Context, p Period) (Period, error)
	UpdateStatus(ctx context.Context, p Period) error
}

// AuditPort records audit trails.
type AuditPort interface {
	Record(ctx context.Context, entry shared.AuditLog) error
}

// Service owns the open/locked state of monthly periods.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// List returns all periods of the tenant, newest first.
func (s *Service) List(ctx context.Context, actor shared.Actor) ([]Period, error) {
	return s.repo.List(ctx, actor.TenantID)
}

// Get returns a single period.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id uuid.UUID) (Period, error) {
	return s.repo.Get(ctx, actor.TenantID, id)
}

// Current returns the period covering today's month.
func (s *Service) Current(ctx context.Context, actor shared.Actor) (Period, error) {
	ym := shared.MonthOf(s.now().UTC())
	p, err := s.repo.FindByYearMonth(ctx, actor.TenantID, ym)
	if err != nil {
		return Period{}, err
	}
	if p == nil {
		return Period{}, shared.NotFound(fmt.Sprintf("period %s", ym))
	}
	return *p, nil
}

// IsLocked reports whether ym exists and is locked.
func (s *Service) IsLocked(ctx context.Context, tenantID string, ym shared.YearMonth) (bool, error) {
	p, err := s.repo.FindByYearMonth(ctx, tenantID, ym)
	if err != nil {
		return false, err
	}
	return p != nil && p.Status == StatusLocked, nil
}

// RequireOpen fails with NOT_FOUND when the month has no period and PERIOD_LOCKED when it is locked.
func (s *Service) RequireOpen(ctx context.Context, tenantID string, ym shared.YearMonth) (Period, error) {
	p, err := s.repo.FindByYearMonth(ctx, tenantID, ym)
	if err != nil {
		return Period{}, err
	}
	if err := CheckOpen(p, ym); err != nil {
		return Period{}, err
	}
	return *p, nil
}

// Open creates an OPEN period for ym.
func (s *Service) Open(ctx context.Context, actor shared.Actor, ym shared.YearMonth) (Period, error) {
	if err := actor.Require(shared.CapManagePeriods); err != nil {
		return Period{}, err
	}
	if err := ym.Validate(); err != nil {
		return Period{}, err
	}
	var created Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.FindByYearMonth(ctx, actor.TenantID, ym)
		if err != nil {
			return err
		}
		if existing != nil {
			return shared.Conflict(fmt.Sprintf("period %s already exists", ym))
		}
		now := s.now().UTC()
		created, err = tx.Insert(ctx, Period{
			ID:        uuid.New(),
			TenantID:  actor.TenantID,
			Year:      ym.Year,
			Month:     ym.Month,
			Status:    StatusOpen,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		entry := shared.NewAuditLog(actor, "create", "Period", created.ID)
		entry.NewValues = map[string]any{"year": ym.Year, "month": ym.Month, "status": string(StatusOpen)}
		return s.audit.Record(ctx, entry)
	})
	if err != nil {
		return Period{}, err
	}
	s.logger.Info("period opened", slog.String("tenant_id", actor.TenantID), slog.String("period", ym.String()))
	return created, nil
}

// Lock transitions OPEN to LOCKED.
func (s *Service) Lock(ctx context.Context, actor shared.Actor, id uuid.UUID) (Period, error) {
	if err := actor.Require(shared.CapManagePeriods); err != nil {
		return Period{}, err
	}
	var locked Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.LoadForUpdate(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if err := ValidateTransition(p.Status, StatusLocked); err != nil {
			return err
		}
		oldStatus := p.Status
		now := s.now().UTC()
		lockedBy := actor.UserID
		p.Status = StatusLocked
		p.LockedAt = &now
		p.LockedBy = &lockedBy
		p.LockReason = ""
		p.UpdatedAt = now
		if err := tx.UpdateStatus(ctx, p); err != nil {
			return err
		}
		locked = p
		entry := shared.NewAuditLog(actor, "lock", "Period", p.ID)
		entry.OldValues = map[string]any{"status": string(oldStatus)}
		entry.NewValues = map[string]any{"status": string(StatusLocked), "locked_at": now.Format(time.RFC3339)}
		return s.audit.Record(ctx, entry)
	})
	if err != nil {
		return Period{}, err
	}
	s.logger.Info("period locked", slog.String("tenant_id", actor.TenantID), slog.String("period", locked.YearMonth().String()))
	return locked, nil
}

// Unlock transitions LOCKED to OPEN. Prior lock metadata is kept; the reason is stored.
func (s *Service) Unlock(ctx context.Context, actor shared.Actor, in UnlockInput) (Period, error) {
	if err := actor.Require(shared.CapManagePeriods); err != nil {
		return Period{}, err
	}
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	reason := strings.TrimSpace(in.Reason)
	var unlocked Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.LoadForUpdate(ctx, actor.TenantID, in.PeriodID)
		if err != nil {
			return err
		}
		if err := ValidateTransition(p.Status, StatusOpen); err != nil {
			return err
		}
		oldStatus := p.Status
		var oldLockedAt any
		if p.LockedAt != nil {
			oldLockedAt = p.LockedAt.Format(time.RFC3339)
		}
		p.Status = StatusOpen
		p.LockReason = reason
		p.UpdatedAt = s.now().UTC()
		if err := tx.UpdateStatus(ctx, p); err != nil {
			return err
		}
		unlocked = p
		entry := shared.NewAuditLog(actor, "unlock", "Period", p.ID)
		entry.OldValues = map[string]any{"status": string(oldStatus), "locked_at": oldLockedAt}
		entry.NewValues = map[string]any{"status": string(StatusOpen)}
		entry.Reason = reason
		return s.audit.Record(ctx, entry)
	})
	if err != nil {
		return Period{}, err
	}
	s.logger.Info("period unlocked", slog.String("tenant_id", actor.TenantID),
		slog.String("period", unlocked.YearMonth().String()), slog.String("reason", reason))
	return unlocked, nil
}
