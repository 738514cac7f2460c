package planning

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/resource-planning/internal/directory"
	"github.com/odyssey-erp/resource-planning/internal/periods"
	"github.com/odyssey-erp/resource-planning/internal/shared"
)

// RepositoryPort abstracts persistence for planning lines.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListDemand(ctx context.Context, tenantID string, f Filter) ([]DemandLine, error)
	GetDemand(ctx context.Context, tenantID string, id uuid.UUID) (DemandLine, error)
	ListSupply(ctx context.Context, tenantID string, f Filter) ([]SupplyLine, error)
	GetSupply(ctx context.Context, tenantID string, id uuid.UUID) (SupplyLine, error)
	ListActuals(ctx context.Context, tenantID string, f Filter) ([]ActualLine, error)
	GetActual(ctx context.Context, tenantID string, id uuid.UUID) (ActualLine, error)
	ListOOP(ctx context.Context, tenantID string, f Filter) ([]OOPLine, error)
}

// TxRepository exposes transactional operations. Every Load*ForUpdate takes a row lock.
type TxRepository interface {
	PeriodForShare(ctx context.Context, tenantID string, ym shared.YearMonth) (*periods.Period, error)
	AdvisoryLock(ctx context.Context, key string) error

	DemandExists(ctx context.Context, l DemandLine) (bool, error)
	InsertDemand(ctx context.Context, l DemandLine) error
	LoadDemandForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (DemandLine, error)
	UpdateDemand(ctx context.Context, l DemandLine) error
	DeleteDemand(ctx context.Context, tenantID string, id uuid.UUID) error

	SupplyExists(ctx context.Context, l SupplyLine) (bool, error)
	InsertSupply(ctx context.Context, l SupplyLine) error
	LoadSupplyForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (SupplyLine, error)
	UpdateSupply(ctx context.Context, l SupplyLine) error
	DeleteSupply(ctx context.Context, tenantID string, id uuid.UUID) error

	ActualExists(ctx context.Context, l ActualLine) (bool, error)
	ActualsForResourceMonth(ctx context.Context, tenantID string, resourceID uuid.UUID, ym shared.YearMonth) ([]ActualLine, error)
	InsertActual(ctx context.Context, l ActualLine) error
	LoadActualForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (ActualLine, error)
	UpdateActual(ctx context.Context, l ActualLine) error
	DeleteActual(ctx context.Context, tenantID string, id uuid.UUID) error

	InsertOOP(ctx context.Context, l OOPLine) error
}

// AuditPort records audit trails.
type AuditPort interface {
	Record(ctx context.Context, entry shared.AuditLog) error
}

// ApprovalStarter creates the approval instance for a freshly signed actual line.
// It runs inside the signing transaction and must be idempotent.
type ApprovalStarter interface {
	EnsureForActual(ctx context.Context, actor shared.Actor, actualID, resourceID uuid.UUID) error
}

// Invalidator drops a tenant's cached consolidation views after line changes.
type Invalidator interface {
	Bump(ctx context.Context, tenantID string) error
}

// Observer counts rejected mutations by error code.
type Observer interface {
	ObserveRejection(component string, code shared.Code)
}

// Config carries the planning rules fixed at start-up.
type Config struct {
	ForwardCommitmentMonths int `envconfig:"FORWARD_COMMITMENT_MONTHS" default:"4"`
}

// Service validates and persists demand, supply, actual and out-of-pool lines.
type Service struct {
	repo      RepositoryPort
	dir       directory.Directory
	audit     AuditPort
	approvals ApprovalStarter
	cache     Invalidator
	observer  Observer
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo RepositoryPort, dir directory.Directory, audit AuditPort, approvals ApprovalStarter, cfg Config, logger *slog.Logger) *Service {
	if cfg.ForwardCommitmentMonths <= 0 {
		cfg.ForwardCommitmentMonths = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		dir:       dir,
		audit:     audit,
		approvals: approvals,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithCache registers the consolidation cache to invalidate after writes.
func (s *Service) WithCache(cache Invalidator) {
	s.cache = cache
}

// WithObserver registers a metrics observer for rejected mutations.
func (s *Service) WithObserver(o Observer) {
	s.observer = o
}

// requireOpen gates writes on the line's own month.
func requireOpen(ctx context.Context, tx TxRepository, tenantID string, ym shared.YearMonth) (*periods.Period, error) {
	p, err := tx.PeriodForShare(ctx, tenantID, ym)
	if err != nil {
		return nil, err
	}
	if err := periods.CheckOpen(p, ym); err != nil {
		return nil, err
	}
	return p, nil
}

// finish records metrics and cache invalidation for a completed mutation.
func (s *Service) finish(ctx context.Context, tenantID, component string, err error, bump bool) error {
	if err != nil {
		if s.observer != nil {
			if code := shared.CodeOf(err); code != shared.CodeInternal {
				s.observer.ObserveRejection(component, code)
			}
		}
		return err
	}
	if bump && s.cache != nil {
		if cacheErr := s.cache.Bump(ctx, tenantID); cacheErr != nil {
			s.logger.Warn("consolidation cache bump failed", slog.String("component", component), slog.Any("error", cacheErr))
		}
	}
	return nil
}

func optionalID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}
