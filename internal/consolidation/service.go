package consolidation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/resource-planning/internal/directory"
	"github.com/odyssey-erp/resource-planning/internal/periods"
	"github.com/odyssey-erp/resource-planning/internal/planning"
	"github.com/odyssey-erp/resource-planning/internal/shared"
)

// RepositoryPort abstracts snapshot persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Period(ctx context.Context, tenantID string, id uuid.UUID) (periods.Period, error)
	ListSnapshots(ctx context.Context, tenantID string, periodID *uuid.UUID) ([]Snapshot, error)
	GetSnapshot(ctx context.Context, tenantID string, id uuid.UUID) (Snapshot, error)
}

// TxRepository exposes transactional operations. Snapshots are insert-only.
type TxRepository interface {
	Period(ctx context.Context, tenantID string, id uuid.UUID) (periods.Period, error)
	InsertSnapshot(ctx context.Context, snap Snapshot) error
	InsertLines(ctx context.Context, lines []SnapshotLine) error
}

// LineSource reads planning lines. Implementations must join an in-flight transaction
// so a snapshot sees a consistent view.
type LineSource interface {
	ListDemand(ctx context.Context, tenantID string, f planning.Filter) ([]planning.DemandLine, error)
	ListSupply(ctx context.Context, tenantID string, f planning.Filter) ([]planning.SupplyLine, error)
	ListActuals(ctx context.Context, tenantID string, f planning.Filter) ([]planning.ActualLine, error)
	ListOOP(ctx context.Context, tenantID string, f planning.Filter) ([]planning.OOPLine, error)
}

// AuditPort records audit trails.
type AuditPort interface {
	Record(ctx context.Context, entry shared.AuditLog) error
}

// Observer records dashboard cache effectiveness.
type Observer interface {
	ObserveDashboard(hit bool, build time.Duration)
}

// Service builds dashboards and publishes snapshots.
type Service struct {
	repo     RepositoryPort
	lines    LineSource
	dir      directory.Directory
	audit    AuditPort
	cache    *Cache
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo RepositoryPort, lines LineSource, dir directory.Directory, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, lines: lines, dir: dir, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithCache enables dashboard caching.
func (s *Service) WithCache(cache *Cache) {
	s.cache = cache
}

// WithObserver registers a metrics observer.
func (s *Service) WithObserver(o Observer) {
	s.observer = o
}

// Dashboard returns the period's demand/supply hierarchy, served from cache when the
// tenant's lines have not changed since it was built.
func (s *Service) Dashboard(ctx context.Context, actor shared.Actor, periodID uuid.UUID) (Dashboard, error) {
	if err := actor.Require(shared.CapViewConsolidation); err != nil {
		return Dashboard{}, err
	}
	period, err := s.repo.Period(ctx, actor.TenantID, periodID)
	if err != nil {
		return Dashboard{}, err
	}
	build := func(ctx context.Context) (any, error) {
		return s.buildDashboard(ctx, actor.TenantID, period)
	}
	if s.cache == nil {
		return s.buildDashboard(ctx, actor.TenantID, period)
	}

	start := time.Now()
	key, err := s.cache.BuildKey(ctx, actor.TenantID, "dashboard", periodID.String())
	if err == nil {
		var dash Dashboard
		var hit bool
		hit, err = s.cache.FetchJSON(ctx, key, &dash, build)
		if err == nil {
			if s.observer != nil {
				s.observer.ObserveDashboard(hit, time.Since(start))
			}
			return dash, nil
		}
		if shared.CodeOf(err) != shared.CodeInternal || ctx.Err() != nil {
			return Dashboard{}, err
		}
	}
	s.logger.Warn("dashboard cache unavailable",
		slog.String("tenant_id", actor.TenantID),
		slog.String("period_id", periodID.String()),
		slog.Any("error", err))
	return s.buildDashboard(ctx, actor.TenantID, period)
}

func (s *Service) buildDashboard(ctx context.Context, tenantID string, period periods.Period) (Dashboard, error) {
	f := planning.Filter{PeriodID: &period.ID}
	demand, err := s.lines.ListDemand(ctx, tenantID, f)
	if err != nil {
		return Dashboard{}, err
	}
	supply, err := s.lines.ListSupply(ctx, tenantID, f)
	if err != nil {
		return Dashboard{}, err
	}
	catalog, err := s.dir.Catalog(ctx, tenantID)
	if err != nil {
		return Dashboard{}, err
	}
	return BuildDashboard(period, demand, supply, catalog), nil
}

// PublishSnapshot copies every line of the period, with names resolved, into a new
// write-once snapshot. The period may be open or locked.
func (s *Service) PublishSnapshot(ctx context.Context, actor shared.Actor, in PublishInput) (Snapshot, error) {
	if err := actor.Require(shared.CapPublishSnapshots); err != nil {
		return Snapshot{}, err
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if in.Name == "" {
		return Snapshot{}, shared.Validation("snapshot name required")
	}
	if len(in.Name) > 200 {
		return Snapshot{}, shared.Validation("snapshot name too long")
	}

	var snap Snapshot
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.Period(ctx, actor.TenantID, in.PeriodID)
		if err != nil {
			return err
		}
		lines, err := s.loadLines(ctx, actor.TenantID, period.ID)
		if err != nil {
			return err
		}
		catalog, err := s.dir.Catalog(ctx, actor.TenantID)
		if err != nil {
			return err
		}
		snap = Snapshot{
			ID:          uuid.New(),
			TenantID:    actor.TenantID,
			PeriodID:    period.ID,
			Name:        in.Name,
			Description: in.Description,
			PublishedBy: actor.UserID,
			PublishedAt: s.now().UTC(),
		}
		snap.Lines = BuildSnapshotLines(snap.ID, lines, catalog)
		snap.LinesCount = len(snap.Lines)
		if err := tx.InsertSnapshot(ctx, snap); err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, snap.Lines); err != nil {
			return err
		}
		entry := shared.NewAuditLog(actor, "publish", "PublishSnapshot", snap.ID)
		entry.NewValues = map[string]any{
			"period_id":   period.ID.String(),
			"name":        snap.Name,
			"lines_count": snap.LinesCount,
		}
		return s.audit.Record(ctx, entry)
	})
	if err != nil {
		return Snapshot{}, err
	}
	s.logger.Info("snapshot published",
		slog.String("tenant_id", actor.TenantID),
		slog.String("snapshot_id", snap.ID.String()),
		slog.Int("lines", snap.LinesCount))
	return snap, nil
}

func (s *Service) loadLines(ctx context.Context, tenantID string, periodID uuid.UUID) (Lines, error) {
	f := planning.Filter{PeriodID: &periodID}
	var (
		out Lines
		err error
	)
	if out.Demand, err = s.lines.ListDemand(ctx, tenantID, f); err != nil {
		return Lines{}, err
	}
	if out.Supply, err = s.lines.ListSupply(ctx, tenantID, f); err != nil {
		return Lines{}, err
	}
	if out.Actuals, err = s.lines.ListActuals(ctx, tenantID, f); err != nil {
		return Lines{}, err
	}
	if out.OOP, err = s.lines.ListOOP(ctx, tenantID, f); err != nil {
		return Lines{}, err
	}
	return out, nil
}

// ListSnapshots returns snapshot headers, newest first, optionally for one period.
func (s *Service) ListSnapshots(ctx context.Context, actor shared.Actor, periodID *uuid.UUID) ([]Snapshot, error) {
	if err := actor.Require(shared.CapViewConsolidation); err != nil {
		return nil, err
	}
	return s.repo.ListSnapshots(ctx, actor.TenantID, periodID)
}

// GetSnapshot returns a snapshot with its lines.
func (s *Service) GetSnapshot(ctx context.Context, actor shared.Actor, id uuid.UUID) (Snapshot, error) {
	if err := actor.Require(shared.CapViewConsolidation); err != nil {
		return Snapshot{}, err
	}
	return s.repo.GetSnapshot(ctx, actor.TenantID, id)
}
