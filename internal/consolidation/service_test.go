package consolidation

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/resource-planning/internal/directory/directorytest"
	"github.com/odyssey-erp/resource-planning/internal/periods"
	"github.com/odyssey-erp/resource-planning/internal/planning"
	"github.com/odyssey-erp/resource-planning/internal/shared"
)

const tenant = "t1"

type memorySnapshotRepo struct {
	periods   map[uuid.UUID]periods.Period
	snapshots map[uuid.UUID]Snapshot
	failLines error
}

func newMemorySnapshotRepo() *memorySnapshotRepo {
	return &memorySnapshotRepo{periods: map[uuid.UUID]periods.Period{}, snapshots: map[uuid.UUID]Snapshot{}}
}

func (r *memorySnapshotRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	staged := &memorySnapshotTx{repo: r}
	if err := fn(ctx, staged); err != nil {
		return err
	}
	for _, snap := range staged.snapshots {
		r.snapshots[snap.ID] = snap
	}
	return nil
}

func (r *memorySnapshotRepo) Period(_ context.Context, tenantID string, id uuid.UUID) (periods.Period, error) {
	p, ok := r.periods[id]
	if !ok || p.TenantID != tenantID {
		return periods.Period{}, shared.NotFound("period")
	}
	return p, nil
}

func (r *memorySnapshotRepo) ListSnapshots(_ context.Context, tenantID string, periodID *uuid.UUID) ([]Snapshot, error) {
	var out []Snapshot
	for _, snap := range r.snapshots {
		if snap.TenantID != tenantID || (periodID != nil && snap.PeriodID != *periodID) {
			continue
		}
		snap.Lines = nil
		out = append(out, snap)
	}
	slices.SortFunc(out, func(a, b Snapshot) int { return b.PublishedAt.Compare(a.PublishedAt) })
	return out, nil
}

func (r *memorySnapshotRepo) GetSnapshot(_ context.Context, tenantID string, id uuid.UUID) (Snapshot, error) {
	snap, ok := r.snapshots[id]
	if !ok || snap.TenantID != tenantID {
		return Snapshot{}, shared.NotFound("snapshot")
	}
	snap.Lines = slices.Clone(snap.Lines)
	return snap, nil
}

type memorySnapshotTx struct {
	repo      *memorySnapshotRepo
	snapshots []Snapshot
}

func (t *memorySnapshotTx) Period(ctx context.Context, tenantID string, id uuid.UUID) (periods.Period, error) {
	return t.repo.Period(ctx, tenantID, id)
}

func (t *memorySnapshotTx) InsertSnapshot(_ context.Context, snap Snapshot) error {
	snap.Lines = nil
	t.snapshots = append(t.snapshots, snap)
	return nil
}

func (t *memorySnapshotTx) InsertLines(_ context.Context, lines []SnapshotLine) error {
	if t.repo.failLines != nil {
		return t.repo.failLines
	}
	for i := range t.snapshots {
		for _, l := range lines {
			if l.SnapshotID == t.snapshots[i].ID {
				// Store copies so later edits to the caller's values cannot leak in.
				cp := l
				if l.FTEPercent != nil {
					cp.FTEPercent = ptr(*l.FTEPercent)
				}
				t.snapshots[i].Lines = append(t.snapshots[i].Lines, cp)
			}
		}
	}
	return nil
}

type memoryLines struct {
	mu      sync.Mutex
	demand  []planning.DemandLine
	supply  []planning.SupplyLine
	actuals []planning.ActualLine
	oop     []planning.OOPLine
	calls   int
}

func inPeriod(f planning.Filter, periodID uuid.UUID) bool {
	return f.PeriodID == nil || *f.PeriodID == periodID
}

func (m *memoryLines) ListDemand(_ context.Context, _ string, f planning.Filter) ([]planning.DemandLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	var out []planning.DemandLine
	for _, l := range m.demand {
		if inPeriod(f, l.PeriodID) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memoryLines) ListSupply(_ context.Context, _ string, f planning.Filter) ([]planning.SupplyLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []planning.SupplyLine
	for _, l := range m.supply {
		if inPeriod(f, l.PeriodID) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memoryLines) ListActuals(_ context.Context, _ string, f planning.Filter) ([]planning.ActualLine, error) {
	var out []planning.ActualLine
	for _, l := range m.actuals {
		if inPeriod(f, l.PeriodID) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memoryLines) ListOOP(_ context.Context, _ string, f planning.Filter) ([]planning.OOPLine, error) {
	var out []planning.OOPLine
	for _, l := range m.oop {
		if inPeriod(f, l.PeriodID) {
			out = append(out, l)
		}
	}
	return out, nil
}

type memoryAudit struct {
	entries []shared.AuditLog
}

func (a *memoryAudit) Record(_ context.Context, entry shared.AuditLog) error {
	a.entries = append(a.entries, entry)
	return nil
}

type countingObserver struct {
	hits, misses int
}

func (o *countingObserver) ObserveDashboard(hit bool, _ time.Duration) {
	if hit {
		o.hits++
	} else {
		o.misses++
	}
}

type fixture struct {
	svc     *Service
	repo    *memorySnapshotRepo
	lines   *memoryLines
	dir     *directorytest.Memory
	audit   *memoryAudit
	period  periods.Period
	finance shared.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMemorySnapshotRepo()
	dir := directorytest.New(tenant)
	audit := &memoryAudit{}
	lines := &memoryLines{}
	period := periods.Period{ID: uuid.New(), TenantID: tenant, Year: 2026, Month: 4, Status: periods.StatusLocked}
	repo.periods[period.ID] = period
	svc := NewService(repo, lines, dir, audit, nil)
	svc.WithNow(func() time.Time { return time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC) })
	finance := dir.AddUser("fiona", shared.RoleFinance, nil)
	return &fixture{
		svc: svc, repo: repo, lines: lines, dir: dir, audit: audit, period: period,
		finance: shared.Actor{TenantID: tenant, UserID: finance.ID, Role: shared.RoleFinance},
	}
}

func TestPublishSnapshotSurvivesSourceEdits(t *testing.T) {
	f := newFixture(t)
	dept := f.dir.AddDepartment("Engineering")
	cc := f.dir.AddCostCenter("Platform", dept.ID, nil)
	res := f.dir.AddResource("Alice", cc.ID, nil)
	project := f.dir.AddProject("Apollo")
	f.lines.demand = []planning.DemandLine{{ID: uuid.New(), PeriodID: f.period.ID, ProjectID: project.ID, ResourceID: &res.ID, Year: 2026, Month: 4, FTEPercent: 50}}
	f.lines.supply = []planning.SupplyLine{{ID: uuid.New(), PeriodID: f.period.ID, ResourceID: res.ID, Year: 2026, Month: 4, FTEPercent: 60}}
	f.lines.oop = []planning.OOPLine{{ID: uuid.New(), PeriodID: f.period.ID, ResourceID: res.ID, ProjectID: project.ID, Year: 2026, Month: 4, Hours: 8, TotalCost: 40000}}
	f.lines.actuals = []planning.ActualLine{{ID: uuid.New(), PeriodID: uuid.New(), ResourceID: res.ID, ProjectID: project.ID, ActualFTEPercent: 30}}

	snap, err := f.svc.PublishSnapshot(context.Background(), f.finance, PublishInput{PeriodID: f.period.ID, Name: "  April close  "})
	require.NoError(t, err)
	require.Equal(t, "April close", snap.Name)
	require.Equal(t, 3, snap.LinesCount, "lines of other periods are excluded")

	f.lines.demand[0].FTEPercent = 100
	f.dir.RenameProject(project.ID, "Apollo II")
	f.lines.supply = nil

	stored, err := f.svc.GetSnapshot(context.Background(), f.finance, snap.ID)
	require.NoError(t, err)
	require.Len(t, stored.Lines, 3)
	for _, l := range stored.Lines {
		switch l.LineType {
		case LineDemand:
			require.Equal(t, 50, *l.FTEPercent)
			require.Equal(t, "Apollo", l.ProjectName)
		case LineSupply:
			require.Equal(t, 60, *l.FTEPercent)
		case LineOOP:
			require.Equal(t, int64(40000), *l.Cost)
		default:
			t.Fatalf("unexpected line type %s", l.LineType)
		}
	}

	require.Len(t, f.audit.entries, 1)
	entry := f.audit.entries[0]
	require.Equal(t, "publish", entry.Action)
	require.Equal(t, "PublishSnapshot", entry.Entity)
	require.Equal(t, 3, entry.NewValues["lines_count"])
}

func TestPublishSnapshotValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.PublishSnapshot(ctx, f.finance, PublishInput{PeriodID: f.period.ID, Name: "   "})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.PublishSnapshot(ctx, f.finance, PublishInput{PeriodID: uuid.New(), Name: "x"})
	require.ErrorIs(t, err, shared.ErrNotFound)

	pm := shared.Actor{TenantID: tenant, UserID: uuid.New(), Role: shared.RolePM}
	_, err = f.svc.PublishSnapshot(ctx, pm, PublishInput{PeriodID: f.period.ID, Name: "x"})
	require.ErrorIs(t, err, shared.ErrUnauthorizedRole)

	f.repo.failLines = errors.New("disk full")
	_, err = f.svc.PublishSnapshot(ctx, f.finance, PublishInput{PeriodID: f.period.ID, Name: "x"})
	require.Error(t, err)
	require.Empty(t, f.repo.snapshots)
	require.Empty(t, f.audit.entries)
}

func TestListSnapshotsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clock := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	f.svc.WithNow(func() time.Time { clock = clock.Add(time.Hour); return clock })

	first, err := f.svc.PublishSnapshot(ctx, f.finance, PublishInput{PeriodID: f.period.ID, Name: "first"})
	require.NoError(t, err)
	second, err := f.svc.PublishSnapshot(ctx, f.finance, PublishInput{PeriodID: f.period.ID, Name: "second"})
	require.NoError(t, err)

	list, err := f.svc.ListSnapshots(ctx, f.finance, &f.period.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, second.ID, list[0].ID)
	require.Equal(t, first.ID, list[1].ID)

	other := uuid.New()
	list, err = f.svc.ListSnapshots(ctx, f.finance, &other)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestDashboardRequiresRoleAndPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	employee := shared.Actor{TenantID: tenant, UserID: uuid.New(), Role: shared.RoleEmployee}
	_, err := f.svc.Dashboard(ctx, employee, f.period.ID)
	require.ErrorIs(t, err, shared.ErrUnauthorizedRole)

	_, err = f.svc.Dashboard(ctx, f.finance, uuid.New())
	require.ErrorIs(t, err, shared.ErrNotFound)

	director := shared.Actor{TenantID: tenant, UserID: uuid.New(), Role: shared.RoleDirector}
	dash, err := f.svc.Dashboard(ctx, director, f.period.ID)
	require.NoError(t, err)
	require.Equal(t, "2026-04", dash.Period)
	require.Empty(t, dash.Departments)
}

func TestDashboardCachedUntilBump(t *testing.T) {
	f := newFixture(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	observer := &countingObserver{}
	f.svc.WithCache(cache)
	f.svc.WithObserver(observer)
	ctx := context.Background()

	dept := f.dir.AddDepartment("Engineering")
	cc := f.dir.AddCostCenter("Platform", dept.ID, nil)
	res := f.dir.AddResource("Alice", cc.ID, nil)
	f.lines.demand = []planning.DemandLine{{ID: uuid.New(), PeriodID: f.period.ID, ResourceID: &res.ID, FTEPercent: 40}}

	dash, err := f.svc.Dashboard(ctx, f.finance, f.period.ID)
	require.NoError(t, err)
	require.Equal(t, 40, dash.Summary.TotalDemandFTE)

	f.lines.demand[0].FTEPercent = 70
	dash, err = f.svc.Dashboard(ctx, f.finance, f.period.ID)
	require.NoError(t, err)
	require.Equal(t, 40, dash.Summary.TotalDemandFTE, "served from cache")
	require.Equal(t, 1, f.lines.calls)
	require.Equal(t, 1, observer.hits)
	require.Equal(t, 1, observer.misses)

	require.NoError(t, cache.Bump(ctx, tenant))
	dash, err = f.svc.Dashboard(ctx, f.finance, f.period.ID)
	require.NoError(t, err)
	require.Equal(t, 70, dash.Summary.TotalDemandFTE)
	require.Equal(t, 2, f.lines.calls)
}

func TestDashboardFallsBackWhenRedisDown(t *testing.T) {
	f := newFixture(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	f.svc.WithCache(NewCache(client, time.Minute))
	mr.Close()

	dash, err := f.svc.Dashboard(context.Background(), f.finance, f.period.ID)
	require.NoError(t, err)
	require.Equal(t, f.period.ID, dash.PeriodID)
}
