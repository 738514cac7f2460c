package planning

import (
	"context"
	"errors"
	"maps"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/resource-planning/internal/directory"
	"github.com/odyssey-erp/resource-planning/internal/directory/directorytest"
	"github.com/odyssey-erp/resource-planning/internal/periods"
	"github.com/odyssey-erp/resource-planning/internal/shared"
)

const tenant = "t1"

type memoryPlanningRepo struct {
	periods map[shared.YearMonth]periods.Period
	demand  map[uuid.UUID]DemandLine
	supply  map[uuid.UUID]SupplyLine
	actuals map[uuid.UUID]ActualLine
	oop     map[uuid.UUID]OOPLine
	locks   []string
}

type memoryPlanningTx struct {
	repo *memoryPlanningRepo
}

func newMemoryPlanningRepo() *memoryPlanningRepo {
	return &memoryPlanningRepo{
		periods: make(map[shared.YearMonth]periods.Period),
		demand:  make(map[uuid.UUID]DemandLine),
		supply:  make(map[uuid.UUID]SupplyLine),
		actuals: make(map[uuid.UUID]ActualLine),
		oop:     make(map[uuid.UUID]OOPLine),
	}
}

func (r *memoryPlanningRepo) open(ym shared.YearMonth) periods.Period {
	p := periods.Period{ID: uuid.New(), TenantID: tenant, Year: ym.Year, Month: ym.Month, Status: periods.StatusOpen}
	r.periods[ym] = p
	return p
}

func (r *memoryPlanningRepo) setStatus(ym shared.YearMonth, status periods.Status) {
	p := r.periods[ym]
	p.Status = status
	r.periods[ym] = p
}

// WithTx discards every write made by fn when it fails.
func (r *memoryPlanningRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	demand, supply, actuals, oop := maps.Clone(r.demand), maps.Clone(r.supply), maps.Clone(r.actuals), maps.Clone(r.oop)
	if err := fn(ctx, &memoryPlanningTx{repo: r}); err != nil {
		r.demand, r.supply, r.actuals, r.oop = demand, supply, actuals, oop
		return err
	}
	return nil
}

func matches(f Filter, tenantID, lineTenant string, ym shared.YearMonth, project, resource *uuid.UUID) bool {
	if tenantID != lineTenant {
		return false
	}
	if f.Year != nil && *f.Year != ym.Year {
		return false
	}
	if f.Month != nil && *f.Month != ym.Month {
		return false
	}
	if f.ProjectID != nil && (project == nil || *project != *f.ProjectID) {
		return false
	}
	if f.ResourceID != nil && (resource == nil || *resource != *f.ResourceID) {
		return false
	}
	return true
}

func (r *memoryPlanningRepo) ListDemand(_ context.Context, tenantID string, f Filter) ([]DemandLine, error) {
	out := []DemandLine{}
	for _, l := range r.demand {
		if matches(f, tenantID, l.TenantID, l.YearMonth(), &l.ProjectID, l.ResourceID) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memoryPlanningRepo) GetDemand(_ context.Context, tenantID string, id uuid.UUID) (DemandLine, error) {
	l, ok := r.demand[id]
	if !ok || l.TenantID != tenantID {
		return DemandLine{}, shared.NotFound("demand line")
	}
	return l, nil
}

func (r *memoryPlanningRepo) ListSupply(_ context.Context, tenantID string, f Filter) ([]SupplyLine, error) {
	out := []SupplyLine{}
	for _, l := range r.supply {
		if matches(f, tenantID, l.TenantID, l.YearMonth(), l.ProjectID, &l.ResourceID) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memoryPlanningRepo) GetSupply(_ context.Context, tenantID string, id uuid.UUID) (SupplyLine, error) {
	l, ok := r.supply[id]
	if !ok || l.TenantID != tenantID {
		return SupplyLine{}, shared.NotFound("supply line")
	}
	return l, nil
}

func (r *memoryPlanningRepo) ListActuals(_ context.Context, tenantID string, f Filter) ([]ActualLine, error) {
	out := []ActualLine{}
	for _, l := range r.actuals {
		if matches(f, tenantID, l.TenantID, l.YearMonth(), &l.ProjectID, &l.ResourceID) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memoryPlanningRepo) GetActual(_ context.Context, tenantID string, id uuid.UUID) (ActualLine, error) {
	l, ok := r.actuals[id]
	if !ok || l.TenantID != tenantID {
		return ActualLine{}, shared.NotFound("actual line")
	}
	return l, nil
}

func (r *memoryPlanningRepo) ListOOP(_ context.Context, tenantID string, f Filter) ([]OOPLine, error) {
	out := []OOPLine{}
	for _, l := range r.oop {
		if matches(f, tenantID, l.TenantID, l.YearMonth(), &l.ProjectID, &l.ResourceID) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (tx *memoryPlanningTx) PeriodForShare(_ context.Context, tenantID string, ym shared.YearMonth) (*periods.Period, error) {
	p, ok := tx.repo.periods[ym]
	if !ok || p.TenantID != tenantID {
		return nil, nil
	}
	return &p, nil
}

func (tx *memoryPlanningTx) AdvisoryLock(_ context.Context, key string) error {
	tx.repo.locks = append(tx.repo.locks, key)
	return nil
}

func (tx *memoryPlanningTx) DemandExists(_ context.Context, l DemandLine) (bool, error) {
	for _, existing := range tx.repo.demand {
		if existing.TenantID == l.TenantID && existing.ProjectID == l.ProjectID && existing.YearMonth() == l.YearMonth() &&
			sameID(existing.ResourceID, l.ResourceID) && sameID(existing.PlaceholderID, l.PlaceholderID) {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryPlanningTx) InsertDemand(_ context.Context, l DemandLine) error {
	tx.repo.demand[l.ID] = l
	return nil
}

func (tx *memoryPlanningTx) LoadDemandForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (DemandLine, error) {
	return tx.repo.GetDemand(ctx, tenantID, id)
}

func (tx *memoryPlanningTx) UpdateDemand(_ context.Context, l DemandLine) error {
	tx.repo.demand[l.ID] = l
	return nil
}

func (tx *memoryPlanningTx) DeleteDemand(_ context.Context, _ string, id uuid.UUID) error {
	delete(tx.repo.demand, id)
	return nil
}

func (tx *memoryPlanningTx) SupplyExists(_ context.Context, l SupplyLine) (bool, error) {
	for _, existing := range tx.repo.supply {
		if existing.TenantID == l.TenantID && existing.ResourceID == l.ResourceID && existing.YearMonth() == l.YearMonth() &&
			sameID(existing.ProjectID, l.ProjectID) {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryPlanningTx) InsertSupply(_ context.Context, l SupplyLine) error {
	tx.repo.supply[l.ID] = l
	return nil
}

func (tx *memoryPlanningTx) LoadSupplyForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (SupplyLine, error) {
	return tx.repo.GetSupply(ctx, tenantID, id)
}

func (tx *memoryPlanningTx) UpdateSupply(_ context.Context, l SupplyLine) error {
	tx.repo.supply[l.ID] = l
	return nil
}

func (tx *memoryPlanningTx) DeleteSupply(_ context.Context, _ string, id uuid.UUID) error {
	delete(tx.repo.supply, id)
	return nil
}

func (tx *memoryPlanningTx) ActualExists(_ context.Context, l ActualLine) (bool, error) {
	for _, existing := range tx.repo.actuals {
		if existing.TenantID == l.TenantID && existing.ResourceID == l.ResourceID && existing.ProjectID == l.ProjectID && existing.YearMonth() == l.YearMonth() {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryPlanningTx) ActualsForResourceMonth(ctx context.Context, tenantID string, resourceID uuid.UUID, ym shared.YearMonth) ([]ActualLine, error) {
	return tx.repo.ListActuals(ctx, tenantID, Filter{ResourceID: &resourceID, Year: &ym.Year, Month: &ym.Month})
}

func (tx *memoryPlanningTx) InsertActual(_ context.Context, l ActualLine) error {
	tx.repo.actuals[l.ID] = l
	return nil
}

func (tx *memoryPlanningTx) LoadActualForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (ActualLine, error) {
	return tx.repo.GetActual(ctx, tenantID, id)
}

func (tx *memoryPlanningTx) UpdateActual(_ context.Context, l ActualLine) error {
	tx.repo.actuals[l.ID] = l
	return nil
}

func (tx *memoryPlanningTx) DeleteActual(_ context.Context, _ string, id uuid.UUID) error {
	delete(tx.repo.actuals, id)
	return nil
}

func (tx *memoryPlanningTx) InsertOOP(_ context.Context, l OOPLine) error {
	tx.repo.oop[l.ID] = l
	return nil
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

type memoryAudit struct {
	entries []shared.AuditLog
	fail    error
}

func (a *memoryAudit) Record(_ context.Context, entry shared.AuditLog) error {
	if a.fail != nil {
		return a.fail
	}
	a.entries = append(a.entries, entry)
	return nil
}

type stubApprovals struct {
	started []uuid.UUID
}

func (s *stubApprovals) EnsureForActual(_ context.Context, _ shared.Actor, actualID, _ uuid.UUID) error {
	s.started = append(s.started, actualID)
	return nil
}

type countingCache struct{ bumps int }

func (c *countingCache) Bump(context.Context, string) error {
	c.bumps++
	return nil
}

type recordingObserver struct{ codes []shared.Code }

func (o *recordingObserver) ObserveRejection(_ string, code shared.Code) {
	o.codes = append(o.codes, code)
}

type fixture struct {
	svc       *Service
	repo      *memoryPlanningRepo
	dir       *directorytest.Memory
	audit     *memoryAudit
	approvals *stubApprovals
	cache     *countingCache
	observer  *recordingObserver

	finance  shared.Actor
	pm       shared.Actor
	ro       shared.Actor
	employee shared.Actor

	projectA    directory.Project
	projectB    directory.Project
	resource    directory.Resource
	placeholder directory.Placeholder
}

var april = shared.YearMonth{Year: 2026, Month: 4}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := directorytest.New(tenant)
	dept := dir.AddDepartment("Engineering")
	roUser := dir.AddUser("rita", shared.RoleRO, &dept.ID)
	cc := dir.AddCostCenter("Platform", dept.ID, &roUser.ID)
	empUser := dir.AddUser("erin", shared.RoleEmployee, &dept.ID)
	pmUser := dir.AddUser("paul", shared.RolePM, &dept.ID)
	finUser := dir.AddUser("fiona", shared.RoleFinance, nil)

	f := &fixture{
		repo:      newMemoryPlanningRepo(),
		dir:       dir,
		audit:     &memoryAudit{},
		approvals: &stubApprovals{},
		cache:     &countingCache{},
		observer:  &recordingObserver{},
		finance:   shared.Actor{TenantID: tenant, UserID: finUser.ID, Role: shared.RoleFinance},
		pm:        shared.Actor{TenantID: tenant, UserID: pmUser.ID, Role: shared.RolePM},
		ro:        shared.Actor{TenantID: tenant, UserID: roUser.ID, Role: shared.RoleRO},
		employee:  shared.Actor{TenantID: tenant, UserID: empUser.ID, Role: shared.RoleEmployee},
	}
	f.projectA = dir.AddProject("Apollo")
	f.projectB = dir.AddProject("Borealis")
	f.resource = dir.AddResource("erin", cc.ID, &empUser.ID)
	f.placeholder = dir.AddPlaceholder("Senior backend hire", &dept.ID, &cc.ID)

	f.svc = NewService(f.repo, dir, f.audit, f.approvals, Config{ForwardCommitmentMonths: 4}, nil)
	f.svc.WithNow(func() time.Time { return time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC) })
	f.svc.WithCache(f.cache)
	f.svc.WithObserver(f.observer)
	f.repo.open(april)
	return f
}

func (f *fixture) actual(t *testing.T, project uuid.UUID, fte int) ActualLine {
	t.Helper()
	line, err := f.svc.CreateActual(context.Background(), f.ro, ActualInput{
		ResourceID: f.resource.ID, ProjectID: project, Period: april, FTEPercent: fte,
	})
	require.NoError(t, err)
	return line
}

func sharedDetails(t *testing.T, err error) map[string]any {
	t.Helper()
	var typed *shared.Error
	require.True(t, errors.As(err, &typed))
	return typed.Details
}

func TestCreateActualRejectsTotalsOver100(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.actual(t, f.projectA.ID, 60)

	_, err := f.svc.CreateActual(ctx, f.ro, ActualInput{ResourceID: f.resource.ID, ProjectID: f.projectB.ID, Period: april, FTEPercent: 50})
	require.ErrorIs(t, err, shared.ErrActualsOver100)
	details := sharedDetails(t, err)
	require.Equal(t, 110, details["total_percent"])
	require.Equal(t, []string{first.ID.String()}, details["offending_line_ids"])
	require.Len(t, f.repo.actuals, 1)

	_, err = f.svc.CreateActual(ctx, f.ro, ActualInput{ResourceID: f.resource.ID, ProjectID: f.projectB.ID, Period: april, FTEPercent: 40})
	require.NoError(t, err)

	total, err := f.svc.ResourceMonthlyTotal(ctx, f.finance, f.resource.ID, april)
	require.NoError(t, err)
	require.Equal(t, 100, total.TotalPercent)
	require.Equal(t, 0, total.RemainingPercent)
	require.Contains(t, f.repo.locks, shared.ActualCapLockKey(tenant, f.resource.ID, april))
	require.Equal(t, []shared.Code{shared.CodeActualsOver100}, f.observer.codes)
}

func TestUpdateActualExcludesItselfFromCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.actual(t, f.projectA.ID, 60)
	f.actual(t, f.projectB.ID, 40)

	_, err := f.svc.UpdateActual(ctx, f.ro, first.ID, 60)
	require.NoError(t, err)

	_, err = f.svc.UpdateActual(ctx, f.ro, first.ID, 65)
	require.ErrorIs(t, err, shared.ErrActualsOver100)
	require.Equal(t, 60, f.repo.actuals[first.ID].ActualFTEPercent)
}

func TestCreateActualDuplicateIsConflict(t *testing.T) {
	f := newFixture(t)
	f.actual(t, f.projectA.ID, 20)
	_, err := f.svc.CreateActual(context.Background(), f.ro, ActualInput{ResourceID: f.resource.ID, ProjectID: f.projectA.ID, Period: april, FTEPercent: 20})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestActualsAllowZeroFTE(t *testing.T) {
	f := newFixture(t)
	line := f.actual(t, f.projectA.ID, 0)
	require.Equal(t, 0, line.ActualFTEPercent)

	_, err := f.svc.CreateActual(context.Background(), f.ro, ActualInput{ResourceID: f.resource.ID, ProjectID: f.projectB.ID, Period: april, FTEPercent: 7})
	require.ErrorIs(t, err, shared.ErrFTEInvalid)
}

func TestEmployeeLimitedToOwnResource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dept := f.dir.AddDepartment("Sales")
	cc := f.dir.AddCostCenter("Field", dept.ID, nil)
	other := f.dir.AddResource("oscar", cc.ID, nil)

	_, err := f.svc.CreateActual(ctx, f.employee, ActualInput{ResourceID: other.ID, ProjectID: f.projectA.ID, Period: april, FTEPercent: 50})
	require.ErrorIs(t, err, shared.ErrUnauthorizedRole)

	own, err := f.svc.CreateActual(ctx, f.employee, ActualInput{ResourceID: f.resource.ID, ProjectID: f.projectA.ID, Period: april, FTEPercent: 50})
	require.NoError(t, err)

	mine, err := f.svc.MyActuals(ctx, f.employee, Filter{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, own.ID, mine[0].ID)

	mine, err = f.svc.MyActuals(ctx, f.pm, Filter{})
	require.NoError(t, err)
	require.Empty(t, mine)
}

func TestDemandRequiresExactlyOneTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resourceID, placeholderID := f.resource.ID, f.placeholder.ID

	_, err := f.svc.CreateDemand(ctx, f.pm, DemandInput{ProjectID: f.projectA.ID, ResourceID: &resourceID, PlaceholderID: &placeholderID, Period: april, FTEPercent: 50})
	require.ErrorIs(t, err, shared.ErrDemandXor)
	require.Contains(t, err.Error(), "cannot specify both")

	_, err = f.svc.CreateDemand(ctx, f.pm, DemandInput{ProjectID: f.projectA.ID, Period: april, FTEPercent: 50})
	require.ErrorIs(t, err, shared.ErrDemandXor)
	require.Contains(t, err.Error(), "must specify either")

	line, err := f.svc.CreateDemand(ctx, f.pm, DemandInput{ProjectID: f.projectA.ID, ResourceID: &resourceID, Period: april, FTEPercent: 50})
	require.NoError(t, err)
	require.Equal(t, resourceID, *line.ResourceID)
	require.Equal(t, 1, f.cache.bumps)
}

func TestPlaceholderBlockedInsideForwardWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	placeholderID := f.placeholder.ID
	june := shared.YearMonth{Year: 2026, Month: 6}
	october := shared.YearMonth{Year: 2026, Month: 10}
	f.repo.open(june)
	f.repo.open(october)

	_, err := f.svc.CreateDemand(ctx, f.pm, DemandInput{ProjectID: f.projectA.ID, PlaceholderID: &placeholderID, Period: june, FTEPercent: 50})
	require.ErrorIs(t, err, shared.ErrPlaceholderBlocked4MFC)
	details := sharedDetails(t, err)
	require.Equal(t, 8, details["boundary_month"])

	_, err = f.svc.CreateDemand(ctx, f.pm, DemandInput{ProjectID: f.projectA.ID, PlaceholderID: &placeholderID, Period: october, FTEPercent: 50})
	require.NoError(t, err)
}

func TestDemandRoleAndDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resourceID := f.resource.ID
	in := DemandInput{ProjectID: f.projectA.ID, ResourceID: &resourceID, Period: april, FTEPercent: 50}

	_, err := f.svc.CreateDemand(ctx, f.ro, in)
	require.ErrorIs(t, err, shared.ErrUnauthorizedRole)

	_, err = f.svc.CreateDemand(ctx, f.finance, in)
	require.NoError(t, err)
	_, err = f.svc.CreateDemand(ctx, f.pm, in)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestSupplyLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateSupply(ctx, f.pm, SupplyInput{ResourceID: f.resource.ID, Period: april, FTEPercent: 80})
	require.ErrorIs(t, err, shared.ErrUnauthorizedRole)

	line, err := f.svc.CreateSupply(ctx, f.ro, SupplyInput{ResourceID: f.resource.ID, Period: april, FTEPercent: 80})
	require.NoError(t, err)
	require.Nil(t, line.ProjectID)

	_, err = f.svc.CreateSupply(ctx, f.ro, SupplyInput{ResourceID: f.resource.ID, Period: april, FTEPercent: 20})
	require.ErrorIs(t, err, shared.ErrConflict)

	projectID := f.projectA.ID
	_, err = f.svc.CreateSupply(ctx, f.ro, SupplyInput{ResourceID: f.resource.ID, ProjectID: &projectID, Period: april, FTEPercent: 20})
	require.NoError(t, err)

	updated, err := f.svc.UpdateSupply(ctx, f.finance, line.ID, 90)
	require.NoError(t, err)
	require.Equal(t, 90, updated.FTEPercent)

	_, err = f.svc.UpdateSupply(ctx, f.finance, line.ID, 105)
	require.ErrorIs(t, err, shared.ErrFTEInvalid)

	require.NoError(t, f.svc.DeleteSupply(ctx, f.ro, line.ID))
	_, err = f.svc.GetSupply(ctx, f.ro, line.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestLockedPeriodBlocksWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resourceID := f.resource.ID
	projectA := f.projectA.ID
	line := f.actual(t, f.projectA.ID, 50)
	demand, err := f.svc.CreateDemand(ctx, f.pm, DemandInput{ProjectID: f.projectA.ID, ResourceID: &resourceID, Period: april, FTEPercent: 50})
	require.NoError(t, err)
	supply, err := f.svc.CreateSupply(ctx, f.ro, SupplyInput{ResourceID: f.resource.ID, Period: april, FTEPercent: 80})
	require.NoError(t, err)
	audited := len(f.audit.entries)

	f.repo.setStatus(april, periods.StatusLocked)

	writes := map[string]func() error{
		"create actual": func() error {
			_, err := f.svc.CreateActual(ctx, f.ro, ActualInput{ResourceID: f.resource.ID, ProjectID: f.projectB.ID, Period: april, FTEPercent: 10})
			return err
		},
		"update actual": func() error {
			_, err := f.svc.UpdateActual(ctx, f.ro, line.ID, 40)
			return err
		},
		"delete actual": func() error { return f.svc.DeleteActual(ctx, f.ro, line.ID) },
		"sign": func() error {
			_, err := f.svc.Sign(ctx, f.employee, line.ID)
			return err
		},
		"proxy sign": func() error {
			_, err := f.svc.ProxySign(ctx, f.ro, line.ID, "on leave")
			return err
		},
		"create demand": func() error {
			_, err := f.svc.CreateDemand(ctx, f.pm, DemandInput{ProjectID: f.projectB.ID, ResourceID: &resourceID, Period: april, FTEPercent: 20})
			return err
		},
		"update demand": func() error {
			_, err := f.svc.UpdateDemand(ctx, f.pm, demand.ID, 30)
			return err
		},
		"delete demand": func() error { return f.svc.DeleteDemand(ctx, f.pm, demand.ID) },
		"create supply": func() error {
			_, err := f.svc.CreateSupply(ctx, f.ro, SupplyInput{ResourceID: f.resource.ID, ProjectID: &projectA, Period: april, FTEPercent: 20})
			return err
		},
		"update supply": func() error {
			_, err := f.svc.UpdateSupply(ctx, f.finance, supply.ID, 90)
			return err
		},
		"delete supply": func() error { return f.svc.DeleteSupply(ctx, f.ro, supply.ID) },
		"create oop": func() error {
			_, err := f.svc.CreateOOP(ctx, f.finance, OOPInput{ResourceID: f.resource.ID, ProjectID: f.projectA.ID, Period: april, Hours: 4, HourlyRate: mustDecimal(t, "50")})
			return err
		},
	}
	for name, write := range writes {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, write(), shared.ErrPeriodLocked)
		})
	}
	require.Empty(t, f.approvals.started)
	require.Len(t, f.audit.entries, audited)
	oop, err := f.svc.ListOOP(ctx, f.finance, Filter{})
	require.NoError(t, err)
	require.Empty(t, oop)

	f.repo.setStatus(april, periods.StatusOpen)
	updated, err := f.svc.UpdateActual(ctx, f.ro, line.ID, 40)
	require.NoError(t, err)
	require.Equal(t, 40, updated.ActualFTEPercent)
	_, err = f.svc.UpdateSupply(ctx, f.finance, supply.ID, 90)
	require.NoError(t, err)
	_, err = f.svc.CreateDemand(ctx, f.pm, DemandInput{ProjectID: f.projectB.ID, ResourceID: &resourceID, Period: april, FTEPercent: 20})
	require.NoError(t, err)
	_, err = f.svc.CreateOOP(ctx, f.finance, OOPInput{ResourceID: f.resource.ID, ProjectID: f.projectA.ID, Period: april, Hours: 4, HourlyRate: mustDecimal(t, "50")})
	require.NoError(t, err)
	signed, err := f.svc.ProxySign(ctx, f.ro, line.ID, "on leave")
	require.NoError(t, err)
	require.True(t, signed.ProxySigned)
	require.Equal(t, []uuid.UUID{line.ID}, f.approvals.started)
}

func TestWritesRequireExistingPeriod(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateActual(context.Background(), f.ro, ActualInput{
		ResourceID: f.resource.ID, ProjectID: f.projectA.ID, Period: shared.YearMonth{Year: 2026, Month: 5}, FTEPercent: 10,
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSignedActualsAreImmutable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	line := f.actual(t, f.projectA.ID, 50)

	signed, err := f.svc.Sign(ctx, f.employee, line.ID)
	require.NoError(t, err)
	require.True(t, signed.Signed())
	require.False(t, signed.ProxySigned)
	require.Equal(t, []uuid.UUID{line.ID}, f.approvals.started)

	_, err = f.svc.UpdateActual(ctx, f.ro, line.ID, 40)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.ErrorIs(t, f.svc.DeleteActual(ctx, f.ro, line.ID), shared.ErrValidation)
	_, err = f.svc.Sign(ctx, f.employee, line.ID)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestProxySignRequiresReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	line := f.actual(t, f.projectA.ID, 50)

	_, err := f.svc.ProxySign(ctx, f.ro, line.ID, "   ")
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.ProxySign(ctx, f.employee, line.ID, "on leave")
	require.ErrorIs(t, err, shared.ErrUnauthorizedRole)

	signed, err := f.svc.ProxySign(ctx, f.ro, line.ID, " on leave ")
	require.NoError(t, err)
	require.True(t, signed.ProxySigned)
	require.Equal(t, "on leave", signed.ProxySignReason)

	last := f.audit.entries[len(f.audit.entries)-1]
	require.Equal(t, "proxy_sign", last.Action)
	require.Equal(t, "on leave", last.Reason)
}

func TestAuditFailureAbortsMutation(t *testing.T) {
	f := newFixture(t)
	f.audit.fail = errors.New("audit store down")

	_, err := f.svc.CreateActual(context.Background(), f.ro, ActualInput{ResourceID: f.resource.ID, ProjectID: f.projectA.ID, Period: april, FTEPercent: 50})
	require.Error(t, err)
	require.Empty(t, f.repo.actuals)
	require.Zero(t, f.cache.bumps)
}

func TestCreateOOPComputesCents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateOOP(ctx, f.pm, OOPInput{ResourceID: f.resource.ID, ProjectID: f.projectA.ID, Period: april, Hours: 10, HourlyRate: mustDecimal(t, "85.50")})
	require.ErrorIs(t, err, shared.ErrUnauthorizedRole)

	line, err := f.svc.CreateOOP(ctx, f.finance, OOPInput{ResourceID: f.resource.ID, ProjectID: f.projectA.ID, Period: april, Hours: 10, HourlyRate: mustDecimal(t, "85.50"), Description: " contractor "})
	require.NoError(t, err)
	require.Equal(t, int64(8550), line.HourlyRate)
	require.Equal(t, int64(85500), line.TotalCost)
	require.Equal(t, "contractor", line.Description)

	lines, err := f.svc.ListOOP(ctx, f.finance, Filter{})
	require.NoError(t, err)
	require.Len(t, lines, 1)
}
