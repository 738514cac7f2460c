package consolidation

import (
	"sort"

	"github.com/google/uuid"

	"github.com/odyssey-erp/resource-planning/internal/directory"
	"github.com/odyssey-erp/resource-planning/internal/periods"
	"github.com/odyssey-erp/resource-planning/internal/planning"
)

type deptBuilder struct {
	node        DepartmentNode
	costCenters map[uuid.UUID]*CostCenterNode
	unassigned  *CostCenterNode
}

type treeBuilder struct {
	departments map[uuid.UUID]*deptBuilder
	unassigned  *deptBuilder
}

func (t *treeBuilder) department(d *directory.Department) *deptBuilder {
	if d == nil {
		if t.unassigned == nil {
			t.unassigned = &deptBuilder{node: DepartmentNode{DepartmentName: Unassigned}, costCenters: map[uuid.UUID]*CostCenterNode{}}
		}
		return t.unassigned
	}
	b, ok := t.departments[d.ID]
	if !ok {
		id := d.ID
		b = &deptBuilder{node: DepartmentNode{DepartmentID: &id, DepartmentName: d.Name}, costCenters: map[uuid.UUID]*CostCenterNode{}}
		t.departments[d.ID] = b
	}
	return b
}

func (b *deptBuilder) costCenter(cc *directory.CostCenter) *CostCenterNode {
	if cc == nil {
		if b.unassigned == nil {
			b.unassigned = &CostCenterNode{CostCenterName: Unassigned}
		}
		return b.unassigned
	}
	node, ok := b.costCenters[cc.ID]
	if !ok {
		id := cc.ID
		node = &CostCenterNode{CostCenterID: &id, CostCenterName: cc.Name}
		b.costCenters[cc.ID] = node
	}
	return node
}

func (b *deptBuilder) finish() DepartmentNode {
	node := b.node
	node.GapFTE = node.TotalSupplyFTE - node.TotalDemandFTE
	nodes := make([]CostCenterNode, 0, len(b.costCenters)+1)
	for _, cc := range b.costCenters {
		nodes = append(nodes, *cc)
	}
	if b.unassigned != nil {
		nodes = append(nodes, *b.unassigned)
	}
	for i := range nodes {
		if nodes[i].Resources == nil {
			nodes[i].Resources = []ResourceRow{}
		}
		if nodes[i].Placeholders == nil {
			nodes[i].Placeholders = []PlaceholderRow{}
		}
		sort.SliceStable(nodes[i].Resources, func(a, c int) bool {
			return nodes[i].Resources[a].ResourceName < nodes[i].Resources[c].ResourceName
		})
	}
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].CostCenterName < nodes[j].CostCenterName })
	node.CostCenters = nodes
	return node
}

func resourceName(c directory.Catalog, id uuid.UUID) string {
	if r, ok := c.Resources[id]; ok {
		return r.DisplayName
	}
	return unknownName
}

func departmentName(d *directory.Department) string {
	if d == nil {
		return Unassigned
	}
	return d.Name
}

// BuildDashboard aggregates a period's demand and supply into the department hierarchy.
// Supply is summed per resource. Placeholder demand counts toward its department's demand
// and the orphan count but never toward any resource.
func BuildDashboard(period periods.Period, demand []planning.DemandLine, supply []planning.SupplyLine, catalog directory.Catalog) Dashboard {
	demandByResource := map[uuid.UUID]int{}
	supplyByResource := map[uuid.UUID]int{}
	var resourceIDs []uuid.UUID
	seen := map[uuid.UUID]bool{}
	track := func(id uuid.UUID) {
		if !seen[id] {
			seen[id] = true
			resourceIDs = append(resourceIDs, id)
		}
	}
	var orphans []planning.DemandLine
	for _, d := range demand {
		switch {
		case d.ResourceID != nil:
			demandByResource[*d.ResourceID] += d.FTEPercent
			track(*d.ResourceID)
		case d.PlaceholderID != nil:
			orphans = append(orphans, d)
		}
	}
	for _, s := range supply {
		supplyByResource[s.ResourceID] += s.FTEPercent
		track(s.ResourceID)
	}

	tree := &treeBuilder{departments: map[uuid.UUID]*deptBuilder{}}
	overAllocations := []OverAllocation{}
	for _, id := range resourceIDs {
		dept, cc := catalog.Resolve(id)
		d, s := demandByResource[id], supplyByResource[id]
		b := tree.department(dept)
		b.node.TotalDemandFTE += d
		b.node.TotalSupplyFTE += s
		node := b.costCenter(cc)
		name := resourceName(catalog, id)
		node.Resources = append(node.Resources, ResourceRow{
			ResourceID:   id,
			ResourceName: name,
			DemandFTE:    d,
			SupplyFTE:    s,
			GapFTE:       s - d,
			Status:       StatusForGap(s - d),
		})
		if d > 100 {
			overAllocations = append(overAllocations, OverAllocation{
				ResourceID:     id,
				ResourceName:   name,
				DepartmentID:   b.node.DepartmentID,
				DepartmentName: departmentName(dept),
				TotalDemandFTE: d,
			})
		}
	}

	for _, o := range orphans {
		dept, cc := catalog.ResolvePlaceholder(*o.PlaceholderID)
		b := tree.department(dept)
		b.node.TotalDemandFTE += o.FTEPercent
		node := b.costCenter(cc)
		row := PlaceholderRow{
			DemandLineID:    o.ID,
			PlaceholderID:   *o.PlaceholderID,
			PlaceholderName: unknownName,
			DemandFTE:       o.FTEPercent,
			ProjectID:       o.ProjectID,
			ProjectName:     unknownName,
		}
		if ph, ok := catalog.Placeholders[*o.PlaceholderID]; ok {
			row.PlaceholderName = ph.Name
		}
		if p, ok := catalog.Projects[o.ProjectID]; ok {
			row.ProjectName = p.Name
		}
		node.Placeholders = append(node.Placeholders, row)
	}

	builders := make([]*deptBuilder, 0, len(tree.departments)+1)
	for _, b := range tree.departments {
		builders = append(builders, b)
	}
	if tree.unassigned != nil {
		builders = append(builders, tree.unassigned)
	}
	departments := make([]DepartmentNode, 0, len(builders))
	var summary Summary
	for _, b := range builders {
		node := b.finish()
		summary.TotalDemandFTE += node.TotalDemandFTE
		summary.TotalSupplyFTE += node.TotalSupplyFTE
		departments = append(departments, node)
	}
	sort.SliceStable(departments, func(i, j int) bool { return departments[i].DepartmentName < departments[j].DepartmentName })
	sort.SliceStable(overAllocations, func(i, j int) bool {
		if overAllocations[i].TotalDemandFTE != overAllocations[j].TotalDemandFTE {
			return overAllocations[i].TotalDemandFTE > overAllocations[j].TotalDemandFTE
		}
		return overAllocations[i].ResourceName < overAllocations[j].ResourceName
	})

	summary.TotalDepartments = len(departments)
	summary.TotalGapFTE = summary.TotalSupplyFTE - summary.TotalDemandFTE
	summary.OrphansCount = len(orphans)
	summary.OverAllocationsCount = len(overAllocations)

	return Dashboard{
		PeriodID:        period.ID,
		Period:          period.YearMonth().String(),
		Summary:         summary,
		Departments:     departments,
		OverAllocations: overAllocations,
	}
}

// Lines bundles every planning line of a period.
type Lines struct {
	Demand  []planning.DemandLine
	Supply  []planning.SupplyLine
	Actuals []planning.ActualLine
	OOP     []planning.OOPLine
}

func intPtr(v int) *int { return &v }

func idPtr(id uuid.UUID) *uuid.UUID { return &id }

// BuildSnapshotLines denormalises a period's lines for a snapshot, resolving every name
// from the catalog as it stands now.
func BuildSnapshotLines(snapshotID uuid.UUID, lines Lines, catalog directory.Catalog) []SnapshotLine {
	out := make([]SnapshotLine, 0, len(lines.Demand)+len(lines.Supply)+len(lines.Actuals)+len(lines.OOP))
	project := func(id uuid.UUID) string {
		if p, ok := catalog.Projects[id]; ok {
			return p.Name
		}
		return ""
	}
	withResource := func(l *SnapshotLine, id uuid.UUID) {
		l.ResourceID = idPtr(id)
		if r, ok := catalog.Resources[id]; ok {
			l.ResourceName = r.DisplayName
		}
		dept, cc := catalog.Resolve(id)
		if dept != nil {
			l.DepartmentName = dept.Name
		}
		if cc != nil {
			l.CostCenterName = cc.Name
		}
	}
	base := func(t LineType, year, month int) SnapshotLine {
		return SnapshotLine{ID: uuid.New(), SnapshotID: snapshotID, LineType: t, Year: year, Month: month}
	}

	for _, d := range lines.Demand {
		l := base(LineDemand, d.Year, d.Month)
		l.ProjectID, l.ProjectName = idPtr(d.ProjectID), project(d.ProjectID)
		l.FTEPercent = intPtr(d.FTEPercent)
		if d.ResourceID != nil {
			withResource(&l, *d.ResourceID)
		}
		if d.PlaceholderID != nil {
			l.PlaceholderID = idPtr(*d.PlaceholderID)
			if ph, ok := catalog.Placeholders[*d.PlaceholderID]; ok {
				l.PlaceholderName = ph.Name
			}
			dept, cc := catalog.ResolvePlaceholder(*d.PlaceholderID)
			if dept != nil {
				l.DepartmentName = dept.Name
			}
			if cc != nil {
				l.CostCenterName = cc.Name
			}
		}
		out = append(out, l)
	}
	for _, s := range lines.Supply {
		l := base(LineSupply, s.Year, s.Month)
		withResource(&l, s.ResourceID)
		if s.ProjectID != nil {
			l.ProjectID, l.ProjectName = idPtr(*s.ProjectID), project(*s.ProjectID)
		}
		l.FTEPercent = intPtr(s.FTEPercent)
		out = append(out, l)
	}
	for _, a := range lines.Actuals {
		l := base(LineActual, a.Year, a.Month)
		withResource(&l, a.ResourceID)
		l.ProjectID, l.ProjectName = idPtr(a.ProjectID), project(a.ProjectID)
		l.FTEPercent = intPtr(a.ActualFTEPercent)
		out = append(out, l)
	}
	for _, o := range lines.OOP {
		l := base(LineOOP, o.Year, o.Month)
		withResource(&l, o.ResourceID)
		l.ProjectID, l.ProjectName = idPtr(o.ProjectID), project(o.ProjectID)
		l.Hours = intPtr(o.Hours)
		cost := o.TotalCost
		l.Cost = &cost
		out = append(out, l)
	}
	return out
}
