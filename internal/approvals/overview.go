package approvals

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/odyssey-erp/resource-planning/internal/shared"
)

// NoApproval marks actual lines that have not been signed into a workflow yet.
const NoApproval = "N/A"

// OverviewFilter narrows the finance actuals overview. ApprovalStatus accepts an
// instance status or NoApproval.
type OverviewFilter struct {
	Year           *int
	Month          *int
	ProjectID      *uuid.UUID
	CostCenterID   *uuid.UUID
	ApprovalStatus string
}

// OverviewSource is an actual line joined with its approval instance, if any.
type OverviewSource struct {
	ActualID   uuid.UUID
	ResourceID uuid.UUID
	ProjectID  uuid.UUID
	Year       int
	Month      int
	FTEPercent int
	Instance   *Instance
}

// OverviewRow is one line of the finance actuals overview.
type OverviewRow struct {
	ActualID            uuid.UUID  `json:"actual_id"`
	EmployeeName        string     `json:"employee_name"`
	EmployeeEmail       string     `json:"employee_email"`
	ProjectID           uuid.UUID  `json:"project_id"`
	ProjectName         string     `json:"project_name"`
	CostCenterID        *uuid.UUID `json:"cost_center_id"`
	CostCenterName      string     `json:"cost_center_name"`
	Year                int        `json:"year"`
	Month               int        `json:"month"`
	FTEPercent          int        `json:"fte_percent"`
	ApprovalStatus      string     `json:"approval_status"`
	CurrentStep         *string    `json:"current_approval_step"`
	CurrentApproverName *string    `json:"current_approver_name"`
}

// ActualsOverview lists actual lines with their approval progress for finance.
func (s *Service) ActualsOverview(ctx context.Context, actor shared.Actor, f OverviewFilter) ([]OverviewRow, error) {
	if err := actor.Require(shared.CapOverviewActuals); err != nil {
		return nil, err
	}
	sources, err := s.repo.OverviewSources(ctx, actor.TenantID, f)
	if err != nil {
		return nil, err
	}
	catalog, err := s.dir.Catalog(ctx, actor.TenantID)
	if err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string)
	rows := make([]OverviewRow, 0, len(sources))
	for _, src := range sources {
		status := NoApproval
		if src.Instance != nil {
			status = string(src.Instance.Status)
		}
		if f.ApprovalStatus != "" && f.ApprovalStatus != status {
			continue
		}
		row := OverviewRow{
			ActualID:       src.ActualID,
			ProjectID:      src.ProjectID,
			Year:           src.Year,
			Month:          src.Month,
			FTEPercent:     src.FTEPercent,
			ApprovalStatus: status,
		}
		if res, ok := catalog.Resources[src.ResourceID]; ok {
			row.EmployeeName = res.DisplayName
			row.EmployeeEmail = res.Email
		}
		if p, ok := catalog.Projects[src.ProjectID]; ok {
			row.ProjectName = p.Name
		}
		_, cc := catalog.Resolve(src.ResourceID)
		if cc != nil {
			id := cc.ID
			row.CostCenterID = &id
			row.CostCenterName = cc.Name
		}
		if f.CostCenterID != nil && (cc == nil || cc.ID != *f.CostCenterID) {
			continue
		}
		if src.Instance != nil && src.Instance.Status == InstancePending {
			if step := src.Instance.CurrentStep(); step != nil {
				name := string(step.Name)
				row.CurrentStep = &name
				if step.ApproverID != nil {
					approver, err := s.approverName(ctx, actor.TenantID, *step.ApproverID, names)
					if err != nil {
						return nil, err
					}
					row.CurrentApproverName = approver
				}
			}
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Year != rows[j].Year {
			return rows[i].Year < rows[j].Year
		}
		if rows[i].Month != rows[j].Month {
			return rows[i].Month < rows[j].Month
		}
		return rows[i].EmployeeName < rows[j].EmployeeName
	})
	return rows, nil
}

func (s *Service) approverName(ctx context.Context, tenantID string, id uuid.UUID, cache map[uuid.UUID]string) (*string, error) {
	if name, ok := cache[id]; ok {
		return &name, nil
	}
	u, err := s.dir.User(ctx, tenantID, id)
	if err != nil {
		if shared.CodeOf(err) == shared.CodeNotFound {
			return nil, nil
		}
		return nil, err
	}
	cache[id] = u.DisplayName
	return &u.DisplayName, nil
}
