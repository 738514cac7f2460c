// Package consolidation aggregates demand against supply for a period and publishes
// immutable snapshots of a period's planning lines.
package consolidation

import (
	"time"

	"github.com/google/uuid"
)

// Unassigned labels hierarchy nodes whose department or cost center cannot be resolved.
const Unassigned = "Unassigned"

// unknownName labels lines whose referenced entity no longer exists.
const unknownName = "Unknown"

// ResourceStatus compares a resource's supply with its demand.
type ResourceStatus string

const (
	StatusUnder    ResourceStatus = "under"
	StatusOver     ResourceStatus = "over"
	StatusBalanced ResourceStatus = "balanced"
)

// StatusForGap classifies gap = supply - demand.
func StatusForGap(gap int) ResourceStatus {
	switch {
	case gap < 0:
		return StatusUnder
	case gap > 0:
		return StatusOver
	default:
		return StatusBalanced
	}
}

// Dashboard is the department hierarchy view of one period.
type Dashboard struct {
	PeriodID        uuid.UUID        `json:"period_id"`
	Period          string           `json:"period"`
	Summary         Summary          `json:"summary"`
	Departments     []DepartmentNode `json:"departments"`
	OverAllocations []OverAllocation `json:"over_allocations"`
}

// Summary carries tenant-wide totals for the period.
type Summary struct {
	TotalDepartments     int `json:"total_departments"`
	TotalDemandFTE       int `json:"total_demand_fte"`
	TotalSupplyFTE       int `json:"total_supply_fte"`
	TotalGapFTE          int `json:"total_gap_fte"`
	OrphansCount         int `json:"orphans_count"`
	OverAllocationsCount int `json:"over_allocations_count"`
}

// DepartmentNode aggregates its cost centers.
type DepartmentNode struct {
	DepartmentID   *uuid.UUID       `json:"department_id"`
	DepartmentName string           `json:"department_name"`
	TotalDemandFTE int              `json:"total_demand_fte"`
	TotalSupplyFTE int              `json:"total_supply_fte"`
	GapFTE         int              `json:"gap_fte"`
	CostCenters    []CostCenterNode `json:"cost_centers"`
}

// CostCenterNode lists the resources and placeholder demand under a cost center.
type CostCenterNode struct {
	CostCenterID   *uuid.UUID       `json:"cost_center_id"`
	CostCenterName string           `json:"cost_center_name"`
	Resources      []ResourceRow    `json:"resources"`
	Placeholders   []PlaceholderRow `json:"placeholders"`
}

// ResourceRow is one resource's demand and supply in the period.
type ResourceRow struct {
	ResourceID   uuid.UUID      `json:"resource_id"`
	ResourceName string         `json:"resource_name"`
	DemandFTE    int            `json:"demand_fte"`
	SupplyFTE    int            `json:"supply_fte"`
	GapFTE       int            `json:"gap_fte"`
	Status       ResourceStatus `json:"status"`
}

// PlaceholderRow is a single placeholder-backed (orphan) demand line.
type PlaceholderRow struct {
	DemandLineID    uuid.UUID `json:"demand_line_id"`
	PlaceholderID   uuid.UUID `json:"placeholder_id"`
	PlaceholderName string    `json:"placeholder_name"`
	DemandFTE       int       `json:"demand_fte"`
	ProjectID       uuid.UUID `json:"project_id"`
	ProjectName     string    `json:"project_name"`
}

// OverAllocation flags a resource demanded above 100% in the period.
type OverAllocation struct {
	ResourceID     uuid.UUID  `json:"resource_id"`
	ResourceName   string     `json:"resource_name"`
	DepartmentID   *uuid.UUID `json:"department_id"`
	DepartmentName string     `json:"department_name"`
	TotalDemandFTE int        `json:"total_demand_fte"`
}

// LineType tags a snapshot line with the source table it was copied from.
type LineType string

const (
	LineDemand LineType = "demand"
	LineSupply LineType = "supply"
	LineActual LineType = "actual"
	LineOOP    LineType = "oop"
)

// Snapshot is a write-once copy of a period's lines.
type Snapshot struct {
	ID          uuid.UUID      `json:"id"`
	TenantID    string         `json:"-"`
	PeriodID    uuid.UUID      `json:"period_id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	PublishedBy uuid.UUID      `json:"published_by"`
	PublishedAt time.Time      `json:"published_at"`
	LinesCount  int            `json:"lines_count"`
	Lines       []SnapshotLine `json:"lines,omitempty"`
}

// SnapshotLine embeds resolved names so it stays readable after source rows change.
type SnapshotLine struct {
	ID              uuid.UUID  `json:"id"`
	SnapshotID      uuid.UUID  `json:"snapshot_id"`
	LineType        LineType   `json:"line_type"`
	ProjectID       *uuid.UUID `json:"project_id,omitempty"`
	ProjectName     string     `json:"project_name,omitempty"`
	ResourceID      *uuid.UUID `json:"resource_id,omitempty"`
	ResourceName    string     `json:"resource_name,omitempty"`
	PlaceholderID   *uuid.UUID `json:"placeholder_id,omitempty"`
	PlaceholderName string     `json:"placeholder_name,omitempty"`
	DepartmentName  string     `json:"department_name,omitempty"`
	CostCenterName  string     `json:"cost_center_name,omitempty"`
	Year            int        `json:"year"`
	Month           int        `json:"month"`
	FTEPercent      *int       `json:"fte_percent,omitempty"`
	Hours           *int       `json:"hours,omitempty"`
	Cost            *int64     `json:"cost,omitempty"`
}

// PublishInput names a new snapshot.
type PublishInput struct {
	PeriodID    uuid.UUID
	Name        string
	Description string
}
