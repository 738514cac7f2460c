package planning

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/resource-planning/internal/shared"
)

// DemandLine is a project's request for a named resource or a placeholder in one month.
// Exactly one of ResourceID and PlaceholderID is set.
type DemandLine struct {
	ID            uuid.UUID
	TenantID      string
	PeriodID      uuid.UUID
	ProjectID     uuid.UUID
	ResourceID    *uuid.UUID
	PlaceholderID *uuid.UUID
	Year          int
	Month         int
	FTEPercent    int
	CreatedBy     uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// YearMonth returns the month the line is dated in.
func (l DemandLine) YearMonth() shared.YearMonth { return shared.YearMonth{Year: l.Year, Month: l.Month} }

// SupplyLine is a resource owner's offer of capacity, optionally pinned to a project.
type SupplyLine struct {
	ID         uuid.UUID
	TenantID   string
	PeriodID   uuid.UUID
	ResourceID uuid.UUID
	ProjectID  *uuid.UUID
	Year       int
	Month      int
	FTEPercent int
	CreatedBy  uuid.UUID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// YearMonth returns the month the line is dated in.
func (l SupplyLine) YearMonth() shared.YearMonth { return shared.YearMonth{Year: l.Year, Month: l.Month} }

// ActualLine records the share of a month a resource actually spent on a project.
type ActualLine struct {
	ID                uuid.UUID
	TenantID          string
	PeriodID          uuid.UUID
	ResourceID        uuid.UUID
	ProjectID         uuid.UUID
	Year              int
	Month             int
	PlannedFTEPercent *int
	ActualFTEPercent  int
	SignedAt          *time.Time
	SignedBy          *uuid.UUID
	ProxySigned       bool
	ProxySignReason   string
	ROApprovedAt      *time.Time
	ROApprovedBy      *uuid.UUID
	CreatedBy         uuid.UUID
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// YearMonth returns the month the line is dated in.
func (l ActualLine) YearMonth() shared.YearMonth { return shared.YearMonth{Year: l.Year, Month: l.Month} }

// Signed reports whether the employee (or a proxy) has signed the line.
func (l ActualLine) Signed() bool { return l.SignedAt != nil }

// OOPLine is an out-of-pool cost line (externals, students, equipment). Money is in cents.
type OOPLine struct {
	ID          uuid.UUID
	TenantID    string
	PeriodID    uuid.UUID
	ResourceID  uuid.UUID
	ProjectID   uuid.UUID
	Year        int
	Month       int
	Hours       int
	HourlyRate  int64
	TotalCost   int64
	Description string
	CreatedBy   uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// YearMonth returns the month the line is dated in.
func (l OOPLine) YearMonth() shared.YearMonth { return shared.YearMonth{Year: l.Year, Month: l.Month} }

// DemandInput captures a new demand line.
type DemandInput struct {
	ProjectID     uuid.UUID
	ResourceID    *uuid.UUID
	PlaceholderID *uuid.UUID
	Period        shared.YearMonth
	FTEPercent    int
}

// SupplyInput captures a new supply line.
type SupplyInput struct {
	ResourceID uuid.UUID
	ProjectID  *uuid.UUID
	Period     shared.YearMonth
	FTEPercent int
}

// ActualInput captures a new actual line.
type ActualInput struct {
	ResourceID        uuid.UUID
	ProjectID         uuid.UUID
	Period            shared.YearMonth
	FTEPercent        int
	PlannedFTEPercent *int
}

// OOPInput captures a new out-of-pool cost line. HourlyRate is in currency units.
type OOPInput struct {
	ResourceID  uuid.UUID
	ProjectID   uuid.UUID
	Period      shared.YearMonth
	Hours       int
	HourlyRate  decimal.Decimal
	Description string
}

// Filter narrows line listings. Zero fields are ignored.
type Filter struct {
	Year       *int
	Month      *int
	ProjectID  *uuid.UUID
	ResourceID *uuid.UUID
	PeriodID   *uuid.UUID
}

// MonthlyTotal summarises a resource's signed and unsigned actuals for one month.
type MonthlyTotal struct {
	ResourceID       uuid.UUID `json:"resource_id"`
	Year             int       `json:"year"`
	Month            int       `json:"month"`
	TotalPercent     int       `json:"total_percent"`
	RemainingPercent int       `json:"remaining_percent"`
}
