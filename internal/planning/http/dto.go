package planninghttp

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/resource-planning/internal/planning"
)

type demandResponse struct {
	ID            uuid.UUID  `json:"id"`
	PeriodID      uuid.UUID  `json:"period_id"`
	ProjectID     uuid.UUID  `json:"project_id"`
	ResourceID    *uuid.UUID `json:"resource_id"`
	PlaceholderID *uuid.UUID `json:"placeholder_id"`
	Year          int        `json:"year"`
	Month         int        `json:"month"`
	FTEPercent    int        `json:"fte_percent"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func toDemandResponse(l planning.DemandLine) demandResponse {
	return demandResponse{
		ID:            l.ID,
		PeriodID:      l.PeriodID,
		ProjectID:     l.ProjectID,
		ResourceID:    l.ResourceID,
		PlaceholderID: l.PlaceholderID,
		Year:          l.Year,
		Month:         l.Month,
		FTEPercent:    l.FTEPercent,
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
}

type supplyResponse struct {
	ID         uuid.UUID  `json:"id"`
	PeriodID   uuid.UUID  `json:"period_id"`
	ResourceID uuid.UUID  `json:"resource_id"`
	ProjectID  *uuid.UUID `json:"project_id"`
	Year       int        `json:"year"`
	Month      int        `json:"month"`
	FTEPercent int        `json:"fte_percent"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func toSupplyResponse(l planning.SupplyLine) supplyResponse {
	return supplyResponse{
		ID:         l.ID,
		PeriodID:   l.PeriodID,
		ResourceID: l.ResourceID,
		ProjectID:  l.ProjectID,
		Year:       l.Year,
		Month:      l.Month,
		FTEPercent: l.FTEPercent,
		CreatedAt:  l.CreatedAt,
		UpdatedAt:  l.UpdatedAt,
	}
}

type actualResponse struct {
	ID                uuid.UUID  `json:"id"`
	PeriodID          uuid.UUID  `json:"period_id"`
	ResourceID        uuid.UUID  `json:"resource_id"`
	ProjectID         uuid.UUID  `json:"project_id"`
	Year              int        `json:"year"`
	Month             int        `json:"month"`
	PlannedFTEPercent *int       `json:"planned_fte_percent"`
	ActualFTEPercent  int        `json:"actual_fte_percent"`
	EmployeeSignedAt  *time.Time `json:"employee_signed_at"`
	EmployeeSignedBy  *uuid.UUID `json:"employee_signed_by"`
	IsProxySigned     bool       `json:"is_proxy_signed"`
	ProxySignReason   string     `json:"proxy_sign_reason,omitempty"`
	ROApprovedAt      *time.Time `json:"ro_approved_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func toActualResponse(l planning.ActualLine) actualResponse {
	return actualResponse{
		ID:                l.ID,
		PeriodID:          l.PeriodID,
		ResourceID:        l.ResourceID,
		ProjectID:         l.ProjectID,
		Year:              l.Year,
		Month:             l.Month,
		PlannedFTEPercent: l.PlannedFTEPercent,
		ActualFTEPercent:  l.ActualFTEPercent,
		EmployeeSignedAt:  l.SignedAt,
		EmployeeSignedBy:  l.SignedBy,
		IsProxySigned:     l.ProxySigned,
		ProxySignReason:   l.ProxySignReason,
		ROApprovedAt:      l.ROApprovedAt,
		CreatedAt:         l.CreatedAt,
		UpdatedAt:         l.UpdatedAt,
	}
}

type createOOPRequest struct {
	ResourceID  uuid.UUID       `json:"resource_id" validate:"required"`
	ProjectID   uuid.UUID       `json:"project_id" validate:"required"`
	Year        int             `json:"year" validate:"required"`
	Month       int             `json:"month" validate:"required"`
	Hours       int             `json:"hours" validate:"required,gt=0"`
	HourlyRate  decimal.Decimal `json:"hourly_rate"`
	Description string          `json:"description" validate:"max=500"`
}

// Money leaves the API as cents.
type oopResponse struct {
	ID          uuid.UUID `json:"id"`
	PeriodID    uuid.UUID `json:"period_id"`
	ResourceID  uuid.UUID `json:"resource_id"`
	ProjectID   uuid.UUID `json:"project_id"`
	Year        int       `json:"year"`
	Month       int       `json:"month"`
	Hours       int       `json:"hours"`
	HourlyRate  int64     `json:"hourly_rate_cents"`
	TotalCost   int64     `json:"total_cost_cents"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toOOPResponse(l planning.OOPLine) oopResponse {
	return oopResponse{
		ID:          l.ID,
		PeriodID:    l.PeriodID,
		ResourceID:  l.ResourceID,
		ProjectID:   l.ProjectID,
		Year:        l.Year,
		Month:       l.Month,
		Hours:       l.Hours,
		HourlyRate:  l.HourlyRate,
		TotalCost:   l.TotalCost,
		Description: l.Description,
		CreatedAt:   l.CreatedAt,
	}
}
