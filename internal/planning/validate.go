package planning

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/resource-planning/internal/shared"
)

const (
	minFTE  = 5
	maxFTE  = 100
	fteStep = 5

	// MaxMonthlyActualPercent caps a resource's actuals across all projects in a month.
	MaxMonthlyActualPercent = 100
)

// FTEInRange accepts multiples of 5 in [5,100], plus 0 when allowZero is set.
func FTEInRange(value int, allowZero bool) error {
	if value%fteStep == 0 && ((value >= minFTE && value <= maxFTE) || (allowZero && value == 0)) {
		return nil
	}
	msg := "FTE must be between 5 and 100 in steps of 5"
	if allowZero {
		msg = "FTE must be 0 or between 5 and 100 in steps of 5"
	}
	return shared.NewError(shared.CodeFTEInvalid, msg).WithDetails(map[string]any{"fte_percent": value})
}

// CheckDemandTarget enforces that a demand line names exactly one of resource and placeholder.
func CheckDemandTarget(resourceID, placeholderID *uuid.UUID) error {
	switch {
	case resourceID != nil && placeholderID != nil:
		return shared.NewError(shared.CodeDemandXor, "cannot specify both resource_id and placeholder_id")
	case resourceID == nil && placeholderID == nil:
		return shared.NewError(shared.CodeDemandXor, "must specify either resource_id or placeholder_id")
	default:
		return nil
	}
}

// ForwardCommitmentBoundary is the first month in which placeholder demand is allowed.
func ForwardCommitmentBoundary(now time.Time, months int) shared.YearMonth {
	return shared.MonthOf(now.UTC()).AddMonths(months)
}

// CheckForwardCommitment rejects placeholder demand dated before the boundary month.
func CheckForwardCommitment(target shared.YearMonth, now time.Time, months int) error {
	boundary := ForwardCommitmentBoundary(now, months)
	if target.Index() < boundary.Index() {
		return shared.NewError(shared.CodePlaceholderBlocked4MFC,
			fmt.Sprintf("cannot use placeholder within %d-month forward commitment window; first allowed month is %s", months, boundary)).
			WithDetails(map[string]any{
				"year":           target.Year,
				"month":          target.Month,
				"boundary_year":  boundary.Year,
				"boundary_month": boundary.Month,
			})
	}
	return nil
}

// CheckActualsCap sums the other lines of the resource-month (excluding exclude) and fails
// when adding fte would exceed 100%. The error lists the ids of the lines already counted.
func CheckActualsCap(resourceID uuid.UUID, ym shared.YearMonth, existing []ActualLine, exclude uuid.UUID, fte int) error {
	sum := 0
	offending := make([]string, 0, len(existing))
	for _, line := range existing {
		if line.ID == exclude {
			continue
		}
		sum += line.ActualFTEPercent
		offending = append(offending, line.ID.String())
	}
	total := sum + fte
	if total <= MaxMonthlyActualPercent {
		return nil
	}
	return shared.NewError(shared.CodeActualsOver100,
		fmt.Sprintf("total actuals for %s would be %d%%, exceeding 100%%", ym, total)).
		WithDetails(map[string]any{
			"total_percent":      total,
			"resource_id":        resourceID.String(),
			"year":               ym.Year,
			"month":              ym.Month,
			"offending_line_ids": offending,
		})
}

// OOPCost converts hours at a currency-unit hourly rate into cents, rounding half away from zero.
func OOPCost(hours int, hourlyRate decimal.Decimal) (rateCents, totalCents int64, err error) {
	if hours <= 0 {
		return 0, 0, shared.Validation("hours must be positive")
	}
	if hourlyRate.IsNegative() {
		return 0, 0, shared.Validation("hourly rate cannot be negative")
	}
	hundred := decimal.NewFromInt(100)
	rate := hourlyRate.Mul(hundred).Round(0)
	total := hourlyRate.Mul(decimal.NewFromInt(int64(hours))).Mul(hundred).Round(0)
	return rate.IntPart(), total.IntPart(), nil
}
