package periods

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/resource-planning/internal/shared"
)

// Status enumerates period lifecycle stages.
type Status string

const (
	StatusOpen   Status = "open"
	StatusLocked Status = "locked"
)

// Period is a tenant's single calendar month planning window.
type Period struct {
	ID         uuid.UUID
	TenantID   string
	Year       int
	Month      int
	Status     Status
	LockedAt   *time.Time
	LockedBy   *uuid.UUID
	LockReason string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// YearMonth returns the month the period covers.
func (p Period) YearMonth() shared.YearMonth {
	return shared.YearMonth{Year: p.Year, Month: p.Month}
}

// ErrInvalidTransition indicates a status change not allowed by the lifecycle.
var ErrInvalidTransition = errors.New("periods: transition invalid")

// ValidateTransition allows open->locked and locked->open only.
func ValidateTransition(current, target Status) error {
	switch current {
	case StatusOpen:
		if target == StatusLocked {
			return nil
		}
		return shared.Validation("period is already open")
	case StatusLocked:
		if target == StatusOpen {
			return nil
		}
		return shared.Validation("period is already locked")
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, current)
	}
}

// CheckOpen is the write gate for a line dated ym. A nil period means the month has
// not been opened yet.
func CheckOpen(p *Period, ym shared.YearMonth) error {
	if p == nil {
		return shared.NotFound(fmt.Sprintf("period %s", ym))
	}
	if p.Status == StatusLocked {
		return shared.PeriodLocked(ym)
	}
	return nil
}

// UnlockInput carries the mandatory justification for reopening a period.
type UnlockInput struct {
	PeriodID uuid.UUID
	Reason   string
}

// Validate ensures a reason was supplied.
func (in UnlockInput) Validate() error {
	if strings.TrimSpace(in.Reason) == "" {
		return shared.Validation("reason is required to unlock a period")
	}
	return nil
}
