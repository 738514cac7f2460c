// Package notifications schedules the monthly planning reminders and records every
// message sent for a phase run.
package notifications

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/resource-planning/internal/shared"
)

// Phase identifies one of the four monthly reminder rounds.
type Phase string

const (
	PhasePMRO       Phase = "PM_RO"
	PhaseFinance    Phase = "Finance"
	PhaseEmployee   Phase = "Employee"
	PhaseRODirector Phase = "RO_Director"
)

// Phases lists every phase in calendar order.
func Phases() []Phase {
	return []Phase{PhasePMRO, PhaseFinance, PhaseEmployee, PhaseRODirector}
}

// ParsePhase validates a raw phase name.
func ParsePhase(raw string) (Phase, error) {
	for _, p := range Phases() {
		if string(p) == raw {
			return p, nil
		}
	}
	return "", shared.Validation(fmt.Sprintf("unknown notification phase %q", raw))
}

type phaseRule struct {
	weekday time.Weekday
	nth     int
	roles   []shared.Role
}

var rules = map[Phase]phaseRule{
	PhasePMRO:       {weekday: time.Friday, nth: 1, roles: []shared.Role{shared.RolePM, shared.RoleRO}},
	PhaseFinance:    {weekday: time.Friday, nth: 3, roles: []shared.Role{shared.RoleFinance}},
	PhaseEmployee:   {weekday: time.Monday, nth: 4, roles: []shared.Role{shared.RoleEmployee}},
	PhaseRODirector: {weekday: time.Tuesday, nth: 4, roles: []shared.Role{shared.RoleRO, shared.RoleDirector}},
}

// Roles returns the roles that receive the phase's reminder.
func (p Phase) Roles() []shared.Role {
	return rules[p].roles
}

// BaseDate is the phase's nth-weekday date before holiday shifting.
func (p Phase) BaseDate(ym shared.YearMonth) time.Time {
	r := rules[p]
	return NthWeekdayOfMonth(ym.Year, time.Month(ym.Month), r.weekday, r.nth)
}

// Message renders the reminder subject and body for the phase.
func (p Phase) Message(ym shared.YearMonth, deadline time.Time) (subject, body string) {
	month := fmt.Sprintf("%02d/%d", ym.Month, ym.Year)
	due := deadline.Format(time.DateOnly)
	switch p {
	case PhasePMRO:
		return "Planning due " + due, fmt.Sprintf("Reminder: Please complete demand and supply planning for %s by %s.", month, due)
	case PhaseFinance:
		return "Consolidation due " + due, fmt.Sprintf("Reminder: Planning data for %s is ready for review. Please consolidate by %s.", month, due)
	case PhaseEmployee:
		return "Actuals due " + due, fmt.Sprintf("Reminder: Please enter your actuals for %s by %s.", month, due)
	case PhaseRODirector:
		return "Approvals due " + due, fmt.Sprintf("Reminder: Actuals for %s are awaiting your approval. Please review by %s.", month, due)
	}
	return "Reminder", "Notification reminder."
}

// Mode selects how a run delivers its messages.
type Mode string

const (
	// ModeStub records messages as sent without delivering them.
	ModeStub Mode = "stub"
	// ModeQueue records messages as pending and hands them to the delivery worker.
	ModeQueue Mode = "queue"
)

// Status tracks one message.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

// Run is the idempotency record of a (tenant, phase, month) batch.
type Run struct {
	RunID     uuid.UUID
	TenantID  string
	Phase     Phase
	Year      int
	Month     int
	Mode      Mode
	Deadline  time.Time
	CreatedAt time.Time
}

// Log is a single message addressed to one recipient.
type Log struct {
	ID             uuid.UUID  `json:"id"`
	TenantID       string     `json:"-"`
	RunID          uuid.UUID  `json:"run_id"`
	Phase          Phase      `json:"phase"`
	Year           int        `json:"year"`
	Month          int        `json:"month"`
	RecipientID    uuid.UUID  `json:"recipient_id"`
	RecipientEmail string     `json:"recipient_email"`
	Subject        string     `json:"subject"`
	Body           string     `json:"message"`
	Status         Status     `json:"status"`
	Error          string     `json:"error,omitempty"`
	SentAt         *time.Time `json:"sent_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

// LogFilter narrows log listings. Zero fields are ignored.
type LogFilter struct {
	Phase *Phase
	Year  *int
	Month *int
	RunID *uuid.UUID
}

// Recipient is a preview entry.
type Recipient struct {
	UserID      uuid.UUID   `json:"user_id"`
	Email       string      `json:"email"`
	DisplayName string      `json:"display_name"`
	Role        shared.Role `json:"role"`
}

// Preview shows what a run would send without writing anything.
type Preview struct {
	Phase           Phase       `json:"phase"`
	Year            int         `json:"year"`
	Month           int         `json:"month"`
	Deadline        string      `json:"deadline"`
	RecipientsCount int         `json:"recipients_count"`
	Recipients      []Recipient `json:"recipients"`
	Subject         string      `json:"subject"`
	MessageTemplate string      `json:"message_template"`
}

// Run outcomes.
const (
	OutcomeSuccess    = "success"
	OutcomeAlreadyRun = "already_run"
)

// RunResult reports a run or points at the earlier run for the same key.
type RunResult struct {
	Status             string    `json:"status"`
	RunID              uuid.UUID `json:"run_id"`
	Phase              Phase     `json:"phase"`
	Year               int       `json:"year"`
	Month              int       `json:"month"`
	Mode               Mode      `json:"mode,omitempty"`
	Deadline           string    `json:"deadline,omitempty"`
	NotificationsCount int       `json:"notifications_count"`
	Notifications      []Log     `json:"notifications"`
}
