// Package approvals runs the two-step RO then Director sign-off of signed actual lines.
package approvals

import (
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/resource-planning/internal/shared"
)

// SubjectActuals is the only subject type currently routed through approvals.
const SubjectActuals = "actuals"

// InstanceStatus enumerates approval instance states.
type InstanceStatus string

const (
	InstancePending  InstanceStatus = "pending"
	InstanceApproved InstanceStatus = "approved"
	InstanceRejected InstanceStatus = "rejected"
)

// StepStatus enumerates approval step states. Everything but pending is terminal.
type StepStatus string

const (
	StepPending  StepStatus = "pending"
	StepApproved StepStatus = "approved"
	StepRejected StepStatus = "rejected"
	StepSkipped  StepStatus = "skipped"
)

// StepName identifies which approver tier a step belongs to.
type StepName string

const (
	StepRO       StepName = "RO"
	StepDirector StepName = "Director"
)

// Role returns the tenant role that may act on an unassigned step.
func (n StepName) Role() (shared.Role, bool) {
	switch n {
	case StepRO:
		return shared.RoleRO, true
	case StepDirector:
		return shared.RoleDirector, true
	default:
		return "", false
	}
}

// Step is one ordered approval tier.
type Step struct {
	ID         uuid.UUID
	InstanceID uuid.UUID
	Order      int
	Name       StepName
	ApproverID *uuid.UUID
	Status     StepStatus
	ActionedAt *time.Time
	ActionedBy *uuid.UUID
	Comment    string
}

// Instance is the approval state machine for one subject.
type Instance struct {
	ID          uuid.UUID
	TenantID    string
	SubjectType string
	SubjectID   uuid.UUID
	Status      InstanceStatus
	CreatedBy   uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Steps       []Step
}

// Action is an append-only record of an approve or reject decision.
type Action struct {
	ID         uuid.UUID
	InstanceID uuid.UUID
	StepID     uuid.UUID
	ActorID    uuid.UUID
	Action     string
	Comment    string
	CreatedAt  time.Time
}

// Detail bundles an instance with its action history.
type Detail struct {
	Instance Instance
	Actions  []Action
}

// NewInstance builds a pending instance with the RO step first and the Director step
// second. When both approvers resolve to the same user the Director step starts skipped.
func NewInstance(tenantID string, subjectID uuid.UUID, createdBy uuid.UUID, ro, director *uuid.UUID, now time.Time) Instance {
	inst := Instance{
		ID:          uuid.New(),
		TenantID:    tenantID,
		SubjectType: SubjectActuals,
		SubjectID:   subjectID,
		Status:      InstancePending,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	directorStatus := StepPending
	if ro != nil && director != nil && *ro == *director {
		directorStatus = StepSkipped
	}
	inst.Steps = []Step{
		{ID: uuid.New(), InstanceID: inst.ID, Order: 1, Name: StepRO, ApproverID: ro, Status: StepPending},
		{ID: uuid.New(), InstanceID: inst.ID, Order: 2, Name: StepDirector, ApproverID: director, Status: directorStatus},
	}
	return inst
}

// CurrentStep returns the lowest-order pending step, or nil once every step is terminal.
func (i *Instance) CurrentStep() *Step {
	var current *Step
	for idx := range i.Steps {
		s := &i.Steps[idx]
		if s.Status != StepPending {
			continue
		}
		if current == nil || s.Order < current.Order {
			current = s
		}
	}
	return current
}

func (i *Instance) step(stepID uuid.UUID) *Step {
	for idx := range i.Steps {
		if i.Steps[idx].ID == stepID {
			return &i.Steps[idx]
		}
	}
	return nil
}

// CanAction reports whether actor may decide the step: either as its named approver, or,
// when no approver is assigned, by holding the step's role.
func CanAction(s Step, actor shared.Actor) bool {
	if s.ApproverID != nil {
		return *s.ApproverID == actor.UserID
	}
	role, ok := s.Name.Role()
	return ok && actor.Role == role
}

// checkActionable runs the ordered guards shared by approve and reject.
func (i *Instance) checkActionable(stepID uuid.UUID, actor shared.Actor) (*Step, error) {
	s := i.step(stepID)
	if s == nil {
		return nil, shared.NotFound("approval step")
	}
	if s.Status != StepPending {
		return nil, shared.Validation("step is not pending")
	}
	if !CanAction(*s, actor) {
		return nil, shared.Unauthorized("not authorized to action this step")
	}
	if current := i.CurrentStep(); current == nil || current.ID != s.ID {
		return nil, shared.Validation("previous steps must be completed first")
	}
	return s, nil
}

// Approve marks the step approved and completes the instance when no pending step remains.
func (i *Instance) Approve(stepID uuid.UUID, actor shared.Actor, comment string, now time.Time) (Step, error) {
	s, err := i.checkActionable(stepID, actor)
	if err != nil {
		return Step{}, err
	}
	decide(s, StepApproved, actor, comment, now)
	done := true
	for _, other := range i.Steps {
		if other.Status != StepApproved && other.Status != StepSkipped {
			done = false
			break
		}
	}
	if done {
		i.Status = InstanceApproved
	}
	i.UpdatedAt = now
	return *s, nil
}

// Reject marks the step rejected, terminates the instance and skips any step still pending.
func (i *Instance) Reject(stepID uuid.UUID, actor shared.Actor, comment string, now time.Time) (Step, error) {
	s, err := i.checkActionable(stepID, actor)
	if err != nil {
		return Step{}, err
	}
	decide(s, StepRejected, actor, comment, now)
	for idx := range i.Steps {
		if i.Steps[idx].Status == StepPending {
			i.Steps[idx].Status = StepSkipped
		}
	}
	i.Status = InstanceRejected
	i.UpdatedAt = now
	return *s, nil
}

func decide(s *Step, status StepStatus, actor shared.Actor, comment string, now time.Time) {
	at := now
	by := actor.UserID
	s.Status = status
	s.ActionedAt = &at
	s.ActionedBy = &by
	s.Comment = comment
}
