package approvals

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/resource-planning/internal/shared"
)

var decidedAt = time.Date(2026, 4, 20, 10, 0, 0, 0, time.UTC)

func TestNewInstanceSkipsDirectorWhenSameAsRO(t *testing.T) {
	same := uuid.New()
	inst := NewInstance("t1", uuid.New(), uuid.New(), &same, &same, decidedAt)
	require.Equal(t, StepPending, inst.Steps[0].Status)
	require.Equal(t, StepSkipped, inst.Steps[1].Status)

	ro, director := uuid.New(), uuid.New()
	inst = NewInstance("t1", uuid.New(), uuid.New(), &ro, &director, decidedAt)
	require.Equal(t, StepPending, inst.Steps[1].Status)

	inst = NewInstance("t1", uuid.New(), uuid.New(), nil, nil, decidedAt)
	require.Equal(t, StepPending, inst.Steps[1].Status, "unresolved approvers never collapse")
}

func TestCurrentStepIsLowestPending(t *testing.T) {
	ro, director := uuid.New(), uuid.New()
	inst := NewInstance("t1", uuid.New(), uuid.New(), &ro, &director, decidedAt)
	require.Equal(t, StepRO, inst.CurrentStep().Name)

	_, err := inst.Approve(inst.Steps[0].ID, shared.Actor{UserID: ro, Role: shared.RoleRO}, "", decidedAt)
	require.NoError(t, err)
	require.Equal(t, StepDirector, inst.CurrentStep().Name)
	require.Equal(t, InstancePending, inst.Status)

	_, err = inst.Approve(inst.Steps[1].ID, shared.Actor{UserID: director, Role: shared.RoleDirector}, "ok", decidedAt)
	require.NoError(t, err)
	require.Nil(t, inst.CurrentStep())
	require.Equal(t, InstanceApproved, inst.Status)
}

func TestStepsMustBeActionedInOrder(t *testing.T) {
	ro, director := uuid.New(), uuid.New()
	inst := NewInstance("t1", uuid.New(), uuid.New(), &ro, &director, decidedAt)

	_, err := inst.Approve(inst.Steps[1].ID, shared.Actor{UserID: director, Role: shared.RoleDirector}, "", decidedAt)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Equal(t, StepPending, inst.Steps[1].Status)
}

func TestGuardOrder(t *testing.T) {
	ro, director := uuid.New(), uuid.New()
	inst := NewInstance("t1", uuid.New(), uuid.New(), &ro, &director, decidedAt)

	// An unauthorized actor on an out-of-order step is rejected for authority first.
	_, err := inst.Approve(inst.Steps[1].ID, shared.Actor{UserID: uuid.New(), Role: shared.RoleDirector}, "", decidedAt)
	require.ErrorIs(t, err, shared.ErrUnauthorizedRole)

	_, err = inst.Approve(uuid.New(), shared.Actor{UserID: ro, Role: shared.RoleRO}, "", decidedAt)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCanActionFallsBackToRole(t *testing.T) {
	step := Step{Name: StepDirector, Status: StepPending}
	require.True(t, CanAction(step, shared.Actor{UserID: uuid.New(), Role: shared.RoleDirector}))
	require.False(t, CanAction(step, shared.Actor{UserID: uuid.New(), Role: shared.RoleRO}))

	named := uuid.New()
	step.ApproverID = &named
	require.False(t, CanAction(step, shared.Actor{UserID: uuid.New(), Role: shared.RoleDirector}))
	require.True(t, CanAction(step, shared.Actor{UserID: named, Role: shared.RoleDirector}))
}

func TestRejectTerminatesAndSkipsRemaining(t *testing.T) {
	ro, director := uuid.New(), uuid.New()
	inst := NewInstance("t1", uuid.New(), uuid.New(), &ro, &director, decidedAt)

	decided, err := inst.Reject(inst.Steps[0].ID, shared.Actor{UserID: ro, Role: shared.RoleRO}, "wrong project", decidedAt)
	require.NoError(t, err)
	require.Equal(t, StepRejected, decided.Status)
	require.Equal(t, "wrong project", decided.Comment)
	require.Equal(t, InstanceRejected, inst.Status)
	require.Equal(t, StepSkipped, inst.Steps[1].Status)
	require.Nil(t, inst.CurrentStep())

	_, err = inst.Approve(inst.Steps[1].ID, shared.Actor{UserID: director, Role: shared.RoleDirector}, "", decidedAt)
	require.ErrorIs(t, err, shared.ErrValidation)
}
