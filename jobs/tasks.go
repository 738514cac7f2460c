package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/resource-planning/internal/notifications"
	"github.com/odyssey-erp/resource-planning/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskNotifyDaily scans every tenant for reminder phases due today.
	TaskNotifyDaily = "notify:daily"
	// TaskNotifyRun runs a single phase for one tenant and month.
	TaskNotifyRun = "notify:run"
	// TaskNotifyDeliver sends the pending messages of a queued run.
	TaskNotifyDeliver = "notify:deliver"
)

// NotifyRunPayload selects the phase run by TaskNotifyRun.
type NotifyRunPayload struct {
	TenantID string `json:"tenant_id"`
	Phase    string `json:"phase"`
	Year     int    `json:"year"`
	Month    int    `json:"month"`
}

func (p NotifyRunPayload) validate() (notifications.Phase, shared.YearMonth, error) {
	if p.TenantID == "" {
		return "", shared.YearMonth{}, shared.Validation("tenant_id is required")
	}
	phase, err := notifications.ParsePhase(p.Phase)
	if err != nil {
		return "", shared.YearMonth{}, err
	}
	ym := shared.YearMonth{Year: p.Year, Month: p.Month}
	return phase, ym, ym.Validate()
}

// NotifyDeliverPayload identifies a queued run.
type NotifyDeliverPayload struct {
	TenantID string    `json:"tenant_id"`
	RunID    uuid.UUID `json:"run_id"`
}

// NewNotifyDailyTask constructs the cron task that runs due phases.
func NewNotifyDailyTask() *asynq.Task {
	return asynq.NewTask(TaskNotifyDaily, nil, asynq.Queue(QueueDefault))
}

// NewNotifyRunTask constructs a task for one phase run.
func NewNotifyRunTask(payload NotifyRunPayload) (*asynq.Task, error) {
	if _, _, err := payload.validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyRun, data, asynq.Queue(QueueDefault)), nil
}

// NewNotifyDeliverTask constructs a delivery task for a queued run.
func NewNotifyDeliverTask(tenantID string, runID uuid.UUID) (*asynq.Task, error) {
	if tenantID == "" || runID == uuid.Nil {
		return nil, fmt.Errorf("notify deliver: tenant and run id are required")
	}
	data, err := json.Marshal(NotifyDeliverPayload{TenantID: tenantID, RunID: runID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyDeliver, data, asynq.Queue(QueueDefault)), nil
}
