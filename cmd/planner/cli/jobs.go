package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/resource-planning/internal/shared"
	"github.com/odyssey-erp/resource-planning/jobs"
)

type taskEnqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type queueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	Close() error
}

// JobsCLI wraps manual management helpers for the notify jobs.
type JobsCLI struct {
	client    taskEnqueuer
	inspector queueInspector
}

// NewJobsCLI initialises the CLI helpers using the provided redis settings.
func NewJobsCLI(redisOpts asynq.RedisClientOpt) (*JobsCLI, error) {
	client, err := jobs.NewClient(redisOpts)
	if err != nil {
		return nil, err
	}
	return &JobsCLI{client: client, inspector: asynq.NewInspector(redisOpts)}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// NotifyOptions selects the notify task to enqueue.
type NotifyOptions struct {
	// Task is daily, run or deliver.
	Task     string
	TenantID string
	Phase    string
	Period   string
	RunID    string
}

func (o NotifyOptions) task() (*asynq.Task, error) {
	switch o.Task {
	case "daily", jobs.TaskNotifyDaily:
		return jobs.NewNotifyDailyTask(), nil
	case "run", jobs.TaskNotifyRun:
		at, err := time.Parse("2006-01", strings.TrimSpace(o.Period))
		if err != nil {
			return nil, fmt.Errorf("invalid period %q (expected YYYY-MM)", o.Period)
		}
		ym := shared.MonthOf(at)
		return jobs.NewNotifyRunTask(jobs.NotifyRunPayload{TenantID: o.TenantID, Phase: o.Phase, Year: ym.Year, Month: ym.Month})
	case "deliver", jobs.TaskNotifyDeliver:
		runID, err := uuid.Parse(strings.TrimSpace(o.RunID))
		if err != nil {
			return nil, fmt.Errorf("invalid run id %q", o.RunID)
		}
		return jobs.NewNotifyDeliverTask(o.TenantID, runID)
	default:
		return nil, fmt.Errorf("unsupported task %q", o.Task)
	}
}

// Notify enqueues a notify task on the default queue.
func (c *JobsCLI) Notify(ctx context.Context, opts NotifyOptions) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, err := opts.task()
	if err != nil {
		return nil, err
	}
	return c.client.Enqueue(ctx, task, asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(3))
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue() (jobs.QueueStats, error) {
	if c == nil || c.inspector == nil {
		return jobs.QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	return jobs.ReadQueueStats(c.inspector)
}

// ListScheduled returns scheduled task infos for observability.
func (c *JobsCLI) ListScheduled(size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}
