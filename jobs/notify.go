package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/resource-planning/internal/jobs"
	"github.com/odyssey-erp/resource-planning/internal/notifications"
	"github.com/odyssey-erp/resource-planning/internal/shared"
)

// NotificationService describes the scheduler operations the worker drives.
type NotificationService interface {
	RunDue(ctx context.Context) ([]notifications.RunResult, error)
	Run(ctx context.Context, actor shared.Actor, phase notifications.Phase, ym shared.YearMonth) (notifications.RunResult, error)
	Deliver(ctx context.Context, tenantID string, runID uuid.UUID) (int, error)
}

// NotifyJob handles the notify:* task family.
type NotifyJob struct {
	Service NotificationService
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewNotifyJob constructs the job handlers.
func NewNotifyJob(service NotificationService, logger *slog.Logger, metrics *jobmetrics.Metrics) *NotifyJob {
	return &NotifyJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// HandleDaily runs every phase due today across tenants.
func (j *NotifyJob) HandleDaily(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Service == nil {
		return errors.New("notify daily: dependencies not configured")
	}
	run := j.Metrics.Start(TaskNotifyDaily)
	defer func() { err = run.Finish(err) }()

	start := j.now()
	results, err := j.Service.RunDue(ctx)
	ran, skipped := 0, 0
	for _, r := range results {
		if r.Status == notifications.OutcomeSuccess {
			ran++
			continue
		}
		skipped++
	}
	run.Add(notifications.OutcomeSuccess, ran)
	run.Add(notifications.OutcomeAlreadyRun, skipped)
	if err != nil {
		j.log(TaskNotifyDaily).Error("run due notifications", slog.Int("ran", ran), slog.Any("error", err))
		return err
	}
	j.log(TaskNotifyDaily).Info("due notifications processed",
		slog.Int("ran", ran), slog.Int("already_run", skipped), slog.Duration("duration", time.Since(start)))
	return nil
}

// HandleRun runs one phase for a tenant as the system actor.
func (j *NotifyJob) HandleRun(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.Service == nil {
		return errors.New("notify run: dependencies not configured")
	}
	var payload NotifyRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	phase, ym, err := payload.validate()
	if err != nil {
		return fmt.Errorf("notify run: %v: %w", err, asynq.SkipRetry)
	}
	run := j.Metrics.Start(TaskNotifyRun)
	defer func() { err = run.Finish(err) }()

	res, err := j.Service.Run(ctx, shared.SystemActor(payload.TenantID), phase, ym)
	if err != nil {
		j.log(TaskNotifyRun).Error("run notifications",
			slog.String("tenant_id", payload.TenantID), slog.String("phase", string(phase)), slog.Any("error", err))
		return err
	}
	j.log(TaskNotifyRun).Info("notification phase processed",
		slog.String("tenant_id", payload.TenantID),
		slog.String("phase", string(phase)),
		slog.String("period", ym.String()),
		slog.String("status", res.Status),
		slog.String("run_id", res.RunID.String()))
	return nil
}

// HandleDeliver sends the pending messages of a run. Failed messages are
// recorded on their log row and are not retried by the queue.
func (j *NotifyJob) HandleDeliver(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.Service == nil {
		return errors.New("notify deliver: dependencies not configured")
	}
	var payload NotifyDeliverPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.RunID == uuid.Nil {
		return asynq.SkipRetry
	}
	run := j.Metrics.Start(TaskNotifyDeliver)
	defer func() { err = run.Finish(err) }()

	sent, err := j.Service.Deliver(ctx, payload.TenantID, payload.RunID)
	run.Add("sent", sent)
	if err != nil {
		j.log(TaskNotifyDeliver).Error("deliver notifications",
			slog.String("tenant_id", payload.TenantID), slog.String("run_id", payload.RunID.String()), slog.Any("error", err))
		return err
	}
	j.log(TaskNotifyDeliver).Info("notifications delivered",
		slog.String("tenant_id", payload.TenantID), slog.String("run_id", payload.RunID.String()), slog.Int("sent", sent))
	return nil
}

func (j *NotifyJob) log(task string) *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", task))
	}
	return slog.Default().With(slog.String("job", task))
}

func (j *NotifyJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *NotifyJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
