package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/resource-planning/jobs"
)

type fakeQueue struct {
	tasks  []*asynq.Task
	closed bool
}

func (f *fakeQueue) Enqueue(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (f *fakeQueue) Close() error {
	f.closed = true
	return nil
}

type fakeInspector struct{}

func (fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return &asynq.QueueInfo{Queue: queue, Pending: 3, Retry: 1}, nil
}

func (fakeInspector) ListScheduledTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return nil, nil
}

func (fakeInspector) Close() error { return nil }

func runCLI(t *testing.T, q *fakeQueue, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(func() (*JobsCLI, error) {
		return &JobsCLI{client: q, inspector: fakeInspector{}}, nil
	})
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(new(bytes.Buffer))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNotifyRunEnqueuesPayload(t *testing.T) {
	q := &fakeQueue{}
	out, err := runCLI(t, q, "notify", "run", "--tenant", "t1", "--phase", "Finance", "--period", "2026-04")
	require.NoError(t, err)
	require.Contains(t, out, "enqueued notify:run id=task-1")
	require.True(t, q.closed)

	require.Len(t, q.tasks, 1)
	var payload jobs.NotifyRunPayload
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload(), &payload))
	require.Equal(t, jobs.NotifyRunPayload{TenantID: "t1", Phase: "Finance", Year: 2026, Month: 4}, payload)
}

func TestNotifyRejectsBadInput(t *testing.T) {
	q := &fakeQueue{}
	_, err := runCLI(t, q, "notify", "run", "--tenant", "t1", "--phase", "Finance", "--period", "April")
	require.ErrorContains(t, err, "invalid period")

	_, err = runCLI(t, q, "notify", "deliver", "--tenant", "t1", "--run-id", "nope")
	require.ErrorContains(t, err, "invalid run id")

	_, err = runCLI(t, q, "notify", "weekly")
	require.ErrorContains(t, err, "unsupported task")
	require.Empty(t, q.tasks)
}

func TestNotifyDailyAndDeliver(t *testing.T) {
	q := &fakeQueue{}
	_, err := runCLI(t, q, "notify", "daily")
	require.NoError(t, err)
	runID := uuid.New()
	_, err = runCLI(t, q, "notify", "deliver", "--tenant", "t1", "--run-id", runID.String())
	require.NoError(t, err)

	require.Len(t, q.tasks, 2)
	require.Equal(t, jobs.TaskNotifyDaily, q.tasks[0].Type())
	require.Equal(t, jobs.TaskNotifyDeliver, q.tasks[1].Type())
}

func TestQueueStats(t *testing.T) {
	out, err := runCLI(t, &fakeQueue{}, "queue", "stats")
	require.NoError(t, err)
	require.JSONEq(t, `{"queue":"default","pending":3,"active":0,"scheduled":0,"retry":1}`, out)
}
