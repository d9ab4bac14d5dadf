package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/stratforge/api/internal/executor"
)

const (
	// TaskTypeBatch is the asynq task type for batch execution.
	TaskTypeBatch = "backtest:batch"
)

// Dispatcher schedules the executor for a freshly created job.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
}

// AsynqDispatcher enqueues durable batch tasks, processed by the
// embedded worker server.
type AsynqDispatcher struct {
	client *asynq.Client
}

// NewAsynqDispatcher creates a queue-backed dispatcher.
func NewAsynqDispatcher(client *asynq.Client) *AsynqDispatcher {
	return &AsynqDispatcher{client: client}
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, jobID string) error {
	task, err := NewBatchTask(jobID)
	if err != nil {
		return err
	}

	// No retries: items report their own failures, and re-running a
	// batch would double-count them.
	_, err = d.client.EnqueueContext(ctx, task,
		asynq.Queue("backtest"),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// GoDispatcher runs the executor on a fresh goroutine. Used when Redis
// is unavailable, and by tests.
type GoDispatcher struct {
	executor *executor.Executor
}

// NewGoDispatcher creates an in-process dispatcher.
func NewGoDispatcher(exec *executor.Executor) *GoDispatcher {
	return &GoDispatcher{executor: exec}
}

func (d *GoDispatcher) Dispatch(_ context.Context, jobID string) error {
	// Detached from the request context: the batch outlives the
	// submission call.
	go func() {
		if err := d.executor.Run(context.Background(), jobID); err != nil {
			logrus.WithField("jobId", jobID).WithError(err).Error("Batch execution failed")
		}
	}()
	return nil
}

// NewBatchTask builds the asynq task carrying a job id.
func NewBatchTask(jobID string) (*asynq.Task, error) {
	payload, err := json.Marshal(map[string]interface{}{"jobId": jobID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}
	return asynq.NewTask(TaskTypeBatch, payload), nil
}
