package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/stratforge/api/internal/executor"
)

// BatchWorker processes batch backtesting tasks from the queue.
type BatchWorker struct {
	executor *executor.Executor
}

// NewBatchWorker creates a new batch worker.
func NewBatchWorker(exec *executor.Executor) *BatchWorker {
	return &BatchWorker{executor: exec}
}

// ProcessTask handles one queued batch: it unwraps the job id and hands
// it to the bounded executor.
func (w *BatchWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload struct {
		JobID string `json:"jobId"`
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	logrus.WithField("jobId", payload.JobID).Info("Processing batch backtesting task")
	return w.executor.Run(ctx, payload.JobID)
}
