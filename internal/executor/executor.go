// Package executor runs the configurations of a batch job against the
// backtest evaluator with a bounded worker pool. Per-item failures are
// isolated: a failing configuration becomes an error record and never
// affects its siblings.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stratforge/api/internal/metrics"
	"github.com/stratforge/api/internal/model"
	"github.com/stratforge/api/internal/registry"
)

// Evaluator executes one configuration over the shared time window and
// resolution. Implementations must eventually return; the HTTP client
// enforces a timeout.
type Evaluator interface {
	Evaluate(ctx context.Context, config map[string]interface{}, params model.BacktestParams) (*model.EvaluatorResult, error)
}

// ProgressSink receives job summaries after every committed outcome and
// once at the end. The websocket hub satisfies it.
type ProgressSink interface {
	JobProgress(summary model.BatchStatusResponse)
	JobFinished(summary model.BatchStatusResponse)
}

// Notifier is told about finished batches. The telegram client
// satisfies it.
type Notifier interface {
	NotifyBatchFinished(ctx context.Context, summary model.BatchStatusResponse)
}

// Executor drives batch jobs to their terminal state.
type Executor struct {
	registry  *registry.Registry
	evaluator Evaluator
	progress  ProgressSink // optional
	notifier  Notifier     // optional
}

// New creates an Executor. progress and notifier may be nil.
func New(reg *registry.Registry, evaluator Evaluator, progress ProgressSink, notifier Notifier) *Executor {
	return &Executor{
		registry:  reg,
		evaluator: evaluator,
		progress:  progress,
		notifier:  notifier,
	}
}

// outcome is the single result a worker produces per index. Exactly one
// of result/err is set.
type outcome struct {
	index  int
	config map[string]interface{}
	result *model.EvaluatorResult
	ratios model.PerformanceRatios
	err    error
}

// Run executes every configuration of the job exactly once, with at
// most the job's maxConcurrent in flight. A fixed pool of workers pulls
// indices from a queue; this goroutine is the single collector that
// commits outcomes to the registry, so job mutation never has
// concurrent writers. Outcomes for jobs deleted mid-flight are
// discarded.
func (e *Executor) Run(ctx context.Context, jobID string) error {
	configs, params, maxConcurrent, err := e.registry.Inputs(jobID)
	if err != nil {
		return fmt.Errorf("batch %s vanished before start: %w", jobID, err)
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if maxConcurrent > len(configs) {
		maxConcurrent = len(configs)
	}

	if err := e.registry.MarkRunning(jobID); err != nil {
		return fmt.Errorf("batch %s vanished before start: %w", jobID, err)
	}

	log := logrus.WithFields(logrus.Fields{
		"jobId":         jobID,
		"totalConfigs":  len(configs),
		"maxConcurrent": maxConcurrent,
	})
	log.Info("Starting batch backtesting")

	indices := make(chan int)
	outcomes := make(chan outcome)

	var wg sync.WaitGroup
	for w := 0; w < maxConcurrent; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				outcomes <- e.runOne(ctx, i, configs[i], params)
			}
		}()
	}

	go func() {
		for i := range configs {
			indices <- i
		}
		close(indices)
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	deleted := false
	for out := range outcomes {
		var summary model.BatchStatusResponse
		var commitErr error
		if out.err == nil {
			summary, commitErr = e.registry.RecordSuccess(jobID, model.ConfigResult{
				ConfigIndex: out.index,
				Config:      out.config,
				Results:     out.result,
				Ratios:      out.ratios,
				Timestamp:   time.Now(),
			})
		} else {
			log.WithField("configIndex", out.index).WithError(out.err).Error("Backtesting config failed")
			summary, commitErr = e.registry.RecordFailure(jobID, model.ErrorRecord{
				ConfigIndex: out.index,
				Config:      out.config,
				Error:       out.err.Error(),
				Timestamp:   time.Now(),
			})
		}
		if commitErr != nil {
			deleted = true
			continue
		}
		if e.progress != nil {
			e.progress.JobProgress(summary)
		}
	}

	if deleted {
		log.Warn("Batch job deleted mid-flight, remaining outcomes discarded")
	}

	final, err := e.registry.Finalize(jobID)
	if err != nil {
		return nil
	}

	log.WithFields(logrus.Fields{
		"completed": final.CompletedConfigs,
		"failed":    final.FailedConfigs,
		"status":    final.Status,
	}).Info("Batch backtesting finished")

	if e.progress != nil {
		e.progress.JobFinished(final)
	}
	if e.notifier != nil {
		e.notifier.NotifyBatchFinished(ctx, final)
	}
	return nil
}

// runOne cleans and evaluates a single configuration. Panics from the
// evaluator are contained and reported as that item's failure.
func (e *Executor) runOne(ctx context.Context, index int, config map[string]interface{}, params model.BacktestParams) (out outcome) {
	out = outcome{index: index, config: config}

	defer func() {
		if r := recover(); r != nil {
			out.result = nil
			out.err = fmt.Errorf("evaluator panic: %v", r)
		}
	}()

	cleaned, err := CleanConfig(config)
	if err != nil {
		out.err = err
		return out
	}

	res, err := e.evaluator.Evaluate(ctx, cleaned, params)
	if err != nil {
		out.err = err
		return out
	}
	if res == nil {
		out.err = errors.New("invalid backtesting results")
		return out
	}

	out.result = res
	out.ratios = metrics.CalculateRatios(res)
	return out
}
