package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/stratforge/api/internal/executor"
	"github.com/stratforge/api/internal/metrics"
	"github.com/stratforge/api/internal/model"
	"github.com/stratforge/api/internal/registry"
)

const (
	// DefaultMaxConcurrent is the parallelism cap applied when the
	// submission does not override it.
	DefaultMaxConcurrent = 5

	// MaxBatchSize bounds how many configurations one submission may
	// carry.
	MaxBatchSize = 1000
)

var (
	// ErrEmptyBatch rejects submissions without configurations.
	ErrEmptyBatch = errors.New("configs must not be empty")

	// ErrBatchTooLarge rejects submissions over the batch size limit.
	ErrBatchTooLarge = errors.New("too many configs in one batch")
)

// BacktestService manages batch backtesting jobs: it validates
// submissions, owns the job registry handle, schedules execution and
// answers all queries.
type BacktestService struct {
	registry      *registry.Registry
	evaluator     executor.Evaluator
	dispatcher    Dispatcher
	maxConcurrent int
	maxBatchSize  int
}

// NewBacktestService creates a new backtest service. Non-positive
// limits fall back to the package defaults.
func NewBacktestService(reg *registry.Registry, evaluator executor.Evaluator, dispatcher Dispatcher, maxConcurrent, maxBatchSize int) *BacktestService {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if maxBatchSize <= 0 {
		maxBatchSize = MaxBatchSize
	}
	return &BacktestService{
		registry:      reg,
		evaluator:     evaluator,
		dispatcher:    dispatcher,
		maxConcurrent: maxConcurrent,
		maxBatchSize:  maxBatchSize,
	}
}

// SubmitBatch creates a pending job, schedules the executor and returns
// immediately. Validation failures never create a job.
func (s *BacktestService) SubmitBatch(ctx context.Context, req *model.BatchBacktestRequest) (*model.BatchStartResponse, error) {
	if len(req.Configs) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(req.Configs) > s.maxBatchSize {
		return nil, fmt.Errorf("%w: got %d, limit %d", ErrBatchTooLarge, len(req.Configs), s.maxBatchSize)
	}

	maxConcurrent := req.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = s.maxConcurrent
	}

	jobID := s.registry.Create(req.Configs, req.Params(), maxConcurrent)

	if err := s.dispatcher.Dispatch(ctx, jobID); err != nil {
		// The job never started; keep the registry consistent.
		_ = s.registry.Delete(jobID)
		return nil, fmt.Errorf("failed to schedule batch: %w", err)
	}

	return &model.BatchStartResponse{
		JobID:         jobID,
		Status:        "started",
		TotalConfigs:  len(req.Configs),
		MaxConcurrent: maxConcurrent,
	}, nil
}

// GetStatus returns the summary of one job.
func (s *BacktestService) GetStatus(jobID string) (model.BatchStatusResponse, error) {
	return s.registry.Status(jobID)
}

// GetResults returns the reduced per-item projections of one job. Raw
// per-trade payloads stay out of the response to bound its size.
func (s *BacktestService) GetResults(jobID string) (*model.BatchResultsResponse, error) {
	status, results, errRecords, err := s.registry.Records(jobID)
	if err != nil {
		return nil, err
	}

	resp := &model.BatchResultsResponse{
		JobID:   jobID,
		Status:  status,
		Results: make([]model.ResultSummary, 0, len(results)),
		Errors:  make([]model.ErrorSummary, 0, len(errRecords)),
	}

	for _, r := range results {
		summary := model.ResultSummary{
			ConfigIndex:  r.ConfigIndex,
			SharpeRatio:  r.Ratios.SharpeRatio,
			SortinoRatio: r.Ratios.SortinoRatio,
			CalmarRatio:  r.Ratios.CalmarRatio,
			Timestamp:    r.Timestamp,
		}
		if r.Results != nil {
			summary.NetPnl = r.Results.NetPnl
			summary.NetPnlPct = r.Results.NetPnlPct
			summary.TotalPositions = r.Results.TotalPositions
			summary.Accuracy = r.Results.Accuracy
			if r.Results.MaxDrawdownPct != nil {
				summary.MaxDrawdownPct = *r.Results.MaxDrawdownPct
			}
		}
		resp.Results = append(resp.Results, summary)
	}

	for _, r := range errRecords {
		resp.Errors = append(resp.Errors, model.ErrorSummary{
			ConfigIndex: r.ConfigIndex,
			Error:       r.Error,
			Timestamp:   r.Timestamp,
		})
	}

	return resp, nil
}

// ListJobs returns summaries of all known jobs, newest first.
func (s *BacktestService) ListJobs() []model.BatchStatusResponse {
	return s.registry.List()
}

// DeleteJob removes a job record. In-flight work is not interrupted;
// its outcomes are discarded once they arrive.
func (s *BacktestService) DeleteJob(jobID string) error {
	return s.registry.Delete(jobID)
}

// RunSingle executes one configuration synchronously and derives its
// performance ratios.
func (s *BacktestService) RunSingle(ctx context.Context, req *model.BacktestRequest) (*model.BacktestRunResponse, error) {
	cleaned, err := executor.CleanConfig(req.Config)
	if err != nil {
		return nil, err
	}

	res, err := s.evaluator.Evaluate(ctx, cleaned, model.BacktestParams{
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Resolution: req.Resolution,
		TradeCost:  req.TradeCost,
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errors.New("invalid backtesting results")
	}

	return &model.BacktestRunResponse{
		Results: res,
		Ratios:  metrics.CalculateRatios(res),
	}, nil
}
