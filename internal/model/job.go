package model

import "time"

// Job status
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether the status is a final one.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// BatchJob is the lifecycle record of one batch submission. Counters and
// the results/errors lists are mutated concurrently by the executor, so
// all access goes through the registry, never through a shared pointer.
type BatchJob struct {
	ID                 string                   `json:"jobId"`
	Status             JobStatus                `json:"status"`
	TotalConfigs       int                      `json:"totalConfigs"`
	CompletedConfigs   int                      `json:"completedConfigs"`
	FailedConfigs      int                      `json:"failedConfigs"`
	ProgressPercentage float64                  `json:"progressPercentage"`
	Results            []ConfigResult           `json:"results"`
	Errors             []ErrorRecord            `json:"errors"`
	Configs            []map[string]interface{} `json:"-"`
	Params             BacktestParams           `json:"-"`
	MaxConcurrent      int                      `json:"maxConcurrent"`
	CreatedAt          time.Time                `json:"createdAt"`
	StartedAt          *time.Time               `json:"startedAt,omitempty"`
	CompletedAt        *time.Time               `json:"completedAt,omitempty"`
}

// ConfigResult records one successful configuration run. Immutable once
// appended to the job.
type ConfigResult struct {
	ConfigIndex int                    `json:"configIndex"`
	Config      map[string]interface{} `json:"config"`
	Results     *EvaluatorResult       `json:"results"`
	Ratios      PerformanceRatios      `json:"ratios"`
	Timestamp   time.Time              `json:"timestamp"`
}

// ErrorRecord records one failed configuration run. A given index yields
// exactly one of ConfigResult or ErrorRecord.
type ErrorRecord struct {
	ConfigIndex int                    `json:"configIndex"`
	Config      map[string]interface{} `json:"config"`
	Error       string                 `json:"error"`
	Timestamp   time.Time              `json:"timestamp"`
}
