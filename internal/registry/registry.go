// Package registry owns the lifecycle records of batch backtesting
// jobs. It is the single writer surface for job state: executors and
// handlers never hold a shared job pointer, they go through the
// registry, which serializes every increment-and-append sequence under
// one lock.
package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stratforge/api/internal/model"
)

// ErrNotFound is returned for lookups, mutations and deletions of
// unknown job ids.
var ErrNotFound = errors.New("job not found")

// Registry is an in-memory map of job id to batch job record.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*model.BatchJob
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		jobs: make(map[string]*model.BatchJob),
	}
}

// Create registers a new pending job and returns its id.
func (r *Registry) Create(configs []map[string]interface{}, params model.BacktestParams, maxConcurrent int) string {
	job := &model.BatchJob{
		ID:            uuid.New().String(),
		Status:        model.JobStatusPending,
		TotalConfigs:  len(configs),
		Results:       []model.ConfigResult{},
		Errors:        []model.ErrorRecord{},
		Configs:       configs,
		Params:        params,
		MaxConcurrent: maxConcurrent,
		CreatedAt:     time.Now(),
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	return job.ID
}

// Inputs returns the submitted configurations and shared parameters of
// a job. The configuration maps are treated as read-only after
// submission.
func (r *Registry) Inputs(jobID string) ([]map[string]interface{}, model.BacktestParams, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, model.BacktestParams{}, 0, ErrNotFound
	}
	return job.Configs, job.Params, job.MaxConcurrent, nil
}

// MarkRunning transitions a pending job to running.
func (r *Registry) MarkRunning(jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if job.Status == model.JobStatusPending {
		job.Status = model.JobStatusRunning
		now := time.Now()
		job.StartedAt = &now
	}
	return nil
}

// RecordSuccess commits one successful configuration result and
// advances the progress counters. The returned summary reflects the
// state right after the commit. ErrNotFound means the job was deleted
// mid-flight and the outcome is discarded.
func (r *Registry) RecordSuccess(jobID string, res model.ConfigResult) (model.BatchStatusResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return model.BatchStatusResponse{}, ErrNotFound
	}

	job.Results = append(job.Results, res)
	job.CompletedConfigs++
	refreshProgress(job)
	return summarize(job), nil
}

// RecordFailure commits one failed configuration and advances the
// progress counters.
func (r *Registry) RecordFailure(jobID string, rec model.ErrorRecord) (model.BatchStatusResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return model.BatchStatusResponse{}, ErrNotFound
	}

	job.Errors = append(job.Errors, rec)
	job.FailedConfigs++
	refreshProgress(job)
	return summarize(job), nil
}

// Finalize derives the terminal status once every configuration has
// finished: failed only when nothing succeeded, completed otherwise —
// partial failure still counts as completed, the failed counter is the
// authoritative signal.
func (r *Registry) Finalize(jobID string) (model.BatchStatusResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return model.BatchStatusResponse{}, ErrNotFound
	}

	if job.CompletedConfigs == 0 {
		job.Status = model.JobStatusFailed
	} else {
		job.Status = model.JobStatusCompleted
	}
	now := time.Now()
	job.CompletedAt = &now
	return summarize(job), nil
}

// Status returns the summary of one job.
func (r *Registry) Status(jobID string) (model.BatchStatusResponse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return model.BatchStatusResponse{}, ErrNotFound
	}
	return summarize(job), nil
}

// Records returns copies of the accumulated results and errors of one
// job along with its current status.
func (r *Registry) Records(jobID string) (model.JobStatus, []model.ConfigResult, []model.ErrorRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return "", nil, nil, ErrNotFound
	}

	results := make([]model.ConfigResult, len(job.Results))
	copy(results, job.Results)
	errs := make([]model.ErrorRecord, len(job.Errors))
	copy(errs, job.Errors)
	return job.Status, results, errs, nil
}

// List returns summaries of all jobs, newest first.
func (r *Registry) List() []model.BatchStatusResponse {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.BatchStatusResponse, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, summarize(job))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Delete removes a job record. Deleting an unknown id fails, so a
// second delete of the same id reports ErrNotFound.
func (r *Registry) Delete(jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[jobID]; !ok {
		return ErrNotFound
	}
	delete(r.jobs, jobID)
	return nil
}

// CleanupCompleted removes terminal jobs older than maxAge and returns
// how many were dropped. Age policy only; running jobs are never
// touched.
func (r *Registry) CleanupCompleted(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, job := range r.jobs {
		if job.Status.IsTerminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}

// refreshProgress recomputes the percentage; callers hold the lock.
// The counters only ever grow, so the percentage is non-decreasing.
func refreshProgress(job *model.BatchJob) {
	if job.TotalConfigs == 0 {
		return
	}
	done := job.CompletedConfigs + job.FailedConfigs
	job.ProgressPercentage = float64(done) / float64(job.TotalConfigs) * 100.0
}

func summarize(job *model.BatchJob) model.BatchStatusResponse {
	return model.BatchStatusResponse{
		JobID:              job.ID,
		Status:             job.Status,
		TotalConfigs:       job.TotalConfigs,
		CompletedConfigs:   job.CompletedConfigs,
		FailedConfigs:      job.FailedConfigs,
		ProgressPercentage: job.ProgressPercentage,
		ResultsCount:       len(job.Results),
		ErrorsCount:        len(job.Errors),
		CreatedAt:          job.CreatedAt,
		CompletedAt:        job.CompletedAt,
	}
}
