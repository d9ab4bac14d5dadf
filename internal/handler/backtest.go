package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/stratforge/api/internal/model"
	"github.com/stratforge/api/internal/registry"
	"github.com/stratforge/api/internal/service"
	"github.com/stratforge/api/pkg/response"
)

type BacktestHandler struct {
	service   *service.BacktestService
	validator *validator.Validate
}

func NewBacktestHandler(svc *service.BacktestService, v *validator.Validate) *BacktestHandler {
	return &BacktestHandler{
		service:   svc,
		validator: v,
	}
}

// Run handles POST /api/backtesting/run
// @Summary      Run a single backtest
// @Description  Run one configuration synchronously and return its results with performance ratios
// @Tags         Backtesting
// @Accept       json
// @Produce      json
// @Param        request body model.BacktestRequest true "Backtest request"
// @Success      200 {object} model.BacktestRunResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/backtesting/run [post]
func (h *BacktestHandler) Run(c *fiber.Ctx) error {
	var req model.BacktestRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.RunSingle(c.Context(), &req)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// SubmitBatch handles POST /api/backtesting/batch
// @Summary      Submit a batch of backtests
// @Description  Evaluate many configurations concurrently under a parallelism cap
// @Tags         Backtesting
// @Accept       json
// @Produce      json
// @Param        request body model.BatchBacktestRequest true "Batch submission"
// @Success      202 {object} model.BatchStartResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/backtesting/batch [post]
func (h *BacktestHandler) SubmitBatch(c *fiber.Ctx) error {
	var req model.BatchBacktestRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.SubmitBatch(c.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrEmptyBatch) || errors.Is(err, service.ErrBatchTooLarge) {
			return response.ValidationError(c, err.Error(), nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/backtesting/batch/:jobId/status
// @Summary      Get batch job status
// @Description  Get counters and progress of one batch job
// @Tags         Backtesting
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.BatchStatusResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/backtesting/batch/{jobId}/status [get]
func (h *BacktestHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetStatus(jobID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Results handles GET /api/backtesting/batch/:jobId/results
// @Summary      Get batch job results
// @Description  Get the reduced per-item projections of a batch job, keyed by config index
// @Tags         Backtesting
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.BatchResultsResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/backtesting/batch/{jobId}/results [get]
func (h *BacktestHandler) Results(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetResults(jobID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// List handles GET /api/backtesting/batch
// @Summary      List batch jobs
// @Description  List summaries of all known batch jobs, newest first
// @Tags         Backtesting
// @Produce      json
// @Success      200 {array} model.BatchStatusResponse
// @Failure      401 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/backtesting/batch [get]
func (h *BacktestHandler) List(c *fiber.Ctx) error {
	return response.OK(c, h.service.ListJobs())
}

// Delete handles DELETE /api/backtesting/batch/:jobId
// @Summary      Delete a batch job
// @Description  Remove a batch job record; in-flight work is discarded
// @Tags         Backtesting
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      204 {string} string "No Content"
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/backtesting/batch/{jobId} [delete]
func (h *BacktestHandler) Delete(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	if err := h.service.DeleteJob(jobID); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.NoContent(c)
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
