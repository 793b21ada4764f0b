package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/tunevault/api/internal/middleware"
	"github.com/tunevault/api/internal/model"
	"github.com/tunevault/api/internal/service"
	"github.com/tunevault/api/pkg/response"
)

type DownloadHandler struct {
	service   *service.JobService
	validator *validator.Validate
}

func NewDownloadHandler(svc *service.JobService, v *validator.Validate) *DownloadHandler {
	return &DownloadHandler{
		service:   svc,
		validator: v,
	}
}

// Start handles POST /api/download/start
func (h *DownloadHandler) Start(c *fiber.Ctx) error {
	var req model.DownloadStartRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	if req.Type == model.JobTypeTrack && req.TrackID == 0 {
		return response.ValidationError(c, "trackId is required for track downloads", nil)
	}

	result, err := h.service.StartDownload(c.Context(), &req, middleware.GetUserID(c))
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/download/status/:jobId
func (h *DownloadHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), jobID)
	if err != nil {
		if err.Error() == "job not found" {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Result handles GET /api/download/result/:jobId
func (h *DownloadHandler) Result(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetResult(c.Context(), jobID)
	if err != nil {
		if err.Error() == "job not found" {
			return response.NotFound(c, "Job not found")
		}
		if err.Error() == "job not completed" {
			return response.ValidationError(c, "Job not completed yet", nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Cancel handles POST /api/download/cancel/:jobId
func (h *DownloadHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.CancelDownload(c.Context(), jobID)
	if err != nil {
		if err.Error() == "job not found" {
			return response.NotFound(c, "Job not found")
		}
		if err.Error() == "job already finished" {
			return response.ValidationError(c, "Job already finished", nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Delete handles DELETE /api/download/:jobId
func (h *DownloadHandler) Delete(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	if err := h.service.DeleteDownload(c.Context(), jobID); err != nil {
		if err.Error() == "job not found" {
			return response.NotFound(c, "Job not found")
		}
		if err.Error() == "job not finished" {
			return response.ValidationError(c, "Job is still running", nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.NoContent(c)
}

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
