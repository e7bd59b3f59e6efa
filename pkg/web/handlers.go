// Package web provides HTTP handlers for report generation and report queries.
package web

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cryptodashboard/reportgen/pkg/events"
	"github.com/cryptodashboard/reportgen/pkg/progress"
	"github.com/cryptodashboard/reportgen/pkg/scheduler"
	"github.com/cryptodashboard/reportgen/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// Generator starts background generation runs.
type Generator interface {
	Start(ctx context.Context, trigger string) (string, error)
	APIKeyStatus() (bool, int)
}

type ProgressReader interface {
	Get(sessionID string) (progress.Record, bool)
}

type SchedulerStatus interface {
	Status() scheduler.Status
}

type APIHandlers struct {
	generator Generator
	progress  ProgressReader
	reports   *services.Reports
	scheduler SchedulerStatus
	validator *validator.Validate
}

// NewAPIHandlers wires the handlers. sched may be nil when scheduling is disabled.
func NewAPIHandlers(
	generator Generator,
	progress ProgressReader,
	reports *services.Reports,
	sched SchedulerStatus,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		generator: generator,
		progress:  progress,
		reports:   reports,
		scheduler: sched,
		validator: validator,
	}
}

// GenerateAutoReport accepts a generation request and returns the session id
// to poll. The run continues after the response is sent.
func (h *APIHandlers) GenerateAutoReport(c fiber.Ctx) error {
	sessionID, err := h.generator.Start(c.Context(), events.TriggerAPI)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(GenerateResponse{
		Success:   true,
		Message:   "Report generation started",
		SessionID: sessionID,
	})
}

func (h *APIHandlers) GetProgress(c fiber.Ctx) error {
	sessionID := c.Params("session_id")

	record, ok := h.progress.Get(sessionID)
	if !ok {
		return notFound(c, fmt.Sprintf("no progress for session %s", sessionID))
	}

	return c.JSON(record)
}

func (h *APIHandlers) GetReports(c fiber.Ctx) error {
	query, err := h.parseListReportsQuery(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.reports.ListReports(c.Context(), services.ListReportsRequest{
		Limit:  query.Limit,
		Offset: query.Offset,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"reports":       result.Reports,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
	})
}

func (h *APIHandlers) parseListReportsQuery(c fiber.Ctx) (*ListReportsQuery, error) {
	query := &ListReportsQuery{}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		query.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		query.Offset = offset
	}

	if err := h.validator.Struct(query); err != nil {
		return nil, err
	}

	return query, nil
}

func (h *APIHandlers) GetLatestReport(c fiber.Ctx) error {
	report, err := h.reports.Latest(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(report)
}

func (h *APIHandlers) GetReport(c fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return badRequest(c, "report id must be an integer")
	}

	report, err := h.reports.Report(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(report)
}

func (h *APIHandlers) DeleteReport(c fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return badRequest(c, "report id must be an integer")
	}

	if err := h.reports.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(DeleteReportResponse{
		Success:  true,
		ReportID: id,
		Message:  "Report deleted",
	})
}

// CheckAPIKey reports presence and length of the configured key only.
func (h *APIHandlers) CheckAPIKey(c fiber.Ctx) error {
	configured, length := h.generator.APIKeyStatus()

	message := "GEMINI_API_KEY is configured"
	if !configured {
		message = "GEMINI_API_KEY is not configured"
	}

	return c.JSON(APIKeyStatusResponse{
		Configured: configured,
		Length:     length,
		Message:    message,
	})
}

func (h *APIHandlers) GetSchedulerStatus(c fiber.Ctx) error {
	if h.scheduler == nil {
		return c.JSON(scheduler.Status{Enabled: false, Times: []string{}})
	}

	return c.JSON(h.scheduler.Status())
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	message, ok := h.reports.HealthCheck(c.Context())
	if !ok {
		return c.Status(fiber.StatusServiceUnavailable).JSON(HealthResponse{
			Status:  "unhealthy",
			Message: message,
		})
	}

	return c.JSON(HealthResponse{
		Status:  "healthy",
		Message: message,
	})
}

// Register mounts every report route under /api/v1 and the health route.
func (h *APIHandlers) Register(app *fiber.App) {
	v1 := app.Group("/api/v1")
	v1.Post("/generate-auto-report", h.GenerateAutoReport)
	v1.Get("/progress/:session_id", h.GetProgress)
	v1.Get("/check-api-key", h.CheckAPIKey)
	v1.Get("/scheduler/status", h.GetSchedulerStatus)

	r := v1.Group("/reports")
	r.Get("/", h.GetReports)
	r.Get("/latest", h.GetLatestReport)
	r.Get("/:id", h.GetReport)
	r.Delete("/:id", h.DeleteReport)

	app.Get("/health", h.HealthCheck)
}
