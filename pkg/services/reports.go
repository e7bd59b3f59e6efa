package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cryptodashboard/reportgen/pkg/eventbus"
	"github.com/cryptodashboard/reportgen/pkg/events"
	"github.com/cryptodashboard/reportgen/pkg/models"
	"github.com/cryptodashboard/reportgen/pkg/persistence"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

type Reports struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

// NewReports creates the report query service. publisher may be nil.
func NewReports(persistence persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Reports {
	return &Reports{
		persistence: persistence,
		publisher:   publisher,
		logger:      logger.With("module", "reports"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (r *Reports) HealthCheck(ctx context.Context) (string, bool) {
	if r.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := r.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListReportsRequest contains options for listing reports.
type ListReportsRequest struct {
	Limit  int
	Offset int
}

// ListReportsResponse contains the result of listing reports.
type ListReportsResponse struct {
	Reports     []*models.ReportSummary `json:"reports"`
	TotalCount  int                     `json:"total_count"`
	HasNextPage bool                    `json:"has_next_page"`
}

// ListReports returns report summaries, newest first.
func (r *Reports) ListReports(ctx context.Context, req ListReportsRequest) (*ListReportsResponse, error) {
	if err := validateListReportsRequest(&req); err != nil {
		return nil, err
	}

	summaries, err := r.persistence.Reports(ctx, req.Limit, req.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	total, err := r.persistence.CountReports(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count reports: %w", err)
	}

	if summaries == nil {
		summaries = []*models.ReportSummary{}
	}

	return &ListReportsResponse{
		Reports:     summaries,
		TotalCount:  total,
		HasNextPage: req.Offset+len(summaries) < total,
	}, nil
}

func validateListReportsRequest(req *ListReportsRequest) error {
	if req.Limit == 0 {
		req.Limit = DefaultPageLimit
	}

	if req.Limit < 1 || req.Limit > MaxPageLimit {
		return NewValidationError(
			"validateListReportsRequest",
			"INVALID_LIMIT",
			fmt.Sprintf("limit must be between 1 and %d, got %d", MaxPageLimit, req.Limit),
			ErrInvalidPageLimit,
		)
	}

	if req.Offset < 0 {
		return NewValidationError(
			"validateListReportsRequest",
			"INVALID_OFFSET",
			fmt.Sprintf("offset must not be negative, got %d", req.Offset),
			ErrInvalidRequest,
		)
	}

	return nil
}

func (r *Reports) Report(ctx context.Context, id int64) (*models.Report, error) {
	if id <= 0 {
		return nil, NewValidationError("Report", "INVALID_ID", fmt.Sprintf("invalid report id %d", id), ErrInvalidReportID)
	}

	return r.persistence.ReportByID(ctx, id)
}

func (r *Reports) Latest(ctx context.Context) (*models.Report, error) {
	return r.persistence.LatestReport(ctx)
}

// Delete removes a report and announces the deletion so the page URL can be
// withdrawn from search indexes.
func (r *Reports) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return NewValidationError("Delete", "INVALID_ID", fmt.Sprintf("invalid report id %d", id), ErrInvalidReportID)
	}

	if err := r.persistence.DeleteReport(ctx, id); err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "report deleted", "report_id", id)

	if r.publisher == nil {
		return nil
	}

	event := events.NewReportDeleted(id)
	if err := r.publisher.Publish(ctx, fmt.Sprint(id), event); err != nil {
		r.logger.ErrorContext(ctx, "failed to publish report deletion", "report_id", id, "error", err)
	}

	return nil
}
