// Package persistence provides the storage abstraction for generated reports.
package persistence

import (
	"context"

	"github.com/cryptodashboard/reportgen/pkg/models"
)

type Persistence interface {
	// SaveReport inserts the report and returns its new id.
	SaveReport(ctx context.Context, report *models.Report) (int64, error)
	ReportByID(ctx context.Context, id int64) (*models.Report, error)
	LatestReport(ctx context.Context) (*models.Report, error)
	Reports(ctx context.Context, limit, offset int) ([]*models.ReportSummary, error)
	CountReports(ctx context.Context) (int, error)
	DeleteReport(ctx context.Context, id int64) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
