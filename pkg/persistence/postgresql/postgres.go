// Package postgresql provides the PostgreSQL persistence implementation for reports.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/cryptodashboard/reportgen/pkg/models"
	"github.com/cryptodashboard/reportgen/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db         *sql.DB
	logger     *slog.Logger
	reportRepo *sqlbase.ReportRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	database.SetMaxOpenConns(10)
	database.SetConnMaxIdleTime(5 * time.Minute)

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Initialize components
	migrationManager := sqlbase.NewMigrationManager(logger, database, sqlbase.Postgres, migrations())

	postgres := &Persistence{
		db:         database,
		logger:     logger,
		reportRepo: sqlbase.NewReportRepository(database, logger, sqlbase.Postgres),
	}

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// SaveReport inserts a report and returns its id.
func (p *Persistence) SaveReport(ctx context.Context, report *models.Report) (int64, error) {
	return p.reportRepo.Save(ctx, report)
}

// ReportByID returns a report by its ID.
func (p *Persistence) ReportByID(ctx context.Context, id int64) (*models.Report, error) {
	return p.reportRepo.GetByID(ctx, id)
}

// LatestReport returns the newest report.
func (p *Persistence) LatestReport(ctx context.Context) (*models.Report, error) {
	return p.reportRepo.Latest(ctx)
}

// Reports returns a page of report summaries.
func (p *Persistence) Reports(ctx context.Context, limit, offset int) ([]*models.ReportSummary, error) {
	return p.reportRepo.List(ctx, limit, offset)
}

func (p *Persistence) CountReports(ctx context.Context) (int, error) {
	return p.reportRepo.Count(ctx)
}

// DeleteReport removes a report by its ID.
func (p *Persistence) DeleteReport(ctx context.Context, id int64) error {
	return p.reportRepo.Delete(ctx, id)
}
