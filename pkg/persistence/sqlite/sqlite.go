// Package sqlite provides an embedded SQLite persistence implementation for
// local runs and tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cryptodashboard/reportgen/pkg/models"
	"github.com/cryptodashboard/reportgen/pkg/persistence/sqlbase"
	_ "modernc.org/sqlite"
)

// Persistence implements the persistence layer for SQLite.
type Persistence struct {
	db         *sql.DB
	logger     *slog.Logger
	reportRepo *sqlbase.ReportRepository
}

// NewPersistence opens (or creates) the database at path. Use ":memory:" for a
// throwaway database.
func NewPersistence(ctx context.Context, logger *slog.Logger, path string) (*Persistence, error) {
	dsn := strings.TrimPrefix(path, "sqlite://")

	database, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// A single connection keeps ":memory:" databases alive and serializes writers.
	database.SetMaxOpenConns(1)

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := database.ExecContext(ctx, pragma); err != nil {
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	err = sqlbase.NewMigrationManager(logger, database, sqlbase.SQLite, migrations()).RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:         database,
		logger:     logger,
		reportRepo: sqlbase.NewReportRepository(database, logger, sqlbase.SQLite),
	}, nil
}

func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) SaveReport(ctx context.Context, report *models.Report) (int64, error) {
	return p.reportRepo.Save(ctx, report)
}

func (p *Persistence) ReportByID(ctx context.Context, id int64) (*models.Report, error) {
	return p.reportRepo.GetByID(ctx, id)
}

func (p *Persistence) LatestReport(ctx context.Context) (*models.Report, error) {
	return p.reportRepo.Latest(ctx)
}

func (p *Persistence) Reports(ctx context.Context, limit, offset int) ([]*models.ReportSummary, error) {
	return p.reportRepo.List(ctx, limit, offset)
}

func (p *Persistence) CountReports(ctx context.Context) (int, error) {
	return p.reportRepo.Count(ctx)
}

func (p *Persistence) DeleteReport(ctx context.Context, id int64) error {
	return p.reportRepo.Delete(ctx, id)
}
