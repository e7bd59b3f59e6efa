package sqlbase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cryptodashboard/reportgen/pkg/models"
	"github.com/cryptodashboard/reportgen/pkg/persistence"
)

// ReportRepository handles crypto_report table operations for any Dialect.
type ReportRepository struct {
	db      *sql.DB
	logger  *slog.Logger
	dialect Dialect
}

// NewReportRepository creates a new report repository.
func NewReportRepository(db *sql.DB, logger *slog.Logger, dialect Dialect) *ReportRepository {
	return &ReportRepository{db: db, logger: logger, dialect: dialect}
}

// Save inserts a report on a dedicated connection inside a short transaction
// and returns the generated id. The connection is released on every path.
func (r *ReportRepository) Save(ctx context.Context, report *models.Report) (int64, error) {
	if blank := report.BlankFields(); len(blank) > 0 {
		return 0, &persistence.ReportError{
			Op:      "Save",
			Err:     persistence.ErrIncompleteReport,
			Message: "blank fields: " + strings.Join(blank, ", "),
		}
	}

	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return 0, persistence.NewReportError("Save", 0, fmt.Errorf("failed to acquire connection: %w", err))
	}

	defer func() {
		if cerr := conn.Close(); cerr != nil {
			r.logger.ErrorContext(ctx, "failed to release connection", "error", cerr)
		}
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, persistence.NewReportError("Save", 0, fmt.Errorf("failed to begin transaction: %w", err))
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				r.logger.ErrorContext(ctx, "failed to rollback transaction", "error", rbErr)
			}
		}
	}()

	query := fmt.Sprintf(`
		INSERT INTO crypto_report (
			html_content
		  , css_content
		  , js_content
		  , html_content_en
		  , js_content_en
		  , created_at
		) VALUES (%s)
		RETURNING id
	`, r.placeholders(6))

	var id int64

	err = tx.QueryRowContext(ctx, query,
		report.HTML,
		report.CSS,
		report.JS,
		report.HTMLEn,
		report.JSEn,
		report.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, persistence.NewReportError("Save", 0, fmt.Errorf("failed to insert report: %w", err))
	}

	err = tx.Commit()
	if err != nil {
		return 0, persistence.NewReportError("Save", id, fmt.Errorf("failed to commit transaction: %w", err))
	}

	report.ID = id

	return id, nil
}

// GetByID returns a report or persistence.ErrReportNotFound.
func (r *ReportRepository) GetByID(ctx context.Context, id int64) (*models.Report, error) {
	query := `
		SELECT
			id
		  , html_content
		  , css_content
		  , js_content
		  , html_content_en
		  , js_content_en
		  , created_at
		FROM crypto_report
		WHERE id = ` + r.dialect.Placeholder(1)

	report, err := scanReport(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewReportError("GetByID", id, persistence.ErrReportNotFound)
		}

		return nil, persistence.NewReportError("GetByID", id, err)
	}

	return report, nil
}

// Latest returns the most recently created report.
func (r *ReportRepository) Latest(ctx context.Context) (*models.Report, error) {
	query := `
		SELECT
			id
		  , html_content
		  , css_content
		  , js_content
		  , html_content_en
		  , js_content_en
		  , created_at
		FROM crypto_report
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	report, err := scanReport(r.db.QueryRowContext(ctx, query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewReportError("Latest", 0, persistence.ErrReportNotFound)
		}

		return nil, persistence.NewReportError("Latest", 0, err)
	}

	return report, nil
}

// List returns report summaries, newest first.
func (r *ReportRepository) List(ctx context.Context, limit, offset int) ([]*models.ReportSummary, error) {
	query := fmt.Sprintf(`
		SELECT
			id
		  , created_at
		  , LENGTH(html_content)
		FROM crypto_report
		ORDER BY created_at DESC, id DESC
		LIMIT %s OFFSET %s
	`, r.dialect.Placeholder(1), r.dialect.Placeholder(2))

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}

	defer func(ctx context.Context, r *ReportRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	summaries := make([]*models.ReportSummary, 0)

	for rows.Next() {
		summary := &models.ReportSummary{}

		err := rows.Scan(&summary.ID, &summary.CreatedAt, &summary.Size)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}

		summaries = append(summaries, summary)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating reports: %w", err)
	}

	return summaries, nil
}

func (r *ReportRepository) Count(ctx context.Context) (int, error) {
	var count int

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM crypto_report").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count reports: %w", err)
	}

	return count, nil
}

// Delete removes a report.
func (r *ReportRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM crypto_report WHERE id = "+r.dialect.Placeholder(1), id)
	if err != nil {
		return persistence.NewReportError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewReportError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewReportError("Delete", id, persistence.ErrReportNotFound)
	}

	return nil
}

func (r *ReportRepository) placeholders(n int) string {
	marks := make([]string, n)
	for i := range marks {
		marks[i] = r.dialect.Placeholder(i + 1)
	}

	return strings.Join(marks, ", ")
}

func scanReport(row *sql.Row) (*models.Report, error) {
	report := &models.Report{}

	err := row.Scan(
		&report.ID,
		&report.HTML,
		&report.CSS,
		&report.JS,
		&report.HTMLEn,
		&report.JSEn,
		&report.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return report, nil
}
