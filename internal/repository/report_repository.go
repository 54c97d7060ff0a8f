package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ucaes/academic-engine/internal/models"
)

// ReportRepository persists batch outcome report metadata.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository instantiates a report repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

const reportColumns = "id, type, format, status, file_path, result_url, created_by, created_at, finished_at, error_message"

// Create inserts a queued report row.
func (r *ReportRepository) Create(ctx context.Context, report *models.BatchReport) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.Status == "" {
		report.Status = models.ReportStatusQueued
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO batch_reports (id, type, format, status, created_by, created_at)
VALUES (:id, :type, :format, :status, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, report); err != nil {
		return fmt.Errorf("create batch report: %w", err)
	}
	return nil
}

// FindByID loads a report by identifier.
func (r *ReportRepository) FindByID(ctx context.Context, id string) (*models.BatchReport, error) {
	query := fmt.Sprintf("SELECT %s FROM batch_reports WHERE id = $1", reportColumns)
	var report models.BatchReport
	if err := r.db.GetContext(ctx, &report, query, id); err != nil {
		return nil, err
	}
	return &report, nil
}

// MarkProcessing flips a queued report to processing.
func (r *ReportRepository) MarkProcessing(ctx context.Context, id string) error {
	const query = `UPDATE batch_reports SET status = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ReportStatusProcessing); err != nil {
		return fmt.Errorf("mark report processing: %w", err)
	}
	return nil
}

// MarkFinished records the stored file and signed URL for a finished report.
func (r *ReportRepository) MarkFinished(ctx context.Context, id, filePath, resultURL string) error {
	const query = `UPDATE batch_reports SET status = $2, file_path = $3, result_url = $4, finished_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ReportStatusFinished, filePath, resultURL, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark report finished: %w", err)
	}
	return nil
}

// MarkFailed settles a report as failed with the error message.
func (r *ReportRepository) MarkFailed(ctx context.Context, id, message string) error {
	const query = `UPDATE batch_reports SET status = $2, error_message = $3, finished_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ReportStatusFailed, message, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark report failed: %w", err)
	}
	return nil
}
