package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ucaes/academic-engine/internal/models"
)

// ApplicationRepository reads admissions applications and owns their
// migration tracking columns.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository instantiates an application repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

const applicationColumns = `id, owner_user_id, status, first_name, last_name, other_names, gender, date_of_birth,
nationality, email, phone, address, guardian_name, guardian_phone, program, track, entry_year_label,
migration_status, migration_error, migrated_at, registration_id, created_at, updated_at`

// FindByID loads an application by identifier.
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*models.Application, error) {
	query := fmt.Sprintf("SELECT %s FROM applications WHERE id = $1", applicationColumns)
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		return nil, err
	}
	return &app, nil
}

// ListApprovedUnmigrated returns approved applications the pipeline has not
// completed yet, oldest first. Failed attempts are included so sweeps retry
// them.
func (r *ApplicationRepository) ListApprovedUnmigrated(ctx context.Context) ([]models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications
WHERE LOWER(status) IN ('accepted', 'approved')
  AND (migration_status IS NULL OR migration_status = 'failed')
ORDER BY created_at ASC`, applicationColumns)
	var apps []models.Application
	if err := r.db.SelectContext(ctx, &apps, query); err != nil {
		return nil, fmt.Errorf("list approved unmigrated applications: %w", err)
	}
	return apps, nil
}

// MarkMigrated stamps a completed migration with the registration reference.
func (r *ApplicationRepository) MarkMigrated(ctx context.Context, id, registrationID string) error {
	const query = `UPDATE applications
SET migration_status = 'completed', migration_error = NULL, migrated_at = $2, registration_id = $3, updated_at = $2
WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC(), registrationID); err != nil {
		return fmt.Errorf("mark application migrated: %w", err)
	}
	return nil
}

// MarkFailed records a failed attempt with the error message and timestamp so
// operators can inspect and retry.
func (r *ApplicationRepository) MarkFailed(ctx context.Context, id, message string) error {
	const query = `UPDATE applications
SET migration_status = 'failed', migration_error = $3, migrated_at = $2, updated_at = $2
WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC(), message); err != nil {
		return fmt.Errorf("mark application failed: %w", err)
	}
	return nil
}
