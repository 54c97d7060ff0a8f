package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ucaes/academic-engine/internal/models"
)

// ProgressRepository handles student progress records, their period
// completions and the per-track progression rules.
type ProgressRepository struct {
	db *sqlx.DB
}

// NewProgressRepository instantiates a progress repository.
func NewProgressRepository(db *sqlx.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

const progressColumns = "id, student_id, year_label, current_level, entry_level, track, status, created_at, updated_at"

// FindByID loads a progress record with its completions.
func (r *ProgressRepository) FindByID(ctx context.Context, id string) (*models.StudentProgress, error) {
	query := fmt.Sprintf("SELECT %s FROM student_progress WHERE id = $1", progressColumns)
	var progress models.StudentProgress
	if err := r.db.GetContext(ctx, &progress, query, id); err != nil {
		return nil, err
	}
	if err := r.loadCompletions(ctx, &progress); err != nil {
		return nil, err
	}
	return &progress, nil
}

// FindByStudentAndYear loads the progress record for one (student, year).
func (r *ProgressRepository) FindByStudentAndYear(ctx context.Context, studentID, yearLabel string) (*models.StudentProgress, error) {
	query := fmt.Sprintf("SELECT %s FROM student_progress WHERE student_id = $1 AND year_label = $2", progressColumns)
	var progress models.StudentProgress
	if err := r.db.GetContext(ctx, &progress, query, studentID, yearLabel); err != nil {
		return nil, err
	}
	if err := r.loadCompletions(ctx, &progress); err != nil {
		return nil, err
	}
	return &progress, nil
}

// ListOpenForYear returns progress records for a year that have not been
// closed out by a progression decision yet.
func (r *ProgressRepository) ListOpenForYear(ctx context.Context, yearLabel string) ([]models.StudentProgress, error) {
	query := fmt.Sprintf(`SELECT %s FROM student_progress WHERE year_label = $1 AND status <> $2 ORDER BY student_id ASC`, progressColumns)
	var records []models.StudentProgress
	if err := r.db.SelectContext(ctx, &records, query, yearLabel, models.ProgressionProgressed); err != nil {
		return nil, fmt.Errorf("list open progress records: %w", err)
	}
	for i := range records {
		if err := r.loadCompletions(ctx, &records[i]); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// Create inserts a progress record for a student's first enrollment in a year.
func (r *ProgressRepository) Create(ctx context.Context, progress *models.StudentProgress) error {
	if progress.ID == "" {
		progress.ID = uuid.NewString()
	}
	if progress.Status == "" {
		progress.Status = models.ProgressionNotEligible
	}
	now := time.Now().UTC()
	if progress.CreatedAt.IsZero() {
		progress.CreatedAt = now
	}
	progress.UpdatedAt = now

	const query = `INSERT INTO student_progress (id, student_id, year_label, current_level, entry_level, track, status, created_at, updated_at)
VALUES (:id, :student_id, :year_label, :current_level, :entry_level, :track, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, progress); err != nil {
		return fmt.Errorf("create student progress: %w", err)
	}
	return nil
}

// AddCompletion appends a period completion. Completions are append-only.
func (r *ProgressRepository) AddCompletion(ctx context.Context, completion *models.PeriodCompletion) error {
	if completion.ID == "" {
		completion.ID = uuid.NewString()
	}
	if completion.CompletedAt.IsZero() {
		completion.CompletedAt = time.Now().UTC()
	}
	const query = `INSERT INTO period_completions (id, progress_id, period_name, status, completed_at, credits_earned, credits_attempted, grade_metric)
VALUES (:id, :progress_id, :period_name, :status, :completed_at, :credits_earned, :credits_attempted, :grade_metric)`
	if _, err := r.db.NamedExecContext(ctx, query, completion); err != nil {
		return fmt.Errorf("add period completion: %w", err)
	}
	return nil
}

// UpdateStatus moves a progress record through the progression cycle.
func (r *ProgressRepository) UpdateStatus(ctx context.Context, id string, status models.ProgressionStatus) error {
	const query = `UPDATE student_progress SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update progress status: %w", err)
	}
	return nil
}

// CloseOut marks a record progressed and stamps the level it progressed to.
func (r *ProgressRepository) CloseOut(ctx context.Context, id, newLevel string) error {
	const query = `UPDATE student_progress SET status = $2, current_level = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ProgressionProgressed, newLevel, time.Now().UTC()); err != nil {
		return fmt.Errorf("close out progress record: %w", err)
	}
	return nil
}

// GetRule returns the progression rule for a track.
func (r *ProgressRepository) GetRule(ctx context.Context, track models.Track) (*models.ProgressionRule, error) {
	const query = `SELECT track, required_periods, window_month, window_day, level_step, max_level FROM progression_rules WHERE track = $1`
	var rule models.ProgressionRule
	if err := r.db.GetContext(ctx, &rule, query, track); err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListRules returns every configured progression rule.
func (r *ProgressRepository) ListRules(ctx context.Context) ([]models.ProgressionRule, error) {
	const query = `SELECT track, required_periods, window_month, window_day, level_step, max_level FROM progression_rules ORDER BY track ASC`
	var rules []models.ProgressionRule
	if err := r.db.SelectContext(ctx, &rules, query); err != nil {
		return nil, fmt.Errorf("list progression rules: %w", err)
	}
	return rules, nil
}

func (r *ProgressRepository) loadCompletions(ctx context.Context, progress *models.StudentProgress) error {
	const query = `SELECT id, progress_id, period_name, status, completed_at, credits_earned, credits_attempted, grade_metric
FROM period_completions WHERE progress_id = $1 ORDER BY completed_at ASC`
	if err := r.db.SelectContext(ctx, &progress.Completions, query, progress.ID); err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("load period completions: %w", err)
	}
	return nil
}
