package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ucaes/academic-engine/internal/models"
)

// SemesterRepository handles persistence for academic semesters.
type SemesterRepository struct {
	db *sqlx.DB
}

// NewSemesterRepository instantiates a semester repository.
func NewSemesterRepository(db *sqlx.DB) *SemesterRepository {
	return &SemesterRepository{db: db}
}

const semesterColumns = "id, year_id, name, number, track, start_date, end_date, status, created_at, updated_at"

// List returns semesters matching provided filters.
func (r *SemesterRepository) List(ctx context.Context, filter models.SemesterFilter) ([]models.AcademicSemester, int, error) {
	base := "FROM academic_semesters WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.YearID != "" {
		conditions = append(conditions, fmt.Sprintf("year_id = $%d", len(args)+1))
		args = append(args, filter.YearID)
	}
	if filter.Track != "" {
		conditions = append(conditions, fmt.Sprintf("track = $%d", len(args)+1))
		args = append(args, filter.Track)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"number":     true,
		"start_date": true,
		"end_date":   true,
		"created_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "number"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", semesterColumns, base, sortBy, order, size, offset)

	var semesters []models.AcademicSemester
	if err := r.db.SelectContext(ctx, &semesters, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list semesters: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count semesters: %w", err)
	}

	return semesters, total, nil
}

// FindByID loads a semester by identifier.
func (r *SemesterRepository) FindByID(ctx context.Context, id string) (*models.AcademicSemester, error) {
	query := fmt.Sprintf("SELECT %s FROM academic_semesters WHERE id = $1", semesterColumns)
	var sem models.AcademicSemester
	if err := r.db.GetContext(ctx, &sem, query, id); err != nil {
		return nil, err
	}
	return &sem, nil
}

// FindActive returns the active semester for a year and track.
func (r *SemesterRepository) FindActive(ctx context.Context, yearID string, track models.Track) (*models.AcademicSemester, error) {
	query := fmt.Sprintf("SELECT %s FROM academic_semesters WHERE year_id = $1 AND track = $2 AND status = $3 LIMIT 1", semesterColumns)
	var sem models.AcademicSemester
	if err := r.db.GetContext(ctx, &sem, query, yearID, track, models.PeriodStatusActive); err != nil {
		return nil, err
	}
	return &sem, nil
}

// FindByYearNumberTrack locates a specific semester inside a year.
func (r *SemesterRepository) FindByYearNumberTrack(ctx context.Context, yearID string, number int, track models.Track) (*models.AcademicSemester, error) {
	query := fmt.Sprintf("SELECT %s FROM academic_semesters WHERE year_id = $1 AND number = $2 AND track = $3 LIMIT 1", semesterColumns)
	var sem models.AcademicSemester
	if err := r.db.GetContext(ctx, &sem, query, yearID, number, track); err != nil {
		return nil, err
	}
	return &sem, nil
}

// FindFirstOfYear returns the lowest-numbered semester of a year for a track.
func (r *SemesterRepository) FindFirstOfYear(ctx context.Context, yearID string, track models.Track) (*models.AcademicSemester, error) {
	query := fmt.Sprintf("SELECT %s FROM academic_semesters WHERE year_id = $1 AND track = $2 ORDER BY number ASC LIMIT 1", semesterColumns)
	var sem models.AcademicSemester
	if err := r.db.GetContext(ctx, &sem, query, yearID, track); err != nil {
		return nil, err
	}
	return &sem, nil
}

// CountActive returns the number of active semesters for a (year, track) scope.
func (r *SemesterRepository) CountActive(ctx context.Context, yearID string, track models.Track) (int, error) {
	const query = `SELECT COUNT(*) FROM academic_semesters WHERE year_id = $1 AND track = $2 AND status = $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, yearID, track, models.PeriodStatusActive); err != nil {
		return 0, fmt.Errorf("count active semesters: %w", err)
	}
	return count, nil
}

// ExistsByYearNumberTrack checks for a duplicate (year, number, track) triple.
func (r *SemesterRepository) ExistsByYearNumberTrack(ctx context.Context, yearID string, number int, track models.Track, excludeID string) (bool, error) {
	base := "SELECT 1 FROM academic_semesters WHERE year_id = $1 AND number = $2 AND track = $3"
	args := []interface{}{yearID, number, track}
	if excludeID != "" {
		base += " AND id <> $4"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, base+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check semester uniqueness: %w", err)
	}
	return true, nil
}

// Create inserts a new semester record with status upcoming.
func (r *SemesterRepository) Create(ctx context.Context, sem *models.AcademicSemester) error {
	if sem.ID == "" {
		sem.ID = uuid.NewString()
	}
	if sem.Status == "" {
		sem.Status = models.PeriodStatusUpcoming
	}
	now := time.Now().UTC()
	if sem.CreatedAt.IsZero() {
		sem.CreatedAt = now
	}
	sem.UpdatedAt = now

	const query = `INSERT INTO academic_semesters (id, year_id, name, number, track, start_date, end_date, status, created_at, updated_at)
VALUES (:id, :year_id, :name, :number, :track, :start_date, :end_date, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, sem); err != nil {
		return fmt.Errorf("create semester: %w", err)
	}
	return nil
}

// Update modifies the mutable fields of an upcoming semester.
func (r *SemesterRepository) Update(ctx context.Context, sem *models.AcademicSemester) error {
	sem.UpdatedAt = time.Now().UTC()
	const query = `UPDATE academic_semesters SET name = :name, number = :number, track = :track, start_date = :start_date, end_date = :end_date, updated_at = :updated_at
WHERE id = :id AND status = 'upcoming'`
	res, err := r.db.NamedExecContext(ctx, query, sem)
	if err != nil {
		return fmt.Errorf("update semester: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
