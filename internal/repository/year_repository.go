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

// YearRepository handles persistence for academic years.
type YearRepository struct {
	db *sqlx.DB
}

// NewYearRepository instantiates a year repository.
func NewYearRepository(db *sqlx.DB) *YearRepository {
	return &YearRepository{db: db}
}

const yearColumns = "id, label, start_date, end_date, status, created_at, updated_at"

// List returns years matching provided filters.
func (r *YearRepository) List(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, int, error) {
	base := "FROM academic_years WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Label != "" {
		conditions = append(conditions, fmt.Sprintf("label = $%d", len(args)+1))
		args = append(args, filter.Label)
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
		"label":      true,
		"start_date": true,
		"end_date":   true,
		"created_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "start_date"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", yearColumns, base, sortBy, order, size, offset)

	var years []models.AcademicYear
	if err := r.db.SelectContext(ctx, &years, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list academic years: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count academic years: %w", err)
	}

	return years, total, nil
}

// FindByID loads a year by identifier.
func (r *YearRepository) FindByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	query := fmt.Sprintf("SELECT %s FROM academic_years WHERE id = $1", yearColumns)
	var year models.AcademicYear
	if err := r.db.GetContext(ctx, &year, query, id); err != nil {
		return nil, err
	}
	return &year, nil
}

// FindByLabel loads a year by its "YYYY/YYYY" label.
func (r *YearRepository) FindByLabel(ctx context.Context, label string) (*models.AcademicYear, error) {
	query := fmt.Sprintf("SELECT %s FROM academic_years WHERE label = $1", yearColumns)
	var year models.AcademicYear
	if err := r.db.GetContext(ctx, &year, query, label); err != nil {
		return nil, err
	}
	return &year, nil
}

// FindActive returns the currently active year.
func (r *YearRepository) FindActive(ctx context.Context) (*models.AcademicYear, error) {
	query := fmt.Sprintf("SELECT %s FROM academic_years WHERE status = $1 LIMIT 1", yearColumns)
	var year models.AcademicYear
	if err := r.db.GetContext(ctx, &year, query, models.PeriodStatusActive); err != nil {
		return nil, err
	}
	return &year, nil
}

// CountActive returns the number of active years. The engine treats anything
// other than exactly one as an invariant violation.
func (r *YearRepository) CountActive(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM academic_years WHERE status = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, models.PeriodStatusActive); err != nil {
		return 0, fmt.Errorf("count active years: %w", err)
	}
	return count, nil
}

// ExistsByLabel checks whether a year with the given label already exists.
func (r *YearRepository) ExistsByLabel(ctx context.Context, label string) (bool, error) {
	const query = `SELECT 1 FROM academic_years WHERE label = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, label); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check year label: %w", err)
	}
	return true, nil
}

// Create inserts a new year record with status upcoming.
func (r *YearRepository) Create(ctx context.Context, year *models.AcademicYear) error {
	if year.ID == "" {
		year.ID = uuid.NewString()
	}
	if year.Status == "" {
		year.Status = models.PeriodStatusUpcoming
	}
	now := time.Now().UTC()
	if year.CreatedAt.IsZero() {
		year.CreatedAt = now
	}
	year.UpdatedAt = now

	const query = `INSERT INTO academic_years (id, label, start_date, end_date, status, created_at, updated_at)
VALUES (:id, :label, :start_date, :end_date, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, year); err != nil {
		return fmt.Errorf("create academic year: %w", err)
	}
	return nil
}

// Update modifies the mutable fields of an upcoming year. Status flips are
// owned by the transition engine and go through TransitionRepository.
func (r *YearRepository) Update(ctx context.Context, year *models.AcademicYear) error {
	year.UpdatedAt = time.Now().UTC()
	const query = `UPDATE academic_years SET label = :label, start_date = :start_date, end_date = :end_date, updated_at = :updated_at
WHERE id = :id AND status = 'upcoming'`
	res, err := r.db.NamedExecContext(ctx, query, year)
	if err != nil {
		return fmt.Errorf("update academic year: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
