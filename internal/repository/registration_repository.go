package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ucaes/academic-engine/internal/models"
)

// ErrDuplicateSource is returned when an insert trips the unique constraint
// on source_application_id, i.e. a racing migration already created the
// registration for the same application.
var ErrDuplicateSource = errors.New("registration exists for source application")

// RegistrationRepository handles persistence for student registrations.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository instantiates a registration repository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

const registrationColumns = `id, registration_number, source_application_id, owner_user_id, first_name, last_name,
other_names, gender, date_of_birth, nationality, email, phone, address, guardian_name, guardian_phone,
program, track, level, entry_year_label, active, created_at`

// FindByID loads a registration by identifier.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	query := fmt.Sprintf("SELECT %s FROM registrations WHERE id = $1", registrationColumns)
	var reg models.Registration
	if err := r.db.GetContext(ctx, &reg, query, id); err != nil {
		return nil, err
	}
	return &reg, nil
}

// FindBySourceApplication returns the registration created from an
// application, if any.
func (r *RegistrationRepository) FindBySourceApplication(ctx context.Context, applicationID string) (*models.Registration, error) {
	query := fmt.Sprintf("SELECT %s FROM registrations WHERE source_application_id = $1", registrationColumns)
	var reg models.Registration
	if err := r.db.GetContext(ctx, &reg, query, applicationID); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Create inserts a new registration. A unique-violation on
// source_application_id surfaces as ErrDuplicateSource so the pipeline can
// settle the race as an idempotent no-op.
func (r *RegistrationRepository) Create(ctx context.Context, reg *models.Registration) error {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO registrations (id, registration_number, source_application_id, owner_user_id, first_name, last_name,
other_names, gender, date_of_birth, nationality, email, phone, address, guardian_name, guardian_phone,
program, track, level, entry_year_label, active, created_at)
VALUES (:id, :registration_number, :source_application_id, :owner_user_id, :first_name, :last_name,
:other_names, :gender, :date_of_birth, :nationality, :email, :phone, :address, :guardian_name, :guardian_phone,
:program, :track, :level, :entry_year_label, :active, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, reg); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrDuplicateSource
		}
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

// MaxNumberForPrefix scans the lexicographic range [prefix, prefix||"9999"]
// and returns the highest registration number, or empty when none exist.
// Used only to seed a missing counter.
func (r *RegistrationRepository) MaxNumberForPrefix(ctx context.Context, prefix string) (string, error) {
	const query = `SELECT registration_number FROM registrations
WHERE registration_number >= $1 AND registration_number <= $2
ORDER BY registration_number DESC LIMIT 1`
	var number string
	if err := r.db.GetContext(ctx, &number, query, prefix, prefix+"9999"); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("scan max registration number: %w", err)
	}
	return number, nil
}

// List returns registrations matching provided filters.
func (r *RegistrationRepository) List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, int, error) {
	base := "FROM registrations WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Program != "" {
		conditions = append(conditions, fmt.Sprintf("program = $%d", len(args)+1))
		args = append(args, filter.Program)
	}
	if filter.Track != "" {
		conditions = append(conditions, fmt.Sprintf("track = $%d", len(args)+1))
		args = append(args, filter.Track)
	}
	if filter.Level != "" {
		conditions = append(conditions, fmt.Sprintf("level = $%d", len(args)+1))
		args = append(args, filter.Level)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"registration_number": true,
		"last_name":           true,
		"level":               true,
		"created_at":          true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "registration_number"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", registrationColumns, base, sortBy, order, size, offset)

	var regs []models.Registration
	if err := r.db.SelectContext(ctx, &regs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}

	return regs, total, nil
}

// ListActive returns every active student registration, used by the
// year-boundary level batch.
func (r *RegistrationRepository) ListActive(ctx context.Context) ([]models.Registration, error) {
	query := fmt.Sprintf("SELECT %s FROM registrations WHERE active = TRUE ORDER BY registration_number ASC", registrationColumns)
	var regs []models.Registration
	if err := r.db.SelectContext(ctx, &regs, query); err != nil {
		return nil, fmt.Errorf("list active registrations: %w", err)
	}
	return regs, nil
}

// UpdateLevel advances a single student's level.
func (r *RegistrationRepository) UpdateLevel(ctx context.Context, id, level string) error {
	const query = `UPDATE registrations SET level = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, level); err != nil {
		return fmt.Errorf("update registration level: %w", err)
	}
	return nil
}
