package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ucaes/academic-engine/internal/models"
)

// PeriodRepository reads the singleton period pointer. Writes happen only
// inside transition transactions (see TransitionRepository).
type PeriodRepository struct {
	db *sqlx.DB
}

// NewPeriodRepository instantiates a period pointer repository.
func NewPeriodRepository(db *sqlx.DB) *PeriodRepository {
	return &PeriodRepository{db: db}
}

// Get returns the current period pointer.
func (r *PeriodRepository) Get(ctx context.Context) (*models.PeriodPointer, error) {
	const query = `SELECT id, year_id, year_label, semester_id, semester_label, updated_at, updated_by FROM period_pointer WHERE id = 1`
	var pointer models.PeriodPointer
	if err := r.db.GetContext(ctx, &pointer, query); err != nil {
		return nil, err
	}
	return &pointer, nil
}
