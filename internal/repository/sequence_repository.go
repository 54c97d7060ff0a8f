package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SequenceRepository backs registration number allocation with an atomic
// per-prefix counter row. The database performs the increment, so concurrent
// allocators can never observe the same value.
type SequenceRepository struct {
	db *sqlx.DB
}

// NewSequenceRepository instantiates a sequence repository.
func NewSequenceRepository(db *sqlx.DB) *SequenceRepository {
	return &SequenceRepository{db: db}
}

// Ensure creates the counter row for a prefix if it does not exist, seeded at
// the given value. Existing counters are left untouched.
func (r *SequenceRepository) Ensure(ctx context.Context, prefix string, seed int) error {
	const query = `INSERT INTO registration_counters (prefix, value) VALUES ($1, $2) ON CONFLICT (prefix) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, prefix, seed); err != nil {
		return fmt.Errorf("ensure counter %s: %w", prefix, err)
	}
	return nil
}

// Next atomically increments the counter and returns the new value.
func (r *SequenceRepository) Next(ctx context.Context, prefix string) (int, error) {
	const query = `UPDATE registration_counters SET value = value + 1 WHERE prefix = $1 RETURNING value`
	var value int
	if err := r.db.GetContext(ctx, &value, query, prefix); err != nil {
		return 0, err
	}
	return value, nil
}
