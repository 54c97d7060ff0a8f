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

// ErrStatusConflict is returned when a status-conditioned update matched no
// row, meaning another writer already flipped the period.
var ErrStatusConflict = fmt.Errorf("period status changed concurrently")

// TransitionRepository commits period transitions. Every status flip is
// conditioned on the status the engine last read, and the period pointer is
// swapped in the same transaction, so two racing transitions cannot both
// succeed and the pointer can never disagree with the period rows.
type TransitionRepository struct {
	db *sqlx.DB
}

// NewTransitionRepository instantiates a transition repository.
func NewTransitionRepository(db *sqlx.DB) *TransitionRepository {
	return &TransitionRepository{db: db}
}

// SemesterSwap describes a semester transition commit.
type SemesterSwap struct {
	CurrentID   string
	CandidateID *string
	Pointer     models.PeriodPointer
}

// YearSwap describes a year transition commit.
type YearSwap struct {
	CurrentYearID   string
	NextYearID      string
	FirstSemesterID *string
	Pointer         models.PeriodPointer
}

// CommitSemester completes the current semester, activates the candidate and
// swaps the pointer, all in one transaction.
func (r *TransitionRepository) CommitSemester(ctx context.Context, swap SemesterSwap) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin semester transition tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if swap.CurrentID != "" {
		if err = completePeriod(ctx, tx, "academic_semesters", swap.CurrentID); err != nil {
			return err
		}
	}
	if swap.CandidateID != nil {
		if err = activatePeriod(ctx, tx, "academic_semesters", *swap.CandidateID); err != nil {
			return err
		}
	}
	if err = upsertPointer(ctx, tx, swap.Pointer); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit semester transition tx: %w", err)
	}
	return nil
}

// CommitYear completes the current year, activates the next one plus its
// first semester when present, and swaps the pointer atomically.
func (r *TransitionRepository) CommitYear(ctx context.Context, swap YearSwap) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin year transition tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = completePeriod(ctx, tx, "academic_years", swap.CurrentYearID); err != nil {
		return err
	}
	if err = activatePeriod(ctx, tx, "academic_years", swap.NextYearID); err != nil {
		return err
	}
	if swap.FirstSemesterID != nil {
		if err = activatePeriod(ctx, tx, "academic_semesters", *swap.FirstSemesterID); err != nil {
			return err
		}
	}
	if err = upsertPointer(ctx, tx, swap.Pointer); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit year transition tx: %w", err)
	}
	return nil
}

// completePeriod flips active -> completed. Zero rows means someone else got
// there first.
func completePeriod(ctx context.Context, tx *sqlx.Tx, table, id string) error {
	query := fmt.Sprintf(`UPDATE %s SET status = 'completed', updated_at = $2 WHERE id = $1 AND status = 'active'`, table)
	res, err := tx.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("complete period %s: %w", id, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// activatePeriod flips upcoming -> active under the same optimistic rule.
func activatePeriod(ctx context.Context, tx *sqlx.Tx, table, id string) error {
	query := fmt.Sprintf(`UPDATE %s SET status = 'active', updated_at = $2 WHERE id = $1 AND status = 'upcoming'`, table)
	res, err := tx.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("activate period %s: %w", id, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func upsertPointer(ctx context.Context, tx *sqlx.Tx, pointer models.PeriodPointer) error {
	pointer.ID = 1
	pointer.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO period_pointer (id, year_id, year_label, semester_id, semester_label, updated_at, updated_by)
VALUES (:id, :year_id, :year_label, :semester_id, :semester_label, :updated_at, :updated_by)
ON CONFLICT (id)
DO UPDATE SET year_id = EXCLUDED.year_id, year_label = EXCLUDED.year_label,
              semester_id = EXCLUDED.semester_id, semester_label = EXCLUDED.semester_label,
              updated_at = EXCLUDED.updated_at, updated_by = EXCLUDED.updated_by`
	if _, err := tx.NamedExecContext(ctx, query, pointer); err != nil {
		return fmt.Errorf("upsert period pointer: %w", err)
	}
	return nil
}

const runColumns = "id, kind, target_id, status, actor, started_at, finished_at, error"

// CreateRun records the start of a transition or progression batch.
func (r *TransitionRepository) CreateRun(ctx context.Context, run *models.TransitionRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.TransitionRunRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	const query = `INSERT INTO transition_runs (id, kind, target_id, status, actor, started_at)
VALUES (:id, :kind, :target_id, :status, :actor, :started_at)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("create transition run: %w", err)
	}
	return nil
}

// FinishRun settles a run as finished or failed.
func (r *TransitionRepository) FinishRun(ctx context.Context, id string, status models.TransitionRunStatus, runErr error) error {
	var msg *string
	if runErr != nil {
		s := runErr.Error()
		msg = &s
	}
	const query = `UPDATE transition_runs SET status = $2, finished_at = $3, error = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC(), msg); err != nil {
		return fmt.Errorf("finish transition run: %w", err)
	}
	return nil
}

// CountRunning returns the number of in-flight runs of a kind.
func (r *TransitionRepository) CountRunning(ctx context.Context, kind models.TransitionKind) (int, error) {
	const query = `SELECT COUNT(*) FROM transition_runs WHERE kind = $1 AND status = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, kind, models.TransitionRunRunning); err != nil {
		return 0, fmt.Errorf("count running transitions: %w", err)
	}
	return count, nil
}

// FindRun loads a run by identifier.
func (r *TransitionRepository) FindRun(ctx context.Context, id string) (*models.TransitionRun, error) {
	query := fmt.Sprintf("SELECT %s FROM transition_runs WHERE id = $1", runColumns)
	var run models.TransitionRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find transition run: %w", err)
	}
	return &run, nil
}
