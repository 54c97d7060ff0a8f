package service

import (
	"context"
	"database/sql"
	"net/http"

	"go.uber.org/zap"

	"github.com/ucaes/academic-engine/internal/models"
	appErrors "github.com/ucaes/academic-engine/pkg/errors"
)

// Machine-readable denial reasons surfaced to the scheduler so it can log
// and retry instead of crash-looping.
const (
	DenyTransitionInProgress    = "transition-in-progress"
	DenyTargetCompleted         = "target-completed"
	DenyProgressionBatchRunning = "progression-batch-running"
)

// ErrTransitionBlocked is the template for guard denials; Message carries the
// reason constant.
var ErrTransitionBlocked = appErrors.New("TRANSITION_BLOCKED", http.StatusPreconditionFailed, "transition blocked")

type guardRunCounter interface {
	CountRunning(ctx context.Context, kind models.TransitionKind) (int, error)
}

type guardYearRepo interface {
	FindByID(ctx context.Context, id string) (*models.AcademicYear, error)
	CountActive(ctx context.Context) (int, error)
}

type guardSemesterRepo interface {
	FindByID(ctx context.Context, id string) (*models.AcademicSemester, error)
}

// GuardService is the cross-cutting invariant checker consulted before any
// period mutation. It never mutates anything itself.
type GuardService struct {
	runs      guardRunCounter
	years     guardYearRepo
	semesters guardSemesterRepo
	logger    *zap.Logger
}

// NewGuardService creates a protection guard.
func NewGuardService(runs guardRunCounter, years guardYearRepo, semesters guardSemesterRepo, logger *zap.Logger) *GuardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GuardService{runs: runs, years: years, semesters: semesters, logger: logger}
}

// CanTransition returns nil when a transition of the given kind may proceed
// against the target period, or a TRANSITION_BLOCKED error carrying a
// machine-readable reason.
func (s *GuardService) CanTransition(ctx context.Context, kind models.TransitionKind, targetID string) error {
	running, err := s.runs.CountRunning(ctx, kind)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check in-flight transitions")
	}
	if running > 0 {
		return s.deny(kind, targetID, DenyTransitionInProgress)
	}

	if targetID != "" {
		status, err := s.targetStatus(ctx, kind, targetID)
		if err != nil {
			if err == sql.ErrNoRows {
				return appErrors.Clone(appErrors.ErrNotFound, "target period not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load target period")
		}
		if status == models.PeriodStatusCompleted {
			return s.deny(kind, targetID, DenyTargetCompleted)
		}
	}

	if kind == models.TransitionKindYear {
		batches, err := s.runs.CountRunning(ctx, models.TransitionKindProgressionBatch)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check progression batches")
		}
		if batches > 0 {
			return s.deny(kind, targetID, DenyProgressionBatchRunning)
		}
	}

	return nil
}

// CheckSingleActiveYear verifies the single-active invariant. Anything other
// than exactly one active year must halt and alert, never auto-heal.
func (s *GuardService) CheckSingleActiveYear(ctx context.Context) error {
	count, err := s.years.CountActive(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count active years")
	}
	if count > 1 {
		s.logger.Error("invariant violation: multiple active academic years", zap.Int("count", count))
		return appErrors.Clone(appErrors.ErrInvariant, "multiple active academic years")
	}
	return nil
}

func (s *GuardService) targetStatus(ctx context.Context, kind models.TransitionKind, targetID string) (models.PeriodStatus, error) {
	if kind == models.TransitionKindYear {
		year, err := s.years.FindByID(ctx, targetID)
		if err != nil {
			return "", err
		}
		return year.Status, nil
	}
	semester, err := s.semesters.FindByID(ctx, targetID)
	if err != nil {
		return "", err
	}
	return semester.Status, nil
}

func (s *GuardService) deny(kind models.TransitionKind, targetID, reason string) error {
	s.logger.Warn("transition denied",
		zap.String("kind", string(kind)),
		zap.String("target_id", targetID),
		zap.String("reason", reason))
	return appErrors.Clone(ErrTransitionBlocked, reason)
}
