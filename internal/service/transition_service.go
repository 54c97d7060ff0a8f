package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ucaes/academic-engine/internal/models"
	"github.com/ucaes/academic-engine/internal/repository"
	appErrors "github.com/ucaes/academic-engine/pkg/errors"
)

type transitionPointerRepo interface {
	Get(ctx context.Context) (*models.PeriodPointer, error)
}

type transitionYearRepo interface {
	FindByID(ctx context.Context, id string) (*models.AcademicYear, error)
	FindByLabel(ctx context.Context, label string) (*models.AcademicYear, error)
	Create(ctx context.Context, year *models.AcademicYear) error
}

type transitionSemesterRepo interface {
	FindByID(ctx context.Context, id string) (*models.AcademicSemester, error)
	FindByYearNumberTrack(ctx context.Context, yearID string, number int, track models.Track) (*models.AcademicSemester, error)
	FindFirstOfYear(ctx context.Context, yearID string, track models.Track) (*models.AcademicSemester, error)
}

type transitionCommitter interface {
	CommitSemester(ctx context.Context, swap repository.SemesterSwap) error
	CommitYear(ctx context.Context, swap repository.YearSwap) error
	CreateRun(ctx context.Context, run *models.TransitionRun) error
	FinishRun(ctx context.Context, id string, status models.TransitionRunStatus, runErr error) error
}

type transitionGuard interface {
	CanTransition(ctx context.Context, kind models.TransitionKind, targetID string) error
	CheckSingleActiveYear(ctx context.Context) error
}

type pointerInvalidator interface {
	InvalidatePointer(ctx context.Context)
}

type progressionBatcher interface {
	RunBatch(ctx context.Context, yearLabel, actor string) (*models.StudentBatchSummary, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
}

// TransitionInput describes one trigger of the transition engine.
type TransitionInput struct {
	Force bool
	Actor string
}

// TransitionService drives the period state machine. Both transition kinds
// share the same shape: resolve the current period from the pointer, check
// the timing gate, consult the guard, record a run, commit the flips plus the
// pointer swap in one transaction, then settle the run. A transition that is
// not yet due is a successful no-op, never an error.
type TransitionService struct {
	pointer     transitionPointerRepo
	years       transitionYearRepo
	semesters   transitionSemesterRepo
	transitions transitionCommitter
	guard       transitionGuard
	invalidator pointerInvalidator
	batcher     progressionBatcher
	audits      auditWriter
	logger      *zap.Logger
	now         func() time.Time
}

// NewTransitionService creates a transition engine. invalidator, batcher and
// audits may be nil.
func NewTransitionService(
	pointer transitionPointerRepo,
	years transitionYearRepo,
	semesters transitionSemesterRepo,
	transitions transitionCommitter,
	guard transitionGuard,
	invalidator pointerInvalidator,
	batcher progressionBatcher,
	audits auditWriter,
	logger *zap.Logger,
) *TransitionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransitionService{
		pointer:     pointer,
		years:       years,
		semesters:   semesters,
		transitions: transitions,
		guard:       guard,
		invalidator: invalidator,
		batcher:     batcher,
		audits:      audits,
		logger:      logger,
		now:         time.Now,
	}
}

// TransitionSemester advances the current semester to the next one in its
// year and track. With no next semester configured an unforced call refuses;
// only a forced call completes the last semester and leaves the pointer
// without one, signalling that a year transition is next.
func (s *TransitionService) TransitionSemester(ctx context.Context, input TransitionInput) (*models.TransitionResult, error) {
	pointer, err := s.currentPointer(ctx)
	if err != nil {
		return nil, err
	}
	if pointer.SemesterID == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no active semester; run a year transition instead")
	}

	current, err := s.semesters.FindByID(ctx, *pointer.SemesterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvariant, "pointer references a missing semester")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current semester")
	}

	result := &models.TransitionResult{
		Kind:     models.TransitionKindSemester,
		Forced:   input.Force,
		Previous: models.PeriodRef{ID: current.ID, Label: current.Name},
	}

	// The candidate is resolved before the timing gate so a calendar with no
	// next semester surfaces as a precondition failure, not as "not yet due".
	candidate, err := s.semesters.FindByYearNumberTrack(ctx, current.YearID, current.Number+1, current.Track)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load next semester")
	}
	if candidate == nil && !input.Force {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("no next semester configured after %q", current.Name))
	}

	now := s.now().UTC()
	if !input.Force && now.Before(current.EndDate) {
		due := current.EndDate
		result.Performed = false
		result.Current = result.Previous
		result.NextEligible = &due
		result.Message = fmt.Sprintf("semester %q runs until %s", current.Name, due.Format("2006-01-02"))
		return result, nil
	}

	targetID := ""
	if candidate != nil {
		targetID = candidate.ID
	}
	if err := s.guard.CanTransition(ctx, models.TransitionKindSemester, targetID); err != nil {
		return nil, err
	}

	run := &models.TransitionRun{Kind: models.TransitionKindSemester, TargetID: targetID, Actor: input.Actor}
	if err := s.transitions.CreateRun(ctx, run); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record transition run")
	}

	swap := repository.SemesterSwap{
		CurrentID: current.ID,
		Pointer: models.PeriodPointer{
			YearID:    pointer.YearID,
			YearLabel: pointer.YearLabel,
			UpdatedBy: input.Actor,
		},
	}
	if candidate != nil {
		swap.CandidateID = &candidate.ID
		swap.Pointer.SemesterID = &candidate.ID
		swap.Pointer.SemesterLabel = candidate.Name
	}

	if err := s.transitions.CommitSemester(ctx, swap); err != nil {
		s.finishRun(ctx, run.ID, models.TransitionRunFailed, err)
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "another transition changed the period first")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "semester transition failed")
	}
	s.finishRun(ctx, run.ID, models.TransitionRunFinished, nil)

	result.Performed = true
	if candidate != nil {
		result.Current = models.PeriodRef{ID: candidate.ID, Label: candidate.Name}
		result.Message = fmt.Sprintf("semester advanced to %q", candidate.Name)
	} else {
		result.Current = models.PeriodRef{Label: pointer.YearLabel}
		result.Message = "last semester of the year completed; year transition pending"
	}

	s.afterCommit(ctx, models.AuditActionSemesterTransition, run.ID, input.Actor, result)
	return result, nil
}

// TransitionYear completes the current academic year, activates the next one
// together with its first semester, then runs the student level batch for the
// closed year. A batch failure does not undo the already committed year flip.
func (s *TransitionService) TransitionYear(ctx context.Context, input TransitionInput) (*models.TransitionResult, error) {
	pointer, err := s.currentPointer(ctx)
	if err != nil {
		return nil, err
	}

	current, err := s.years.FindByID(ctx, pointer.YearID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvariant, "pointer references a missing academic year")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current year")
	}

	result := &models.TransitionResult{
		Kind:     models.TransitionKindYear,
		Forced:   input.Force,
		Previous: models.PeriodRef{ID: current.ID, Label: current.Label},
	}

	now := s.now().UTC()
	if !input.Force && now.Before(current.EndDate) {
		due := current.EndDate
		result.Performed = false
		result.Current = result.Previous
		result.NextEligible = &due
		result.Message = fmt.Sprintf("academic year %s runs until %s", current.Label, due.Format("2006-01-02"))
		return result, nil
	}

	next, err := s.resolveNextYear(ctx, current, input.Force)
	if err != nil {
		return nil, err
	}

	if err := s.guard.CanTransition(ctx, models.TransitionKindYear, next.ID); err != nil {
		return nil, err
	}

	track := models.TrackRegular
	if pointer.SemesterID != nil {
		if sem, semErr := s.semesters.FindByID(ctx, *pointer.SemesterID); semErr == nil {
			track = sem.Track
		}
	}
	first, err := s.semesters.FindFirstOfYear(ctx, next.ID, track)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load first semester of next year")
	}

	run := &models.TransitionRun{Kind: models.TransitionKindYear, TargetID: next.ID, Actor: input.Actor}
	if err := s.transitions.CreateRun(ctx, run); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record transition run")
	}

	swap := repository.YearSwap{
		CurrentYearID: current.ID,
		NextYearID:    next.ID,
		Pointer: models.PeriodPointer{
			YearID:    next.ID,
			YearLabel: next.Label,
			UpdatedBy: input.Actor,
		},
	}
	if first != nil {
		swap.FirstSemesterID = &first.ID
		swap.Pointer.SemesterID = &first.ID
		swap.Pointer.SemesterLabel = first.Name
	}

	if err := s.transitions.CommitYear(ctx, swap); err != nil {
		s.finishRun(ctx, run.ID, models.TransitionRunFailed, err)
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "another transition changed the period first")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "year transition failed")
	}
	s.finishRun(ctx, run.ID, models.TransitionRunFinished, nil)

	result.Performed = true
	result.Current = models.PeriodRef{ID: next.ID, Label: next.Label}
	result.Message = fmt.Sprintf("academic year advanced to %s", next.Label)

	if s.batcher != nil {
		summary, batchErr := s.batcher.RunBatch(ctx, current.Label, input.Actor)
		if batchErr != nil {
			s.logger.Error("student progression batch failed after year transition",
				zap.String("year", current.Label), zap.Error(batchErr))
			result.Message += "; student progression batch failed and must be re-run"
		} else {
			result.Batch = summary
		}
	}

	s.afterCommit(ctx, models.AuditActionYearTransition, run.ID, input.Actor, result)

	// The flip and batch are already committed; surface the violation together
	// with what the transition did so the operator can act on both.
	if err := s.guard.CheckSingleActiveYear(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// Transition dispatches on kind; handlers call this.
func (s *TransitionService) Transition(ctx context.Context, kind models.TransitionKind, input TransitionInput) (*models.TransitionResult, error) {
	switch kind {
	case models.TransitionKindSemester:
		return s.TransitionSemester(ctx, input)
	case models.TransitionKindYear:
		return s.TransitionYear(ctx, input)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown transition kind %q", kind))
	}
}

func (s *TransitionService) currentPointer(ctx context.Context) (*models.PeriodPointer, error) {
	pointer, err := s.pointer.Get(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no current period configured")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load period pointer")
	}
	return pointer, nil
}

// resolveNextYear finds the year after current by label. A forced transition
// creates the record when it is missing; an unforced one refuses, because a
// scheduler hitting this path means the calendar was never set up.
func (s *TransitionService) resolveNextYear(ctx context.Context, current *models.AcademicYear, force bool) (*models.AcademicYear, error) {
	label, err := nextYearLabel(current.Label)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvariant, err.Error())
	}

	next, err := s.years.FindByLabel(ctx, label)
	if err == nil {
		return next, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load next year")
	}

	if !force {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("next academic year %s is not configured", label))
	}

	created := &models.AcademicYear{
		Label:     label,
		StartDate: current.EndDate,
		EndDate:   current.EndDate.AddDate(1, 0, 0),
		Status:    models.PeriodStatusUpcoming,
	}
	if err := s.years.Create(ctx, created); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create next year")
	}
	s.logger.Warn("next academic year created on forced transition", zap.String("label", label))
	return created, nil
}

func (s *TransitionService) finishRun(ctx context.Context, id string, status models.TransitionRunStatus, runErr error) {
	if err := s.transitions.FinishRun(ctx, id, status, runErr); err != nil {
		s.logger.Error("failed to settle transition run", zap.String("run_id", id), zap.Error(err))
	}
}

// afterCommit handles the best-effort tail of a transition: cache
// invalidation and audit logging. Neither can fail the already committed
// transition.
func (s *TransitionService) afterCommit(ctx context.Context, action, runID, actor string, result *models.TransitionResult) {
	if s.invalidator != nil {
		s.invalidator.InvalidatePointer(ctx)
	}
	if s.audits == nil {
		return
	}
	payload, _ := json.Marshal(result)
	entry := &models.AuditLog{
		Action:     action,
		Resource:   "period",
		ResourceID: &runID,
		NewValues:  payload,
	}
	if actor != "" {
		entry.UserID = &actor
	}
	if err := s.audits.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to write transition audit log", zap.Error(err))
	}
}

// nextYearLabel turns "2024/2025" into "2025/2026".
func nextYearLabel(label string) (string, error) {
	if !yearLabelPattern.MatchString(label) {
		return "", fmt.Errorf("malformed year label %q", label)
	}
	first, _ := strconv.Atoi(label[:4])
	return fmt.Sprintf("%d/%d", first+1, first+2), nil
}
