package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ucaes/academic-engine/internal/models"
	"github.com/ucaes/academic-engine/pkg/config"
	appErrors "github.com/ucaes/academic-engine/pkg/errors"
)

// Skip reasons recorded on batch items so a registrar can read why a student
// stayed at their level.
const (
	SkipReasonBelowThreshold = "insufficient completed periods"
	SkipReasonAtMaxLevel     = "already at final level"
	SkipReasonWindowClosed   = "progression window not open"
)

type progressStore interface {
	FindByStudentAndYear(ctx context.Context, studentID, yearLabel string) (*models.StudentProgress, error)
	ListOpenForYear(ctx context.Context, yearLabel string) ([]models.StudentProgress, error)
	Create(ctx context.Context, progress *models.StudentProgress) error
	AddCompletion(ctx context.Context, completion *models.PeriodCompletion) error
	UpdateStatus(ctx context.Context, id string, status models.ProgressionStatus) error
	CloseOut(ctx context.Context, id, newLevel string) error
	GetRule(ctx context.Context, track models.Track) (*models.ProgressionRule, error)
}

type registrationLeveler interface {
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	UpdateLevel(ctx context.Context, id, level string) error
}

type batchRunRecorder interface {
	CreateRun(ctx context.Context, run *models.TransitionRun) error
	FinishRun(ctx context.Context, id string, status models.TransitionRunStatus, runErr error) error
}

// ProgressionService decides per-student level advancement. The decision
// itself is pure; the service wraps it with rule lookup, the yearly batch and
// completion bookkeeping.
type ProgressionService struct {
	progress      progressStore
	registrations registrationLeveler
	runs          batchRunRecorder
	defaults      models.ProgressionRule
	validate      *validator.Validate
	logger        *zap.Logger
	now           func() time.Time
}

// NewProgressionService creates a progression service. cfg supplies the
// fallback rule used when a track has no rule row.
func NewProgressionService(progress progressStore, registrations registrationLeveler, runs batchRunRecorder, cfg config.ProgressionConfig, logger *zap.Logger) *ProgressionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := models.ProgressionRule{
		RequiredPeriods: cfg.DefaultRequiredPeriods,
		LevelStep:       cfg.LevelStep,
		MaxLevel:        cfg.MaxLevel,
	}
	if defaults.RequiredPeriods <= 0 {
		defaults.RequiredPeriods = 2
	}
	if defaults.LevelStep <= 0 {
		defaults.LevelStep = 100
	}
	if defaults.MaxLevel <= 0 {
		defaults.MaxLevel = 400
	}
	return &ProgressionService{
		progress:      progress,
		registrations: registrations,
		runs:          runs,
		defaults:      defaults,
		validate:      validator.New(),
		logger:        logger,
		now:           time.Now,
	}
}

// EligibilityResult is the answer to "can this student advance".
type EligibilityResult struct {
	StudentID        string `json:"student_id"`
	YearLabel        string `json:"year_label"`
	Eligible         bool   `json:"eligible"`
	Reason           string `json:"reason,omitempty"`
	CompletedPeriods int    `json:"completed_periods"`
	RequiredPeriods  int    `json:"required_periods"`
	CurrentLevel     string `json:"current_level"`
	NextLevel        string `json:"next_level,omitempty"`
}

// RecordCompletionInput registers one finished teaching period for a student.
type RecordCompletionInput struct {
	StudentID        string  `json:"student_id" validate:"required"`
	YearLabel        string  `json:"year_label" validate:"required"`
	PeriodName       string  `json:"period_name" validate:"required"`
	CreditsEarned    int     `json:"credits_earned" validate:"min=0"`
	CreditsAttempted int     `json:"credits_attempted" validate:"min=0"`
	GradeMetric      float64 `json:"grade_metric" validate:"min=0"`
}

// Evaluate is the pure progression decision. It never touches storage:
// callers resolve the rule first, and the batch reuses the exact same logic.
func Evaluate(progress *models.StudentProgress, rule models.ProgressionRule, now time.Time, ignoreWindow bool) (bool, string) {
	if progress.CompletedPeriods() < rule.RequiredPeriods {
		return false, SkipReasonBelowThreshold
	}
	if _, ok := NextLevel(progress.CurrentLevel, rule); !ok {
		return false, SkipReasonAtMaxLevel
	}
	if !ignoreWindow && rule.WindowMonth > 0 {
		window := time.Date(now.Year(), time.Month(rule.WindowMonth), rule.WindowDay, 0, 0, 0, 0, time.UTC)
		if now.Before(window) {
			return false, SkipReasonWindowClosed
		}
	}
	return true, ""
}

// NextLevel projects the level after one advancement step. ok is false at or
// above the final level, or when the level is not numeric.
func NextLevel(current string, rule models.ProgressionRule) (string, bool) {
	level, err := strconv.Atoi(current)
	if err != nil {
		return "", false
	}
	next := level + rule.LevelStep
	if next > rule.MaxLevel {
		return "", false
	}
	return strconv.Itoa(next), true
}

// IsEligible evaluates one student against the current rule for their track.
func (s *ProgressionService) IsEligible(ctx context.Context, studentID, yearLabel string) (*EligibilityResult, error) {
	progress, err := s.progress.FindByStudentAndYear(ctx, studentID, yearLabel)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no progress record for this student and year")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress record")
	}

	rule := s.ruleFor(ctx, progress.Track)
	eligible, reason := Evaluate(progress, rule, s.now().UTC(), false)

	result := &EligibilityResult{
		StudentID:        progress.StudentID,
		YearLabel:        progress.YearLabel,
		Eligible:         eligible,
		Reason:           reason,
		CompletedPeriods: progress.CompletedPeriods(),
		RequiredPeriods:  rule.RequiredPeriods,
		CurrentLevel:     progress.CurrentLevel,
	}
	if next, ok := NextLevel(progress.CurrentLevel, rule); ok {
		result.NextLevel = next
	}

	if eligible && progress.Status == models.ProgressionNotEligible {
		if err := s.progress.UpdateStatus(ctx, progress.ID, models.ProgressionEligible); err != nil {
			s.logger.Warn("failed to mark progress record eligible",
				zap.String("progress_id", progress.ID), zap.Error(err))
		}
	}
	return result, nil
}

// RecordCompletion appends a finished period to a student's year record,
// creating the record on first contact. It re-evaluates eligibility so the
// status flips as soon as the threshold is crossed.
func (s *ProgressionService) RecordCompletion(ctx context.Context, input RecordCompletionInput) (*models.StudentProgress, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid completion payload")
	}

	progress, err := s.progress.FindByStudentAndYear(ctx, input.StudentID, input.YearLabel)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress record")
		}
		// First contact for this year: seed the record from the registration
		// so continuing students keep their level and track.
		reg, regErr := s.registrations.FindByID(ctx, input.StudentID)
		if regErr != nil {
			if errors.Is(regErr, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "no registration for this student")
			}
			return nil, appErrors.Wrap(regErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
		}
		progress = &models.StudentProgress{
			StudentID:    input.StudentID,
			YearLabel:    input.YearLabel,
			CurrentLevel: reg.Level,
			EntryLevel:   reg.Level,
			Track:        reg.Track,
			Status:       models.ProgressionNotEligible,
		}
		if err := s.progress.Create(ctx, progress); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create progress record")
		}
	}

	if progress.Status == models.ProgressionProgressed {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "progress record is already closed out")
	}

	completion := &models.PeriodCompletion{
		ProgressID:       progress.ID,
		PeriodName:       input.PeriodName,
		Status:           models.PeriodCompletionStatusCompleted,
		CreditsEarned:    input.CreditsEarned,
		CreditsAttempted: input.CreditsAttempted,
		GradeMetric:      input.GradeMetric,
	}
	if err := s.progress.AddCompletion(ctx, completion); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record completion")
	}
	progress.Completions = append(progress.Completions, *completion)

	rule := s.ruleFor(ctx, progress.Track)
	if eligible, _ := Evaluate(progress, rule, s.now().UTC(), true); eligible && progress.Status != models.ProgressionEligible {
		if err := s.progress.UpdateStatus(ctx, progress.ID, models.ProgressionEligible); err != nil {
			s.logger.Warn("failed to mark progress record eligible",
				zap.String("progress_id", progress.ID), zap.Error(err))
		} else {
			progress.Status = models.ProgressionEligible
		}
	}
	return progress, nil
}

// RunBatch advances every eligible student of a closed year by one level. A
// single student's failure lands in the summary as errored and the batch
// keeps going. The run is recorded so the guard blocks a concurrent year
// transition.
func (s *ProgressionService) RunBatch(ctx context.Context, yearLabel, actor string) (*models.StudentBatchSummary, error) {
	run := &models.TransitionRun{Kind: models.TransitionKindProgressionBatch, TargetID: yearLabel, Actor: actor}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record progression batch run")
	}

	records, err := s.progress.ListOpenForYear(ctx, yearLabel)
	if err != nil {
		s.settleRun(ctx, run.ID, models.TransitionRunFailed, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list progress records")
	}

	summary := &models.StudentBatchSummary{}
	now := s.now().UTC()

	for i := range records {
		record := &records[i]
		rule := s.ruleFor(ctx, record.Track)

		eligible, reason := Evaluate(record, rule, now, true)
		if !eligible {
			summary.Add(models.StudentBatchItem{
				StudentID: record.StudentID,
				FromLevel: record.CurrentLevel,
				Outcome:   models.BatchOutcomeSkipped,
				Reason:    reason,
			})
			continue
		}

		next, _ := NextLevel(record.CurrentLevel, rule)
		if err := s.advance(ctx, record, next); err != nil {
			s.logger.Error("student progression failed",
				zap.String("student_id", record.StudentID), zap.Error(err))
			summary.Add(models.StudentBatchItem{
				StudentID: record.StudentID,
				FromLevel: record.CurrentLevel,
				ToLevel:   next,
				Outcome:   models.BatchOutcomeErrored,
				Reason:    err.Error(),
			})
			continue
		}

		summary.Add(models.StudentBatchItem{
			StudentID: record.StudentID,
			FromLevel: record.CurrentLevel,
			ToLevel:   next,
			Outcome:   models.BatchOutcomeProgressed,
		})
	}

	s.settleRun(ctx, run.ID, models.TransitionRunFinished, nil)
	s.logger.Info("progression batch finished",
		zap.String("year", yearLabel),
		zap.Int("total", summary.Total),
		zap.Int("progressed", summary.Progressed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errored", summary.Errored))
	return summary, nil
}

// advance closes out the progress record and moves the registration level.
// The registration update runs first so a failure leaves the record open for
// a re-run instead of a closed record with a stale level.
func (s *ProgressionService) advance(ctx context.Context, record *models.StudentProgress, next string) error {
	if err := s.registrations.UpdateLevel(ctx, record.StudentID, next); err != nil {
		return fmt.Errorf("update registration level: %w", err)
	}
	if err := s.progress.CloseOut(ctx, record.ID, next); err != nil {
		return fmt.Errorf("close out progress record: %w", err)
	}
	return nil
}

func (s *ProgressionService) ruleFor(ctx context.Context, track models.Track) models.ProgressionRule {
	rule, err := s.progress.GetRule(ctx, track)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to load progression rule, using defaults",
				zap.String("track", string(track)), zap.Error(err))
		}
		fallback := s.defaults
		fallback.Track = track
		return fallback
	}
	return *rule
}

func (s *ProgressionService) settleRun(ctx context.Context, id string, status models.TransitionRunStatus, runErr error) {
	if err := s.runs.FinishRun(ctx, id, status, runErr); err != nil {
		s.logger.Error("failed to settle progression batch run", zap.String("run_id", id), zap.Error(err))
	}
}
