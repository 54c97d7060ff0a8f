package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ucaes/academic-engine/internal/models"
	"github.com/ucaes/academic-engine/pkg/config"
	appErrors "github.com/ucaes/academic-engine/pkg/errors"
)

type mockProgressRepo struct {
	records     map[string]*models.StudentProgress
	rules       map[models.Track]*models.ProgressionRule
	completions []models.PeriodCompletion
	closedOut   map[string]string
	statuses    map[string]models.ProgressionStatus
}

func (m *mockProgressRepo) key(studentID, yearLabel string) string {
	return studentID + "|" + yearLabel
}

func (m *mockProgressRepo) FindByStudentAndYear(ctx context.Context, studentID, yearLabel string) (*models.StudentProgress, error) {
	if record, ok := m.records[m.key(studentID, yearLabel)]; ok {
		return record, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockProgressRepo) ListOpenForYear(ctx context.Context, yearLabel string) ([]models.StudentProgress, error) {
	var result []models.StudentProgress
	for _, record := range m.records {
		if record.YearLabel == yearLabel && record.Status != models.ProgressionProgressed {
			result = append(result, *record)
		}
	}
	return result, nil
}

func (m *mockProgressRepo) Create(ctx context.Context, progress *models.StudentProgress) error {
	if m.records == nil {
		m.records = make(map[string]*models.StudentProgress)
	}
	progress.ID = "prog-" + progress.StudentID
	m.records[m.key(progress.StudentID, progress.YearLabel)] = progress
	return nil
}

func (m *mockProgressRepo) AddCompletion(ctx context.Context, completion *models.PeriodCompletion) error {
	m.completions = append(m.completions, *completion)
	return nil
}

func (m *mockProgressRepo) UpdateStatus(ctx context.Context, id string, status models.ProgressionStatus) error {
	if m.statuses == nil {
		m.statuses = make(map[string]models.ProgressionStatus)
	}
	m.statuses[id] = status
	return nil
}

func (m *mockProgressRepo) CloseOut(ctx context.Context, id, newLevel string) error {
	if m.closedOut == nil {
		m.closedOut = make(map[string]string)
	}
	m.closedOut[id] = newLevel
	return nil
}

func (m *mockProgressRepo) GetRule(ctx context.Context, track models.Track) (*models.ProgressionRule, error) {
	if rule, ok := m.rules[track]; ok {
		return rule, nil
	}
	return nil, sql.ErrNoRows
}

type mockRegistrationLeveler struct {
	regs   map[string]*models.Registration
	levels map[string]string
	failID string
}

func (m *mockRegistrationLeveler) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	if reg, ok := m.regs[id]; ok {
		return reg, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRegistrationLeveler) UpdateLevel(ctx context.Context, id, level string) error {
	if id == m.failID {
		return errors.New("registration row locked")
	}
	if m.levels == nil {
		m.levels = make(map[string]string)
	}
	m.levels[id] = level
	return nil
}

type mockBatchRuns struct {
	runs     []*models.TransitionRun
	finished map[string]models.TransitionRunStatus
}

func (m *mockBatchRuns) CreateRun(ctx context.Context, run *models.TransitionRun) error {
	run.ID = "batch-run-1"
	m.runs = append(m.runs, run)
	return nil
}

func (m *mockBatchRuns) FinishRun(ctx context.Context, id string, status models.TransitionRunStatus, runErr error) error {
	if m.finished == nil {
		m.finished = make(map[string]models.TransitionRunStatus)
	}
	m.finished[id] = status
	return nil
}

func progressWithCompletions(studentID, level string, completed int) *models.StudentProgress {
	record := &models.StudentProgress{
		ID:           "prog-" + studentID,
		StudentID:    studentID,
		YearLabel:    "2024/2025",
		CurrentLevel: level,
		EntryLevel:   models.LevelEntry,
		Track:        models.TrackRegular,
		Status:       models.ProgressionNotEligible,
	}
	for i := 0; i < completed; i++ {
		record.Completions = append(record.Completions, models.PeriodCompletion{
			Status: models.PeriodCompletionStatusCompleted,
		})
	}
	return record
}

func newTestProgression(progress *mockProgressRepo, levels *mockRegistrationLeveler, runs *mockBatchRuns) *ProgressionService {
	if levels == nil {
		levels = &mockRegistrationLeveler{}
	}
	if runs == nil {
		runs = &mockBatchRuns{}
	}
	cfg := config.ProgressionConfig{DefaultRequiredPeriods: 2, LevelStep: 100, MaxLevel: 400}
	return NewProgressionService(progress, levels, runs, cfg, zap.NewNop())
}

func TestEvaluateThreshold(t *testing.T) {
	rule := models.ProgressionRule{RequiredPeriods: 2, LevelStep: 100, MaxLevel: 400}
	now := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	eligible, reason := Evaluate(progressWithCompletions("s1", "100", 1), rule, now, true)
	assert.False(t, eligible)
	assert.Equal(t, SkipReasonBelowThreshold, reason)

	eligible, reason = Evaluate(progressWithCompletions("s1", "100", 2), rule, now, true)
	assert.True(t, eligible)
	assert.Empty(t, reason)

	eligible, reason = Evaluate(progressWithCompletions("s1", "100", 3), rule, now, true)
	assert.True(t, eligible)
	assert.Empty(t, reason)
}

func TestEvaluateMaxLevelNeverEligible(t *testing.T) {
	rule := models.ProgressionRule{RequiredPeriods: 2, LevelStep: 100, MaxLevel: 400}
	now := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	eligible, reason := Evaluate(progressWithCompletions("s1", "400", 5), rule, now, true)
	assert.False(t, eligible)
	assert.Equal(t, SkipReasonAtMaxLevel, reason)
}

func TestEvaluateWindow(t *testing.T) {
	rule := models.ProgressionRule{RequiredPeriods: 2, LevelStep: 100, MaxLevel: 400, WindowMonth: 9, WindowDay: 1}
	record := progressWithCompletions("s1", "100", 2)

	eligible, reason := Evaluate(record, rule, time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC), false)
	assert.False(t, eligible)
	assert.Equal(t, SkipReasonWindowClosed, reason)

	eligible, _ = Evaluate(record, rule, time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC), false)
	assert.True(t, eligible)

	// The batch after a year transition ignores the window.
	eligible, _ = Evaluate(record, rule, time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC), true)
	assert.True(t, eligible)
}

func TestNextLevelProjection(t *testing.T) {
	rule := models.ProgressionRule{LevelStep: 100, MaxLevel: 400}

	next, ok := NextLevel("100", rule)
	require.True(t, ok)
	assert.Equal(t, "200", next)

	next, ok = NextLevel("300", rule)
	require.True(t, ok)
	assert.Equal(t, "400", next)

	_, ok = NextLevel("400", rule)
	assert.False(t, ok)

	_, ok = NextLevel("graduate", rule)
	assert.False(t, ok)
}

func TestIsEligibleMarksRecord(t *testing.T) {
	progress := &mockProgressRepo{records: map[string]*models.StudentProgress{}}
	record := progressWithCompletions("s1", "100", 2)
	progress.records[progress.key("s1", "2024/2025")] = record
	svc := newTestProgression(progress, nil, nil)

	result, err := svc.IsEligible(context.Background(), "s1", "2024/2025")
	require.NoError(t, err)
	assert.True(t, result.Eligible)
	assert.Equal(t, "200", result.NextLevel)
	assert.Equal(t, 2, result.CompletedPeriods)
	assert.Equal(t, models.ProgressionEligible, progress.statuses["prog-s1"])
}

func TestRunBatchMixedOutcomes(t *testing.T) {
	progress := &mockProgressRepo{records: map[string]*models.StudentProgress{}}
	for _, record := range []*models.StudentProgress{
		progressWithCompletions("s1", "100", 2), // progresses
		progressWithCompletions("s2", "100", 1), // below threshold
		progressWithCompletions("s3", "400", 2), // at max level
		progressWithCompletions("s4", "200", 2), // update fails
	} {
		progress.records[progress.key(record.StudentID, record.YearLabel)] = record
	}
	levels := &mockRegistrationLeveler{failID: "s4"}
	runs := &mockBatchRuns{}
	svc := newTestProgression(progress, levels, runs)

	summary, err := svc.RunBatch(context.Background(), "2024/2025", "scheduler")
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 1, summary.Progressed)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 1, summary.Errored)

	assert.Equal(t, "200", levels.levels["s1"])
	assert.Equal(t, "200", progress.closedOut["prog-s1"])
	// The failed student's record stays open for a re-run.
	assert.NotContains(t, progress.closedOut, "prog-s4")

	require.Len(t, runs.runs, 1)
	assert.Equal(t, models.TransitionKindProgressionBatch, runs.runs[0].Kind)
	assert.Equal(t, models.TransitionRunFinished, runs.finished["batch-run-1"])
}

func TestRecordCompletionCreatesRecord(t *testing.T) {
	progress := &mockProgressRepo{records: map[string]*models.StudentProgress{}}
	levels := &mockRegistrationLeveler{regs: map[string]*models.Registration{
		"s1": {ID: "s1", Level: models.LevelEntry, Track: models.TrackRegular},
	}}
	svc := newTestProgression(progress, levels, nil)

	record, err := svc.RecordCompletion(context.Background(), RecordCompletionInput{
		StudentID:        "s1",
		YearLabel:        "2025/2026",
		PeriodName:       "First Semester",
		CreditsEarned:    18,
		CreditsAttempted: 18,
		GradeMetric:      3.2,
	})
	require.NoError(t, err)
	assert.Equal(t, models.LevelEntry, record.CurrentLevel)
	require.Len(t, progress.completions, 1)
	assert.Equal(t, "First Semester", progress.completions[0].PeriodName)
}

func TestRecordCompletionSeedsFromRegistration(t *testing.T) {
	progress := &mockProgressRepo{records: map[string]*models.StudentProgress{}}
	levels := &mockRegistrationLeveler{regs: map[string]*models.Registration{
		"s1": {ID: "s1", Level: "300", Track: models.TrackWeekend},
	}}
	svc := newTestProgression(progress, levels, nil)

	record, err := svc.RecordCompletion(context.Background(), RecordCompletionInput{
		StudentID:  "s1",
		YearLabel:  "2025/2026",
		PeriodName: "First Semester",
	})
	require.NoError(t, err)
	// A continuing student's new-year record carries their registration
	// level and track, not entry-level defaults.
	assert.Equal(t, "300", record.CurrentLevel)
	assert.Equal(t, "300", record.EntryLevel)
	assert.Equal(t, models.TrackWeekend, record.Track)
}

func TestRecordCompletionUnknownRegistration(t *testing.T) {
	progress := &mockProgressRepo{records: map[string]*models.StudentProgress{}}
	svc := newTestProgression(progress, &mockRegistrationLeveler{}, nil)

	_, err := svc.RecordCompletion(context.Background(), RecordCompletionInput{
		StudentID:  "ghost",
		YearLabel:  "2025/2026",
		PeriodName: "First Semester",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestRecordCompletionFlipsEligible(t *testing.T) {
	progress := &mockProgressRepo{records: map[string]*models.StudentProgress{}}
	record := progressWithCompletions("s1", "100", 1)
	progress.records[progress.key("s1", "2024/2025")] = record
	svc := newTestProgression(progress, nil, nil)

	updated, err := svc.RecordCompletion(context.Background(), RecordCompletionInput{
		StudentID:  "s1",
		YearLabel:  "2024/2025",
		PeriodName: "Second Semester",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProgressionEligible, updated.Status)
	assert.Equal(t, models.ProgressionEligible, progress.statuses["prog-s1"])
}

func TestRecordCompletionRejectsClosedRecord(t *testing.T) {
	progress := &mockProgressRepo{records: map[string]*models.StudentProgress{}}
	record := progressWithCompletions("s1", "200", 2)
	record.Status = models.ProgressionProgressed
	progress.records[progress.key("s1", "2024/2025")] = record
	svc := newTestProgression(progress, nil, nil)

	_, err := svc.RecordCompletion(context.Background(), RecordCompletionInput{
		StudentID:  "s1",
		YearLabel:  "2024/2025",
		PeriodName: "Extra",
	})
	assert.Error(t, err)
}
