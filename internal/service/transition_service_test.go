package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ucaes/academic-engine/internal/models"
	"github.com/ucaes/academic-engine/internal/repository"
	appErrors "github.com/ucaes/academic-engine/pkg/errors"
)

type mockPointerRepo struct {
	pointer *models.PeriodPointer
}

func (m *mockPointerRepo) Get(ctx context.Context) (*models.PeriodPointer, error) {
	if m.pointer == nil {
		return nil, sql.ErrNoRows
	}
	copied := *m.pointer
	return &copied, nil
}

type mockTransitionYearRepo struct {
	byID    map[string]*models.AcademicYear
	byLabel map[string]*models.AcademicYear
	created []*models.AcademicYear
}

func (m *mockTransitionYearRepo) FindByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	if year, ok := m.byID[id]; ok {
		return year, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTransitionYearRepo) FindByLabel(ctx context.Context, label string) (*models.AcademicYear, error) {
	if year, ok := m.byLabel[label]; ok {
		return year, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTransitionYearRepo) Create(ctx context.Context, year *models.AcademicYear) error {
	year.ID = "year-created"
	m.created = append(m.created, year)
	if m.byLabel == nil {
		m.byLabel = make(map[string]*models.AcademicYear)
	}
	m.byLabel[year.Label] = year
	return nil
}

type mockTransitionSemesterRepo struct {
	byID   map[string]*models.AcademicSemester
	byYear map[string][]*models.AcademicSemester
}

func (m *mockTransitionSemesterRepo) FindByID(ctx context.Context, id string) (*models.AcademicSemester, error) {
	if sem, ok := m.byID[id]; ok {
		return sem, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTransitionSemesterRepo) FindByYearNumberTrack(ctx context.Context, yearID string, number int, track models.Track) (*models.AcademicSemester, error) {
	for _, sem := range m.byYear[yearID] {
		if sem.Number == number && sem.Track == track {
			return sem, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockTransitionSemesterRepo) FindFirstOfYear(ctx context.Context, yearID string, track models.Track) (*models.AcademicSemester, error) {
	var first *models.AcademicSemester
	for _, sem := range m.byYear[yearID] {
		if sem.Track != track {
			continue
		}
		if first == nil || sem.Number < first.Number {
			first = sem
		}
	}
	if first == nil {
		return nil, sql.ErrNoRows
	}
	return first, nil
}

type mockCommitter struct {
	semesterSwaps []repository.SemesterSwap
	yearSwaps     []repository.YearSwap
	commitErr     error
	runs          []*models.TransitionRun
	finished      map[string]models.TransitionRunStatus
}

func (m *mockCommitter) CommitSemester(ctx context.Context, swap repository.SemesterSwap) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	m.semesterSwaps = append(m.semesterSwaps, swap)
	return nil
}

func (m *mockCommitter) CommitYear(ctx context.Context, swap repository.YearSwap) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	m.yearSwaps = append(m.yearSwaps, swap)
	return nil
}

func (m *mockCommitter) CreateRun(ctx context.Context, run *models.TransitionRun) error {
	run.ID = "run-1"
	m.runs = append(m.runs, run)
	return nil
}

func (m *mockCommitter) FinishRun(ctx context.Context, id string, status models.TransitionRunStatus, runErr error) error {
	if m.finished == nil {
		m.finished = make(map[string]models.TransitionRunStatus)
	}
	m.finished[id] = status
	return nil
}

type allowAllGuard struct{}

func (allowAllGuard) CanTransition(ctx context.Context, kind models.TransitionKind, targetID string) error {
	return nil
}

func (allowAllGuard) CheckSingleActiveYear(ctx context.Context) error { return nil }

type mockInvalidator struct {
	calls int
}

func (m *mockInvalidator) InvalidatePointer(ctx context.Context) { m.calls++ }

type stubBatcher struct {
	years   []string
	summary *models.StudentBatchSummary
}

func (s *stubBatcher) RunBatch(ctx context.Context, yearLabel, actor string) (*models.StudentBatchSummary, error) {
	s.years = append(s.years, yearLabel)
	if s.summary == nil {
		s.summary = &models.StudentBatchSummary{}
	}
	return s.summary, nil
}

type transitionFixture struct {
	pointer     *mockPointerRepo
	years       *mockTransitionYearRepo
	semesters   *mockTransitionSemesterRepo
	committer   *mockCommitter
	invalidator *mockInvalidator
	batcher     *stubBatcher
	svc         *TransitionService
}

// newTransitionFixture sets up a calendar with year 2024/2025 active, two
// Regular semesters (first active, second upcoming) and the next year
// 2025/2026 upcoming with its own first semester.
func newTransitionFixture(now time.Time) *transitionFixture {
	sem1 := &models.AcademicSemester{
		ID: "sem-1", YearID: "year-1", Name: "First Semester", Number: 1,
		Track: models.TrackRegular, Status: models.PeriodStatusActive,
		StartDate: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
	}
	sem2 := &models.AcademicSemester{
		ID: "sem-2", YearID: "year-1", Name: "Second Semester", Number: 2,
		Track: models.TrackRegular, Status: models.PeriodStatusUpcoming,
		StartDate: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
	}
	nextFirst := &models.AcademicSemester{
		ID: "sem-3", YearID: "year-2", Name: "First Semester", Number: 1,
		Track: models.TrackRegular, Status: models.PeriodStatusUpcoming,
		StartDate: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
	}

	year1 := &models.AcademicYear{
		ID: "year-1", Label: "2024/2025", Status: models.PeriodStatusActive,
		StartDate: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC),
	}
	year2 := &models.AcademicYear{
		ID: "year-2", Label: "2025/2026", Status: models.PeriodStatusUpcoming,
		StartDate: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
	}

	semesterID := "sem-1"
	f := &transitionFixture{
		pointer: &mockPointerRepo{pointer: &models.PeriodPointer{
			YearID: "year-1", YearLabel: "2024/2025",
			SemesterID: &semesterID, SemesterLabel: "First Semester",
		}},
		years: &mockTransitionYearRepo{
			byID:    map[string]*models.AcademicYear{"year-1": year1, "year-2": year2},
			byLabel: map[string]*models.AcademicYear{"2024/2025": year1, "2025/2026": year2},
		},
		semesters: &mockTransitionSemesterRepo{
			byID: map[string]*models.AcademicSemester{"sem-1": sem1, "sem-2": sem2, "sem-3": nextFirst},
			byYear: map[string][]*models.AcademicSemester{
				"year-1": {sem1, sem2},
				"year-2": {nextFirst},
			},
		},
		committer:   &mockCommitter{},
		invalidator: &mockInvalidator{},
		batcher:     &stubBatcher{},
	}

	f.svc = NewTransitionService(f.pointer, f.years, f.semesters, f.committer,
		allowAllGuard{}, f.invalidator, f.batcher, nil, zap.NewNop())
	f.svc.now = func() time.Time { return now }
	return f
}

func TestSemesterTransitionNotYetDue(t *testing.T) {
	// One day before the semester's end date.
	f := newTransitionFixture(time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC))

	result, err := f.svc.TransitionSemester(context.Background(), TransitionInput{Actor: "scheduler"})
	require.NoError(t, err)
	assert.False(t, result.Performed)
	require.NotNil(t, result.NextEligible)
	assert.Equal(t, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), *result.NextEligible)
	assert.Empty(t, f.committer.semesterSwaps)
	assert.Empty(t, f.committer.runs)
}

func TestSemesterTransitionPerformsOnEndDate(t *testing.T) {
	f := newTransitionFixture(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC))

	result, err := f.svc.TransitionSemester(context.Background(), TransitionInput{Actor: "registrar"})
	require.NoError(t, err)
	assert.True(t, result.Performed)
	assert.Equal(t, "sem-2", result.Current.ID)

	require.Len(t, f.committer.semesterSwaps, 1)
	swap := f.committer.semesterSwaps[0]
	assert.Equal(t, "sem-1", swap.CurrentID)
	require.NotNil(t, swap.CandidateID)
	assert.Equal(t, "sem-2", *swap.CandidateID)
	require.NotNil(t, swap.Pointer.SemesterID)
	assert.Equal(t, "sem-2", *swap.Pointer.SemesterID)
	assert.Equal(t, "registrar", swap.Pointer.UpdatedBy)

	assert.Equal(t, models.TransitionRunFinished, f.committer.finished["run-1"])
	assert.Equal(t, 1, f.invalidator.calls)
}

func TestSemesterTransitionForcedBypassesGate(t *testing.T) {
	f := newTransitionFixture(time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC))

	result, err := f.svc.TransitionSemester(context.Background(), TransitionInput{Force: true})
	require.NoError(t, err)
	assert.True(t, result.Performed)
	assert.True(t, result.Forced)
}

// pointAtLastSemester moves the fixture's pointer to sem-2, which has no
// successor within its year.
func pointAtLastSemester(f *transitionFixture) {
	semesterID := "sem-2"
	f.pointer.pointer.SemesterID = &semesterID
	f.pointer.pointer.SemesterLabel = "Second Semester"
	f.semesters.byID["sem-2"].Status = models.PeriodStatusActive
}

func TestLastSemesterUnforcedRefused(t *testing.T) {
	f := newTransitionFixture(time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC))
	pointAtLastSemester(f)

	_, err := f.svc.TransitionSemester(context.Background(), TransitionInput{})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))
	assert.Empty(t, f.committer.semesterSwaps)
	assert.Empty(t, f.committer.runs)
}

func TestLastSemesterMissingCandidateBeatsTimingGate(t *testing.T) {
	// Well before the end date a missing next semester still surfaces as a
	// precondition failure, not as "not yet due".
	f := newTransitionFixture(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	pointAtLastSemester(f)

	_, err := f.svc.TransitionSemester(context.Background(), TransitionInput{})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))
}

func TestLastSemesterForcedLeavesPointerWithoutSemester(t *testing.T) {
	f := newTransitionFixture(time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC))
	pointAtLastSemester(f)

	result, err := f.svc.TransitionSemester(context.Background(), TransitionInput{Force: true})
	require.NoError(t, err)
	assert.True(t, result.Performed)
	assert.Contains(t, result.Message, "year transition")

	require.Len(t, f.committer.semesterSwaps, 1)
	swap := f.committer.semesterSwaps[0]
	assert.Nil(t, swap.CandidateID)
	assert.Nil(t, swap.Pointer.SemesterID)
	assert.Equal(t, "2024/2025", swap.Pointer.YearLabel)
}

func TestSemesterTransitionNeedsActiveSemester(t *testing.T) {
	// A pointer without a semester refuses even when forced; the way out of
	// that state is a year transition.
	f := newTransitionFixture(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC))
	f.pointer.pointer.SemesterID = nil
	f.pointer.pointer.SemesterLabel = ""

	_, err := f.svc.TransitionSemester(context.Background(), TransitionInput{Force: true})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))
	assert.Empty(t, f.committer.semesterSwaps)
}

func TestYearTransitionNotYetDue(t *testing.T) {
	f := newTransitionFixture(time.Date(2025, 8, 30, 0, 0, 0, 0, time.UTC))

	result, err := f.svc.TransitionYear(context.Background(), TransitionInput{})
	require.NoError(t, err)
	assert.False(t, result.Performed)
	require.NotNil(t, result.NextEligible)
	assert.Equal(t, time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC), *result.NextEligible)
	assert.Empty(t, f.committer.yearSwaps)
}

func TestYearTransitionAdvancesAndRunsBatch(t *testing.T) {
	f := newTransitionFixture(time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC))
	f.batcher.summary = &models.StudentBatchSummary{Total: 3, Progressed: 2, Skipped: 1}

	result, err := f.svc.TransitionYear(context.Background(), TransitionInput{Actor: "scheduler"})
	require.NoError(t, err)
	assert.True(t, result.Performed)
	assert.Equal(t, "year-2", result.Current.ID)
	assert.Equal(t, "2025/2026", result.Current.Label)

	require.Len(t, f.committer.yearSwaps, 1)
	swap := f.committer.yearSwaps[0]
	assert.Equal(t, "year-1", swap.CurrentYearID)
	assert.Equal(t, "year-2", swap.NextYearID)
	require.NotNil(t, swap.FirstSemesterID)
	assert.Equal(t, "sem-3", *swap.FirstSemesterID)
	assert.Equal(t, "2025/2026", swap.Pointer.YearLabel)

	// The level batch runs against the closed year.
	assert.Equal(t, []string{"2024/2025"}, f.batcher.years)
	require.NotNil(t, result.Batch)
	assert.Equal(t, 2, result.Batch.Progressed)
	assert.Equal(t, 1, f.invalidator.calls)
}

func TestYearTransitionMissingNextYearUnforced(t *testing.T) {
	f := newTransitionFixture(time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC))
	delete(f.years.byLabel, "2025/2026")

	_, err := f.svc.TransitionYear(context.Background(), TransitionInput{})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))
	assert.Empty(t, f.years.created)
}

func TestYearTransitionForcedCreatesMissingYear(t *testing.T) {
	f := newTransitionFixture(time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC))
	delete(f.years.byLabel, "2025/2026")

	result, err := f.svc.TransitionYear(context.Background(), TransitionInput{Force: true})
	require.NoError(t, err)
	assert.True(t, result.Performed)

	require.Len(t, f.years.created, 1)
	created := f.years.created[0]
	assert.Equal(t, "2025/2026", created.Label)
	assert.Equal(t, models.PeriodStatusUpcoming, created.Status)
}

// driftGuard approves transitions but reports a post-commit calendar
// violation, as a guard backed by a drifting database would.
type driftGuard struct {
	singleErr error
}

func (driftGuard) CanTransition(ctx context.Context, kind models.TransitionKind, targetID string) error {
	return nil
}

func (g driftGuard) CheckSingleActiveYear(ctx context.Context) error { return g.singleErr }

func TestYearTransitionReportsResultWithPostCommitViolation(t *testing.T) {
	f := newTransitionFixture(time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC))
	f.batcher.summary = &models.StudentBatchSummary{Total: 2, Progressed: 2}
	f.svc.guard = driftGuard{singleErr: appErrors.Clone(appErrors.ErrInvariant, "2 active academic years")}

	result, err := f.svc.TransitionYear(context.Background(), TransitionInput{Actor: "scheduler"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvariant))

	// The flip and batch committed before the check ran, so the caller still
	// gets what the transition did.
	require.NotNil(t, result)
	assert.True(t, result.Performed)
	assert.Equal(t, "year-2", result.Current.ID)
	require.NotNil(t, result.Batch)
	assert.Equal(t, 2, result.Batch.Progressed)
	assert.Equal(t, 1, f.invalidator.calls)
}

func TestSemesterTransitionCommitConflict(t *testing.T) {
	f := newTransitionFixture(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC))
	f.committer.commitErr = repository.ErrStatusConflict

	_, err := f.svc.TransitionSemester(context.Background(), TransitionInput{})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	assert.Equal(t, models.TransitionRunFailed, f.committer.finished["run-1"])
	assert.Zero(t, f.invalidator.calls)
}

func TestNextYearLabel(t *testing.T) {
	label, err := nextYearLabel("2024/2025")
	require.NoError(t, err)
	assert.Equal(t, "2025/2026", label)

	_, err = nextYearLabel("24/25")
	assert.Error(t, err)
}
