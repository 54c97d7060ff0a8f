package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ucaes/academic-engine/internal/models"
	appErrors "github.com/ucaes/academic-engine/pkg/errors"
)

type mockRunCounter struct {
	running map[models.TransitionKind]int
}

func (m *mockRunCounter) CountRunning(ctx context.Context, kind models.TransitionKind) (int, error) {
	return m.running[kind], nil
}

type mockGuardYearRepo struct {
	years       map[string]*models.AcademicYear
	activeCount int
}

func (m *mockGuardYearRepo) FindByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	if year, ok := m.years[id]; ok {
		return year, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGuardYearRepo) CountActive(ctx context.Context) (int, error) {
	return m.activeCount, nil
}

type mockGuardSemesterRepo struct {
	semesters map[string]*models.AcademicSemester
}

func (m *mockGuardSemesterRepo) FindByID(ctx context.Context, id string) (*models.AcademicSemester, error) {
	if sem, ok := m.semesters[id]; ok {
		return sem, nil
	}
	return nil, sql.ErrNoRows
}

func newTestGuard(runs *mockRunCounter, years *mockGuardYearRepo, semesters *mockGuardSemesterRepo) *GuardService {
	if runs == nil {
		runs = &mockRunCounter{}
	}
	if years == nil {
		years = &mockGuardYearRepo{activeCount: 1}
	}
	if semesters == nil {
		semesters = &mockGuardSemesterRepo{}
	}
	return NewGuardService(runs, years, semesters, zap.NewNop())
}

func TestGuardAllowsIdleTransition(t *testing.T) {
	semesters := &mockGuardSemesterRepo{semesters: map[string]*models.AcademicSemester{
		"sem-2": {ID: "sem-2", Status: models.PeriodStatusUpcoming},
	}}
	guard := newTestGuard(nil, nil, semesters)

	err := guard.CanTransition(context.Background(), models.TransitionKindSemester, "sem-2")
	assert.NoError(t, err)
}

func TestGuardBlocksOverlappingRun(t *testing.T) {
	runs := &mockRunCounter{running: map[models.TransitionKind]int{models.TransitionKindSemester: 1}}
	guard := newTestGuard(runs, nil, nil)

	err := guard.CanTransition(context.Background(), models.TransitionKindSemester, "")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, ErrTransitionBlocked))
	assert.Contains(t, err.Error(), DenyTransitionInProgress)
}

func TestGuardBlocksCompletedTarget(t *testing.T) {
	years := &mockGuardYearRepo{
		activeCount: 1,
		years: map[string]*models.AcademicYear{
			"year-old": {ID: "year-old", Status: models.PeriodStatusCompleted},
		},
	}
	guard := newTestGuard(nil, years, nil)

	err := guard.CanTransition(context.Background(), models.TransitionKindYear, "year-old")
	require.Error(t, err)
	assert.Contains(t, err.Error(), DenyTargetCompleted)
}

func TestGuardBlocksYearTransitionDuringProgressionBatch(t *testing.T) {
	runs := &mockRunCounter{running: map[models.TransitionKind]int{models.TransitionKindProgressionBatch: 1}}
	years := &mockGuardYearRepo{
		activeCount: 1,
		years: map[string]*models.AcademicYear{
			"year-next": {ID: "year-next", Status: models.PeriodStatusUpcoming},
		},
	}
	guard := newTestGuard(runs, years, nil)

	err := guard.CanTransition(context.Background(), models.TransitionKindYear, "year-next")
	require.Error(t, err)
	assert.Contains(t, err.Error(), DenyProgressionBatchRunning)
}

func TestGuardMissingTarget(t *testing.T) {
	guard := newTestGuard(nil, nil, nil)

	err := guard.CanTransition(context.Background(), models.TransitionKindSemester, "nope")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestGuardSingleActiveYearInvariant(t *testing.T) {
	guard := newTestGuard(nil, &mockGuardYearRepo{activeCount: 2}, nil)

	err := guard.CheckSingleActiveYear(context.Background())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvariant))

	guard = newTestGuard(nil, &mockGuardYearRepo{activeCount: 1}, nil)
	assert.NoError(t, guard.CheckSingleActiveYear(context.Background()))
}
