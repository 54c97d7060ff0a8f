package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ucaes/academic-engine/internal/models"
	"github.com/ucaes/academic-engine/internal/repository"
	"github.com/ucaes/academic-engine/pkg/config"
	appErrors "github.com/ucaes/academic-engine/pkg/errors"
)

type mockApplicationRepo struct {
	apps map[string]*models.Application
}

func (m *mockApplicationRepo) FindByID(ctx context.Context, id string) (*models.Application, error) {
	if app, ok := m.apps[id]; ok {
		copied := *app
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockApplicationRepo) ListApprovedUnmigrated(ctx context.Context) ([]models.Application, error) {
	var result []models.Application
	for _, app := range m.apps {
		if !app.IsApproved() {
			continue
		}
		if app.MigrationStatus != nil && *app.MigrationStatus == models.MigrationStatusCompleted {
			continue
		}
		result = append(result, *app)
	}
	return result, nil
}

func (m *mockApplicationRepo) MarkMigrated(ctx context.Context, id, registrationID string) error {
	app, ok := m.apps[id]
	if !ok {
		return sql.ErrNoRows
	}
	status := models.MigrationStatusCompleted
	now := time.Now().UTC()
	app.MigrationStatus = &status
	app.MigratedAt = &now
	app.RegistrationID = &registrationID
	app.MigrationError = nil
	return nil
}

func (m *mockApplicationRepo) MarkFailed(ctx context.Context, id, message string) error {
	app, ok := m.apps[id]
	if !ok {
		return sql.ErrNoRows
	}
	status := models.MigrationStatusFailed
	app.MigrationStatus = &status
	app.MigrationError = &message
	return nil
}

type mockRegistrationRepo struct {
	bySource map[string]*models.Registration
	created  int
}

func (m *mockRegistrationRepo) Create(ctx context.Context, reg *models.Registration) error {
	if m.bySource == nil {
		m.bySource = make(map[string]*models.Registration)
	}
	if _, exists := m.bySource[reg.SourceApplicationID]; exists {
		return repository.ErrDuplicateSource
	}
	m.created++
	reg.ID = fmt.Sprintf("reg-%d", m.created)
	reg.CreatedAt = time.Now().UTC()
	copied := *reg
	m.bySource[reg.SourceApplicationID] = &copied
	return nil
}

func (m *mockRegistrationRepo) FindBySourceApplication(ctx context.Context, applicationID string) (*models.Registration, error) {
	if reg, ok := m.bySource[applicationID]; ok {
		copied := *reg
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

type stubAllocator struct {
	next int
}

func (s *stubAllocator) Allocate(ctx context.Context, prefix string) (string, error) {
	s.next++
	return fmt.Sprintf("%s%04d", prefix, s.next), nil
}

type stubPeriodReader struct {
	pointer *models.PeriodPointer
}

func (s *stubPeriodReader) Current(ctx context.Context) (*models.PeriodPointer, error) {
	if s.pointer == nil {
		return nil, sql.ErrNoRows
	}
	return s.pointer, nil
}

func approvedApplication(id string) *models.Application {
	return &models.Application{
		ID:             id,
		OwnerUserID:    "user-" + id,
		Status:         "accepted",
		FirstName:      "Ama",
		LastName:       "Mensah",
		Email:          "ama@example.com",
		Program:        "BSc Agriculture",
		Track:          models.TrackRegular,
		EntryYearLabel: "2025/2026",
	}
}

func newTestMigration(apps *mockApplicationRepo, regs *mockRegistrationRepo) *MigrationService {
	cfg := config.Config{}
	cfg.Sequence = config.SequenceConfig{Prefix: "UCAES", Width: 4}
	cfg.Migration = config.MigrationConfig{SweepDelay: 0}
	reader := &stubPeriodReader{pointer: &models.PeriodPointer{YearID: "year-1", YearLabel: "2025/2026"}}
	return NewMigrationService(apps, regs, &stubAllocator{}, reader, nil, nil, nil, nil, cfg, zap.NewNop())
}

func TestMigrateCreatesRegistration(t *testing.T) {
	apps := &mockApplicationRepo{apps: map[string]*models.Application{"app-1": approvedApplication("app-1")}}
	regs := &mockRegistrationRepo{}
	svc := newTestMigration(apps, regs)

	result, err := svc.Migrate(context.Background(), "app-1")
	require.NoError(t, err)
	assert.False(t, result.AlreadyMigrated)
	assert.Equal(t, "UCAES20250001", result.RegistrationNumber)

	reg := regs.bySource["app-1"]
	require.NotNil(t, reg)
	assert.Equal(t, models.LevelEntry, reg.Level)
	assert.Equal(t, "2025/2026", reg.EntryYearLabel)
	assert.True(t, reg.Active)

	app := apps.apps["app-1"]
	require.NotNil(t, app.MigrationStatus)
	assert.Equal(t, models.MigrationStatusCompleted, *app.MigrationStatus)
}

func TestMigrateIsIdempotent(t *testing.T) {
	apps := &mockApplicationRepo{apps: map[string]*models.Application{"app-1": approvedApplication("app-1")}}
	regs := &mockRegistrationRepo{}
	svc := newTestMigration(apps, regs)

	first, err := svc.Migrate(context.Background(), "app-1")
	require.NoError(t, err)

	second, err := svc.Migrate(context.Background(), "app-1")
	require.NoError(t, err)
	assert.True(t, second.AlreadyMigrated)
	assert.Equal(t, first.RegistrationNumber, second.RegistrationNumber)
	assert.Equal(t, first.RegistrationID, second.RegistrationID)
	assert.Equal(t, 1, regs.created)
}

func TestMigrateDuplicateSourceRace(t *testing.T) {
	// Application not yet marked migrated, but the registration already
	// exists: a concurrent migration won the insert.
	apps := &mockApplicationRepo{apps: map[string]*models.Application{"app-1": approvedApplication("app-1")}}
	regs := &mockRegistrationRepo{bySource: map[string]*models.Registration{
		"app-1": {ID: "reg-existing", SourceApplicationID: "app-1", RegistrationNumber: "UCAES20250009"},
	}}
	svc := newTestMigration(apps, regs)

	result, err := svc.Migrate(context.Background(), "app-1")
	require.NoError(t, err)
	assert.True(t, result.AlreadyMigrated)
	assert.Equal(t, "UCAES20250009", result.RegistrationNumber)
	assert.Zero(t, regs.created)
}

func TestMigrateRejectsUnapproved(t *testing.T) {
	pending := approvedApplication("app-1")
	pending.Status = "pending"
	apps := &mockApplicationRepo{apps: map[string]*models.Application{"app-1": pending}}
	svc := newTestMigration(apps, &mockRegistrationRepo{})

	_, err := svc.Migrate(context.Background(), "app-1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))
}

func TestMigrateUnknownApplication(t *testing.T) {
	svc := newTestMigration(&mockApplicationRepo{}, &mockRegistrationRepo{})

	_, err := svc.Migrate(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestMigrateFallsBackToCurrentYear(t *testing.T) {
	app := approvedApplication("app-1")
	app.EntryYearLabel = ""
	apps := &mockApplicationRepo{apps: map[string]*models.Application{"app-1": app}}
	regs := &mockRegistrationRepo{}
	svc := newTestMigration(apps, regs)

	result, err := svc.Migrate(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, "UCAES20250001", result.RegistrationNumber)
	assert.Equal(t, "2025/2026", regs.bySource["app-1"].EntryYearLabel)
}

func TestHandleApplicationUpdateEdgeTriggered(t *testing.T) {
	apps := &mockApplicationRepo{apps: map[string]*models.Application{"app-1": approvedApplication("app-1")}}
	regs := &mockRegistrationRepo{}
	svc := newTestMigration(apps, regs)

	// Edge into approved fires the migration.
	result, triggered, err := svc.HandleApplicationUpdate(context.Background(),
		models.ApplicationSnapshot{ID: "app-1", Status: "pending"},
		models.ApplicationSnapshot{ID: "app-1", Status: "accepted"})
	require.NoError(t, err)
	assert.True(t, triggered)
	require.NotNil(t, result)
	assert.Equal(t, 1, regs.created)

	// Re-saving an already approved application does nothing.
	result, triggered, err = svc.HandleApplicationUpdate(context.Background(),
		models.ApplicationSnapshot{ID: "app-1", Status: "accepted"},
		models.ApplicationSnapshot{ID: "app-1", Status: "approved"})
	require.NoError(t, err)
	assert.False(t, triggered)
	assert.Nil(t, result)
	assert.Equal(t, 1, regs.created)
}

func TestSweepProcessesAllPending(t *testing.T) {
	done := models.MigrationStatusCompleted
	migrated := approvedApplication("app-3")
	migrated.MigrationStatus = &done

	apps := &mockApplicationRepo{apps: map[string]*models.Application{
		"app-1": approvedApplication("app-1"),
		"app-2": approvedApplication("app-2"),
		"app-3": migrated,
	}}
	regs := &mockRegistrationRepo{}
	svc := newTestMigration(apps, regs)

	summary, err := svc.Sweep(context.Background(), "scheduler")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Migrated)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, 2, regs.created)
}
