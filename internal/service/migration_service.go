package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ucaes/academic-engine/internal/models"
	"github.com/ucaes/academic-engine/internal/repository"
	"github.com/ucaes/academic-engine/pkg/config"
	appErrors "github.com/ucaes/academic-engine/pkg/errors"
)

type applicationStore interface {
	FindByID(ctx context.Context, id string) (*models.Application, error)
	ListApprovedUnmigrated(ctx context.Context) ([]models.Application, error)
	MarkMigrated(ctx context.Context, id, registrationID string) error
	MarkFailed(ctx context.Context, id, message string) error
}

type registrationStore interface {
	Create(ctx context.Context, reg *models.Registration) error
	FindBySourceApplication(ctx context.Context, applicationID string) (*models.Registration, error)
}

type numberAllocator interface {
	Allocate(ctx context.Context, prefix string) (string, error)
}

type currentPeriodReader interface {
	Current(ctx context.Context) (*models.PeriodPointer, error)
}

type identityUpserter interface {
	UpsertStudentIdentity(ctx context.Context, account *models.UserAccount) error
}

type progressCreator interface {
	Create(ctx context.Context, progress *models.StudentProgress) error
}

// notificationSender delivers the welcome notice after a migration. Delivery
// lives outside the engine; failures are logged and never fail the
// migration.
type notificationSender interface {
	SendMigrationNotice(ctx context.Context, reg *models.Registration) error
}

// MigrationService converts approved applications into permanent student
// registrations exactly once. Idempotency is enforced twice: a cheap
// pre-check on the application's migration status, and the UNIQUE constraint
// on source_application_id for the race the pre-check cannot see.
type MigrationService struct {
	applications  applicationStore
	registrations registrationStore
	sequences     numberAllocator
	periods       currentPeriodReader
	identities    identityUpserter
	progress      progressCreator
	notifier      notificationSender
	audits        auditWriter
	prefix        string
	sweepDelay    time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

// NewMigrationService creates a migration pipeline. identities, progress,
// notifier and audits may be nil.
func NewMigrationService(
	applications applicationStore,
	registrations registrationStore,
	sequences numberAllocator,
	periods currentPeriodReader,
	identities identityUpserter,
	progress progressCreator,
	notifier notificationSender,
	audits auditWriter,
	cfg config.Config,
	logger *zap.Logger,
) *MigrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MigrationService{
		applications:  applications,
		registrations: registrations,
		sequences:     sequences,
		periods:       periods,
		identities:    identities,
		progress:      progress,
		notifier:      notifier,
		audits:        audits,
		prefix:        cfg.Sequence.Prefix,
		sweepDelay:    cfg.Migration.SweepDelay,
		logger:        logger,
		now:           time.Now,
	}
}

// Migrate converts one approved application into a registration. Calling it
// again for the same application returns the existing registration with
// AlreadyMigrated set; it never creates a second record.
func (s *MigrationService) Migrate(ctx context.Context, applicationID string) (*models.MigrationResult, error) {
	app, err := s.applications.FindByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}

	if !app.IsApproved() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("application status %q is not approved", app.Status))
	}

	if app.MigrationStatus != nil && *app.MigrationStatus == models.MigrationStatusCompleted {
		return s.existingResult(ctx, app)
	}

	entryYear, err := s.resolveEntryYear(ctx, app)
	if err != nil {
		return nil, err
	}

	number, err := s.sequences.Allocate(ctx, s.prefix+entryYearDigits(entryYear))
	if err != nil {
		s.fail(ctx, app.ID, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate registration number")
	}

	reg := mapApplicationToRegistration(app, number, entryYear)
	if err := s.registrations.Create(ctx, reg); err != nil {
		if errors.Is(err, repository.ErrDuplicateSource) {
			// Lost the race to a concurrent migration of the same
			// application; the winner's registration is the answer.
			return s.existingResult(ctx, app)
		}
		s.fail(ctx, app.ID, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create registration")
	}

	if err := s.applications.MarkMigrated(ctx, app.ID, reg.ID); err != nil {
		// The registration exists; the unique constraint keeps a retry
		// from duplicating it, so log instead of unwinding.
		s.logger.Error("failed to mark application migrated",
			zap.String("application_id", app.ID), zap.Error(err))
	}

	s.afterMigration(ctx, app, reg)

	s.logger.Info("application migrated",
		zap.String("application_id", app.ID),
		zap.String("registration_id", reg.ID),
		zap.String("registration_number", reg.RegistrationNumber))

	return &models.MigrationResult{
		ApplicationID:      app.ID,
		RegistrationID:     reg.ID,
		RegistrationNumber: reg.RegistrationNumber,
		AlreadyMigrated:    false,
		MigratedAt:         reg.CreatedAt,
	}, nil
}

// Sweep migrates every approved, unmigrated application serially with a
// pause between items. One application's failure is recorded and the sweep
// moves on.
func (s *MigrationService) Sweep(ctx context.Context, actor string) (*models.SweepSummary, error) {
	apps, err := s.applications.ListApprovedUnmigrated(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending applications")
	}

	summary := &models.SweepSummary{}
	for i, app := range apps {
		if i > 0 && s.sweepDelay > 0 {
			select {
			case <-ctx.Done():
				return summary, ctx.Err()
			case <-time.After(s.sweepDelay):
			}
		}

		result, err := s.Migrate(ctx, app.ID)
		switch {
		case err != nil:
			summary.Add(models.SweepItem{
				ApplicationID: app.ID,
				Outcome:       models.SweepOutcomeFailed,
				Reason:        err.Error(),
			})
		case result.AlreadyMigrated:
			summary.Add(models.SweepItem{
				ApplicationID:      app.ID,
				RegistrationNumber: result.RegistrationNumber,
				Outcome:            models.SweepOutcomeSkipped,
				Reason:             "already migrated",
			})
		default:
			summary.Add(models.SweepItem{
				ApplicationID:      app.ID,
				RegistrationNumber: result.RegistrationNumber,
				Outcome:            models.SweepOutcomeMigrated,
			})
		}
	}

	s.auditSweep(ctx, actor, summary)
	s.logger.Info("migration sweep finished",
		zap.Int("total", summary.Total),
		zap.Int("migrated", summary.Migrated),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

// HandleApplicationUpdate reacts to a status change pushed by the admissions
// workflow. The migration fires only on the edge into an approved status;
// repeated saves of an already approved application do nothing here, the
// sweep covers any missed edge.
func (s *MigrationService) HandleApplicationUpdate(ctx context.Context, before, after models.ApplicationSnapshot) (*models.MigrationResult, bool, error) {
	wasApproved := models.IsApprovedStatus(before.Status)
	isApproved := models.IsApprovedStatus(after.Status)
	if wasApproved || !isApproved {
		return nil, false, nil
	}

	result, err := s.Migrate(ctx, after.ID)
	if err != nil {
		return nil, true, err
	}
	return result, true, nil
}

// mapApplicationToRegistration is the pure field mapping. Missing optional
// fields become empty strings, never nulls, and every student starts at the
// entry level.
func mapApplicationToRegistration(app *models.Application, number, entryYear string) *models.Registration {
	track := app.Track
	if track == "" {
		track = models.TrackRegular
	}
	return &models.Registration{
		RegistrationNumber:  number,
		SourceApplicationID: app.ID,
		OwnerUserID:         app.OwnerUserID,
		FirstName:           app.FirstName,
		LastName:            app.LastName,
		OtherNames:          app.OtherNames,
		Gender:              app.Gender,
		DateOfBirth:         app.DateOfBirth,
		Nationality:         app.Nationality,
		Email:               app.Email,
		Phone:               app.Phone,
		Address:             app.Address,
		GuardianName:        app.GuardianName,
		GuardianPhone:       app.GuardianPhone,
		Program:             app.Program,
		Track:               track,
		Level:               models.LevelEntry,
		EntryYearLabel:      entryYear,
		Active:              true,
	}
}

// resolveEntryYear uses the application's stated entry year, falling back to
// the current academic year.
func (s *MigrationService) resolveEntryYear(ctx context.Context, app *models.Application) (string, error) {
	if app.EntryYearLabel != "" {
		return app.EntryYearLabel, nil
	}
	pointer, err := s.periods.Current(ctx)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrPreconditionFailed.Code, appErrors.ErrPreconditionFailed.Status,
			"application has no entry year and no current period is configured")
	}
	return pointer.YearLabel, nil
}

// entryYearDigits extracts the opening calendar year from a "YYYY/YYYY"
// label; registration numbers are scoped by it.
func entryYearDigits(label string) string {
	if yearLabelPattern.MatchString(label) {
		return label[:4]
	}
	return label
}

// existingResult resolves the registration that already serves an
// application.
func (s *MigrationService) existingResult(ctx context.Context, app *models.Application) (*models.MigrationResult, error) {
	reg, err := s.registrations.FindBySourceApplication(ctx, app.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvariant,
				"application marked migrated but no registration exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load existing registration")
	}
	return &models.MigrationResult{
		ApplicationID:      app.ID,
		RegistrationID:     reg.ID,
		RegistrationNumber: reg.RegistrationNumber,
		AlreadyMigrated:    true,
		MigratedAt:         reg.CreatedAt,
	}, nil
}

func (s *MigrationService) fail(ctx context.Context, applicationID string, cause error) {
	if err := s.applications.MarkFailed(ctx, applicationID, cause.Error()); err != nil {
		s.logger.Error("failed to record migration failure",
			zap.String("application_id", applicationID), zap.Error(err))
	}
}

// afterMigration runs the best-effort tail: portal identity merge, initial
// progress record, welcome notice and audit entry. None of these can undo
// the migration.
func (s *MigrationService) afterMigration(ctx context.Context, app *models.Application, reg *models.Registration) {
	if s.identities != nil && app.OwnerUserID != "" {
		account := &models.UserAccount{
			ID:                 app.OwnerUserID,
			Email:              reg.Email,
			FullName:           fmt.Sprintf("%s %s", reg.FirstName, reg.LastName),
			Role:               models.RoleStudent,
			RegistrationNumber: &reg.RegistrationNumber,
			RegistrationID:     &reg.ID,
		}
		if err := s.identities.UpsertStudentIdentity(ctx, account); err != nil {
			s.logger.Warn("failed to merge portal identity",
				zap.String("registration_id", reg.ID), zap.Error(err))
		}
	}

	if s.progress != nil {
		record := &models.StudentProgress{
			StudentID:    reg.ID,
			YearLabel:    reg.EntryYearLabel,
			CurrentLevel: reg.Level,
			EntryLevel:   reg.Level,
			Track:        reg.Track,
			Status:       models.ProgressionNotEligible,
		}
		if err := s.progress.Create(ctx, record); err != nil {
			s.logger.Warn("failed to create initial progress record",
				zap.String("registration_id", reg.ID), zap.Error(err))
		}
	}

	if s.notifier != nil {
		if err := s.notifier.SendMigrationNotice(ctx, reg); err != nil {
			s.logger.Warn("failed to send migration notice",
				zap.String("registration_id", reg.ID), zap.Error(err))
		}
	}

	if s.audits != nil {
		payload, _ := json.Marshal(reg)
		entry := &models.AuditLog{
			Action:     models.AuditActionMigration,
			Resource:   "registration",
			ResourceID: &reg.ID,
			NewValues:  payload,
		}
		if err := s.audits.CreateAuditLog(ctx, entry); err != nil {
			s.logger.Warn("failed to write migration audit log", zap.Error(err))
		}
	}
}

func (s *MigrationService) auditSweep(ctx context.Context, actor string, summary *models.SweepSummary) {
	if s.audits == nil {
		return
	}
	payload, _ := json.Marshal(summary)
	entry := &models.AuditLog{
		Action:    models.AuditActionMigrationSweep,
		Resource:  "registration",
		NewValues: payload,
	}
	if actor != "" {
		entry.UserID = &actor
	}
	if err := s.audits.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to write sweep audit log", zap.Error(err))
	}
}
