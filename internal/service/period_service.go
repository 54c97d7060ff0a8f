package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ucaes/academic-engine/internal/models"
	appErrors "github.com/ucaes/academic-engine/pkg/errors"
)

const pointerCacheKey = "academic:period:pointer"

var yearLabelPattern = regexp.MustCompile(`^\d{4}/\d{4}$`)

type yearStore interface {
	List(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, int, error)
	FindByID(ctx context.Context, id string) (*models.AcademicYear, error)
	ExistsByLabel(ctx context.Context, label string) (bool, error)
	Create(ctx context.Context, year *models.AcademicYear) error
	Update(ctx context.Context, year *models.AcademicYear) error
}

type semesterStore interface {
	List(ctx context.Context, filter models.SemesterFilter) ([]models.AcademicSemester, int, error)
	FindByID(ctx context.Context, id string) (*models.AcademicSemester, error)
	ExistsByYearNumberTrack(ctx context.Context, yearID string, number int, track models.Track, excludeID string) (bool, error)
	Create(ctx context.Context, sem *models.AcademicSemester) error
	Update(ctx context.Context, sem *models.AcademicSemester) error
}

type pointerStore interface {
	Get(ctx context.Context) (*models.PeriodPointer, error)
}

// PeriodService manages the academic calendar: year and semester records plus
// the read side of the current-period pointer. The pointer itself is only
// written by transitions; this service caches reads because every migration
// and progression check hits it.
type PeriodService struct {
	years     yearStore
	semesters semesterStore
	pointer   pointerStore
	cache     *redis.Client
	cacheTTL  time.Duration
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewPeriodService creates a period service. cache may be nil, in which case
// every pointer read goes to the database.
func NewPeriodService(years yearStore, semesters semesterStore, pointer pointerStore, cache *redis.Client, cacheTTL time.Duration, logger *zap.Logger) *PeriodService {
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PeriodService{
		years:     years,
		semesters: semesters,
		pointer:   pointer,
		cache:     cache,
		cacheTTL:  cacheTTL,
		validate:  validator.New(),
		logger:    logger,
	}
}

// CreateYearInput carries a new academic year.
type CreateYearInput struct {
	Label     string    `json:"label" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

// UpdateYearInput carries mutable year fields. Only upcoming years accept
// updates.
type UpdateYearInput struct {
	Label     string    `json:"label" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

// CreateSemesterInput carries a new semester.
type CreateSemesterInput struct {
	YearID    string    `json:"year_id" validate:"required"`
	Name      string    `json:"name" validate:"required"`
	Number    int       `json:"number" validate:"required,min=1,max=3"`
	Track     string    `json:"track" validate:"required,oneof=Regular Weekend"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

// UpdateSemesterInput carries mutable semester fields.
type UpdateSemesterInput struct {
	Name      string    `json:"name" validate:"required"`
	Number    int       `json:"number" validate:"required,min=1,max=3"`
	Track     string    `json:"track" validate:"required,oneof=Regular Weekend"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

// ListYears returns academic years matching the filter.
func (s *PeriodService) ListYears(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, int, error) {
	years, total, err := s.years.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list academic years")
	}
	return years, total, nil
}

// GetYear loads one academic year.
func (s *PeriodService) GetYear(ctx context.Context, id string) (*models.AcademicYear, error) {
	year, err := s.years.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic year")
	}
	return year, nil
}

// CreateYear registers a new academic year as upcoming.
func (s *PeriodService) CreateYear(ctx context.Context, input CreateYearInput) (*models.AcademicYear, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid academic year payload")
	}
	if err := validateYearLabel(input.Label); err != nil {
		return nil, err
	}
	if !input.EndDate.After(input.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date must be after start date")
	}

	exists, err := s.years.ExistsByLabel(ctx, input.Label)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check year label")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("academic year %s already exists", input.Label))
	}

	year := &models.AcademicYear{
		Label:     input.Label,
		StartDate: input.StartDate,
		EndDate:   input.EndDate,
		Status:    models.PeriodStatusUpcoming,
	}
	if err := s.years.Create(ctx, year); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create academic year")
	}

	s.logger.Info("academic year created", zap.String("id", year.ID), zap.String("label", year.Label))
	return year, nil
}

// UpdateYear modifies an upcoming year. Active and completed years are frozen.
func (s *PeriodService) UpdateYear(ctx context.Context, id string, input UpdateYearInput) (*models.AcademicYear, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid academic year payload")
	}
	if err := validateYearLabel(input.Label); err != nil {
		return nil, err
	}
	if !input.EndDate.After(input.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date must be after start date")
	}

	year, err := s.GetYear(ctx, id)
	if err != nil {
		return nil, err
	}
	if year.Status != models.PeriodStatusUpcoming {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "only upcoming years can be edited")
	}

	year.Label = input.Label
	year.StartDate = input.StartDate
	year.EndDate = input.EndDate
	if err := s.years.Update(ctx, year); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "year was activated while editing")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update academic year")
	}
	return year, nil
}

// ListSemesters returns semesters matching the filter.
func (s *PeriodService) ListSemesters(ctx context.Context, filter models.SemesterFilter) ([]models.AcademicSemester, int, error) {
	semesters, total, err := s.semesters.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list semesters")
	}
	return semesters, total, nil
}

// GetSemester loads one semester.
func (s *PeriodService) GetSemester(ctx context.Context, id string) (*models.AcademicSemester, error) {
	sem, err := s.semesters.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}
	return sem, nil
}

// CreateSemester registers a new semester as upcoming inside an existing year.
func (s *PeriodService) CreateSemester(ctx context.Context, input CreateSemesterInput) (*models.AcademicSemester, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid semester payload")
	}
	if !input.EndDate.After(input.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date must be after start date")
	}

	if _, err := s.GetYear(ctx, input.YearID); err != nil {
		return nil, err
	}

	track := models.Track(input.Track)
	exists, err := s.semesters.ExistsByYearNumberTrack(ctx, input.YearID, input.Number, track, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check semester uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("semester %d already exists for this year and track", input.Number))
	}

	sem := &models.AcademicSemester{
		YearID:    input.YearID,
		Name:      input.Name,
		Number:    input.Number,
		Track:     track,
		StartDate: input.StartDate,
		EndDate:   input.EndDate,
		Status:    models.PeriodStatusUpcoming,
	}
	if err := s.semesters.Create(ctx, sem); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create semester")
	}

	s.logger.Info("semester created",
		zap.String("id", sem.ID),
		zap.String("year_id", sem.YearID),
		zap.Int("number", sem.Number),
		zap.String("track", string(sem.Track)))
	return sem, nil
}

// UpdateSemester modifies an upcoming semester.
func (s *PeriodService) UpdateSemester(ctx context.Context, id string, input UpdateSemesterInput) (*models.AcademicSemester, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid semester payload")
	}
	if !input.EndDate.After(input.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date must be after start date")
	}

	sem, err := s.GetSemester(ctx, id)
	if err != nil {
		return nil, err
	}
	if sem.Status != models.PeriodStatusUpcoming {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "only upcoming semesters can be edited")
	}

	track := models.Track(input.Track)
	exists, err := s.semesters.ExistsByYearNumberTrack(ctx, sem.YearID, input.Number, track, sem.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check semester uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("semester %d already exists for this year and track", input.Number))
	}

	sem.Name = input.Name
	sem.Number = input.Number
	sem.Track = track
	sem.StartDate = input.StartDate
	sem.EndDate = input.EndDate
	if err := s.semesters.Update(ctx, sem); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "semester was activated while editing")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update semester")
	}
	return sem, nil
}

// Current returns the period pointer, read through the cache. A cache failure
// is logged and falls back to the database; the pointer must stay readable
// when Redis is down.
func (s *PeriodService) Current(ctx context.Context) (*models.PeriodPointer, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, pointerCacheKey).Result()
		if err == nil {
			var pointer models.PeriodPointer
			if jsonErr := json.Unmarshal([]byte(raw), &pointer); jsonErr == nil {
				return &pointer, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn("period pointer cache read failed", zap.Error(err))
		}
	}

	pointer, err := s.pointer.Get(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no current period configured")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load period pointer")
	}

	if s.cache != nil {
		if raw, jsonErr := json.Marshal(pointer); jsonErr == nil {
			if err := s.cache.Set(ctx, pointerCacheKey, raw, s.cacheTTL).Err(); err != nil {
				s.logger.Warn("period pointer cache write failed", zap.Error(err))
			}
		}
	}
	return pointer, nil
}

// InvalidatePointer drops the cached pointer. Called after every committed
// transition so readers never see a stale period past the TTL.
func (s *PeriodService) InvalidatePointer(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, pointerCacheKey).Err(); err != nil {
		s.logger.Warn("period pointer cache invalidation failed", zap.Error(err))
	}
}

// validateYearLabel enforces the "YYYY/YYYY" label format with consecutive
// years.
func validateYearLabel(label string) error {
	if !yearLabelPattern.MatchString(label) {
		return appErrors.Clone(appErrors.ErrValidation, `year label must look like "2024/2025"`)
	}
	first, _ := strconv.Atoi(label[:4])
	second, _ := strconv.Atoi(label[5:])
	if second != first+1 {
		return appErrors.Clone(appErrors.ErrValidation, "year label must span consecutive years")
	}
	return nil
}
