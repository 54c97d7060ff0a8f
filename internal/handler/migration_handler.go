package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ucaes/academic-engine/internal/middleware"
	"github.com/ucaes/academic-engine/internal/models"
	"github.com/ucaes/academic-engine/internal/service"
	appErrors "github.com/ucaes/academic-engine/pkg/errors"
	"github.com/ucaes/academic-engine/pkg/response"
)

// ApplicationUpdateRequest is the payload pushed by the admissions workflow
// when an application changes.
type ApplicationUpdateRequest struct {
	Before models.ApplicationSnapshot `json:"before" binding:"required"`
	After  models.ApplicationSnapshot `json:"after" binding:"required"`
}

// SweepRequest optionally asks for an outcome report.
type SweepRequest struct {
	ReportFormat models.ReportFormat `json:"report_format"`
}

// MigrationHandler exposes the application-to-registration pipeline.
type MigrationHandler struct {
	service *service.MigrationService
	metrics *service.MetricsService
	reports *service.ReportService
}

// NewMigrationHandler constructs a migration handler. metrics and reports may
// be nil.
func NewMigrationHandler(svc *service.MigrationService, metrics *service.MetricsService, reports *service.ReportService) *MigrationHandler {
	return &MigrationHandler{service: svc, metrics: metrics, reports: reports}
}

// Migrate godoc
// @Summary Migrate one approved application
// @Description Creates the permanent registration for an approved application. Safe to retry: a repeated call returns the existing registration.
// @Tags Migrations
// @Produce json
// @Param applicationId path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Security BearerAuth
// @Router /migrations/{applicationId} [post]
func (h *MigrationHandler) Migrate(c *gin.Context) {
	result, err := h.service.Migrate(c.Request.Context(), c.Param("applicationId"))
	if err != nil {
		h.recordMetric("failed")
		response.Error(c, err)
		return
	}

	if result.AlreadyMigrated {
		h.recordMetric("already-migrated")
		response.Result(c, true, "application was already migrated", result)
		return
	}

	h.recordMetric("migrated")
	response.Result(c, true, "application migrated", result)
}

// Sweep godoc
// @Summary Migrate every pending approved application
// @Description Serially migrates all approved applications that have not completed migration, including earlier failures.
// @Tags Migrations
// @Accept json
// @Produce json
// @Param payload body SweepRequest false "Sweep options"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /migrations/sweep [post]
func (h *MigrationHandler) Sweep(c *gin.Context) {
	var req SweepRequest
	_ = c.ShouldBindJSON(&req)

	actor := "system"
	if claims, ok := middleware.CurrentUser(c); ok {
		actor = claims.UserID
	}

	summary, err := h.service.Sweep(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := gin.H{"summary": summary}
	if h.reports != nil && req.ReportFormat != "" {
		report, reportErr := h.reports.Enqueue(c.Request.Context(), models.ReportTypeSweep, req.ReportFormat,
			actor, "Migration Sweep", service.SweepDataset(summary))
		if reportErr == nil {
			payload["report"] = report
		}
	}
	response.JSON(c, http.StatusOK, payload, nil)
}

// ApplicationUpdated godoc
// @Summary Admissions change hook
// @Description Edge-triggered: fires the migration only when the status moves into the approved family.
// @Tags Migrations
// @Accept json
// @Produce json
// @Param payload body ApplicationUpdateRequest true "Before and after snapshots"
// @Success 200 {object} response.Envelope
// @Router /hooks/application-updated [post]
func (h *MigrationHandler) ApplicationUpdated(c *gin.Context) {
	var req ApplicationUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	result, triggered, err := h.service.HandleApplicationUpdate(c.Request.Context(), req.Before, req.After)
	if err != nil {
		h.recordMetric("failed")
		response.Error(c, err)
		return
	}
	if !triggered {
		response.Result(c, true, "no migration required", nil)
		return
	}

	h.recordMetric("migrated")
	response.Result(c, true, "application migrated", result)
}

func (h *MigrationHandler) recordMetric(outcome string) {
	if h.metrics != nil {
		h.metrics.RecordMigration(outcome)
	}
}
