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

// ProgressionRunRequest asks for a manual batch over a year's open records.
type ProgressionRunRequest struct {
	YearLabel    string              `json:"year_label" binding:"required"`
	ReportFormat models.ReportFormat `json:"report_format"`
}

// ProgressionHandler exposes eligibility checks, completion recording and the
// manual batch trigger.
type ProgressionHandler struct {
	service *service.ProgressionService
	metrics *service.MetricsService
	reports *service.ReportService
}

// NewProgressionHandler constructs a progression handler. metrics and
// reports may be nil.
func NewProgressionHandler(svc *service.ProgressionService, metrics *service.MetricsService, reports *service.ReportService) *ProgressionHandler {
	return &ProgressionHandler{service: svc, metrics: metrics, reports: reports}
}

// Eligibility godoc
// @Summary Check a student's progression eligibility
// @Tags Progression
// @Produce json
// @Param studentId path string true "Registration ID"
// @Param year query string true "Academic year label"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /progression/{studentId}/eligibility [get]
func (h *ProgressionHandler) Eligibility(c *gin.Context) {
	year := c.Query("year")
	if year == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "year query parameter is required"))
		return
	}

	result, err := h.service.IsEligible(c.Request.Context(), c.Param("studentId"), year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// RecordCompletion godoc
// @Summary Record a completed teaching period for a student
// @Tags Progression
// @Accept json
// @Produce json
// @Param payload body service.RecordCompletionInput true "Completion payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /progression/completions [post]
func (h *ProgressionHandler) RecordCompletion(c *gin.Context) {
	var input service.RecordCompletionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	record, err := h.service.RecordCompletion(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// RunBatch godoc
// @Summary Run the level-advance batch for a year
// @Description Advances every eligible student of the year by one level. Used to re-run after a failed year-transition batch.
// @Tags Progression
// @Accept json
// @Produce json
// @Param payload body ProgressionRunRequest true "Batch request"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /progression/run [post]
func (h *ProgressionHandler) RunBatch(c *gin.Context) {
	var req ProgressionRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	actor := "system"
	if claims, ok := middleware.CurrentUser(c); ok {
		actor = claims.UserID
	}

	summary, err := h.service.RunBatch(c.Request.Context(), req.YearLabel, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordProgressed(summary.Progressed)
	}

	payload := gin.H{"summary": summary}
	if h.reports != nil && req.ReportFormat != "" {
		report, reportErr := h.reports.Enqueue(c.Request.Context(), models.ReportTypeProgressionRun, req.ReportFormat,
			actor, "Progression Run "+req.YearLabel, service.BatchDataset(summary))
		if reportErr == nil {
			payload["report"] = report
		}
	}
	response.JSON(c, http.StatusOK, payload, nil)
}
