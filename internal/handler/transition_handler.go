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

// TransitionRequest is the trigger payload.
type TransitionRequest struct {
	Type  models.TransitionKind `json:"type" binding:"required"`
	Force bool                  `json:"force"`
}

// TransitionHandler exposes the transition trigger surface.
type TransitionHandler struct {
	service *service.TransitionService
	metrics *service.MetricsService
	reports *service.ReportService
}

// NewTransitionHandler constructs a transition handler. metrics and reports
// may be nil.
func NewTransitionHandler(svc *service.TransitionService, metrics *service.MetricsService, reports *service.ReportService) *TransitionHandler {
	return &TransitionHandler{service: svc, metrics: metrics, reports: reports}
}

// Trigger godoc
// @Summary Trigger a period transition
// @Description Runs a semester or academic-year transition. A transition that is not yet due returns 200 with success=false and the next eligible date.
// @Tags Transitions
// @Accept json
// @Produce json
// @Param payload body TransitionRequest true "Transition request"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Security BearerAuth
// @Router /transitions [post]
func (h *TransitionHandler) Trigger(c *gin.Context) {
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	actor := "system"
	if claims, ok := middleware.CurrentUser(c); ok {
		actor = claims.UserID
	}

	result, err := h.service.Transition(c.Request.Context(), req.Type, service.TransitionInput{
		Force: req.Force,
		Actor: actor,
	})
	if err != nil {
		h.recordMetric(string(req.Type), metricResultForError(err))
		if result != nil {
			response.ErrorWithData(c, err, result)
			return
		}
		response.Error(c, err)
		return
	}

	if !result.Performed {
		h.recordMetric(string(req.Type), "not-due")
		response.Result(c, false, result.Message, result)
		return
	}

	h.recordMetric(string(req.Type), "performed")
	if h.metrics != nil && result.Batch != nil {
		h.metrics.RecordProgressed(result.Batch.Progressed)
	}
	h.enqueueBatchReport(c, result, actor)
	response.Result(c, true, result.Message, result)
}

func (h *TransitionHandler) recordMetric(kind, result string) {
	if h.metrics != nil {
		h.metrics.RecordTransition(kind, result)
	}
}

// enqueueBatchReport files a CSV outcome report for year transitions that
// ran a student batch. Failures only log; the transition already happened.
func (h *TransitionHandler) enqueueBatchReport(c *gin.Context, result *models.TransitionResult, actor string) {
	if h.reports == nil || result.Batch == nil {
		return
	}
	report, err := h.reports.Enqueue(c.Request.Context(), models.ReportTypeYearTransition, models.ReportFormatCSV,
		actor, "Year Transition "+result.Previous.Label, service.BatchDataset(result.Batch))
	if err != nil {
		return
	}
	result.Message += "; outcome report " + report.ID + " queued"
}

func metricResultForError(err error) string {
	if appErrors.Is(err, service.ErrTransitionBlocked) || appErrors.Is(err, appErrors.ErrConflict) {
		return "blocked"
	}
	return "failed"
}
