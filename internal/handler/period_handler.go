package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ucaes/academic-engine/internal/models"
	"github.com/ucaes/academic-engine/internal/service"
	appErrors "github.com/ucaes/academic-engine/pkg/errors"
	"github.com/ucaes/academic-engine/pkg/response"
)

// PeriodHandler exposes the academic calendar: years, semesters and the
// current-period pointer.
type PeriodHandler struct {
	service *service.PeriodService
}

// NewPeriodHandler constructs a period handler.
func NewPeriodHandler(svc *service.PeriodService) *PeriodHandler {
	return &PeriodHandler{service: svc}
}

// Current godoc
// @Summary Get the current academic period
// @Description Returns the singleton pointer naming the active year and semester
// @Tags Periods
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /periods/current [get]
func (h *PeriodHandler) Current(c *gin.Context) {
	pointer, err := h.service.Current(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pointer, nil)
}

// ListYears godoc
// @Summary List academic years
// @Tags Periods
// @Produce json
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /academic-years [get]
func (h *PeriodHandler) ListYears(c *gin.Context) {
	var filter models.AcademicYearFilter
	filter.Label = c.Query("label")
	filter.Status = models.PeriodStatus(c.Query("status"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	years, total, err := h.service.ListYears(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, years, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// GetYear godoc
// @Summary Get one academic year
// @Tags Periods
// @Produce json
// @Param id path string true "Year ID"
// @Success 200 {object} response.Envelope
// @Router /academic-years/{id} [get]
func (h *PeriodHandler) GetYear(c *gin.Context) {
	year, err := h.service.GetYear(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, year, nil)
}

// CreateYear godoc
// @Summary Create an academic year
// @Tags Periods
// @Accept json
// @Produce json
// @Param payload body service.CreateYearInput true "Year payload"
// @Success 201 {object} response.Envelope
// @Router /academic-years [post]
func (h *PeriodHandler) CreateYear(c *gin.Context) {
	var input service.CreateYearInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	year, err := h.service.CreateYear(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, year)
}

// UpdateYear godoc
// @Summary Update an upcoming academic year
// @Tags Periods
// @Accept json
// @Produce json
// @Param id path string true "Year ID"
// @Param payload body service.UpdateYearInput true "Year payload"
// @Success 200 {object} response.Envelope
// @Router /academic-years/{id} [put]
func (h *PeriodHandler) UpdateYear(c *gin.Context) {
	var input service.UpdateYearInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	year, err := h.service.UpdateYear(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, year, nil)
}

// ListSemesters godoc
// @Summary List semesters
// @Tags Periods
// @Produce json
// @Param yearId query string false "Filter by year"
// @Param track query string false "Filter by track"
// @Param status query string false "Filter by status"
// @Success 200 {object} response.Envelope
// @Router /semesters [get]
func (h *PeriodHandler) ListSemesters(c *gin.Context) {
	var filter models.SemesterFilter
	filter.YearID = c.Query("yearId")
	filter.Track = models.Track(c.Query("track"))
	filter.Status = models.PeriodStatus(c.Query("status"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	semesters, total, err := h.service.ListSemesters(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, semesters, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// GetSemester godoc
// @Summary Get one semester
// @Tags Periods
// @Produce json
// @Param id path string true "Semester ID"
// @Success 200 {object} response.Envelope
// @Router /semesters/{id} [get]
func (h *PeriodHandler) GetSemester(c *gin.Context) {
	sem, err := h.service.GetSemester(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sem, nil)
}

// CreateSemester godoc
// @Summary Create a semester
// @Tags Periods
// @Accept json
// @Produce json
// @Param payload body service.CreateSemesterInput true "Semester payload"
// @Success 201 {object} response.Envelope
// @Router /semesters [post]
func (h *PeriodHandler) CreateSemester(c *gin.Context) {
	var input service.CreateSemesterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	sem, err := h.service.CreateSemester(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sem)
}

// UpdateSemester godoc
// @Summary Update an upcoming semester
// @Tags Periods
// @Accept json
// @Produce json
// @Param id path string true "Semester ID"
// @Param payload body service.UpdateSemesterInput true "Semester payload"
// @Success 200 {object} response.Envelope
// @Router /semesters/{id} [put]
func (h *PeriodHandler) UpdateSemester(c *gin.Context) {
	var input service.UpdateSemesterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	sem, err := h.service.UpdateSemester(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sem, nil)
}
