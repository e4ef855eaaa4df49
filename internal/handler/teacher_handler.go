package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-queue-api/internal/dto"
	"github.com/noah-isme/lesson-queue-api/internal/middleware"
	"github.com/noah-isme/lesson-queue-api/internal/models"
	"github.com/noah-isme/lesson-queue-api/internal/service"
	"github.com/noah-isme/lesson-queue-api/pkg/response"
)

type teacherRoster interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error)
	Get(ctx context.Context, schoolID, id string) (*models.Teacher, error)
	Create(ctx context.Context, schoolID string, req dto.CreateTeacherRequest) (*models.Teacher, error)
}

// TeacherHandler wires the instructor roster to HTTP routes.
type TeacherHandler struct {
	service teacherRoster
}

// NewTeacherHandler constructs a new TeacherHandler.
func NewTeacherHandler(svc *service.TeacherService) *TeacherHandler {
	return &TeacherHandler{service: svc}
}

// List godoc
// @Summary List teachers
// @Tags Teachers
// @Produce json
// @Param X-School-ID header string true "School"
// @Param search query string false "Search by username or name"
// @Param active query bool false "Filter by active status"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /teachers [get]
func (h *TeacherHandler) List(c *gin.Context) {
	filter := models.TeacherFilter{
		SchoolID: middleware.SchoolID(c),
		Search:   strings.TrimSpace(c.Query("search")),
	}
	if active, err := strconv.ParseBool(c.Query("active")); err == nil {
		filter.Active = &active
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	teachers, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teachers, pagination)
}

// Get godoc
// @Summary Get teacher detail
// @Tags Teachers
// @Produce json
// @Param X-School-ID header string true "School"
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id} [get]
func (h *TeacherHandler) Get(c *gin.Context) {
	teacher, err := h.service.Get(c.Request.Context(), middleware.SchoolID(c), c.Param("id"))
	respond(c, teacher, err)
}

// Create godoc
// @Summary Register a teacher
// @Tags Teachers
// @Accept json
// @Produce json
// @Param X-School-ID header string true "School"
// @Param payload body dto.CreateTeacherRequest true "Teacher payload"
// @Success 201 {object} response.Envelope
// @Router /teachers [post]
func (h *TeacherHandler) Create(c *gin.Context) {
	var req dto.CreateTeacherRequest
	if !bindJSON(c, &req, "invalid teacher payload") {
		return
	}
	teacher, err := h.service.Create(c.Request.Context(), middleware.SchoolID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, teacher)
}
