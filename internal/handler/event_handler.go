package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-queue-api/internal/dto"
	"github.com/noah-isme/lesson-queue-api/internal/middleware"
	"github.com/noah-isme/lesson-queue-api/internal/models"
	"github.com/noah-isme/lesson-queue-api/internal/service"
	appErrors "github.com/noah-isme/lesson-queue-api/pkg/errors"
	"github.com/noah-isme/lesson-queue-api/pkg/response"
)

type eventStore interface {
	DaySnapshot(ctx context.Context, schoolID string, day time.Time) (*models.DaySnapshot, error)
	Create(ctx context.Context, schoolID string, req dto.CreateEventRequest) (*models.Event, error)
	Update(ctx context.Context, schoolID, id string, req dto.UpdateEventRequest) (*models.Event, error)
	Delete(ctx context.Context, schoolID, id string) error
	BulkUpdate(ctx context.Context, schoolID string, req dto.BulkUpdateRequest) (*dto.BulkResult, error)
	BulkDelete(ctx context.Context, schoolID string, req dto.BulkDeleteRequest) (*dto.BulkResult, error)
	BulkUpdateStatus(ctx context.Context, schoolID string, req dto.BulkStatusRequest) (*dto.BulkResult, error)
}

// EventHandler exposes direct event persistence endpoints.
type EventHandler struct {
	service eventStore
}

// NewEventHandler constructs the handler.
func NewEventHandler(svc *service.EventService) *EventHandler {
	return &EventHandler{service: svc}
}

// Day godoc
// @Summary List the instructors and events of a day
// @Tags Events
// @Produce json
// @Param X-School-ID header string true "School"
// @Param date query string true "Day (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /events [get]
func (h *EventHandler) Day(c *gin.Context) {
	day, err := time.Parse(models.DayLayout, c.Query("date"))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "date must be YYYY-MM-DD"))
		return
	}
	snapshot, err := h.service.DaySnapshot(c.Request.Context(), middleware.SchoolID(c), day)
	respond(c, snapshot, err)
}

// Create godoc
// @Summary Create an event
// @Tags Events
// @Accept json
// @Produce json
// @Param X-School-ID header string true "School"
// @Param payload body dto.CreateEventRequest true "Event payload"
// @Success 201 {object} response.Envelope
// @Router /events [post]
func (h *EventHandler) Create(c *gin.Context) {
	var req dto.CreateEventRequest
	if !bindJSON(c, &req, "invalid event payload") {
		return
	}
	event, err := h.service.Create(c.Request.Context(), middleware.SchoolID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// Update godoc
// @Summary Update an event
// @Tags Events
// @Accept json
// @Produce json
// @Param X-School-ID header string true "School"
// @Param id path string true "Event ID"
// @Param payload body dto.UpdateEventRequest true "Event payload"
// @Success 200 {object} response.Envelope
// @Router /events/{id} [patch]
func (h *EventHandler) Update(c *gin.Context) {
	var req dto.UpdateEventRequest
	if !bindJSON(c, &req, "invalid event payload") {
		return
	}
	event, err := h.service.Update(c.Request.Context(), middleware.SchoolID(c), c.Param("id"), req)
	respond(c, event, err)
}

// Delete godoc
// @Summary Delete an event
// @Tags Events
// @Param X-School-ID header string true "School"
// @Param id path string true "Event ID"
// @Success 204
// @Router /events/{id} [delete]
func (h *EventHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), middleware.SchoolID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// BulkUpdate godoc
// @Summary Apply updates and deletions in one transaction
// @Tags Events
// @Accept json
// @Produce json
// @Param X-School-ID header string true "School"
// @Param payload body dto.BulkUpdateRequest true "Batch"
// @Success 200 {object} response.Envelope
// @Router /events/bulk-update [post]
func (h *EventHandler) BulkUpdate(c *gin.Context) {
	var req dto.BulkUpdateRequest
	if !bindJSON(c, &req, "invalid bulk payload") {
		return
	}
	result, err := h.service.BulkUpdate(c.Request.Context(), middleware.SchoolID(c), req)
	respond(c, result, err)
}

// BulkDelete godoc
// @Summary Delete several events
// @Tags Events
// @Accept json
// @Produce json
// @Param X-School-ID header string true "School"
// @Param payload body dto.BulkDeleteRequest true "IDs"
// @Success 200 {object} response.Envelope
// @Router /events/bulk-delete [post]
func (h *EventHandler) BulkDelete(c *gin.Context) {
	var req dto.BulkDeleteRequest
	if !bindJSON(c, &req, "invalid bulk payload") {
		return
	}
	result, err := h.service.BulkDelete(c.Request.Context(), middleware.SchoolID(c), req)
	respond(c, result, err)
}

// BulkStatus godoc
// @Summary Set the status of several events
// @Tags Events
// @Accept json
// @Produce json
// @Param X-School-ID header string true "School"
// @Param payload body dto.BulkStatusRequest true "IDs and status"
// @Success 200 {object} response.Envelope
// @Router /events/bulk-status [post]
func (h *EventHandler) BulkStatus(c *gin.Context) {
	var req dto.BulkStatusRequest
	if !bindJSON(c, &req, "invalid bulk payload") {
		return
	}
	result, err := h.service.BulkUpdateStatus(c.Request.Context(), middleware.SchoolID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil, middleware.ResponseMeta(c))
}
