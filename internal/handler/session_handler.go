package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-queue-api/internal/dto"
	"github.com/noah-isme/lesson-queue-api/internal/middleware"
	"github.com/noah-isme/lesson-queue-api/internal/scheduler"
	"github.com/noah-isme/lesson-queue-api/internal/service"
	appErrors "github.com/noah-isme/lesson-queue-api/pkg/errors"
	"github.com/noah-isme/lesson-queue-api/pkg/response"
)

type sessionManager interface {
	Open(ctx context.Context, schoolID string, req dto.OpenSessionRequest) (*dto.SessionView, error)
	View(ctx context.Context, schoolID, id string) (*dto.SessionView, error)
	Close(ctx context.Context, schoolID, id string) error
	EnterAdjustment(ctx context.Context, schoolID, id string) (*dto.SessionView, error)
	CancelAdjustment(ctx context.Context, schoolID, id string) (*dto.SessionView, error)
	Discard(ctx context.Context, schoolID, id string) (*dto.SessionView, error)
	UpdateSettings(ctx context.Context, schoolID, id string, settings scheduler.ControllerSettings) (*dto.SessionView, error)
	AdjustTime(ctx context.Context, schoolID, id string, req dto.AdjustTimeRequest) (*dto.BulkAdjustResult, error)
	AdjustLocation(ctx context.Context, schoolID, id string, req dto.AdjustLocationRequest) (*dto.BulkAdjustResult, error)
	LockTime(ctx context.Context, schoolID, id string, req dto.AdjustTimeRequest) (*dto.BulkAdjustResult, error)
	LockLocation(ctx context.Context, schoolID, id string, req dto.AdjustLocationRequest) (*dto.BulkAdjustResult, error)
	LockStatus(ctx context.Context, schoolID, id, clock, location string) (*dto.LockStatusView, error)
	Changes(ctx context.Context, schoolID, id string) (*scheduler.ChangeSummary, error)
	Submit(ctx context.Context, schoolID, id string) (*dto.SubmitResult, error)
	DropLesson(ctx context.Context, schoolID, id string, req dto.DropLessonRequest) (*scheduler.EventNode, error)
	Export(ctx context.Context, schoolID, id, format string, changesOnly bool) (*service.ExportResult, error)
	SetOptIn(ctx context.Context, schoolID, id, teacherID string, optIn bool) (*dto.SessionView, error)
	ToggleLock(ctx context.Context, schoolID, id, teacherID string) (*dto.LockToggleResult, error)
	Optimise(ctx context.Context, schoolID, id, teacherID string) (*scheduler.OptimiseResult, error)
	EventAction(ctx context.Context, schoolID, id, teacherID, eventID, action string) (*dto.EventActionResult, error)
	DeleteEvent(ctx context.Context, schoolID, id, teacherID, eventID string) (*scheduler.DeleteResult, error)
}

// SessionHandler exposes editing session endpoints.
type SessionHandler struct {
	service sessionManager
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(svc *service.SessionService) *SessionHandler {
	return &SessionHandler{service: svc}
}

// Open godoc
// @Summary Open an editing session over a school day
// @Tags Sessions
// @Accept json
// @Produce json
// @Param X-School-ID header string true "School"
// @Param payload body dto.OpenSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Open(c *gin.Context) {
	var req dto.OpenSessionRequest
	if !bindJSON(c, &req, "invalid session payload") {
		return
	}
	view, err := h.service.Open(c.Request.Context(), middleware.SchoolID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// Get godoc
// @Summary Render an editing session
// @Tags Sessions
// @Produce json
// @Param X-School-ID header string true "School"
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	view, err := h.service.View(c.Request.Context(), middleware.SchoolID(c), c.Param("id"))
	respond(c, view, err)
}

// Close godoc
// @Summary Cancel every buffered edit and close the session
// @Tags Sessions
// @Param X-School-ID header string true "School"
// @Param id path string true "Session ID"
// @Success 204
// @Router /sessions/{id} [delete]
func (h *SessionHandler) Close(c *gin.Context) {
	if err := h.service.Close(c.Request.Context(), middleware.SchoolID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// EnterAdjustment godoc
// @Summary Enter adjustment mode
// @Tags Sessions
// @Produce json
// @Param X-School-ID header string true "School"
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/adjustment [post]
func (h *SessionHandler) EnterAdjustment(c *gin.Context) {
	view, err := h.service.EnterAdjustment(c.Request.Context(), middleware.SchoolID(c), c.Param("id"))
	respond(c, view, err)
}

// CancelAdjustment godoc
// @Summary Discard every buffered edit and leave adjustment mode
// @Tags Sessions
// @Produce json
// @Param X-School-ID header string true "School"
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/adjustment [delete]
func (h *SessionHandler) CancelAdjustment(c *gin.Context) {
	view, err := h.service.CancelAdjustment(c.Request.Context(), middleware.SchoolID(c), c.Param("id"))
	respond(c, view, err)
}

// Discard godoc
// @Summary Reset every buffered edit, staying in adjustment mode
// @Tags Sessions
// @Produce json
// @Param X-School-ID header string true "School"
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/discard [post]
func (h *SessionHandler) Discard(c *gin.Context) {
	view, err := h.service.Discard(c.Request.Context(), middleware.SchoolID(c), c.Param("id"))
	respond(c, view, err)
}

// UpdateSettings godoc
// @Summary Replace the controller settings of the session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param X-School-ID header string true "School"
// @Param id path string true "Session ID"
// @Param payload body scheduler.ControllerSettings true "Settings"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/settings [put]
func (h *SessionHandler) UpdateSettings(c *gin.Context) {
	var req scheduler.ControllerSettings
	if !bindJSON(c, &req, "invalid settings payload") {
		return
	}
	view, err := h.service.UpdateSettings(c.Request.Context(), middleware.SchoolID(c), c.Param("id"), req)
	respond(c, view, err)
}

// AdjustTime godoc
// @Summary Move the first event of every opted-in teacher
// @Tags Sessions
// @Accept json
// @Produce json
// @Param X-School-ID header string true "School"
// @Param id path string true "Session ID"
// @Param payload body dto.AdjustTimeRequest true "Clock"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/time [post]
func (h *SessionHandler) AdjustTime(c *gin.Context) {
	var req dto.AdjustTimeRequest
	if !bindJSON(c, &req, "invalid time payload") {
		return
	}
	result, err := h.service.AdjustTime(c.Request.Context(), middleware.SchoolID(c), c.Param("id"), req)
	respond(c, result, err)
}

// AdjustLocation godoc
// @Summary Move every event of every opted-in teacher to a location
// @Tags Sessions
// @Accept json
// @Produce json
// @Param X-School-ID header string true "School"
// @Param id path string true "Session ID"
// @Param payload body dto.AdjustLocationRequest true "Location"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/location [post]
func (h *SessionHandler) AdjustLocation(c *gin.Context) {
	var req dto.AdjustLocationRequest
	if !bindJSON(c, &req, "invalid location payload") {
		return
	}
	result, err := h.service.AdjustLocation(c.Request.Context(), middleware.SchoolID(c), c.Param("id"), req)
	respond(c, result, err)
}

// LockTime godoc
// @Summary Opt in every teacher with events and align their first start
// @Tags Sessions
// @Accept json
// @Produce json
// @Param X-School-ID header string true "School"
// @Param id path string true "Session ID"
// @Param payload body dto.AdjustTimeRequest true "Clock"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/lock-time [post]
func (h *SessionHandler) LockTime(c *gin.Context) {
	var req dto.AdjustTimeRequest
	if !bindJSON(c, &req, "invalid time payload") {
		return
	}
	result, err := h.service.LockTime(c.Request.Context(), middleware.SchoolID(c), c.Param("id"), req)
	respond(c, result, err)
}

// LockLocation godoc
// @Summary Opt in every teacher with events and move them to a location
// @Tags Sessions
// @Accept json
// @Produce json
// @Param X-School-ID header string true "School"
// @Param id path string true "Session ID"
// @Param payload body dto.AdjustLocationRequest true "Location"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/lock-location [post]
func (h *SessionHandler) LockLocation(c *gin.Context) {
	var req dto.AdjustLocationRequest
	if !bindJSON(c, &req, "invalid location payload") {
		return
	}
	result, err := h.service.LockLocation(c.Request.Context(), middleware.SchoolID(c), c.Param("id"), req)
	respond(c, result, err)
}

// LockStatus godoc
// @Summary Count how many teachers or events already match a bulk value
// @Tags Sessions
// @Produce json
// @Param X-School-ID header string true "School"
// @Param id path string true "Session ID"
// @Param time query string false "HH:MM"
// @Param location query string false "Location"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/lock-status [get]
func (h *SessionHandler) LockStatus(c *gin.Context) {
	clock := c.Query("time")
	location := c.Query("location")
	if clock == "" && location == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "time or location query is required"))
		return
	}
	status, err := h.service.LockStatus(c.Request.Context(), middleware.SchoolID(c), c.Param("id"), clock, location)
	respond(c, status, err)
}

// Changes godoc
// @Summary List the changes a submit would send
// @Tags Sessions
// @Produce json
// @Param X-School-ID header string true "School"
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/changes [get]
func (h *SessionHandler) Changes(c *gin.Context) {
	summary, err := h.service.Changes(c.Request.Context(), middleware.SchoolID(c), c.Param("id"))
	respond(c, summary, err)
}

// Submit godoc
// @Summary Persist every buffered change in one batch
// @Tags Sessions
// @Produce json
// @Param X-School-ID header string true "School"
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/submit [post]
func (h *SessionHandler) Submit(c *gin.Context) {
	result, err := h.service.Submit(c.Request.Context(), middleware.SchoolID(c), c.Param("id"))
	respond(c, result, err)
}

// DropLesson godoc
// @Summary Drop a lesson on a teacher queue
// @Tags Sessions
// @Accept json
// @Produce json
// @Param X-School-ID header string true "School"
// @Param id path string true "Session ID"
// @Param payload body dto.DropLessonRequest true "Lesson"
// @Success 201 {object} response.Envelope
// @Router /sessions/{id}/lessons [post]
func (h *SessionHandler) DropLesson(c *gin.Context) {
	var req dto.DropLessonRequest
	if !bindJSON(c, &req, "invalid lesson payload") {
		return
	}
	node, err := h.service.DropLesson(c.Request.Context(), middleware.SchoolID(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, node)
}

// Export godoc
// @Summary Download the session queues or pending changes
// @Tags Sessions
// @Produce text/csv
// @Produce application/pdf
// @Param X-School-ID header string true "School"
// @Param id path string true "Session ID"
// @Param format query string false "csv or pdf"
// @Param changes query bool false "Export pending changes only"
// @Success 200 {file} file
// @Router /sessions/{id}/export [get]
func (h *SessionHandler) Export(c *gin.Context) {
	changesOnly, _ := strconv.ParseBool(c.DefaultQuery("changes", "false"))
	result, err := h.service.Export(c.Request.Context(), middleware.SchoolID(c), c.Param("id"), c.Query("format"), changesOnly)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Payload)
}

// OptIn godoc
// @Summary Opt a teacher in to the edit
// @Tags Sessions
// @Produce json
// @Param X-School-ID header string true "School"
// @Param id path string true "Session ID"
// @Param teacherId path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/teachers/{teacherId}/opt-in [post]
func (h *SessionHandler) OptIn(c *gin.Context) {
	view, err := h.service.SetOptIn(c.Request.Context(), middleware.SchoolID(c), c.Param("id"), c.Param("teacherId"), true)
	respond(c, view, err)
}

// OptOut godoc
// @Summary Opt a teacher out of the edit, discarding their changes
// @Tags Sessions
// @Produce json
// @Param X-School-ID header string true "School"
// @Param id path string true "Session ID"
// @Param teacherId path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/teachers/{teacherId}/opt-in [delete]
func (h *SessionHandler) OptOut(c *gin.Context) {
	view, err := h.service.SetOptIn(c.Request.Context(), middleware.SchoolID(c), c.Param("id"), c.Param("teacherId"), false)
	respond(c, view, err)
}

// ToggleLock godoc
// @Summary Toggle a teacher between cascade and respect-time mode
// @Tags Sessions
// @Produce json
// @Param X-School-ID header string true "School"
// @Param id path string true "Session ID"
// @Param teacherId path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/teachers/{teacherId}/lock [post]
func (h *SessionHandler) ToggleLock(c *gin.Context) {
	result, err := h.service.ToggleLock(c.Request.Context(), middleware.SchoolID(c), c.Param("id"), c.Param("teacherId"))
	respond(c, result, err)
}

// Optimise godoc
// @Summary Pack a teacher queue to the configured gap
// @Tags Sessions
// @Produce json
// @Param X-School-ID header string true "School"
// @Param id path string true "Session ID"
// @Param teacherId path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/teachers/{teacherId}/optimise [post]
func (h *SessionHandler) Optimise(c *gin.Context) {
	result, err := h.service.Optimise(c.Request.Context(), middleware.SchoolID(c), c.Param("id"), c.Param("teacherId"))
	respond(c, result, err)
}

// EventAction godoc
// @Summary Apply a per-event edit
// @Description Actions: move-up, move-down, earlier, later, grow, shrink, add-gap, remove-gap. A rejected edit answers 409 with the event capabilities.
// @Tags Sessions
// @Produce json
// @Param X-School-ID header string true "School"
// @Param id path string true "Session ID"
// @Param teacherId path string true "Teacher ID"
// @Param eventId path string true "Event ID"
// @Param action path string true "Action"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/teachers/{teacherId}/events/{eventId}/{action} [post]
func (h *SessionHandler) EventAction(c *gin.Context) {
	result, err := h.service.EventAction(c.Request.Context(), middleware.SchoolID(c), c.Param("id"), c.Param("teacherId"), c.Param("eventId"), c.Param("action"))
	if err != nil {
		if result != nil {
			response.ErrorWithData(c, err, result)
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil, middleware.ResponseMeta(c))
}

// DeleteEvent godoc
// @Summary Delete an event from a teacher queue
// @Tags Sessions
// @Produce json
// @Param X-School-ID header string true "School"
// @Param id path string true "Session ID"
// @Param teacherId path string true "Teacher ID"
// @Param eventId path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/teachers/{teacherId}/events/{eventId} [delete]
func (h *SessionHandler) DeleteEvent(c *gin.Context) {
	result, err := h.service.DeleteEvent(c.Request.Context(), middleware.SchoolID(c), c.Param("id"), c.Param("teacherId"), c.Param("eventId"))
	respond(c, result, err)
}

func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message))
		return false
	}
	return true
}

func respond(c *gin.Context, data interface{}, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, data, nil, middleware.ResponseMeta(c))
}
