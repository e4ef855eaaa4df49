package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-queue-api/internal/dto"
	"github.com/noah-isme/lesson-queue-api/internal/scheduler"
	"github.com/noah-isme/lesson-queue-api/internal/service"
	appErrors "github.com/noah-isme/lesson-queue-api/pkg/errors"
	"github.com/noah-isme/lesson-queue-api/pkg/logger"
)

type sessionManagerMock struct {
	school      string
	openReq     dto.OpenSessionRequest
	optIn       *bool
	action      string
	actionRes   *dto.EventActionResult
	actionErr   error
	submitErr   error
	export      *service.ExportResult
	changesOnly bool
	lockClock   string
}

func (m *sessionManagerMock) Open(ctx context.Context, schoolID string, req dto.OpenSessionRequest) (*dto.SessionView, error) {
	m.school = schoolID
	m.openReq = req
	return &dto.SessionView{ID: "sess-1", SchoolID: schoolID, Date: req.Date}, nil
}

func (m *sessionManagerMock) View(ctx context.Context, schoolID, id string) (*dto.SessionView, error) {
	if id != "sess-1" {
		return nil, appErrors.ErrSessionNotFound
	}
	return &dto.SessionView{ID: id, SchoolID: schoolID}, nil
}

func (m *sessionManagerMock) Close(ctx context.Context, schoolID, id string) error { return nil }

func (m *sessionManagerMock) EnterAdjustment(ctx context.Context, schoolID, id string) (*dto.SessionView, error) {
	return &dto.SessionView{ID: id, AdjustmentMode: true}, nil
}

func (m *sessionManagerMock) CancelAdjustment(ctx context.Context, schoolID, id string) (*dto.SessionView, error) {
	return &dto.SessionView{ID: id}, nil
}

func (m *sessionManagerMock) Discard(ctx context.Context, schoolID, id string) (*dto.SessionView, error) {
	return &dto.SessionView{ID: id, AdjustmentMode: true}, nil
}

func (m *sessionManagerMock) UpdateSettings(ctx context.Context, schoolID, id string, settings scheduler.ControllerSettings) (*dto.SessionView, error) {
	return &dto.SessionView{ID: id, Settings: settings}, nil
}

func (m *sessionManagerMock) AdjustTime(ctx context.Context, schoolID, id string, req dto.AdjustTimeRequest) (*dto.BulkAdjustResult, error) {
	return &dto.BulkAdjustResult{Affected: 2, ChangedCount: 3}, nil
}

func (m *sessionManagerMock) AdjustLocation(ctx context.Context, schoolID, id string, req dto.AdjustLocationRequest) (*dto.BulkAdjustResult, error) {
	return &dto.BulkAdjustResult{Affected: 1}, nil
}

func (m *sessionManagerMock) LockTime(ctx context.Context, schoolID, id string, req dto.AdjustTimeRequest) (*dto.BulkAdjustResult, error) {
	return &dto.BulkAdjustResult{Affected: 2}, nil
}

func (m *sessionManagerMock) LockLocation(ctx context.Context, schoolID, id string, req dto.AdjustLocationRequest) (*dto.BulkAdjustResult, error) {
	return &dto.BulkAdjustResult{Affected: 2}, nil
}

func (m *sessionManagerMock) LockStatus(ctx context.Context, schoolID, id, clock, location string) (*dto.LockStatusView, error) {
	m.lockClock = clock
	return &dto.LockStatusView{Time: &scheduler.LockStatus{LockCount: 1, Total: 2}}, nil
}

func (m *sessionManagerMock) Changes(ctx context.Context, schoolID, id string) (*scheduler.ChangeSummary, error) {
	return &scheduler.ChangeSummary{Count: 1, Deletions: []string{"e1"}}, nil
}

func (m *sessionManagerMock) Submit(ctx context.Context, schoolID, id string) (*dto.SubmitResult, error) {
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	return &dto.SubmitResult{Submitted: 1}, nil
}

func (m *sessionManagerMock) DropLesson(ctx context.Context, schoolID, id string, req dto.DropLessonRequest) (*scheduler.EventNode, error) {
	return &scheduler.EventNode{ID: "e9", LessonID: req.LessonID, TeacherID: req.TeacherID, Duration: 90}, nil
}

func (m *sessionManagerMock) Export(ctx context.Context, schoolID, id, format string, changesOnly bool) (*service.ExportResult, error) {
	m.changesOnly = changesOnly
	if m.export == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	return m.export, nil
}

func (m *sessionManagerMock) SetOptIn(ctx context.Context, schoolID, id, teacherID string, optIn bool) (*dto.SessionView, error) {
	m.optIn = &optIn
	return &dto.SessionView{ID: id, PendingTeachers: []string{teacherID}}, nil
}

func (m *sessionManagerMock) ToggleLock(ctx context.Context, schoolID, id, teacherID string) (*dto.LockToggleResult, error) {
	return &dto.LockToggleResult{TeacherID: teacherID, Locked: false}, nil
}

func (m *sessionManagerMock) Optimise(ctx context.Context, schoolID, id, teacherID string) (*scheduler.OptimiseResult, error) {
	return &scheduler.OptimiseResult{}, nil
}

func (m *sessionManagerMock) EventAction(ctx context.Context, schoolID, id, teacherID, eventID, action string) (*dto.EventActionResult, error) {
	m.action = action
	return m.actionRes, m.actionErr
}

func (m *sessionManagerMock) DeleteEvent(ctx context.Context, schoolID, id, teacherID, eventID string) (*scheduler.DeleteResult, error) {
	return &scheduler.DeleteResult{Success: true, Updates: []string{"e2"}}, nil
}

func newHandlerContext(method, target string, body []byte, params ...gin.Param) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = params
	c.Set(logger.SchoolKey, "s1")
	return c, w
}

type envelope struct {
	Data  json.RawMessage  `json:"data"`
	Error *appErrors.Error `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestSessionHandlerOpen(t *testing.T) {
	mockSvc := &sessionManagerMock{}
	handler := &SessionHandler{service: mockSvc}
	c, w := newHandlerContext(http.MethodPost, "/sessions", []byte(`{"date":"2025-03-10"}`))

	handler.Open(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "s1", mockSvc.school)
	assert.Equal(t, "2025-03-10", mockSvc.openReq.Date)
}

func TestSessionHandlerOpenInvalidJSON(t *testing.T) {
	handler := &SessionHandler{service: &sessionManagerMock{}}
	c, w := newHandlerContext(http.MethodPost, "/sessions", []byte(`{"date":`))

	handler.Open(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, decodeEnvelope(t, w).Error.Code)
}

func TestSessionHandlerGetNotFound(t *testing.T) {
	handler := &SessionHandler{service: &sessionManagerMock{}}
	c, w := newHandlerContext(http.MethodGet, "/sessions/missing", nil, gin.Param{Key: "id", Value: "missing"})

	handler.Get(c)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "SESSION_NOT_FOUND", decodeEnvelope(t, w).Error.Code)
}

func TestSessionHandlerEventActionApplied(t *testing.T) {
	mockSvc := &sessionManagerMock{actionRes: &dto.EventActionResult{Applied: true, ChangedCount: 2}}
	handler := &SessionHandler{service: mockSvc}
	c, w := newHandlerContext(http.MethodPost, "/sessions/sess-1/teachers/t1/events/e1/later", nil,
		gin.Param{Key: "id", Value: "sess-1"},
		gin.Param{Key: "teacherId", Value: "t1"},
		gin.Param{Key: "eventId", Value: "e1"},
		gin.Param{Key: "action", Value: dto.ActionLater},
	)

	handler.EventAction(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.ActionLater, mockSvc.action)
	var result dto.EventActionResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &result))
	assert.True(t, result.Applied)
	assert.Equal(t, 2, result.ChangedCount)
}

func TestSessionHandlerEventActionRejectedCarriesCapabilities(t *testing.T) {
	mockSvc := &sessionManagerMock{
		actionRes: &dto.EventActionResult{Capabilities: scheduler.Capabilities{CanMoveLater: true}},
		actionErr: appErrors.ErrConstraint,
	}
	handler := &SessionHandler{service: mockSvc}
	c, w := newHandlerContext(http.MethodPost, "/", nil, gin.Param{Key: "action", Value: dto.ActionEarlier})

	handler.EventAction(c)

	require.Equal(t, http.StatusConflict, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, appErrors.ErrConstraint.Code, env.Error.Code)
	var result dto.EventActionResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.False(t, result.Applied)
	assert.True(t, result.Capabilities.CanMoveLater)
}

func TestSessionHandlerEventActionUnknownAction(t *testing.T) {
	mockSvc := &sessionManagerMock{actionErr: appErrors.Clone(appErrors.ErrValidation, "unknown action")}
	handler := &SessionHandler{service: mockSvc}
	c, w := newHandlerContext(http.MethodPost, "/", nil, gin.Param{Key: "action", Value: "sideways"})

	handler.EventAction(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, decodeEnvelope(t, w).Data)
}

func TestSessionHandlerSubmitFailure(t *testing.T) {
	mockSvc := &sessionManagerMock{submitErr: appErrors.Clone(appErrors.ErrNotFound, "event not found")}
	handler := &SessionHandler{service: mockSvc}
	c, w := newHandlerContext(http.MethodPost, "/", nil, gin.Param{Key: "id", Value: "sess-1"})

	handler.Submit(c)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionHandlerLockStatusRequiresQuery(t *testing.T) {
	mockSvc := &sessionManagerMock{}
	handler := &SessionHandler{service: mockSvc}

	c, w := newHandlerContext(http.MethodGet, "/sessions/sess-1/lock-status", nil)
	handler.LockStatus(c)
	require.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newHandlerContext(http.MethodGet, "/sessions/sess-1/lock-status?time=09:00", nil)
	handler.LockStatus(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "09:00", mockSvc.lockClock)
}

func TestSessionHandlerOptInOut(t *testing.T) {
	mockSvc := &sessionManagerMock{}
	handler := &SessionHandler{service: mockSvc}

	c, w := newHandlerContext(http.MethodPost, "/", nil, gin.Param{Key: "teacherId", Value: "t1"})
	handler.OptIn(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mockSvc.optIn)
	assert.True(t, *mockSvc.optIn)

	c, w = newHandlerContext(http.MethodDelete, "/", nil, gin.Param{Key: "teacherId", Value: "t1"})
	handler.OptOut(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, *mockSvc.optIn)
}

func TestSessionHandlerDropLesson(t *testing.T) {
	handler := &SessionHandler{service: &sessionManagerMock{}}
	c, w := newHandlerContext(http.MethodPost, "/", []byte(`{"teacherId":"t1","lessonId":"l9","commission":"12.50"}`))

	handler.DropLesson(c)

	require.Equal(t, http.StatusCreated, w.Code)
	var node scheduler.EventNode
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &node))
	assert.Equal(t, "l9", node.LessonID)
}

func TestSessionHandlerExport(t *testing.T) {
	mockSvc := &sessionManagerMock{export: &service.ExportResult{
		Filename:    "schedule-2025-03-10.csv",
		ContentType: "text/csv",
		Payload:     []byte("teacher,start\n"),
	}}
	handler := &SessionHandler{service: mockSvc}
	c, w := newHandlerContext(http.MethodGet, "/sessions/sess-1/export?format=csv&changes=true", nil)

	handler.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.changesOnly)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "schedule-2025-03-10.csv")
	assert.Equal(t, "teacher,start\n", w.Body.String())
}

func TestSessionHandlerExportUnsupportedFormat(t *testing.T) {
	handler := &SessionHandler{service: &sessionManagerMock{}}
	c, w := newHandlerContext(http.MethodGet, "/sessions/sess-1/export?format=xls", nil)

	handler.Export(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}
