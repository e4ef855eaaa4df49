package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-queue-api/internal/dto"
	"github.com/noah-isme/lesson-queue-api/internal/models"
	appErrors "github.com/noah-isme/lesson-queue-api/pkg/errors"
)

type eventStoreMock struct {
	day       time.Time
	created   dto.CreateEventRequest
	updatedID string
	bulk      dto.BulkUpdateRequest
	status    dto.BulkStatusRequest
	deleteErr error
}

func (m *eventStoreMock) DaySnapshot(ctx context.Context, schoolID string, day time.Time) (*models.DaySnapshot, error) {
	m.day = day
	return &models.DaySnapshot{SchoolID: schoolID, Day: day.Format(models.DayLayout)}, nil
}

func (m *eventStoreMock) Create(ctx context.Context, schoolID string, req dto.CreateEventRequest) (*models.Event, error) {
	m.created = req
	return &models.Event{ID: "e1", SchoolID: schoolID, LessonID: req.LessonID}, nil
}

func (m *eventStoreMock) Update(ctx context.Context, schoolID, id string, req dto.UpdateEventRequest) (*models.Event, error) {
	m.updatedID = id
	return &models.Event{ID: id}, nil
}

func (m *eventStoreMock) Delete(ctx context.Context, schoolID, id string) error {
	return m.deleteErr
}

func (m *eventStoreMock) BulkUpdate(ctx context.Context, schoolID string, req dto.BulkUpdateRequest) (*dto.BulkResult, error) {
	m.bulk = req
	return &dto.BulkResult{Affected: int64(len(req.Updates) + len(req.Deletions))}, nil
}

func (m *eventStoreMock) BulkDelete(ctx context.Context, schoolID string, req dto.BulkDeleteRequest) (*dto.BulkResult, error) {
	return &dto.BulkResult{Affected: int64(len(req.IDs))}, nil
}

func (m *eventStoreMock) BulkUpdateStatus(ctx context.Context, schoolID string, req dto.BulkStatusRequest) (*dto.BulkResult, error) {
	m.status = req
	return &dto.BulkResult{Affected: int64(len(req.IDs))}, nil
}

func TestEventHandlerDay(t *testing.T) {
	mockSvc := &eventStoreMock{}
	handler := &EventHandler{service: mockSvc}
	c, w := newHandlerContext(http.MethodGet, "/events?date=2025-03-10", nil)

	handler.Day(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC), mockSvc.day)
}

func TestEventHandlerDayRejectsBadDate(t *testing.T) {
	handler := &EventHandler{service: &eventStoreMock{}}
	c, w := newHandlerContext(http.MethodGet, "/events?date=10/03/2025", nil)

	handler.Day(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventHandlerCreate(t *testing.T) {
	mockSvc := &eventStoreMock{}
	handler := &EventHandler{service: mockSvc}
	body := []byte(`{"teacherId":"t1","lessonId":"l1","date":"2025-03-10T09:00:00Z","duration":60,"revenue":"80.00"}`)
	c, w := newHandlerContext(http.MethodPost, "/events", body)

	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "l1", mockSvc.created.LessonID)
	assert.Equal(t, "80", mockSvc.created.Revenue.String())
}

func TestEventHandlerUpdate(t *testing.T) {
	mockSvc := &eventStoreMock{}
	handler := &EventHandler{service: mockSvc}
	c, w := newHandlerContext(http.MethodPatch, "/events/e7", []byte(`{"duration":90}`), gin.Param{Key: "id", Value: "e7"})

	handler.Update(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "e7", mockSvc.updatedID)
}

func TestEventHandlerDelete(t *testing.T) {
	handler := &EventHandler{service: &eventStoreMock{}}
	c, w := newHandlerContext(http.MethodDelete, "/events/e1", nil, gin.Param{Key: "id", Value: "e1"})
	handler.Delete(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)

	handler = &EventHandler{service: &eventStoreMock{deleteErr: appErrors.Clone(appErrors.ErrNotFound, "event not found")}}
	c, w = newHandlerContext(http.MethodDelete, "/events/e1", nil, gin.Param{Key: "id", Value: "e1"})
	handler.Delete(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEventHandlerBulkEndpoints(t *testing.T) {
	mockSvc := &eventStoreMock{}
	handler := &EventHandler{service: mockSvc}

	c, w := newHandlerContext(http.MethodPost, "/events/bulk-update", []byte(`{"updates":[{"id":"e1","duration":90}],"deletions":["e2"]}`))
	handler.BulkUpdate(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, mockSvc.bulk.Updates, 1)
	require.NotNil(t, mockSvc.bulk.Updates[0].Duration)
	assert.Equal(t, 90, *mockSvc.bulk.Updates[0].Duration)

	c, w = newHandlerContext(http.MethodPost, "/events/bulk-status", []byte(`{"ids":["e1","e3"],"status":"completed"}`))
	handler.BulkStatus(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "completed", mockSvc.status.Status)
	var result dto.BulkResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &result))
	assert.Equal(t, int64(2), result.Affected)

	c, w = newHandlerContext(http.MethodPost, "/events/bulk-delete", []byte(`{"ids":`))
	handler.BulkDelete(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
