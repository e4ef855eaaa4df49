package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-queue-api/internal/dto"
	"github.com/noah-isme/lesson-queue-api/internal/models"
	appErrors "github.com/noah-isme/lesson-queue-api/pkg/errors"
)

type teacherRosterMock struct {
	filter  models.TeacherFilter
	created dto.CreateTeacherRequest
}

func (m *teacherRosterMock) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error) {
	m.filter = filter
	return []models.Teacher{{ID: "t1", Username: "ana"}}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: 1}, nil
}

func (m *teacherRosterMock) Get(ctx context.Context, schoolID, id string) (*models.Teacher, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
}

func (m *teacherRosterMock) Create(ctx context.Context, schoolID string, req dto.CreateTeacherRequest) (*models.Teacher, error) {
	m.created = req
	return &models.Teacher{ID: "t9", SchoolID: schoolID, Username: req.Username}, nil
}

func TestTeacherHandlerListParsesFilters(t *testing.T) {
	mockSvc := &teacherRosterMock{}
	handler := &TeacherHandler{service: mockSvc}
	c, w := newHandlerContext(http.MethodGet, "/teachers?search=%20an%20&active=true&page=2&limit=5", nil)

	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s1", mockSvc.filter.SchoolID)
	assert.Equal(t, "an", mockSvc.filter.Search)
	require.NotNil(t, mockSvc.filter.Active)
	assert.True(t, *mockSvc.filter.Active)
	assert.Equal(t, 2, mockSvc.filter.Page)
	assert.Equal(t, 5, mockSvc.filter.PageSize)
	assert.Contains(t, w.Body.String(), `"total_count":1`)
}

func TestTeacherHandlerGetAndCreate(t *testing.T) {
	mockSvc := &teacherRosterMock{}
	handler := &TeacherHandler{service: mockSvc}

	c, w := newHandlerContext(http.MethodGet, "/teachers/t1", nil, gin.Param{Key: "id", Value: "t1"})
	handler.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)

	c, w = newHandlerContext(http.MethodPost, "/teachers", []byte(`{"username":"cleo"}`))
	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "cleo", mockSvc.created.Username)
}
