package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-queue-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var eventRowColumns = []string{"id", "school_id", "lesson_id", "booking_id", "teacher_id", "teacher_username", "date", "duration", "location", "status", "capacity", "commission", "revenue", "package_name", "equipment", "created_at", "updated_at"}

func TestEventRepositoryListByRange(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	day := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	start := day.Add(9 * time.Hour)
	rows := sqlmock.NewRows(eventRowColumns).
		AddRow("e1", "s1", "l1", "b1", "t1", "ana", start, 60, "Beach", "planned", 2, "12.50", "80.00", "Kite 3h", "", start, start)
	mock.ExpectQuery(regexp.QuoteMeta("FROM events e JOIN teachers t ON t.id = e.teacher_id WHERE e.school_id = $1 AND e.date >= $2 AND e.date < $3 ORDER BY e.teacher_id ASC, e.date ASC")).
		WithArgs("s1", day, day.AddDate(0, 0, 1)).
		WillReturnRows(rows)

	events, err := repo.ListByRange(context.Background(), "s1", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ana", events[0].TeacherUsername)
	assert.Equal(t, models.EventStatusPlanned, events[0].Status)
	assert.True(t, events[0].Commission.Equal(decimal.RequireFromString("12.5")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	mock.ExpectExec("INSERT INTO events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	event := &models.Event{SchoolID: "s1", LessonID: "l1", TeacherID: "t1", Date: time.Now(), Duration: 60}
	require.NoError(t, repo.Create(context.Background(), event))
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, models.EventStatusPlanned, event.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryUpdateBuildsPartialSet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	duration := 90
	location := "Lagoon"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE events SET duration = $1, location = $2, updated_at = $3 WHERE id = $4 AND school_id = $5")).
		WithArgs(90, "Lagoon", sqlmock.AnyArg(), "e1", "s1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "s1", models.EventPatch{ID: "e1", Duration: &duration, Location: &location})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryUpdateMissingRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	status := models.EventStatusCompleted
	mock.ExpectExec(regexp.QuoteMeta("UPDATE events SET status = $1")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), "s1", models.EventPatch{ID: "gone", Status: &status})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryBulkApplyCommits(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	date := time.Date(2025, time.March, 10, 10, 30, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE events SET date = $1, updated_at = $2 WHERE id = $3 AND school_id = $4")).
		WithArgs(date, sqlmock.AnyArg(), "e1", "s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM events WHERE id = $1 AND school_id = $2")).
		WithArgs("e2", "s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.BulkApply(context.Background(), "s1", []models.EventPatch{{ID: "e1", Date: &date}}, []string{"e2"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryBulkApplyRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	date := time.Date(2025, time.March, 10, 10, 30, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE events SET date = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE events SET date = $1")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.BulkApply(context.Background(), "s1", []models.EventPatch{{ID: "e1", Date: &date}, {ID: "e9", Date: &date}}, nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.Contains(t, err.Error(), "e9")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryBulkDeleteAndStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM events WHERE school_id = $1 AND id = ANY($2)")).
		WithArgs("s1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE events SET status = $1, updated_at = $2 WHERE school_id = $3 AND id = ANY($4)")).
		WithArgs(models.EventStatusTBC, sqlmock.AnyArg(), "s1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := repo.BulkDelete(context.Background(), "s1", []string{"e1", "e2"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	updated, err := repo.BulkUpdateStatus(context.Background(), "s1", []string{"e3"}, models.EventStatusTBC)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	none, err := repo.BulkDelete(context.Background(), "s1", nil)
	require.NoError(t, err)
	assert.Zero(t, none)
	assert.NoError(t, mock.ExpectationsWereMet())
}
