package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-queue-api/internal/models"
)

func TestChangeFeedRepositoryPublish(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := NewChangeFeedRepository(client, "schedule:changes", nil)

	at := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	change := models.DayChange{SchoolID: "s1", Day: "2025-03-10", Reason: models.ChangeReasonBulk, EventIDs: []string{"e1"}, At: at}
	payload := []byte(`{"school_id":"s1","day":"2025-03-10","reason":"bulk","event_ids":["e1"],"at":"2025-03-10T08:00:00Z"}`)

	mock.ExpectPublish("schedule:changes", payload).SetVal(1)
	require.NoError(t, repo.Publish(context.Background(), change))

	mock.ExpectPublish("schedule:changes", payload).SetErr(errors.New("broken pipe"))
	assert.Error(t, repo.Publish(context.Background(), change))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeFeedRepositoryWithoutClient(t *testing.T) {
	repo := NewChangeFeedRepository(nil, "schedule:changes", nil)
	assert.NoError(t, repo.Publish(context.Background(), models.DayChange{SchoolID: "s1"}))
	_, err := repo.Subscribe(context.Background())
	assert.Error(t, err)
}

func TestDecodeDayChange(t *testing.T) {
	change, err := DecodeDayChange(`{"school_id":"s1","day":"2025-03-10","reason":"deleted"}`)
	require.NoError(t, err)
	assert.Equal(t, "s1", change.SchoolID)
	assert.Equal(t, models.ChangeReasonDeleted, change.Reason)

	_, err = DecodeDayChange(`{"school_id":"s1"}`)
	assert.Error(t, err)
	_, err = DecodeDayChange(`not json`)
	assert.Error(t, err)
}
