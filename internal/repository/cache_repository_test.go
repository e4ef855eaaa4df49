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
	appErrors "github.com/noah-isme/lesson-queue-api/pkg/errors"
)

func TestCacheRepositoryGetSet(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := NewCacheRepository(client, nil)
	ctx := context.Background()

	snapshot := models.DaySnapshot{SchoolID: "s1", Day: "2025-03-10"}
	payload := `{"school_id":"s1","day":"2025-03-10","teachers":null,"events":null,"generated_at":"0001-01-01T00:00:00Z"}`

	mock.ExpectSet("snapshot:s1:2025-03-10", []byte(payload), time.Minute).SetVal("OK")
	require.NoError(t, repo.Set(ctx, "snapshot:s1:2025-03-10", snapshot, time.Minute))

	mock.ExpectGet("snapshot:s1:2025-03-10").SetVal(payload)
	var got models.DaySnapshot
	require.NoError(t, repo.Get(ctx, "snapshot:s1:2025-03-10", &got))
	assert.Equal(t, "s1", got.SchoolID)

	mock.ExpectGet("snapshot:s1:2025-03-11").RedisNil()
	assert.ErrorIs(t, repo.Get(ctx, "snapshot:s1:2025-03-11", &got), appErrors.ErrCacheMiss)

	mock.ExpectGet("snapshot:s1:2025-03-12").SetErr(errors.New("timeout"))
	err := repo.Get(ctx, "snapshot:s1:2025-03-12", &got)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, appErrors.ErrCacheMiss)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheRepositoryDelete(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := NewCacheRepository(client, nil)
	ctx := context.Background()

	mock.ExpectDel("snapshot:s1:2025-03-10").SetVal(1)
	require.NoError(t, repo.Delete(ctx, "snapshot:s1:2025-03-10"))

	mock.ExpectScan(0, "snapshot:s1:*", scanBatch).SetVal([]string{"snapshot:s1:a", "snapshot:s1:b"}, 7)
	mock.ExpectDel("snapshot:s1:a", "snapshot:s1:b").SetVal(2)
	mock.ExpectScan(7, "snapshot:s1:*", scanBatch).SetVal(nil, 0)
	require.NoError(t, repo.DeleteByPattern(ctx, "snapshot:s1:*"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	var dest models.DaySnapshot
	assert.ErrorIs(t, repo.Get(context.Background(), "k", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "k", dest, time.Minute))
	assert.NoError(t, repo.Delete(context.Background(), "k"))
}
