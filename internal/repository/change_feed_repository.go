package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-queue-api/internal/models"
)

// ChangeFeedRepository publishes and consumes DayChange messages over Redis pub/sub.
type ChangeFeedRepository struct {
	client  redis.UniversalClient
	channel string
	logger  *zap.Logger
}

// NewChangeFeedRepository constructs a feed bound to channel.
func NewChangeFeedRepository(client redis.UniversalClient, channel string, logger *zap.Logger) *ChangeFeedRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChangeFeedRepository{client: client, channel: channel, logger: logger}
}

// Channel returns the pub/sub channel name.
func (r *ChangeFeedRepository) Channel() string {
	return r.channel
}

// Publish announces a change. A nil client makes the feed a no-op.
func (r *ChangeFeedRepository) Publish(ctx context.Context, change models.DayChange) error {
	if r.client == nil {
		return nil
	}
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal day change: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish day change: %w", err)
	}
	return nil
}

// Subscribe streams changes until ctx is cancelled. Malformed messages are logged and skipped.
func (r *ChangeFeedRepository) Subscribe(ctx context.Context) (<-chan models.DayChange, error) {
	if r.client == nil {
		return nil, fmt.Errorf("subscribe %s: redis client not configured", r.channel)
	}
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	out := make(chan models.DayChange)
	go func() {
		defer close(out)
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				change, err := DecodeDayChange(msg.Payload)
				if err != nil {
					r.logger.Warn("discarding malformed day change", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// DecodeDayChange parses a feed payload.
func DecodeDayChange(payload string) (models.DayChange, error) {
	var change models.DayChange
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		return models.DayChange{}, fmt.Errorf("decode day change: %w", err)
	}
	if change.SchoolID == "" || change.Day == "" {
		return models.DayChange{}, fmt.Errorf("decode day change: school_id and day are required")
	}
	return change, nil
}
