package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lesson-queue-api/internal/models"
	"github.com/noah-isme/lesson-queue-api/pkg/jobs"
)

// JobTypeRefreshDay reloads every session of a school day.
const JobTypeRefreshDay = "refresh_day"

type changeSubscriber interface {
	Subscribe(ctx context.Context) (<-chan models.DayChange, error)
}

type dayRefresher interface {
	Refresh(ctx context.Context, schoolID string, day time.Time) (int, error)
}

type jobEnqueuer interface {
	TryEnqueue(job jobs.Job) error
}

// FeedService turns change feed messages into refresh jobs.
type FeedService struct {
	feed      changeSubscriber
	refresher dayRefresher
	logger    *zap.Logger
}

// NewFeedService constructs a FeedService.
func NewFeedService(feed changeSubscriber, refresher dayRefresher, logger *zap.Logger) *FeedService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedService{feed: feed, refresher: refresher, logger: logger}
}

// Run subscribes to the feed and enqueues a refresh job per message until ctx
// is cancelled or the subscription ends.
func (s *FeedService) Run(ctx context.Context, queue jobEnqueuer) error {
	changes, err := s.feed.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe change feed: %w", err)
	}
	s.logger.Info("change feed subscribed")
	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			s.dispatch(queue, change)
		}
	}
}

func (s *FeedService) dispatch(queue jobEnqueuer, change models.DayChange) {
	err := queue.TryEnqueue(jobs.Job{Type: JobTypeRefreshDay, Payload: change})
	switch {
	case errors.Is(err, jobs.ErrQueueFull):
		s.logger.Warn("refresh queue full, change dropped",
			zap.String("school_id", change.SchoolID),
			zap.String("day", change.Day),
		)
	case err != nil:
		s.logger.Error("enqueue refresh failed", zap.String("school_id", change.SchoolID), zap.Error(err))
	}
}

// HandleJob refreshes the sessions named by a refresh_day job. Errors make the queue retry.
func (s *FeedService) HandleJob(ctx context.Context, job jobs.Job) error {
	if job.Type != JobTypeRefreshDay {
		return nil
	}
	change, ok := job.Payload.(models.DayChange)
	if !ok {
		s.logger.Warn("refresh job without day change payload", zap.String("job_id", job.ID))
		return nil
	}
	day, err := time.Parse(models.DayLayout, change.Day)
	if err != nil {
		s.logger.Warn("refresh job with invalid day", zap.String("day", change.Day), zap.Error(err))
		return nil
	}

	refreshed, err := s.refresher.Refresh(ctx, change.SchoolID, day)
	if err != nil {
		s.logger.Warn("session refresh failed",
			zap.String("school_id", change.SchoolID),
			zap.String("day", change.Day),
			zap.Int("attempt", job.Attempt),
			zap.Error(err),
		)
		return err
	}
	if refreshed > 0 {
		s.logger.Debug("sessions refreshed",
			zap.String("school_id", change.SchoolID),
			zap.String("day", change.Day),
			zap.String("reason", change.Reason),
			zap.Int("sessions", refreshed),
		)
	}
	return nil
}
