package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-queue-api/internal/dto"
	"github.com/noah-isme/lesson-queue-api/internal/models"
	appErrors "github.com/noah-isme/lesson-queue-api/pkg/errors"
)

type eventRepository interface {
	ListByRange(ctx context.Context, schoolID string, from, to time.Time) ([]models.Event, error)
	FindByID(ctx context.Context, schoolID, id string) (*models.Event, error)
	Create(ctx context.Context, event *models.Event) error
	Update(ctx context.Context, schoolID string, patch models.EventPatch) error
	Delete(ctx context.Context, schoolID, id string) error
	BulkApply(ctx context.Context, schoolID string, patches []models.EventPatch, deletions []string) error
	BulkDelete(ctx context.Context, schoolID string, ids []string) (int64, error)
	BulkUpdateStatus(ctx context.Context, schoolID string, ids []string, status models.EventStatus) (int64, error)
	DaysOf(ctx context.Context, schoolID string, ids []string) ([]time.Time, error)
}

type activeTeacherLister interface {
	ListActive(ctx context.Context, schoolID string) ([]models.Teacher, error)
}

type changePublisher interface {
	Publish(ctx context.Context, change models.DayChange) error
}

// EventServiceConfig tunes snapshot caching.
type EventServiceConfig struct {
	SnapshotTTL time.Duration
}

// EventService is the persistence boundary of the scheduler. Every successful
// write evicts the cached day snapshot and announces the day on the change feed.
type EventService struct {
	events    eventRepository
	teachers  activeTeacherLister
	feed      changePublisher
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       EventServiceConfig
	now       func() time.Time
}

// NewEventService constructs an EventService. feed and cache are optional.
func NewEventService(events eventRepository, teachers activeTeacherLister, feed changePublisher, cache *CacheService, validate *validator.Validate, cfg EventServiceConfig, logger *zap.Logger) *EventService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{
		events:    events,
		teachers:  teachers,
		feed:      feed,
		cache:     cache,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// DaySnapshot returns the school's instructors and events for day, served from cache when possible.
func (s *EventService) DaySnapshot(ctx context.Context, schoolID string, day time.Time) (*models.DaySnapshot, error) {
	day = utcDay(day)
	dayKey := day.Format(models.DayLayout)
	key := SnapshotKey(schoolID, dayKey)

	var cached models.DaySnapshot
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	teachers, err := s.teachers.ListActive(ctx, schoolID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teachers")
	}
	events, err := s.events.ListByRange(ctx, schoolID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load events")
	}
	if teachers == nil {
		teachers = []models.Teacher{}
	}
	if events == nil {
		events = []models.Event{}
	}

	snapshot := &models.DaySnapshot{
		SchoolID:    schoolID,
		Day:         dayKey,
		Teachers:    teachers,
		Events:      events,
		GeneratedAt: s.now().UTC(),
	}
	_ = s.cache.Set(ctx, key, snapshot, s.cfg.SnapshotTTL)
	return snapshot, nil
}

// Create persists a new event.
func (s *EventService) Create(ctx context.Context, schoolID string, req dto.CreateEventRequest) (*models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}

	event := &models.Event{
		SchoolID:    schoolID,
		LessonID:    strings.TrimSpace(req.LessonID),
		BookingID:   strings.TrimSpace(req.BookingID),
		TeacherID:   strings.TrimSpace(req.TeacherID),
		Date:        req.Date.UTC(),
		Duration:    req.Duration,
		Location:    strings.TrimSpace(req.Location),
		Status:      models.EventStatus(req.Status),
		Capacity:    req.Capacity,
		Commission:  req.Commission,
		Revenue:     req.Revenue,
		PackageName: strings.TrimSpace(req.PackageName),
		Equipment:   strings.TrimSpace(req.Equipment),
	}
	if err := s.events.Create(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create event")
	}

	s.announce(ctx, schoolID, models.ChangeReasonCreated, []string{event.ID}, event.Date)
	return event, nil
}

// Update applies a partial update to one event.
func (s *EventService) Update(ctx context.Context, schoolID, id string, req dto.UpdateEventRequest) (*models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}

	event, err := s.find(ctx, schoolID, id)
	if err != nil {
		return nil, err
	}
	previousDay := event.Date

	patch := patchFromRequest(id, req)
	if patch.Empty() {
		return event, nil
	}
	if err := s.events.Update(ctx, schoolID, patch); err != nil {
		return nil, mapEventWriteError(err, "failed to update event")
	}

	applyPatch(event, patch)
	event.UpdatedAt = s.now().UTC()
	s.announce(ctx, schoolID, models.ChangeReasonUpdated, []string{id}, previousDay, event.Date)
	return event, nil
}

// Delete removes one event.
func (s *EventService) Delete(ctx context.Context, schoolID, id string) error {
	event, err := s.find(ctx, schoolID, id)
	if err != nil {
		return err
	}
	if err := s.events.Delete(ctx, schoolID, id); err != nil {
		return mapEventWriteError(err, "failed to delete event")
	}
	s.announce(ctx, schoolID, models.ChangeReasonDeleted, []string{id}, event.Date)
	return nil
}

// BulkUpdate validates and applies a batch of updates and deletions atomically.
func (s *EventService) BulkUpdate(ctx context.Context, schoolID string, req dto.BulkUpdateRequest) (*dto.BulkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload")
	}
	patches := make([]models.EventPatch, 0, len(req.Updates))
	for _, item := range req.Updates {
		patches = append(patches, patchFromRequest(item.ID, item.UpdateEventRequest))
	}
	if err := s.Apply(ctx, schoolID, patches, req.Deletions); err != nil {
		return nil, err
	}
	return &dto.BulkResult{Affected: int64(len(patches) + len(req.Deletions))}, nil
}

// Apply writes patches and deletions in one transaction. A missing event rolls
// the whole batch back and surfaces as NOT_FOUND.
func (s *EventService) Apply(ctx context.Context, schoolID string, patches []models.EventPatch, deletions []string) error {
	if len(patches) == 0 && len(deletions) == 0 {
		return nil
	}
	ids := make([]string, 0, len(patches)+len(deletions))
	var days []time.Time
	for _, patch := range patches {
		ids = append(ids, patch.ID)
		if patch.Date != nil {
			days = append(days, *patch.Date)
		}
	}
	ids = append(ids, deletions...)

	before, err := s.events.DaysOf(ctx, schoolID, ids)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve event days")
	}
	if err := s.events.BulkApply(ctx, schoolID, patches, deletions); err != nil {
		return mapEventWriteError(err, "failed to apply event changes")
	}

	s.announce(ctx, schoolID, models.ChangeReasonBulk, ids, append(before, days...)...)
	return nil
}

// BulkDelete removes the listed events.
func (s *EventService) BulkDelete(ctx context.Context, schoolID string, req dto.BulkDeleteRequest) (*dto.BulkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk delete payload")
	}
	days, err := s.events.DaysOf(ctx, schoolID, req.IDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve event days")
	}
	affected, err := s.events.BulkDelete(ctx, schoolID, req.IDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete events")
	}
	if affected > 0 {
		s.announce(ctx, schoolID, models.ChangeReasonDeleted, req.IDs, days...)
	}
	return &dto.BulkResult{Affected: affected}, nil
}

// BulkUpdateStatus sets one status on the listed events.
func (s *EventService) BulkUpdateStatus(ctx context.Context, schoolID string, req dto.BulkStatusRequest) (*dto.BulkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk status payload")
	}
	days, err := s.events.DaysOf(ctx, schoolID, req.IDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve event days")
	}
	affected, err := s.events.BulkUpdateStatus(ctx, schoolID, req.IDs, models.EventStatus(req.Status))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update event status")
	}
	if affected > 0 {
		s.announce(ctx, schoolID, models.ChangeReasonUpdated, req.IDs, days...)
	}
	return &dto.BulkResult{Affected: affected}, nil
}

func (s *EventService) find(ctx context.Context, schoolID, id string) (*models.Event, error) {
	event, err := s.events.FindByID(ctx, schoolID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	return event, nil
}

// announce evicts the cached snapshot of every touched day and publishes a
// DayChange per day. Feed failures are logged; the write already succeeded.
func (s *EventService) announce(ctx context.Context, schoolID, reason string, ids []string, days ...time.Time) {
	now := s.now().UTC()
	for _, day := range distinctDays(days) {
		_ = s.cache.Evict(ctx, SnapshotKey(schoolID, day))
		if s.feed == nil {
			continue
		}
		change := models.DayChange{SchoolID: schoolID, Day: day, Reason: reason, EventIDs: ids, At: now}
		if err := s.feed.Publish(ctx, change); err != nil {
			s.logger.Warn("publish day change failed",
				zap.String("school_id", schoolID),
				zap.String("day", day),
				zap.Error(err),
			)
		}
	}
}

func patchFromRequest(id string, req dto.UpdateEventRequest) models.EventPatch {
	patch := models.EventPatch{ID: id, Duration: req.Duration}
	if req.Date != nil {
		date := req.Date.UTC()
		patch.Date = &date
	}
	if req.Location != nil {
		location := strings.TrimSpace(*req.Location)
		patch.Location = &location
	}
	if req.Status != nil {
		status := models.EventStatus(*req.Status)
		patch.Status = &status
	}
	return patch
}

func applyPatch(event *models.Event, patch models.EventPatch) {
	if patch.Date != nil {
		event.Date = *patch.Date
	}
	if patch.Duration != nil {
		event.Duration = *patch.Duration
	}
	if patch.Location != nil {
		event.Location = *patch.Location
	}
	if patch.Status != nil {
		event.Status = *patch.Status
	}
}

func mapEventWriteError(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "event not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func distinctDays(days []time.Time) []string {
	seen := make(map[string]struct{}, len(days))
	out := make([]string, 0, len(days))
	for _, day := range days {
		key := utcDay(day).Format(models.DayLayout)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
