package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-queue-api/internal/dto"
	"github.com/noah-isme/lesson-queue-api/internal/models"
	"github.com/noah-isme/lesson-queue-api/internal/scheduler"
	appErrors "github.com/noah-isme/lesson-queue-api/pkg/errors"
	"github.com/noah-isme/lesson-queue-api/pkg/export"
)

type sessionEventStore interface {
	DaySnapshot(ctx context.Context, schoolID string, day time.Time) (*models.DaySnapshot, error)
	Apply(ctx context.Context, schoolID string, patches []models.EventPatch, deletions []string) error
	Create(ctx context.Context, schoolID string, req dto.CreateEventRequest) (*models.Event, error)
	Delete(ctx context.Context, schoolID, id string) error
}

// SessionConfig tunes editing sessions.
type SessionConfig struct {
	TTL      time.Duration
	Defaults scheduler.ControllerSettings
}

type editingSession struct {
	mu        sync.Mutex
	id        string
	schoolID  string
	day       time.Time
	flag      *scheduler.GlobalFlag
	expiresAt time.Time
	closed    bool
}

func (e *editingSession) dayKey() string {
	return e.day.Format(models.DayLayout)
}

// SessionService owns the in-memory editing sessions. Each session wraps one
// GlobalFlag over a school day and is guarded by its own mutex; the registry
// has a separate lock that is never held together with a session lock.
type SessionService struct {
	events    sessionEventStore
	exporter  *ExportService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       SessionConfig
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*editingSession
}

// NewSessionService constructs a SessionService.
func NewSessionService(events sessionEventStore, exporter *ExportService, metrics *MetricsService, validate *validator.Validate, cfg SessionConfig, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if exporter == nil {
		exporter = NewExportService(ExportConfig{}, logger, nil, nil)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 8 * time.Hour
	}
	if cfg.Defaults.SubmitTime == "" {
		cfg.Defaults = scheduler.DefaultSettings()
	}
	return &SessionService{
		events:    events,
		exporter:  exporter,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
		sessions:  make(map[string]*editingSession),
	}
}

// Open loads the day snapshot and starts a session over it.
func (s *SessionService) Open(ctx context.Context, schoolID string, req dto.OpenSessionRequest) (*dto.SessionView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	day, err := time.Parse(models.DayLayout, req.Date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session date")
	}
	settings := s.cfg.Defaults
	if req.Settings != nil {
		settings = *req.Settings
	}
	if err := settings.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid controller settings")
	}

	snapshot, err := s.events.DaySnapshot(ctx, schoolID, day)
	if err != nil {
		return nil, err
	}

	sess := &editingSession{
		id:        uuid.NewString(),
		schoolID:  schoolID,
		day:       day,
		flag:      scheduler.NewGlobalFlag(buildQueues(snapshot, day), settings, nil),
		expiresAt: s.now().Add(s.cfg.TTL),
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	s.metrics.SessionOpened()

	s.logger.Info("editing session opened",
		zap.String("session_id", sess.id),
		zap.String("school_id", schoolID),
		zap.String("day", sess.dayKey()),
	)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.view(sess), nil
}

// View renders the session.
func (s *SessionService) View(ctx context.Context, schoolID, id string) (*dto.SessionView, error) {
	return s.withView(schoolID, id, func(sess *editingSession) error { return nil })
}

// Close cancels every buffered edit and drops the session.
func (s *SessionService) Close(ctx context.Context, schoolID, id string) error {
	err := s.with(schoolID, id, func(sess *editingSession) error {
		sess.flag.Cancel()
		sess.closed = true
		return nil
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	s.metrics.SessionClosed()
	return nil
}

// EnterAdjustment opens a school-wide bulk edit.
func (s *SessionService) EnterAdjustment(ctx context.Context, schoolID, id string) (*dto.SessionView, error) {
	return s.withView(schoolID, id, func(sess *editingSession) error {
		sess.flag.EnterAdjustmentMode()
		return nil
	})
}

// CancelAdjustment discards every buffered edit and leaves adjustment mode.
func (s *SessionService) CancelAdjustment(ctx context.Context, schoolID, id string) (*dto.SessionView, error) {
	return s.withView(schoolID, id, func(sess *editingSession) error {
		sess.flag.Cancel()
		return nil
	})
}

// Discard resets every buffered edit; adjustment mode stays open.
func (s *SessionService) Discard(ctx context.Context, schoolID, id string) (*dto.SessionView, error) {
	return s.withView(schoolID, id, func(sess *editingSession) error {
		sess.flag.DiscardChanges()
		return nil
	})
}

// UpdateSettings pushes new controller settings into the session.
func (s *SessionService) UpdateSettings(ctx context.Context, schoolID, id string, settings scheduler.ControllerSettings) (*dto.SessionView, error) {
	if err := s.validator.Struct(settings); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid controller settings")
	}
	if err := settings.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid controller settings")
	}
	return s.withView(schoolID, id, func(sess *editingSession) error {
		sess.flag.UpdateController(settings)
		return nil
	})
}

// AdjustTime moves the first event of every opted-in instructor to the clock.
func (s *SessionService) AdjustTime(ctx context.Context, schoolID, id string, req dto.AdjustTimeRequest) (*dto.BulkAdjustResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid time")
	}
	return s.bulkAdjust(schoolID, id, func(flag *scheduler.GlobalFlag) int { return flag.AdjustTime(req.Time) })
}

// AdjustLocation moves every event of every opted-in instructor to the location.
func (s *SessionService) AdjustLocation(ctx context.Context, schoolID, id string, req dto.AdjustLocationRequest) (*dto.BulkAdjustResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid location")
	}
	return s.bulkAdjust(schoolID, id, func(flag *scheduler.GlobalFlag) int { return flag.AdjustLocation(req.Location) })
}

// LockTime opts in every instructor with events and aligns their first start.
func (s *SessionService) LockTime(ctx context.Context, schoolID, id string, req dto.AdjustTimeRequest) (*dto.BulkAdjustResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid time")
	}
	return s.bulkAdjust(schoolID, id, func(flag *scheduler.GlobalFlag) int { return flag.LockToAdjustmentTime(req.Time) })
}

// LockLocation opts in every instructor with events and moves them to the location.
func (s *SessionService) LockLocation(ctx context.Context, schoolID, id string, req dto.AdjustLocationRequest) (*dto.BulkAdjustResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid location")
	}
	return s.bulkAdjust(schoolID, id, func(flag *scheduler.GlobalFlag) int { return flag.LockToLocation(req.Location) })
}

// LockStatus reports how far a time and/or location has been applied.
func (s *SessionService) LockStatus(ctx context.Context, schoolID, id, clock, location string) (*dto.LockStatusView, error) {
	out := &dto.LockStatusView{}
	err := s.with(schoolID, id, func(sess *editingSession) error {
		if clock != "" {
			status := sess.flag.GetLockStatusTime(clock)
			out.Time = &status
		}
		if location != "" {
			status := sess.flag.GetLockStatusLocation(location)
			out.Location = &status
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Changes returns the diff a submit would send.
func (s *SessionService) Changes(ctx context.Context, schoolID, id string) (*scheduler.ChangeSummary, error) {
	var summary scheduler.ChangeSummary
	err := s.with(schoolID, id, func(sess *editingSession) error {
		summary = sess.flag.CollectChanges()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// Submit persists every buffered change in one batch. On failure the buffer
// is left untouched so the same diff can be retried.
func (s *SessionService) Submit(ctx context.Context, schoolID, id string) (*dto.SubmitResult, error) {
	var result *dto.SubmitResult
	err := s.with(schoolID, id, func(sess *editingSession) error {
		summary := sess.flag.CollectChanges()
		if summary.Count == 0 {
			result = &dto.SubmitResult{Summary: summary}
			return nil
		}

		err := s.events.Apply(ctx, sess.schoolID, patchesFromUpdates(summary.Updates), summary.Deletions)
		s.metrics.RecordSubmit(summary.Count, err)
		if err != nil {
			s.logger.Error("submit failed",
				zap.String("session_id", sess.id),
				zap.String("school_id", sess.schoolID),
				zap.Int("changes", summary.Count),
				zap.Error(err),
			)
			var appErr *appErrors.Error
			if errors.As(err, &appErr) {
				return appErr
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit changes")
		}

		sess.flag.CommitAll()
		s.logger.Info("changes submitted",
			zap.String("session_id", sess.id),
			zap.String("school_id", sess.schoolID),
			zap.Int("changes", summary.Count),
		)
		result = &dto.SubmitResult{Submitted: summary.Count, Summary: summary}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DropLesson places an optimistic placeholder, creates the event and reloads
// the session so the confirmed row replaces the placeholder. A failed create
// removes the placeholder again.
func (s *SessionService) DropLesson(ctx context.Context, schoolID, id string, req dto.DropLessonRequest) (*scheduler.EventNode, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}

	var (
		target      *editingSession
		placeholder scheduler.EventNode
	)
	err := s.with(schoolID, id, func(sess *editingSession) error {
		node, err := sess.flag.AddOptimisticEvent(req.TeacherID, scheduler.OptimisticDraft{
			LessonID:    req.LessonID,
			BookingID:   req.BookingID,
			Capacity:    req.Capacity,
			Location:    req.Location,
			PackageName: req.PackageName,
			Commission:  req.Commission,
			Revenue:     req.Revenue,
		})
		switch {
		case errors.Is(err, scheduler.ErrUnknownTeacher):
			return appErrors.Clone(appErrors.ErrNotFound, "teacher is not part of the session")
		case errors.Is(err, scheduler.ErrQueueFull):
			return appErrors.Clone(appErrors.ErrConstraint, "lesson does not fit in the teacher queue")
		case err != nil:
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to place lesson")
		}
		target, placeholder = sess, node
		return nil
	})
	if err != nil {
		return nil, err
	}

	created, err := s.events.Create(ctx, schoolID, dto.CreateEventRequest{
		TeacherID:   placeholder.TeacherID,
		LessonID:    placeholder.LessonID,
		BookingID:   placeholder.BookingID,
		Date:        placeholder.Date,
		Duration:    placeholder.Duration,
		Location:    placeholder.Location,
		Status:      string(scheduler.EventStatusPlanned),
		Capacity:    placeholder.Capacity,
		Commission:  placeholder.Commission,
		Revenue:     placeholder.Revenue,
		PackageName: placeholder.PackageName,
	})
	if err != nil {
		target.mu.Lock()
		target.flag.RemoveOptimisticEvent(placeholder.ID)
		target.mu.Unlock()
		s.logger.Warn("drop lesson failed",
			zap.String("session_id", target.id),
			zap.String("lesson_id", placeholder.LessonID),
			zap.Error(err),
		)
		return nil, err
	}

	if err := s.reload(ctx, []*editingSession{target}); err != nil {
		s.logger.Warn("reload after drop lesson failed", zap.String("session_id", target.id), zap.Error(err))
	}

	node := eventNode(*created)
	node.TeacherUsername = placeholder.TeacherUsername
	return &node, nil
}

// SetOptIn opts an instructor in to or out of the edit.
func (s *SessionService) SetOptIn(ctx context.Context, schoolID, id, teacherID string, optIn bool) (*dto.SessionView, error) {
	return s.withView(schoolID, id, func(sess *editingSession) error {
		if optIn {
			_, err := controllerFor(sess, teacherID)
			return err
		}
		if _, ok := sess.flag.TeacherQueue(teacherID); !ok {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher is not part of the session")
		}
		sess.flag.OptOut(teacherID)
		return nil
	})
}

// ToggleLock flips an instructor between cascade and respect-time mode.
func (s *SessionService) ToggleLock(ctx context.Context, schoolID, id, teacherID string) (*dto.LockToggleResult, error) {
	var result *dto.LockToggleResult
	err := s.with(schoolID, id, func(sess *editingSession) error {
		ctrl, err := controllerFor(sess, teacherID)
		if err != nil {
			return err
		}
		result = &dto.LockToggleResult{TeacherID: teacherID, Locked: ctrl.ToggleLocked()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Optimise packs an instructor's queue to the configured gap.
func (s *SessionService) Optimise(ctx context.Context, schoolID, id, teacherID string) (*scheduler.OptimiseResult, error) {
	var result scheduler.OptimiseResult
	err := s.with(schoolID, id, func(sess *editingSession) error {
		ctrl, err := controllerFor(sess, teacherID)
		if err != nil {
			return err
		}
		result = ctrl.OptimiseQueue()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// EventAction applies one per-event edit. A rejected edit returns the result
// alongside a CONSTRAINT_VIOLATION error so callers can show the capabilities.
func (s *SessionService) EventAction(ctx context.Context, schoolID, id, teacherID, eventID, action string) (*dto.EventActionResult, error) {
	var result *dto.EventActionResult
	err := s.with(schoolID, id, func(sess *editingSession) error {
		ctrl, err := controllerFor(sess, teacherID)
		if err != nil {
			return err
		}
		if _, ok := ctrl.Queue().Event(eventID); !ok {
			return appErrors.Clone(appErrors.ErrNotFound, "event not found in teacher queue")
		}

		var applied bool
		switch action {
		case dto.ActionMoveUp:
			applied = ctrl.MoveUp(eventID)
		case dto.ActionMoveDown:
			applied = ctrl.MoveDown(eventID)
		case dto.ActionEarlier:
			applied = ctrl.AdjustTime(eventID, false)
		case dto.ActionLater:
			applied = ctrl.AdjustTime(eventID, true)
		case dto.ActionGrow:
			applied = ctrl.AdjustDuration(eventID, true)
		case dto.ActionShrink:
			applied = ctrl.AdjustDuration(eventID, false)
		case dto.ActionAddGap:
			applied = ctrl.AddGap(eventID)
		case dto.ActionRemoveGap:
			applied = ctrl.RemoveGap(eventID)
		default:
			return appErrors.Clone(appErrors.ErrValidation, "unknown event action")
		}

		result = &dto.EventActionResult{
			Applied:      applied,
			Capabilities: ctrl.Capabilities(eventID),
			ChangedCount: sess.flag.GetChangedEventsCount(),
		}
		if !applied {
			return appErrors.Clone(appErrors.ErrConstraint, "")
		}
		return nil
	})
	return result, err
}

// DeleteEvent deletes an event of an instructor's queue. Confirmed events are
// deleted in the store right away; placeholders only locally.
func (s *SessionService) DeleteEvent(ctx context.Context, schoolID, id, teacherID, eventID string) (*scheduler.DeleteResult, error) {
	var result scheduler.DeleteResult
	err := s.with(schoolID, id, func(sess *editingSession) error {
		ctrl, err := controllerFor(sess, teacherID)
		if err != nil {
			return err
		}
		if _, ok := ctrl.Queue().Event(eventID); !ok {
			return appErrors.Clone(appErrors.ErrNotFound, "event not found in teacher queue")
		}
		persist := func(ctx context.Context, eventID string) error {
			return s.events.Delete(ctx, sess.schoolID, eventID)
		}
		result = ctrl.DeleteEvent(ctx, eventID, persist, nil)
		if result.Err != nil {
			var appErr *appErrors.Error
			if errors.As(result.Err, &appErr) {
				return appErr
			}
			return appErrors.Wrap(result.Err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Export renders the merged queues, or only the pending changes, as CSV or PDF.
func (s *SessionService) Export(ctx context.Context, schoolID, id, format string, changesOnly bool) (*ExportResult, error) {
	var (
		data     export.Dataset
		basename string
	)
	err := s.with(schoolID, id, func(sess *editingSession) error {
		day := sess.dayKey()
		if changesOnly {
			data = s.exporter.ChangesDataset(day, sess.flag.CollectChanges())
			basename = "changes-" + day
			return nil
		}
		data = s.exporter.QueueDataset(day, sess.flag.GetTeacherQueues())
		basename = "queues-" + day
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.exporter.Render(format, basename, data)
}

// Refresh reloads the day snapshot into every session of the school day. Opted
// in instructors keep their buffered edits. It returns how many sessions were refreshed.
func (s *SessionService) Refresh(ctx context.Context, schoolID string, day time.Time) (int, error) {
	dayKey := utcDay(day).Format(models.DayLayout)

	s.mu.RLock()
	var targets []*editingSession
	for _, sess := range s.sessions {
		if sess.schoolID == schoolID && sess.dayKey() == dayKey {
			targets = append(targets, sess)
		}
	}
	s.mu.RUnlock()

	if len(targets) == 0 {
		return 0, nil
	}
	err := s.reload(ctx, targets)
	s.metrics.RecordRefresh(err)
	if err != nil {
		return 0, err
	}
	return len(targets), nil
}

// ExpireIdle drops sessions whose TTL elapsed and returns how many were dropped.
func (s *SessionService) ExpireIdle() int {
	now := s.now()

	s.mu.RLock()
	candidates := make([]*editingSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		candidates = append(candidates, sess)
	}
	s.mu.RUnlock()

	var expired []string
	for _, sess := range candidates {
		sess.mu.Lock()
		if !sess.closed && now.After(sess.expiresAt) {
			sess.flag.Cancel()
			sess.closed = true
			expired = append(expired, sess.id)
		}
		sess.mu.Unlock()
	}
	if len(expired) == 0 {
		return 0
	}

	s.mu.Lock()
	for _, id := range expired {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	for range expired {
		s.metrics.SessionClosed()
	}
	s.logger.Info("idle sessions expired", zap.Int("count", len(expired)))
	return len(expired)
}

// Run expires idle sessions every interval until ctx is cancelled.
func (s *SessionService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ExpireIdle()
		}
	}
}

func (s *SessionService) reload(ctx context.Context, targets []*editingSession) error {
	first := targets[0]
	snapshot, err := s.events.DaySnapshot(ctx, first.schoolID, first.day)
	if err != nil {
		return err
	}
	for _, sess := range targets {
		sess.mu.Lock()
		if !sess.closed {
			sess.flag.UpdateTeacherQueues(buildQueues(snapshot, sess.day))
			sess.flag.TriggerRefresh()
		}
		sess.mu.Unlock()
	}
	return nil
}

func (s *SessionService) lookup(schoolID, id string) (*editingSession, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok || sess.schoolID != schoolID {
		return nil, appErrors.Clone(appErrors.ErrSessionNotFound, "")
	}
	return sess, nil
}

// with runs fn under the session lock and extends the session TTL.
func (s *SessionService) with(schoolID, id string, fn func(sess *editingSession) error) error {
	sess, err := s.lookup(schoolID, id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	now := s.now()
	if sess.closed || now.After(sess.expiresAt) {
		return appErrors.Clone(appErrors.ErrSessionNotFound, "")
	}
	sess.expiresAt = now.Add(s.cfg.TTL)
	return fn(sess)
}

func (s *SessionService) withView(schoolID, id string, fn func(sess *editingSession) error) (*dto.SessionView, error) {
	var view *dto.SessionView
	err := s.with(schoolID, id, func(sess *editingSession) error {
		if err := fn(sess); err != nil {
			return err
		}
		view = s.view(sess)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *SessionService) bulkAdjust(schoolID, id string, fn func(flag *scheduler.GlobalFlag) int) (*dto.BulkAdjustResult, error) {
	var result *dto.BulkAdjustResult
	err := s.with(schoolID, id, func(sess *editingSession) error {
		affected := fn(sess.flag)
		result = &dto.BulkAdjustResult{Affected: affected, ChangedCount: sess.flag.GetChangedEventsCount()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// view must be called with the session lock held.
func (s *SessionService) view(sess *editingSession) *dto.SessionView {
	flag := sess.flag
	out := &dto.SessionView{
		ID:                 sess.id,
		SchoolID:           sess.schoolID,
		Date:               sess.dayKey(),
		Settings:           flag.Settings(),
		AdjustmentMode:     flag.IsAdjustmentMode(),
		AdjustmentTime:     flag.AdjustmentTime(),
		AdjustmentLocation: flag.AdjustmentLocation(),
		GlobalLocation:     flag.GetGlobalLocation(),
		PendingTeachers:    flag.GetPendingTeachers(),
		ChangedCount:       flag.GetChangedEventsCount(),
		RefreshCount:       flag.RefreshCount(),
		ExpiresAt:          sess.expiresAt,
	}
	if earliest, ok := flag.GetGlobalEarliestTime(); ok {
		out.EarliestTime = scheduler.FormatClock(earliest)
	}

	queues := flag.GetTeacherQueues()
	out.Queues = make([]dto.QueueView, 0, len(queues))
	for _, queue := range queues {
		teacher := queue.Teacher()
		ctrl, optedIn := flag.GetQueueController(teacher.ID)
		settings := flag.Settings()
		if optedIn {
			settings = ctrl.Settings()
		}

		qv := dto.QueueView{
			Teacher: teacher,
			OptedIn: optedIn,
			Locked:  settings.Locked,
			Stats:   queue.GetStats(),
			Events:  make([]dto.EventView, 0, queue.Len()),
		}
		if optedIn {
			qv.Locked = ctrl.IsLocked()
			qv.ChangedCount = ctrl.ChangedCount()
			stats := ctrl.GetOptimisationStats()
			qv.Optimisation = &stats
		}

		gaps := scheduler.QueueGapStatuses(queue, settings.GapMinutes)
		for _, ev := range queue.GetAllEvents() {
			gap, ok := gaps[ev.ID]
			if !ok {
				gap = scheduler.GapStatus{State: scheduler.GapStateNone}
			}
			item := dto.EventView{EventNode: ev, Gap: gap}
			if optedIn {
				caps := ctrl.Capabilities(ev.ID)
				item.Capabilities = &caps
			}
			qv.Events = append(qv.Events, item)
		}
		out.Queues = append(out.Queues, qv)
	}
	return out
}

func controllerFor(sess *editingSession, teacherID string) (*scheduler.QueueController, error) {
	ctrl := sess.flag.OptIn(teacherID)
	if ctrl == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher is not part of the session")
	}
	return ctrl, nil
}

// buildQueues groups the snapshot events per instructor. Active instructors
// without events still get an empty queue; events of instructors missing from
// the active list get a queue of their own after the others.
func buildQueues(snapshot *models.DaySnapshot, day time.Time) []*scheduler.TeacherQueue {
	byTeacher := make(map[string][]scheduler.EventNode)
	usernames := make(map[string]string)
	for _, ev := range snapshot.Events {
		byTeacher[ev.TeacherID] = append(byTeacher[ev.TeacherID], eventNode(ev))
		if ev.TeacherUsername != "" {
			usernames[ev.TeacherID] = ev.TeacherUsername
		}
	}

	queues := make([]*scheduler.TeacherQueue, 0, len(snapshot.Teachers))
	seen := make(map[string]struct{}, len(snapshot.Teachers))
	for _, teacher := range snapshot.Teachers {
		seen[teacher.ID] = struct{}{}
		owner := scheduler.Teacher{ID: teacher.ID, Username: teacher.Username}
		queues = append(queues, scheduler.NewTeacherQueue(owner, day, byTeacher[teacher.ID]))
	}

	var extras []string
	for teacherID := range byTeacher {
		if _, ok := seen[teacherID]; !ok {
			extras = append(extras, teacherID)
		}
	}
	sort.Strings(extras)
	for _, teacherID := range extras {
		owner := scheduler.Teacher{ID: teacherID, Username: usernames[teacherID]}
		queues = append(queues, scheduler.NewTeacherQueue(owner, day, byTeacher[teacherID]))
	}
	return queues
}

func eventNode(ev models.Event) scheduler.EventNode {
	return scheduler.EventNode{
		ID:              ev.ID,
		Origin:          scheduler.OriginConfirmed,
		LessonID:        ev.LessonID,
		BookingID:       ev.BookingID,
		TeacherID:       ev.TeacherID,
		TeacherUsername: ev.TeacherUsername,
		Date:            ev.Date.UTC(),
		Duration:        ev.Duration,
		Location:        ev.Location,
		Status:          scheduler.EventStatus(ev.Status),
		Capacity:        ev.Capacity,
		Commission:      ev.Commission,
		Revenue:         ev.Revenue,
		PackageName:     ev.PackageName,
		Equipment:       ev.Equipment,
	}
}

func patchesFromUpdates(updates []scheduler.EventUpdate) []models.EventPatch {
	patches := make([]models.EventPatch, 0, len(updates))
	for _, update := range updates {
		patch := models.EventPatch{
			ID:       update.ID,
			Date:     update.Date,
			Duration: update.Duration,
			Location: update.Location,
		}
		if update.Status != nil {
			status := models.EventStatus(*update.Status)
			patch.Status = &status
		}
		patches = append(patches, patch)
	}
	return patches
}
