package scheduler

import (
	"context"
)

// PersistFunc deletes a confirmed event from the backing store.
type PersistFunc func(ctx context.Context, id string) error

// DeleteResult reports the outcome of QueueController.DeleteEvent.
type DeleteResult struct {
	Success bool     `json:"success"`
	Updates []string `json:"updates"`
	Err     error    `json:"-"`
}

// Capabilities are the per-event affordances a UI can gate buttons on.
type Capabilities struct {
	CanMoveUp      bool `json:"canMoveUp"`
	CanMoveDown    bool `json:"canMoveDown"`
	CanMoveEarlier bool `json:"canMoveEarlier"`
	CanMoveLater   bool `json:"canMoveLater"`
	CanShiftQueue  bool `json:"canShiftQueue"`
	CanShrink      bool `json:"canShrink"`
	CanAddGap      bool `json:"canAddGap"`
	CanRemoveGap   bool `json:"canRemoveGap"`
}

// OptimisationStats summarises what OptimiseQueue would do right now.
type OptimisationStats struct {
	IsOptimised   bool `json:"isOptimised"`
	EventsToMove  int  `json:"eventsToMove"`
	SkippedEvents int  `json:"skippedEvents"`
	GapMinutes    int  `json:"gapMinutes"`
}

// QueueController buffers edits to one instructor's queue until they are
// submitted or discarded. It is not safe for concurrent use.
type QueueController struct {
	snapshot *TeacherQueue
	working  *TeacherQueue
	settings ControllerSettings
	deleted  map[string]struct{}
	onChange func()
}

// NewQueueController opens a transaction over queue.
func NewQueueController(queue *TeacherQueue, settings ControllerSettings, onChange func()) *QueueController {
	return &QueueController{
		snapshot: queue.Clone(),
		working:  queue.Clone(),
		settings: settings,
		deleted:  make(map[string]struct{}),
		onChange: onChange,
	}
}

// Teacher returns the instructor the controller edits.
func (c *QueueController) Teacher() Teacher {
	return c.working.Teacher()
}

// Queue returns the buffered working queue.
func (c *QueueController) Queue() *TeacherQueue {
	return c.working
}

// Snapshot returns a copy of the queue as it was when the transaction began.
func (c *QueueController) Snapshot() *TeacherQueue {
	return c.snapshot.Clone()
}

// Settings returns the controller's copy of the settings.
func (c *QueueController) Settings() ControllerSettings {
	return c.settings
}

// UpdateSettings adopts fresh settings but keeps the controller's lock policy.
func (c *QueueController) UpdateSettings(settings ControllerSettings) {
	settings.Locked = c.settings.Locked
	c.settings = settings
	c.notify()
}

// IsLocked reports whether cascade mode is active.
func (c *QueueController) IsLocked() bool {
	return c.settings.Locked
}

// SetLocked switches between cascade (true) and respect-time (false) mode.
func (c *QueueController) SetLocked(locked bool) {
	if c.settings.Locked == locked {
		return
	}
	c.settings.Locked = locked
	c.notify()
}

// ToggleLocked flips the lock policy and returns the new value.
func (c *QueueController) ToggleLocked() bool {
	c.SetLocked(!c.settings.Locked)
	return c.settings.Locked
}

// MoveUp swaps the event with its predecessor. The pair keeps occupying the
// same block of time, so the earlier slot now belongs to id.
func (c *QueueController) MoveUp(id string) bool {
	idx := c.working.indexOf(id)
	if idx <= 0 {
		return false
	}
	c.swapWithPrevious(idx)
	c.notify()
	return true
}

// MoveDown swaps the event with its successor.
func (c *QueueController) MoveDown(id string) bool {
	idx := c.working.indexOf(id)
	if idx < 0 || idx >= c.working.Len()-1 {
		return false
	}
	c.swapWithPrevious(idx + 1)
	c.notify()
	return true
}

func (c *QueueController) swapWithPrevious(idx int) {
	events := c.working.events
	prev, cur := events[idx-1], events[idx]
	spacing := cur.Date.Sub(prev.End())

	cur.Date = prev.Date
	prev.Date = cur.End().Add(spacing)

	events[idx-1], events[idx] = cur, prev
	c.working.resort()
}

// CanMoveEarlier reports whether id may start one step earlier.
func (c *QueueController) CanMoveEarlier(id string) bool {
	idx := c.working.indexOf(id)
	if idx < 0 {
		return false
	}
	newStart := c.working.events[idx].Date.Add(-minutes(c.settings.step()))
	if newStart.Before(c.working.Day()) {
		return false
	}
	if idx == 0 {
		return true
	}
	prev := c.working.events[idx-1]
	return !newStart.Before(prev.End().Add(minutes(c.settings.GapMinutes)))
}

// CanMoveLater reports whether id may start one step later.
func (c *QueueController) CanMoveLater(id string) bool {
	idx := c.working.indexOf(id)
	if idx < 0 {
		return false
	}
	return c.hasRoomAfter(idx, c.settings.step(), c.settings.GapMinutes)
}

// AdjustTime moves id one step later (or earlier). In cascade mode every
// following event moves with it.
func (c *QueueController) AdjustTime(id string, later bool) bool {
	idx := c.working.indexOf(id)
	if idx < 0 {
		return false
	}
	delta := c.settings.step()
	if later {
		if !c.CanMoveLater(id) {
			return false
		}
	} else {
		if !c.CanMoveEarlier(id) {
			return false
		}
		delta = -delta
	}
	c.moveFrom(idx, delta)
	c.notify()
	return true
}

// CanShiftQueue reports whether id may grow by one step.
func (c *QueueController) CanShiftQueue(id string) bool {
	idx := c.working.indexOf(id)
	if idx < 0 {
		return false
	}
	return c.hasRoomAfter(idx, c.settings.step(), 0)
}

// AdjustDuration grows or shrinks id by one step within [MinDuration, MaxDuration].
func (c *QueueController) AdjustDuration(id string, grow bool) bool {
	idx := c.working.indexOf(id)
	if idx < 0 {
		return false
	}
	step := c.settings.step()
	ev := &c.working.events[idx]
	if grow {
		if c.settings.MaxDuration > 0 && ev.Duration+step > c.settings.MaxDuration {
			return false
		}
		if !c.CanShiftQueue(id) {
			return false
		}
		ev.Duration += step
		if c.settings.Locked {
			c.working.shiftFrom(idx+1, step)
		}
	} else {
		if ev.Duration-step < c.settings.minDuration() {
			return false
		}
		ev.Duration -= step
		if c.settings.Locked {
			c.working.shiftFrom(idx+1, -step)
		}
	}
	c.notify()
	return true
}

// CanAddGap reports whether id sits closer than GapMinutes to its predecessor
// and can be pushed back to the exact gap.
func (c *QueueController) CanAddGap(id string) bool {
	idx := c.working.indexOf(id)
	if idx <= 0 {
		return false
	}
	missing := c.settings.GapMinutes - actualGap(c.working.events[idx], c.working.events[idx-1])
	if missing <= 0 {
		return false
	}
	return c.hasRoomAfter(idx, missing, c.settings.GapMinutes)
}

// AddGap pushes id later until its gap from the previous event is exact.
func (c *QueueController) AddGap(id string) bool {
	if !c.CanAddGap(id) {
		return false
	}
	idx := c.working.indexOf(id)
	missing := c.settings.GapMinutes - actualGap(c.working.events[idx], c.working.events[idx-1])
	c.moveFrom(idx, missing)
	c.notify()
	return true
}

// CanRemoveGap reports whether id sits further than GapMinutes from its predecessor.
func (c *QueueController) CanRemoveGap(id string) bool {
	idx := c.working.indexOf(id)
	if idx <= 0 {
		return false
	}
	return actualGap(c.working.events[idx], c.working.events[idx-1]) > c.settings.GapMinutes
}

// RemoveGap pulls id earlier until its gap from the previous event is exact.
func (c *QueueController) RemoveGap(id string) bool {
	if !c.CanRemoveGap(id) {
		return false
	}
	idx := c.working.indexOf(id)
	surplus := actualGap(c.working.events[idx], c.working.events[idx-1]) - c.settings.GapMinutes
	c.moveFrom(idx, -surplus)
	c.notify()
	return true
}

// DeleteEvent removes id from the queue.
//
// Optimistic placeholders are dropped locally and reported through
// onLocalRemove. Confirmed events are deleted through persist first; a nil
// persist buffers the deletion until submit. In cascade mode the following
// events close the hole.
func (c *QueueController) DeleteEvent(ctx context.Context, id string, persist PersistFunc, onLocalRemove func(id string)) DeleteResult {
	ev, ok := c.working.Event(id)
	if !ok {
		return DeleteResult{Updates: []string{}}
	}

	if ev.IsOptimistic() {
		c.working.remove(id)
		c.snapshot.remove(id)
		if onLocalRemove != nil {
			onLocalRemove(id)
		}
		c.notify()
		return DeleteResult{Success: true, Updates: []string{}}
	}

	if persist != nil {
		if err := persist(ctx, id); err != nil {
			return DeleteResult{Updates: []string{}, Err: err}
		}
		c.snapshot.remove(id)
	} else {
		c.deleted[id] = struct{}{}
	}

	_, idx, _ := c.working.remove(id)
	updates := []string{}
	if c.settings.Locked {
		updates = append(updates, c.working.shiftFrom(idx, -ev.Duration)...)
	}
	c.notify()
	return DeleteResult{Success: true, Updates: updates}
}

// HasChanges reports whether the working queue differs from the snapshot.
func (c *QueueController) HasChanges() bool {
	return !c.GetChanges().Empty()
}

// ChangedCount returns the number of dirty events.
func (c *QueueController) ChangedCount() int {
	return c.GetChanges().Count()
}

// GetChanges diffs the working queue against the snapshot. Optimistic
// placeholders are never part of the diff.
func (c *QueueController) GetChanges() ChangeSet {
	changes := ChangeSet{Updates: []EventUpdate{}, Deletions: []string{}}
	for _, after := range c.working.events {
		if after.IsOptimistic() {
			continue
		}
		before, ok := c.snapshot.Event(after.ID)
		if !ok {
			continue
		}
		if update, changed := diffEvent(before, after); changed {
			changes.Updates = append(changes.Updates, update)
		}
	}
	for _, before := range c.snapshot.events {
		if _, gone := c.deleted[before.ID]; gone {
			changes.Deletions = append(changes.Deletions, before.ID)
		}
	}
	return changes
}

// ResetToSnapshot discards every buffered edit without ending the transaction.
func (c *QueueController) ResetToSnapshot() {
	c.working = c.snapshot.Clone()
	c.deleted = make(map[string]struct{})
	c.notify()
}

// Commit adopts the working queue as the new snapshot after a successful submit.
func (c *QueueController) Commit() {
	c.snapshot = c.working.Clone()
	c.deleted = make(map[string]struct{})
}

// OptimiseQueue packs the buffered queue to the configured gap. The moves
// land in the pending diff; nothing is persisted.
func (c *QueueController) OptimiseQueue() OptimiseResult {
	result := c.working.OptimiseQueue(c.settings.GapMinutes)
	if len(result.Updates) > 0 {
		c.notify()
	}
	return result
}

// GetOptimisationStats dry-runs OptimiseQueue on the buffered queue.
func (c *QueueController) GetOptimisationStats() OptimisationStats {
	preview := c.working.Clone().OptimiseQueue(c.settings.GapMinutes)
	return OptimisationStats{
		IsOptimised:   c.working.IsQueueOptimised(c.settings.GapMinutes),
		EventsToMove:  len(preview.Updates),
		SkippedEvents: len(preview.Skipped),
		GapMinutes:    c.settings.GapMinutes,
	}
}

// Capabilities evaluates every guard for id.
func (c *QueueController) Capabilities(id string) Capabilities {
	idx := c.working.indexOf(id)
	if idx < 0 {
		return Capabilities{}
	}
	ev := c.working.events[idx]
	return Capabilities{
		CanMoveUp:      idx > 0,
		CanMoveDown:    idx < c.working.Len()-1,
		CanMoveEarlier: c.CanMoveEarlier(id),
		CanMoveLater:   c.CanMoveLater(id),
		CanShiftQueue:  c.CanShiftQueue(id),
		CanShrink:      ev.Duration-c.settings.step() >= c.settings.minDuration(),
		CanAddGap:      c.CanAddGap(id),
		CanRemoveGap:   c.CanRemoveGap(id),
	}
}

// SetStartTime moves the earliest event to clock. In cascade mode the whole
// queue follows; otherwise only the first event moves and must not crowd the second.
func (c *QueueController) SetStartTime(clock string) bool {
	if c.working.Len() == 0 {
		return false
	}
	target, err := AtClock(c.working.Day(), clock)
	if err != nil {
		return false
	}
	delta := int(target.Sub(c.working.events[0].Date).Minutes())
	if delta == 0 {
		return true
	}
	if delta > 0 && !c.hasRoomAfter(0, delta, c.settings.GapMinutes) {
		return false
	}
	c.moveFrom(0, delta)
	c.notify()
	return true
}

// SetLocation moves every event of the queue to location.
func (c *QueueController) SetLocation(location string) bool {
	changed := false
	for i := range c.working.events {
		if c.working.events[i].Location != location {
			c.working.events[i].Location = location
			changed = true
		}
	}
	if changed {
		c.notify()
	}
	return changed
}

// PlaceOptimistic appends a placeholder to both snapshot and working queue so
// that it never shows up as a pending change.
func (c *QueueController) PlaceOptimistic(node EventNode) {
	node.Origin = OriginOptimistic
	c.snapshot.append(node)
	c.working.append(node)
	c.notify()
}

// RemoveOptimistic drops a placeholder by its temporary id.
func (c *QueueController) RemoveOptimistic(tempID string) bool {
	ev, ok := c.working.Event(tempID)
	if !ok || !ev.IsOptimistic() {
		return false
	}
	c.working.remove(tempID)
	c.snapshot.remove(tempID)
	c.notify()
	return true
}

// Rebase merges a fresh server queue into the transaction. Events the
// operator has edited keep their buffered values; untouched events adopt the
// server's. Rows missing from fresh are treated as already deleted and
// placeholders are replaced once a confirmed row for their lesson exists.
func (c *QueueController) Rebase(fresh *TeacherQueue) {
	freshByID := make(map[string]EventNode, fresh.Len())
	confirmedLessons := make(map[string]struct{}, fresh.Len())
	for _, ev := range fresh.events {
		freshByID[ev.ID] = ev
		if ev.LessonID != "" {
			confirmedLessons[ev.LessonID] = struct{}{}
		}
	}

	pendingPlaceholder := func(ev EventNode) bool {
		if !ev.IsOptimistic() {
			return false
		}
		_, confirmed := confirmedLessons[ev.LessonID]
		return !confirmed
	}

	snapshotEvents := fresh.GetAllEvents()
	for _, ev := range c.snapshot.events {
		if pendingPlaceholder(ev) {
			snapshotEvents = append(snapshotEvents, ev)
		}
	}

	var workingEvents []EventNode
	known := make(map[string]struct{}, c.working.Len())
	for _, ev := range c.working.events {
		known[ev.ID] = struct{}{}
		if ev.IsOptimistic() {
			if pendingPlaceholder(ev) {
				workingEvents = append(workingEvents, ev)
			}
			continue
		}
		server, ok := freshByID[ev.ID]
		if !ok {
			continue
		}
		before, _ := c.snapshot.Event(ev.ID)
		if _, edited := diffEvent(before, ev); edited {
			ev.TeacherUsername = server.TeacherUsername
			workingEvents = append(workingEvents, ev)
		} else {
			workingEvents = append(workingEvents, server)
		}
	}
	for _, ev := range fresh.events {
		if _, seen := known[ev.ID]; seen {
			continue
		}
		if _, gone := c.deleted[ev.ID]; gone {
			continue
		}
		workingEvents = append(workingEvents, ev)
	}

	for id := range c.deleted {
		if _, ok := freshByID[id]; !ok {
			delete(c.deleted, id)
		}
	}

	teacher := fresh.Teacher()
	c.snapshot = NewTeacherQueue(teacher, fresh.Day(), snapshotEvents)
	c.working = NewTeacherQueue(teacher, fresh.Day(), workingEvents)
	c.notify()
}

// hasRoomAfter checks whether the event at idx can move delta minutes later.
// Cascade mode only needs the day to have room for the whole tail; respect
// mode needs delta+gap of free time before the next event.
func (c *QueueController) hasRoomAfter(idx, delta, gap int) bool {
	events := c.working.events
	dayEnd := c.working.dayEnd()
	if c.settings.Locked {
		last := events[len(events)-1]
		return !last.End().Add(minutes(delta)).After(dayEnd)
	}
	newEnd := events[idx].End().Add(minutes(delta))
	if idx == len(events)-1 {
		return !newEnd.After(dayEnd)
	}
	return !newEnd.Add(minutes(gap)).After(events[idx+1].Date)
}

// moveFrom shifts idx, and in cascade mode everything after it, by delta minutes.
func (c *QueueController) moveFrom(idx, delta int) {
	if c.settings.Locked {
		c.working.shiftFrom(idx, delta)
		return
	}
	c.working.events[idx].Date = c.working.events[idx].Date.Add(minutes(delta))
	c.working.resort()
}

func (c *QueueController) notify() {
	if c.onChange != nil {
		c.onChange()
	}
}
