package scheduler

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownTeacher is returned when a lesson is dropped on an instructor outside the session.
	ErrUnknownTeacher = errors.New("teacher is not part of the session")
	// ErrQueueFull is returned when the appended lesson would run past the end of the day.
	ErrQueueFull = errors.New("lesson does not fit in the teacher queue")
)

// LockStatus tracks how many instructors or events already match a bulk value.
type LockStatus struct {
	IsLockFlag bool `json:"isLockFlag"`
	LockCount  int  `json:"lockCount"`
	Total      int  `json:"total"`
}

// OptimisticDraft describes a lesson dropped on an instructor before the server confirms it.
type OptimisticDraft struct {
	LessonID    string
	BookingID   string
	Capacity    int
	Location    string
	PackageName string
	Commission  decimal.Decimal
	Revenue     decimal.Decimal
}

// TeacherChanges is one instructor's share of a change summary.
type TeacherChanges struct {
	TeacherID string    `json:"teacherId"`
	Changes   ChangeSet `json:"changes"`
}

// ChangeSummary is everything a submit would send to the backend.
type ChangeSummary struct {
	Updates   []EventUpdate    `json:"updates"`
	Deletions []string         `json:"deletions"`
	Count     int              `json:"count"`
	Teachers  []TeacherChanges `json:"teachers"`
}

// GlobalFlag is the cross-instructor editing session of one scheduling view.
// The owner keeps a single instance for the lifetime of the view; only its
// registry and scratch values change. It is not safe for concurrent use.
type GlobalFlag struct {
	settings ControllerSettings
	fresh    []*TeacherQueue

	controllers map[string]*QueueController
	optimistic  map[string][]EventNode

	adjustmentMode     bool
	adjustmentTime     string
	adjustmentLocation string
	timeLocked         bool
	locationLocked     bool

	refresh  uint64
	onChange func()
}

// NewGlobalFlag starts a session over the fresh server queues.
func NewGlobalFlag(queues []*TeacherQueue, settings ControllerSettings, onChange func()) *GlobalFlag {
	g := &GlobalFlag{
		settings:    settings,
		controllers: make(map[string]*QueueController),
		optimistic:  make(map[string][]EventNode),
		onChange:    onChange,
	}
	g.fresh = cloneQueues(queues)
	return g
}

// Settings returns the session-wide settings.
func (g *GlobalFlag) Settings() ControllerSettings {
	return g.settings
}

// EnterAdjustmentMode starts a school-wide bulk edit.
func (g *GlobalFlag) EnterAdjustmentMode() {
	if g.adjustmentMode {
		return
	}
	g.adjustmentMode = true
	g.notify()
}

// ExitAdjustmentMode rolls back every opted-in controller and clears the registry.
func (g *GlobalFlag) ExitAdjustmentMode() {
	for id, ctrl := range g.controllers {
		ctrl.ResetToSnapshot()
		g.keepPlaceholders(id, ctrl)
	}
	g.controllers = make(map[string]*QueueController)
	g.adjustmentMode = false
	g.clearScratch()
	g.notify()
}

// IsAdjustmentMode reports whether a bulk edit is open.
func (g *GlobalFlag) IsAdjustmentMode() bool {
	return g.adjustmentMode
}

// Cancel discards every buffered edit and leaves adjustment mode.
func (g *GlobalFlag) Cancel() {
	g.DiscardChanges()
	g.ExitAdjustmentMode()
}

// OptIn registers the instructor's controller. Calling it twice returns the same controller.
func (g *GlobalFlag) OptIn(teacherID string) *QueueController {
	if ctrl, ok := g.controllers[teacherID]; ok {
		return ctrl
	}
	queue := g.freshQueue(teacherID)
	if queue == nil {
		return nil
	}
	merged := queue.Clone()
	for _, node := range g.optimistic[teacherID] {
		merged.append(node)
	}
	delete(g.optimistic, teacherID)

	ctrl := NewQueueController(merged, g.settings, g.notify)
	g.controllers[teacherID] = ctrl
	g.notify()
	return ctrl
}

// OptOut resets and unregisters the instructor's controller.
func (g *GlobalFlag) OptOut(teacherID string) {
	ctrl, ok := g.controllers[teacherID]
	if !ok {
		return
	}
	ctrl.ResetToSnapshot()
	g.keepPlaceholders(teacherID, ctrl)
	delete(g.controllers, teacherID)
	g.notify()
}

// GetQueueController returns the instructor's controller when opted in.
func (g *GlobalFlag) GetQueueController(teacherID string) (*QueueController, bool) {
	ctrl, ok := g.controllers[teacherID]
	return ctrl, ok
}

// GetPendingTeachers lists opted-in instructor ids in queue order.
func (g *GlobalFlag) GetPendingTeachers() []string {
	ids := make([]string, 0, len(g.controllers))
	for _, q := range g.fresh {
		if _, ok := g.controllers[q.Teacher().ID]; ok {
			ids = append(ids, q.Teacher().ID)
		}
	}
	var orphans []string
	for id := range g.controllers {
		if g.freshQueue(id) == nil {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	return append(ids, orphans...)
}

// AdjustmentTime returns the scratch time value.
func (g *GlobalFlag) AdjustmentTime() string {
	return g.adjustmentTime
}

// AdjustmentLocation returns the scratch location value.
func (g *GlobalFlag) AdjustmentLocation() string {
	return g.adjustmentLocation
}

// IsTimeLocked reports whether lockToAdjustmentTime is in effect.
func (g *GlobalFlag) IsTimeLocked() bool {
	return g.timeLocked
}

// IsLocationLocked reports whether lockToLocation is in effect.
func (g *GlobalFlag) IsLocationLocked() bool {
	return g.locationLocked
}

// AdjustTime moves every opted-in instructor's first event to clock and
// returns how many controllers accepted the edit.
func (g *GlobalFlag) AdjustTime(clock string) int {
	if _, err := ParseClock(clock); err != nil {
		return 0
	}
	g.adjustmentTime = clock
	applied := 0
	for _, ctrl := range g.controllers {
		if ctrl.SetStartTime(clock) {
			applied++
		}
	}
	g.notify()
	return applied
}

// AdjustLocation moves every opted-in instructor's events to location.
func (g *GlobalFlag) AdjustLocation(location string) int {
	g.adjustmentLocation = location
	applied := 0
	for _, ctrl := range g.controllers {
		if ctrl.Queue().Len() == 0 {
			continue
		}
		ctrl.SetLocation(location)
		applied++
	}
	g.notify()
	return applied
}

// LockToAdjustmentTime opts in every instructor with events and synchronises their start.
func (g *GlobalFlag) LockToAdjustmentTime(clock string) int {
	if _, err := ParseClock(clock); err != nil {
		return 0
	}
	g.optInQualifying()
	g.timeLocked = true
	return g.AdjustTime(clock)
}

// LockToLocation opts in every instructor with events and moves them all to location.
func (g *GlobalFlag) LockToLocation(location string) int {
	g.optInQualifying()
	g.locationLocked = true
	return g.AdjustLocation(location)
}

// GetLockStatusTime counts instructors whose first event already starts at clock.
func (g *GlobalFlag) GetLockStatusTime(clock string) LockStatus {
	var status LockStatus
	for _, q := range g.GetTeacherQueues() {
		earliest, ok := q.GetEarliestEventTime()
		if !ok {
			continue
		}
		status.Total++
		if FormatClock(earliest) == clock {
			status.LockCount++
		}
	}
	status.IsLockFlag = status.Total > 0 && status.LockCount == status.Total
	return status
}

// GetLockStatusLocation counts events already held at location.
func (g *GlobalFlag) GetLockStatusLocation(location string) LockStatus {
	var status LockStatus
	for _, q := range g.GetTeacherQueues() {
		for _, ev := range q.events {
			status.Total++
			if ev.Location == location {
				status.LockCount++
			}
		}
	}
	status.IsLockFlag = status.Total > 0 && status.LockCount == status.Total
	return status
}

// GetGlobalEarliestTime returns the earliest start across all queues.
func (g *GlobalFlag) GetGlobalEarliestTime() (time.Time, bool) {
	var (
		earliest time.Time
		found    bool
	)
	for _, q := range g.GetTeacherQueues() {
		t, ok := q.GetEarliestEventTime()
		if !ok {
			continue
		}
		if !found || t.Before(earliest) {
			earliest = t
			found = true
		}
	}
	return earliest, found
}

// GetGlobalLocation returns the most common location; ties go to the one seen first.
func (g *GlobalFlag) GetGlobalLocation() string {
	counts := make(map[string]int)
	var order []string
	for _, q := range g.GetTeacherQueues() {
		for _, ev := range q.events {
			if ev.Location == "" {
				continue
			}
			if _, ok := counts[ev.Location]; !ok {
				order = append(order, ev.Location)
			}
			counts[ev.Location]++
		}
	}
	best := ""
	for _, loc := range order {
		if counts[loc] > counts[best] {
			best = loc
		}
	}
	return best
}

// DiscardChanges resets every opted-in controller and clears the scratch
// values; adjustment mode stays open.
func (g *GlobalFlag) DiscardChanges() {
	for _, ctrl := range g.controllers {
		ctrl.ResetToSnapshot()
	}
	g.clearScratch()
	g.notify()
}

// GetChangedEventsCount sums the dirty events of every controller.
func (g *GlobalFlag) GetChangedEventsCount() int {
	total := 0
	for _, ctrl := range g.controllers {
		total += ctrl.ChangedCount()
	}
	return total
}

// CollectChanges gathers the pending diff of every opted-in instructor.
func (g *GlobalFlag) CollectChanges() ChangeSummary {
	summary := ChangeSummary{
		Updates:   []EventUpdate{},
		Deletions: []string{},
		Teachers:  []TeacherChanges{},
	}
	for _, id := range g.GetPendingTeachers() {
		changes := g.controllers[id].GetChanges()
		if changes.Empty() {
			continue
		}
		summary.Updates = append(summary.Updates, changes.Updates...)
		summary.Deletions = append(summary.Deletions, changes.Deletions...)
		summary.Teachers = append(summary.Teachers, TeacherChanges{TeacherID: id, Changes: changes})
	}
	summary.Count = len(summary.Updates) + len(summary.Deletions)
	return summary
}

// CommitAll folds every controller's working queue into the fresh list after
// a successful submit and closes the session.
func (g *GlobalFlag) CommitAll() {
	for id, ctrl := range g.controllers {
		ctrl.Commit()
		committed := ctrl.Queue().Clone()
		g.keepPlaceholders(id, ctrl)
		confirmed := committed.events[:0]
		for _, ev := range committed.events {
			if !ev.IsOptimistic() {
				confirmed = append(confirmed, ev)
			}
		}
		committed.events = confirmed
		g.replaceFresh(committed)
	}
	g.controllers = make(map[string]*QueueController)
	g.adjustmentMode = false
	g.clearScratch()
	g.notify()
}

// UpdateTeacherQueues merges a fresh server snapshot. Opted-in instructors
// keep their buffered edits; everyone else adopts the fresh data.
func (g *GlobalFlag) UpdateTeacherQueues(fresh []*TeacherQueue) {
	g.fresh = cloneQueues(fresh)

	confirmed := make(map[string]struct{})
	for _, q := range g.fresh {
		for _, ev := range q.events {
			if ev.LessonID != "" {
				confirmed[ev.LessonID] = struct{}{}
			}
		}
	}
	for teacherID, nodes := range g.optimistic {
		kept := nodes[:0]
		for _, node := range nodes {
			if _, ok := confirmed[node.LessonID]; !ok {
				kept = append(kept, node)
			}
		}
		if len(kept) == 0 {
			delete(g.optimistic, teacherID)
			continue
		}
		g.optimistic[teacherID] = kept
	}

	for teacherID, ctrl := range g.controllers {
		queue := g.freshQueue(teacherID)
		if queue == nil {
			queue = NewTeacherQueue(ctrl.Teacher(), ctrl.Queue().Day(), nil)
		}
		ctrl.Rebase(queue)
	}
	g.notify()
}

// UpdateController adopts fresh settings everywhere; controllers keep their lock policy.
func (g *GlobalFlag) UpdateController(settings ControllerSettings) {
	g.settings = settings
	for _, ctrl := range g.controllers {
		ctrl.UpdateSettings(settings)
	}
	g.notify()
}

// GetTeacherQueues returns the render-ready merge of server data, buffered
// edits and optimistic placeholders.
func (g *GlobalFlag) GetTeacherQueues() []*TeacherQueue {
	out := make([]*TeacherQueue, 0, len(g.fresh)+len(g.controllers))
	seen := make(map[string]struct{}, len(g.fresh))
	for _, q := range g.fresh {
		id := q.Teacher().ID
		seen[id] = struct{}{}
		out = append(out, g.mergedQueue(id, q))
	}
	var orphans []string
	for id := range g.controllers {
		if _, ok := seen[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	for _, id := range orphans {
		out = append(out, g.controllers[id].Queue().Clone())
	}
	return out
}

// TeacherQueue returns the merged queue of one instructor.
func (g *GlobalFlag) TeacherQueue(teacherID string) (*TeacherQueue, bool) {
	if ctrl, ok := g.controllers[teacherID]; ok {
		return ctrl.Queue().Clone(), true
	}
	q := g.freshQueue(teacherID)
	if q == nil {
		return nil, false
	}
	return g.mergedQueue(teacherID, q), true
}

// AddOptimisticEvent appends a placeholder for a dropped lesson and returns it.
func (g *GlobalFlag) AddOptimisticEvent(teacherID string, draft OptimisticDraft) (EventNode, error) {
	queue, ok := g.TeacherQueue(teacherID)
	if !ok {
		return EventNode{}, ErrUnknownTeacher
	}
	settings := g.settings
	if ctrl, ok := g.controllers[teacherID]; ok {
		settings = ctrl.Settings()
	}
	slot := queue.GetInsertionTime(settings.SubmitTime, draft.Capacity, settings)
	if !slot.Fits {
		return EventNode{}, ErrQueueFull
	}
	location := draft.Location
	if location == "" {
		location = settings.Location
	}
	node := EventNode{
		ID:              uuid.NewString(),
		Origin:          OriginOptimistic,
		LessonID:        draft.LessonID,
		BookingID:       draft.BookingID,
		TeacherID:       teacherID,
		TeacherUsername: queue.Teacher().Username,
		Date:            slot.Time,
		Duration:        slot.Duration,
		Location:        location,
		Status:          EventStatusPlanned,
		Capacity:        draft.Capacity,
		Commission:      draft.Commission,
		Revenue:         draft.Revenue,
		PackageName:     draft.PackageName,
	}
	if ctrl, ok := g.controllers[teacherID]; ok {
		ctrl.PlaceOptimistic(node)
	} else {
		g.optimistic[teacherID] = append(g.optimistic[teacherID], node)
	}
	g.notify()
	return node, nil
}

// RemoveOptimisticEvent drops a placeholder whose creation failed.
func (g *GlobalFlag) RemoveOptimisticEvent(tempID string) bool {
	for _, ctrl := range g.controllers {
		if ctrl.RemoveOptimistic(tempID) {
			g.notify()
			return true
		}
	}
	for teacherID, nodes := range g.optimistic {
		for i, node := range nodes {
			if node.ID != tempID {
				continue
			}
			g.optimistic[teacherID] = append(nodes[:i], nodes[i+1:]...)
			if len(g.optimistic[teacherID]) == 0 {
				delete(g.optimistic, teacherID)
			}
			g.notify()
			return true
		}
	}
	return false
}

// TriggerRefresh bumps the refresh counter so dependents recompute.
func (g *GlobalFlag) TriggerRefresh() uint64 {
	g.refresh++
	g.notify()
	return g.refresh
}

// RefreshCount returns the current refresh counter.
func (g *GlobalFlag) RefreshCount() uint64 {
	return g.refresh
}

func (g *GlobalFlag) optInQualifying() {
	for _, q := range g.GetTeacherQueues() {
		if q.Len() > 0 {
			g.OptIn(q.Teacher().ID)
		}
	}
}

func (g *GlobalFlag) mergedQueue(teacherID string, fresh *TeacherQueue) *TeacherQueue {
	if ctrl, ok := g.controllers[teacherID]; ok {
		return ctrl.Queue().Clone()
	}
	merged := fresh.Clone()
	for _, node := range g.optimistic[teacherID] {
		merged.append(node)
	}
	return merged
}

// keepPlaceholders moves a leaving controller's placeholders back to the
// session so they stay visible until the server confirms them.
func (g *GlobalFlag) keepPlaceholders(teacherID string, ctrl *QueueController) {
	for _, ev := range ctrl.Queue().events {
		if ev.IsOptimistic() {
			g.optimistic[teacherID] = append(g.optimistic[teacherID], ev)
		}
	}
}

func (g *GlobalFlag) freshQueue(teacherID string) *TeacherQueue {
	for _, q := range g.fresh {
		if q.Teacher().ID == teacherID {
			return q
		}
	}
	return nil
}

func (g *GlobalFlag) replaceFresh(queue *TeacherQueue) {
	for i, q := range g.fresh {
		if q.Teacher().ID == queue.Teacher().ID {
			g.fresh[i] = queue
			return
		}
	}
	g.fresh = append(g.fresh, queue)
}

func (g *GlobalFlag) clearScratch() {
	g.adjustmentTime = ""
	g.adjustmentLocation = ""
	g.timeLocked = false
	g.locationLocked = false
}

func (g *GlobalFlag) notify() {
	if g.onChange != nil {
		g.onChange()
	}
}

func cloneQueues(queues []*TeacherQueue) []*TeacherQueue {
	out := make([]*TeacherQueue, 0, len(queues))
	for _, q := range queues {
		if q != nil {
			out = append(out, q.Clone())
		}
	}
	return out
}
