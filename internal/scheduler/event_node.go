package scheduler

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventStatus mirrors the lifecycle of a lesson occurrence.
type EventStatus string

const (
	EventStatusPlanned     EventStatus = "planned"
	EventStatusTBC         EventStatus = "tbc"
	EventStatusCompleted   EventStatus = "completed"
	EventStatusUncompleted EventStatus = "uncompleted"
)

// Origin distinguishes server-confirmed rows from local placeholders.
type Origin string

const (
	OriginConfirmed  Origin = "confirmed"
	OriginOptimistic Origin = "optimistic"
)

// Teacher identifies the instructor owning a queue.
type Teacher struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// EventNode is a single scheduled lesson occurrence.
//
// PrevID and NextID are only populated on the copies handed out by
// TeacherQueue.GetAllEvents; queues never store them.
type EventNode struct {
	ID              string          `json:"id"`
	Origin          Origin          `json:"origin"`
	LessonID        string          `json:"lessonId"`
	BookingID       string          `json:"bookingId"`
	TeacherID       string          `json:"teacherId"`
	TeacherUsername string          `json:"teacherUsername"`
	Date            time.Time       `json:"date"`
	Duration        int             `json:"duration"`
	Location        string          `json:"location"`
	Status          EventStatus     `json:"status"`
	Capacity        int             `json:"capacity"`
	Commission      decimal.Decimal `json:"commission"`
	Revenue         decimal.Decimal `json:"revenue"`
	PackageName     string          `json:"packageName,omitempty"`
	Equipment       string          `json:"equipment,omitempty"`

	PrevID string `json:"prevId,omitempty"`
	NextID string `json:"nextId,omitempty"`
}

// End returns the instant the event finishes.
func (e EventNode) End() time.Time {
	return e.Date.Add(minutes(e.Duration))
}

// IsOptimistic reports whether the node is a pending local placeholder.
func (e EventNode) IsOptimistic() bool {
	return e.Origin == OriginOptimistic
}

// IsFixed reports whether queue optimisation must leave the event where it is.
func (e EventNode) IsFixed() bool {
	return e.Status == EventStatusCompleted
}

func (e EventNode) detached() EventNode {
	e.PrevID = ""
	e.NextID = ""
	return e
}

// EventTimeUpdate is a new start time for one event.
type EventTimeUpdate struct {
	ID   string    `json:"id"`
	Date time.Time `json:"date"`
}

// EventUpdate lists only the fields that differ from the snapshot.
type EventUpdate struct {
	ID       string       `json:"id"`
	Date     *time.Time   `json:"date,omitempty"`
	Duration *int         `json:"duration,omitempty"`
	Location *string      `json:"location,omitempty"`
	Status   *EventStatus `json:"status,omitempty"`
}

// ChangeSet is the diff of a controller's working queue against its snapshot.
type ChangeSet struct {
	Updates   []EventUpdate `json:"updates"`
	Deletions []string      `json:"deletions"`
}

// Count returns the number of dirty events.
func (c ChangeSet) Count() int {
	return len(c.Updates) + len(c.Deletions)
}

// Empty reports whether nothing changed.
func (c ChangeSet) Empty() bool {
	return c.Count() == 0
}

func diffEvent(before, after EventNode) (EventUpdate, bool) {
	update := EventUpdate{ID: after.ID}
	changed := false
	if !before.Date.Equal(after.Date) {
		d := after.Date
		update.Date = &d
		changed = true
	}
	if before.Duration != after.Duration {
		d := after.Duration
		update.Duration = &d
		changed = true
	}
	if before.Location != after.Location {
		l := after.Location
		update.Location = &l
		changed = true
	}
	if before.Status != after.Status {
		s := after.Status
		update.Status = &s
		changed = true
	}
	return update, changed
}
