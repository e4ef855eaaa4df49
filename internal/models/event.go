package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventStatus is the lifecycle state of a lesson event.
type EventStatus string

const (
	EventStatusPlanned     EventStatus = "planned"
	EventStatusTBC         EventStatus = "tbc"
	EventStatusCompleted   EventStatus = "completed"
	EventStatusUncompleted EventStatus = "uncompleted"
)

// Valid reports whether s is a known status.
func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusPlanned, EventStatusTBC, EventStatusCompleted, EventStatusUncompleted:
		return true
	}
	return false
}

// Event is a persisted lesson occurrence.
type Event struct {
	ID              string          `db:"id" json:"id"`
	SchoolID        string          `db:"school_id" json:"school_id"`
	LessonID        string          `db:"lesson_id" json:"lesson_id"`
	BookingID       string          `db:"booking_id" json:"booking_id"`
	TeacherID       string          `db:"teacher_id" json:"teacher_id"`
	TeacherUsername string          `db:"teacher_username" json:"teacher_username"`
	Date            time.Time       `db:"date" json:"date"`
	Duration        int             `db:"duration" json:"duration"`
	Location        string          `db:"location" json:"location"`
	Status          EventStatus     `db:"status" json:"status"`
	Capacity        int             `db:"capacity" json:"capacity"`
	Commission      decimal.Decimal `db:"commission" json:"commission"`
	Revenue         decimal.Decimal `db:"revenue" json:"revenue"`
	PackageName     string          `db:"package_name" json:"package_name"`
	Equipment       string          `db:"equipment" json:"equipment"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// End returns when the event finishes.
func (e Event) End() time.Time {
	return e.Date.Add(time.Duration(e.Duration) * time.Minute)
}

// EventPatch carries a partial update. Nil fields are left untouched.
type EventPatch struct {
	ID       string       `json:"id"`
	Date     *time.Time   `json:"date,omitempty"`
	Duration *int         `json:"duration,omitempty"`
	Location *string      `json:"location,omitempty"`
	Status   *EventStatus `json:"status,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p EventPatch) Empty() bool {
	return p.Date == nil && p.Duration == nil && p.Location == nil && p.Status == nil
}
