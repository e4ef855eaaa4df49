package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/lesson-queue-api/internal/scheduler"
)

// Event actions accepted by the session event endpoint.
const (
	ActionMoveUp    = "move-up"
	ActionMoveDown  = "move-down"
	ActionEarlier   = "earlier"
	ActionLater     = "later"
	ActionGrow      = "grow"
	ActionShrink    = "shrink"
	ActionAddGap    = "add-gap"
	ActionRemoveGap = "remove-gap"
)

// OpenSessionRequest starts an editing session over one school day.
type OpenSessionRequest struct {
	Date     string                        `json:"date" validate:"required,datetime=2006-01-02"`
	Settings *scheduler.ControllerSettings `json:"settings" validate:"omitempty"`
}

// AdjustTimeRequest carries an "HH:MM" clock for bulk time edits.
type AdjustTimeRequest struct {
	Time string `json:"time" validate:"required,datetime=15:04"`
}

// AdjustLocationRequest carries a location for bulk location edits.
type AdjustLocationRequest struct {
	Location string `json:"location" validate:"required,max=120"`
}

// DropLessonRequest drops a lesson onto an instructor's queue.
type DropLessonRequest struct {
	TeacherID   string          `json:"teacherId" validate:"required"`
	LessonID    string          `json:"lessonId" validate:"required"`
	BookingID   string          `json:"bookingId"`
	Capacity    int             `json:"capacity" validate:"min=0"`
	Location    string          `json:"location" validate:"omitempty,max=120"`
	PackageName string          `json:"packageName" validate:"omitempty,max=120"`
	Commission  decimal.Decimal `json:"commission"`
	Revenue     decimal.Decimal `json:"revenue"`
}

// EventView is one event of a rendered queue with its gap state and affordances.
type EventView struct {
	scheduler.EventNode
	Gap          scheduler.GapStatus     `json:"gap"`
	Capabilities *scheduler.Capabilities `json:"capabilities,omitempty"`
}

// QueueView is one instructor's merged queue.
type QueueView struct {
	Teacher      scheduler.Teacher            `json:"teacher"`
	OptedIn      bool                         `json:"optedIn"`
	Locked       bool                         `json:"locked"`
	ChangedCount int                          `json:"changedCount"`
	Stats        scheduler.QueueStats         `json:"stats"`
	Optimisation *scheduler.OptimisationStats `json:"optimisation,omitempty"`
	Events       []EventView                  `json:"events"`
}

// SessionView is the render-ready state of an editing session.
type SessionView struct {
	ID                 string                       `json:"id"`
	SchoolID           string                       `json:"schoolId"`
	Date               string                       `json:"date"`
	Settings           scheduler.ControllerSettings `json:"settings"`
	AdjustmentMode     bool                         `json:"adjustmentMode"`
	AdjustmentTime     string                       `json:"adjustmentTime,omitempty"`
	AdjustmentLocation string                       `json:"adjustmentLocation,omitempty"`
	EarliestTime       string                       `json:"earliestTime,omitempty"`
	GlobalLocation     string                       `json:"globalLocation,omitempty"`
	PendingTeachers    []string                     `json:"pendingTeachers"`
	ChangedCount       int                          `json:"changedCount"`
	RefreshCount       uint64                       `json:"refreshCount"`
	Queues             []QueueView                  `json:"queues"`
	ExpiresAt          time.Time                    `json:"expiresAt"`
}

// LockStatusView answers how far a bulk value has been applied.
type LockStatusView struct {
	Time     *scheduler.LockStatus `json:"time,omitempty"`
	Location *scheduler.LockStatus `json:"location,omitempty"`
}

// BulkAdjustResult reports how many instructors or events a bulk edit touched.
type BulkAdjustResult struct {
	Affected     int `json:"affected"`
	ChangedCount int `json:"changedCount"`
}

// EventActionResult reports a per-event edit and the event's affordances afterwards.
type EventActionResult struct {
	Applied      bool                   `json:"applied"`
	Capabilities scheduler.Capabilities `json:"capabilities"`
	ChangedCount int                    `json:"changedCount"`
}

// LockToggleResult reports the instructor's mode after a toggle.
type LockToggleResult struct {
	TeacherID string `json:"teacherId"`
	Locked    bool   `json:"locked"`
}

// SubmitResult reports a successful submit.
type SubmitResult struct {
	Submitted int                     `json:"submitted"`
	Summary   scheduler.ChangeSummary `json:"summary"`
}
