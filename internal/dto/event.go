package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateEventRequest schedules a lesson occurrence for an instructor.
type CreateEventRequest struct {
	TeacherID   string          `json:"teacherId" validate:"required"`
	LessonID    string          `json:"lessonId" validate:"required"`
	BookingID   string          `json:"bookingId"`
	Date        time.Time       `json:"date" validate:"required"`
	Duration    int             `json:"duration" validate:"required,min=1,max=1440"`
	Location    string          `json:"location" validate:"omitempty,max=120"`
	Status      string          `json:"status" validate:"omitempty,oneof=planned tbc completed uncompleted"`
	Capacity    int             `json:"capacity" validate:"min=0"`
	Commission  decimal.Decimal `json:"commission"`
	Revenue     decimal.Decimal `json:"revenue"`
	PackageName string          `json:"packageName" validate:"omitempty,max=120"`
	Equipment   string          `json:"equipment" validate:"omitempty,max=255"`
}

// UpdateEventRequest carries a partial update; absent fields are untouched.
type UpdateEventRequest struct {
	Date     *time.Time `json:"date"`
	Duration *int       `json:"duration" validate:"omitempty,min=1,max=1440"`
	Location *string    `json:"location" validate:"omitempty,max=120"`
	Status   *string    `json:"status" validate:"omitempty,oneof=planned tbc completed uncompleted"`
}

// EventPatchRequest is one entry of a bulk update.
type EventPatchRequest struct {
	ID string `json:"id" validate:"required"`
	UpdateEventRequest
}

// BulkUpdateRequest applies updates and deletions atomically.
type BulkUpdateRequest struct {
	Updates   []EventPatchRequest `json:"updates" validate:"omitempty,dive"`
	Deletions []string            `json:"deletions" validate:"omitempty,dive,required"`
}

// BulkDeleteRequest removes the listed events.
type BulkDeleteRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

// BulkStatusRequest sets one status on the listed events.
type BulkStatusRequest struct {
	IDs    []string `json:"ids" validate:"required,min=1,dive,required"`
	Status string   `json:"status" validate:"required,oneof=planned tbc completed uncompleted"`
}

// BulkResult reports how many rows a bulk operation touched.
type BulkResult struct {
	Affected int64 `json:"affected"`
}
