package models

import "time"

// DayLayout formats scheduling days in URLs, cache keys and feed messages.
const DayLayout = "2006-01-02"

// DaySnapshot is the server view of one school day: every active instructor and their events.
type DaySnapshot struct {
	SchoolID    string    `json:"school_id"`
	Day         string    `json:"day"`
	Teachers    []Teacher `json:"teachers"`
	Events      []Event   `json:"events"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Change reasons published on the feed.
const (
	ChangeReasonCreated = "created"
	ChangeReasonUpdated = "updated"
	ChangeReasonDeleted = "deleted"
	ChangeReasonBulk    = "bulk"
)

// DayChange announces that a school day was modified.
type DayChange struct {
	SchoolID string    `json:"school_id"`
	Day      string    `json:"day"`
	Reason   string    `json:"reason"`
	EventIDs []string  `json:"event_ids,omitempty"`
	At       time.Time `json:"at"`
}
