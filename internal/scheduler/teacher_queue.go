package scheduler

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// TeacherQueue is the ordered set of one instructor's events for a day.
type TeacherQueue struct {
	teacher Teacher
	day     time.Time
	events  []EventNode
}

// QueueStats aggregates the pricing metadata carried by the events.
type QueueStats struct {
	EventCount     int             `json:"eventCount"`
	CompletedCount int             `json:"completedCount"`
	TotalDuration  int             `json:"totalDuration"`
	Commission     decimal.Decimal `json:"commission"`
	Revenue        decimal.Decimal `json:"revenue"`
}

// InsertionSlot is where a newly dropped lesson lands.
type InsertionSlot struct {
	Time     time.Time `json:"time"`
	Duration int       `json:"duration"`
	Fits     bool      `json:"fits"`
}

// Clock renders the slot start as "HH:MM".
func (s InsertionSlot) Clock() string {
	return FormatClock(s.Time)
}

// OptimiseResult reports the moves applied by OptimiseQueue.
type OptimiseResult struct {
	Updates []EventTimeUpdate `json:"updates"`
	Skipped []string          `json:"skipped"`
}

// NewTeacherQueue builds a queue sorted by start time. Duplicate ids keep their first occurrence.
func NewTeacherQueue(teacher Teacher, day time.Time, events []EventNode) *TeacherQueue {
	seen := make(map[string]struct{}, len(events))
	ordered := make([]EventNode, 0, len(events))
	for _, ev := range events {
		if _, dup := seen[ev.ID]; dup {
			continue
		}
		seen[ev.ID] = struct{}{}
		if ev.TeacherID == "" {
			ev.TeacherID = teacher.ID
		}
		if ev.TeacherUsername == "" {
			ev.TeacherUsername = teacher.Username
		}
		ordered = append(ordered, ev.detached())
	}
	q := &TeacherQueue{teacher: teacher, day: StartOfDay(day), events: ordered}
	q.resort()
	return q
}

// Teacher returns the queue owner.
func (q *TeacherQueue) Teacher() Teacher {
	return q.teacher
}

// Day returns midnight of the scheduled day.
func (q *TeacherQueue) Day() time.Time {
	return q.day
}

// Len returns the number of events.
func (q *TeacherQueue) Len() int {
	return len(q.events)
}

// Clone returns a deep copy.
func (q *TeacherQueue) Clone() *TeacherQueue {
	events := make([]EventNode, len(q.events))
	copy(events, q.events)
	return &TeacherQueue{teacher: q.teacher, day: q.day, events: events}
}

// GetAllEvents returns ordered copies with neighbour ids filled in.
func (q *TeacherQueue) GetAllEvents() []EventNode {
	out := make([]EventNode, len(q.events))
	for i, ev := range q.events {
		if i > 0 {
			ev.PrevID = q.events[i-1].ID
		}
		if i < len(q.events)-1 {
			ev.NextID = q.events[i+1].ID
		}
		out[i] = ev
	}
	return out
}

// Event looks up an event by id.
func (q *TeacherQueue) Event(id string) (EventNode, bool) {
	idx := q.indexOf(id)
	if idx < 0 {
		return EventNode{}, false
	}
	return q.events[idx], true
}

// GetEarliestEventTime returns the first start time, if any.
func (q *TeacherQueue) GetEarliestEventTime() (time.Time, bool) {
	if len(q.events) == 0 {
		return time.Time{}, false
	}
	return q.events[0].Date, true
}

// GetStats sums durations and the pricing amounts handed in with each event.
func (q *TeacherQueue) GetStats() QueueStats {
	stats := QueueStats{Commission: decimal.Zero, Revenue: decimal.Zero}
	for _, ev := range q.events {
		stats.EventCount++
		stats.TotalDuration += ev.Duration
		stats.Commission = stats.Commission.Add(ev.Commission)
		stats.Revenue = stats.Revenue.Add(ev.Revenue)
		if ev.Status == EventStatusCompleted {
			stats.CompletedCount++
		}
	}
	return stats
}

// GetInsertionTime computes where a new lesson goes. Lessons are always
// appended after the last event; submitTime only seeds an empty day.
func (q *TeacherQueue) GetInsertionTime(submitTime string, capacityStudents int, settings ControllerSettings) InsertionSlot {
	duration := settings.DurationFor(capacityStudents)

	var start time.Time
	if len(q.events) == 0 {
		offset, err := ParseClock(submitTime)
		if err != nil {
			offset = 0
		}
		start = q.day.Add(minutes(roundUp(offset, settings.step())))
	} else {
		last := q.events[len(q.events)-1]
		start = last.End().Add(minutes(settings.GapMinutes))
	}

	end := start.Add(minutes(duration))
	return InsertionSlot{
		Time:     start,
		Duration: duration,
		Fits:     !end.After(q.dayEnd()),
	}
}

// OptimiseQueue packs the queue so every gap equals gapMinutes. Fixed events
// stay put and the chain continues from their real end. A run of movable
// events that cannot be packed without reaching past the next fixed event is
// left where it is and reported as skipped, so the queue order never changes.
func (q *TeacherQueue) OptimiseQueue(gapMinutes int) OptimiseResult {
	result := OptimiseResult{Updates: []EventTimeUpdate{}, Skipped: []string{}}
	if len(q.events) < 2 {
		return result
	}

	prevEnd := q.events[0].End()
	for i := 1; i < len(q.events); {
		if q.events[i].IsFixed() {
			result.Skipped = append(result.Skipped, q.events[i].ID)
			prevEnd = q.events[i].End()
			i++
			continue
		}

		j := i
		for j < len(q.events) && !q.events[j].IsFixed() {
			j++
		}
		targets := make([]time.Time, 0, j-i)
		end := prevEnd
		for k := i; k < j; k++ {
			target := end.Add(minutes(gapMinutes))
			targets = append(targets, target)
			end = target.Add(minutes(q.events[k].Duration))
		}

		if j < len(q.events) && end.After(q.events[j].Date) {
			for k := i; k < j; k++ {
				result.Skipped = append(result.Skipped, q.events[k].ID)
			}
			prevEnd = q.events[j-1].End()
			i = j
			continue
		}

		for k := i; k < j; k++ {
			ev := &q.events[k]
			if !ev.Date.Equal(targets[k-i]) {
				ev.Date = targets[k-i]
				result.Updates = append(result.Updates, EventTimeUpdate{ID: ev.ID, Date: ev.Date})
			}
		}
		prevEnd = end
		i = j
	}
	return result
}

// IsQueueOptimised reports whether every consecutive gap is exactly gapMinutes.
func (q *TeacherQueue) IsQueueOptimised(gapMinutes int) bool {
	for i := 1; i < len(q.events); i++ {
		if actualGap(q.events[i], q.events[i-1]) != gapMinutes {
			return false
		}
	}
	return true
}

func (q *TeacherQueue) dayEnd() time.Time {
	return q.day.AddDate(0, 0, 1)
}

func (q *TeacherQueue) indexOf(id string) int {
	for i := range q.events {
		if q.events[i].ID == id {
			return i
		}
	}
	return -1
}

func (q *TeacherQueue) resort() {
	sort.SliceStable(q.events, func(i, j int) bool {
		return q.events[i].Date.Before(q.events[j].Date)
	})
}

func (q *TeacherQueue) append(ev EventNode) {
	q.events = append(q.events, ev.detached())
	q.resort()
}

func (q *TeacherQueue) remove(id string) (EventNode, int, bool) {
	idx := q.indexOf(id)
	if idx < 0 {
		return EventNode{}, -1, false
	}
	ev := q.events[idx]
	q.events = append(q.events[:idx], q.events[idx+1:]...)
	return ev, idx, true
}

// shiftFrom moves every event at or after idx by delta minutes.
func (q *TeacherQueue) shiftFrom(idx int, delta int) []string {
	var moved []string
	for i := idx; i < len(q.events); i++ {
		q.events[i].Date = q.events[i].Date.Add(minutes(delta))
		moved = append(moved, q.events[i].ID)
	}
	return moved
}
