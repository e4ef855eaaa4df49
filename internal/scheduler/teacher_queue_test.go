package scheduler

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDay = time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

func at(clock string) time.Time {
	t, err := AtClock(testDay, clock)
	if err != nil {
		panic(err)
	}
	return t
}

func ev(id, clock string, duration int) EventNode {
	return EventNode{
		ID:       id,
		Origin:   OriginConfirmed,
		LessonID: "lesson-" + id,
		Date:     at(clock),
		Duration: duration,
		Location: "Beach",
		Status:   EventStatusPlanned,
		Capacity: 1,
	}
}

func queueOf(events ...EventNode) *TeacherQueue {
	return NewTeacherQueue(Teacher{ID: "t1", Username: "ana"}, testDay, events)
}

func ids(events []EventNode) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func assertSorted(t *testing.T, q *TeacherQueue) {
	t.Helper()
	events := q.GetAllEvents()
	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].Date.Before(events[i-1].Date), "event %s starts before %s", events[i].ID, events[i-1].ID)
	}
}

func TestTeacherQueueSortsAndDeduplicates(t *testing.T) {
	q := queueOf(ev("c", "12:00", 60), ev("a", "09:00", 60), ev("b", "10:30", 30), ev("a", "15:00", 60))

	events := q.GetAllEvents()
	require.Len(t, events, 3)
	assert.Equal(t, []string{"a", "b", "c"}, ids(events))
	assert.Equal(t, at("09:00"), events[0].Date)
	assert.Equal(t, "", events[0].PrevID)
	assert.Equal(t, "b", events[0].NextID)
	assert.Equal(t, "a", events[1].PrevID)
	assert.Equal(t, "c", events[1].NextID)
	assert.Equal(t, "t1", events[2].TeacherID)
	assert.Equal(t, "ana", events[2].TeacherUsername)
}

func TestTeacherQueueGetAllEventsReturnsCopies(t *testing.T) {
	q := queueOf(ev("a", "09:00", 60))
	events := q.GetAllEvents()
	events[0].Duration = 999

	got, ok := q.Event("a")
	require.True(t, ok)
	assert.Equal(t, 60, got.Duration)
}

func TestTeacherQueueEarliestEventTime(t *testing.T) {
	_, ok := queueOf().GetEarliestEventTime()
	assert.False(t, ok)

	earliest, ok := queueOf(ev("b", "11:00", 60), ev("a", "08:30", 60)).GetEarliestEventTime()
	require.True(t, ok)
	assert.Equal(t, at("08:30"), earliest)
}

func TestTeacherQueueInsertionTimeEmptyQueue(t *testing.T) {
	settings := DefaultSettings()
	settings.DurationCapOne = 60
	settings.StepDuration = 30

	slot := queueOf().GetInsertionTime("09:00", 1, settings)
	assert.Equal(t, "09:00", slot.Clock())
	assert.Equal(t, 60, slot.Duration)
	assert.True(t, slot.Fits)

	slot = queueOf().GetInsertionTime("09:10", 1, settings)
	assert.Equal(t, "09:30", slot.Clock())
}

func TestTeacherQueueInsertionTimeAppendsAfterLastEvent(t *testing.T) {
	settings := DefaultSettings()
	settings.GapMinutes = 15

	q := queueOf(ev("a", "09:00", 60))
	slot := q.GetInsertionTime("09:00", 1, settings)
	assert.Equal(t, "10:15", slot.Clock())
	assert.Equal(t, 60, slot.Duration)

	slot = q.GetInsertionTime("09:00", 2, settings)
	assert.Equal(t, 90, slot.Duration)

	slot = q.GetInsertionTime("09:00", 5, settings)
	assert.Equal(t, 120, slot.Duration)
}

func TestTeacherQueueInsertionTimeRoundsCapsToStep(t *testing.T) {
	settings := DefaultSettings()
	settings.DurationCapOne = 50
	settings.StepDuration = 30

	slot := queueOf().GetInsertionTime("09:00", 1, settings)
	assert.Equal(t, 60, slot.Duration)
}

func TestTeacherQueueInsertionTimeReportsOverflow(t *testing.T) {
	slot := queueOf(ev("late", "22:30", 60)).GetInsertionTime("09:00", 1, DefaultSettings())
	assert.False(t, slot.Fits)
}

func TestTeacherQueueOptimiseQueue(t *testing.T) {
	q := queueOf(ev("a", "09:00", 60), ev("b", "10:40", 60), ev("c", "12:00", 30))

	result := q.OptimiseQueue(15)
	require.Len(t, result.Updates, 2)
	assert.Equal(t, EventTimeUpdate{ID: "b", Date: at("10:15")}, result.Updates[0])
	assert.Equal(t, EventTimeUpdate{ID: "c", Date: at("11:30")}, result.Updates[1])
	assert.Empty(t, result.Skipped)
	assert.True(t, q.IsQueueOptimised(15))

	again := q.OptimiseQueue(15)
	assert.Empty(t, again.Updates)
	assertSorted(t, q)
}

func TestTeacherQueueOptimiseQueueSkipsFixedEvents(t *testing.T) {
	done := ev("c", "12:00", 30)
	done.Status = EventStatusCompleted
	q := queueOf(ev("a", "09:00", 60), ev("b", "10:30", 60), done, ev("d", "13:00", 60))

	result := q.OptimiseQueue(15)
	assert.Equal(t, []string{"c"}, result.Skipped)
	require.Len(t, result.Updates, 2)
	assert.Equal(t, "b", result.Updates[0].ID)
	assert.Equal(t, at("10:15"), result.Updates[0].Date)
	assert.Equal(t, "d", result.Updates[1].ID)
	assert.Equal(t, at("12:45"), result.Updates[1].Date)

	skipped := map[string]bool{"c": true}
	events := q.GetAllEvents()
	for i := 1; i < len(events); i++ {
		if skipped[events[i].ID] {
			continue
		}
		assert.Equal(t, 15, actualGap(events[i], events[i-1]), "gap before %s", events[i].ID)
	}
	assert.Empty(t, q.OptimiseQueue(15).Updates)
}

func TestTeacherQueueOptimiseQueueNeverCrossesFixedEvent(t *testing.T) {
	done := ev("c", "10:45", 60)
	done.Status = EventStatusCompleted
	q := queueOf(ev("a", "09:00", 60), ev("b", "10:00", 30), done, ev("d", "13:00", 30))

	result := q.OptimiseQueue(60)
	assert.Equal(t, []string{"b", "c"}, result.Skipped)
	require.Len(t, result.Updates, 1)
	assert.Equal(t, EventTimeUpdate{ID: "d", Date: at("12:45")}, result.Updates[0])

	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(q.GetAllEvents()))
	b, _ := q.Event("b")
	assert.Equal(t, at("10:00"), b.Date)
	assertSorted(t, q)

	skipped := map[string]bool{"b": true, "c": true}
	events := q.GetAllEvents()
	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].Date.Before(events[i-1].End()), "%s overlaps %s", events[i].ID, events[i-1].ID)
		if !skipped[events[i].ID] {
			assert.Equal(t, 60, actualGap(events[i], events[i-1]), "gap before %s", events[i].ID)
		}
	}

	again := q.OptimiseQueue(60)
	assert.Empty(t, again.Updates)
	assert.Equal(t, result.Skipped, again.Skipped)
}

func TestTeacherQueueIsQueueOptimisedRequiresExactGap(t *testing.T) {
	assert.True(t, queueOf().IsQueueOptimised(15))
	assert.True(t, queueOf(ev("a", "09:00", 60), ev("b", "10:15", 60)).IsQueueOptimised(15))
	assert.False(t, queueOf(ev("a", "09:00", 60), ev("b", "10:30", 60)).IsQueueOptimised(15))
	assert.False(t, queueOf(ev("a", "09:00", 60), ev("b", "10:00", 60)).IsQueueOptimised(15))
}

func TestTeacherQueueStats(t *testing.T) {
	a := ev("a", "09:00", 60)
	a.Commission = decimal.RequireFromString("12.50")
	a.Revenue = decimal.RequireFromString("80")
	b := ev("b", "10:00", 90)
	b.Commission = decimal.RequireFromString("7.25")
	b.Revenue = decimal.RequireFromString("45.5")
	b.Status = EventStatusCompleted

	stats := queueOf(a, b).GetStats()
	assert.Equal(t, 2, stats.EventCount)
	assert.Equal(t, 1, stats.CompletedCount)
	assert.Equal(t, 150, stats.TotalDuration)
	assert.True(t, stats.Commission.Equal(decimal.RequireFromString("19.75")))
	assert.True(t, stats.Revenue.Equal(decimal.RequireFromString("125.5")))
}

func TestSettingsValidate(t *testing.T) {
	require.NoError(t, DefaultSettings().Validate())

	bad := DefaultSettings()
	bad.StepDuration = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidSettings)

	bad = DefaultSettings()
	bad.SubmitTime = "25:00"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidSettings)

	bad = DefaultSettings()
	bad.MinDuration = 120
	bad.MaxDuration = 60
	assert.ErrorIs(t, bad.Validate(), ErrInvalidSettings)
}

func TestParseClock(t *testing.T) {
	m, err := ParseClock("08:30")
	require.NoError(t, err)
	assert.Equal(t, 510, m)

	for _, raw := range []string{"", "8", "24:00", "10:60", "aa:bb"} {
		_, err := ParseClock(raw)
		assert.Error(t, err, raw)
	}
}
