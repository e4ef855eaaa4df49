package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectEventGapStatus(t *testing.T) {
	previous := ev("prev", "09:00", 60)

	cases := []struct {
		name     string
		start    string
		expected GapStatus
	}{
		{name: "overlap", start: "09:50", expected: GapStatus{State: GapStateOverlap, DurationMinutes: 25}},
		{name: "back to back is overdue", start: "10:00", expected: GapStatus{State: GapStateOverdue, DurationMinutes: 15}},
		{name: "overdue", start: "10:05", expected: GapStatus{State: GapStateOverdue, DurationMinutes: 10}},
		{name: "exact", start: "10:15", expected: GapStatus{State: GapStateNone}},
		{name: "surplus", start: "10:45", expected: GapStatus{State: GapStateGap, DurationMinutes: 30}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			current := ev("cur", tc.start, 60)
			assert.Equal(t, tc.expected, DetectEventGapStatus(current, previous, 15))
		})
	}
}

func TestDetectEventGapStatusZeroRequiredGap(t *testing.T) {
	previous := ev("prev", "09:00", 60)
	assert.Equal(t, GapStatus{State: GapStateNone}, DetectEventGapStatus(ev("cur", "10:00", 30), previous, 0))
	assert.Equal(t, GapStateGap, DetectEventGapStatus(ev("cur", "10:30", 30), previous, 0).State)
}

func TestQueueGapStatuses(t *testing.T) {
	q := queueOf(ev("a", "09:00", 60), ev("b", "10:15", 60), ev("c", "11:45", 60))

	statuses := QueueGapStatuses(q, 15)
	assert.Len(t, statuses, 2)
	assert.Equal(t, GapStateNone, statuses["b"].State)
	assert.Equal(t, GapStatus{State: GapStateGap, DurationMinutes: 15}, statuses["c"])
	_, hasFirst := statuses["a"]
	assert.False(t, hasFirst)
}
