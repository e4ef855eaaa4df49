package scheduler

// GapState classifies the idle time between two consecutive events.
type GapState string

const (
	GapStateNone    GapState = "none"
	GapStateOverlap GapState = "overlap"
	GapStateOverdue GapState = "overdue"
	GapStateGap     GapState = "gap"
)

// GapStatus is the classification plus the minutes needed to fix it.
type GapStatus struct {
	State           GapState `json:"state"`
	DurationMinutes int      `json:"durationMinutes"`
}

// DetectEventGapStatus compares the gap between previous.End and current.Date
// against requiredGapMinutes. DurationMinutes is how far current has to move
// for the gap to become exact.
func DetectEventGapStatus(current, previous EventNode, requiredGapMinutes int) GapStatus {
	gap := actualGap(current, previous)
	switch {
	case gap < 0:
		return GapStatus{State: GapStateOverlap, DurationMinutes: requiredGapMinutes - gap}
	case gap < requiredGapMinutes:
		return GapStatus{State: GapStateOverdue, DurationMinutes: requiredGapMinutes - gap}
	case gap > requiredGapMinutes:
		return GapStatus{State: GapStateGap, DurationMinutes: gap - requiredGapMinutes}
	default:
		return GapStatus{State: GapStateNone}
	}
}

// QueueGapStatuses maps each event after the first to its gap status.
func QueueGapStatuses(q *TeacherQueue, requiredGapMinutes int) map[string]GapStatus {
	out := make(map[string]GapStatus, len(q.events))
	for i := 1; i < len(q.events); i++ {
		out[q.events[i].ID] = DetectEventGapStatus(q.events[i], q.events[i-1], requiredGapMinutes)
	}
	return out
}

func actualGap(current, previous EventNode) int {
	return int(current.Date.Sub(previous.End()).Minutes())
}
