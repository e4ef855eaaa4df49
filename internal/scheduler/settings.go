package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSettings is returned when controller settings cannot drive the engine.
var ErrInvalidSettings = errors.New("invalid controller settings")

// ControllerSettings carries the operator-owned knobs threaded through every queue computation.
type ControllerSettings struct {
	SubmitTime       string `json:"submitTime" validate:"required"`
	Location         string `json:"location"`
	DurationCapOne   int    `json:"durationCapOne" validate:"min=1"`
	DurationCapTwo   int    `json:"durationCapTwo" validate:"min=1"`
	DurationCapThree int    `json:"durationCapThree" validate:"min=1"`
	GapMinutes       int    `json:"gapMinutes" validate:"min=0"`
	StepDuration     int    `json:"stepDuration" validate:"min=1"`
	MinDuration      int    `json:"minDuration" validate:"min=1"`
	MaxDuration      int    `json:"maxDuration" validate:"min=1"`
	Locked           bool   `json:"locked"`
}

// DefaultSettings mirrors the values the school starts with before an operator tunes anything.
func DefaultSettings() ControllerSettings {
	return ControllerSettings{
		SubmitTime:       "09:00",
		DurationCapOne:   60,
		DurationCapTwo:   90,
		DurationCapThree: 120,
		GapMinutes:       0,
		StepDuration:     30,
		MinDuration:      30,
		MaxDuration:      360,
		Locked:           true,
	}
}

// Validate reports whether the settings are usable.
func (s ControllerSettings) Validate() error {
	if _, err := ParseClock(s.SubmitTime); err != nil {
		return fmt.Errorf("%w: submit time: %v", ErrInvalidSettings, err)
	}
	if s.StepDuration <= 0 {
		return fmt.Errorf("%w: step duration must be positive", ErrInvalidSettings)
	}
	if s.DurationCapOne <= 0 || s.DurationCapTwo <= 0 || s.DurationCapThree <= 0 {
		return fmt.Errorf("%w: duration caps must be positive", ErrInvalidSettings)
	}
	if s.GapMinutes < 0 {
		return fmt.Errorf("%w: gap minutes cannot be negative", ErrInvalidSettings)
	}
	if s.MinDuration <= 0 || s.MaxDuration < s.MinDuration {
		return fmt.Errorf("%w: duration bounds", ErrInvalidSettings)
	}
	return nil
}

// DurationFor selects the duration cap for the number of students, rounded up to the step.
func (s ControllerSettings) DurationFor(capacityStudents int) int {
	var capMinutes int
	switch {
	case capacityStudents <= 1:
		capMinutes = s.DurationCapOne
	case capacityStudents == 2:
		capMinutes = s.DurationCapTwo
	default:
		capMinutes = s.DurationCapThree
	}
	return roundUp(capMinutes, s.step())
}

func (s ControllerSettings) step() int {
	if s.StepDuration <= 0 {
		return 1
	}
	return s.StepDuration
}

func (s ControllerSettings) minDuration() int {
	if s.MinDuration <= 0 {
		return s.step()
	}
	return s.MinDuration
}

// ParseClock converts "HH:MM" into minutes after midnight.
func ParseClock(clock string) (int, error) {
	parts := strings.Split(strings.TrimSpace(clock), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("clock %q must be HH:MM", clock)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("clock %q has invalid hours", clock)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("clock %q has invalid minutes", clock)
	}
	return hours*60 + minutes, nil
}

// FormatClock renders t as "HH:MM".
func FormatClock(t time.Time) string {
	return t.Format("15:04")
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// AtClock places the "HH:MM" clock on day.
func AtClock(day time.Time, clock string) (time.Time, error) {
	minutes, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return StartOfDay(day).Add(time.Duration(minutes) * time.Minute), nil
}

func roundUp(value, step int) int {
	if step <= 1 {
		return value
	}
	if rem := value % step; rem != 0 {
		return value + step - rem
	}
	return value
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
