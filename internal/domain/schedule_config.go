package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ScheduleType determines how a schedule's time points recur.
type ScheduleType string

// Possible schedule types. Daily schedules fire every day; weekly
// schedules additionally filter by weekday.
const (
	ScheduleDaily  ScheduleType = "daily"
	ScheduleWeekly ScheduleType = "weekly"
)

// Common validation errors for ScheduleConfig
var (
	ErrEmptyTaskKey        = errors.New("schedule config task key cannot be empty")
	ErrInvalidScheduleType = errors.New("invalid schedule type")
	ErrInvalidTimePoint    = errors.New("invalid time point, expected HH:MM")
	ErrNoTimePoints        = errors.New("schedule config has no time points")
	ErrInvalidWeekday      = errors.New("invalid weekday")
)

// weekdayNames maps the persisted short weekday form to time.Weekday.
var weekdayNames = map[string]time.Weekday{
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
	"sun": time.Sunday,
}

// AllWeekdays returns the default weekday set covering the whole week.
func AllWeekdays() []string {
	return []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}
}

// ScheduleConfig is the persisted source of truth for one scheduled stage.
// The scheduler's in-memory job table is a cache derived from these rows
// and rebuilt on every config change.
type ScheduleConfig struct {
	TaskKey      string            `json:"task_key"`
	Name         string            `json:"name"`
	Enabled      bool              `json:"enabled"`
	ScheduleType ScheduleType      `json:"schedule_type"`
	TimePoints   []string          `json:"time_points"`
	Weekdays     []string          `json:"weekdays"`
	Extra        map[string]string `json:"extra"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Validate checks the config and normalizes its time points in place.
// Invalid time strings are rejected here, at save time, never at fire time.
func (c *ScheduleConfig) Validate() error {
	if c.TaskKey == "" {
		return ErrEmptyTaskKey
	}

	if c.ScheduleType == "" {
		c.ScheduleType = ScheduleDaily
	}
	if c.ScheduleType != ScheduleDaily && c.ScheduleType != ScheduleWeekly {
		return fmt.Errorf("%w: %q", ErrInvalidScheduleType, c.ScheduleType)
	}

	normalized, err := NormalizeTimePoints(c.TimePoints)
	if err != nil {
		return err
	}
	if len(normalized) == 0 {
		return ErrNoTimePoints
	}
	c.TimePoints = normalized

	if len(c.Weekdays) == 0 {
		c.Weekdays = AllWeekdays()
	}
	for _, day := range c.Weekdays {
		if _, ok := weekdayNames[day]; !ok {
			return fmt.Errorf("%w: %q", ErrInvalidWeekday, day)
		}
	}

	return nil
}

// FiresOn reports whether the config is eligible to fire on the given
// weekday. Daily schedules fire every day.
func (c *ScheduleConfig) FiresOn(day time.Weekday) bool {
	if c.ScheduleType != ScheduleWeekly {
		return true
	}
	for _, name := range c.Weekdays {
		if weekdayNames[name] == day {
			return true
		}
	}
	return false
}

// NormalizeTimePoints parses, reformats, and deduplicates a list of HH:MM
// time strings, returning them in ascending order. Any unparsable entry
// fails the whole list.
func NormalizeTimePoints(points []string) ([]string, error) {
	seen := make(map[string]struct{}, len(points))
	normalized := make([]string, 0, len(points))

	for _, point := range points {
		parsed, err := time.Parse("15:04", point)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTimePoint, point)
		}
		canonical := parsed.Format("15:04")
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		normalized = append(normalized, canonical)
	}

	sort.Strings(normalized)
	return normalized, nil
}
