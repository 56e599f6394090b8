package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/enum"
)

// SettingSchedule is the settings key holding the serialized backup schedule.
const SettingSchedule = "backup.schedule"

// Schedule is the persisted recurrence for automatic backups. Anchor is only
// meaningful in custom mode, where it fixes the interval grid.
type Schedule struct {
	Mode      enum.ScheduleMode `json:"mode"`
	TimeOfDay string            `json:"timeOfDay,omitempty"` // "15:04", daily and weekly modes
	Weekday   time.Weekday      `json:"weekday,omitempty"`
	Interval  int               `json:"interval,omitempty"`
	Unit      enum.IntervalUnit `json:"unit,omitempty"`
	Anchor    time.Time         `json:"anchor,omitempty"`
}

func DefaultSchedule() Schedule {
	return Schedule{Mode: enum.ScheduleManual}
}

func (s Schedule) Validate() error {
	switch s.Mode {
	case enum.ScheduleManual, enum.ScheduleHourly:
		return nil
	case enum.ScheduleDaily:
		_, _, err := parseTimeOfDay(s.TimeOfDay)
		return err
	case enum.ScheduleWeekly:
		if s.Weekday < time.Sunday || s.Weekday > time.Saturday {
			return fmt.Errorf("invalid weekday: %d", s.Weekday)
		}
		_, _, err := parseTimeOfDay(s.TimeOfDay)
		return err
	case enum.ScheduleCustom:
		if s.Interval < 1 {
			return fmt.Errorf("interval must be at least 1, got %d", s.Interval)
		}
		if s.step() <= 0 {
			return fmt.Errorf("unknown interval unit: %s", s.Unit)
		}
		return nil
	default:
		return fmt.Errorf("unknown schedule mode: %s", s.Mode)
	}
}

// NextFire computes the first fire time strictly after now. The false return
// means the schedule never fires (manual mode or an invalid schedule).
func (s Schedule) NextFire(now time.Time) (time.Time, bool) {
	switch s.Mode {
	case enum.ScheduleHourly:
		at := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
		return at.Add(time.Hour), true

	case enum.ScheduleDaily:
		hour, minute, err := parseTimeOfDay(s.TimeOfDay)
		if err != nil {
			return time.Time{}, false
		}
		at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		return at, true

	case enum.ScheduleWeekly:
		hour, minute, err := parseTimeOfDay(s.TimeOfDay)
		if err != nil {
			return time.Time{}, false
		}
		days := (int(s.Weekday) - int(now.Weekday()) + 7) % 7
		base := now.AddDate(0, 0, days)
		at := time.Date(base.Year(), base.Month(), base.Day(), hour, minute, 0, 0, now.Location())
		if !at.After(now) {
			at = at.AddDate(0, 0, 7)
		}
		return at, true

	case enum.ScheduleCustom:
		step := s.step()
		if s.Interval < 1 || step <= 0 {
			return time.Time{}, false
		}
		anchor := s.Anchor
		if anchor.IsZero() {
			anchor = now
		}
		if anchor.After(now) {
			return anchor, true
		}
		n := now.Sub(anchor)/step + 1
		return anchor.Add(n * step), true

	default:
		return time.Time{}, false
	}
}

// CronSpec compiles the schedule into a six-field cron spec (seconds
// enabled). Manual and invalid schedules compile to nothing.
func (s Schedule) CronSpec() (string, bool) {
	switch s.Mode {
	case enum.ScheduleHourly:
		return "0 0 * * * *", true
	case enum.ScheduleDaily:
		hour, minute, err := parseTimeOfDay(s.TimeOfDay)
		if err != nil {
			return "", false
		}
		return fmt.Sprintf("0 %d %d * * *", minute, hour), true
	case enum.ScheduleWeekly:
		hour, minute, err := parseTimeOfDay(s.TimeOfDay)
		if err != nil || s.Weekday < time.Sunday || s.Weekday > time.Saturday {
			return "", false
		}
		return fmt.Sprintf("0 %d %d * * %d", minute, hour, int(s.Weekday)), true
	case enum.ScheduleCustom:
		step := s.step()
		if s.Interval < 1 || step <= 0 {
			return "", false
		}
		return "@every " + step.String(), true
	default:
		return "", false
	}
}

func (s Schedule) step() time.Duration {
	switch s.Unit {
	case enum.IntervalMinutes:
		return time.Duration(s.Interval) * time.Minute
	case enum.IntervalHours:
		return time.Duration(s.Interval) * time.Hour
	case enum.IntervalDays:
		return time.Duration(s.Interval) * 24 * time.Hour
	default:
		return 0
	}
}

func parseTimeOfDay(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q: %w", value, err)
	}
	return t.Hour(), t.Minute(), nil
}

// LoadSchedule reads the persisted schedule, returning the manual default
// when nothing is stored or the stored value does not parse.
func LoadSchedule(ctx context.Context, settings interfaces.SettingsRepository) (Schedule, error) {
	raw, err := settings.Get(ctx, SettingSchedule, "")
	if err != nil {
		return DefaultSchedule(), err
	}
	if raw == "" {
		return DefaultSchedule(), nil
	}
	var s Schedule
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return DefaultSchedule(), fmt.Errorf("failed to parse stored schedule: %w", err)
	}
	if err := s.Validate(); err != nil {
		return DefaultSchedule(), err
	}
	return s, nil
}

func SaveSchedule(ctx context.Context, settings interfaces.SettingsRepository, s Schedule) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode schedule: %w", err)
	}
	return settings.Set(ctx, SettingSchedule, string(raw))
}
