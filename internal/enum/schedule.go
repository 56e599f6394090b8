package enum

// ScheduleMode is the recurrence mode for automatic backups.
type ScheduleMode string

const (
	ScheduleManual ScheduleMode = "manual"
	ScheduleHourly ScheduleMode = "hourly"
	ScheduleDaily  ScheduleMode = "daily"
	ScheduleWeekly ScheduleMode = "weekly"
	ScheduleCustom ScheduleMode = "custom"
)

func (t ScheduleMode) String() string {
	return string(t)
}

// IntervalUnit is the unit for custom schedule intervals.
type IntervalUnit string

const (
	IntervalMinutes IntervalUnit = "minutes"
	IntervalHours   IntervalUnit = "hours"
	IntervalDays    IntervalUnit = "days"
)

func (t IntervalUnit) String() string {
	return string(t)
}
