package cron_config

type Config struct {
	// Heartbeat log line, top of each hour
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 0 * * * *"`
	// Orphaned temp file sweep, daily at 04:00
	CronScheduleOrphanSweep string `env:"CRON_SCHEDULE_ORPHAN_SWEEP" envDefault:"0 0 4 * * *"`
}
