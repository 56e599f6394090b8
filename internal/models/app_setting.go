package models

import "time"

// AppSetting is one row of the key-value settings store (schedule, backup
// root, rate-limit defaults, retention).
type AppSetting struct {
	Key       string    `gorm:"column:key;type:varchar(100);primaryKey" json:"key"`
	Value     string    `gorm:"column:value;type:text" json:"value"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (AppSetting) TableName() string {
	return "app_settings"
}

// Well-known setting keys.
const (
	SettingBackupRoot        = "backup.root"
	SettingStreamThreshold   = "backup.stream_threshold_bytes"
	SettingHistoryRetention  = "history.retention"
	SettingRateLimitProfile  = "rate_limit.profile"
	SettingSchedule          = "schedule"
	SettingMirrorEnabled     = "mirror.enabled"
	SettingVerifyAfterBackup = "verify.after_backup"
)
