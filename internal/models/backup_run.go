package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailvault/internal/enum"
	"github.com/customeros/mailvault/internal/utils"
)

// BackupRun is one append-only history record of a backup run. Rows beyond
// the retention cap are pruned after each completed run.
type BackupRun struct {
	ID        string         `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	AccountID string         `gorm:"column:account_id;type:varchar(50);index;not null" json:"accountId"`
	Trigger   string         `gorm:"column:trigger;type:varchar(20);not null" json:"trigger"`
	Result    enum.RunResult `gorm:"column:result;type:varchar(30)" json:"result"`
	// Counters
	FoldersProcessed int        `gorm:"column:folders_processed;not null;default:0" json:"foldersProcessed"`
	FoldersTotal     int        `gorm:"column:folders_total;not null;default:0" json:"foldersTotal"`
	EmailsDownloaded int        `gorm:"column:emails_downloaded;not null;default:0" json:"emailsDownloaded"`
	EmailsTotal      int        `gorm:"column:emails_total;not null;default:0" json:"emailsTotal"`
	BytesDownloaded  int64      `gorm:"column:bytes_downloaded;not null;default:0" json:"bytesDownloaded"`
	Errors           StringList `gorm:"column:errors;type:text" json:"errors"`
	// Timing
	StartedAt   time.Time  `gorm:"column:started_at;type:timestamp;not null" json:"startedAt"`
	CompletedAt *time.Time `gorm:"column:completed_at;type:timestamp" json:"completedAt,omitempty"`
	CreatedAt   time.Time  `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
}

func (BackupRun) TableName() string {
	return "backup_runs"
}

func (r *BackupRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = utils.GenerateNanoIDWithPrefix("run", 16)
	}
	return nil
}

// Run triggers.
const (
	RunTriggerManual   = "manual"
	RunTriggerSchedule = "schedule"
	RunTriggerRepair   = "repair"
)
