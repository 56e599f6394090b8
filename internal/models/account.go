package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailvault/internal/enum"
	"github.com/customeros/mailvault/internal/utils"
)

// Account is one remote IMAP mailbox to back up. The id is immutable for the
// account's lifetime and keys the keychain entries; the filesystem tree is
// keyed by email instead, so the archive survives delete-and-re-add.
type Account struct {
	ID          string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Email       string `gorm:"column:email;type:varchar(255);uniqueIndex;not null" json:"email"`
	DisplayName string `gorm:"column:display_name;type:varchar(255)" json:"displayName"`
	// IMAP endpoint
	Host     string `gorm:"column:host;type:varchar(255);not null" json:"host"`
	Port     int    `gorm:"column:port;not null;default:993" json:"port"`
	TLS      bool   `gorm:"column:tls;not null;default:true" json:"tls"`
	Username string `gorm:"column:username;type:varchar(255);not null" json:"username"`
	// Authentication
	AuthMethod    enum.AuthMethod `gorm:"column:auth_method;type:varchar(20);not null;default:'password'" json:"authMethod"`
	OAuthProvider string          `gorm:"column:oauth_provider;type:varchar(50)" json:"oauthProvider,omitempty"`
	// Behaviour
	Enabled          bool   `gorm:"column:enabled;not null;default:true" json:"enabled"`
	RateLimitProfile string `gorm:"column:rate_limit_profile;type:varchar(20)" json:"rateLimitProfile,omitempty"`
	// Status
	LastRunAt     *time.Time `gorm:"column:last_run_at;type:timestamp" json:"lastRunAt,omitempty"`
	LastRunStatus string     `gorm:"column:last_run_status;type:varchar(50)" json:"lastRunStatus,omitempty"`
	// Standard timestamps
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Account) TableName() string {
	return "accounts"
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("acct", 16)
	}
	return nil
}
