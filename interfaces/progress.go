package interfaces

import (
	"time"

	"github.com/customeros/mailvault/internal/enum"
)

// Progress is a point-in-time snapshot of one account's backup run.
type Progress struct {
	AccountID        string         `json:"accountId"`
	RunID            string         `json:"runId"`
	Status           enum.RunStatus `json:"status"`
	CurrentFolder    string         `json:"currentFolder"`
	FoldersProcessed int            `json:"foldersProcessed"`
	FoldersTotal     int            `json:"foldersTotal"`
	EmailsDownloaded int            `json:"emailsDownloaded"`
	EmailsTotal      int            `json:"emailsTotal"`
	BytesDownloaded  int64          `json:"bytesDownloaded"`
	Errors           []string       `json:"errors"`
	StartedAt        time.Time      `json:"startedAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// ProgressSink receives progress snapshots. Implementations must not call
// back into the engine and must return quickly.
type ProgressSink interface {
	PublishProgress(progress Progress)
}
