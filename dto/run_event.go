package dto

import "time"

const (
	EventRunStarted   = "run.started"
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
	EventRunCancelled = "run.cancelled"

	EventVerificationCompleted = "verification.completed"
)

// RunEvent announces backup run lifecycle transitions.
type RunEvent struct {
	Event            string    `json:"event"`
	RunID            string    `json:"runId"`
	AccountID        string    `json:"accountId"`
	Email            string    `json:"email"`
	Trigger          string    `json:"trigger"`
	Result           string    `json:"result,omitempty"`
	EmailsDownloaded int64     `json:"emailsDownloaded"`
	BytesDownloaded  int64     `json:"bytesDownloaded"`
	Errors           int       `json:"errors"`
	Timestamp        time.Time `json:"timestamp"`
}

// VerificationEvent summarises an archive verification.
type VerificationEvent struct {
	Event           string    `json:"event"`
	AccountID       string    `json:"accountId"`
	Email           string    `json:"email"`
	Synced          bool      `json:"synced"`
	FoldersChecked  int       `json:"foldersChecked"`
	MissingLocally  int       `json:"missingLocally"`
	DeletedOnServer int       `json:"deletedOnServer"`
	Timestamp       time.Time `json:"timestamp"`
}
