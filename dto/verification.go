package dto

import "time"

// FolderVerification is the per-folder outcome of an archive verification.
type FolderVerification struct {
	Folder          string   `json:"folder"`
	ServerCount     int      `json:"serverCount"`
	LocalCount      int      `json:"localCount"`
	MissingLocally  []uint32 `json:"missingLocally,omitempty"`
	DeletedOnServer []uint32 `json:"deletedOnServer,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// AccountVerification reports how far the local archive has drifted from the
// server. Synced is true only when every folder matched exactly.
type AccountVerification struct {
	AccountID string               `json:"accountId"`
	Email     string               `json:"email"`
	Synced    bool                 `json:"synced"`
	Folders   []FolderVerification `json:"folders"`
	CheckedAt time.Time            `json:"checkedAt"`
}
