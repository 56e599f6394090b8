package interfaces

import (
	"time"
)

// MessageStore is the filesystem tree of downloaded .eml files.
type MessageStore interface {
	// PrepareFolder ensures the directory for an account folder exists and
	// returns its absolute path.
	PrepareFolder(accountEmail, folderPath string) (string, error)
	// ExistingUIDs returns the set of UIDs already downloaded for a folder,
	// from the sidecar when present or rebuilt from a directory scan.
	ExistingUIDs(accountEmail, folderPath string) (map[uint32]struct{}, error)
	// WriteMessage commits raw message bytes atomically and appends the UID
	// to the folder sidecar. Returns the final file path.
	WriteMessage(raw []byte, accountEmail, folderPath string, uid uint32, date time.Time, senderSlug string) (string, error)
	// PrepareStreamingDestination reserves temp and final paths for a large
	// message so the body can be streamed straight to disk.
	PrepareStreamingDestination(accountEmail, folderPath string, uid uint32, date time.Time, senderSlug string) (tempPath string, finalPath string, err error)
	// FinalizeStreamedFile renames the temp file into place and appends the
	// UID to the sidecar.
	FinalizeStreamedFile(tempPath, finalPath string, uid uint32) error
	// CleanupOrphans removes leftover *.tmp files below the backup root.
	CleanupOrphans() (int, error)
	SizeBytes(accountEmail string) (int64, error)
	MessageCount(accountEmail string) (int64, error)
}
