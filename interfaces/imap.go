package interfaces

import (
	"context"
	"io"
)

// IMAPClient is one authenticated IMAP session. Implementations are not safe
// for concurrent use; the pipeline issues one command at a time.
type IMAPClient interface {
	// Connect opens the transport, reads the greeting and authenticates.
	Connect(ctx context.Context) error
	ListFolders(ctx context.Context) ([]Folder, error)
	SelectFolder(ctx context.Context, name string) (*FolderStatus, error)
	SearchAllUIDs(ctx context.Context) ([]uint32, error)
	// FetchMessage returns the full raw message for a UID.
	FetchMessage(ctx context.Context, uid uint32) ([]byte, error)
	// FetchMessageHeader returns only the RFC 5322 header section.
	FetchMessageHeader(ctx context.Context, uid uint32) ([]byte, error)
	FetchMessageSize(ctx context.Context, uid uint32) (uint32, error)
	// StreamMessageTo copies the raw message to w without buffering it whole.
	StreamMessageTo(ctx context.Context, uid uint32, w io.Writer) (int64, error)
	Logout(ctx context.Context) error
	Close() error
}

// Folder is a server-reported mailbox.
type Folder struct {
	Name      string   // raw server-encoded name
	Delimiter string   // hierarchy delimiter, usually "/" or "."
	Flags     []string // LIST attributes, e.g. \Noselect
	Path      string   // decoded name with delimiter mapped to "/"
}

// Selectable reports whether the folder can be SELECTed.
func (f Folder) Selectable() bool {
	for _, flag := range f.Flags {
		if flag == `\Noselect` {
			return false
		}
	}
	return true
}

// FolderStatus is the snapshot returned by SELECT.
type FolderStatus struct {
	Exists      uint32
	Recent      uint32
	UIDNext     uint32
	UIDValidity uint32
}
