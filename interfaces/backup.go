package interfaces

import (
	"context"

	"github.com/customeros/mailvault/dto"
	"github.com/customeros/mailvault/internal/models"
)

// BackupService owns backup runs. At most one run is active per account;
// starting a second one returns ErrRunInProgress.
type BackupService interface {
	// StartRun launches a backup for one account and returns the run ID
	// without waiting for the run to finish.
	StartRun(ctx context.Context, accountID string, trigger string) (string, error)
	// StartAll launches runs for every enabled account, skipping accounts
	// that already have one active.
	StartAll(ctx context.Context, trigger string) ([]string, error)
	CancelRun(ctx context.Context, accountID string) error
	CancelAll(ctx context.Context)
	// Progress reports the live snapshot of an active run.
	Progress(accountID string) (Progress, bool)
	ActiveRuns() []string
	// Verify compares server and local UID sets without downloading.
	Verify(ctx context.Context, accountID string) (*dto.AccountVerification, error)
	// StartRepair verifies first, then launches a run restricted to the
	// messages found missing. Returns "" when nothing is missing.
	StartRepair(ctx context.Context, accountID string) (string, error)
	History(ctx context.Context, accountID string, limit int) ([]*models.BackupRun, error)
	// CleanupOrphans removes temp files left behind by interrupted runs.
	CleanupOrphans(ctx context.Context) (int, error)
	RegisterProgressSink(sink ProgressSink)
	// WaitIdle blocks until no run is active.
	WaitIdle()
	// Shutdown cancels active runs and waits for them to wind down.
	Shutdown(ctx context.Context)
}
