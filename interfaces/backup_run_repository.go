package interfaces

import (
	"context"

	"github.com/customeros/mailvault/internal/models"
)

type BackupRunRepository interface {
	CreateRun(ctx context.Context, run *models.BackupRun) error
	CompleteRun(ctx context.Context, run *models.BackupRun) error
	GetRun(ctx context.Context, id string) (*models.BackupRun, error)
	GetRuns(ctx context.Context, accountID string, limit int) ([]*models.BackupRun, error)
	// PruneHistory keeps only the most recent keep rows per account.
	PruneHistory(ctx context.Context, accountID string, keep int) error
	// DeleteRunsForAccount drops the whole history, used on account removal.
	DeleteRunsForAccount(ctx context.Context, accountID string) error
}
