package interfaces

import (
	"context"

	"github.com/customeros/mailvault/internal/models"
)

type AccountRepository interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	GetAccounts(ctx context.Context) ([]*models.Account, error)
	GetEnabledAccounts(ctx context.Context) ([]*models.Account, error)
	SaveAccount(ctx context.Context, account *models.Account) error
	UpdateLastRun(ctx context.Context, id string, status string) error
	DeleteAccount(ctx context.Context, id string) error
}
