package interfaces

import (
	"context"

	"github.com/customeros/mailvault/dto"
	"github.com/customeros/mailvault/internal/models"
)

// AccountsService manages the roster of mailboxes to back up. Credentials
// pass through to the secret store; the catalog row never holds them.
type AccountsService interface {
	CreateAccount(ctx context.Context, input *dto.AccountInput) (*models.Account, error)
	UpdateAccount(ctx context.Context, id string, input *dto.AccountInput) (*models.Account, error)
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]*models.Account, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
	DeleteAccount(ctx context.Context, id string) error
	// TestConnection dials the endpoint, authenticates and logs out.
	TestConnection(ctx context.Context, id string) error
}
