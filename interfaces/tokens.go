package interfaces

import (
	"context"

	"github.com/customeros/mailvault/internal/models"
)

// TokenProvider exchanges a stored refresh token for a live access token.
// Implementations cache tokens until shortly before expiry.
type TokenProvider interface {
	AccessToken(ctx context.Context, account *models.Account) (string, error)
	// Invalidate drops any cached token for the account, forcing a refresh.
	Invalidate(accountID string)
}
