package refreshtokens

import (
	"context"

	"github.com/dmitrijs2005/timeledger/internal/server/models"
)

// Repository tracks issued refresh tokens by jti.
type Repository interface {
	// Create records a newly issued refresh token.
	Create(ctx context.Context, token *models.RefreshToken) error

	// Find returns the token row for jti owned by accountID, or
	// common.ErrNotFound.
	Find(ctx context.Context, jti string, accountID string) (*models.RefreshToken, error)

	// Consume deletes the row for jti owned by accountID. It returns
	// common.ErrNotFound when no such row exists, which is how a replayed
	// or revoked token is detected.
	Consume(ctx context.Context, jti string, accountID string) error

	// DeleteByAccount revokes every refresh token of accountID.
	DeleteByAccount(ctx context.Context, accountID string) (int64, error)
}
