// Package accounts declares the credential store: persisted accounts with
// their password hash and lockout state.
package accounts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/timeledger/internal/server/models"
)

// Repository is the credential store contract.
type Repository interface {
	// Create inserts a new account. A taken email or username yields
	// common.ErrDuplicateIdentity.
	Create(ctx context.Context, account *models.Account) (*models.Account, error)

	// GetByID, GetByEmail and GetByUsername return common.ErrNotFound when
	// no account matches.
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByUsername(ctx context.Context, username string) (*models.Account, error)

	// GetByIDForUpdate reads the account and locks its row until the
	// surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*models.Account, error)

	// SaveLockState stores the failed attempt counter and lock expiry
	// computed by the account guard.
	SaveLockState(ctx context.Context, id string, state models.LockState) error

	// RecordLogin stamps last_login_at.
	RecordLogin(ctx context.Context, id string, at time.Time) error

	// UpdatePassword replaces the stored password hash.
	UpdatePassword(ctx context.Context, id string, hash string) error

	// SetOnboarded marks the account as having finished onboarding.
	SetOnboarded(ctx context.Context, id string) error
}
