// Package categories stores per-tenant task categories.
package categories

import (
	"context"

	"github.com/dmitrijs2005/timeledger/internal/server/models"
)

// Repository methods take the owning tenant explicitly; rows of other
// tenants are never visible and report common.ErrNotFound.
type Repository interface {
	// Create inserts category under tenantID. A name the tenant already
	// uses yields common.ErrAlreadyExists.
	Create(ctx context.Context, tenantID string, category *models.Category) (*models.Category, error)

	// Get returns the category id of tenantID, or common.ErrNotFound.
	Get(ctx context.Context, tenantID string, id string) (*models.Category, error)

	// List returns the tenant's categories ordered by name.
	List(ctx context.Context, tenantID string) ([]models.Category, error)

	// Rename changes the display name of one category.
	Rename(ctx context.Context, tenantID string, id string, name string) error

	// Delete removes the category. Tasks that pointed at it keep existing
	// without a category.
	Delete(ctx context.Context, tenantID string, id string) error

	// CreateDefaults provisions the given categories, skipping names the
	// tenant already has.
	CreateDefaults(ctx context.Context, tenantID string, defaults []models.DefaultCategory) error
}
