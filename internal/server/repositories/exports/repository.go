// Package exports tracks timesheet files uploaded to object storage.
package exports

import (
	"context"

	"github.com/dmitrijs2005/timeledger/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, tenantID string, export *models.Export) (*models.Export, error)
	Get(ctx context.Context, tenantID string, id string) (*models.Export, error)
	ListByAccount(ctx context.Context, tenantID string, limit int) ([]models.Export, error)
	// MarkUploaded flips a pending export to completed. Exactly one row must
	// be affected.
	MarkUploaded(ctx context.Context, tenantID string, id string, rowCount int) error
}
