// Package timeentries stores per-tenant logged time spans.
package timeentries

import (
	"context"
	"time"

	"github.com/dmitrijs2005/timeledger/internal/server/models"
)

// Repository methods take the owning tenant explicitly; entries of other
// tenants are never visible and report common.ErrNotFound.
type Repository interface {
	// Create inserts entry under tenantID. The task must belong to the
	// same tenant, otherwise common.ErrNotFound is returned and nothing is
	// written.
	Create(ctx context.Context, tenantID string, entry *models.TimeEntry) (*models.TimeEntry, error)

	// ListByTask returns the entries of one task in start order.
	ListByTask(ctx context.Context, tenantID string, taskID string) ([]models.TimeEntry, error)

	// Delete removes the entry and returns it so callers can adjust the
	// task aggregate.
	Delete(ctx context.Context, tenantID string, id string) (*models.TimeEntry, error)

	// ListTimesheet returns entries started in [from, to) with their task
	// title and category name.
	ListTimesheet(ctx context.Context, tenantID string, from, to time.Time) ([]models.TimesheetRow, error)
}
