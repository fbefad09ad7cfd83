// Package tasks stores per-tenant tasks and their time aggregate.
// Every query is scoped by the owning tenant, including the category a task
// points at.
package tasks

import (
	"context"

	"github.com/dmitrijs2005/timeledger/internal/server/models"
)

// Repository methods take the owning tenant explicitly; rows of other
// tenants are never visible and report common.ErrNotFound.
type Repository interface {
	// Create inserts task under tenantID and fills in its id, defaults and
	// timestamps. A category that the tenant does not own yields
	// common.ErrNotFound and nothing is written.
	Create(ctx context.Context, tenantID string, task *models.Task) (*models.Task, error)

	// Get returns the task id of tenantID, or common.ErrNotFound.
	Get(ctx context.Context, tenantID string, id string) (*models.Task, error)

	// List returns the tenant's tasks matching filter, newest first.
	List(ctx context.Context, tenantID string, filter models.TaskFilter) ([]models.Task, error)

	// Update writes the editable fields of task: category, title,
	// description, status and external reference. It returns
	// common.ErrNotFound when the task or its new category is not the
	// tenant's.
	Update(ctx context.Context, tenantID string, task *models.Task) error

	// Archive moves the task to the archived status.
	Archive(ctx context.Context, tenantID string, id string) error

	// AddTimeSpent atomically adds delta seconds to the task aggregate and
	// returns the new total. A delta that would take the total below zero
	// is rejected by the database rather than clamped.
	AddTimeSpent(ctx context.Context, tenantID string, id string, delta int64) (int64, error)

	// DeleteArchived removes every archived task of the tenant together
	// with its time entries and reports how many tasks went.
	DeleteArchived(ctx context.Context, tenantID string) (int64, error)
}
