// Package audit persists the append-only security audit log.
package audit

import (
	"context"

	"github.com/dmitrijs2005/timeledger/internal/server/models"
)

// Repository stores audit entries. Entries are never updated or deleted.
type Repository interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	// ListByAccount returns at most limit entries for accountID, newest first.
	ListByAccount(ctx context.Context, accountID string, limit int) ([]models.AuditEntry, error)
}
