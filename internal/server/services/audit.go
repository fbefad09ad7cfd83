package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/timeledger/internal/logging"
	"github.com/dmitrijs2005/timeledger/internal/server/models"
	"github.com/dmitrijs2005/timeledger/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/timeledger/internal/timex"
)

const (
	DefaultAuditLimit = 50
	MaxAuditLimit     = 500
)

// Auditor appends audit entries outside of the caller's transaction.
// A failed write is logged and otherwise ignored.
type Auditor struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	now         timex.Clock
}

func NewAuditor(db *sql.DB, m repomanager.RepositoryManager, l logging.Logger) *Auditor {
	return &Auditor{
		db:          db,
		repomanager: m,
		logger:      l.With("module", "audit"),
		now:         timex.UTCNow,
	}
}

// Record writes an account-level entry. accountID may be empty when the
// actor is unknown.
func (a *Auditor) Record(ctx context.Context, accountID string, action string, client models.ClientInfo, detail string) {
	e := &models.AuditEntry{
		Action:       action,
		ResourceType: models.ResourceAccount,
		Detail:       detail,
		IPAddress:    client.IPAddress,
		UserAgent:    client.UserAgent,
		CreatedAt:    a.now(),
	}
	if accountID != "" {
		id := accountID
		e.AccountID = &id
		e.ResourceID = accountID
	}

	// the request may already be cancelled, the trail must still be written
	ctx = context.WithoutCancel(ctx)

	if err := a.repomanager.Audit(a.db).Append(ctx, e); err != nil {
		a.logger.Error(ctx, "audit write failed", "action", action, "account_id", accountID, "error", err)
	}
}

// List returns the newest entries of accountID. limit is clamped to
// [1, MaxAuditLimit]; zero selects DefaultAuditLimit.
func (a *Auditor) List(ctx context.Context, accountID string, limit int) ([]models.AuditEntry, error) {
	switch {
	case limit <= 0:
		limit = DefaultAuditLimit
	case limit > MaxAuditLimit:
		limit = MaxAuditLimit
	}

	entries, err := a.repomanager.Audit(a.db).ListByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing audit entries: %w", err)
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	return entries, nil
}
