package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/timeledger/internal/dbx"
	"github.com/dmitrijs2005/timeledger/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Append inserts entry and fills in its ID.
func (r *PostgresRepository) Append(ctx context.Context, e *models.AuditEntry) error {
	query := `
		INSERT INTO audit_log (account_id, action, resource_type, resource_id, detail, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	var accountID sql.NullString
	if e.AccountID != nil {
		accountID = sql.NullString{String: *e.AccountID, Valid: true}
	}

	err := r.db.QueryRowContext(ctx, query,
		accountID, e.Action, e.ResourceType, e.ResourceID, e.Detail, e.IPAddress, e.UserAgent, e.CreatedAt).
		Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListByAccount returns the newest entries first.
func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]models.AuditEntry, error) {
	query := `
		SELECT id, account_id, action, resource_type, resource_id, detail, ip_address, user_agent, created_at
		FROM audit_log
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.AuditEntry
	for rows.Next() {
		var (
			e   models.AuditEntry
			acc sql.NullString
		)
		if err := rows.Scan(&e.ID, &acc, &e.Action, &e.ResourceType, &e.ResourceID,
			&e.Detail, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		if acc.Valid {
			id := acc.String
			e.AccountID = &id
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return result, nil
}
