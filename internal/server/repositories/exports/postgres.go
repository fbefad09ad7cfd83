package exports

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/timeledger/internal/common"
	"github.com/dmitrijs2005/timeledger/internal/dbx"
	"github.com/dmitrijs2005/timeledger/internal/server/models"
	"github.com/google/uuid"
)

// PostgresRepository implements export bookkeeping over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a pending export under tenantID; e.AccountID is overwritten.
func (r *PostgresRepository) Create(ctx context.Context, tenantID string, e *models.Export) (*models.Export, error) {
	query := `
		INSERT INTO exports (id, account_id, storage_key, status, period_from, period_to)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.AccountID = tenantID
	e.Status = models.ExportStatusPending

	err := r.db.QueryRowContext(ctx, query, e.ID, e.AccountID, e.StorageKey, e.Status, e.PeriodFrom, e.PeriodTo).
		Scan(&e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return e, nil
}

// Get returns common.ErrNotFound for an export of another tenant.
func (r *PostgresRepository) Get(ctx context.Context, tenantID string, id string) (*models.Export, error) {
	query := `
		SELECT id, account_id, storage_key, status, row_count, period_from, period_to, created_at
		FROM exports
		WHERE id = $1 AND account_id = $2
	`
	var e models.Export
	err := r.db.QueryRowContext(ctx, query, id, tenantID).
		Scan(&e.ID, &e.AccountID, &e.StorageKey, &e.Status, &e.RowCount, &e.PeriodFrom, &e.PeriodTo, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &e, nil
}

// ListByAccount returns the newest exports first.
func (r *PostgresRepository) ListByAccount(ctx context.Context, tenantID string, limit int) ([]models.Export, error) {
	query := `
		SELECT id, account_id, storage_key, status, row_count, period_from, period_to, created_at
		FROM exports
		WHERE account_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []models.Export{}
	for rows.Next() {
		var e models.Export
		if err := rows.Scan(&e.ID, &e.AccountID, &e.StorageKey, &e.Status, &e.RowCount, &e.PeriodFrom, &e.PeriodTo, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) MarkUploaded(ctx context.Context, tenantID string, id string, rowCount int) error {
	query := `
		UPDATE exports SET status = 'completed', row_count = $3
		WHERE id = $1 AND account_id = $2 AND status = 'pending'
	`
	res, err := r.db.ExecContext(ctx, query, id, tenantID, rowCount)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
