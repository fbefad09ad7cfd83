package timeentries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/timeledger/internal/common"
	"github.com/dmitrijs2005/timeledger/internal/dbx"
	"github.com/dmitrijs2005/timeledger/internal/server/models"
	"github.com/google/uuid"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts e under tenantID; e.AccountID is overwritten. Nothing is
// inserted when the task is not the tenant's, which surfaces as
// common.ErrNotFound.
func (r *PostgresRepository) Create(ctx context.Context, tenantID string, e *models.TimeEntry) (*models.TimeEntry, error) {
	query := `
		INSERT INTO time_entries (id, account_id, task_id, duration_seconds, note, started_at)
		SELECT $1::uuid, $2::uuid, $3::uuid, $4::bigint, $5::text, $6::timestamptz
		WHERE EXISTS (SELECT 1 FROM tasks WHERE id = $3::uuid AND account_id = $2::uuid)
		RETURNING created_at
	`
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.AccountID = tenantID

	err := r.db.QueryRowContext(ctx, query, e.ID, e.AccountID, e.TaskID, e.DurationSeconds, e.Note, e.StartedAt).
		Scan(&e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || dbx.IsForeignKeyViolation(err) {
			return nil, fmt.Errorf("task: %w", common.ErrNotFound)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return e, nil
}

// ListByTask returns an empty slice when the task is not the tenant's.
func (r *PostgresRepository) ListByTask(ctx context.Context, tenantID string, taskID string) ([]models.TimeEntry, error) {
	query := `
		SELECT id, account_id, task_id, duration_seconds, note, started_at, created_at
		FROM time_entries
		WHERE account_id = $1 AND task_id = $2
		ORDER BY started_at, id
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, taskID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []models.TimeEntry{}
	for rows.Next() {
		var e models.TimeEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.TaskID, &e.DurationSeconds, &e.Note, &e.StartedAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return result, nil
}

// Delete removes the entry and returns the deleted row.
func (r *PostgresRepository) Delete(ctx context.Context, tenantID string, id string) (*models.TimeEntry, error) {
	query := `
		DELETE FROM time_entries
		WHERE id = $1 AND account_id = $2
		RETURNING id, account_id, task_id, duration_seconds, note, started_at, created_at
	`
	var e models.TimeEntry
	err := r.db.QueryRowContext(ctx, query, id, tenantID).
		Scan(&e.ID, &e.AccountID, &e.TaskID, &e.DurationSeconds, &e.Note, &e.StartedAt, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &e, nil
}

// ListTimesheet joins entries with their task and category, all within
// the same tenant.
func (r *PostgresRepository) ListTimesheet(ctx context.Context, tenantID string, from, to time.Time) ([]models.TimesheetRow, error) {
	query := `
		SELECT e.id, e.started_at, e.duration_seconds, e.note,
			t.id, t.title, t.external_ref, COALESCE(c.name, '')
		FROM time_entries e
		JOIN tasks t ON t.id = e.task_id AND t.account_id = e.account_id
		LEFT JOIN categories c ON c.id = t.category_id AND c.account_id = t.account_id
		WHERE e.account_id = $1 AND e.started_at >= $2 AND e.started_at < $3
		ORDER BY e.started_at, e.id
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []models.TimesheetRow{}
	for rows.Next() {
		var row models.TimesheetRow
		if err := rows.Scan(&row.EntryID, &row.StartedAt, &row.DurationSeconds, &row.Note,
			&row.TaskID, &row.TaskTitle, &row.ExternalRef, &row.CategoryName); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return result, nil
}
