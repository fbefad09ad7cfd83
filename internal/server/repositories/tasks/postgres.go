package tasks

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

const selectColumns = `id, account_id, category_id, title, description, status, time_spent_seconds, external_ref, created_at, updated_at`

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts t under tenantID; t.AccountID is overwritten. The insert
// selects nothing when the category belongs to someone else, which surfaces
// as common.ErrNotFound.
func (r *PostgresRepository) Create(ctx context.Context, tenantID string, t *models.Task) (*models.Task, error) {
	query := `
		INSERT INTO tasks (id, account_id, category_id, title, description, status, external_ref)
		SELECT $1::uuid, $2::uuid, $3::uuid, $4::text, $5::text, $6::text, $7::text
		WHERE $3::uuid IS NULL
			OR EXISTS (SELECT 1 FROM categories WHERE id = $3::uuid AND account_id = $2::uuid)
		RETURNING time_spent_seconds, created_at, updated_at
	`
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = models.TaskStatusOpen
	}
	t.AccountID = tenantID

	err := r.db.QueryRowContext(ctx, query,
		t.ID, t.AccountID, nullString(t.CategoryID), t.Title, t.Description, t.Status, t.ExternalRef).
		Scan(&t.TimeSpentSeconds, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || dbx.IsForeignKeyViolation(err) {
			return nil, fmt.Errorf("category: %w", common.ErrNotFound)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

// Get returns common.ErrNotFound for a task of another tenant.
func (r *PostgresRepository) Get(ctx context.Context, tenantID string, id string) (*models.Task, error) {
	query := `SELECT ` + selectColumns + ` FROM tasks WHERE id = $1 AND account_id = $2`

	t, err := scanTask(r.db.QueryRowContext(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

// List applies the optional status and category filters.
func (r *PostgresRepository) List(ctx context.Context, tenantID string, f models.TaskFilter) ([]models.Task, error) {
	query := `SELECT ` + selectColumns + ` FROM tasks WHERE account_id = $1`
	args := []any{tenantID}

	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.CategoryID != "" {
		args = append(args, f.CategoryID)
		query += fmt.Sprintf(" AND category_id = $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		result = append(result, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return result, nil
}

// Update returns common.ErrNotFound both for a foreign task and for a
// category the tenant does not own.
func (r *PostgresRepository) Update(ctx context.Context, tenantID string, t *models.Task) error {
	query := `
		UPDATE tasks
		SET category_id = $3, title = $4, description = $5, status = $6, external_ref = $7, updated_at = now()
		WHERE id = $1 AND account_id = $2
			AND ($3::uuid IS NULL
				OR EXISTS (SELECT 1 FROM categories WHERE id = $3::uuid AND account_id = $2))
		RETURNING time_spent_seconds, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		t.ID, tenantID, nullString(t.CategoryID), t.Title, t.Description, t.Status, t.ExternalRef).
		Scan(&t.TimeSpentSeconds, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || dbx.IsForeignKeyViolation(err) {
			return common.ErrNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	t.AccountID = tenantID
	return nil
}

// Archive sets the archived status; the task stays until DeleteArchived.
func (r *PostgresRepository) Archive(ctx context.Context, tenantID string, id string) error {
	query := `
		UPDATE tasks
		SET status = 'archived', updated_at = now()
		WHERE id = $1 AND account_id = $2
	`
	res, err := r.db.ExecContext(ctx, query, id, tenantID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// AddTimeSpent applies delta in a single UPDATE. A total that would go
// negative violates the table's CHECK constraint and is returned as an
// error instead of being clamped.
func (r *PostgresRepository) AddTimeSpent(ctx context.Context, tenantID string, id string, delta int64) (int64, error) {
	query := `
		UPDATE tasks
		SET time_spent_seconds = time_spent_seconds + $3, updated_at = now()
		WHERE id = $1 AND account_id = $2
		RETURNING time_spent_seconds
	`
	var total int64
	if err := r.db.QueryRowContext(ctx, query, id, tenantID, delta).Scan(&total); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrNotFound
		}
		if dbx.IsCheckViolation(err) {
			return 0, fmt.Errorf("time spent of task %s would become negative: %w", id, err)
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return total, nil
}

// DeleteArchived reports the number of removed tasks.
func (r *PostgresRepository) DeleteArchived(ctx context.Context, tenantID string) (int64, error) {
	query := `
		DELETE FROM tasks
		WHERE account_id = $1 AND status = 'archived'
	`
	res, err := r.db.ExecContext(ctx, query, tenantID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*models.Task, error) {
	var (
		t        models.Task
		category sql.NullString
	)
	err := s.Scan(&t.ID, &t.AccountID, &category, &t.Title, &t.Description, &t.Status,
		&t.TimeSpentSeconds, &t.ExternalRef, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if category.Valid {
		id := category.String
		t.CategoryID = &id
	}
	return &t, nil
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
