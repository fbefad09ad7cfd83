package categories

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

const nameConstraint = "categories_account_name_key"

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts c under tenantID; c.AccountID is overwritten.
func (r *PostgresRepository) Create(ctx context.Context, tenantID string, c *models.Category) (*models.Category, error) {
	query := `
		INSERT INTO categories (id, account_id, name, color)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.AccountID = tenantID

	err := r.db.QueryRowContext(ctx, query, c.ID, c.AccountID, c.Name, c.Color).Scan(&c.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, nameConstraint) {
			return nil, fmt.Errorf("category %q: %w", c.Name, common.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

// Get returns common.ErrNotFound for a category of another tenant.
func (r *PostgresRepository) Get(ctx context.Context, tenantID string, id string) (*models.Category, error) {
	query := `
		SELECT id, account_id, name, color, created_at
		FROM categories
		WHERE id = $1 AND account_id = $2
	`
	c := &models.Category{}
	err := r.db.QueryRowContext(ctx, query, id, tenantID).Scan(&c.ID, &c.AccountID, &c.Name, &c.Color, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

// List returns the tenant's categories ordered by name.
func (r *PostgresRepository) List(ctx context.Context, tenantID string) ([]models.Category, error) {
	query := `
		SELECT id, account_id, name, color, created_at
		FROM categories
		WHERE account_id = $1
		ORDER BY name
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.AccountID, &c.Name, &c.Color, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return result, nil
}

// Rename maps a name clash within the tenant to common.ErrAlreadyExists.
func (r *PostgresRepository) Rename(ctx context.Context, tenantID string, id string, name string) error {
	query := `
		UPDATE categories
		SET name = $3, updated_at = now()
		WHERE id = $1 AND account_id = $2
	`
	res, err := r.db.ExecContext(ctx, query, id, tenantID, name)
	if err != nil {
		if dbx.IsUniqueViolation(err, nameConstraint) {
			return fmt.Errorf("category %q: %w", name, common.ErrAlreadyExists)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return oneRow(res)
}

// Delete removes one category. The schema detaches tasks that used it.
func (r *PostgresRepository) Delete(ctx context.Context, tenantID string, id string) error {
	query := `
		DELETE FROM categories
		WHERE id = $1 AND account_id = $2
	`
	res, err := r.db.ExecContext(ctx, query, id, tenantID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return oneRow(res)
}

// CreateDefaults inserts each default unless the tenant already has the name.
func (r *PostgresRepository) CreateDefaults(ctx context.Context, tenantID string, defaults []models.DefaultCategory) error {
	query := `
		INSERT INTO categories (id, account_id, name, color)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, name) DO NOTHING
	`
	for _, d := range defaults {
		if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), tenantID, d.Name, d.Color); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}

func oneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
