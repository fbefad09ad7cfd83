package configs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/timeledger/internal/common"
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

// Get decodes and validates the stored document of kind.
func (r *PostgresRepository) Get(ctx context.Context, tenantID string, kind models.ConfigKind) (*models.StoredConfig, error) {
	query := `
		SELECT value, updated_at
		FROM configs
		WHERE account_id = $1 AND kind = $2
	`
	var raw []byte
	sc := &models.StoredConfig{AccountID: tenantID}
	if err := r.db.QueryRowContext(ctx, query, tenantID, string(kind)).Scan(&raw, &sc.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	v, err := models.DecodeConfigValue(kind, raw)
	if err != nil {
		return nil, fmt.Errorf("stored %s config is invalid: %w", kind, err)
	}
	sc.Value = v
	return sc, nil
}

func (r *PostgresRepository) Put(ctx context.Context, tenantID string, value models.ConfigValue) (*models.StoredConfig, error) {
	raw, err := encode(value)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO configs (account_id, kind, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (account_id, kind)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
		RETURNING updated_at
	`
	sc := &models.StoredConfig{AccountID: tenantID, Value: value}
	if err := r.db.QueryRowContext(ctx, query, tenantID, string(value.Kind()), string(raw)).Scan(&sc.UpdatedAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return sc, nil
}

func (r *PostgresRepository) PutIfAbsent(ctx context.Context, tenantID string, value models.ConfigValue) error {
	raw, err := encode(value)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO configs (account_id, kind, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id, kind) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, tenantID, string(value.Kind()), string(raw)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func encode(value models.ConfigValue) ([]byte, error) {
	if value == nil {
		return nil, fmt.Errorf("config value is nil: %w", common.ErrInvalidInput)
	}
	if err := value.Validate(); err != nil {
		return nil, fmt.Errorf("%s config: %v: %w", value.Kind(), err, common.ErrInvalidInput)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode %s config: %w", value.Kind(), err)
	}
	return raw, nil
}
