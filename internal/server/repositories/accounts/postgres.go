package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/timeledger/internal/common"
	"github.com/dmitrijs2005/timeledger/internal/dbx"
	"github.com/dmitrijs2005/timeledger/internal/server/models"
)

const selectColumns = `id, email, username, password_hash, active, verified, admin, onboarded,
		       failed_login_attempts, locked_until, last_login_at, created_at, updated_at`

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create maps a taken email or username to common.ErrDuplicateIdentity.
func (r *PostgresRepository) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	query := `
		INSERT INTO accounts (id, email, username, password_hash, active, verified, admin)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		a.ID, a.Email, a.Username, a.PasswordHash, a.Active, a.Verified, a.Admin).
		Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, "") {
			return nil, common.ErrDuplicateIdentity
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

// GetByID returns common.ErrNotFound when no account has id.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + selectColumns + ` FROM accounts WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByEmail expects an already normalised address.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + selectColumns + ` FROM accounts WHERE email = $1`
	return r.getOne(ctx, query, email)
}

// GetByUsername expects an already normalised username.
func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	query := `SELECT ` + selectColumns + ` FROM accounts WHERE username = $1`
	return r.getOne(ctx, query, username)
}

// GetByIDForUpdate takes a row lock with SELECT ... FOR UPDATE; it is only
// meaningful inside a transaction.
func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + selectColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*models.Account, error) {
	var (
		a           models.Account
		lockedUntil sql.NullTime
		lastLogin   sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&a.ID, &a.Email, &a.Username, &a.PasswordHash, &a.Active, &a.Verified, &a.Admin, &a.Onboarded,
		&a.FailedLoginAttempts, &lockedUntil, &lastLogin, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		a.LockedUntil = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		a.LastLoginAt = &t
	}
	return &a, nil
}

// SaveLockState persists the failed attempt counter and lock expiry.
func (r *PostgresRepository) SaveLockState(ctx context.Context, id string, state models.LockState) error {
	query := `
		UPDATE accounts
		SET failed_login_attempts = $2, locked_until = $3, updated_at = now()
		WHERE id = $1
	`
	var lockedUntil sql.NullTime
	if state.LockedUntil != nil {
		lockedUntil = sql.NullTime{Time: *state.LockedUntil, Valid: true}
	}
	return r.execOne(ctx, query, id, state.FailedLoginAttempts, lockedUntil)
}

// RecordLogin stamps last_login_at.
func (r *PostgresRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE accounts
		SET last_login_at = $2, updated_at = $2
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, at)
}

// UpdatePassword stores a new password hash.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, id string, hash string) error {
	query := `
		UPDATE accounts
		SET password_hash = $2, updated_at = now()
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, hash)
}

// SetOnboarded is idempotent.
func (r *PostgresRepository) SetOnboarded(ctx context.Context, id string) error {
	query := `
		UPDATE accounts
		SET onboarded = TRUE, updated_at = now()
		WHERE id = $1
	`
	return r.execOne(ctx, query, id)
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
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
