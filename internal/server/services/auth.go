// Package services contains server-side business logic. This file implements
// AuthService: registration, login with lockout, token rotation, logout and
// the account self-service operations.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/dmitrijs2005/timeledger/internal/common"
	"github.com/dmitrijs2005/timeledger/internal/dbx"
	"github.com/dmitrijs2005/timeledger/internal/logging"
	"github.com/dmitrijs2005/timeledger/internal/server/auth"
	"github.com/dmitrijs2005/timeledger/internal/server/guard"
	"github.com/dmitrijs2005/timeledger/internal/server/models"
	"github.com/dmitrijs2005/timeledger/internal/server/policy"
	"github.com/dmitrijs2005/timeledger/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/timeledger/internal/timex"
	"github.com/google/uuid"
)

// dummyPassword is hashed once at construction and compared against when the
// login names no account, so unknown and known logins cost the same.
const dummyPassword = "timeledger-dummy-password"

var usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{2,31}$`)

// Provisioner creates the per-tenant defaults after registration.
type Provisioner interface {
	ProvisionDefaults(ctx context.Context, tenantID string) error
}

type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	tokens      *auth.TokenService
	hasher      auth.PasswordHasher
	guard       *guard.Guard
	auditor     *Auditor
	provisioner Provisioner
	logger      logging.Logger
	now         timex.Clock
	dummyHash   string
}

func NewAuthService(
	db *sql.DB,
	m repomanager.RepositoryManager,
	tokens *auth.TokenService,
	hasher auth.PasswordHasher,
	g *guard.Guard,
	auditor *Auditor,
	provisioner Provisioner,
	l logging.Logger,
) (*AuthService, error) {
	dummy, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("error preparing dummy hash: %w", err)
	}
	return &AuthService{
		db:          db,
		repomanager: m,
		tokens:      tokens,
		hasher:      hasher,
		guard:       g,
		auditor:     auditor,
		provisioner: provisioner,
		logger:      l.With("module", "auth_service"),
		now:         timex.UTCNow,
		dummyHash:   dummy,
	}, nil
}

// WithClock replaces the time source used for lockout decisions.
func (s *AuthService) WithClock(now timex.Clock) *AuthService {
	s.now = now
	return s
}

// Register creates an account. Email and username are normalised to lower
// case; both must be unused. Default categories and currency settings are
// provisioned afterwards on a best-effort basis.
func (s *AuthService) Register(ctx context.Context, email, username, password string, client models.ClientInfo) (*models.Account, error) {
	email, username, err := normaliseIdentity(email, username)
	if err != nil {
		return nil, err
	}

	repo := s.repomanager.Accounts(s.db)

	if err := ensureUnused(ctx, repo.GetByEmail, email); err != nil {
		return nil, err
	}
	if err := ensureUnused(ctx, repo.GetByUsername, username); err != nil {
		return nil, err
	}

	if v := policy.Check(password); v != nil {
		return nil, v
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, common.ErrInternal
	}

	account, err := repo.Create(ctx, &models.Account{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Active:       true,
	})
	if err != nil {
		if errors.Is(err, common.ErrDuplicateIdentity) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating account: %w", err)
	}

	s.auditor.Record(ctx, account.ID, models.AuditRegistered, client, "")

	if s.provisioner != nil {
		if err := s.provisioner.ProvisionDefaults(ctx, account.ID); err != nil {
			s.logger.Warn(ctx, "default provisioning failed", "account_id", account.ID, "error", err)
		}
	}

	s.logger.Info(ctx, "account registered", "account_id", account.ID)
	return account, nil
}

// Login authenticates by email or username. Unknown logins, wrong
// passwords and inactive accounts all yield common.ErrInvalidCredentials;
// a locked account yields common.ErrAccountLocked without the password
// being checked.
func (s *AuthService) Login(ctx context.Context, login, password string, client models.ClientInfo) (*auth.TokenPair, error) {
	account, err := s.lookup(ctx, login)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			_ = s.hasher.Compare(s.dummyHash, password)
			s.auditor.Record(ctx, "", models.AuditLoginFailed, client, "unknown login")
			return nil, common.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("error looking up account: %w", err)
	}

	if locked, until := s.guard.IsLocked(account.LockState(), s.now()); locked {
		s.auditor.Record(ctx, account.ID, models.AuditLoginBlocked, client, lockedDetail(until))
		return nil, common.ErrAccountLocked
	}

	if err := s.hasher.Compare(account.PasswordHash, password); err != nil {
		if !errors.Is(err, common.ErrInvalidCredentials) {
			return nil, fmt.Errorf("error verifying password: %w", err)
		}
		return nil, s.recordFailure(ctx, account.ID, models.AuditLoginFailed, client)
	}

	if !account.Active {
		s.auditor.Record(ctx, account.ID, models.AuditLoginFailed, client, "account inactive")
		return nil, common.ErrInvalidCredentials
	}

	var pair *auth.TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Accounts(tx)

		current, err := repo.GetByIDForUpdate(ctx, account.ID)
		if err != nil {
			return err
		}
		now := s.now()
		if locked, until := s.guard.IsLocked(current.LockState(), now); locked {
			return &lockedError{until: until}
		}
		if err := repo.SaveLockState(ctx, account.ID, s.guard.OnSuccess(current.LockState())); err != nil {
			return err
		}
		if err := repo.RecordLogin(ctx, account.ID, now); err != nil {
			return err
		}

		pair, err = s.issueTokens(ctx, tx, account.ID)
		return err
	})
	if err != nil {
		var le *lockedError
		if errors.As(err, &le) {
			s.auditor.Record(ctx, account.ID, models.AuditLoginBlocked, client, lockedDetail(le.until))
			return nil, common.ErrAccountLocked
		}
		if errors.Is(err, common.ErrInternal) {
			return nil, err
		}
		return nil, fmt.Errorf("error completing login: %w", err)
	}

	s.auditor.Record(ctx, account.ID, models.AuditLoginSucceeded, client, "")
	return pair, nil
}

// recordFailure applies one failed password check to the account under a
// row lock, audits it as action and returns the error the caller must see.
// An account that got locked concurrently yields common.ErrAccountLocked.
func (s *AuthService) recordFailure(ctx context.Context, accountID, action string, client models.ClientInfo) error {
	var (
		lockedNow bool
		until     time.Time
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Accounts(tx)

		current, err := repo.GetByIDForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		now := s.now()
		if locked, u := s.guard.IsLocked(current.LockState(), now); locked {
			return &lockedError{until: u}
		}

		next, l := s.guard.OnFailure(current.LockState(), now)
		lockedNow = l
		if next.LockedUntil != nil {
			until = *next.LockedUntil
		}
		return repo.SaveLockState(ctx, accountID, next)
	})
	if err != nil {
		var le *lockedError
		if errors.As(err, &le) {
			s.auditor.Record(ctx, accountID, models.AuditLoginBlocked, client, lockedDetail(le.until))
			return common.ErrAccountLocked
		}
		return fmt.Errorf("error recording failed password check: %w", err)
	}

	s.auditor.Record(ctx, accountID, action, client, "wrong password")
	if lockedNow {
		s.auditor.Record(ctx, accountID, models.AuditAccountLocked, client, lockedDetail(until))
		s.logger.Warn(ctx, "account locked", "account_id", accountID, "until", until)
	}
	return common.ErrInvalidCredentials
}

// RefreshToken rotates a refresh token: the presented token is consumed and
// a new pair is issued. A token that was already used or revoked is
// rejected with common.ErrTokenInvalid.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string, client models.ClientInfo) (*auth.TokenPair, error) {
	claims, err := s.tokens.Verify(refreshToken, auth.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	accountID := claims.AccountID()

	var pair *auth.TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.RefreshTokens(tx).Consume(ctx, claims.ID, accountID); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return common.ErrTokenInvalid
			}
			return fmt.Errorf("error consuming refresh token: %w", err)
		}

		account, err := s.repomanager.Accounts(tx).GetByID(ctx, accountID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return common.ErrTokenInvalid
			}
			return err
		}
		if !account.Active {
			return common.ErrTokenInvalid
		}

		pair, err = s.issueTokens(ctx, tx, accountID)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrTokenInvalid) {
			s.auditor.Record(ctx, accountID, models.AuditRefreshRejected, client, "refresh token not active")
		}
		return nil, err
	}

	s.auditor.Record(ctx, accountID, models.AuditTokenRefreshed, client, "")
	return pair, nil
}

// Logout revokes the given refresh token. Revoking an already revoked
// token succeeds. Access tokens stay valid until they expire.
func (s *AuthService) Logout(ctx context.Context, refreshToken string, client models.ClientInfo) error {
	claims, err := s.tokens.Verify(refreshToken, auth.TokenTypeRefresh)
	if err != nil {
		return err
	}

	err = s.repomanager.RefreshTokens(s.db).Consume(ctx, claims.ID, claims.AccountID())
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("error revoking refresh token: %w", err)
	}

	s.auditor.Record(ctx, claims.AccountID(), models.AuditLogout, client, "")
	return nil
}

// RequireAuthenticated verifies an access token and returns the tenant id.
func (s *AuthService) RequireAuthenticated(ctx context.Context, accessToken string) (string, error) {
	claims, err := s.tokens.Verify(accessToken, auth.TokenTypeAccess)
	if err != nil {
		return "", err
	}
	return claims.AccountID(), nil
}

// GetCurrentAccount resolves an access token to its account.
func (s *AuthService) GetCurrentAccount(ctx context.Context, accessToken string) (*models.Account, error) {
	accountID, err := s.RequireAuthenticated(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return s.GetAccount(ctx, accountID)
}

// GetAccount loads an authenticated tenant's account. A vanished or
// deactivated account is reported as common.ErrUnauthorized.
func (s *AuthService) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	account, err := s.repomanager.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, fmt.Errorf("error loading account: %w", err)
	}
	if !account.Active {
		return nil, common.ErrUnauthorized
	}
	return account, nil
}

// ChangePassword replaces the password after checking the current one and
// revokes every outstanding refresh token of the account. A wrong current
// password counts towards the lockout exactly like a failed login.
func (s *AuthService) ChangePassword(ctx context.Context, accountID, current, next string, client models.ClientInfo) error {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if locked, until := s.guard.IsLocked(account.LockState(), s.now()); locked {
		s.auditor.Record(ctx, accountID, models.AuditLoginBlocked, client, lockedDetail(until))
		return common.ErrAccountLocked
	}
	if err := s.hasher.Compare(account.PasswordHash, current); err != nil {
		if !errors.Is(err, common.ErrInvalidCredentials) {
			return fmt.Errorf("error verifying password: %w", err)
		}
		return s.recordFailure(ctx, accountID, models.AuditPasswordChangeFailed, client)
	}
	if v := policy.Check(next); v != nil {
		return v
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return common.ErrInternal
	}

	var revoked int64
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Accounts(tx)

		row, err := repo.GetByIDForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if locked, until := s.guard.IsLocked(row.LockState(), s.now()); locked {
			return &lockedError{until: until}
		}
		if err := repo.SaveLockState(ctx, accountID, s.guard.OnSuccess(row.LockState())); err != nil {
			return err
		}
		if err := repo.UpdatePassword(ctx, accountID, hash); err != nil {
			return err
		}
		revoked, err = s.repomanager.RefreshTokens(tx).DeleteByAccount(ctx, accountID)
		return err
	})
	if err != nil {
		var le *lockedError
		if errors.As(err, &le) {
			s.auditor.Record(ctx, accountID, models.AuditLoginBlocked, client, lockedDetail(le.until))
			return common.ErrAccountLocked
		}
		return fmt.Errorf("error changing password: %w", err)
	}

	s.auditor.Record(ctx, accountID, models.AuditPasswordChanged, client, fmt.Sprintf("revoked %d refresh tokens", revoked))
	return nil
}

// CompleteOnboarding marks the account as onboarded.
func (s *AuthService) CompleteOnboarding(ctx context.Context, accountID string, client models.ClientInfo) (*models.Account, error) {
	if err := s.repomanager.Accounts(s.db).SetOnboarded(ctx, accountID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, fmt.Errorf("error completing onboarding: %w", err)
	}
	s.auditor.Record(ctx, accountID, models.AuditOnboardingCompleted, client, "")
	return s.GetAccount(ctx, accountID)
}

// ListAudit returns the caller's own audit trail, newest first.
func (s *AuthService) ListAudit(ctx context.Context, accountID string, limit int) ([]models.AuditEntry, error) {
	return s.auditor.List(ctx, accountID, limit)
}

// --- helpers below ---

func (s *AuthService) lookup(ctx context.Context, login string) (*models.Account, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	if login == "" {
		return nil, common.ErrNotFound
	}
	repo := s.repomanager.Accounts(s.db)
	if strings.Contains(login, "@") {
		return repo.GetByEmail(ctx, login)
	}
	return repo.GetByUsername(ctx, login)
}

func (s *AuthService) issueTokens(ctx context.Context, tx dbx.DBTX, accountID string) (*auth.TokenPair, error) {
	pair, err := s.tokens.IssuePair(accountID)
	if err != nil {
		return nil, common.ErrInternal
	}
	err = s.repomanager.RefreshTokens(tx).Create(ctx, &models.RefreshToken{
		ID:        pair.RefreshID,
		AccountID: accountID,
		ExpiresAt: pair.RefreshExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("error storing refresh token: %w", err)
	}
	return pair, nil
}

func ensureUnused(ctx context.Context, get func(context.Context, string) (*models.Account, error), key string) error {
	_, err := get(ctx, key)
	switch {
	case err == nil:
		return common.ErrDuplicateIdentity
	case errors.Is(err, common.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("error checking identity: %w", err)
	}
}

func normaliseIdentity(email, username string) (string, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.ToLower(strings.TrimSpace(username))

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", "", fmt.Errorf("email %q is not valid: %w", email, common.ErrInvalidInput)
	}
	if !usernamePattern.MatchString(username) {
		return "", "", fmt.Errorf("username must be 3-32 characters of a-z, 0-9, '.', '_' or '-': %w", common.ErrInvalidInput)
	}
	return email, username, nil
}

func lockedDetail(until time.Time) string {
	return "locked until " + until.UTC().Format(time.RFC3339)
}

type lockedError struct {
	until time.Time
}

func (e *lockedError) Error() string { return "account locked" }
