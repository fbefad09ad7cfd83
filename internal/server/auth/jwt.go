package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/timeledger/internal/common"
	"github.com/dmitrijs2005/timeledger/internal/timex"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the shortest HMAC key accepted for signing.
const MinSecretLength = 32

var ErrSecretTooShort = fmt.Errorf("signing secret must be at least %d bytes", MinSecretLength)

// TokenType distinguishes access tokens from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims carries the registered claims plus the token type.
// Subject is the account id, ID is the jti.
type Claims struct {
	jwt.RegisteredClaims
	Type TokenType `json:"typ"`
}

// AccountID returns the subject claim.
func (c *Claims) AccountID() string {
	return c.Subject
}

// IssuedToken is a signed token together with its jti and expiry.
type IssuedToken struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// TokenPair is what a successful login or refresh hands back.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshID        string
	RefreshExpiresAt time.Time
}

// TokenService issues and verifies HS256 tokens.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        timex.Clock
}

func NewTokenService(secret string, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token validity durations must be positive")
	}
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        timex.UTCNow,
	}, nil
}

// WithClock replaces the time source used for iat, exp and validation.
func (s *TokenService) WithClock(now timex.Clock) *TokenService {
	s.now = now
	return s
}

func (s *TokenService) AccessTTL() time.Duration  { return s.accessTTL }
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

func (s *TokenService) IssueAccess(accountID string) (*IssuedToken, error) {
	return s.issue(accountID, TokenTypeAccess, s.accessTTL)
}

func (s *TokenService) IssueRefresh(accountID string) (*IssuedToken, error) {
	return s.issue(accountID, TokenTypeRefresh, s.refreshTTL)
}

// IssuePair signs a fresh access token and refresh token for accountID.
func (s *TokenService) IssuePair(accountID string) (*TokenPair, error) {
	access, err := s.IssueAccess(accountID)
	if err != nil {
		return nil, err
	}
	refresh, err := s.IssueRefresh(accountID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh.Token,
		RefreshID:        refresh.ID,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

func (s *TokenService) issue(accountID string, typ TokenType, ttl time.Duration) (*IssuedToken, error) {
	if accountID == "" {
		return nil, errors.New("token subject is empty")
	}

	now := s.now().Truncate(time.Second)
	exp := now.Add(ttl)
	jti := uuid.NewString()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
		Type: typ,
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &IssuedToken{Token: signed, ID: jti, ExpiresAt: exp}, nil
}

// Parse checks signature, algorithm and expiry and returns the claims.
// The token type is not checked; see Verify.
func (s *TokenService) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrTokenInvalid
	}

	if !token.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, common.ErrTokenInvalid
	}

	switch claims.Type {
	case TokenTypeAccess, TokenTypeRefresh:
	default:
		return nil, common.ErrTokenInvalid
	}

	return claims, nil
}

// Verify parses the token and requires it to be of the expected type.
func (s *TokenService) Verify(tokenString string, want TokenType) (*Claims, error) {
	claims, err := s.Parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != want {
		return nil, common.ErrWrongTokenType
	}
	return claims, nil
}
