// Package common defines shared constants and sentinel errors used across
// the server layers of timeledger. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Repository-level errors. A row owned by another tenant is reported
	// as ErrNotFound as well.
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrDuplicateIdentity = errors.New("email or username already in use")

	// Service-level errors (generic/internal flow control).
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid input")

	// ErrExportDisabled is returned when no export bucket is configured.
	ErrExportDisabled = errors.New("export is not configured")

	// Credential errors.
	ErrWeakPassword       = errors.New("weak password")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")

	// Token errors.
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenInvalid   = errors.New("invalid token")
	ErrWrongTokenType = errors.New("wrong token type")
)

// IsUnauthenticated reports whether err belongs to the credential/token
// family that callers must present as a generic "unauthorized" outcome.
// ErrAccountLocked is not part of it.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenInvalid) ||
		errors.Is(err, ErrWrongTokenType)
}
