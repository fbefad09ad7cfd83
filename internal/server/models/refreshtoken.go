package models

import "time"

// RefreshToken is the server-side record of an issued refresh token. ID is
// the token's jti; the signed token itself is never stored.
type RefreshToken struct {
	ID        string
	AccountID string
	ExpiresAt time.Time
	CreatedAt time.Time
}
