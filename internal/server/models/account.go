// Package models defines server-side data models persisted in the database.
package models

import "time"

// Account is a tenant identity. Every tenant-owned row references Account.ID.
type Account struct {
	ID                  string
	Email               string
	Username            string
	PasswordHash        string
	Active              bool
	Verified            bool
	Admin               bool
	Onboarded           bool
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// LockState is the persisted part of the lockout state machine.
type LockState struct {
	FailedLoginAttempts int
	LockedUntil         *time.Time
}

// LockState returns the account's current lockout fields.
func (a *Account) LockState() LockState {
	return LockState{FailedLoginAttempts: a.FailedLoginAttempts, LockedUntil: a.LockedUntil}
}
