// Package guard holds the account lockout state machine. It only computes
// transitions; persisting them is the caller's job and must happen inside
// the same transaction that read the state.
package guard

import (
	"time"

	"github.com/dmitrijs2005/timeledger/internal/server/models"
)

const (
	DefaultThreshold = 5
	DefaultDuration  = 30 * time.Minute
)

type Guard struct {
	threshold int
	duration  time.Duration
}

// New returns a Guard; non-positive arguments fall back to the defaults.
func New(threshold int, duration time.Duration) *Guard {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Guard{threshold: threshold, duration: duration}
}

func (g *Guard) Threshold() int          { return g.threshold }
func (g *Guard) Duration() time.Duration { return g.duration }

// IsLocked reports whether the state blocks authentication at now.
// A lock whose expiry has passed does not block.
func (g *Guard) IsLocked(s models.LockState, now time.Time) (bool, time.Time) {
	if s.LockedUntil == nil {
		return false, time.Time{}
	}
	if now.Before(*s.LockedUntil) {
		return true, *s.LockedUntil
	}
	return false, time.Time{}
}

// OnFailure returns the state after a wrong password at now and whether
// this failure locked the account. An expired lock is cleared first, so
// counting starts again from one.
func (g *Guard) OnFailure(s models.LockState, now time.Time) (models.LockState, bool) {
	if locked, _ := g.IsLocked(s, now); locked {
		return s, false
	}

	attempts := s.FailedLoginAttempts
	if s.LockedUntil != nil || attempts < 0 {
		attempts = 0
	}
	attempts++

	next := models.LockState{FailedLoginAttempts: attempts}
	if attempts >= g.threshold {
		until := now.Add(g.duration)
		next.LockedUntil = &until
		return next, true
	}
	return next, false
}

// OnSuccess returns the state after a correct password.
func (g *Guard) OnSuccess(models.LockState) models.LockState {
	return models.LockState{}
}
