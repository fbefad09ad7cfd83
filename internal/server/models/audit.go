package models

import "time"

// Audit actions.
const (
	AuditRegistered           = "account.registered"
	AuditLoginSucceeded       = "auth.login_succeeded"
	AuditLoginFailed          = "auth.login_failed"
	AuditLoginBlocked         = "auth.login_blocked"
	AuditAccountLocked        = "auth.account_locked"
	AuditTokenRefreshed       = "auth.token_refreshed"
	AuditRefreshRejected      = "auth.refresh_rejected"
	AuditLogout               = "auth.logout"
	AuditPasswordChanged      = "account.password_changed"
	AuditPasswordChangeFailed = "account.password_change_failed"
	AuditOnboardingCompleted  = "account.onboarding_completed"
)

// ResourceAccount is the resource type used by account-level audit entries.
const ResourceAccount = "account"

// AuditEntry is an immutable record of a security-relevant action.
// AccountID is nil when the actor could not be resolved (unknown login).
type AuditEntry struct {
	ID           int64
	AccountID    *string
	Action       string
	ResourceType string
	ResourceID   string
	Detail       string
	IPAddress    string
	UserAgent    string
	CreatedAt    time.Time
}

// ClientInfo carries optional request metadata used only to enrich audit entries.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}
