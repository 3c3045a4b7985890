package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuthMethod identifies how an account authenticates. Exactly one method
// applies to an account at a time; conversion moves a guest to password.
type AuthMethod string

const (
	AuthMethodPassword AuthMethod = "password"
	AuthMethodGoogle   AuthMethod = "google"
	AuthMethodEmergent AuthMethod = "emergent"
	AuthMethodGuest    AuthMethod = "guest"
)

// OAuthProviders lists the auth methods backed by an external identity
// provider.
var OAuthProviders = []AuthMethod{AuthMethodGoogle, AuthMethodEmergent}

// IsOAuth reports whether the method is an external identity provider.
func (m AuthMethod) IsOAuth() bool {
	return m == AuthMethodGoogle || m == AuthMethodEmergent
}

// Account represents an identity record, permanent or guest.
//
// Username is globally unique (case-insensitive) across all accounts.
// Email is nil for guests and unique (case-insensitive) when present.
// ExpiresAt is set if and only if IsGuest is true.
type Account struct {
	ID                  uuid.UUID
	Email               *string
	Username            string
	DisplayName         string
	PictureURL          *string
	AuthMethod          AuthMethod
	IsGuest             bool
	ExpiresAt           *time.Time
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Expired reports whether a guest account's TTL has elapsed.
// Permanent accounts never expire.
func (a *Account) Expired(now time.Time) bool {
	if !a.IsGuest || a.ExpiresAt == nil {
		return false
	}
	return !now.Before(*a.ExpiresAt)
}

// IsLocked returns true if the account is currently locked out after
// repeated failed logins.
func (a *Account) IsLocked() bool {
	if a.LockedUntil == nil {
		return false
	}
	return time.Now().Before(*a.LockedUntil)
}

// AccountCredential stores a password hash separately from the account
// profile. Present only for AuthMethodPassword accounts.
type AccountCredential struct {
	AccountID         uuid.UUID
	PasswordHash      string
	PasswordUpdatedAt time.Time
}

// AccountIdentity links an account to an external provider subject.
type AccountIdentity struct {
	ID              uuid.UUID
	AccountID       uuid.UUID
	Provider        AuthMethod
	ProviderSubject string
	Email           *string
	CreatedAt       time.Time
}
