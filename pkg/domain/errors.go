package domain

import "errors"

// Validation errors. Returned before any store access is attempted.
var (
	ErrUsernameLength    = errors.New("username must be between 3 and 30 characters")
	ErrUsernameCharset   = errors.New("username can only contain letters, numbers, and underscores")
	ErrInvalidEmail      = errors.New("invalid email address")
	ErrWeakPassword      = errors.New("password must be at least 8 characters")
	ErrDisplayNameLength = errors.New("full name must be at least 2 characters")
)

// Conflict errors. Recoverable by retrying with different input; the
// database uniqueness constraints are the source of truth for both.
var (
	ErrUsernameTaken = errors.New("username is already taken")
	ErrEmailTaken    = errors.New("email is already registered")
)

// Authentication errors.
var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked due to too many failed login attempts")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
	ErrSessionRevoked     = errors.New("session revoked")
	ErrInvalidToken       = errors.New("invalid token")
	ErrIdentityNotFound   = errors.New("identity not found")
)

// Precondition errors. Caller errors, surfaced distinctly from conflicts.
var (
	ErrNotGuest = errors.New("account is not a guest account")
)

// OAuth exchange errors.
var (
	ErrUnknownProvider   = errors.New("unknown oauth provider")
	ErrProviderVerify    = errors.New("provider verification failed")
	ErrEmailClaimMissing = errors.New("provider claim is missing an email address")
	ErrUsernameExhausted = errors.New("unable to generate an available username")
)

// Password reset errors.
var (
	ErrResetCodeNotFound = errors.New("reset code not found")
	ErrResetCodeExpired  = errors.New("reset code expired")
	ErrResetCodeConsumed = errors.New("reset code already used")
	ErrResetNotPassword  = errors.New("password reset is only available for email accounts")
)
