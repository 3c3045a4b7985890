package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/unifra/unifra-auth/pkg/domain"
)

// The services in this package depend on narrow store interfaces rather
// than the concrete Postgres repositories, so lifecycle logic can be tested
// against in-memory fakes. pkg/repository provides the implementations.

// AccountStore is the persistence surface for accounts. Create and
// CreateWithPassword must enforce case-insensitive uniqueness of username
// and email atomically, returning domain.ErrUsernameTaken or
// domain.ErrEmailTaken; advisory existence checks are never a substitute.
type AccountStore interface {
	Create(ctx context.Context, account *domain.Account) error
	CreateWithPassword(ctx context.Context, account *domain.Account, passwordHash string) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ConvertToPassword(ctx context.Context, id uuid.UUID, email, passwordHash string) error
	TouchLastLogin(ctx context.Context, id uuid.UUID) error
	IncrementFailedLoginAttempts(ctx context.Context, id uuid.UUID, lockoutDuration time.Duration, maxAttempts int) error
	ResetFailedLoginAttempts(ctx context.Context, id uuid.UUID) error
	ListExpiredGuests(ctx context.Context, cutoff time.Time) ([]*domain.Account, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// CredentialStore is the persistence surface for password hashes.
type CredentialStore interface {
	GetByAccountID(ctx context.Context, accountID uuid.UUID) (*domain.AccountCredential, error)
	Update(ctx context.Context, cred *domain.AccountCredential) error
}

// IdentityStore is the persistence surface for external identities.
type IdentityStore interface {
	Create(ctx context.Context, identity *domain.AccountIdentity) error
	GetByProviderSubject(ctx context.Context, provider domain.AuthMethod, subject string) (*domain.AccountIdentity, error)
}

// SessionStore is the persistence surface for refresh-token sessions.
type SessionStore interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	Revoke(ctx context.Context, id uuid.UUID) error
	RevokeByTokenHash(ctx context.Context, tokenHash string) error
	RevokeAllByAccountID(ctx context.Context, accountID uuid.UUID) error
	UpdateLastSeen(ctx context.Context, id uuid.UUID) error
	DeleteByAccountID(ctx context.Context, accountID uuid.UUID) error
	DeleteExpired(ctx context.Context) error
}

// ResetCodeStore is the persistence surface for password reset codes.
type ResetCodeStore interface {
	Issue(ctx context.Context, code *domain.ResetCode) error
	GetByAccountAndHash(ctx context.Context, accountID uuid.UUID, codeHash string) (*domain.ResetCode, error)
	MarkConsumed(ctx context.Context, id uuid.UUID) error
}

// AccountDataPurger deletes records that reference an account. The guest
// sweep runs every purger before deleting the account itself.
type AccountDataPurger interface {
	DeleteByAccountID(ctx context.Context, accountID uuid.UUID) error
}
