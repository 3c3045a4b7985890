package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/unifra/unifra-auth/pkg/domain"
)

// DefaultGuestTTL is how long a guest account lives before the sweep may
// remove it.
const DefaultGuestTTL = 24 * time.Hour

// GuestService owns the guest account lifecycle: creation of time-bounded
// accounts, conversion to permanent accounts, and the expiry sweep.
//
// State machine per guest: active (expires_at in the future) -> expired
// (elapsed, still present) -> purged (account and dependents removed).
// Conversion exits the machine entirely, preserving id and username.
type GuestService struct {
	ttl      time.Duration
	accounts AccountStore
	sessions SessionStore
	registry *UsernameRegistry
	// dependents are purged before the account row, in order, so no record
	// ever references a deleted account.
	dependents []AccountDataPurger
	logger     *slog.Logger
}

// NewGuestService creates a new guest lifecycle service. dependents are the
// stores holding records keyed by account id (uploads, analyses, reset
// codes, ...); sessions are always purged and need not be listed.
func NewGuestService(
	ttl time.Duration,
	accounts AccountStore,
	sessions SessionStore,
	registry *UsernameRegistry,
	dependents []AccountDataPurger,
	logger *slog.Logger,
) *GuestService {
	if ttl == 0 {
		ttl = DefaultGuestTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GuestService{
		ttl:        ttl,
		accounts:   accounts,
		sessions:   sessions,
		registry:   registry,
		dependents: dependents,
		logger:     logger,
	}
}

// TTL returns the guest account lifetime.
func (s *GuestService) TTL() time.Duration {
	return s.ttl
}

// Create issues a new guest account with a generated username, no email,
// and an expiry of now + TTL. Retries on insert-time username collisions;
// exhaustion surfaces as domain.ErrUsernameExhausted.
func (s *GuestService) Create(ctx context.Context) (*domain.Account, error) {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		handle, err := s.registry.GuestHandle(ctx)
		if err != nil {
			return nil, err
		}

		now := time.Now()
		expires := now.Add(s.ttl)
		account := &domain.Account{
			ID:          uuid.New(),
			Username:    handle,
			DisplayName: "Guest " + handle[len(guestPrefix):],
			AuthMethod:  domain.AuthMethodGuest,
			IsGuest:     true,
			ExpiresAt:   &expires,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		err = s.accounts.Create(ctx, account)
		if errors.Is(err, domain.ErrUsernameTaken) {
			// Lost the race for this handle; generate another.
			continue
		}
		if err != nil {
			return nil, err
		}
		return account, nil
	}
	return nil, domain.ErrUsernameExhausted
}

// Convert turns a guest account into a permanent password account. The
// account id and username are preserved; email, auth method, password, and
// the guest flag/expiry change atomically. Existing sessions stay valid.
// Converting a non-guest account returns domain.ErrNotGuest and mutates
// nothing.
func (s *GuestService) Convert(ctx context.Context, accountID uuid.UUID, email, password string) (*domain.Account, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	email = NormalizeEmail(email)

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.IsGuest {
		return nil, domain.ErrNotGuest
	}

	// Advisory check for a friendly error; the store constraint decides.
	taken, err := s.accounts.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, domain.ErrEmailTaken
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.ConvertToPassword(ctx, accountID, email, hash); err != nil {
		return nil, err
	}

	return s.accounts.GetByID(ctx, accountID)
}

// Sweep removes every guest account whose TTL elapsed, deleting dependent
// records first and the account last. A failure on one account is logged
// and does not abort the batch; the selection predicate is idempotent so
// the account is retried on the next run. Expired session rows of all
// accounts are dropped as housekeeping in the same pass. Returns the
// number of accounts fully purged.
func (s *GuestService) Sweep(ctx context.Context) (int, error) {
	if err := s.sessions.DeleteExpired(ctx); err != nil {
		s.logger.Error("failed to delete expired sessions", "error", err)
	}

	expired, err := s.accounts.ListExpiredGuests(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to list expired guests: %w", err)
	}

	purged := 0
	for _, account := range expired {
		if err := s.purge(ctx, account.ID); err != nil {
			s.logger.Error("failed to purge expired guest",
				"account_id", account.ID,
				"username", account.Username,
				"error", err,
			)
			continue
		}
		purged++
		s.logger.Info("purged expired guest",
			"account_id", account.ID,
			"username", account.Username,
			"expired_at", account.ExpiresAt,
		)
	}
	return purged, nil
}

func (s *GuestService) purge(ctx context.Context, accountID uuid.UUID) error {
	for _, dep := range s.dependents {
		if err := dep.DeleteByAccountID(ctx, accountID); err != nil {
			return fmt.Errorf("failed to delete dependent records: %w", err)
		}
	}
	if err := s.sessions.DeleteByAccountID(ctx, accountID); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}
	return s.accounts.Delete(ctx, accountID)
}
