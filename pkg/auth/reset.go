package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/unifra/unifra-auth/pkg/domain"
)

const (
	resetCodeDigits = 6
	// DefaultResetCodeTTL is how long an issued reset code stays usable.
	DefaultResetCodeTTL = 15 * time.Minute
)

// CodeSender delivers a reset code to an email address.
type CodeSender interface {
	SendResetCode(ctx context.Context, email, code string) error
}

// ResetService implements the forgot-password flow: a short numeric code
// is emailed to the account holder, verified, and exchanged for a new
// password. Codes are stored hashed and are single-use; issuing a new
// code invalidates any outstanding one.
type ResetService struct {
	ttl      time.Duration
	accounts AccountStore
	creds    CredentialStore
	codes    ResetCodeStore
	sessions *SessionService
	sender   CodeSender
	logger   *slog.Logger
}

// NewResetService creates the password reset service. sender may be nil,
// in which case issued codes are only logged; useful for local runs
// without SMTP.
func NewResetService(ttl time.Duration, accounts AccountStore, creds CredentialStore, codes ResetCodeStore, sessions *SessionService, sender CodeSender, logger *slog.Logger) *ResetService {
	if ttl <= 0 {
		ttl = DefaultResetCodeTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ResetService{
		ttl:      ttl,
		accounts: accounts,
		creds:    creds,
		codes:    codes,
		sessions: sessions,
		sender:   sender,
		logger:   logger,
	}
}

// RequestReset issues a reset code for the account with the given email.
// It never reveals whether the email exists: every outcome short of an
// infrastructure failure returns nil.
func (s *ResetService) RequestReset(ctx context.Context, email string) error {
	account, err := s.accounts.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil
		}
		return err
	}
	if account.AuthMethod != domain.AuthMethodPassword {
		// OAuth and guest accounts have no password to reset.
		return nil
	}

	code, err := generateResetCode()
	if err != nil {
		return err
	}

	now := time.Now()
	record := &domain.ResetCode{
		ID:        uuid.New(),
		AccountID: account.ID,
		CodeHash:  HashToken(code),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.codes.Issue(ctx, record); err != nil {
		return err
	}

	if s.sender == nil {
		s.logger.Warn("no email sender configured, reset code not delivered",
			"account_id", account.ID, "code", code)
		return nil
	}
	if err := s.sender.SendResetCode(ctx, *account.Email, code); err != nil {
		return fmt.Errorf("failed to send reset code: %w", err)
	}

	s.logger.Info("reset code issued", "account_id", account.ID)
	return nil
}

// VerifyCode checks a reset code without consuming it, so clients can
// validate the code before collecting the new password.
func (s *ResetService) VerifyCode(ctx context.Context, email, code string) error {
	_, _, err := s.lookup(ctx, email, code)
	return err
}

// Reset consumes a valid code, replaces the account's password, and
// revokes every session so stolen tokens die with the old password.
func (s *ResetService) Reset(ctx context.Context, email, code, newPassword string) error {
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	account, record, err := s.lookup(ctx, email, code)
	if err != nil {
		return err
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	if err := s.codes.MarkConsumed(ctx, record.ID); err != nil {
		return err
	}

	cred := &domain.AccountCredential{
		AccountID:         account.ID,
		PasswordHash:      hash,
		PasswordUpdatedAt: time.Now(),
	}
	if err := s.creds.Update(ctx, cred); err != nil {
		return err
	}

	_ = s.accounts.ResetFailedLoginAttempts(ctx, account.ID)
	if err := s.sessions.RevokeAllSessions(ctx, account.ID); err != nil {
		s.logger.Error("failed to revoke sessions after password reset",
			"account_id", account.ID, "error", err)
	}

	s.logger.Info("password reset completed", "account_id", account.ID)
	return nil
}

func (s *ResetService) lookup(ctx context.Context, email, code string) (*domain.Account, *domain.ResetCode, error) {
	account, err := s.accounts.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, nil, domain.ErrResetCodeNotFound
		}
		return nil, nil, err
	}
	if account.AuthMethod != domain.AuthMethodPassword {
		return nil, nil, domain.ErrResetNotPassword
	}

	record, err := s.codes.GetByAccountAndHash(ctx, account.ID, HashToken(code))
	if err != nil {
		return nil, nil, err
	}
	if record.ConsumedAt != nil {
		return nil, nil, domain.ErrResetCodeConsumed
	}
	if !time.Now().Before(record.ExpiresAt) {
		return nil, nil, domain.ErrResetCodeExpired
	}
	return account, record, nil
}

func generateResetCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < resetCodeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", resetCodeDigits, n), nil
}
