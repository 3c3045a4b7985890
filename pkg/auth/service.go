package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/unifra/unifra-auth/pkg/domain"
)

const (
	maxFailedAttempts = 5
	lockoutDuration   = 15 * time.Minute
)

// Credentials is the tagged union of supported authentication inputs.
// Exactly the fields for the chosen Method are read.
type Credentials struct {
	Method domain.AuthMethod

	// Password login
	Email    string
	Password string

	// OAuth exchange
	ProviderCredential string
}

// Result is the converging postcondition of every successful flow: one
// consistent account record and one freshly issued session.
type Result struct {
	Account *domain.Account
	Tokens  *domain.TokenPair
}

// AuthService is the single entry point composing the username registry,
// account store, provider verifiers, guest lifecycle, and session issuer
// into the supported authentication flows.
type AuthService struct {
	accounts   AccountStore
	creds      CredentialStore
	identities IdentityStore
	registry   *UsernameRegistry
	guests     *GuestService
	sessions   *SessionService
	verifiers  map[domain.AuthMethod]Verifier
	logger     *slog.Logger
}

// NewAuthService creates the auth orchestrator.
func NewAuthService(
	accounts AccountStore,
	creds CredentialStore,
	identities IdentityStore,
	registry *UsernameRegistry,
	guests *GuestService,
	sessions *SessionService,
	verifiers []Verifier,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	byProvider := make(map[domain.AuthMethod]Verifier, len(verifiers))
	for _, v := range verifiers {
		byProvider[v.Provider()] = v
	}
	return &AuthService{
		accounts:   accounts,
		creds:      creds,
		identities: identities,
		registry:   registry,
		guests:     guests,
		sessions:   sessions,
		verifiers:  byProvider,
		logger:     logger,
	}
}

// SignIn dispatches on the credential kind. Register is separate because it
// carries extra profile fields; everything else funnels through here.
func (s *AuthService) SignIn(ctx context.Context, creds Credentials, opts IssueSessionOpts) (*Result, error) {
	switch creds.Method {
	case domain.AuthMethodPassword:
		return s.Login(ctx, creds.Email, creds.Password, opts)
	case domain.AuthMethodGuest:
		return s.CreateGuest(ctx, opts)
	case domain.AuthMethodGoogle, domain.AuthMethodEmergent:
		return s.OAuthExchange(ctx, creds.Method, creds.ProviderCredential, opts)
	default:
		return nil, domain.ErrUnknownProvider
	}
}

// RegisterInput holds the fields for a new permanent account.
type RegisterInput struct {
	Email       string
	Password    string
	Username    string
	DisplayName string
}

// Register creates a permanent password account and issues a session.
// Validation runs before any store access; the username and email
// uniqueness constraints decide conflicts at insert time, so a conflict
// after a positive availability check is expected, not exceptional.
func (s *AuthService) Register(ctx context.Context, in RegisterInput, opts IssueSessionOpts) (*Result, error) {
	if err := ValidateUsername(in.Username); err != nil {
		return nil, err
	}
	if err := ValidateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	if err := ValidateDisplayName(in.DisplayName); err != nil {
		return nil, err
	}

	email := NormalizeEmail(in.Email)

	// Advisory checks for friendly errors; the insert decides.
	if taken, err := s.accounts.ExistsByEmail(ctx, email); err != nil {
		return nil, err
	} else if taken {
		return nil, domain.ErrEmailTaken
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	account := &domain.Account{
		ID:          uuid.New(),
		Email:       &email,
		Username:    in.Username,
		DisplayName: SanitizeName(in.DisplayName),
		AuthMethod:  domain.AuthMethodPassword,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.accounts.CreateWithPassword(ctx, account, hash); err != nil {
		return nil, err
	}

	s.logger.Info("account registered", "account_id", account.ID, "username", account.Username)
	return s.issue(ctx, account.ID, opts)
}

// Login authenticates a permanent account by identifier and password. The
// identifier is an email address when it contains an @, a username
// otherwise. Unknown identifier and wrong password are indistinguishable
// to the caller.
func (s *AuthService) Login(ctx context.Context, identifier, password string, opts IssueSessionOpts) (*Result, error) {
	var account *domain.Account
	var err error
	if strings.Contains(identifier, "@") {
		account, err = s.accounts.GetByEmail(ctx, NormalizeEmail(identifier))
	} else {
		account, err = s.accounts.GetByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if account.IsLocked() {
		return nil, domain.ErrAccountLocked
	}

	cred, err := s.creds.GetByAccountID(ctx, account.ID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			// OAuth or guest account; no password to check.
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if !VerifyPassword(password, cred.PasswordHash) {
		_ = s.accounts.IncrementFailedLoginAttempts(ctx, account.ID, lockoutDuration, maxFailedAttempts)
		return nil, domain.ErrInvalidCredentials
	}

	if account.FailedLoginAttempts > 0 || account.LockedUntil != nil {
		_ = s.accounts.ResetFailedLoginAttempts(ctx, account.ID)
	}

	return s.issue(ctx, account.ID, opts)
}

// CreateGuest creates a time-bounded guest account and issues a session.
func (s *AuthService) CreateGuest(ctx context.Context, opts IssueSessionOpts) (*Result, error) {
	account, err := s.guests.Create(ctx)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, account.ID, opts)
}

// OAuthExchange verifies a provider credential and resolves it to an
// account: an already-linked identity wins, then an existing account with
// the claimed email is auto-linked, and otherwise a new account is created
// with a username generated from the claim's display name.
func (s *AuthService) OAuthExchange(ctx context.Context, provider domain.AuthMethod, credential string, opts IssueSessionOpts) (*Result, error) {
	verifier, ok := s.verifiers[provider]
	if !ok {
		return nil, domain.ErrUnknownProvider
	}

	claim, err := verifier.Verify(ctx, credential)
	if err != nil {
		return nil, err
	}
	if claim.Email == "" {
		return nil, domain.ErrEmailClaimMissing
	}

	accountID, err := s.resolveClaim(ctx, provider, claim)
	if err != nil {
		return nil, err
	}

	return s.issue(ctx, accountID, opts)
}

func (s *AuthService) resolveClaim(ctx context.Context, provider domain.AuthMethod, claim *Claim) (uuid.UUID, error) {
	identity, err := s.identities.GetByProviderSubject(ctx, provider, claim.Subject)
	if err == nil {
		return identity.AccountID, nil
	}
	if !errors.Is(err, domain.ErrIdentityNotFound) {
		return uuid.Nil, err
	}

	email := NormalizeEmail(claim.Email)

	account, err := s.accounts.GetByEmail(ctx, email)
	if err == nil {
		// Auto-link the provider to the existing account.
		if linkErr := s.linkIdentity(ctx, account.ID, provider, claim); linkErr != nil {
			return uuid.Nil, linkErr
		}
		return account.ID, nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return uuid.Nil, err
	}

	account, err = s.createFromClaim(ctx, provider, claim, email)
	if err != nil {
		return uuid.Nil, err
	}
	return account.ID, nil
}

// createFromClaim creates a new account for a first-time OAuth sign-in.
// The username is derived from the claim's display name; insert-time
// collisions retry with a fresh candidate.
func (s *AuthService) createFromClaim(ctx context.Context, provider domain.AuthMethod, claim *Claim, email string) (*domain.Account, error) {
	displayName := SanitizeName(claim.Name)
	if displayName == "" {
		displayName = email
	}

	var account *domain.Account
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		username, err := s.registry.FromDisplayName(ctx, claim.Name)
		if err != nil {
			return nil, err
		}

		now := time.Now()
		candidate := &domain.Account{
			ID:          uuid.New(),
			Email:       &email,
			Username:    username,
			DisplayName: displayName,
			AuthMethod:  provider,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if claim.Picture != "" {
			candidate.PictureURL = &claim.Picture
		}

		err = s.accounts.Create(ctx, candidate)
		if errors.Is(err, domain.ErrUsernameTaken) {
			continue
		}
		if err != nil {
			return nil, err
		}
		account = candidate
		break
	}
	if account == nil {
		return nil, domain.ErrUsernameExhausted
	}

	if err := s.linkIdentity(ctx, account.ID, provider, claim); err != nil {
		return nil, err
	}

	s.logger.Info("account created from oauth claim",
		"account_id", account.ID,
		"provider", provider,
		"username", account.Username,
	)
	return account, nil
}

func (s *AuthService) linkIdentity(ctx context.Context, accountID uuid.UUID, provider domain.AuthMethod, claim *Claim) error {
	email := NormalizeEmail(claim.Email)
	identity := &domain.AccountIdentity{
		ID:              uuid.New(),
		AccountID:       accountID,
		Provider:        provider,
		ProviderSubject: claim.Subject,
		Email:           &email,
		CreatedAt:       time.Now(),
	}
	if err := s.identities.Create(ctx, identity); err != nil {
		return fmt.Errorf("failed to link %s identity: %w", provider, err)
	}
	return nil
}

// ConvertGuest upgrades the guest account behind a valid session into a
// permanent password account. The session that authorized the call stays
// valid; no new session is minted.
func (s *AuthService) ConvertGuest(ctx context.Context, accountID uuid.UUID, email, password string) (*domain.Account, error) {
	return s.guests.Convert(ctx, accountID, email, password)
}

// GetAccount loads an account by id. Protected handlers use this as the
// post-validate identity re-check: a swept guest yields
// domain.ErrAccountNotFound even while its JWT is unexpired.
func (s *AuthService) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return s.accounts.GetByID(ctx, id)
}

// issue is the single convergence point of every successful flow.
func (s *AuthService) issue(ctx context.Context, accountID uuid.UUID, opts IssueSessionOpts) (*Result, error) {
	_ = s.accounts.TouchLastLogin(ctx, accountID)

	tokens, err := s.sessions.IssueSession(ctx, accountID, opts)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return &Result{Account: account, Tokens: tokens}, nil
}
