package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/unifra/unifra-auth/pkg/domain"
)

// In-memory store fakes. The account fake enforces the same case-insensitive
// uniqueness the Postgres indexes do, so allocation races behave like the
// real store.

type memAccountStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*domain.Account
	creds    map[uuid.UUID]string

	createErr  error
	getErr     error
	existsErr  error
	deleteErr  map[uuid.UUID]error
	deletedIDs []uuid.UUID
}

func newMemAccountStore() *memAccountStore {
	return &memAccountStore{
		accounts:  make(map[uuid.UUID]*domain.Account),
		creds:     make(map[uuid.UUID]string),
		deleteErr: make(map[uuid.UUID]error),
	}
}

func (s *memAccountStore) Create(ctx context.Context, account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if err := s.checkUniqueLocked(account); err != nil {
		return err
	}
	cp := *account
	s.accounts[account.ID] = &cp
	return nil
}

func (s *memAccountStore) CreateWithPassword(ctx context.Context, account *domain.Account, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if err := s.checkUniqueLocked(account); err != nil {
		return err
	}
	cp := *account
	s.accounts[account.ID] = &cp
	s.creds[account.ID] = passwordHash
	return nil
}

func (s *memAccountStore) checkUniqueLocked(account *domain.Account) error {
	for _, existing := range s.accounts {
		if strings.EqualFold(existing.Username, account.Username) {
			return domain.ErrUsernameTaken
		}
		if existing.Email != nil && account.Email != nil && strings.EqualFold(*existing.Email, *account.Email) {
			return domain.ErrEmailTaken
		}
	}
	return nil
}

func (s *memAccountStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	account, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *account
	return &cp, nil
}

func (s *memAccountStore) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.accounts {
		if account.Email != nil && strings.EqualFold(*account.Email, email) {
			cp := *account
			return &cp, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (s *memAccountStore) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.accounts {
		if strings.EqualFold(account.Username, username) {
			cp := *account
			return &cp, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (s *memAccountStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsErr != nil {
		return false, s.existsErr
	}
	for _, account := range s.accounts {
		if account.Email != nil && strings.EqualFold(*account.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memAccountStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsErr != nil {
		return false, s.existsErr
	}
	for _, account := range s.accounts {
		if strings.EqualFold(account.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memAccountStore) ConvertToPassword(ctx context.Context, id uuid.UUID, email, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if !account.IsGuest {
		return domain.ErrNotGuest
	}
	for otherID, existing := range s.accounts {
		if otherID != id && existing.Email != nil && strings.EqualFold(*existing.Email, email) {
			return domain.ErrEmailTaken
		}
	}
	account.Email = &email
	account.AuthMethod = domain.AuthMethodPassword
	account.IsGuest = false
	account.ExpiresAt = nil
	account.FailedLoginAttempts = 0
	account.LockedUntil = nil
	account.UpdatedAt = time.Now()
	s.creds[id] = passwordHash
	return nil
}

func (s *memAccountStore) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account, ok := s.accounts[id]; ok {
		now := time.Now()
		account.LastLoginAt = &now
	}
	return nil
}

func (s *memAccountStore) IncrementFailedLoginAttempts(ctx context.Context, id uuid.UUID, lockoutDuration time.Duration, maxAttempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	account.FailedLoginAttempts++
	if account.FailedLoginAttempts >= maxAttempts {
		until := time.Now().Add(lockoutDuration)
		account.LockedUntil = &until
	}
	return nil
}

func (s *memAccountStore) ResetFailedLoginAttempts(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account, ok := s.accounts[id]; ok {
		account.FailedLoginAttempts = 0
		account.LockedUntil = nil
	}
	return nil
}

func (s *memAccountStore) ListExpiredGuests(ctx context.Context, cutoff time.Time) ([]*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Account
	for _, account := range s.accounts {
		if account.IsGuest && account.ExpiresAt != nil && !account.ExpiresAt.After(cutoff) {
			cp := *account
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memAccountStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.deleteErr[id]; ok {
		return err
	}
	delete(s.accounts, id)
	delete(s.creds, id)
	s.deletedIDs = append(s.deletedIDs, id)
	return nil
}

func (s *memAccountStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

type memCredentialStore struct {
	mu    sync.Mutex
	creds map[uuid.UUID]*domain.AccountCredential
}

func newMemCredentialStore() *memCredentialStore {
	return &memCredentialStore{creds: make(map[uuid.UUID]*domain.AccountCredential)}
}

func (s *memCredentialStore) GetByAccountID(ctx context.Context, accountID uuid.UUID) (*domain.AccountCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.creds[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *cred
	return &cp, nil
}

func (s *memCredentialStore) Update(ctx context.Context, cred *domain.AccountCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cred
	s.creds[cred.AccountID] = &cp
	return nil
}

func (s *memCredentialStore) set(accountID uuid.UUID, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[accountID] = &domain.AccountCredential{AccountID: accountID, PasswordHash: hash}
}

type memIdentityStore struct {
	mu         sync.Mutex
	identities []*domain.AccountIdentity
}

func newMemIdentityStore() *memIdentityStore {
	return &memIdentityStore{}
}

func (s *memIdentityStore) Create(ctx context.Context, identity *domain.AccountIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *identity
	s.identities = append(s.identities, &cp)
	return nil
}

func (s *memIdentityStore) GetByProviderSubject(ctx context.Context, provider domain.AuthMethod, subject string) (*domain.AccountIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, identity := range s.identities {
		if identity.Provider == provider && identity.ProviderSubject == subject {
			cp := *identity
			return &cp, nil
		}
	}
	return nil, domain.ErrIdentityNotFound
}

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[uuid.UUID]*domain.Session)}
}

func (s *memSessionStore) Create(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *memSessionStore) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.TokenHash == tokenHash && session.RevokedAt == nil {
			cp := *session
			return &cp, nil
		}
	}
	return nil, domain.ErrSessionNotFound
}

func (s *memSessionStore) Revoke(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[id]; ok && session.RevokedAt == nil {
		now := time.Now()
		session.RevokedAt = &now
	}
	return nil
}

func (s *memSessionStore) RevokeByTokenHash(ctx context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.TokenHash == tokenHash && session.RevokedAt == nil {
			now := time.Now()
			session.RevokedAt = &now
		}
	}
	return nil
}

func (s *memSessionStore) RevokeAllByAccountID(ctx context.Context, accountID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.AccountID == accountID && session.RevokedAt == nil {
			now := time.Now()
			session.RevokedAt = &now
		}
	}
	return nil
}

func (s *memSessionStore) UpdateLastSeen(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[id]; ok {
		now := time.Now()
		session.LastSeenAt = &now
	}
	return nil
}

func (s *memSessionStore) DeleteByAccountID(ctx context.Context, accountID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, session := range s.sessions {
		if session.AccountID == accountID {
			delete(s.sessions, id)
		}
	}
	return nil
}

func (s *memSessionStore) DeleteExpired(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, session := range s.sessions {
		if session.ExpiresAt.Before(now) {
			delete(s.sessions, id)
		}
	}
	return nil
}

func (s *memSessionStore) countForAccount(accountID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, session := range s.sessions {
		if session.AccountID == accountID {
			n++
		}
	}
	return n
}

func (s *memSessionStore) activeForAccount(accountID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, session := range s.sessions {
		if session.AccountID == accountID && session.RevokedAt == nil {
			n++
		}
	}
	return n
}

type memResetCodeStore struct {
	mu    sync.Mutex
	codes map[uuid.UUID]*domain.ResetCode
}

func newMemResetCodeStore() *memResetCodeStore {
	return &memResetCodeStore{codes: make(map[uuid.UUID]*domain.ResetCode)}
}

func (s *memResetCodeStore) Issue(ctx context.Context, code *domain.ResetCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.codes {
		if existing.AccountID == code.AccountID && existing.ConsumedAt == nil {
			now := time.Now()
			existing.ConsumedAt = &now
		}
	}
	cp := *code
	s.codes[code.ID] = &cp
	return nil
}

func (s *memResetCodeStore) GetByAccountAndHash(ctx context.Context, accountID uuid.UUID, codeHash string) (*domain.ResetCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, code := range s.codes {
		if code.AccountID == accountID && code.CodeHash == codeHash {
			cp := *code
			return &cp, nil
		}
	}
	return nil, domain.ErrResetCodeNotFound
}

func (s *memResetCodeStore) MarkConsumed(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.codes[id]
	if !ok {
		return domain.ErrResetCodeNotFound
	}
	now := time.Now()
	code.ConsumedAt = &now
	return nil
}

type memPurger struct {
	mu     sync.Mutex
	purged []uuid.UUID
	err    error
}

func (p *memPurger) DeleteByAccountID(ctx context.Context, accountID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.purged = append(p.purged, accountID)
	return nil
}

type staticVerifier struct {
	provider domain.AuthMethod
	claims   map[string]*Claim
}

func (v *staticVerifier) Provider() domain.AuthMethod { return v.provider }

func (v *staticVerifier) Verify(ctx context.Context, credential string) (*Claim, error) {
	claim, ok := v.claims[credential]
	if !ok {
		return nil, domain.ErrProviderVerify
	}
	return claim, nil
}
