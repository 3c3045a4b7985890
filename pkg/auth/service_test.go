package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/unifra/unifra-auth/pkg/domain"
)

type serviceFixture struct {
	svc        *AuthService
	accounts   *memAccountStore
	creds      *memCredentialStore
	identities *memIdentityStore
	sessions   *memSessionStore
	google     *staticVerifier
	emergent   *staticVerifier
}

func newServiceFixture() *serviceFixture {
	accounts := newMemAccountStore()
	creds := newMemCredentialStore()
	identities := newMemIdentityStore()
	sessions := newMemSessionStore()
	registry := NewUsernameRegistry(accounts)
	issuer := newTestSessionService(accounts, sessions)
	guests := NewGuestService(24*time.Hour, accounts, sessions, registry, nil, discardLogger())
	google := &staticVerifier{provider: domain.AuthMethodGoogle, claims: map[string]*Claim{}}
	emergent := &staticVerifier{provider: domain.AuthMethodEmergent, claims: map[string]*Claim{}}

	svc := NewAuthService(accounts, creds, identities, registry, guests, issuer,
		[]Verifier{google, emergent}, discardLogger())

	return &serviceFixture{
		svc:        svc,
		accounts:   accounts,
		creds:      creds,
		identities: identities,
		sessions:   sessions,
		google:     google,
		emergent:   emergent,
	}
}

func (f *serviceFixture) register(t *testing.T, email, username string) *Result {
	t.Helper()
	res, err := f.svc.Register(context.Background(), RegisterInput{
		Email:       email,
		Password:    "correcthorse",
		Username:    username,
		DisplayName: "Test User",
	}, IssueSessionOpts{})
	if err != nil {
		t.Fatalf("Register(%q) error = %v", username, err)
	}
	// Mirror the stored hash into the credential fake; the real stores share
	// one table.
	f.accounts.mu.Lock()
	hash := f.accounts.creds[res.Account.ID]
	f.accounts.mu.Unlock()
	f.creds.set(res.Account.ID, hash)
	return res
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("success issues session", func(t *testing.T) {
		f := newServiceFixture()
		res := f.register(t, "alice@example.com", "alice")

		if res.Account.Username != "alice" {
			t.Errorf("Username = %q, want %q", res.Account.Username, "alice")
		}
		if res.Account.IsGuest {
			t.Error("registered account flagged as guest")
		}
		if res.Account.ExpiresAt != nil {
			t.Error("registered account has an expiry")
		}
		if res.Tokens == nil || res.Tokens.AccessToken == "" {
			t.Fatal("no tokens issued")
		}
		if n := f.sessions.countForAccount(res.Account.ID); n != 1 {
			t.Errorf("session rows = %d, want 1", n)
		}
	})

	t.Run("validation before store", func(t *testing.T) {
		f := newServiceFixture()
		f.accounts.existsErr = errors.New("store must not be touched")

		tests := []struct {
			name    string
			in      RegisterInput
			wantErr error
		}{
			{"bad username", RegisterInput{Email: "a@b.com", Password: "correcthorse", Username: "a!", DisplayName: "Al"}, domain.ErrUsernameLength},
			{"bad email", RegisterInput{Email: "nope", Password: "correcthorse", Username: "alice", DisplayName: "Al"}, domain.ErrInvalidEmail},
			{"weak password", RegisterInput{Email: "a@b.com", Password: "short", Username: "alice", DisplayName: "Al"}, domain.ErrWeakPassword},
			{"bad display name", RegisterInput{Email: "a@b.com", Password: "correcthorse", Username: "alice", DisplayName: " "}, domain.ErrDisplayNameLength},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.svc.Register(ctx, tt.in, IssueSessionOpts{})
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Register() = %v, want %v", err, tt.wantErr)
				}
			})
		}
	})

	t.Run("duplicate username case-insensitive", func(t *testing.T) {
		f := newServiceFixture()
		f.register(t, "alice@example.com", "alice")

		_, err := f.svc.Register(ctx, RegisterInput{
			Email:       "other@example.com",
			Password:    "correcthorse",
			Username:    "ALICE",
			DisplayName: "Impostor",
		}, IssueSessionOpts{})
		if !errors.Is(err, domain.ErrUsernameTaken) {
			t.Errorf("Register() = %v, want domain.ErrUsernameTaken", err)
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		f := newServiceFixture()
		f.register(t, "alice@example.com", "alice")

		_, err := f.svc.Register(ctx, RegisterInput{
			Email:       "Alice@Example.COM",
			Password:    "correcthorse",
			Username:    "alice2",
			DisplayName: "Alice Again",
		}, IssueSessionOpts{})
		if !errors.Is(err, domain.ErrEmailTaken) {
			t.Errorf("Register() = %v, want domain.ErrEmailTaken", err)
		}
	})
}

func TestConcurrentUsernameAllocation(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Register(ctx, RegisterInput{
				Email:       "racer" + string(rune('a'+i)) + "@example.com",
				Password:    "correcthorse",
				Username:    "coveted",
				DisplayName: "Racer",
			}, IssueSessionOpts{})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, domain.ErrUsernameTaken):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		f := newServiceFixture()
		f.register(t, "alice@example.com", "alice")

		res, err := f.svc.Login(ctx, "Alice@Example.com", "correcthorse", IssueSessionOpts{})
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if res.Account.Username != "alice" {
			t.Errorf("Username = %q, want %q", res.Account.Username, "alice")
		}
		if res.Account.LastLoginAt == nil {
			t.Error("LastLoginAt not set on login")
		}
	})

	t.Run("login by username", func(t *testing.T) {
		f := newServiceFixture()
		f.register(t, "alice@example.com", "alice")

		res, err := f.svc.Login(ctx, "ALICE", "correcthorse", IssueSessionOpts{})
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if res.Account.Username != "alice" {
			t.Errorf("Username = %q, want %q", res.Account.Username, "alice")
		}
	})

	t.Run("unknown email and wrong password are indistinguishable", func(t *testing.T) {
		f := newServiceFixture()
		f.register(t, "alice@example.com", "alice")

		_, errUnknown := f.svc.Login(ctx, "nobody@example.com", "correcthorse", IssueSessionOpts{})
		_, errWrong := f.svc.Login(ctx, "alice@example.com", "wrongpassword", IssueSessionOpts{})

		if !errors.Is(errUnknown, domain.ErrInvalidCredentials) {
			t.Errorf("unknown email: %v, want domain.ErrInvalidCredentials", errUnknown)
		}
		if !errors.Is(errWrong, domain.ErrInvalidCredentials) {
			t.Errorf("wrong password: %v, want domain.ErrInvalidCredentials", errWrong)
		}
		if errUnknown.Error() != errWrong.Error() {
			t.Errorf("error messages differ: %q vs %q", errUnknown, errWrong)
		}
	})

	t.Run("lockout after repeated failures", func(t *testing.T) {
		f := newServiceFixture()
		f.register(t, "alice@example.com", "alice")

		for i := 0; i < maxFailedAttempts; i++ {
			if _, err := f.svc.Login(ctx, "alice@example.com", "wrongpassword", IssueSessionOpts{}); !errors.Is(err, domain.ErrInvalidCredentials) {
				t.Fatalf("attempt %d: %v, want domain.ErrInvalidCredentials", i, err)
			}
		}

		// Even the correct password is refused while locked.
		if _, err := f.svc.Login(ctx, "alice@example.com", "correcthorse", IssueSessionOpts{}); !errors.Is(err, domain.ErrAccountLocked) {
			t.Errorf("locked login = %v, want domain.ErrAccountLocked", err)
		}
	})

	t.Run("success resets failure counter", func(t *testing.T) {
		f := newServiceFixture()
		f.register(t, "alice@example.com", "alice")
		account, _ := f.accounts.GetByEmail(ctx, "alice@example.com")

		for i := 0; i < maxFailedAttempts-1; i++ {
			_, _ = f.svc.Login(ctx, "alice@example.com", "wrongpassword", IssueSessionOpts{})
		}
		if _, err := f.svc.Login(ctx, "alice@example.com", "correcthorse", IssueSessionOpts{}); err != nil {
			t.Fatalf("Login() error = %v", err)
		}

		after, _ := f.accounts.GetByID(ctx, account.ID)
		if after.FailedLoginAttempts != 0 {
			t.Errorf("FailedLoginAttempts = %d, want 0", after.FailedLoginAttempts)
		}
	})

	t.Run("account without a password credential", func(t *testing.T) {
		f := newServiceFixture()
		email := "oauth-only@example.com"
		holder := seedAccount(t, f.accounts, "oauthonly")
		f.accounts.mu.Lock()
		f.accounts.accounts[holder.ID].Email = &email
		f.accounts.mu.Unlock()

		if _, err := f.svc.Login(ctx, email, "whatever1", IssueSessionOpts{}); !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Errorf("Login() = %v, want domain.ErrInvalidCredentials", err)
		}
	})
}

func TestCreateGuestFlow(t *testing.T) {
	f := newServiceFixture()

	res, err := f.svc.CreateGuest(context.Background(), IssueSessionOpts{})
	if err != nil {
		t.Fatalf("CreateGuest() error = %v", err)
	}
	if !res.Account.IsGuest {
		t.Error("guest flow returned a non-guest account")
	}
	if res.Tokens == nil || res.Tokens.RefreshToken == "" {
		t.Fatal("guest flow issued no tokens")
	}
	if n := f.sessions.countForAccount(res.Account.ID); n != 1 {
		t.Errorf("session rows = %d, want 1", n)
	}
}

func TestOAuthExchange(t *testing.T) {
	ctx := context.Background()

	t.Run("first sign-in creates account and identity", func(t *testing.T) {
		f := newServiceFixture()
		f.google.claims["tok"] = &Claim{
			Subject: "google-sub-1",
			Email:   "Carol@Example.com",
			Name:    "Carol Jones",
			Picture: "https://example.com/p.png",
		}

		res, err := f.svc.OAuthExchange(ctx, domain.AuthMethodGoogle, "tok", IssueSessionOpts{})
		if err != nil {
			t.Fatalf("OAuthExchange() error = %v", err)
		}
		if res.Account.Email == nil || *res.Account.Email != "carol@example.com" {
			t.Errorf("Email = %v, want carol@example.com", res.Account.Email)
		}
		if res.Account.AuthMethod != domain.AuthMethodGoogle {
			t.Errorf("AuthMethod = %q, want %q", res.Account.AuthMethod, domain.AuthMethodGoogle)
		}
		if err := ValidateUsername(res.Account.Username); err != nil {
			t.Errorf("generated username %q fails validation: %v", res.Account.Username, err)
		}

		identity, err := f.identities.GetByProviderSubject(ctx, domain.AuthMethodGoogle, "google-sub-1")
		if err != nil {
			t.Fatalf("identity not linked: %v", err)
		}
		if identity.AccountID != res.Account.ID {
			t.Error("identity linked to the wrong account")
		}
	})

	t.Run("second sign-in reuses the account", func(t *testing.T) {
		f := newServiceFixture()
		f.google.claims["tok"] = &Claim{Subject: "google-sub-1", Email: "carol@example.com", Name: "Carol"}

		first, err := f.svc.OAuthExchange(ctx, domain.AuthMethodGoogle, "tok", IssueSessionOpts{})
		if err != nil {
			t.Fatalf("first OAuthExchange() error = %v", err)
		}
		second, err := f.svc.OAuthExchange(ctx, domain.AuthMethodGoogle, "tok", IssueSessionOpts{})
		if err != nil {
			t.Fatalf("second OAuthExchange() error = %v", err)
		}
		if first.Account.ID != second.Account.ID {
			t.Error("repeat sign-in created a second account")
		}
		if f.accounts.count() != 1 {
			t.Errorf("accounts = %d, want 1", f.accounts.count())
		}
	})

	t.Run("matching email auto-links", func(t *testing.T) {
		f := newServiceFixture()
		f.register(t, "carol@example.com", "carol")
		f.google.claims["tok"] = &Claim{Subject: "google-sub-1", Email: "carol@example.com", Name: "Carol"}

		res, err := f.svc.OAuthExchange(ctx, domain.AuthMethodGoogle, "tok", IssueSessionOpts{})
		if err != nil {
			t.Fatalf("OAuthExchange() error = %v", err)
		}
		if res.Account.Username != "carol" {
			t.Errorf("Username = %q, want existing %q", res.Account.Username, "carol")
		}
		if f.accounts.count() != 1 {
			t.Errorf("accounts = %d, want 1", f.accounts.count())
		}
	})

	t.Run("verification failure", func(t *testing.T) {
		f := newServiceFixture()
		_, err := f.svc.OAuthExchange(ctx, domain.AuthMethodGoogle, "bad-token", IssueSessionOpts{})
		if !errors.Is(err, domain.ErrProviderVerify) {
			t.Errorf("OAuthExchange() = %v, want domain.ErrProviderVerify", err)
		}
	})

	t.Run("missing email claim", func(t *testing.T) {
		f := newServiceFixture()
		f.emergent.claims["tok"] = &Claim{Subject: "em-1", Name: "No Email"}
		_, err := f.svc.OAuthExchange(ctx, domain.AuthMethodEmergent, "tok", IssueSessionOpts{})
		if !errors.Is(err, domain.ErrEmailClaimMissing) {
			t.Errorf("OAuthExchange() = %v, want domain.ErrEmailClaimMissing", err)
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		f := newServiceFixture()
		_, err := f.svc.OAuthExchange(ctx, domain.AuthMethod("facebook"), "tok", IssueSessionOpts{})
		if !errors.Is(err, domain.ErrUnknownProvider) {
			t.Errorf("OAuthExchange() = %v, want domain.ErrUnknownProvider", err)
		}
	})
}

func TestSignInDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("guest", func(t *testing.T) {
		f := newServiceFixture()
		res, err := f.svc.SignIn(ctx, Credentials{Method: domain.AuthMethodGuest}, IssueSessionOpts{})
		if err != nil {
			t.Fatalf("SignIn() error = %v", err)
		}
		if !res.Account.IsGuest {
			t.Error("guest dispatch returned a non-guest account")
		}
	})

	t.Run("password", func(t *testing.T) {
		f := newServiceFixture()
		f.register(t, "alice@example.com", "alice")

		res, err := f.svc.SignIn(ctx, Credentials{
			Method:   domain.AuthMethodPassword,
			Email:    "alice@example.com",
			Password: "correcthorse",
		}, IssueSessionOpts{})
		if err != nil {
			t.Fatalf("SignIn() error = %v", err)
		}
		if res.Account.Username != "alice" {
			t.Errorf("Username = %q, want alice", res.Account.Username)
		}
	})

	t.Run("oauth", func(t *testing.T) {
		f := newServiceFixture()
		f.emergent.claims["sess"] = &Claim{Subject: "em-1", Email: "dan@example.com", Name: "Dan"}
		res, err := f.svc.SignIn(ctx, Credentials{
			Method:             domain.AuthMethodEmergent,
			ProviderCredential: "sess",
		}, IssueSessionOpts{})
		if err != nil {
			t.Fatalf("SignIn() error = %v", err)
		}
		if res.Account.AuthMethod != domain.AuthMethodEmergent {
			t.Errorf("AuthMethod = %q, want %q", res.Account.AuthMethod, domain.AuthMethodEmergent)
		}
	})

	t.Run("unknown method", func(t *testing.T) {
		f := newServiceFixture()
		_, err := f.svc.SignIn(ctx, Credentials{Method: domain.AuthMethod("saml")}, IssueSessionOpts{})
		if !errors.Is(err, domain.ErrUnknownProvider) {
			t.Errorf("SignIn() = %v, want domain.ErrUnknownProvider", err)
		}
	})
}

func TestGetAccountAfterSweep(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()

	res, err := f.svc.CreateGuest(ctx, IssueSessionOpts{})
	if err != nil {
		t.Fatalf("CreateGuest() error = %v", err)
	}

	// Simulate the sweep removing the account while the JWT is still valid.
	if err := f.accounts.Delete(ctx, res.Account.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := f.svc.GetAccount(ctx, res.Account.ID); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("GetAccount() = %v, want domain.ErrAccountNotFound", err)
	}
}
