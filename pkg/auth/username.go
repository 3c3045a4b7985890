package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/unifra/unifra-auth/pkg/domain"
)

const (
	guestPrefix    = "guest_"
	guestSuffixLen = 6
	baseSuffixLen  = 4

	// Attempts before giving up on finding a free generated username.
	maxGenerateAttempts = 5

	suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// UsernameRegistry enforces the global username namespace: validation,
// advisory availability checks, and candidate generation for flows where
// the user never picks a name (guest creation and OAuth sign-up).
//
// The registry's checks are best-effort for responsiveness; the account
// store's uniqueness constraint is the source of truth, and callers must
// treat an insert-time conflict after a positive check as expected.
type UsernameRegistry struct {
	accounts AccountStore
}

// NewUsernameRegistry creates a new username registry.
func NewUsernameRegistry(accounts AccountStore) *UsernameRegistry {
	return &UsernameRegistry{accounts: accounts}
}

// CheckAvailable validates the candidate and reports whether any account,
// guest or permanent, currently holds it (case-insensitive). Validation
// errors take precedence over the taken check, so malformed input never
// touches the store. Idempotent and side-effect free; safe to call at any
// frequency.
func (r *UsernameRegistry) CheckAvailable(ctx context.Context, candidate string) error {
	if err := ValidateUsername(candidate); err != nil {
		return err
	}
	taken, err := r.accounts.ExistsByUsername(ctx, candidate)
	if err != nil {
		return err
	}
	if taken {
		return domain.ErrUsernameTaken
	}
	return nil
}

// FromDisplayName derives a username candidate from a display name:
// lowercased with non-alphanumerics stripped, padded to the minimum length
// if needed. On collision a short random suffix is appended, retrying a
// bounded number of times before domain.ErrUsernameExhausted.
//
// The returned candidate passed an advisory check only; the caller still
// retries allocation on an insert-time conflict.
func (r *UsernameRegistry) FromDisplayName(ctx context.Context, displayName string) (string, error) {
	base := usernameBase(displayName)

	candidate := base
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		taken, err := r.accounts.ExistsByUsername(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		suffix, err := randomSuffix(baseSuffixLen)
		if err != nil {
			return "", err
		}
		candidate = truncateUsername(base, usernameMaxLen-len(suffix)) + suffix
	}
	return "", domain.ErrUsernameExhausted
}

// GuestHandle generates a guest username of the form guest_ followed by six
// random lowercase alphanumerics, retrying on collision.
func (r *UsernameRegistry) GuestHandle(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		suffix, err := randomSuffix(guestSuffixLen)
		if err != nil {
			return "", err
		}
		candidate := guestPrefix + suffix
		taken, err := r.accounts.ExistsByUsername(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", domain.ErrUsernameExhausted
}

// usernameBase lowercases a display name and strips everything outside
// [a-z0-9]. Short or empty results are padded with random filler so the
// base always validates.
func usernameBase(displayName string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(displayName) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	base := truncateUsername(b.String(), usernameMaxLen)
	if len(base) < usernameMinLen {
		filler, err := randomSuffix(usernameMinLen + 1)
		if err != nil {
			// crypto/rand failure; fall back to a fixed stem, collisions
			// resolve through the retry suffix path.
			filler = "user"
		}
		base = truncateUsername("user"+base+filler, usernameMaxLen)
	}
	return base
}

func truncateUsername(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

// randomSuffix returns n random characters from [a-z0-9].
func randomSuffix(n int) (string, error) {
	b := make([]byte, n)
	if _, err := randomBytes(b); err != nil {
		return "", fmt.Errorf("failed to generate username suffix: %w", err)
	}
	for i := range b {
		b[i] = suffixAlphabet[int(b[i])%len(suffixAlphabet)]
	}
	return string(b), nil
}
