package auth

import (
	"errors"
	"strings"
	"testing"

	"github.com/unifra/unifra-auth/pkg/domain"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  error
	}{
		{"valid simple", "alice", nil},
		{"valid with underscore", "alice_bob", nil},
		{"valid with digits", "user123", nil},
		{"valid mixed case", "AliceBob", nil},
		{"valid min length", "abc", nil},
		{"valid max length", strings.Repeat("a", 30), nil},
		{"too short", "ab", domain.ErrUsernameLength},
		{"empty", "", domain.ErrUsernameLength},
		{"too long", strings.Repeat("a", 31), domain.ErrUsernameLength},
		{"hyphen", "alice-bob", domain.ErrUsernameCharset},
		{"space", "alice bob", domain.ErrUsernameCharset},
		{"dot", "alice.bob", domain.ErrUsernameCharset},
		{"unicode", "алиса", domain.ErrUsernameCharset},
		{"emoji", "alice😀x", domain.ErrUsernameCharset},
		// Length check runs before the charset check.
		{"short and invalid", "a!", domain.ErrUsernameLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.username)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateUsername(%q) = %v, want %v", tt.username, err, tt.wantErr)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{"valid", "alice@example.com", false},
		{"valid with plus", "alice+tag@example.com", false},
		{"empty", "", true},
		{"no at", "alice.example.com", true},
		{"no domain", "alice@", true},
		{"spaces", "alice @example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEmail(%q) = %v, wantErr %v", tt.email, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrInvalidEmail) {
				t.Errorf("ValidateEmail(%q) = %v, want domain.ErrInvalidEmail", tt.email, err)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Alice@Example.COM "); got != "alice@example.com" {
		t.Errorf("NormalizeEmail = %q, want %q", got, "alice@example.com")
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid", "correcthorse", false},
		{"exactly min", "12345678", false},
		{"too short", "1234567", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePassword(%q) = %v, wantErr %v", tt.password, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrWeakPassword) {
				t.Errorf("ValidatePassword(%q) = %v, want domain.ErrWeakPassword", tt.password, err)
			}
		})
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Alice", "Alice"},
		{"trims whitespace", "  Alice  ", "Alice"},
		{"escapes html", "<b>Alice</b>", "&lt;b&gt;Alice&lt;/b&gt;"},
		{"strips control chars", "Ali\x00ce", "Alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeName(tt.input); got != tt.want {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
