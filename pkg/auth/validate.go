package auth

import (
	"html"
	"net/mail"
	"strings"
	"unicode"

	"github.com/unifra/unifra-auth/pkg/domain"
)

// Username rules: 3-30 characters, ASCII letters, digits, and underscore.
// Comparison is case-insensitive everywhere; validation happens before any
// store access so charset and length failures never reach the database.
const (
	usernameMinLen = 3
	usernameMaxLen = 30
)

const passwordMinLen = 8

// ValidateUsername checks username length and charset. Length violations
// return domain.ErrUsernameLength, charset violations
// domain.ErrUsernameCharset; availability is a separate concern.
func ValidateUsername(username string) error {
	if len(username) < usernameMinLen || len(username) > usernameMaxLen {
		return domain.ErrUsernameLength
	}
	for _, r := range username {
		if !isUsernameRune(r) {
			return domain.ErrUsernameCharset
		}
	}
	return nil
}

func isUsernameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '_':
		return true
	}
	return false
}

// ValidateEmail checks RFC 5322 address syntax.
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return domain.ErrInvalidEmail
	}
	return nil
}

// NormalizeEmail lowercases and trims an email address for storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidatePassword enforces the minimum password length.
func ValidatePassword(password string) error {
	if len(password) < passwordMinLen {
		return domain.ErrWeakPassword
	}
	return nil
}

// ValidateDisplayName enforces the minimum display name length after
// trimming.
func ValidateDisplayName(name string) error {
	if len(strings.TrimSpace(name)) < 2 {
		return domain.ErrDisplayNameLength
	}
	return nil
}

// SanitizeName sanitizes a display name (unicode-friendly).
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = removeControlChars(name)
	return html.EscapeString(name)
}

// removeControlChars removes control characters except newline and tab.
func removeControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
