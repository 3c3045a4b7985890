package domain

import (
	"time"

	"github.com/google/uuid"
)

// ResetCode is a single-use password reset code delivered by email.
// The code itself is stored hashed.
type ResetCode struct {
	ID         uuid.UUID
	AccountID  uuid.UUID
	CodeHash   string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// IsValid checks if the code is still usable.
func (c *ResetCode) IsValid() bool {
	if c.ConsumedAt != nil {
		return false
	}
	return time.Now().Before(c.ExpiresAt)
}
