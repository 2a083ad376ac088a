package domain

import (
	"strings"
	"time"
)

type Identity struct {
	ID             string
	Email          string // normalised, see NormalizeEmail
	Role           Role
	EmailVerified  bool
	Active         bool
	LastLoginAt    *time.Time
	LastCodeSentAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NormalizeEmail is the canonical form stored and compared everywhere.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
