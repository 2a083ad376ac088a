package domain

import "time"

// ChannelEmail is the only delivery channel today.
const ChannelEmail = "email"

type VerificationCode struct {
	ID            string
	IdentityID    string
	CodeHash      string // keyed fingerprint, never the code itself
	CreatedAt     time.Time
	ExpiresAt     time.Time
	Used          bool
	UsedAt        *time.Time
	AttemptCount  int
	LastAttemptAt *time.Time
	IP            string
	UserAgent     string
	Channel       string
}

// Expired reports whether now is past the code's expiry.
func (c VerificationCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
