package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultSessionTTL is the lifetime of a session token when none is configured.
const DefaultSessionTTL = 24 * time.Hour

// Claims are the session-token claims, a snapshot of the identity at
// issuance. A token stops validating once the live identity's role differs
// from Role or the identity is deactivated.
type Claims struct {
	jwt.RegisteredClaims

	// IdentityID is the stable identity id (ULID).
	IdentityID string `json:"identity_id"`

	// Email duplicates the subject for clients that do not read "sub".
	Email string `json:"email"`

	// Role at issuance, e.g. "USER" or "ADMIN".
	Role string `json:"role"`

	EmailVerified bool `json:"email_verified"`
	Active        bool `json:"active"`
}

// SessionSubject is the identity snapshot a session token is minted from.
type SessionSubject struct {
	IdentityID    string
	Email         string
	Role          string
	EmailVerified bool
	Active        bool
}

// NewSessionClaims builds claims for subject with a fresh jti. The subject
// claim is the email address.
func NewSessionClaims(subject SessionSubject, issuer string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		IdentityID:    subject.IdentityID,
		Email:         subject.Email,
		Role:          subject.Role,
		EmailVerified: subject.EmailVerified,
		Active:        subject.Active,
	}
}

// NewJTI returns a random UUIDv4 for the "jti" claim.
func NewJTI() string {
	return uuid.NewString()
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateExpiry requires an exp claim and now strictly before it.
func (c *Claims) ValidateExpiry(now time.Time) error {
	if c.ExpiresAt == nil {
		return ErrInvalidClaim
	}
	if !now.Before(c.ExpiresAt.Time) {
		return ErrExpired
	}
	return nil
}

// Expiry returns the exp claim, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
