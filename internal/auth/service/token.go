package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/passwordless/internal/auth/domain"
	"github.com/aussiebroadwan/passwordless/internal/auth/revocation"
	"github.com/aussiebroadwan/passwordless/pkg/jwtx"
	"github.com/aussiebroadwan/passwordless/pkg/slogx"
)

// TokenService mints, validates and revokes session tokens.
type TokenService struct {
	Signer   jwtx.Signer
	Verifier jwtx.Verifier
	Registry revocation.Registry
	Issuer   string
	TTL      time.Duration
	Now      func() time.Time
}

// IssuedToken is a signed session token.
type IssuedToken struct {
	Token     string
	TokenID   string
	ExpiresAt time.Time
}

// Issue signs a token that snapshots identity.
func (s *TokenService) Issue(identity domain.Identity) (IssuedToken, error) {
	ttl := s.TTL
	if ttl <= 0 {
		ttl = jwtx.DefaultSessionTTL
	}

	claims := jwtx.NewSessionClaims(jwtx.SessionSubject{
		IdentityID:    identity.ID,
		Email:         identity.Email,
		Role:          identity.Role.String(),
		EmailVerified: identity.EmailVerified,
		Active:        identity.Active,
	}, s.Issuer, ttl, s.now())

	raw, err := s.Signer.Sign(claims)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("sign session token: %w", err)
	}
	return IssuedToken{Token: raw, TokenID: claims.ID, ExpiresAt: claims.Expiry()}, nil
}

// Parse checks the signature and issuer. Time based checks happen in Validate.
func (s *TokenService) Parse(raw string) (jwtx.Claims, error) {
	claims, err := s.Verifier.Decode(raw)
	if err != nil {
		return jwtx.Claims{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return claims, nil
}

// Validate runs the per-request checks against the live identity. A token
// is good only while it is unrevoked and unexpired, its subject matches the
// identity, the identity is active with a verified email, and its role is
// the one the token was minted with.
func (s *TokenService) Validate(ctx context.Context, claims jwtx.Claims, identity domain.Identity) error {
	if claims.ID == "" {
		return fmt.Errorf("%w: missing token id", ErrUnauthorized)
	}

	revoked, err := s.Registry.IsRevoked(ctx, claims.ID)
	if err != nil {
		return fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return fmt.Errorf("%w: token revoked", ErrUnauthorized)
	}

	if err := claims.ValidateExpiry(s.now()); err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	switch {
	case !strings.EqualFold(claims.Subject, identity.Email):
		return fmt.Errorf("%w: subject mismatch", ErrUnauthorized)
	case !identity.Active:
		return fmt.Errorf("%w: identity inactive", ErrUnauthorized)
	case !identity.EmailVerified:
		return fmt.Errorf("%w: email not verified", ErrUnauthorized)
	case claims.Role != identity.Role.String():
		return fmt.Errorf("%w: role changed", ErrUnauthorized)
	}
	return nil
}

// Revoke blacklists the token id until the token's own expiry. Expired
// tokens are accepted and ignored by the registry.
func (s *TokenService) Revoke(ctx context.Context, raw string) error {
	claims, err := s.Verifier.Decode(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if claims.ID == "" {
		return errors.New("token has no id")
	}
	if err := s.Registry.Revoke(ctx, claims.ID, claims.Expiry()); err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("session token revoked",
		"token_id", claims.ID,
		"identity_id", claims.IdentityID,
	)
	return nil
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
