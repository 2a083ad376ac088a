package service

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/passwordless/internal/auth/domain"
	"github.com/aussiebroadwan/passwordless/internal/auth/store"
	"github.com/aussiebroadwan/passwordless/pkg/cryptox"
	"github.com/aussiebroadwan/passwordless/pkg/idx"
	"github.com/aussiebroadwan/passwordless/pkg/slogx"
)

const (
	DefaultCodeTTL      = 10 * time.Minute
	DefaultCodeCooldown = time.Minute
	DefaultCodeWindow   = 3 * time.Minute
	DefaultMaxPerWindow = 1
)

// CodeService owns the one-time code lifecycle: issue, invalidate, verify.
type CodeService struct {
	Store  store.Store
	Pepper cryptox.Pepper

	TTL          time.Duration
	Cooldown     time.Duration
	Window       time.Duration
	MaxPerWindow int

	Now func() time.Time
}

// IssuedCode is the clear-text code plus the stored record. The clear text
// exists only here; the store keeps a fingerprint.
type IssuedCode struct {
	Code   string
	Record domain.VerificationCode
}

// VerifyOutcome is the identity after a successful verification.
type VerifyOutcome struct {
	Identity domain.Identity

	// FirstVerification is true when the email had never been verified before.
	FirstVerification bool
}

// Issue creates a new code for identity after the cooldown and window checks.
//
// The checks read outside the write transaction, so two concurrent requests
// that both pass can each issue a code. The second invalidation pass after
// commit retires any code but ours that slipped in meanwhile; it narrows the
// gap without closing it. Stale codes are inert, users act on the latest one.
func (s *CodeService) Issue(ctx context.Context, identity domain.Identity, ip, userAgent string) (IssuedCode, error) {
	now := s.now()
	log := slogx.FromContext(ctx)

	if identity.LastCodeSentAt != nil {
		if next := identity.LastCodeSentAt.Add(s.Cooldown); now.Before(next) {
			return IssuedCode{}, &CooldownError{Remaining: next.Sub(now)}
		}
	}

	recent, err := s.Store.VerificationCodes().CountVerificationCodesSince(ctx, identity.ID, now.Add(-s.Window))
	if err != nil {
		return IssuedCode{}, err
	}
	if recent >= s.MaxPerWindow {
		return IssuedCode{}, &RateLimitError{Window: s.Window}
	}

	code, err := cryptox.GenerateNumericCode(cryptox.CodeDigits)
	if err != nil {
		return IssuedCode{}, err
	}

	record := domain.VerificationCode{
		ID:         idx.NewAt(now).String(),
		IdentityID: identity.ID,
		CodeHash:   s.Pepper.FingerprintCode(code),
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.TTL),
		IP:         ip,
		UserAgent:  userAgent,
		Channel:    domain.ChannelEmail,
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := invalidateUnused(ctx, tx.VerificationCodes(), identity.ID, "", now); err != nil {
			return err
		}
		if err := tx.VerificationCodes().CreateVerificationCode(ctx, record); err != nil {
			return err
		}

		current, err := tx.Identities().GetIdentityByID(ctx, identity.ID)
		if err != nil {
			return err
		}
		current.LastCodeSentAt = &now
		current.UpdatedAt = now
		return tx.Identities().UpdateIdentity(ctx, current)
	})
	if err != nil {
		return IssuedCode{}, err
	}

	n, err := invalidateUnused(ctx, s.Store.VerificationCodes(), identity.ID, record.ID, now)
	switch {
	case err != nil:
		log.Warn("second invalidation pass failed", "identity_id", identity.ID, "error", err)
	case n > 0:
		log.Info("invalidated concurrently issued codes", "identity_id", identity.ID, "count", n)
	}

	return IssuedCode{Code: code, Record: record}, nil
}

// Verify consumes code for identity. Every matched attempt is counted, even
// when the code turns out to be expired.
func (s *CodeService) Verify(
	ctx context.Context,
	identity domain.Identity,
	code, ip, userAgent string,
) (VerifyOutcome, error) {
	if !cryptox.IsNumericCode(code, cryptox.CodeDigits) {
		return VerifyOutcome{}, ErrInvalidCode
	}

	now := s.now()
	fingerprint := s.Pepper.FingerprintCode(code)

	var (
		out     VerifyOutcome
		expired bool
	)
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		rec, err := tx.VerificationCodes().GetLatestUnusedVerificationCode(ctx, identity.ID, fingerprint)
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidCode
		}
		if err != nil {
			return err
		}

		rec.AttemptCount++
		rec.LastAttemptAt = &now

		if rec.Expired(now) {
			// Commit the attempt; the code stays unused.
			expired = true
			return tx.VerificationCodes().UpdateVerificationCode(ctx, rec)
		}

		rec.Used = true
		rec.UsedAt = &now
		rec.IP = ip
		rec.UserAgent = userAgent
		if err := tx.VerificationCodes().UpdateVerificationCode(ctx, rec); err != nil {
			return err
		}

		current, err := tx.Identities().GetIdentityByID(ctx, identity.ID)
		if err != nil {
			return err
		}
		out.FirstVerification = !current.EmailVerified
		current.EmailVerified = true
		current.Active = true
		current.LastLoginAt = &now
		current.UpdatedAt = now
		if err := tx.Identities().UpdateIdentity(ctx, current); err != nil {
			return err
		}
		out.Identity = current
		return nil
	})
	if err != nil {
		return VerifyOutcome{}, err
	}
	if expired {
		return VerifyOutcome{}, ErrCodeExpired
	}
	return out, nil
}

// invalidateUnused marks every unused code of the identity as used, except keepID.
func invalidateUnused(
	ctx context.Context,
	codes store.VerificationCodes,
	identityID, keepID string,
	now time.Time,
) (int, error) {
	unused, err := codes.ListUnusedVerificationCodes(ctx, identityID)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, c := range unused {
		if c.ID == keepID {
			continue
		}
		c.Used = true
		c.UsedAt = &now
		if err := codes.UpdateVerificationCode(ctx, c); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *CodeService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
