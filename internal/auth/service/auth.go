package service

import (
	"context"
	"errors"
	"net/mail"
	"slices"
	"time"

	"github.com/aussiebroadwan/passwordless/internal/auth/domain"
	"github.com/aussiebroadwan/passwordless/internal/auth/guard"
	"github.com/aussiebroadwan/passwordless/internal/auth/notify"
	"github.com/aussiebroadwan/passwordless/internal/auth/store"
	"github.com/aussiebroadwan/passwordless/pkg/idx"
	"github.com/aussiebroadwan/passwordless/pkg/jwtx"
	"github.com/aussiebroadwan/passwordless/pkg/slogx"
)

// MaxEmailLength is the longest address accepted, per RFC 5321.
const MaxEmailLength = 254

// Enqueuer hands a message to the delivery pipeline without waiting for it.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg notify.Message) error
}

// IPLimit is a fixed-window quota applied per client address.
type IPLimit struct {
	Max    int
	Window time.Duration
}

var (
	DefaultRequestIPLimit = IPLimit{Max: 10, Window: time.Minute}
	DefaultVerifyIPLimit  = IPLimit{Max: 20, Window: time.Minute}
)

// AuthService ties the passwordless flow together: code requests, code
// verification, logout and per-request authentication.
type AuthService struct {
	Store         store.Store
	Codes         *CodeService
	Tokens        *TokenService
	Limiter       *guard.FixedWindow
	Lockout       *guard.Lockout
	Notifications Enqueuer

	// AdminEmails are provisioned with the ADMIN role on first sight.
	AdminEmails []string

	RequestIPLimit IPLimit
	VerifyIPLimit  IPLimit

	Now func() time.Time
}

// VerifyResult is returned to the client after a successful verification.
type VerifyResult struct {
	Token             string
	ExpiresAt         time.Time
	Identity          domain.Identity
	FirstVerification bool
}

// IdentityPatch holds the fields an administrator may change.
type IdentityPatch struct {
	Role   *domain.Role
	Active *bool
}

// ValidateEmail normalises email and rejects anything that is not a bare address.
func ValidateEmail(email string) (string, error) {
	addr := domain.NormalizeEmail(email)
	if addr == "" || len(addr) > MaxEmailLength {
		return "", ErrInvalidEmail
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr {
		return "", ErrInvalidEmail
	}
	return addr, nil
}

// RequestCode issues a code for email and queues it for delivery. Unknown
// addresses are provisioned as inactive, unverified identities.
//
// Delivery problems are logged and never reach the caller: the code is
// already stored by the time the message is queued.
func (s *AuthService) RequestCode(ctx context.Context, email, ip, userAgent string) error {
	addr, err := ValidateEmail(email)
	if err != nil {
		return err
	}
	log := slogx.FromContext(ctx).With("email", slogx.MaskEmail(addr))

	if err := s.allowIP("code:request:ip:", ip, s.RequestIPLimit); err != nil {
		log.Warn("code request throttled by ip", "ip", ip)
		return err
	}

	identity, err := s.findOrProvision(ctx, addr)
	if err != nil {
		return err
	}

	issued, err := s.Codes.Issue(ctx, identity, ip, userAgent)
	if err != nil {
		return err
	}
	log.Info("verification code issued", "identity_id", identity.ID, "code_id", issued.Record.ID)

	msg := notify.CodeMessage(addr, issued.Code, s.Codes.TTL)
	if err := s.Notifications.Enqueue(ctx, msg); err != nil {
		log.Error("verification code not queued for delivery", "identity_id", identity.ID, "error", err)
	}
	return nil
}

// VerifyCode exchanges a code for a session token.
func (s *AuthService) VerifyCode(ctx context.Context, email, code, ip, userAgent string) (*VerifyResult, error) {
	addr, err := ValidateEmail(email)
	if err != nil {
		return nil, err
	}
	log := slogx.FromContext(ctx).With("email", slogx.MaskEmail(addr))

	if err := s.allowIP("code:verify:ip:", ip, s.VerifyIPLimit); err != nil {
		log.Warn("code verification throttled by ip", "ip", ip)
		return nil, err
	}

	if err := s.Lockout.CanAttempt(addr, ip); err != nil {
		log.Warn("code verification refused by lockout", "ip", ip, "error", err)
		return nil, err
	}

	identity, err := s.Store.Identities().GetIdentityByEmail(ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		s.Lockout.RecordFailure(addr, ip)
		return nil, ErrInvalidCode
	}
	if err != nil {
		return nil, err
	}

	outcome, err := s.Codes.Verify(ctx, identity, code, ip, userAgent)
	if err != nil {
		if errors.Is(err, ErrInvalidCode) || errors.Is(err, ErrCodeExpired) {
			s.Lockout.RecordFailure(addr, ip)
			log.Info("code verification failed", "identity_id", identity.ID, "reason", err.Error())
		}
		return nil, err
	}
	s.Lockout.RecordSuccess(addr, ip)

	tok, err := s.Tokens.Issue(outcome.Identity)
	if err != nil {
		return nil, err
	}

	log.Info("identity signed in",
		"identity_id", outcome.Identity.ID,
		"token_id", tok.TokenID,
		"first_verification", outcome.FirstVerification,
	)

	return &VerifyResult{
		Token:             tok.Token,
		ExpiresAt:         tok.ExpiresAt,
		Identity:          outcome.Identity,
		FirstVerification: outcome.FirstVerification,
	}, nil
}

// Logout revokes raw. It always succeeds from the caller's point of view;
// an unreadable token is logged and otherwise ignored.
func (s *AuthService) Logout(ctx context.Context, raw string) {
	if raw == "" {
		return
	}
	if err := s.Tokens.Revoke(ctx, raw); err != nil {
		slogx.FromContext(ctx).Warn("logout could not revoke token", "error", err)
	}
}

// Authenticate resolves a bearer token to an identity. Any failure yields
// the anonymous result; requests are never rejected here.
func (s *AuthService) Authenticate(ctx context.Context, raw string) Authentication {
	if raw == "" {
		return Anonymous()
	}
	log := slogx.FromContext(ctx)

	claims, err := s.Tokens.Parse(raw)
	if err != nil {
		log.Debug("bearer token rejected", "error", err)
		return Anonymous()
	}

	identity, err := s.Store.Identities().GetIdentityByEmail(ctx, claims.Subject)
	if err != nil {
		log.Debug("bearer token subject unknown", "error", err)
		return Anonymous()
	}

	if err := s.Tokens.Validate(ctx, claims, identity); err != nil {
		log.Debug("bearer token failed validation", "identity_id", identity.ID, "error", err)
		return Anonymous()
	}
	return Authentication{identity: &identity, claims: claims}
}

// UpdateIdentity applies patch to the identity with id on behalf of actor.
func (s *AuthService) UpdateIdentity(
	ctx context.Context,
	actor Authentication,
	id string,
	patch IdentityPatch,
) (domain.Identity, error) {
	who, ok := actor.Identity()
	if !ok {
		return domain.Identity{}, ErrUnauthorized
	}
	if who.Role != domain.RoleAdmin {
		return domain.Identity{}, ErrNotAnAdmin
	}

	var updated domain.Identity
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		target, err := tx.Identities().GetIdentityByID(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return ErrIdentityNotFound
		}
		if err != nil {
			return err
		}

		if patch.Role != nil {
			target.Role = *patch.Role
		}
		if patch.Active != nil {
			target.Active = *patch.Active
		}
		target.UpdatedAt = s.now()

		if err := tx.Identities().UpdateIdentity(ctx, target); err != nil {
			return err
		}
		updated = target
		return nil
	})
	if err != nil {
		return domain.Identity{}, err
	}

	slogx.FromContext(ctx).Info("identity updated by admin",
		"identity_id", updated.ID,
		"admin_id", who.ID,
		"role", updated.Role,
		"active", updated.Active,
	)
	return updated, nil
}

func (s *AuthService) findOrProvision(ctx context.Context, email string) (domain.Identity, error) {
	identity, err := s.Store.Identities().GetIdentityByEmail(ctx, email)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.Identity{}, err
	}

	now := s.now()
	identity = domain.Identity{
		ID:        idx.NewAt(now).String(),
		Email:     email,
		Role:      domain.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if s.isAdminEmail(email) {
		identity.Role = domain.RoleAdmin
	}

	err = s.Store.Identities().CreateIdentity(ctx, identity)
	if errors.Is(err, store.ErrAlreadyExists) {
		// Lost a race with a concurrent request for the same address.
		return s.Store.Identities().GetIdentityByEmail(ctx, email)
	}
	if err != nil {
		return domain.Identity{}, err
	}

	slogx.FromContext(ctx).Info("identity provisioned", "identity_id", identity.ID, "role", identity.Role)
	return identity, nil
}

func (s *AuthService) isAdminEmail(email string) bool {
	return slices.ContainsFunc(s.AdminEmails, func(a string) bool {
		return domain.NormalizeEmail(a) == email
	})
}

func (s *AuthService) allowIP(prefix, ip string, limit IPLimit) error {
	if ip == "" || limit.Max <= 0 {
		return nil
	}
	key := prefix + ip
	if s.Limiter.Allow(key, limit.Max, limit.Window) {
		return nil
	}
	return &RateLimitError{Window: limit.Window, RetryAfter: s.Limiter.ResetIn(key)}
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Authentication is the outcome of Authenticate: an identity with its token
// claims, or anonymous.
type Authentication struct {
	identity *domain.Identity
	claims   jwtx.Claims
}

// Anonymous is the unauthenticated result.
func Anonymous() Authentication { return Authentication{} }

func (a Authentication) IsAnonymous() bool { return a.identity == nil }

// Identity returns the live identity, false when anonymous.
func (a Authentication) Identity() (domain.Identity, bool) {
	if a.identity == nil {
		return domain.Identity{}, false
	}
	return *a.identity, true
}

// Claims returns the validated token claims; zero when anonymous.
func (a Authentication) Claims() jwtx.Claims { return a.claims }
