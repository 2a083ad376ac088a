package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/passwordless/internal/auth/domain"
	"github.com/aussiebroadwan/passwordless/internal/auth/guard"
	"github.com/aussiebroadwan/passwordless/internal/auth/notify"
	"github.com/aussiebroadwan/passwordless/internal/auth/revocation"
	"github.com/aussiebroadwan/passwordless/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/passwordless/pkg/cryptox"
	"github.com/aussiebroadwan/passwordless/pkg/jwtx"
	"github.com/aussiebroadwan/passwordless/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const (
	testIP     = "198.51.100.10"
	testAgent  = "service-test"
	testIssuer = "passwordless-test"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type outbox struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (o *outbox) Enqueue(_ context.Context, msg notify.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) last(t *testing.T) notify.Message {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.msgs, "no message was queued")
	return o.msgs[len(o.msgs)-1]
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.msgs)
}

type harness struct {
	svc     *AuthService
	store   *sqlite.Store
	clock   *fakeClock
	outbox  *outbox
	revoked *revocation.Memory
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st, err := sqlite.NewStore(sqlite.DSN(filepath.Join(t.TempDir(), "auth.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	clk := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}

	signer, err := jwtx.NewSignerHS256(testSecret)
	require.NoError(t, err)
	verifier, err := jwtx.NewVerifierHS256(testSecret, testIssuer)
	require.NoError(t, err)

	registry := revocation.NewMemory(clk.Now)
	box := &outbox{}

	svc := &AuthService{
		Store: st,
		Codes: &CodeService{
			Store:        st,
			Pepper:       cryptox.Pepper([]byte("pepperpepperpepperpepperpepper00")),
			TTL:          DefaultCodeTTL,
			Cooldown:     DefaultCodeCooldown,
			Window:       DefaultCodeWindow,
			MaxPerWindow: DefaultMaxPerWindow,
			Now:          clk.Now,
		},
		Tokens: &TokenService{
			Signer:   signer,
			Verifier: verifier,
			Registry: registry,
			Issuer:   testIssuer,
			TTL:      jwtx.DefaultSessionTTL,
			Now:      clk.Now,
		},
		Limiter:        guard.NewFixedWindow(guard.WithFixedWindowClock(clk.Now)),
		Lockout:        guard.NewLockout(guard.LockoutConfig{}, clk.Now),
		Notifications:  box,
		AdminEmails:    []string{"Boss@Example.com"},
		RequestIPLimit: DefaultRequestIPLimit,
		VerifyIPLimit:  DefaultVerifyIPLimit,
		Now:            clk.Now,
	}

	return &harness{svc: svc, store: st, clock: clk, outbox: box, revoked: registry}
}

// signIn runs the whole flow and returns the verification result.
func (h *harness) signIn(t *testing.T, email string) *VerifyResult {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.svc.RequestCode(ctx, email, testIP, testAgent))
	res, err := h.svc.VerifyCode(ctx, email, h.outbox.last(t).Code, testIP, testAgent)
	require.NoError(t, err)
	return res
}

func (h *harness) identity(t *testing.T, email string) domain.Identity {
	t.Helper()
	identity, err := h.store.Identities().GetIdentityByEmail(context.Background(), domain.NormalizeEmail(email))
	require.NoError(t, err)
	return identity
}

func wrongCode(code string) string {
	if code == "000000" {
		return "000001"
	}
	return "000000"
}

func TestValidateEmail(t *testing.T) {
	t.Parallel()

	addr, err := ValidateEmail("  Alice@Example.COM ")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", addr)

	for _, bad := range []string{"", "not-an-email", "Bob <bob@example.com>", "a@b@c"} {
		_, err := ValidateEmail(bad)
		require.ErrorIs(t, err, ErrInvalidEmail, "input %q", bad)
	}
}

func TestSignInFlow(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.svc.RequestCode(ctx, "New.User@Example.com", testIP, testAgent))

	fresh := h.identity(t, "new.user@example.com")
	require.Equal(t, domain.RoleUser, fresh.Role)
	require.False(t, fresh.Active)
	require.False(t, fresh.EmailVerified)
	require.NotNil(t, fresh.LastCodeSentAt)

	msg := h.outbox.last(t)
	require.Equal(t, "new.user@example.com", msg.To)
	require.True(t, cryptox.IsNumericCode(msg.Code, cryptox.CodeDigits))
	require.Contains(t, msg.Body, msg.Code)

	res, err := h.svc.VerifyCode(ctx, "new.user@example.com", msg.Code, testIP, testAgent)
	require.NoError(t, err)
	require.True(t, res.FirstVerification)
	require.True(t, res.Identity.Active)
	require.True(t, res.Identity.EmailVerified)
	require.NotNil(t, res.Identity.LastLoginAt)
	require.True(t, h.clock.Now().Add(24*time.Hour).Equal(res.ExpiresAt))

	auth := h.svc.Authenticate(ctx, res.Token)
	require.False(t, auth.IsAnonymous())
	who, ok := auth.Identity()
	require.True(t, ok)
	require.Equal(t, fresh.ID, who.ID)
	require.Equal(t, "new.user@example.com", auth.Claims().Subject)

	// A code works once.
	_, err = h.svc.VerifyCode(ctx, "new.user@example.com", msg.Code, testIP, testAgent)
	require.ErrorIs(t, err, ErrInvalidCode)
}

func TestSecondSignInIsNotFirstVerification(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	require.True(t, h.signIn(t, "repeat@example.com").FirstVerification)
	h.clock.Advance(DefaultCodeWindow + time.Second)
	require.False(t, h.signIn(t, "repeat@example.com").FirstVerification)
}

func TestAdminEmailProvisionedAsAdmin(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	res := h.signIn(t, "boss@example.com")
	require.Equal(t, domain.RoleAdmin, res.Identity.Role)
}

func TestRequestCode_Cooldown(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.svc.RequestCode(ctx, "cool@example.com", testIP, testAgent))
	h.clock.Advance(15 * time.Second)

	err := h.svc.RequestCode(ctx, "cool@example.com", testIP, testAgent)
	require.ErrorIs(t, err, ErrCooldownActive)

	var cooldown *CooldownError
	require.ErrorAs(t, err, &cooldown)
	require.Equal(t, 45, cooldown.SecondsRemaining())
	require.Equal(t, 1, h.outbox.len())
}

func TestRequestCode_WindowLimit(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.svc.RequestCode(ctx, "window@example.com", testIP, testAgent))

	// Past the cooldown but inside the three minute window.
	h.clock.Advance(DefaultCodeCooldown + time.Second)
	err := h.svc.RequestCode(ctx, "window@example.com", testIP, testAgent)
	require.ErrorIs(t, err, ErrRateLimitExceeded)

	var limited *RateLimitError
	require.ErrorAs(t, err, &limited)
	require.Equal(t, 3, limited.WindowMinutes())

	// The window start is inclusive.
	h.clock.Advance(DefaultCodeWindow - DefaultCodeCooldown - time.Second)
	require.ErrorIs(t, h.svc.RequestCode(ctx, "window@example.com", testIP, testAgent), ErrRateLimitExceeded)

	h.clock.Advance(time.Millisecond)
	require.NoError(t, h.svc.RequestCode(ctx, "window@example.com", testIP, testAgent))
}

func TestRequestCode_NewCodeInvalidatesOld(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.svc.RequestCode(ctx, "swap@example.com", testIP, testAgent))
	first := h.outbox.last(t).Code

	h.clock.Advance(4 * time.Minute)
	require.NoError(t, h.svc.RequestCode(ctx, "swap@example.com", testIP, testAgent))
	second := h.outbox.last(t).Code

	identity := h.identity(t, "swap@example.com")
	unused, err := h.store.VerificationCodes().ListUnusedVerificationCodes(ctx, identity.ID)
	require.NoError(t, err)
	require.Len(t, unused, 1, "only the newest code may stay live")

	if first != second {
		_, err = h.svc.VerifyCode(ctx, "swap@example.com", first, testIP, testAgent)
		require.ErrorIs(t, err, ErrInvalidCode)
	}
	_, err = h.svc.VerifyCode(ctx, "swap@example.com", second, testIP, testAgent)
	require.NoError(t, err)
}

func TestVerifyCode_Expiry(t *testing.T) {
	t.Parallel()

	t.Run("valid at the exact expiry instant", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		require.NoError(t, h.svc.RequestCode(ctx, "edge@example.com", testIP, testAgent))

		h.clock.Advance(DefaultCodeTTL)
		_, err := h.svc.VerifyCode(ctx, "edge@example.com", h.outbox.last(t).Code, testIP, testAgent)
		require.NoError(t, err)
	})

	t.Run("expired code records the attempt", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		require.NoError(t, h.svc.RequestCode(ctx, "late@example.com", testIP, testAgent))

		h.clock.Advance(DefaultCodeTTL + time.Millisecond)
		_, err := h.svc.VerifyCode(ctx, "late@example.com", h.outbox.last(t).Code, testIP, testAgent)
		require.ErrorIs(t, err, ErrCodeExpired)

		identity := h.identity(t, "late@example.com")
		unused, err := h.store.VerificationCodes().ListUnusedVerificationCodes(ctx, identity.ID)
		require.NoError(t, err)
		require.Len(t, unused, 1)
		require.Equal(t, 1, unused[0].AttemptCount)
		require.NotNil(t, unused[0].LastAttemptAt)
		require.False(t, identity.EmailVerified)
	})
}

func TestVerifyCode_UnknownEmailAndMalformedCode(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.VerifyCode(ctx, "ghost@example.com", "123456", testIP, testAgent)
	require.ErrorIs(t, err, ErrInvalidCode)

	require.NoError(t, h.svc.RequestCode(ctx, "typo@example.com", testIP, testAgent))
	_, err = h.svc.VerifyCode(ctx, "typo@example.com", "12ab56", testIP, testAgent)
	require.ErrorIs(t, err, ErrInvalidCode)

	_, err = h.svc.VerifyCode(ctx, "nope", "123456", testIP, testAgent)
	require.ErrorIs(t, err, ErrInvalidEmail)
}

func TestVerifyCode_Lockout(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.svc.RequestCode(ctx, "victim@example.com", testIP, testAgent))
	code := h.outbox.last(t).Code

	for i := range 5 {
		_, err := h.svc.VerifyCode(ctx, "victim@example.com", wrongCode(code), testIP, testAgent)
		require.ErrorIs(t, err, ErrInvalidCode, "attempt %d", i+1)
	}

	// Even the right code is refused while locked.
	_, err := h.svc.VerifyCode(ctx, "victim@example.com", code, testIP, testAgent)
	require.ErrorIs(t, err, ErrAccountLocked)

	var locked *AccountLockedError
	require.ErrorAs(t, err, &locked)
	require.Equal(t, h.clock.Now().Add(30*time.Minute), locked.Until)

	h.clock.Advance(30*time.Minute + time.Second)
	_, err = h.svc.VerifyCode(ctx, "victim@example.com", code, testIP, testAgent)
	require.ErrorIs(t, err, ErrCodeExpired, "lock lifted, code itself has lapsed")
}

func TestRequestCode_IPThrottle(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.svc.RequestIPLimit = IPLimit{Max: 2, Window: time.Minute}
	ctx := context.Background()

	require.NoError(t, h.svc.RequestCode(ctx, "one@example.com", testIP, testAgent))
	require.NoError(t, h.svc.RequestCode(ctx, "two@example.com", testIP, testAgent))

	err := h.svc.RequestCode(ctx, "three@example.com", testIP, testAgent)
	var limited *RateLimitError
	require.ErrorAs(t, err, &limited)
	require.Equal(t, 60, limited.RetryAfterSeconds())

	// Other addresses are unaffected.
	require.NoError(t, h.svc.RequestCode(ctx, "three@example.com", "192.0.2.1", testAgent))
}

func TestRequestCode_NotificationFailureIsSwallowed(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.outbox.err = errors.New("queue full")

	require.NoError(t, h.svc.RequestCode(context.Background(), "quiet@example.com", testIP, testAgent))
	require.NotNil(t, h.identity(t, "quiet@example.com").LastCodeSentAt)
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	t.Run("empty and garbage tokens are anonymous", func(t *testing.T) {
		h := newHarness(t)
		require.True(t, h.svc.Authenticate(context.Background(), "").IsAnonymous())
		require.True(t, h.svc.Authenticate(context.Background(), "a.b.c").IsAnonymous())
	})

	t.Run("logout revokes the token", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		res := h.signIn(t, "leaver@example.com")

		h.svc.Logout(ctx, res.Token)
		require.True(t, h.svc.Authenticate(ctx, res.Token).IsAnonymous())

		// Logging out twice, or with junk, is harmless.
		h.svc.Logout(ctx, res.Token)
		h.svc.Logout(ctx, "junk")
	})

	t.Run("expired token is anonymous", func(t *testing.T) {
		h := newHarness(t)
		res := h.signIn(t, "old@example.com")

		h.clock.Advance(24 * time.Hour)
		require.True(t, h.svc.Authenticate(context.Background(), res.Token).IsAnonymous())
	})

	t.Run("deactivated identity is anonymous", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		res := h.signIn(t, "gone@example.com")

		identity := h.identity(t, "gone@example.com")
		identity.Active = false
		require.NoError(t, h.store.Identities().UpdateIdentity(ctx, identity))

		require.True(t, h.svc.Authenticate(ctx, res.Token).IsAnonymous())
	})

	t.Run("token from another issuer is anonymous", func(t *testing.T) {
		h := newHarness(t)
		res := h.signIn(t, "elsewhere@example.com")

		other, err := jwtx.NewVerifierHS256(testSecret, "someone-else")
		require.NoError(t, err)
		h.svc.Tokens.Verifier = other
		require.True(t, h.svc.Authenticate(context.Background(), res.Token).IsAnonymous())
	})
}

func TestUpdateIdentity(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	admin := h.svc.Authenticate(ctx, h.signIn(t, "boss@example.com").Token)
	user := h.signIn(t, "worker@example.com")
	userAuth := h.svc.Authenticate(ctx, user.Token)

	promote := domain.RoleAdmin
	patch := IdentityPatch{Role: &promote}

	_, err := h.svc.UpdateIdentity(ctx, Anonymous(), user.Identity.ID, patch)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.svc.UpdateIdentity(ctx, userAuth, user.Identity.ID, patch)
	require.ErrorIs(t, err, ErrNotAnAdmin)

	_, err = h.svc.UpdateIdentity(ctx, admin, "01ARZ3NDEKTSV4RRFFQ69G5FAV", patch)
	require.ErrorIs(t, err, ErrIdentityNotFound)

	updated, err := h.svc.UpdateIdentity(ctx, admin, user.Identity.ID, patch)
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, updated.Role)
	require.True(t, updated.Active)

	// A token minted as USER stops validating once the role changes.
	require.True(t, h.svc.Authenticate(ctx, user.Token).IsAnonymous())

	h.clock.Advance(DefaultCodeWindow + time.Second)
	promoted := h.signIn(t, "worker@example.com")
	who, ok := h.svc.Authenticate(ctx, promoted.Token).Identity()
	require.True(t, ok)
	require.Equal(t, domain.RoleAdmin, who.Role)
	require.Equal(t, "ADMIN", h.svc.Authenticate(ctx, promoted.Token).Claims().Role)

	deactivate := false
	_, err = h.svc.UpdateIdentity(ctx, admin, user.Identity.ID, IdentityPatch{Active: &deactivate})
	require.NoError(t, err)
	require.True(t, h.svc.Authenticate(ctx, promoted.Token).IsAnonymous())
}

func TestAuthenticate_RoleMustMatchToken(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	res := h.signIn(t, "mover@example.com")
	require.False(t, h.svc.Authenticate(ctx, res.Token).IsAnonymous())

	identity := h.identity(t, "mover@example.com")
	identity.Role = domain.RoleAdmin
	require.NoError(t, h.store.Identities().UpdateIdentity(ctx, identity))
	require.True(t, h.svc.Authenticate(ctx, res.Token).IsAnonymous())

	// Restoring the role restores the token; nothing else was revoked.
	identity.Role = domain.RoleUser
	require.NoError(t, h.store.Identities().UpdateIdentity(ctx, identity))
	require.False(t, h.svc.Authenticate(ctx, res.Token).IsAnonymous())
}

func TestHousekeeping_RunOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	res := h.signIn(t, "tidy@example.com")
	h.svc.Logout(ctx, res.Token)
	_, err := h.svc.VerifyCode(ctx, "tidy@example.com", "000000", testIP, testAgent)
	require.Error(t, err)

	hk := NewHousekeepingService(h.store, slogx.Discard(), time.Minute)
	hk.Guards["lockout"] = h.svc.Lockout
	hk.Guards["limiter"] = h.svc.Limiter
	hk.Revocations = h.revoked
	hk.Now = h.clock.Now

	h.clock.Advance(DefaultCodeRetention + time.Hour)
	hk.RunOnce(ctx)

	n, err := h.store.VerificationCodes().CountVerificationCodesSince(ctx, res.Identity.ID, time.Time{})
	require.NoError(t, err)
	require.Zero(t, n)
	require.Zero(t, h.svc.Limiter.Len())

	// The slow pass waits for its own cadence.
	hk.CodeRetention = 5 * time.Minute
	require.NoError(t, h.svc.RequestCode(ctx, "tidy@example.com", testIP, testAgent))
	h.clock.Advance(10 * time.Minute)
	hk.RunOnce(ctx)
	n, err = h.store.VerificationCodes().CountVerificationCodesSince(ctx, res.Identity.ID, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	h.clock.Advance(DefaultRevocationSweep)
	hk.RunOnce(ctx)
	n, err = h.store.VerificationCodes().CountVerificationCodesSince(ctx, res.Identity.ID, time.Time{})
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestTokenValidate_Claims(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	res := h.signIn(t, "case@example.com")
	claims, err := h.svc.Tokens.Parse(res.Token)
	require.NoError(t, err)

	t.Run("subject compared case-insensitively", func(t *testing.T) {
		c := claims
		c.Subject = strings.ToUpper(c.Subject)
		require.NoError(t, h.svc.Tokens.Validate(ctx, c, res.Identity))
	})

	t.Run("other subject", func(t *testing.T) {
		c := claims
		c.Subject = "someone@example.com"
		require.ErrorIs(t, h.svc.Tokens.Validate(ctx, c, res.Identity), ErrUnauthorized)
	})

	t.Run("role differs from identity", func(t *testing.T) {
		identity := res.Identity
		identity.Role = domain.RoleAdmin
		require.ErrorIs(t, h.svc.Tokens.Validate(ctx, claims, identity), ErrUnauthorized)
	})
}
