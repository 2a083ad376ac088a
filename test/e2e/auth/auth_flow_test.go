package auth_test

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/passwordless/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func TestHealthEndpoints(t *testing.T) {
	c := setupAuthContainer(t, nil)
	client := authsdk.NewSDKClient(c.BaseURL)

	health, err := client.GetLiveness(t.Context())
	assertHealthy(t, health, err)

	ready, err := client.GetReadiness(t.Context())
	assertHealthy(t, ready, err)
	require.Equal(t, "ok", ready.Checks.Database)
	require.Equal(t, "ok", ready.Checks.Signer)
}

// TestPasswordlessSignIn walks a new address through request, verify, me and logout.
func TestPasswordlessSignIn(t *testing.T) {
	c := setupAuthContainer(t, nil)
	client := authsdk.NewSDKClient(c.BaseURL)
	ctx := context.Background()

	_, err := client.RequestCode(ctx, "Reader@Example.com")
	require.NoError(t, err)

	verified, err := client.VerifyCode(ctx, "reader@example.com", c.latestCode(t, "reader@example.com"))
	require.NoError(t, err)
	require.True(t, verified.FirstVerification)
	require.Equal(t, "Bearer", verified.TokenType)

	session := client.NewSessionFromToken(verified.AccessToken, verified.ExpiresAt)
	me, err := session.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, "reader@example.com", me.Email)
	require.Equal(t, "USER", me.Role)
	require.True(t, me.Active)

	require.NoError(t, session.Logout(ctx))

	_, err = client.NewSessionFromToken(verified.AccessToken, verified.ExpiresAt).Me(ctx)
	require.ErrorIs(t, err, authsdk.ErrInvalidToken, "revoked token must not authenticate")
}

func TestCodeCannotBeReused(t *testing.T) {
	c := setupAuthContainer(t, nil)
	client := authsdk.NewSDKClient(c.BaseURL)
	ctx := context.Background()

	_, err := client.RequestCode(ctx, "once@example.com")
	require.NoError(t, err)
	code := c.latestCode(t, "once@example.com")

	_, err = client.VerifyCode(ctx, "once@example.com", code)
	require.NoError(t, err)

	_, err = client.VerifyCode(ctx, "once@example.com", code)
	require.ErrorIs(t, err, authsdk.ErrInvalidCode)
}

func TestCooldownBetweenRequests(t *testing.T) {
	c := setupAuthContainer(t, nil)
	client := authsdk.NewSDKClient(c.BaseURL)
	ctx := context.Background()

	_, err := client.RequestCode(ctx, "eager@example.com")
	require.NoError(t, err)

	_, err = client.RequestCode(ctx, "eager@example.com")
	require.ErrorIs(t, err, authsdk.ErrCooldownActive)

	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Positive(t, apiErr.RetryAfter)
}

func TestLockoutAfterFailedAttempts(t *testing.T) {
	c := setupAuthContainer(t, nil)
	client := authsdk.NewSDKClient(c.BaseURL)
	ctx := context.Background()

	_, err := client.RequestCode(ctx, "guessed@example.com")
	require.NoError(t, err)
	code := c.latestCode(t, "guessed@example.com")

	wrong := "000000"
	if code == wrong {
		wrong = "000001"
	}
	for range 5 {
		_, err := client.VerifyCode(ctx, "guessed@example.com", wrong)
		require.ErrorIs(t, err, authsdk.ErrInvalidCode)
	}

	_, err = client.VerifyCode(ctx, "guessed@example.com", code)
	require.ErrorIs(t, err, authsdk.ErrAccountLocked)

	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.NotNil(t, apiErr.LockedUntil)
}

func TestAdminDeactivatesIdentity(t *testing.T) {
	c := setupAuthContainer(t, nil)
	client := authsdk.NewSDKClient(c.BaseURL)
	ctx := context.Background()

	admin := signIn(t, c, client, adminEmail)
	user := signIn(t, c, client, "member@example.com")

	me, err := user.Me(ctx)
	require.NoError(t, err)

	_, err = user.UpdateIdentity(ctx, me.ID, authsdk.UpdateIdentityRequest{})
	require.ErrorIs(t, err, authsdk.ErrNotAnAdmin)

	off := false
	updated, err := admin.UpdateIdentity(ctx, me.ID, authsdk.UpdateIdentityRequest{Active: &off})
	require.NoError(t, err)
	require.False(t, updated.Active)

	_, err = user.Me(ctx)
	require.ErrorIs(t, err, authsdk.ErrInvalidToken)
}

func TestTransportRateLimit(t *testing.T) {
	c := setupAuthContainer(t, map[string]string{
		"RATELIMIT_PUBLIC_REQUESTS": "2",
		"RATELIMIT_PUBLIC_BURST":    "2",
	})
	client := authsdk.NewSDKClient(c.BaseURL)

	var limited bool
	for range 10 {
		if _, err := client.GetLiveness(t.Context()); err != nil {
			require.ErrorIs(t, err, authsdk.ErrRateLimitExceeded)
			limited = true
			break
		}
	}
	require.True(t, limited, "public endpoints should be throttled")
}
