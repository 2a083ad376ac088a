/*
Package authsdk is the Go client for the passwordless authentication service.

# Flow

Sign-in is two calls. RequestCode emails a six digit code; AuthenticateWithCode
exchanges it for a session token:

	client := authsdk.NewSDKClient("https://auth.example.com")

	if _, err := client.RequestCode(ctx, "alice@example.com"); err != nil {
		return err
	}

	session, err := client.AuthenticateWithCode(ctx, "alice@example.com", code)
	if err != nil {
		return err
	}

	me, err := session.Me(ctx)

	// Revoke the token before it expires.
	_ = session.Logout(ctx)

# Errors

Every non-2xx response is returned as *APIError. The predefined values
(ErrInvalidCode, ErrCooldownActive, ErrAccountLocked, ...) compare by code,
so errors.Is works on parsed responses:

	if errors.Is(err, authsdk.ErrCooldownActive) {
		var apiErr *authsdk.APIError
		errors.As(err, &apiErr)
		time.Sleep(time.Duration(apiErr.RetryAfter) * time.Second)
	}

The server uses the same type to write its responses, so the wire format
stays in one place.
*/
package authsdk
