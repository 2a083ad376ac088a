package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/passwordless/internal/auth/service"
	"github.com/aussiebroadwan/passwordless/pkg/authsdk"
	"github.com/aussiebroadwan/passwordless/pkg/slogx"
)

// writeServiceError maps a service error onto its API error. Anything
// unrecognised is logged and reported as server_error.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apiErrorFor(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		slogx.FromContext(r.Context()).Error("request failed", "error", err)
	}
	apiErr.WriteError(w)
}

func apiErrorFor(err error) *authsdk.APIError {
	var (
		cooldown *service.CooldownError
		limited  *service.RateLimitError
		locked   *service.AccountLockedError
	)

	switch {
	case errors.Is(err, service.ErrInvalidEmail):
		return authsdk.ErrInvalidEmail

	case errors.As(err, &cooldown):
		e := authsdk.ErrCooldownActive.With(fmt.Sprintf(
			"please wait %d seconds before requesting a new code", cooldown.SecondsRemaining()))
		e.RetryAfter = max(cooldown.SecondsRemaining(), 1)
		return e

	case errors.As(err, &limited):
		e := authsdk.ErrRateLimitExceeded.With(fmt.Sprintf(
			"too many requests, limit resets within %d minutes", limited.WindowMinutes()))
		e.RetryAfter = limited.RetryAfterSeconds()
		return e

	case errors.Is(err, service.ErrCodeExpired):
		return authsdk.ErrCodeExpired

	case errors.Is(err, service.ErrInvalidCode):
		return authsdk.ErrInvalidCode

	case errors.As(err, &locked):
		e := authsdk.ErrAccountLocked.With("too many failed attempts, account locked until " +
			locked.Until.UTC().Format("15:04:05 MST"))
		until := locked.Until.UTC()
		e.LockedUntil = &until
		return e

	case errors.Is(err, service.ErrTooManyAttemptsFromIP):
		return authsdk.ErrTooManyAttempts

	case errors.Is(err, service.ErrUnauthorized):
		return authsdk.ErrInvalidToken

	case errors.Is(err, service.ErrNotAnAdmin):
		return authsdk.ErrNotAnAdmin

	case errors.Is(err, service.ErrIdentityNotFound):
		return authsdk.ErrNotFound.With("identity not found")

	default:
		return authsdk.ErrServerError
	}
}
