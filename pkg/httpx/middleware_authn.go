package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/passwordless/pkg/slogx"
)

// AuthenticatorFunc resolves a bearer token. ok is false for anything that
// should be treated as anonymous.
type AuthenticatorFunc func(ctx context.Context, token string) (p Principal, ok bool)

// AuthenticateMiddleware never rejects a request. A valid bearer token puts
// a Principal in the context; a missing or bad one leaves it anonymous and
// the authorization middlewares decide what that means for the route.
func AuthenticateMiddleware(authn AuthenticatorFunc) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := BearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			p, ok := authn(r.Context(), raw)
			if !ok {
				slogx.FromContext(r.Context()).Debug("bearer token rejected, continuing anonymous")
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithPrincipal(r.Context(), p)
			ctx = slogx.With(ctx, "identity_id", p.IdentityID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(authz, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
