package httpx

import (
	"net/http"
	"slices"
)

// ErrorWriter is anything that can render itself as an HTTP error response.
type ErrorWriter interface {
	WriteError(w http.ResponseWriter)
}

// RequireAuthenticated rejects anonymous requests with onMissing.
func RequireAuthenticated(onMissing ErrorWriter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := PrincipalFromContext(r.Context()); !ok {
				onMissing.WriteError(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole passes callers whose role is one of roles. Anonymous callers
// get onMissing, authenticated callers with another role get onDenied.
func RequireRole(onMissing, onDenied ErrorWriter, roles ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				onMissing.WriteError(w)
				return
			}
			if !slices.Contains(roles, p.Role) {
				onDenied.WriteError(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
