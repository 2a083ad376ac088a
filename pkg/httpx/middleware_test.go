package httpx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aussiebroadwan/passwordless/pkg/httpx"
	"github.com/stretchr/testify/require"
)

type statusError int

func (s statusError) WriteError(w http.ResponseWriter) { w.WriteHeader(int(s)) }

func fakeAuthenticator(ctx context.Context, token string) (httpx.Principal, bool) {
	switch token {
	case "user-token":
		return httpx.Principal{IdentityID: "u1", Role: "USER"}, true
	case "admin-token":
		return httpx.Principal{IdentityID: "a1", Role: "ADMIN"}, true
	}
	return httpx.Principal{}, false
}

func withBearer(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestBearerToken(t *testing.T) {
	tok, ok := httpx.BearerToken(withBearer("abc"))
	require.True(t, ok)
	require.Equal(t, "abc", tok)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "bearer   xyz ")
	tok, ok = httpx.BearerToken(r)
	require.True(t, ok)
	require.Equal(t, "xyz", tok)

	r.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	_, ok = httpx.BearerToken(r)
	require.False(t, ok)

	_, ok = httpx.BearerToken(withBearer(""))
	require.False(t, ok)
}

func TestAuthenticateMiddlewareFallsThroughAnonymous(t *testing.T) {
	var got *httpx.Principal
	h := httpx.AuthenticateMiddleware(fakeAuthenticator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = nil
		if p, ok := httpx.PrincipalFromContext(r.Context()); ok {
			got = &p
		}
	}))

	for _, tok := range []string{"", "garbage"} {
		rec := serve(h, withBearer(tok))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Nil(t, got)
	}

	serve(h, withBearer("user-token"))
	require.NotNil(t, got)
	require.Equal(t, "u1", got.IdentityID)
}

func TestAuthorizationChain(t *testing.T) {
	const unauthorized, forbidden = statusError(http.StatusUnauthorized), statusError(http.StatusForbidden)

	me := httpx.Chain(okHandler,
		httpx.AuthenticateMiddleware(fakeAuthenticator),
		httpx.RequireAuthenticated(unauthorized),
	)
	admin := httpx.Chain(okHandler,
		httpx.AuthenticateMiddleware(fakeAuthenticator),
		httpx.RequireRole(unauthorized, forbidden, "ADMIN"),
	)

	tests := []struct {
		name    string
		handler http.Handler
		token   string
		want    int
	}{
		{"anonymous me", me, "", http.StatusUnauthorized},
		{"bad token me", me, "nope", http.StatusUnauthorized},
		{"user me", me, "user-token", http.StatusOK},
		{"anonymous admin", admin, "", http.StatusUnauthorized},
		{"user admin", admin, "user-token", http.StatusForbidden},
		{"admin admin", admin, "admin-token", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, serve(tt.handler, withBearer(tt.token)).Code)
		})
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	serve(httpx.Chain(okHandler, mark("outer"), mark("inner")), withBearer(""))
	require.Equal(t, []string{"outer", "inner"}, order)
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Email string `json:"email"`
	}

	decode := func(raw string) (body, error) {
		var b body
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(raw))
		err := httpx.DecodeJSON(httptest.NewRecorder(), r, &b)
		return b, err
	}

	b, err := decode(`{"email":"a@b.com"}`)
	require.NoError(t, err)
	require.Equal(t, "a@b.com", b.Email)

	_, err = decode(`{"email":"a@b.com","extra":1}`)
	require.Error(t, err)

	_, err = decode(`{"email":"a@b.com"}{}`)
	require.Error(t, err)

	_, err = decode(`not json`)
	require.Error(t, err)
}
