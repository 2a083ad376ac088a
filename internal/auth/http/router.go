package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/passwordless/internal/auth/domain"
	"github.com/aussiebroadwan/passwordless/internal/auth/revocation"
	"github.com/aussiebroadwan/passwordless/internal/auth/service"
	"github.com/aussiebroadwan/passwordless/internal/auth/store"
	"github.com/aussiebroadwan/passwordless/pkg/authsdk"
	"github.com/aussiebroadwan/passwordless/pkg/httpx"
	"github.com/aussiebroadwan/passwordless/pkg/jwtx"
	"github.com/aussiebroadwan/passwordless/pkg/slogx"

	_ "github.com/aussiebroadwan/passwordless/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// RateLimits are the transport profiles applied per route group.
type RateLimits struct {
	Auth    httpx.RateLimitConfig
	Session httpx.RateLimitConfig
	Public  httpx.RateLimitConfig
}

// DefaultRateLimits returns the httpx profiles with RATELIMIT_* overrides applied.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		Auth:    httpx.ParseRateLimitFromEnv("AUTH", httpx.AuthLimit),
		Session: httpx.ParseRateLimitFromEnv("SESSION", httpx.SessionLimit),
		Public:  httpx.ParseRateLimitFromEnv("PUBLIC", httpx.PublicLimit),
	}
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	AuthService *service.AuthService
	Limits      RateLimits

	store        store.Store
	signer       jwtx.Signer
	revocations  revocation.Registry
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
}

func NewRouter(
	auth *service.AuthService,
	st store.Store,
	signer jwtx.Signer,
	revocations revocation.Registry,
	buildVersion string,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		AuthService:  auth,
		Limits:       DefaultRateLimits(),
		store:        st,
		signer:       signer,
		revocations:  revocations,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		r.authenticate,
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerIdentity()
	r.registerAdmin()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Passwordless Authentication Service API
//	@version		0.1.0
//	@description	Email one-time-code sign in. A verified code is exchanged for an HS256 session token.
//	@description
//	@description				Tokens are validated against the live identity on every request and can be revoked by logging out.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/passwordless
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Session token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	// Code endpoints are throttled by IP here and again per address and IP by the service.
	r.Mux.Handle("POST /v1/auth/code",
		httpx.Chain(&CodeHandler{AuthService: r.AuthService},
			httpx.RateLimitByIP(r.Limits.Auth),
		),
	)
	r.Mux.Handle("POST /v1/auth/verify",
		httpx.Chain(&VerifyHandler{AuthService: r.AuthService},
			httpx.RateLimitByIP(r.Limits.Auth),
		),
	)

	// Logout accepts anonymous callers so a stale client can always clear its state.
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(&LogoutHandler{AuthService: r.AuthService},
			httpx.RateLimitByPrincipal(r.Limits.Session),
		),
	)
}

func (r *Router) registerIdentity() {
	r.Mux.Handle("GET /v1/me",
		httpx.Chain(&MeHandler{},
			httpx.RequireAuthenticated(authsdk.ErrInvalidToken),
			httpx.RateLimitByPrincipal(r.Limits.Session),
		),
	)
}

func (r *Router) registerAdmin() {
	h := &AdminIdentitiesHandler{AuthService: r.AuthService}

	r.Mux.Handle("PATCH /v1/admin/identities/{id}",
		httpx.Chain(http.HandlerFunc(h.HandleUpdate),
			httpx.RequireRole(authsdk.ErrInvalidToken, authsdk.ErrNotAnAdmin, domain.RoleAdmin.String()),
			httpx.RateLimitByPrincipal(r.Limits.Session),
		),
	)
}

func (r *Router) registerSystem() {
	// Monitoring systems may poll frequently.
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(r.Limits.Public),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.signer, r.revocations),
			httpx.RateLimitByIP(r.Limits.Public),
		),
	)
}

type authKey struct{}

func withAuthentication(ctx context.Context, a service.Authentication) context.Context {
	return context.WithValue(ctx, authKey{}, a)
}

// authenticationFromContext returns the request's Authentication, anonymous when unset.
func authenticationFromContext(ctx context.Context) service.Authentication {
	a, ok := ctx.Value(authKey{}).(service.Authentication)
	if !ok {
		return service.Anonymous()
	}
	return a
}

// authenticate resolves the bearer token once per request. The full
// Authentication is kept for handlers; httpx sees a Principal for its
// authorization and rate limit middlewares.
func (r *Router) authenticate(next http.Handler) http.Handler {
	inner := httpx.AuthenticateMiddleware(func(ctx context.Context, _ string) (httpx.Principal, bool) {
		a := authenticationFromContext(ctx)
		identity, ok := a.Identity()
		if !ok {
			return httpx.Principal{}, false
		}
		claims := a.Claims()
		return httpx.Principal{
			IdentityID: identity.ID,
			Email:      identity.Email,
			Role:       identity.Role.String(),
			TokenID:    claims.ID,
			ExpiresAt:  claims.Expiry(),
		}, true
	})(next)

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		raw, ok := httpx.BearerToken(req)
		if !ok {
			inner.ServeHTTP(w, req)
			return
		}
		a := r.AuthService.Authenticate(req.Context(), raw)
		inner.ServeHTTP(w, req.WithContext(withAuthentication(req.Context(), a)))
	})
}
