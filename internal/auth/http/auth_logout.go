package http

import (
	"net/http"

	"github.com/aussiebroadwan/passwordless/internal/auth/service"
	"github.com/aussiebroadwan/passwordless/pkg/httpx"
)

type LogoutHandler struct {
	AuthService *service.AuthService
}

// ServeHTTP revokes the bearer token, if any.
//
//	@Summary		Log out
//	@Description	Revokes the presented session token. Always succeeds, with or without a valid token.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	object
//	@Router			/v1/auth/logout [post].
func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if raw, ok := httpx.BearerToken(r); ok {
		h.AuthService.Logout(r.Context(), raw)
	}
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, struct{}{})
}
