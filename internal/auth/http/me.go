package http

import (
	"net/http"

	"github.com/aussiebroadwan/passwordless/pkg/authsdk"
	"github.com/aussiebroadwan/passwordless/pkg/httpx"
)

type MeHandler struct{}

// ServeHTTP returns the caller's identity.
//
//	@Summary		Current identity
//	@Description	Returns the identity behind the session token, read live from the store.
//	@Tags			Identity
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.IdentityResponse
//	@Failure		401	{object}	authsdk.APIError	"invalid_token"
//	@Router			/v1/me [get].
func (h *MeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, ok := authenticationFromContext(r.Context()).Identity()
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, toIdentityResponse(identity))
}
