package http

import (
	"net/http"

	"github.com/aussiebroadwan/passwordless/internal/auth/service"
	"github.com/aussiebroadwan/passwordless/pkg/authsdk"
	"github.com/aussiebroadwan/passwordless/pkg/httpx"
)

// codeSentMessage is the same for known and unknown addresses.
const codeSentMessage = "if the address can receive mail, a sign-in code is on its way"

type CodeHandler struct {
	AuthService *service.AuthService
}

// ServeHTTP handles a sign-in code request.
//
//	@Summary		Request a sign-in code
//	@Description	Sends a six digit one-time code to the address. Unknown addresses are provisioned.
//	@Description	The response does not reveal whether the address was already known.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RequestCodeRequest	true	"Email address"
//	@Success		202		{object}	authsdk.RequestCodeResponse
//	@Failure		400		{object}	authsdk.APIError	"invalid_request or invalid_email"
//	@Failure		429		{object}	authsdk.APIError	"cooldown_active or rate_limit_exceeded"
//	@Failure		500		{object}	authsdk.APIError
//	@Router			/v1/auth/code [post].
func (h *CodeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RequestCodeRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	err := h.AuthService.RequestCode(r.Context(), req.Email, httpx.IPKeyExtractor(r), r.UserAgent())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusAccepted, authsdk.RequestCodeResponse{Message: codeSentMessage})
}
