package http

import (
	"net/http"

	"github.com/aussiebroadwan/passwordless/internal/auth/service"
	"github.com/aussiebroadwan/passwordless/pkg/authsdk"
	"github.com/aussiebroadwan/passwordless/pkg/httpx"
)

type VerifyHandler struct {
	AuthService *service.AuthService
}

// ServeHTTP exchanges a code for a session token.
//
//	@Summary		Verify a sign-in code
//	@Description	Consumes the code and returns a signed session token.
//	@Description	Five failed attempts inside fifteen minutes lock the address for thirty minutes.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.VerifyCodeRequest	true	"Email address and code"
//	@Success		200		{object}	authsdk.VerifyResponse
//	@Failure		400		{object}	authsdk.APIError	"invalid_request or invalid_email"
//	@Failure		401		{object}	authsdk.APIError	"invalid_code or code_expired"
//	@Failure		423		{object}	authsdk.APIError	"account_locked"
//	@Failure		429		{object}	authsdk.APIError	"too_many_attempts or rate_limit_exceeded"
//	@Failure		500		{object}	authsdk.APIError
//	@Router			/v1/auth/verify [post].
func (h *VerifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.VerifyCodeRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	res, err := h.AuthService.VerifyCode(r.Context(), req.Email, req.Code, httpx.IPKeyExtractor(r), r.UserAgent())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.VerifyResponse{
		AccessToken:       res.Token,
		TokenType:         "Bearer",
		ExpiresAt:         res.ExpiresAt,
		Identity:          toIdentityResponse(res.Identity),
		FirstVerification: res.FirstVerification,
	})
}
