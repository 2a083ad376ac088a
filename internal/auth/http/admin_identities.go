package http

import (
	"net/http"

	"github.com/aussiebroadwan/passwordless/internal/auth/domain"
	"github.com/aussiebroadwan/passwordless/internal/auth/service"
	"github.com/aussiebroadwan/passwordless/pkg/authsdk"
	"github.com/aussiebroadwan/passwordless/pkg/httpx"
	"github.com/aussiebroadwan/passwordless/pkg/idx"
)

type AdminIdentitiesHandler struct {
	AuthService *service.AuthService
}

// HandleUpdate changes the role or active flag of an identity.
//
//	@Summary		Update an identity
//	@Description	Changes role and/or active flag. Requires the ADMIN role.
//	@Description	Deactivating an identity invalidates its outstanding tokens on their next use.
//	@Tags			Admin
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string							true	"Identity ID"
//	@Param			request	body		authsdk.UpdateIdentityRequest	true	"Fields to change"
//	@Success		200		{object}	authsdk.IdentityResponse
//	@Failure		400		{object}	authsdk.APIError	"invalid_request"
//	@Failure		401		{object}	authsdk.APIError	"invalid_token"
//	@Failure		403		{object}	authsdk.APIError	"not_an_admin"
//	@Failure		404		{object}	authsdk.APIError	"not_found"
//	@Router			/v1/admin/identities/{id} [patch].
func (h *AdminIdentitiesHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := idx.Parse(id); err != nil {
		authsdk.ErrInvalidRequest.With("identity id must be a ULID").WriteError(w)
		return
	}

	var req authsdk.UpdateIdentityRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.Role == nil && req.Active == nil {
		authsdk.ErrInvalidRequest.With("nothing to update").WriteError(w)
		return
	}

	var patch service.IdentityPatch
	if req.Role != nil {
		role, err := domain.ParseRole(*req.Role)
		if err != nil {
			authsdk.ErrInvalidRequest.With("role must be USER or ADMIN").WriteError(w)
			return
		}
		patch.Role = &role
	}
	patch.Active = req.Active

	updated, err := h.AuthService.UpdateIdentity(r.Context(), authenticationFromContext(r.Context()), id, patch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, toIdentityResponse(updated))
}
