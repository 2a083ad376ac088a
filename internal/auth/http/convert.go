package http

import (
	"github.com/aussiebroadwan/passwordless/internal/auth/domain"
	"github.com/aussiebroadwan/passwordless/pkg/authsdk"
)

func toIdentityResponse(i domain.Identity) authsdk.IdentityResponse {
	return authsdk.IdentityResponse{
		ID:            i.ID,
		Email:         i.Email,
		Role:          i.Role.String(),
		EmailVerified: i.EmailVerified,
		Active:        i.Active,
		LastLoginAt:   i.LastLoginAt,
		CreatedAt:     i.CreatedAt,
	}
}
