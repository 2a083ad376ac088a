package authsdk

import "time"

// ============================================================================
// Code Flow Types
// ============================================================================

// RequestCodeRequest is the body of POST /v1/auth/code.
type RequestCodeRequest struct {
	Email string `json:"email"`
}

// RequestCodeResponse is returned for every accepted code request, whether
// or not the address was already known.
type RequestCodeResponse struct {
	Message string `json:"message"`
}

// VerifyCodeRequest is the body of POST /v1/auth/verify.
type VerifyCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// VerifyResponse carries the session token minted after a successful verification.
type VerifyResponse struct {
	// AccessToken is the signed session token
	AccessToken string `json:"access_token"`

	// TokenType is always "Bearer"
	TokenType string `json:"token_type"`

	// ExpiresAt is the instant the token stops validating
	ExpiresAt time.Time `json:"expires_at"`

	Identity IdentityResponse `json:"identity"`

	// FirstVerification is true the first time this address is verified
	FirstVerification bool `json:"first_verification"`
}

// ============================================================================
// Identity Types
// ============================================================================

// IdentityResponse is the public summary of an identity.
type IdentityResponse struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Role          string     `json:"role"`
	EmailVerified bool       `json:"email_verified"`
	Active        bool       `json:"active"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// UpdateIdentityRequest is the body of PATCH /v1/admin/identities/{id}.
// Nil fields are left unchanged.
type UpdateIdentityRequest struct {
	Role   *string `json:"role,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse represents the response structure for health check endpoints.
// Used by both /livez and /readyz endpoints (readyz includes additional Checks field).
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime,omitempty"`
	Version string        `json:"version,omitempty"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the state of each dependency checked by /readyz.
type HealthChecks struct {
	Database   string `json:"database"`
	Signer     string `json:"signer"`
	Revocation string `json:"revocation"`
}
