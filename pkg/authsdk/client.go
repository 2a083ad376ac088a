package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// SDKClient talks to the public, unauthenticated endpoints and opens
// Sessions from verified codes.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a new auth service client.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// RequestCode asks the service to email a one-time code to email.
func (c *SDKClient) RequestCode(ctx context.Context, email string) (*RequestCodeResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/auth/code", "", RequestCodeRequest{Email: email})
	if err != nil {
		return nil, err
	}

	var out RequestCodeResponse
	if err := decodeJSON(resp, &out, http.StatusAccepted); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyCode exchanges an emailed code for a session token.
func (c *SDKClient) VerifyCode(ctx context.Context, email, code string) (*VerifyResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/auth/verify", "", VerifyCodeRequest{Email: email, Code: code})
	if err != nil {
		return nil, err
	}

	var out VerifyResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// AuthenticateWithCode verifies the code and wraps the resulting token in a Session.
func (c *SDKClient) AuthenticateWithCode(ctx context.Context, email, code string) (*Session, error) {
	out, err := c.VerifyCode(ctx, email, code)
	if err != nil {
		return nil, err
	}
	return c.NewSessionFromToken(out.AccessToken, out.ExpiresAt), nil
}

// GetLiveness checks if the service is alive.
func (c *SDKClient) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/livez")
}

// GetReadiness checks if the service is ready.
func (c *SDKClient) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/readyz")
}

func (c *SDKClient) health(ctx context.Context, path string) (*HealthResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}

	var health HealthResponse
	if err := decodeJSON(resp, &health, http.StatusOK); err != nil {
		return nil, err
	}
	return &health, nil
}
