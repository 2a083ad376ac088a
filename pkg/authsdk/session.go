package authsdk

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Session holds a session token. There is no refresh: once the token
// expires, or is revoked, a new code must be requested.
type Session struct {
	client *SDKClient

	mu          sync.RWMutex
	accessToken string
	expiresAt   time.Time
}

// NewSessionFromToken wraps an existing token, e.g. one kept by a browser.
func (c *SDKClient) NewSessionFromToken(accessToken string, expiresAt time.Time) *Session {
	return &Session{
		client:      c,
		accessToken: accessToken,
		expiresAt:   expiresAt,
	}
}

// AccessToken returns the raw bearer token.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// Expired reports whether the token's expiry has passed locally.
func (s *Session) Expired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !time.Now().Before(s.expiresAt)
}

// Me returns the identity behind the session.
func (s *Session) Me(ctx context.Context) (*IdentityResponse, error) {
	resp, err := s.client.doJSON(ctx, http.MethodGet, "/v1/me", s.AccessToken(), nil)
	if err != nil {
		return nil, err
	}

	var out IdentityResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateIdentity changes another identity's role or active flag. The
// session must belong to an ADMIN.
func (s *Session) UpdateIdentity(ctx context.Context, id string, req UpdateIdentityRequest) (*IdentityResponse, error) {
	resp, err := s.client.doJSON(ctx, http.MethodPatch, "/v1/admin/identities/"+url.PathEscape(id), s.AccessToken(), req)
	if err != nil {
		return nil, err
	}

	var out IdentityResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes the token server side and clears it locally.
func (s *Session) Logout(ctx context.Context) error {
	resp, err := s.client.doJSON(ctx, http.MethodPost, "/v1/auth/logout", s.AccessToken(), nil)
	if err != nil {
		return err
	}
	if err := decodeJSON(resp, nil, http.StatusOK); err != nil {
		return err
	}

	s.mu.Lock()
	s.accessToken = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()
	return nil
}
