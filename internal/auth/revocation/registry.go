// Package revocation records session tokens revoked before their natural
// expiry, keyed by jti. Entries are only useful until the token would have
// expired anyway, so every backend forgets them after that.
package revocation

import (
	"context"
	"time"
)

// Registry is the revocation list consulted on every authenticated request.
type Registry interface {
	// Revoke marks jti revoked until expiresAt. Already expired tokens are ignored.
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error

	// IsRevoked reports whether jti is revoked and not yet past its expiry.
	IsRevoked(ctx context.Context, jti string) (bool, error)

	// Sweep removes entries whose expiry is before now and returns how many.
	Sweep(now time.Time) int

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error
}
