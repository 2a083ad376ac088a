package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/passwordless/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers implement it
// and expose sub-repositories so a transaction can hand out the same repos
// bound to the open tx.
type Store interface {
	Identities() Identities
	VerificationCodes() VerificationCodes

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise. Inside fn only the repos of tx may be used.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Identities interface {
	// GetIdentityByEmail looks up by normalised email.
	GetIdentityByEmail(ctx context.Context, email string) (domain.Identity, error)

	GetIdentityByID(ctx context.Context, id string) (domain.Identity, error)

	// CreateIdentity inserts a new identity. ErrAlreadyExists on a duplicate email.
	CreateIdentity(ctx context.Context, identity domain.Identity) error

	// UpdateIdentity saves every mutable field, updated_at included.
	UpdateIdentity(ctx context.Context, identity domain.Identity) error
}

type VerificationCodes interface {
	CreateVerificationCode(ctx context.Context, code domain.VerificationCode) error

	// ListUnusedVerificationCodes returns every unused code of the identity,
	// expired or not, newest first.
	ListUnusedVerificationCodes(ctx context.Context, identityID string) ([]domain.VerificationCode, error)

	// GetLatestUnusedVerificationCode returns the newest unused code of the
	// identity with the given fingerprint.
	GetLatestUnusedVerificationCode(ctx context.Context, identityID, codeHash string) (domain.VerificationCode, error)

	// UpdateVerificationCode saves used/attempt bookkeeping.
	UpdateVerificationCode(ctx context.Context, code domain.VerificationCode) error

	// CountVerificationCodesSince counts codes created at or after since.
	CountVerificationCodesSince(ctx context.Context, identityID string, since time.Time) (int, error)

	// DeleteVerificationCodesBefore is housekeeping; returns rows removed.
	DeleteVerificationCodesBefore(ctx context.Context, before time.Time) (int64, error)
}
