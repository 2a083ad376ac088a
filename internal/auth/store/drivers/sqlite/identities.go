package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/passwordless/internal/auth/domain"
	"github.com/aussiebroadwan/passwordless/internal/auth/store"
	"github.com/jmoiron/sqlx"
)

type identitiesRepo struct {
	db sqlx.ExtContext
}

type identityRow struct {
	ID             string        `db:"id"`
	Email          string        `db:"email"`
	Role           string        `db:"role"`
	EmailVerified  bool          `db:"email_verified"`
	Active         bool          `db:"active"`
	LastLoginAt    sql.NullInt64 `db:"last_login_at"`
	LastCodeSentAt sql.NullInt64 `db:"last_code_sent_at"`
	CreatedAt      int64         `db:"created_at"`
	UpdatedAt      int64         `db:"updated_at"`
}

const identityColumns = `id, email, role, email_verified, active, last_login_at, last_code_sent_at, created_at, updated_at`

func (r *identitiesRepo) GetIdentityByEmail(ctx context.Context, email string) (domain.Identity, error) {
	var row identityRow
	err := sqlx.GetContext(ctx, r.db, &row,
		`SELECT `+identityColumns+` FROM identities WHERE email = ?`, domain.NormalizeEmail(email))
	if err != nil {
		return domain.Identity{}, mapNotFound(err)
	}
	return row.toDomain(), nil
}

func (r *identitiesRepo) GetIdentityByID(ctx context.Context, id string) (domain.Identity, error) {
	var row identityRow
	err := sqlx.GetContext(ctx, r.db, &row,
		`SELECT `+identityColumns+` FROM identities WHERE id = ?`, id)
	if err != nil {
		return domain.Identity{}, mapNotFound(err)
	}
	return row.toDomain(), nil
}

func (r *identitiesRepo) CreateIdentity(ctx context.Context, identity domain.Identity) error {
	_, err := sqlx.NamedExecContext(ctx, r.db, `
		INSERT INTO identities (`+identityColumns+`)
		VALUES (:id, :email, :role, :email_verified, :active, :last_login_at, :last_code_sent_at, :created_at, :updated_at)`,
		fromIdentity(identity))
	return mapConstraint(err)
}

func (r *identitiesRepo) UpdateIdentity(ctx context.Context, identity domain.Identity) error {
	res, err := sqlx.NamedExecContext(ctx, r.db, `
		UPDATE identities SET
			email = :email,
			role = :role,
			email_verified = :email_verified,
			active = :active,
			last_login_at = :last_login_at,
			last_code_sent_at = :last_code_sent_at,
			updated_at = :updated_at
		WHERE id = :id`,
		fromIdentity(identity))
	if err != nil {
		return mapConstraint(err)
	}
	return requireAffected(res)
}

func fromIdentity(i domain.Identity) identityRow {
	return identityRow{
		ID:             i.ID,
		Email:          domain.NormalizeEmail(i.Email),
		Role:           i.Role.String(),
		EmailVerified:  i.EmailVerified,
		Active:         i.Active,
		LastLoginAt:    toNullMillis(i.LastLoginAt),
		LastCodeSentAt: toNullMillis(i.LastCodeSentAt),
		CreatedAt:      toMillis(i.CreatedAt),
		UpdatedAt:      toMillis(i.UpdatedAt),
	}
}

func (row identityRow) toDomain() domain.Identity {
	return domain.Identity{
		ID:             row.ID,
		Email:          row.Email,
		Role:           domain.Role(row.Role),
		EmailVerified:  row.EmailVerified,
		Active:         row.Active,
		LastLoginAt:    fromNullMillis(row.LastLoginAt),
		LastCodeSentAt: fromNullMillis(row.LastCodeSentAt),
		CreatedAt:      fromMillis(row.CreatedAt),
		UpdatedAt:      fromMillis(row.UpdatedAt),
	}
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
