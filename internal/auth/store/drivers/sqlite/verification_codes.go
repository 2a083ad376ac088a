package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/passwordless/internal/auth/domain"
	"github.com/jmoiron/sqlx"
)

type verificationCodesRepo struct {
	db sqlx.ExtContext
}

type verificationCodeRow struct {
	ID            string        `db:"id"`
	IdentityID    string        `db:"identity_id"`
	CodeHash      string        `db:"code_hash"`
	CreatedAt     int64         `db:"created_at"`
	ExpiresAt     int64         `db:"expires_at"`
	Used          bool          `db:"used"`
	UsedAt        sql.NullInt64 `db:"used_at"`
	AttemptCount  int           `db:"attempt_count"`
	LastAttemptAt sql.NullInt64 `db:"last_attempt_at"`
	IP            string        `db:"ip"`
	UserAgent     string        `db:"user_agent"`
	Channel       string        `db:"channel"`
}

const verificationCodeColumns = `id, identity_id, code_hash, created_at, expires_at, used, used_at, attempt_count, last_attempt_at, ip, user_agent, channel`

func (r *verificationCodesRepo) CreateVerificationCode(ctx context.Context, code domain.VerificationCode) error {
	_, err := sqlx.NamedExecContext(ctx, r.db, `
		INSERT INTO verification_codes (`+verificationCodeColumns+`)
		VALUES (:id, :identity_id, :code_hash, :created_at, :expires_at, :used, :used_at,
		        :attempt_count, :last_attempt_at, :ip, :user_agent, :channel)`,
		fromVerificationCode(code))
	return mapConstraint(err)
}

func (r *verificationCodesRepo) ListUnusedVerificationCodes(
	ctx context.Context,
	identityID string,
) ([]domain.VerificationCode, error) {
	var rows []verificationCodeRow
	err := sqlx.SelectContext(ctx, r.db, &rows, `
		SELECT `+verificationCodeColumns+` FROM verification_codes
		WHERE identity_id = ? AND used = 0
		ORDER BY created_at DESC, id DESC`, identityID)
	if err != nil {
		return nil, err
	}

	out := make([]domain.VerificationCode, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *verificationCodesRepo) GetLatestUnusedVerificationCode(
	ctx context.Context,
	identityID, codeHash string,
) (domain.VerificationCode, error) {
	var row verificationCodeRow
	err := sqlx.GetContext(ctx, r.db, &row, `
		SELECT `+verificationCodeColumns+` FROM verification_codes
		WHERE identity_id = ? AND code_hash = ? AND used = 0
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, identityID, codeHash)
	if err != nil {
		return domain.VerificationCode{}, mapNotFound(err)
	}
	return row.toDomain(), nil
}

func (r *verificationCodesRepo) UpdateVerificationCode(ctx context.Context, code domain.VerificationCode) error {
	res, err := sqlx.NamedExecContext(ctx, r.db, `
		UPDATE verification_codes SET
			used = :used,
			used_at = :used_at,
			attempt_count = :attempt_count,
			last_attempt_at = :last_attempt_at,
			ip = :ip,
			user_agent = :user_agent
		WHERE id = :id`,
		fromVerificationCode(code))
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *verificationCodesRepo) CountVerificationCodesSince(
	ctx context.Context,
	identityID string,
	since time.Time,
) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.db, &n, `
		SELECT COUNT(*) FROM verification_codes
		WHERE identity_id = ? AND created_at >= ?`, identityID, toMillis(since))
	return n, err
}

func (r *verificationCodesRepo) DeleteVerificationCodesBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM verification_codes WHERE created_at < ?`, toMillis(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func fromVerificationCode(c domain.VerificationCode) verificationCodeRow {
	channel := c.Channel
	if channel == "" {
		channel = domain.ChannelEmail
	}
	return verificationCodeRow{
		ID:            c.ID,
		IdentityID:    c.IdentityID,
		CodeHash:      c.CodeHash,
		CreatedAt:     toMillis(c.CreatedAt),
		ExpiresAt:     toMillis(c.ExpiresAt),
		Used:          c.Used,
		UsedAt:        toNullMillis(c.UsedAt),
		AttemptCount:  c.AttemptCount,
		LastAttemptAt: toNullMillis(c.LastAttemptAt),
		IP:            c.IP,
		UserAgent:     c.UserAgent,
		Channel:       channel,
	}
}

func (row verificationCodeRow) toDomain() domain.VerificationCode {
	return domain.VerificationCode{
		ID:            row.ID,
		IdentityID:    row.IdentityID,
		CodeHash:      row.CodeHash,
		CreatedAt:     fromMillis(row.CreatedAt),
		ExpiresAt:     fromMillis(row.ExpiresAt),
		Used:          row.Used,
		UsedAt:        fromNullMillis(row.UsedAt),
		AttemptCount:  row.AttemptCount,
		LastAttemptAt: fromNullMillis(row.LastAttemptAt),
		IP:            row.IP,
		UserAgent:     row.UserAgent,
		Channel:       row.Channel,
	}
}
