package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"otp-auth-service/internal/db"
	"otp-auth-service/internal/refreshtoken/domain"
	"otp-auth-service/internal/security"
)

const tokenColumns = `id, user_id, token_hash, issued_at, expires_at, revoked_at, revoke_reason`

type PostgresRepository struct {
	db   *sql.DB
	nowF func() time.Time
}

// NewPostgresRepository returns a refresh token repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, nowF: time.Now}
}

func (r *PostgresRepository) Put(ctx context.Context, t *domain.RefreshToken) error {
	return db.InTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := revokeUser(ctx, tx, t.UserID, r.nowF().UTC(), domain.RevokedReplaced); err != nil {
			return err
		}
		return r.insert(ctx, tx, t)
	})
}

func (r *PostgresRepository) Rotate(ctx context.Context, old string, next *domain.RefreshToken) (bool, error) {
	rotated := false
	err := db.InTx(ctx, r.db, func(tx *sql.Tx) error {
		now := r.nowF().UTC()
		res, err := tx.ExecContext(ctx,
			`UPDATE refresh_tokens SET revoked_at = $2, revoke_reason = $3
			 WHERE token_hash = $1 AND revoked_at IS NULL`,
			security.HashRefreshToken(old), now, domain.RevokedRotated)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return err
		}
		if err := revokeUser(ctx, tx, next.UserID, now, domain.RevokedReplaced); err != nil {
			return err
		}
		if err := r.insert(ctx, tx, next); err != nil {
			return err
		}
		rotated = true
		return nil
	})
	return rotated, err
}

func (r *PostgresRepository) insert(ctx context.Context, tx *sql.Tx, t *domain.RefreshToken) error {
	t.TokenHash = security.HashRefreshToken(t.Token)
	return tx.QueryRowContext(ctx,
		`INSERT INTO refresh_tokens (user_id, token_hash, issued_at, expires_at)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		t.UserID, t.TokenHash, t.IssuedAt, t.ExpiresAt,
	).Scan(&t.ID)
}

func (r *PostgresRepository) Get(ctx context.Context, token string) (*domain.RefreshToken, error) {
	t, err := r.Lookup(ctx, token)
	if err != nil || t == nil || t.Revoked() {
		return nil, err
	}
	return t, nil
}

func (r *PostgresRepository) Lookup(ctx context.Context, token string) (*domain.RefreshToken, error) {
	if token == "" {
		return nil, nil
	}
	var t domain.RefreshToken
	var revokedAt sql.NullTime
	var reason string
	err := r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM refresh_tokens WHERE token_hash = $1`,
		security.HashRefreshToken(token),
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.IssuedAt, &t.ExpiresAt, &revokedAt, &reason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if revokedAt.Valid {
		at := revokedAt.Time
		t.RevokedAt = &at
		t.RevokeReason = domain.RevokeReason(reason)
	}
	return &t, nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, token string, reason domain.RevokeReason) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2, revoke_reason = $3
		 WHERE token_hash = $1 AND revoked_at IS NULL`,
		security.HashRefreshToken(token), r.nowF().UTC(), reason)
	return err
}

func (r *PostgresRepository) RevokeAllByUser(ctx context.Context, userID int64, reason domain.RevokeReason) error {
	return revokeUser(ctx, r.db, userID, r.nowF().UTC(), reason)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func revokeUser(ctx context.Context, ex execer, userID int64, now time.Time, reason domain.RevokeReason) error {
	_, err := ex.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2, revoke_reason = $3
		 WHERE user_id = $1 AND revoked_at IS NULL`,
		userID, now, reason)
	return err
}
