package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"otp-auth-service/internal/db"
	"otp-auth-service/internal/mfa/domain"
)

const (
	otpColumns = `id, user_id, session_id, code_hash, created_at, expires_at, attempts, valid`
	// oneValidPerSession is the partial unique index guarding concurrent Replace calls.
	oneValidPerSession = "otps_one_valid_per_session"
	replaceRetries     = 3
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an OTP repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Replace runs the invalidate and insert in one transaction. A concurrent Replace for the same
// session surfaces as a unique violation on the partial index; the loser retries.
func (r *PostgresRepository) Replace(ctx context.Context, o *domain.OTP) error {
	var err error
	for i := 0; i < replaceRetries; i++ {
		err = db.InTx(ctx, r.db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx,
				`UPDATE otps SET valid = FALSE WHERE session_id = $1 AND valid`, o.SessionID); err != nil {
				return err
			}
			return tx.QueryRowContext(ctx,
				`INSERT INTO otps (user_id, session_id, code_hash, created_at, expires_at, attempts, valid)
				 VALUES ($1, $2, $3, $4, $5, $6, TRUE) RETURNING id`,
				o.UserID, o.SessionID, o.CodeHash, o.CreatedAt, o.ExpiresAt, o.Attempts,
			).Scan(&o.ID)
		})
		if !db.IsUniqueViolation(err, oneValidPerSession) {
			break
		}
	}
	if err == nil {
		o.Valid = true
	}
	return err
}

// GetValidBySession returns the valid OTP for sessionID, or nil if not found.
func (r *PostgresRepository) GetValidBySession(ctx context.Context, sessionID string) (*domain.OTP, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+otpColumns+` FROM otps WHERE session_id = $1 AND valid`, sessionID)
	o, err := scanOTP(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return o, err
}

// IncrementAttempts bumps the counter in a single UPDATE so concurrent wrong codes are all counted.
func (r *PostgresRepository) IncrementAttempts(ctx context.Context, id int64) (int, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx,
		`UPDATE otps SET attempts = attempts + 1 WHERE id = $1 AND valid RETURNING attempts`, id,
	).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotValid
	}
	return attempts, err
}

func (r *PostgresRepository) Invalidate(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE otps SET valid = FALSE WHERE id = $1`, id)
	return err
}

func (r *PostgresRepository) InvalidateExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE otps SET valid = FALSE WHERE valid AND expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOTP(s scanner) (*domain.OTP, error) {
	var o domain.OTP
	if err := s.Scan(&o.ID, &o.UserID, &o.SessionID, &o.CodeHash, &o.CreatedAt, &o.ExpiresAt, &o.Attempts, &o.Valid); err != nil {
		return nil, err
	}
	return &o, nil
}
