package repository

import (
	"context"
	"errors"
	"time"

	"otp-auth-service/internal/mfa/domain"
)

// ErrNotValid is returned by IncrementAttempts when the OTP does not exist or was already invalidated.
var ErrNotValid = errors.New("otp: not found or no longer valid")

// Repository defines persistence for OTP challenges. At most one valid OTP exists per session id.
type Repository interface {
	// Replace invalidates any valid OTP for o.SessionID and inserts o in one step. Sets o.ID.
	Replace(ctx context.Context, o *domain.OTP) error
	// GetValidBySession returns the valid OTP for sessionID, or nil if there is none.
	GetValidBySession(ctx context.Context, sessionID string) (*domain.OTP, error)
	// IncrementAttempts atomically adds one wrong-code attempt and returns the new count.
	IncrementAttempts(ctx context.Context, id int64) (int, error)
	// Invalidate clears the validity flag. Idempotent.
	Invalidate(ctx context.Context, id int64) error
	// InvalidateExpired clears the validity flag of every valid OTP that expired before now.
	InvalidateExpired(ctx context.Context, now time.Time) (int64, error)
}

// DefaultTTL is the lifetime of a code from generation.
const DefaultTTL = 60 * time.Second

// DefaultMaxAttempts is the number of wrong codes that exhausts an OTP.
const DefaultMaxAttempts = 3
