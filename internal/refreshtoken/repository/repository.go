package repository

import (
	"context"

	"otp-auth-service/internal/refreshtoken/domain"
)

// Repository persists refresh tokens by SHA-256 hash. Methods take raw token strings and hash them.
type Repository interface {
	// Put stores t for t.UserID and revokes the user's other active tokens in the same step
	// with reason replaced. t.Token must be set; TokenHash and ID are filled in.
	Put(ctx context.Context, t *domain.RefreshToken) error
	// Get returns the active token for the raw value, or nil when it is unknown or revoked.
	Get(ctx context.Context, token string) (*domain.RefreshToken, error)
	// Lookup returns the record for the raw value whatever its state, or nil when unknown.
	Lookup(ctx context.Context, token string) (*domain.RefreshToken, error)
	// Rotate revokes old with reason rotated and stores next atomically. The user's other active
	// tokens are revoked as replaced. Returns false without storing next when old was not active
	// (already rotated by a concurrent request or revoked).
	Rotate(ctx context.Context, old string, next *domain.RefreshToken) (bool, error)
	// Revoke marks the token revoked with reason. Idempotent; unknown tokens are not an error
	// and an earlier reason is kept.
	Revoke(ctx context.Context, token string, reason domain.RevokeReason) error
	// RevokeAllByUser revokes every active token of the user with reason.
	RevokeAllByUser(ctx context.Context, userID int64, reason domain.RevokeReason) error
}
