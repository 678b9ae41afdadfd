package domain

import "time"

// RevokeReason records why a refresh token stopped being active.
type RevokeReason string

const (
	// RevokedRotated marks a token exchanged by a successful refresh. Presenting it again is reuse.
	RevokedRotated  RevokeReason = "rotated"
	// RevokedReplaced marks a token superseded by a newer login or rotation of another token.
	RevokedReplaced RevokeReason = "replaced"
	RevokedLogout   RevokeReason = "logout"
	RevokedExpired  RevokeReason = "expired"
	// RevokedOrphaned marks a token whose owner no longer exists.
	RevokedOrphaned RevokeReason = "orphaned"
	// RevokedReuse marks tokens revoked because a rotated token of the same user was replayed.
	RevokedReuse    RevokeReason = "reuse"
)

// RefreshToken is a server-side record of an opaque refresh token. Only TokenHash is stored;
// Token carries the raw value between minting and the Set-Cookie header.
type RefreshToken struct {
	ID           int64
	UserID       int64
	Token        string
	TokenHash    string
	IssuedAt     time.Time
	ExpiresAt    time.Time
	RevokedAt    *time.Time
	RevokeReason RevokeReason
}

// Revoked reports whether the token has been revoked.
func (t *RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}

// Rotated reports whether the token was revoked by being exchanged for a successor.
func (t *RefreshToken) Rotated() bool {
	return t.Revoked() && t.RevokeReason == RevokedRotated
}

// Expired reports whether now is past the token's expiry.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
