package domain

import "time"

// OTP is one challenge instance bound to a login session (stored in the otps table).
// Code holds the plain value only between generation and delivery; it is never persisted.
type OTP struct {
	ID        int64
	UserID    int64
	SessionID string
	Code      string
	CodeHash  string
	CreatedAt time.Time
	ExpiresAt time.Time
	Attempts  int
	Valid     bool
}

// Expired reports whether now is past the absolute expiry.
func (o *OTP) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// Exhausted reports whether the wrong-code counter has reached limit.
func (o *OTP) Exhausted(limit int) bool {
	return o.Attempts >= limit
}
