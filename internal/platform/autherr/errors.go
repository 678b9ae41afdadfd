// Package autherr defines the failure kinds returned by authentication operations.
// Callers branch on the kind with errors.Is against the sentinels or with KindOf.
package autherr

import "errors"

// Kind classifies an authentication failure.
type Kind string

const (
	KindInvalidCredentials Kind = "invalid_credentials"
	KindCredentialTaken    Kind = "credential_taken"
	KindExpireOTP          Kind = "expire_otp"
	KindMissingToken       Kind = "missing_token"
	KindInvalidSession     Kind = "invalid_session"
	KindTokenExpired       Kind = "token_expired"
)

// Error is a kinded authentication failure with a human-readable message.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return e.Msg
}

// Is reports whether target is an *Error of the same kind, so errors.Is(err, ErrExpireOTP)
// matches every ExpireOTP failure regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels, one per kind.
var (
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Msg: "invalid credentials"}
	ErrCredentialTaken    = &Error{Kind: KindCredentialTaken, Msg: "credential already taken"}
	ErrExpireOTP          = &Error{Kind: KindExpireOTP, Msg: "otp expired"}
	ErrMissingToken       = &Error{Kind: KindMissingToken, Msg: "missing token"}
	ErrInvalidSession     = &Error{Kind: KindInvalidSession, Msg: "invalid session"}
	ErrTokenExpired       = &Error{Kind: KindTokenExpired, Msg: "token expired"}
)

// New returns an error of the given kind with msg.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// KindOf returns the kind of err, or "" when err is nil or unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
