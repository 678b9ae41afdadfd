package service

import (
	"context"
	"strings"

	"otp-auth-service/internal/platform/autherr"
	"otp-auth-service/internal/security"
	userdomain "otp-auth-service/internal/user/domain"
)

// UserLookup finds users by username.
type UserLookup interface {
	GetByUsername(ctx context.Context, username string) (*userdomain.User, error)
}

// CredentialValidator checks a username and password against the stored bcrypt hash.
type CredentialValidator struct {
	users  UserLookup
	hasher *security.Hasher
}

// NewCredentialValidator returns a CredentialValidator.
func NewCredentialValidator(users UserLookup, hasher *security.Hasher) *CredentialValidator {
	return &CredentialValidator{users: users, hasher: hasher}
}

// Validate returns the user when the password matches, else ErrInvalidCredentials.
// Unknown usernames still pay for one bcrypt comparison so both paths take the same time.
func (v *CredentialValidator) Validate(ctx context.Context, username, password string) (*userdomain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		_ = v.hasher.CompareDummy([]byte(password))
		return nil, autherr.ErrInvalidCredentials
	}
	user, err := v.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil || user.PasswordHash == "" {
		_ = v.hasher.CompareDummy([]byte(password))
		return nil, autherr.ErrInvalidCredentials
	}
	if err := v.hasher.Compare(user.PasswordHash, []byte(password)); err != nil {
		return nil, autherr.ErrInvalidCredentials
	}
	return user, nil
}
