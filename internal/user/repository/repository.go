package repository

import (
	"context"
	"errors"

	"otp-auth-service/internal/user/domain"
)

var (
	// ErrDuplicateUsername is returned by Create when the username is already registered.
	ErrDuplicateUsername = errors.New("user: username already exists")
	// ErrDuplicateEmail is returned by Create when the email is already registered.
	ErrDuplicateEmail = errors.New("user: email already exists")
)

// Repository defines persistence for users. Lookups return (nil, nil) when no user matches.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// Create inserts u and sets u.ID. Returns ErrDuplicateUsername or ErrDuplicateEmail on conflict.
	Create(ctx context.Context, u *domain.User) error
}
