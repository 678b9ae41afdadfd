package repository

import (
	"context"

	"otp-auth-service/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	// ListByUsername returns the user's events, newest first.
	ListByUsername(ctx context.Context, username string, limit, offset int32) ([]*domain.AuditLog, error)
}
