package repository

import (
	"context"
	"sync"

	"otp-auth-service/internal/user/domain"
)

// MemoryRepository keeps users in process memory. Used when no database is configured and in tests.
type MemoryRepository struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*domain.User
}

// NewMemoryRepository returns an empty in-memory user repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[int64]*domain.User)}
}

func (r *MemoryRepository) GetByID(_ context.Context, id int64) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clone(r.byID[id]), nil
}

func (r *MemoryRepository) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.byID {
		if u.Username == username {
			return clone(u), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.byID {
		if u.Email == email {
			return clone(u), nil
		}
	}
	return nil, nil
}

// Create enforces the same uniqueness as the users table constraints.
func (r *MemoryRepository) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.Username == u.Username {
			return ErrDuplicateUsername
		}
		if existing.Email == u.Email {
			return ErrDuplicateEmail
		}
	}
	r.nextID++
	u.ID = r.nextID
	r.byID[u.ID] = clone(u)
	return nil
}

func clone(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
