package repository

import (
	"context"
	"sync"
	"time"

	"otp-auth-service/internal/mfa/domain"
)

// MemoryRepository keeps OTPs in process memory. Used when no database is configured and in tests.
type MemoryRepository struct {
	mu     sync.Mutex
	nextID int64
	otps   []*domain.OTP
}

// NewMemoryRepository returns an empty in-memory OTP repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Replace(_ context.Context, o *domain.OTP) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.otps {
		if existing.SessionID == o.SessionID {
			existing.Valid = false
		}
	}
	r.nextID++
	o.ID = r.nextID
	o.Valid = true
	stored := *o
	stored.Code = ""
	r.otps = append(r.otps, &stored)
	return nil
}

func (r *MemoryRepository) GetValidBySession(_ context.Context, sessionID string) (*domain.OTP, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.otps {
		if o.SessionID == sessionID && o.Valid {
			c := *o
			return &c, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) IncrementAttempts(_ context.Context, id int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.find(id)
	if o == nil || !o.Valid {
		return 0, ErrNotValid
	}
	o.Attempts++
	return o.Attempts, nil
}

func (r *MemoryRepository) Invalidate(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o := r.find(id); o != nil {
		o.Valid = false
	}
	return nil
}

func (r *MemoryRepository) InvalidateExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, o := range r.otps {
		if o.Valid && o.ExpiresAt.Before(now) {
			o.Valid = false
			n++
		}
	}
	return n, nil
}

// History returns copies of every OTP issued to the user, oldest first.
func (r *MemoryRepository) History(userID int64) []*domain.OTP {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.OTP
	for _, o := range r.otps {
		if o.UserID == userID {
			c := *o
			out = append(out, &c)
		}
	}
	return out
}

func (r *MemoryRepository) find(id int64) *domain.OTP {
	for _, o := range r.otps {
		if o.ID == id {
			return o
		}
	}
	return nil
}
