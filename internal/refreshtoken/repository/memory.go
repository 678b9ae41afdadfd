package repository

import (
	"context"
	"sync"
	"time"

	"otp-auth-service/internal/refreshtoken/domain"
	"otp-auth-service/internal/security"
)

// MemoryRepository keeps refresh tokens in process memory. Used when no database is configured and in tests.
type MemoryRepository struct {
	mu     sync.Mutex
	nextID int64
	byHash map[string]*domain.RefreshToken
	nowF   func() time.Time
}

// NewMemoryRepository returns an empty in-memory refresh token repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byHash: make(map[string]*domain.RefreshToken), nowF: time.Now}
}

func (r *MemoryRepository) Put(_ context.Context, t *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revokeUser(t.UserID, domain.RevokedReplaced)
	r.insert(t)
	return nil
}

func (r *MemoryRepository) Rotate(_ context.Context, old string, next *domain.RefreshToken) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byHash[security.HashRefreshToken(old)]
	if !ok || cur.Revoked() {
		return false, nil
	}
	now := r.nowF().UTC()
	cur.RevokedAt = &now
	cur.RevokeReason = domain.RevokedRotated
	r.revokeUser(next.UserID, domain.RevokedReplaced)
	r.insert(next)
	return true, nil
}

func (r *MemoryRepository) Get(ctx context.Context, token string) (*domain.RefreshToken, error) {
	t, err := r.Lookup(ctx, token)
	if err != nil || t == nil || t.Revoked() {
		return nil, err
	}
	return t, nil
}

func (r *MemoryRepository) Lookup(_ context.Context, token string) (*domain.RefreshToken, error) {
	if token == "" {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byHash[security.HashRefreshToken(token)]
	if !ok {
		return nil, nil
	}
	c := *t
	return &c, nil
}

func (r *MemoryRepository) Revoke(_ context.Context, token string, reason domain.RevokeReason) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.byHash[security.HashRefreshToken(token)]; ok && !t.Revoked() {
		now := r.nowF().UTC()
		t.RevokedAt = &now
		t.RevokeReason = reason
	}
	return nil
}

func (r *MemoryRepository) RevokeAllByUser(_ context.Context, userID int64, reason domain.RevokeReason) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revokeUser(userID, reason)
	return nil
}

// ActiveCount returns how many unrevoked tokens the user holds.
func (r *MemoryRepository) ActiveCount(userID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.byHash {
		if t.UserID == userID && !t.Revoked() {
			n++
		}
	}
	return n
}

func (r *MemoryRepository) revokeUser(userID int64, reason domain.RevokeReason) {
	now := r.nowF().UTC()
	for _, t := range r.byHash {
		if t.UserID == userID && !t.Revoked() {
			t.RevokedAt = &now
			t.RevokeReason = reason
		}
	}
}

func (r *MemoryRepository) insert(t *domain.RefreshToken) {
	r.nextID++
	t.ID = r.nextID
	t.TokenHash = security.HashRefreshToken(t.Token)
	stored := *t
	stored.Token = ""
	r.byHash[t.TokenHash] = &stored
}
