package repository

import (
	"context"
	"sync"

	"otp-auth-service/internal/audit/domain"
)

// MemoryRepository keeps audit logs in process memory. Used when no database is configured and in tests.
type MemoryRepository struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(_ context.Context, a *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *a
	r.entries = append(r.entries, &c)
	return nil
}

func (r *MemoryRepository) ListByUsername(_ context.Context, username string, limit, offset int32) ([]*domain.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.AuditLog
	skipped := int32(0)
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if e.Username != username {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if limit > 0 && int32(len(out)) >= limit {
			break
		}
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

// All returns every entry in insertion order.
func (r *MemoryRepository) All() []*domain.AuditLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.AuditLog, len(r.entries))
	for i, e := range r.entries {
		c := *e
		out[i] = &c
	}
	return out
}
