// Package devotp keeps plain OTP codes by login session id so local clients can read them
// without a mail relay. Only wired when OTP_RETURN_TO_CLIENT is set outside production.
package devotp

import (
	"context"
	"sync"
	"time"
)

// Store holds plain codes for dev-only retrieval.
type Store interface {
	// Put stores code for sessionID until expiresAt, replacing any earlier code.
	Put(ctx context.Context, sessionID, code string, expiresAt time.Time)
	// Get returns the code for sessionID if present and not expired.
	Get(ctx context.Context, sessionID string) (code string, ok bool)
}

type entry struct {
	code      string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store. It also receives codes as an OTP notifier.
type MemoryStore struct {
	mu   sync.Mutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns an empty dev OTP store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Put(_ context.Context, sessionID, code string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()
	s.m[sessionID] = entry{code: code, expiresAt: expiresAt}
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[sessionID]
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.nowF()) {
		delete(s.m, sessionID)
		return "", false
	}
	return e.code, true
}

// NotifyOTP records the code generated for a session.
func (s *MemoryStore) NotifyOTP(ctx context.Context, _ string, sessionID, code string, expiresAt time.Time) {
	s.Put(ctx, sessionID, code, expiresAt)
}

// prune drops expired entries. Caller holds mu.
func (s *MemoryStore) prune() {
	now := s.nowF()
	for id, e := range s.m {
		if !e.expiresAt.After(now) {
			delete(s.m, id)
		}
	}
}
