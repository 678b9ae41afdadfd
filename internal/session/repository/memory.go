package repository

import (
	"context"
	"log"
	"sync"
	"time"

	"otp-auth-service/internal/session/domain"
)

type entry struct {
	username  string
	attempts  int
	expiresAt time.Time
}

// MemoryStore is an in-process Store. Suitable for a single instance; use RedisStore when scaling out.
type MemoryStore struct {
	mu          sync.Mutex
	m           map[string]*entry
	counters    int
	maxCounters int
	ttl         time.Duration
	counterTTL  time.Duration
	nowF        func() time.Time
}

// NewMemoryStore returns an empty store whose sessions live for ttl (DefaultTTL when ttl <= 0).
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		m:           make(map[string]*entry),
		maxCounters: MaxCounterEntries,
		ttl:         ttl,
		counterTTL:  min(ttl, CounterTTL),
		nowF:        time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, id, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.m[id]; ok {
		s.remove(id, old)
	}
	s.m[id] = &entry{username: username, expiresAt: s.nowF().Add(s.ttl)}
	if username == "" {
		s.counters++
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*domain.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(id)
	if e == nil {
		return nil, nil
	}
	return &domain.State{ID: id, Username: e.username, Attempts: e.attempts, ExpiresAt: e.expiresAt}, nil
}

func (s *MemoryStore) IncrementAttempts(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(id)
	if e == nil {
		if s.counters >= s.maxCounters {
			s.sweep()
		}
		if s.counters >= s.maxCounters {
			return 1, nil
		}
		e = &entry{expiresAt: s.nowF().Add(s.counterTTL)}
		s.m[id] = e
		s.counters++
	}
	e.attempts++
	return e.attempts, nil
}

func (s *MemoryStore) Consume(_ context.Context, id string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(id)
	if e == nil {
		return "", false, nil
	}
	s.remove(id, e)
	if e.username == "" {
		return "", false, nil
	}
	return e.username, true, nil
}

func (s *MemoryStore) Destroy(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.m[id]; ok {
		s.remove(id, e)
	}
	return nil
}

// Sweep drops expired sessions and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweep()
}

// Len returns the number of stored entries, expired ones included until swept.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

func (s *MemoryStore) sweep() int {
	now := s.nowF()
	n := 0
	for id, e := range s.m {
		if !e.expiresAt.After(now) {
			s.remove(id, e)
			n++
		}
	}
	return n
}

// remove deletes id and keeps the counter-only tally. Caller holds mu.
func (s *MemoryStore) remove(id string, e *entry) {
	delete(s.m, id)
	if e.username == "" {
		s.counters--
	}
}

// StartSweeper runs Sweep every interval until ctx is done.
func (s *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.ttl
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := s.Sweep(); n > 0 {
					log.Printf("session: swept %d expired sessions", n)
				}
			}
		}
	}()
}

// live returns the entry for id, dropping it if expired. Caller holds mu.
func (s *MemoryStore) live(id string) *entry {
	e, ok := s.m[id]
	if !ok {
		return nil
	}
	if !e.expiresAt.After(s.nowF()) {
		s.remove(id, e)
		return nil
	}
	return e
}
