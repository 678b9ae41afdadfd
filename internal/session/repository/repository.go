package repository

import (
	"context"
	"time"

	"otp-auth-service/internal/session/domain"
)

// DefaultTTL bounds how long an abandoned login session is kept.
const DefaultTTL = 15 * time.Minute

// CounterTTL bounds counter-only entries that IncrementAttempts creates for unknown ids.
// Stores use the smaller of CounterTTL and their session TTL.
const CounterTTL = time.Minute

// MaxCounterEntries caps counter-only entries held by MemoryStore. Past the cap, unknown ids are
// counted once and not stored.
const MaxCounterEntries = 10000

// DefaultMaxAttempts is the number of verify calls without a live OTP that destroys the session.
const DefaultMaxAttempts = 3

// Store holds pending login sessions keyed by server-issued id. All methods are safe for concurrent use.
type Store interface {
	// Create starts a session for username with a zero attempt counter, replacing any existing state for id.
	Create(ctx context.Context, id, username string) error
	// Get returns the state for id, or nil if it does not exist or has expired.
	Get(ctx context.Context, id string) (*domain.State, error)
	// IncrementAttempts atomically adds one attempt and returns the new count. A missing session is
	// created with only the counter, living for CounterTTL, so guessing unknown ids is throttled too.
	IncrementAttempts(ctx context.Context, id string) (int, error)
	// Consume atomically removes the session and returns its username. Only one concurrent caller
	// observes ok == true.
	Consume(ctx context.Context, id string) (username string, ok bool, err error)
	// Destroy removes the session. Idempotent.
	Destroy(ctx context.Context, id string) error
}
